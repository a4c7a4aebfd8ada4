package rules

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors are returned before any side effect. Selection and
// mutation errors are scoped to the rule that caused them.
var (
	ErrInvalidRule       = errors.New("invalid rule")
	ErrInvalidPredicate  = errors.New("invalid predicate")
	ErrInvalidCombinator = errors.New("invalid combinator")
	ErrInvalidAction     = errors.New("invalid action")
	ErrSelection         = errors.New("selection failure")
	ErrMutation          = errors.New("mutation failure")
)

// Mutation backends.
const (
	BackendRemote = "remote"
	BackendLocal  = "local"
)

// MutationError reports a failed mutation call together with the action and
// identifier batch that caused it. It matches ErrMutation and the underlying
// cause with errors.Is.
type MutationError struct {
	Action  Action
	Backend string
	IDs     []string
	Err     error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s: %s %s on %d records [%s]: %v",
		ErrMutation, e.Backend, e.Action, len(e.IDs), abbreviateIDs(e.IDs, 5), e.Err)
}

func (e *MutationError) Unwrap() []error {
	return []error{ErrMutation, e.Err}
}

func abbreviateIDs(ids []string, limit int) string {
	if len(ids) <= limit {
		return strings.Join(ids, ",")
	}
	return strings.Join(ids[:limit], ",") + fmt.Sprintf(",... (+%d)", len(ids)-limit)
}
