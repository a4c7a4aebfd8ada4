package rules

import (
	"context"
	"fmt"

	"github.com/liamcoop/mailrules/filter"
)

// RecordStore is the local record store the engine selects from and keeps in
// step with the remote mailbox. The store is authoritative for matching.
type RecordStore interface {
	// Query returns the ids of every record matching expr, ordered by id.
	Query(ctx context.Context, expr filter.Expr) ([]string, error)

	// UpdateStatus sets the status of every listed record.
	UpdateStatus(ctx context.Context, ids []string, status string) error

	// UpdateMailbox sets the mailbox of every listed record.
	UpdateMailbox(ctx context.Context, ids []string, mailbox string) error
}

// Selector combines compiled conditions under a rule's combinator and asks
// the record store for the matching identifiers.
type Selector struct {
	compiler *PredicateCompiler
	store    RecordStore
}

// NewSelector creates a selector over store.
func NewSelector(compiler *PredicateCompiler, store RecordStore) *Selector {
	return &Selector{compiler: compiler, store: store}
}

// Build compiles every condition and joins them with the combinator.
// It never touches the store.
func (s *Selector) Build(combinator Combinator, conditions []Condition) (filter.Expr, error) {
	if len(conditions) == 0 {
		return nil, fmt.Errorf("%w: no conditions", ErrInvalidRule)
	}
	if combinator != CombinatorAll && combinator != CombinatorAny {
		return nil, fmt.Errorf("%w: %q (must be ALL or ANY)", ErrInvalidCombinator, combinator)
	}

	exprs := make([]filter.Expr, 0, len(conditions))
	for i, c := range conditions {
		expr, err := s.compiler.Compile(c)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
		exprs = append(exprs, expr)
	}

	if combinator == CombinatorAll {
		return filter.And{Exprs: exprs}, nil
	}
	return filter.Or{Exprs: exprs}, nil
}

// Select builds the rule's expression and queries the store.
func (s *Selector) Select(ctx context.Context, combinator Combinator, conditions []Condition) (MatchSet, error) {
	expr, err := s.Build(combinator, conditions)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, expr)
}

func (s *Selector) query(ctx context.Context, expr filter.Expr) (MatchSet, error) {
	ids, err := s.store.Query(ctx, expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSelection, err)
	}

	// Stores return ordered ids; drop duplicates so each record is mutated once.
	seen := make(map[string]struct{}, len(ids))
	matches := make(MatchSet, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		matches = append(matches, id)
	}
	return matches, nil
}
