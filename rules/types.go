package rules

import "github.com/liamcoop/mailrules/filter"

// Combinator joins a rule's conditions.
type Combinator string

const (
	CombinatorAll Combinator = "ALL"
	CombinatorAny Combinator = "ANY"
)

// PredicateKind is the comparison a Condition performs.
type PredicateKind string

const (
	PredicateContains      PredicateKind = "contains"
	PredicateNotContains   PredicateKind = "not_contains"
	PredicateEquals        PredicateKind = "equals"
	PredicateNotEquals     PredicateKind = "not_equals"
	PredicateOlderThanDays PredicateKind = "older_than_days"
	PredicateNewerThanDays PredicateKind = "newer_than_days"
)

// ActionKind is the state change an Action requests.
type ActionKind string

const (
	ActionSetStatus ActionKind = "set_status"
	ActionMove      ActionKind = "move"
)

// Record status values accepted by set_status.
const (
	StatusRead   = "READ"
	StatusUnread = "UNREAD"
)

// Rule is a named combinator over conditions paired with the actions applied
// to every matching record.
type Rule struct {
	ID         string      `json:"id" yaml:"id"`
	Combinator Combinator  `json:"root_predicate" yaml:"root_predicate"`
	Conditions []Condition `json:"rules" yaml:"rules"`
	Actions    []Action    `json:"actions" yaml:"actions"`
}

// Condition is a single field/predicate/value test.
//
// Value is a string for text predicates and a non-negative integer number of
// days for age predicates. It is kept untyped because rule definitions come
// from structured data and are validated when the rule is compiled.
type Condition struct {
	Field     filter.Field  `json:"field" yaml:"field"`
	Predicate PredicateKind `json:"predicate" yaml:"predicate"`
	Value     any           `json:"value" yaml:"value"`
}

// Action is a declared state change.
type Action struct {
	Kind      ActionKind `json:"action" yaml:"action"`
	Parameter string     `json:"value" yaml:"value"`
}

func (a Action) String() string {
	return string(a.Kind) + "(" + a.Parameter + ")"
}

// MatchSet is the ordered set of record identifiers selected by one rule.
type MatchSet []string
