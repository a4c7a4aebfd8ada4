// Package filter defines the backend-neutral selection expressions that the
// rule engine hands to a record store.
//
// An Expr is a tree of Cond leaves combined with And/Or nodes. Stores never
// receive rule text or SQL fragments; they translate an Expr with one of the
// compilers in this package (SQLCompiler for relational stores, CELCompiler
// for in-memory evaluation) and keep full control over indexing and case
// policy.
package filter

import (
	"fmt"
	"time"
)

// Expr is a selection expression over records.
//
// This is a sealed interface: only Cond, And and Or implement it, so every
// compiler can switch over the concrete types exhaustively.
type Expr interface {
	exprNode()
}

// Field names a record attribute that can be filtered on.
type Field string

const (
	FieldSubject Field = "subject"
	FieldSender  Field = "sender"
	FieldDate    Field = "date"
	FieldStatus  Field = "status"
	FieldMailbox Field = "mailbox"
	FieldBody    Field = "body"
)

// Fields lists every filterable field in column order.
var Fields = []Field{FieldSubject, FieldSender, FieldDate, FieldStatus, FieldMailbox, FieldBody}

// Valid reports whether f is one of the known fields.
func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// IsText reports whether f holds free text (every field except date).
func (f Field) IsText() bool {
	return f.Valid() && f != FieldDate
}

// Op is the comparison performed by a Cond.
type Op int

const (
	OpContains Op = iota + 1
	OpNotContains
	OpEquals
	OpNotEquals
	OpBefore
	OpAfter
)

func (o Op) String() string {
	switch o {
	case OpContains:
		return "contains"
	case OpNotContains:
		return "not_contains"
	case OpEquals:
		return "equals"
	case OpNotEquals:
		return "not_equals"
	case OpBefore:
		return "before"
	case OpAfter:
		return "after"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Cond is a single field comparison.
//
// Text ops (contains, not_contains, equals, not_equals) compare Field against
// Value. Temporal ops compare Field against Time: OpBefore matches records
// strictly earlier than Time, OpAfter strictly later.
type Cond struct {
	Field Field
	Op    Op
	Value string
	Time  time.Time
}

func (Cond) exprNode() {}

// And matches when every child matches.
type And struct {
	Exprs []Expr
}

func (And) exprNode() {}

// Or matches when at least one child matches.
type Or struct {
	Exprs []Expr
}

func (Or) exprNode() {}

// Validate checks that e is well formed: known fields, ops valid for the
// field type, and no empty And/Or nodes. Empty combinators are rejected so a
// store is never asked to match "everything" implicitly.
func Validate(e Expr) error {
	switch x := e.(type) {
	case nil:
		return fmt.Errorf("nil expression")
	case Cond:
		return validateCond(x)
	case *Cond:
		return validateCond(*x)
	case And:
		return validateChildren("and", x.Exprs)
	case *And:
		return validateChildren("and", x.Exprs)
	case Or:
		return validateChildren("or", x.Exprs)
	case *Or:
		return validateChildren("or", x.Exprs)
	default:
		return fmt.Errorf("unsupported expression type: %T", e)
	}
}

func validateChildren(kind string, exprs []Expr) error {
	if len(exprs) == 0 {
		return fmt.Errorf("empty %s expression", kind)
	}
	for i, child := range exprs {
		if err := Validate(child); err != nil {
			return fmt.Errorf("%s[%d]: %w", kind, i, err)
		}
	}
	return nil
}

func validateCond(c Cond) error {
	if !c.Field.Valid() {
		return fmt.Errorf("unknown field %q", c.Field)
	}
	switch c.Op {
	case OpContains, OpNotContains, OpEquals, OpNotEquals:
		if !c.Field.IsText() {
			return fmt.Errorf("op %s requires a text field, got %q", c.Op, c.Field)
		}
	case OpBefore, OpAfter:
		if c.Field != FieldDate {
			return fmt.Errorf("op %s requires the date field, got %q", c.Op, c.Field)
		}
	default:
		return fmt.Errorf("unknown op %s", c.Op)
	}
	return nil
}
