package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/liamcoop/mailrules/filter"
)

// PredicateCompiler converts one Condition into a store-level filter
// expression. It is a pure mapping; age predicates are resolved against the
// compiler's clock at compile time.
type PredicateCompiler struct {
	now func() time.Time
}

// NewPredicateCompiler creates a compiler that resolves age predicates
// against now. A nil now uses time.Now.
func NewPredicateCompiler(now func() time.Time) *PredicateCompiler {
	if now == nil {
		now = time.Now
	}
	return &PredicateCompiler{now: now}
}

// Compile translates c into a filter.Cond.
// Unknown predicates, predicates that do not apply to the field's type, and
// ill-typed values all fail with ErrInvalidPredicate.
func (pc *PredicateCompiler) Compile(c Condition) (filter.Expr, error) {
	if !c.Field.Valid() {
		return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidPredicate, c.Field)
	}

	switch c.Predicate {
	case PredicateContains, PredicateNotContains, PredicateEquals, PredicateNotEquals:
		if !c.Field.IsText() {
			return nil, fmt.Errorf("%w: %s requires a text field, got %q", ErrInvalidPredicate, c.Predicate, c.Field)
		}
		value, ok := c.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s on %s requires a string value, got %T", ErrInvalidPredicate, c.Predicate, c.Field, c.Value)
		}
		return filter.Cond{Field: c.Field, Op: textOps[c.Predicate], Value: value}, nil

	case PredicateOlderThanDays, PredicateNewerThanDays:
		if c.Field != filter.FieldDate {
			return nil, fmt.Errorf("%w: %s requires the date field, got %q", ErrInvalidPredicate, c.Predicate, c.Field)
		}
		days, err := ageDays(c.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPredicate, c.Predicate, err)
		}
		cutoff := pc.now().UTC().AddDate(0, 0, -days)
		op := filter.OpBefore
		if c.Predicate == PredicateNewerThanDays {
			op = filter.OpAfter
		}
		return filter.Cond{Field: c.Field, Op: op, Time: cutoff}, nil

	default:
		return nil, fmt.Errorf("%w: unknown predicate %q for field %q", ErrInvalidPredicate, c.Predicate, c.Field)
	}
}

var textOps = map[PredicateKind]filter.Op{
	PredicateContains:    filter.OpContains,
	PredicateNotContains: filter.OpNotContains,
	PredicateEquals:      filter.OpEquals,
	PredicateNotEquals:   filter.OpNotEquals,
}

// ageDays extracts a non-negative whole number of days from a decoded value.
func ageDays(v any) (int, error) {
	var n float64
	switch x := v.(type) {
	case int:
		n = float64(x)
	case int32:
		n = float64(x)
	case int64:
		n = float64(x)
	case uint:
		n = float64(x)
	case uint32:
		n = float64(x)
	case uint64:
		n = float64(x)
	case float64:
		n = x
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("value %q is not a number", x)
		}
		n = f
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("value %q is not a whole number of days", x)
		}
		n = float64(i)
	default:
		return 0, fmt.Errorf("value must be a whole number of days, got %T", v)
	}
	if n < 0 {
		return 0, fmt.Errorf("value must not be negative, got %v", n)
	}
	if n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, fmt.Errorf("value must be a whole number of days, got %v", n)
	}
	return int(n), nil
}
