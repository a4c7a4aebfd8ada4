package rules

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/liamcoop/mailrules/filter"
)

func TestCompileTextPredicates(t *testing.T) {
	pc := NewPredicateCompiler(fixedClock)

	testCases := []struct {
		predicate PredicateKind
		wantOp    filter.Op
	}{
		{PredicateContains, filter.OpContains},
		{PredicateNotContains, filter.OpNotContains},
		{PredicateEquals, filter.OpEquals},
		{PredicateNotEquals, filter.OpNotEquals},
	}

	for _, tc := range testCases {
		for _, field := range []filter.Field{filter.FieldSubject, filter.FieldSender, filter.FieldStatus, filter.FieldMailbox, filter.FieldBody} {
			t.Run(string(tc.predicate)+"/"+string(field), func(t *testing.T) {
				expr, err := pc.Compile(Condition{Field: field, Predicate: tc.predicate, Value: "Interview"})
				if err != nil {
					t.Fatalf("Compile() failed: %v", err)
				}
				cond, ok := expr.(filter.Cond)
				if !ok {
					t.Fatalf("Compile() returned %T, want filter.Cond", expr)
				}
				if cond.Field != field || cond.Op != tc.wantOp || cond.Value != "Interview" {
					t.Errorf("Compile() = %+v", cond)
				}
			})
		}
	}
}

func TestCompileAgePredicates(t *testing.T) {
	pc := NewPredicateCompiler(fixedClock)

	testCases := []struct {
		name   string
		cond   Condition
		wantOp filter.Op
		want   time.Time
	}{
		{
			name:   "older than int",
			cond:   Condition{Field: filter.FieldDate, Predicate: PredicateOlderThanDays, Value: 7},
			wantOp: filter.OpBefore,
			want:   fixedNow.AddDate(0, 0, -7),
		},
		{
			name:   "newer than float",
			cond:   Condition{Field: filter.FieldDate, Predicate: PredicateNewerThanDays, Value: float64(2)},
			wantOp: filter.OpAfter,
			want:   fixedNow.AddDate(0, 0, -2),
		},
		{
			name:   "json number",
			cond:   Condition{Field: filter.FieldDate, Predicate: PredicateOlderThanDays, Value: json.Number("30")},
			wantOp: filter.OpBefore,
			want:   fixedNow.AddDate(0, 0, -30),
		},
		{
			name:   "numeric string",
			cond:   Condition{Field: filter.FieldDate, Predicate: PredicateNewerThanDays, Value: " 5 "},
			wantOp: filter.OpAfter,
			want:   fixedNow.AddDate(0, 0, -5),
		},
		{
			name:   "zero days",
			cond:   Condition{Field: filter.FieldDate, Predicate: PredicateOlderThanDays, Value: 0},
			wantOp: filter.OpBefore,
			want:   fixedNow,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expr, err := pc.Compile(tc.cond)
			if err != nil {
				t.Fatalf("Compile() failed: %v", err)
			}
			cond := expr.(filter.Cond)
			if cond.Op != tc.wantOp {
				t.Errorf("Op = %s, want %s", cond.Op, tc.wantOp)
			}
			if !cond.Time.Equal(tc.want) {
				t.Errorf("Time = %v, want %v", cond.Time, tc.want)
			}
		})
	}
}

func TestCompileRejects(t *testing.T) {
	pc := NewPredicateCompiler(fixedClock)

	testCases := []struct {
		name string
		cond Condition
	}{
		{"unknown predicate", Condition{Field: filter.FieldSubject, Predicate: "matches_regex", Value: ".*"}},
		{"unknown field", Condition{Field: "cc", Predicate: PredicateContains, Value: "x"}},
		{"text predicate on date", Condition{Field: filter.FieldDate, Predicate: PredicateEquals, Value: "2026-01-01"}},
		{"age predicate on sender", Condition{Field: filter.FieldSender, Predicate: PredicateNewerThanDays, Value: 1}},
		{"number for text predicate", Condition{Field: filter.FieldSubject, Predicate: PredicateContains, Value: 42}},
		{"nil value", Condition{Field: filter.FieldSubject, Predicate: PredicateEquals}},
		{"negative days", Condition{Field: filter.FieldDate, Predicate: PredicateOlderThanDays, Value: -3}},
		{"fractional days", Condition{Field: filter.FieldDate, Predicate: PredicateOlderThanDays, Value: 1.5}},
		{"word for days", Condition{Field: filter.FieldDate, Predicate: PredicateOlderThanDays, Value: "week"}},
		{"bool for days", Condition{Field: filter.FieldDate, Predicate: PredicateOlderThanDays, Value: true}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := pc.Compile(tc.cond)
			if !errors.Is(err, ErrInvalidPredicate) {
				t.Errorf("Compile() err = %v, want ErrInvalidPredicate", err)
			}
		})
	}
}

func TestSelectorBuild(t *testing.T) {
	sel := NewSelector(NewPredicateCompiler(fixedClock), &fakeStore{})
	conds := []Condition{
		{Field: filter.FieldSender, Predicate: PredicateEquals, Value: "a@x.com"},
		{Field: filter.FieldSubject, Predicate: PredicateContains, Value: "Interview"},
	}

	all, err := sel.Build(CombinatorAll, conds)
	if err != nil {
		t.Fatalf("Build(ALL) failed: %v", err)
	}
	if and, ok := all.(filter.And); !ok || len(and.Exprs) != 2 {
		t.Errorf("Build(ALL) = %#v, want And of 2", all)
	}

	anyExpr, err := sel.Build(CombinatorAny, conds)
	if err != nil {
		t.Fatalf("Build(ANY) failed: %v", err)
	}
	if or, ok := anyExpr.(filter.Or); !ok || len(or.Exprs) != 2 {
		t.Errorf("Build(ANY) = %#v, want Or of 2", anyExpr)
	}

	if _, err := sel.Build(CombinatorAll, nil); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("Build(no conditions) err = %v, want ErrInvalidRule", err)
	}
	if _, err := sel.Build("NONE", conds); !errors.Is(err, ErrInvalidCombinator) {
		t.Errorf("Build(NONE) err = %v, want ErrInvalidCombinator", err)
	}

	bad := append(conds, Condition{Field: filter.FieldBody, Predicate: "sounds_like", Value: "x"})
	_, err = sel.Build(CombinatorAny, bad)
	if !errors.Is(err, ErrInvalidPredicate) || !strings.Contains(err.Error(), "condition 2") {
		t.Errorf("Build(bad) err = %v, want ErrInvalidPredicate naming condition 2", err)
	}
}

func TestSelectorSelect(t *testing.T) {
	store := &fakeStore{ids: []string{"1", "3", "3"}}
	sel := NewSelector(NewPredicateCompiler(fixedClock), store)

	matches, err := sel.Select(context.Background(), CombinatorAny, []Condition{
		{Field: filter.FieldSubject, Predicate: PredicateContains, Value: "x"},
	})
	if err != nil {
		t.Fatalf("Select() failed: %v", err)
	}
	if len(matches) != 2 || matches[0] != "1" || matches[1] != "3" {
		t.Errorf("Select() = %v, want [1 3]", matches)
	}
	if len(store.queries) != 1 {
		t.Errorf("store queried %d times, want 1", len(store.queries))
	}
	if err := filter.Validate(store.queries[0]); err != nil {
		t.Errorf("store received invalid expression: %v", err)
	}
}
