package rulesource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/mailrules/filter"
	"github.com/liamcoop/mailrules/rules"
)

const legacyJSON = `[
  {
    "id": "r1",
    "root_predicate": "all",
    "rules": [
      {"field": "from", "predicate": "equals", "value": "a@x.com"},
      {"field": "Subject", "predicate": "does not contain", "value": "newsletter"},
      {"field": "received", "predicate": "less than", "value": 7}
    ],
    "actions": [
      {"action": "Mark as", "field": "read"},
      {"action": "Move Message", "field": "Receipts"}
    ]
  }
]`

const canonicalYAML = `
rules:
  - id: archive-old
    root_predicate: ANY
    rules:
      - field: date
        predicate: newer_than_days
        value: "3"
      - field: body
        predicate: not_equals
        value: ""
    actions:
      - action: move
        value: Archive
`

func TestParseLegacyJSON(t *testing.T) {
	defs, err := Parse([]byte(legacyJSON))
	require.NoError(t, err)
	require.Len(t, defs, 1)

	want := rules.Rule{
		ID:         "r1",
		Combinator: rules.CombinatorAll,
		Conditions: []rules.Condition{
			{Field: filter.FieldSender, Predicate: rules.PredicateEquals, Value: "a@x.com"},
			{Field: filter.FieldSubject, Predicate: rules.PredicateNotContains, Value: "newsletter"},
			{Field: filter.FieldDate, Predicate: rules.PredicateOlderThanDays, Value: 7},
		},
		Actions: []rules.Action{
			{Kind: rules.ActionSetStatus, Parameter: rules.StatusRead},
			{Kind: rules.ActionMove, Parameter: "Receipts"},
		},
	}
	assert.Equal(t, want, defs[0])
}

func TestParseCanonicalYAML(t *testing.T) {
	defs, err := Parse([]byte(canonicalYAML))
	require.NoError(t, err)
	require.Len(t, defs, 1)

	r := defs[0]
	assert.Equal(t, "archive-old", r.ID)
	assert.Equal(t, rules.CombinatorAny, r.Combinator)
	assert.Equal(t, rules.PredicateNewerThanDays, r.Conditions[0].Predicate)
	assert.Equal(t, "3", r.Conditions[0].Value)
	assert.Equal(t, filter.FieldBody, r.Conditions[1].Field)
	assert.Equal(t, []rules.Action{{Kind: rules.ActionMove, Parameter: "Archive"}}, r.Actions)
}

func TestParsePassesUnknownNamesThrough(t *testing.T) {
	defs, err := Parse([]byte(`[{"id": "x", "root_predicate": "some", "rules": [{"field": "cc", "predicate": "matches_regex", "value": ".*"}], "actions": [{"action": "Forward", "value": "b@x.com"}]}]`))
	require.NoError(t, err)
	require.Len(t, defs, 1)

	r := defs[0]
	assert.Equal(t, rules.Combinator("SOME"), r.Combinator)
	assert.Equal(t, filter.Field("cc"), r.Conditions[0].Field)
	assert.Equal(t, rules.PredicateKind("matches_regex"), r.Conditions[0].Predicate)
	assert.Equal(t, rules.ActionKind("forward"), r.Actions[0].Kind)
}

func TestParseEmptyAndInvalid(t *testing.T) {
	defs, err := Parse([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, defs)

	defs, err = Parse([]byte("[]"))
	require.NoError(t, err)
	assert.Empty(t, defs)

	_, err = Parse([]byte(`"just a string"`))
	assert.Error(t, err)

	_, err = Parse([]byte(`[{"id": "r1", "rules": [`))
	assert.Error(t, err)
}

func TestParsedRulesPassValidation(t *testing.T) {
	defs, err := Parse([]byte(legacyJSON))
	require.NoError(t, err)

	for _, r := range defs {
		assert.NoError(t, rules.Validate(r), "rule %s", r.ID)
	}
}

func TestFileRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(canonicalYAML), 0o644))

	defs, err := NewFile(path).Rules(context.Background())
	require.NoError(t, err)
	assert.Len(t, defs, 1)

	_, err = NewFile(filepath.Join(t.TempDir(), "missing.json")).Rules(context.Background())
	assert.ErrorContains(t, err, "read rules file")
}
