// Package rulesource loads rule definitions from JSON or YAML files.
//
// Both the canonical vocabulary (equals, older_than_days, set_status, ...)
// and the legacy rules.json vocabulary ("does not contain", "less than",
// "Mark as", "Move Message", action parameter under "field") are accepted and
// normalized. Names that are neither are passed through unchanged so the
// engine rejects that one rule and keeps going.
package rulesource

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/mailrules/filter"
	"github.com/liamcoop/mailrules/rules"
)

// File is a rules.RuleSource reading one file on every call.
type File struct {
	Path string
}

// NewFile creates a source over path.
func NewFile(path string) *File {
	return &File{Path: path}
}

// Rules reads and parses the file.
func (f *File) Rules(ctx context.Context) ([]rules.Rule, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	return defs, nil
}

type rawRule struct {
	ID            string         `yaml:"id"`
	RootPredicate string         `yaml:"root_predicate"`
	Rules         []rawCondition `yaml:"rules"`
	Actions       []rawAction    `yaml:"actions"`
}

type rawCondition struct {
	Field     string `yaml:"field"`
	Predicate string `yaml:"predicate"`
	Value     any    `yaml:"value"`
}

type rawAction struct {
	Action string `yaml:"action"`
	Field  string `yaml:"field"`
	Value  string `yaml:"value"`
}

type rawDocument struct {
	Rules []rawRule `yaml:"rules"`
}

// Parse decodes a rules document. The top level is either a list of rules
// or a mapping with a "rules" list. JSON is parsed as YAML.
func Parse(data []byte) ([]rules.Rule, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, nil
	}

	var raws []rawRule
	switch top := root.Content[0]; top.Kind {
	case yaml.SequenceNode:
		if err := top.Decode(&raws); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var doc rawDocument
		if err := top.Decode(&doc); err != nil {
			return nil, err
		}
		raws = doc.Rules
	default:
		return nil, fmt.Errorf("line %d: expected a list of rules or a mapping with a rules key", top.Line)
	}

	defs := make([]rules.Rule, 0, len(raws))
	for _, raw := range raws {
		defs = append(defs, normalize(raw))
	}
	return defs, nil
}

var (
	fieldAliases = map[string]filter.Field{
		"from":     filter.FieldSender,
		"received": filter.FieldDate,
	}

	predicateAliases = map[string]rules.PredicateKind{
		"does not contain": rules.PredicateNotContains,
		"does not equal":   rules.PredicateNotEquals,
		"less than":        rules.PredicateOlderThanDays,
		"greater than":     rules.PredicateNewerThanDays,
	}

	actionAliases = map[string]rules.ActionKind{
		"mark as":      rules.ActionSetStatus,
		"move message": rules.ActionMove,
	}
)

func normalize(raw rawRule) rules.Rule {
	r := rules.Rule{
		ID:         strings.TrimSpace(raw.ID),
		Combinator: rules.Combinator(strings.ToUpper(strings.TrimSpace(raw.RootPredicate))),
	}
	for _, c := range raw.Rules {
		r.Conditions = append(r.Conditions, rules.Condition{
			Field:     normalizeField(c.Field),
			Predicate: normalizePredicate(c.Predicate),
			Value:     c.Value,
		})
	}
	for _, a := range raw.Actions {
		param := a.Value
		if param == "" {
			param = a.Field
		}
		kind := normalizeAction(a.Action)
		if kind == rules.ActionSetStatus {
			param = strings.ToUpper(strings.TrimSpace(param))
		}
		r.Actions = append(r.Actions, rules.Action{Kind: kind, Parameter: param})
	}
	return r
}

func normalizeField(s string) filter.Field {
	key := strings.ToLower(strings.TrimSpace(s))
	if f, ok := fieldAliases[key]; ok {
		return f
	}
	if f := filter.Field(key); f.Valid() {
		return f
	}
	return filter.Field(s)
}

func normalizePredicate(s string) rules.PredicateKind {
	key := strings.ToLower(strings.TrimSpace(s))
	if p, ok := predicateAliases[key]; ok {
		return p
	}
	return rules.PredicateKind(key)
}

func normalizeAction(s string) rules.ActionKind {
	key := strings.ToLower(strings.TrimSpace(s))
	if a, ok := actionAliases[key]; ok {
		return a
	}
	return rules.ActionKind(key)
}
