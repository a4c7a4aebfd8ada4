package rules

import (
	"context"
	"slices"
)

// RuleSource supplies the rule definitions for one run, in application order.
type RuleSource interface {
	Rules(ctx context.Context) ([]Rule, error)
}

// StaticSource is a RuleSource over an in-memory slice.
type StaticSource []Rule

// Rules returns a copy of the rules.
func (s StaticSource) Rules(ctx context.Context) ([]Rule, error) {
	return slices.Clone(s), nil
}
