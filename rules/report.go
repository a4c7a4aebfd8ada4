package rules

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the terminal state of one rule in a run.
type State string

const (
	StateApplied State = "Applied"
	StateSkipped State = "Skipped"
	StateFailed  State = "Failed"
)

// ActionResult is the outcome of one action of a rule.
type ActionResult struct {
	Action    Action
	Directive Directive
	Applied   bool
	Err       error
}

// RuleOutcome is the per-rule entry of a run report.
type RuleOutcome struct {
	RuleID   string
	State    State
	Matched  int
	Actions  []ActionResult
	Err      error
	Duration time.Duration
}

// Report summarizes one run over all loaded rules, in source order.
type Report struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Outcomes  []*RuleOutcome
}

// Failed reports whether any rule ended in StateFailed.
func (r *Report) Failed() bool {
	return r.Count(StateFailed) > 0
}

// Count returns the number of rules that ended in state.
func (r *Report) Count(state State) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == state {
			n++
		}
	}
	return n
}

// Summary is a one-line description of the run.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d rules: %d applied, %d skipped, %d failed",
		len(r.Outcomes), r.Count(StateApplied), r.Count(StateSkipped), r.Count(StateFailed))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (a ActionResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Action    string    `json:"action"`
		Parameter string    `json:"parameter"`
		Directive Directive `json:"directive"`
		Applied   bool      `json:"applied"`
		Error     string    `json:"error,omitempty"`
	}{
		Action:    string(a.Action.Kind),
		Parameter: a.Action.Parameter,
		Directive: a.Directive,
		Applied:   a.Applied,
		Error:     errString(a.Err),
	})
}

func (o *RuleOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RuleID     string         `json:"rule_id"`
		State      State          `json:"state"`
		Matched    int            `json:"matched"`
		Actions    []ActionResult `json:"actions,omitempty"`
		Error      string         `json:"error,omitempty"`
		DurationMS int64          `json:"duration_ms"`
	}{
		RuleID:     o.RuleID,
		State:      o.State,
		Matched:    o.Matched,
		Actions:    o.Actions,
		Error:      errString(o.Err),
		DurationMS: o.Duration.Milliseconds(),
	})
}

func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RunID      string         `json:"run_id"`
		StartedAt  time.Time      `json:"started_at"`
		DurationMS int64          `json:"duration_ms"`
		Applied    int            `json:"applied"`
		Skipped    int            `json:"skipped"`
		Failed     int            `json:"failed"`
		Outcomes   []*RuleOutcome `json:"outcomes"`
	}{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
		Applied:    r.Count(StateApplied),
		Skipped:    r.Count(StateSkipped),
		Failed:     r.Count(StateFailed),
		Outcomes:   r.Outcomes,
	})
}
