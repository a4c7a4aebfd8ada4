package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/mailrules/filter"
	"github.com/liamcoop/mailrules/internal/logger"
	"github.com/liamcoop/mailrules/internal/metrics"
)

// Engine applies rules to the record store and the remote mailbox.
//
// Rules are processed one at a time in source order. For each rule every
// condition and action is validated before the store is touched, the store
// selects the matching records, and each action is applied with exactly one
// batched call per backend carrying every matched identifier. A failing rule
// never stops the run.
type Engine struct {
	store    RecordStore
	remote   MailboxClient // nil applies directives to the local store only
	selector *Selector
	now      func() time.Time
	log      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for age predicates and report timestamps.
func WithClock(now func() time.Time) Option {
	return func(en *Engine) { en.now = now }
}

// WithLogger sets the logger used for per-rule transitions.
func WithLogger(l *slog.Logger) Option {
	return func(en *Engine) { en.log = l }
}

// NewEngine creates an engine over store and remote. remote may be nil.
func NewEngine(store RecordStore, remote MailboxClient, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("record store is required")
	}
	en := &Engine{
		store:  store,
		remote: remote,
		now:    time.Now,
		log:    logger.Logger,
	}
	for _, opt := range opts {
		opt(en)
	}
	en.selector = NewSelector(NewPredicateCompiler(en.now), store)
	return en, nil
}

// plan is a rule that passed validation: its combined filter expression and
// one directive per action, in declaration order.
type plan struct {
	rule       Rule
	expr       filter.Expr
	directives []Directive
}

// Validate runs the compile phase for r without touching any backend.
func (en *Engine) Validate(r Rule) error {
	_, err := compileRule(en.selector, r)
	return err
}

// Validate checks r without a record store. Age predicates resolve against
// the wall clock.
func Validate(r Rule) error {
	_, err := compileRule(NewSelector(NewPredicateCompiler(nil), nil), r)
	return err
}

// ValidateAll checks defs as one run would. Each rule is validated on its own
// and any rule reusing an earlier id is rejected as a duplicate. errs[i] is
// the result for defs[i].
func ValidateAll(defs []Rule) []error {
	errs := make([]error, len(defs))
	seen := make(ruleIDs, len(defs))
	for i, r := range defs {
		if err := seen.add(r.ID); err != nil {
			errs[i] = err
			continue
		}
		errs[i] = Validate(r)
	}
	return errs
}

// ruleIDs holds the ids already met in one pass over a rule list.
type ruleIDs map[string]struct{}

// add records id and fails if it was recorded before.
func (s ruleIDs) add(id string) error {
	if _, dup := s[id]; dup {
		return fmt.Errorf("%w: duplicate rule id %q", ErrInvalidRule, id)
	}
	s[id] = struct{}{}
	return nil
}

func compileRule(sel *Selector, r Rule) (*plan, error) {
	if err := validateRuleShape(r); err != nil {
		return nil, err
	}
	expr, err := sel.Build(r.Combinator, r.Conditions)
	if err != nil {
		return nil, err
	}
	directives := make([]Directive, 0, len(r.Actions))
	for i, a := range r.Actions {
		d, err := Translate(a)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		directives = append(directives, d)
	}
	return &plan{rule: r, expr: expr, directives: directives}, nil
}

// Run loads every rule from source and applies them in order.
// The returned error is non-nil only when the source cannot be loaded or ctx
// is cancelled between rules; rule failures are reported in the Report.
func (en *Engine) Run(ctx context.Context, source RuleSource) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: en.now(),
	}
	start := time.Now()
	defer func() { report.Duration = time.Since(start) }()

	defs, err := source.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	en.log.Info("Starting rule run", "run_id", report.RunID, "rules", len(defs))

	seen := make(ruleIDs, len(defs))
	for _, r := range defs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var outcome *RuleOutcome
		if err := seen.add(r.ID); err != nil {
			outcome = &RuleOutcome{RuleID: r.ID, State: StateFailed, Err: err}
			en.finish(outcome)
		} else {
			outcome = en.ApplyRule(ctx, r)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	en.log.Info("Rule run finished", "run_id", report.RunID, "summary", report.Summary())
	return report, nil
}

// ApplyRule processes a single rule through compile, select and apply and
// returns its outcome. It never panics on bad input and never returns nil.
func (en *Engine) ApplyRule(ctx context.Context, r Rule) *RuleOutcome {
	start := time.Now()
	outcome := &RuleOutcome{RuleID: r.ID}
	defer func() {
		outcome.Duration = time.Since(start)
		en.finish(outcome)
	}()

	p, err := compileRule(en.selector, r)
	if err != nil {
		outcome.State = StateFailed
		outcome.Err = err
		return outcome
	}

	matches, err := en.selector.query(ctx, p.expr)
	if err != nil {
		outcome.State = StateFailed
		outcome.Err = err
		return outcome
	}
	outcome.Matched = len(matches)
	metrics.MatchedRecordsTotal.Add(float64(len(matches)))

	if len(matches) == 0 {
		outcome.State = StateSkipped
		return outcome
	}

	for i, d := range p.directives {
		result := ActionResult{Action: r.Actions[i], Directive: d}
		if err := en.apply(ctx, r.Actions[i], d, matches); err != nil {
			// Earlier actions stay applied; each one is idempotent on rerun.
			result.Err = err
			outcome.Actions = append(outcome.Actions, result)
			outcome.State = StateFailed
			outcome.Err = err
			return outcome
		}
		result.Applied = true
		outcome.Actions = append(outcome.Actions, result)
	}

	outcome.State = StateApplied
	return outcome
}

// apply issues one remote call (when a remote is configured) followed by one
// local call for a single action. Each backend receives its own copy of the
// match set.
func (en *Engine) apply(ctx context.Context, a Action, d Directive, matches MatchSet) error {
	if en.remote != nil {
		ids := slices.Clone(matches)
		err := d.ApplyRemote(ctx, en.remote, ids)
		metrics.ObserveMutation(BackendRemote, err)
		if err != nil {
			return &MutationError{Action: a, Backend: BackendRemote, IDs: ids, Err: err}
		}
	}

	ids := slices.Clone(matches)
	err := d.ApplyLocal(ctx, en.store, ids)
	metrics.ObserveMutation(BackendLocal, err)
	if err != nil {
		return &MutationError{Action: a, Backend: BackendLocal, IDs: ids, Err: err}
	}
	return nil
}

func (en *Engine) finish(o *RuleOutcome) {
	metrics.RulesTotal.WithLabelValues(string(o.State)).Inc()
	metrics.RuleDuration.Observe(o.Duration.Seconds())

	args := []any{"rule_id", o.RuleID, "state", o.State, "matched", o.Matched}
	if o.Err != nil {
		en.log.Error("Rule failed", append(args, "error", o.Err)...)
		return
	}
	en.log.Info("Rule processed", args...)
}
