package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/liamcoop/mailrules/rules"
	"github.com/liamcoop/mailrules/rulesource"
)

// ruleCheck is the validation result for one rule.
type ruleCheck struct {
	RuleID string `json:"rule_id"`
	Valid  bool   `json:"valid"`
	Error  string `json:"error,omitempty"`
}

type validateResult struct {
	Rules   []ruleCheck `json:"rules"`
	Valid   int         `json:"valid"`
	Invalid int         `json:"invalid"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every rule without touching any store",
		Long: `Parse the rules file and run the validation phase of each rule: field,
predicate, combinator and action checks, and duplicate ids.

Exits 1 if any rule is invalid.`,
		Example: `  mailrules validate --rules config/rules.json`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateRules(cmd, opts)
		},
	}
}

func validateRules(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := loadConfig(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	defs, err := rulesource.NewFile(cfg.RulesFile).Rules(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "load rules", err)
	}

	result := checkRules(defs)
	if err := printValidation(cmd.OutOrStdout(), opts.Format, result); err != nil {
		return WrapExitError(ExitCommandError, "write result", err)
	}
	if result.Invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d rules are invalid", result.Invalid, len(defs)))
	}
	return nil
}

func checkRules(defs []rules.Rule) validateResult {
	result := validateResult{Rules: make([]ruleCheck, 0, len(defs))}
	for i, err := range rules.ValidateAll(defs) {
		check := ruleCheck{RuleID: defs[i].ID, Valid: err == nil}
		if err != nil {
			check.Error = err.Error()
			result.Invalid++
		} else {
			result.Valid++
		}
		result.Rules = append(result.Rules, check)
	}
	return result
}

func printValidation(w io.Writer, format string, result validateResult) error {
	if format == "json" {
		return writeJSON(w, result)
	}
	for _, c := range result.Rules {
		var err error
		if c.Valid {
			_, err = fmt.Fprintf(w, "%s\tok\n", c.RuleID)
		} else {
			_, err = fmt.Fprintf(w, "%s\tinvalid\t%s\n", c.RuleID, c.Error)
		}
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d rules: %d valid, %d invalid\n", len(result.Rules), result.Valid, result.Invalid)
	return err
}
