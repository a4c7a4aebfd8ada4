package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liamcoop/mailrules/internal/logger"
	"github.com/liamcoop/mailrules/internal/metrics"
	"github.com/liamcoop/mailrules/rules"
	"github.com/liamcoop/mailrules/rulesource"
)

// NewRunCommand creates the run command.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Apply every rule once and exit",
		Long: `Load the rules file, then process each rule in order: validate it, select
the matching records and apply its actions.

Exits 1 if any rule ended Failed, 2 if the run could not start.`,
		Example: `  mailrules run --config mailrules.toml
  mailrules run --rules rules.json --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(cmd, opts)
		},
	}
}

func runRules(cmd *cobra.Command, opts *RootOptions) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	remote, closeRemote, err := openRemote(ctx, cfg.Remote)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRemote(); err != nil {
			logger.Warn("Failed to close remote mailbox", "error", err)
		}
	}()

	engine, err := rules.NewEngine(store, remote)
	if err != nil {
		return WrapExitError(ExitCommandError, "create engine", err)
	}

	report, runErr := engine.Run(ctx, rulesource.NewFile(cfg.RulesFile))
	if report == nil {
		return WrapExitError(ExitCommandError, "run rules", runErr)
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("Failed to write metrics", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	if err := printReport(cmd.OutOrStdout(), opts.Format, report); err != nil {
		return WrapExitError(ExitCommandError, "write report", err)
	}

	if runErr != nil {
		return WrapExitError(ExitCommandError, "run interrupted", runErr)
	}
	if report.Failed() {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d of %d rules failed", report.Count(rules.StateFailed), len(report.Outcomes)))
	}
	return nil
}

// printReport writes one line per rule followed by the summary, or the
// whole report as JSON.
func printReport(w io.Writer, format string, report *rules.Report) error {
	if format == "json" {
		return writeJSON(w, report)
	}

	for _, o := range report.Outcomes {
		var err error
		switch {
		case o.Err != nil:
			_, err = fmt.Fprintf(w, "%s\t%s\t%v\n", o.RuleID, o.State, o.Err)
		case o.State == rules.StateApplied:
			_, err = fmt.Fprintf(w, "%s\t%s\tmatched=%d\n", o.RuleID, o.State, o.Matched)
		default:
			_, err = fmt.Fprintf(w, "%s\t%s\n", o.RuleID, o.State)
		}
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, report.Summary())
	return err
}
