package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/mailrules/internal/logger"
	"github.com/liamcoop/mailrules/records"
)

// NewImportCommand creates the import command.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Load records into the local store",
		Long: `Read a JSON array of records and upsert them into the configured store.
Use "-" to read from stdin.

Each record has the keys id, subject, sender, date (RFC 3339), body, status
and mailbox.`,
		Example: `  mailrules import messages.json
  fetch-inbox | mailrules import -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return importRecords(cmd, opts, args[0])
		},
	}
}

func importRecords(cmd *cobra.Command, opts *RootOptions, path string) error {
	cfg, err := loadConfig(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var data []byte
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "read records", err)
	}

	var recs []records.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return WrapExitError(ExitCommandError, "decode records", err)
	}

	store, err := openStore(cmd.Context(), cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Put(cmd.Context(), recs...); err != nil {
		return WrapExitError(ExitCommandError, "store records", err)
	}
	logger.Info("Records imported", "count", len(recs), "backend", cfg.Store.Backend)

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]int{"imported": len(recs)})
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d records\n", len(recs))
	return err
}
