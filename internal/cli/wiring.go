package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/oauth2"

	"github.com/liamcoop/mailrules/config"
	"github.com/liamcoop/mailrules/internal/logger"
	"github.com/liamcoop/mailrules/mailbox"
	"github.com/liamcoop/mailrules/records"
	"github.com/liamcoop/mailrules/rules"
)

// loadConfig loads the config file named by opts and applies the flag
// overrides. Logging is initialized from the result.
func loadConfig(opts *RootOptions, stderr io.Writer) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "load config", err)
	}
	if opts.Rules != "" {
		cfg.RulesFile = opts.Rules
	}
	if err := logger.Initialize(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: stderr,
	}); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "init logging", err)
	}
	return cfg, nil
}

// openStore opens the configured record store.
func openStore(ctx context.Context, cfg config.StoreConfig) (records.Store, error) {
	var (
		store records.Store
		err   error
	)
	switch cfg.Backend {
	case "postgres":
		store, err = records.OpenPostgres(ctx, cfg.DSN, cfg.Table)
	default:
		store, err = records.OpenSQLite(ctx, cfg.Path, cfg.Table)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open %s store", cfg.Backend), err)
	}
	return store, nil
}

// openRemote builds the configured mailbox client. A nil client with a nil
// error means directives are applied to the local store only. The returned
// close function is never nil.
func openRemote(ctx context.Context, cfg config.RemoteConfig) (rules.MailboxClient, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Kind {
	case "gmail":
		token := os.Getenv(cfg.Gmail.TokenEnv)
		if token == "" {
			return nil, noop, NewExitError(ExitCommandError,
				fmt.Sprintf("gmail access token not set (export %s)", cfg.Gmail.TokenEnv))
		}
		timeout, err := cfg.Gmail.GetTimeout()
		if err != nil {
			return nil, noop, WrapExitError(ExitCommandError, "remote.gmail.timeout", err)
		}
		httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		}))
		httpClient.Timeout = timeout

		client := mailbox.NewGmailClient(mailbox.GmailConfig{
			BaseURL:    cfg.Gmail.BaseURL,
			UserID:     cfg.Gmail.UserID,
			HTTPClient: httpClient,
		})
		logger.Info("Using Gmail remote", "user_id", cfg.Gmail.UserID, "timeout", timeout)
		return client, noop, nil

	case "imap":
		client, err := mailbox.DialIMAP(ctx, mailbox.IMAPConfig{
			Address:  cfg.IMAP.Address,
			Username: cfg.IMAP.Username,
			Password: os.Getenv(cfg.IMAP.PasswordEnv),
			Mailbox:  cfg.IMAP.Mailbox,
			Insecure: cfg.IMAP.Insecure,
		})
		if err != nil {
			return nil, noop, WrapExitError(ExitCommandError, "connect imap", err)
		}
		return client, client.Close, nil

	default:
		logger.Info("No remote mailbox configured, applying rules to the local store only")
		return nil, noop, nil
	}
}
