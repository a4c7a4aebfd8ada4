// Package config loads the mailrules TOML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// StoreConfig selects the local record store.
type StoreConfig struct {
	Backend string `toml:"backend"` // "sqlite" or "postgres"
	Path    string `toml:"path"`    // SQLite database file
	DSN     string `toml:"dsn"`     // Postgres connection string; DATABASE_URL overrides
	Table   string `toml:"table"`
}

// GmailConfig configures the Gmail REST client.
type GmailConfig struct {
	UserID   string `toml:"user_id"`
	BaseURL  string `toml:"base_url"`
	TokenEnv string `toml:"token_env"` // environment variable holding the OAuth2 access token
	Timeout  string `toml:"timeout"`   // HTTP timeout (e.g., "30s")
}

// GetTimeout parses Timeout.
func (g *GmailConfig) GetTimeout() (time.Duration, error) {
	if g.Timeout == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(g.Timeout)
}

// IMAPConfig configures the IMAP client.
type IMAPConfig struct {
	Address     string `toml:"address"`
	Username    string `toml:"username"`
	PasswordEnv string `toml:"password_env"` // environment variable holding the password
	Mailbox     string `toml:"mailbox"`
	Insecure    bool   `toml:"insecure"`
}

// RemoteConfig selects the remote mailbox service.
type RemoteConfig struct {
	Kind  string      `toml:"kind"` // "none", "gmail" or "imap"
	Gmail GmailConfig `toml:"gmail"`
	IMAP  IMAPConfig  `toml:"imap"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "text"
}

type MetricsConfig struct {
	Textfile string `toml:"textfile"` // Prometheus textfile written after each run; empty disables
}

// Config is the complete mailrules configuration.
type Config struct {
	RulesFile string        `toml:"rules_file"`
	Store     StoreConfig   `toml:"store"`
	Remote    RemoteConfig  `toml:"remote"`
	Logging   LoggingConfig `toml:"logging"`
	Metrics   MetricsConfig `toml:"metrics"`
}

// DefaultConfig returns the configuration used when no file is given: the
// rules and emails database under ./config and no remote mailbox.
func DefaultConfig() Config {
	return Config{
		RulesFile: "config/rules.json",
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    "config/emails.db",
			Table:   "emails",
		},
		Remote: RemoteConfig{
			Kind: "none",
			Gmail: GmailConfig{
				UserID:   "me",
				TokenEnv: "GMAIL_ACCESS_TOKEN",
				Timeout:  "30s",
			},
			IMAP: IMAPConfig{
				Address:     "imap.gmail.com:993",
				PasswordEnv: "IMAP_PASSWORD",
				Mailbox:     "INBOX",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path loads defaults only.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Store.DSN = dsn
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks every field and names the offending key.
func (c *Config) Validate() error {
	if c.RulesFile == "" {
		return fmt.Errorf("rules_file is required")
	}

	switch c.Store.Backend {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn (or DATABASE_URL) is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend: unknown backend %q (use sqlite or postgres)", c.Store.Backend)
	}
	if c.Store.Table == "" {
		return fmt.Errorf("store.table is required")
	}

	switch c.Remote.Kind {
	case "", "none":
	case "gmail":
		if c.Remote.Gmail.TokenEnv == "" {
			return fmt.Errorf("remote.gmail.token_env is required")
		}
		if _, err := c.Remote.Gmail.GetTimeout(); err != nil {
			return fmt.Errorf("remote.gmail.timeout: %w", err)
		}
	case "imap":
		if c.Remote.IMAP.Address == "" {
			return fmt.Errorf("remote.imap.address is required")
		}
		if c.Remote.IMAP.Username == "" {
			return fmt.Errorf("remote.imap.username is required")
		}
	default:
		return fmt.Errorf("remote.kind: unknown kind %q (use none, gmail or imap)", c.Remote.Kind)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text", "console":
	default:
		return fmt.Errorf("logging.format: unknown format %q (use json or text)", c.Logging.Format)
	}
	return nil
}
