package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/liamcoop/mailrules/config"
	"github.com/liamcoop/mailrules/internal/logger"
	"github.com/liamcoop/mailrules/migrations"
)

func main() {
	var configPath string
	var target string
	var command string

	flag.StringVar(&configPath, "config", "", "mailrules config file; selects backend and database")
	flag.StringVar(&target, "database", "", "SQLite path or Postgres URL, overrides the config")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, version, force")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", "error", err)
	}
	if target == "" {
		target = cfg.Store.Path
		if cfg.Store.Backend == "postgres" {
			target = cfg.Store.DSN
		}
	}
	if cfg.Store.Table != "emails" {
		logger.Warn("Migrations create the emails table; store.table differs", "table", cfg.Store.Table)
	}

	if err := run(cfg.Store.Backend, target, command, flag.Args()); err != nil {
		logger.Fatal("Migration failed", "command", command, "error", err)
	}
}

// run executes one migration command against the database.
func run(backend, target, command string, args []string) error {
	m, err := newMigrate(backend, target)
	if err != nil {
		return err
	}
	defer m.Close()

	switch command {
	case "up":
		logger.Info("Running migrations up", "backend", backend)
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("No migrations to run (database is up to date)")
			return nil
		}
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("Migrations completed")

	case "down":
		logger.Info("Rolling back migrations", "backend", backend)
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("roll back migrations: %w", err)
		}
		logger.Info("Rollback completed")

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("No migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("get version: %w", err)
		}
		logger.Info("Current version", "version", version, "dirty", dirty)

	case "force":
		if len(args) < 1 {
			return errors.New("force requires a version number: -command force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version number: %w", err)
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
		logger.Info("Forced version", "version", version)

	default:
		return fmt.Errorf("unknown command: %s (use: up, down, version, force)", command)
	}
	return nil
}

// newMigrate opens target and pairs it with the embedded migrations for
// backend. Closing the Migrate closes the database.
func newMigrate(backend, target string) (*migrate.Migrate, error) {
	if target == "" {
		return nil, errors.New("database is required: use -database or -config")
	}

	files, err := migrations.FS(backend)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	source, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	var (
		db     *sql.DB
		driver database.Driver
	)
	switch backend {
	case "sqlite":
		if db, err = sql.Open("sqlite", target); err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	case "postgres":
		if db, err = sql.Open("postgres", target); err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, backend, driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}
