package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/liamcoop/mailrules/filter"
)

// PostgresStore is a Store backed by a PostgreSQL table created by the
// migrations under migrations/postgres. contains uses ILIKE.
type PostgresStore struct {
	db       *sql.DB
	table    string
	compiler *filter.SQLCompiler
}

// NewPostgresStore creates a store over table in db.
func NewPostgresStore(db *sql.DB, table string) (*PostgresStore, error) {
	if !filter.ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresStore{
		db:       db,
		table:    table,
		compiler: filter.NewSQLCompiler(filter.DialectPostgres, table),
	}, nil
}

// OpenPostgres connects with dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s, err := NewPostgresStore(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Query(ctx context.Context, expr filter.Expr) ([]string, error) {
	query, args, err := s.compiler.CompileSelect(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter: %w", err)
	}
	return queryIDs(ctx, s.db, query, args)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, ids []string, status string) error {
	return s.update(ctx, "status", status, ids)
}

func (s *PostgresStore) UpdateMailbox(ctx context.Context, ids []string, mailbox string) error {
	return s.update(ctx, "mailbox", mailbox, ids)
}

func (s *PostgresStore) update(ctx context.Context, column, value string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf("UPDATE %s SET %s = $1, updated_at = NOW() WHERE id = ANY($2)", s.table, column)
	if _, err := s.db.ExecContext(ctx, query, value, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}
	return nil
}

// Put upserts records by id in one transaction.
func (s *PostgresStore) Put(ctx context.Context, recs ...Record) error {
	if err := validateRecords(recs); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, subject, sender, date, body, status, mailbox)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			subject = EXCLUDED.subject,
			sender = EXCLUDED.sender,
			date = EXCLUDED.date,
			body = EXCLUDED.body,
			status = EXCLUDED.status,
			mailbox = EXCLUDED.mailbox,
			updated_at = NOW()`, s.table)

	for _, r := range recs {
		if _, err := tx.ExecContext(ctx, query, r.ID, r.Subject, r.Sender, nullTime(r.Date), r.Body, r.Status, r.Mailbox); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	query := fmt.Sprintf(`
		SELECT id, COALESCE(subject, ''), COALESCE(sender, ''), date,
		       COALESCE(body, ''), COALESCE(status, ''), COALESCE(mailbox, '')
		FROM %s
		WHERE id = $1`, s.table)

	var (
		r    Record
		date sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&r.ID, &r.Subject, &r.Sender, &date, &r.Body, &r.Status, &r.Mailbox)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get record: %w", err)
	}
	if date.Valid {
		r.Date = date.Time.UTC()
	}
	return r, nil
}
