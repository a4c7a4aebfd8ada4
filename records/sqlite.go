package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liamcoop/mailrules/filter"
	"github.com/liamcoop/mailrules/internal/retry"

	_ "modernc.org/sqlite"
)

// maxSQLiteParams bounds the ids bound into one UPDATE ... IN (...).
const maxSQLiteParams = 500

// SQLiteStore is a Store backed by the emails table of a SQLite database.
//
// Dates are stored as UTC text in filter.SQLiteTimeLayout, or NULL when the
// record is undated. contains uses
// LIKE, which SQLite folds for ASCII letters only.
type SQLiteStore struct {
	db       *sql.DB
	table    string
	compiler *filter.SQLCompiler
}

// OpenSQLite opens (or creates) the database at path and ensures the table
// exists.
func OpenSQLite(ctx context.Context, path, table string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s, err := NewSQLiteStore(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// NewSQLiteStore wraps an open database. The table is not created.
func NewSQLiteStore(db *sql.DB, table string) (*SQLiteStore, error) {
	if !filter.ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SQLiteStore{
		db:       db,
		table:    table,
		compiler: filter.NewSQLCompiler(filter.DialectSQLite, table),
	}, nil
}

// Init creates the table and its indexes if they do not exist. The column
// set matches databases written by earlier fetchers, so an existing
// emails.db is used as is.
func (s *SQLiteStore) Init(ctx context.Context) error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id      TEXT PRIMARY KEY,
		subject TEXT,
		sender  TEXT,
		date    TEXT,
		body    TEXT,
		status  TEXT,
		mailbox TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_%[1]s_date ON %[1]s(date);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_sender ON %[1]s(sender);
	`, s.table)
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Query(ctx context.Context, expr filter.Expr) ([]string, error) {
	query, args, err := s.compiler.CompileSelect(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter: %w", err)
	}
	return queryIDs(ctx, s.db, query, args)
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, ids []string, status string) error {
	return s.update(ctx, "status", status, ids)
}

func (s *SQLiteStore) UpdateMailbox(ctx context.Context, ids []string, mailbox string) error {
	return s.update(ctx, "mailbox", mailbox, ids)
}

// update sets column to value on every id inside one transaction, binding at
// most maxSQLiteParams ids per statement.
func (s *SQLiteStore) update(ctx context.Context, column, value string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return retry.DoSQLite(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		for start := 0; start < len(ids); start += maxSQLiteParams {
			chunk := ids[start:min(start+maxSQLiteParams, len(ids))]
			query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE id IN (%s)",
				s.table, column, filter.DialectSQLite.Placeholders(2, len(chunk)))
			args := make([]any, 0, len(chunk)+1)
			args = append(args, value)
			for _, id := range chunk {
				args = append(args, id)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("update %s: %w", column, err)
			}
		}
		return tx.Commit()
	})
}

// Put upserts records by id.
func (s *SQLiteStore) Put(ctx context.Context, recs ...Record) error {
	if err := validateRecords(recs); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, subject, sender, date, body, status, mailbox)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			sender  = excluded.sender,
			date    = excluded.date,
			body    = excluded.body,
			status  = excluded.status,
			mailbox = excluded.mailbox`, s.table)

	return retry.DoSQLite(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range recs {
			if _, err := stmt.ExecContext(ctx, r.ID, r.Subject, r.Sender,
				sqliteDate(r.Date), r.Body, r.Status, r.Mailbox); err != nil {
				return fmt.Errorf("insert record %s: %w", r.ID, err)
			}
		}
		return tx.Commit()
	})
}

// Get returns the record with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	query := fmt.Sprintf(`
		SELECT id, subject, sender, date, body, status, mailbox
		FROM %s WHERE id = ?`, s.table)

	var (
		r                                     Record
		subject, sender, date, body, st, mbox sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&r.ID, &subject, &sender, &date, &body, &st, &mbox)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get record: %w", err)
	}
	r.Subject, r.Sender, r.Body = subject.String, sender.String, body.String
	r.Status, r.Mailbox = st.String, mbox.String
	r.Date = parseStoredTime(date.String)
	return r, nil
}

// sqliteDate returns the stored form of t. A zero time is stored as NULL.
func sqliteDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(filter.SQLiteTimeLayout)
}

// storedTimeLayouts are the date formats found in emails tables, newest
// writer first.
var storedTimeLayouts = []string{
	filter.SQLiteTimeLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02",
}

func parseStoredTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range storedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryIDs(ctx context.Context, db queryer, query string, args []any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return ids, nil
}
