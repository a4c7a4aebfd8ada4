// Package records holds the local copy of the mailbox: one Record per
// message, kept in a store that selects by filter.Expr and is updated in
// step with the remote mailbox.
package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/liamcoop/mailrules/filter"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("record not found")

// Record is one locally stored message.
//
// A zero Date marks an undated record. SQL stores keep it as NULL. Every
// store treats it as older than any age and newer than none.
type Record struct {
	ID      string    `json:"id"`
	Subject string    `json:"subject"`
	Sender  string    `json:"sender"`
	Date    time.Time `json:"date"`
	Body    string    `json:"body"`
	Status  string    `json:"status"`
	Mailbox string    `json:"mailbox"`
}

// Value returns the record's value for a text field.
func (r Record) Value(f filter.Field) string {
	switch f {
	case filter.FieldSubject:
		return r.Subject
	case filter.FieldSender:
		return r.Sender
	case filter.FieldStatus:
		return r.Status
	case filter.FieldMailbox:
		return r.Mailbox
	case filter.FieldBody:
		return r.Body
	default:
		return ""
	}
}

func (r Record) vars() map[string]any {
	return map[string]any{
		string(filter.FieldSubject): r.Subject,
		string(filter.FieldSender):  r.Sender,
		string(filter.FieldDate):    r.Date.UTC(),
		string(filter.FieldStatus):  r.Status,
		string(filter.FieldMailbox): r.Mailbox,
		string(filter.FieldBody):    r.Body,
	}
}

// Store is a record store usable by the rule engine and by ingestion.
type Store interface {
	// Query returns the ids of every record matching expr, ordered by id.
	Query(ctx context.Context, expr filter.Expr) ([]string, error)

	// UpdateStatus sets the status of every listed record. Unknown ids are
	// ignored.
	UpdateStatus(ctx context.Context, ids []string, status string) error

	// UpdateMailbox sets the mailbox of every listed record. Unknown ids are
	// ignored.
	UpdateMailbox(ctx context.Context, ids []string, mailbox string) error

	// Put inserts or replaces records by id.
	Put(ctx context.Context, recs ...Record) error

	// Get returns one record or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	Close() error
}

func validateRecords(recs []Record) error {
	for i, r := range recs {
		if r.ID == "" {
			return fmt.Errorf("record %d has an empty id", i)
		}
	}
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
