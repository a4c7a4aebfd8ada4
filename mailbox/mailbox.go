// Package mailbox implements the remote mailbox services the rule engine
// mirrors its local updates to.
package mailbox

import (
	"context"
	"errors"
	"strings"
)

// Client mutates markers on remote messages in one logical call per batch.
type Client interface {
	BatchMutate(ctx context.Context, ids []string, addMarkers, removeMarkers []string) error
}

// Markers that IMAP maps to system flags.
const (
	MarkerUnread  = "UNREAD"
	MarkerStarred = "STARRED"
)

// ErrUnknownLabel is returned when a marker names no label on the service.
var ErrUnknownLabel = errors.New("unknown label")

// systemLabels are Gmail label ids that are also their names.
var systemLabels = map[string]bool{
	"INBOX":     true,
	"SPAM":      true,
	"TRASH":     true,
	"UNREAD":    true,
	"STARRED":   true,
	"IMPORTANT": true,
	"SENT":      true,
	"DRAFT":     true,
	"CHAT":      true,
}

// IsSystemLabel reports whether name is a built-in Gmail label id.
func IsSystemLabel(name string) bool {
	return systemLabels[name] || strings.HasPrefix(name, "CATEGORY_")
}

var (
	_ Client = (*GmailClient)(nil)
	_ Client = (*IMAPClient)(nil)
)
