package rules

import (
	"context"
	"fmt"
	"slices"
)

// MarkerUnread is the marker whose presence means a record is unread.
const MarkerUnread = "UNREAD"

// Directive is a backend-neutral mutation: markers to add and markers to
// remove. The same directive can be executed against the remote mailbox or
// projected onto the local record store.
type Directive struct {
	AddMarkers    []string `json:"add_markers,omitempty"`
	RemoveMarkers []string `json:"remove_markers,omitempty"`
}

// Translate maps an action to its directive.
//
//	set_status READ   -> remove UNREAD
//	set_status UNREAD -> add UNREAD
//	move <label>      -> add <label> (existing labels are kept)
func Translate(a Action) (Directive, error) {
	switch a.Kind {
	case ActionSetStatus:
		switch a.Parameter {
		case StatusRead:
			return Directive{RemoveMarkers: []string{MarkerUnread}}, nil
		case StatusUnread:
			return Directive{AddMarkers: []string{MarkerUnread}}, nil
		default:
			return Directive{}, fmt.Errorf("%w: set_status requires READ or UNREAD, got %q", ErrInvalidAction, a.Parameter)
		}
	case ActionMove:
		if err := ValidateLabel(a.Parameter); err != nil {
			return Directive{}, fmt.Errorf("%w: move: %v", ErrInvalidAction, err)
		}
		return Directive{AddMarkers: []string{a.Parameter}}, nil
	default:
		return Directive{}, fmt.Errorf("%w: unknown action kind %q", ErrInvalidAction, a.Kind)
	}
}

// MailboxClient is the remote mailbox service.
type MailboxClient interface {
	// BatchMutate adds and removes markers on every listed message in one
	// logical call.
	BatchMutate(ctx context.Context, ids []string, addMarkers, removeMarkers []string) error
}

// ApplyRemote executes the directive against the remote mailbox.
func (d Directive) ApplyRemote(ctx context.Context, client MailboxClient, ids []string) error {
	return client.BatchMutate(ctx, ids, d.AddMarkers, d.RemoveMarkers)
}

// ApplyLocal writes the value the directive produces into the record store,
// so a rerun against local data sees the same state as the remote mailbox.
func (d Directive) ApplyLocal(ctx context.Context, store RecordStore, ids []string) error {
	switch {
	case slices.Contains(d.RemoveMarkers, MarkerUnread):
		return store.UpdateStatus(ctx, ids, StatusRead)
	case slices.Contains(d.AddMarkers, MarkerUnread):
		return store.UpdateStatus(ctx, ids, StatusUnread)
	case len(d.AddMarkers) == 1:
		return store.UpdateMailbox(ctx, ids, d.AddMarkers[0])
	default:
		return fmt.Errorf("directive %+v has no local projection", d)
	}
}
