package mailbox

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"

	"github.com/liamcoop/mailrules/internal/logger"
)

// IMAPConfig configures DialIMAP.
type IMAPConfig struct {
	Address  string // host:port
	Username string
	Password string
	Mailbox  string // defaults to INBOX
	Insecure bool   // plain TCP instead of implicit TLS
}

// flagStorer is the part of an IMAP session the client needs.
type flagStorer interface {
	StoreFlags(ctx context.Context, uids imap.UIDSet, op imap.StoreFlagsOp, flags []imap.Flag) error
	Close() error
}

// IMAPClient applies markers as IMAP flags on messages of one selected
// mailbox. Message ids are UIDs.
//
//	UNREAD     -> \Seen, inverted
//	STARRED    -> \Flagged
//	any other  -> keyword
type IMAPClient struct {
	mu      sync.Mutex
	session flagStorer
}

// DialIMAP connects, authenticates with SASL PLAIN and selects the mailbox.
func DialIMAP(ctx context.Context, cfg IMAPConfig) (*IMAPClient, error) {
	var (
		c   *imapclient.Client
		err error
	)
	if cfg.Insecure {
		c, err = imapclient.DialInsecure(cfg.Address, nil)
	} else {
		c, err = imapclient.DialTLS(cfg.Address, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
	}

	if err := c.Authenticate(sasl.NewPlainClient("", cfg.Username, cfg.Password)); err != nil {
		c.Close()
		return nil, fmt.Errorf("authenticate %s: %w", cfg.Username, err)
	}

	mailbox := cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	data, err := c.Select(mailbox, nil).Wait()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("select %s: %w", mailbox, err)
	}
	logger.Info("IMAP mailbox selected", "address", cfg.Address, "mailbox", mailbox, "messages", data.NumMessages)

	return &IMAPClient{session: &clientSession{c: c}}, nil
}

// BatchMutate issues at most one +FLAGS and one -FLAGS UID STORE covering
// every id.
func (c *IMAPClient) BatchMutate(ctx context.Context, ids []string, addMarkers, removeMarkers []string) error {
	if len(ids) == 0 {
		return nil
	}
	uids, err := parseUIDs(ids)
	if err != nil {
		return err
	}
	add, del := FlagChanges(addMarkers, removeMarkers)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(add) > 0 {
		if err := c.session.StoreFlags(ctx, uids, imap.StoreFlagsAdd, add); err != nil {
			return fmt.Errorf("store +flags %v: %w", add, err)
		}
	}
	if len(del) > 0 {
		if err := c.session.StoreFlags(ctx, uids, imap.StoreFlagsDel, del); err != nil {
			return fmt.Errorf("store -flags %v: %w", del, err)
		}
	}
	return nil
}

// Close logs out and closes the connection.
func (c *IMAPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Close()
}

// FlagChanges maps marker changes to IMAP flags to add and to remove.
func FlagChanges(addMarkers, removeMarkers []string) (add, del []imap.Flag) {
	for _, m := range addMarkers {
		flag, inverted := markerFlag(m)
		if inverted {
			del = append(del, flag)
		} else {
			add = append(add, flag)
		}
	}
	for _, m := range removeMarkers {
		flag, inverted := markerFlag(m)
		if inverted {
			add = append(add, flag)
		} else {
			del = append(del, flag)
		}
	}
	return add, del
}

func markerFlag(marker string) (flag imap.Flag, inverted bool) {
	switch strings.ToUpper(marker) {
	case MarkerUnread:
		return imap.FlagSeen, true
	case MarkerStarred:
		return imap.FlagFlagged, false
	default:
		return imap.Flag(keyword(marker)), false
	}
}

// keyword turns a label name into an IMAP keyword atom.
func keyword(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r <= 0x20 || r >= 0x7f || strings.ContainsRune(`(){%*"\]`, r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseUIDs(ids []string) (imap.UIDSet, error) {
	var set imap.UIDSet
	for _, id := range ids {
		n, err := strconv.ParseUint(id, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("message id %q is not an IMAP UID", id)
		}
		set.AddNum(imap.UID(n))
	}
	return set, nil
}

type clientSession struct {
	c *imapclient.Client
}

func (s *clientSession) StoreFlags(ctx context.Context, uids imap.UIDSet, op imap.StoreFlagsOp, flags []imap.Flag) error {
	cmd := s.c.Store(uids, &imap.StoreFlags{Op: op, Silent: true, Flags: flags}, nil)
	done := make(chan error, 1)
	go func() { done <- cmd.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *clientSession) Close() error {
	if err := s.c.Logout().Wait(); err != nil {
		s.c.Close()
		return err
	}
	return s.c.Close()
}
