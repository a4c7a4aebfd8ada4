package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/liamcoop/mailrules/internal/logger"
	"github.com/liamcoop/mailrules/internal/retry"
)

const (
	// DefaultGmailBaseURL is the Gmail REST API endpoint.
	DefaultGmailBaseURL = "https://gmail.googleapis.com"

	// maxBatchModifyIDs is the most message ids batchModify accepts per request.
	maxBatchModifyIDs = 1000
)

// GmailConfig configures a GmailClient.
type GmailConfig struct {
	BaseURL    string       // defaults to DefaultGmailBaseURL
	UserID     string       // defaults to "me"
	HTTPClient *http.Client // carries authentication; defaults to http.DefaultClient
	Backoff    *retry.BackoffConfig
}

// GmailClient applies marker changes through users.messages.batchModify.
//
// Markers are label names. System labels (INBOX, UNREAD, STARRED, ...) are
// sent as is; user labels are resolved to their ids once per client.
type GmailClient struct {
	base    string
	user    string
	http    *http.Client
	backoff retry.BackoffConfig

	mu     sync.Mutex
	labels map[string]string // name -> id, nil until loaded
}

// NewGmailClient creates a client from cfg.
func NewGmailClient(cfg GmailConfig) *GmailClient {
	c := &GmailClient{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		user:    cfg.UserID,
		http:    cfg.HTTPClient,
		backoff: retry.DefaultBackoffConfig(),
	}
	if c.base == "" {
		c.base = DefaultGmailBaseURL
	}
	if c.user == "" {
		c.user = "me"
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if cfg.Backoff != nil {
		c.backoff = *cfg.Backoff
	}
	return c
}

// APIError is a non-2xx response from the Gmail API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gmail api returned %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type batchModifyRequest struct {
	IDs            []string `json:"ids"`
	AddLabelIDs    []string `json:"addLabelIds,omitempty"`
	RemoveLabelIDs []string `json:"removeLabelIds,omitempty"`
}

type label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type listLabelsResponse struct {
	Labels []label `json:"labels"`
}

// BatchMutate adds and removes labels on every message in ids. Requests are
// split at the API's per-request id limit.
func (c *GmailClient) BatchMutate(ctx context.Context, ids []string, addMarkers, removeMarkers []string) error {
	if len(ids) == 0 {
		return nil
	}
	add, err := c.resolveLabels(ctx, addMarkers)
	if err != nil {
		return err
	}
	remove, err := c.resolveLabels(ctx, removeMarkers)
	if err != nil {
		return err
	}

	path := "/gmail/v1/users/" + url.PathEscape(c.user) + "/messages/batchModify"
	for start := 0; start < len(ids); start += maxBatchModifyIDs {
		chunk := ids[start:min(start+maxBatchModifyIDs, len(ids))]
		req := batchModifyRequest{IDs: chunk, AddLabelIDs: add, RemoveLabelIDs: remove}
		if err := c.do(ctx, http.MethodPost, path, req, nil); err != nil {
			return fmt.Errorf("batchModify %d messages: %w", len(chunk), err)
		}
		logger.Debug("Gmail batchModify", "messages", len(chunk), "add", add, "remove", remove)
	}
	return nil
}

func (c *GmailClient) resolveLabels(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(names))
	for _, name := range names {
		if IsSystemLabel(name) {
			ids = append(ids, name)
			continue
		}
		id, err := c.labelID(ctx, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *GmailClient) labelID(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.labels == nil {
		var resp listLabelsResponse
		path := "/gmail/v1/users/" + url.PathEscape(c.user) + "/labels"
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return "", fmt.Errorf("list labels: %w", err)
		}
		c.labels = make(map[string]string, 2*len(resp.Labels))
		for _, l := range resp.Labels {
			c.labels[l.Name] = l.ID
			c.labels[l.ID] = l.ID
		}
	}

	id, ok := c.labels[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLabel, name)
	}
	return id, nil
}

// do sends one JSON request, retrying rate limits, server errors and
// transport failures.
func (c *GmailClient) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	return retry.Do(ctx, c.backoff, func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
		if err != nil {
			return retry.Stop(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Stop(err)
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
			logger.Warn("Gmail API error", "method", method, "path", path, "status", resp.StatusCode,
				"duration", time.Since(start))
			if apiErr.Temporary() {
				return apiErr
			}
			return retry.Stop(apiErr)
		}

		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Stop(fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
}
