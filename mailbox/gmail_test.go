package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/mailrules/internal/retry"
)

// fakeGmail is an in-process stand-in for the Gmail REST API.
type fakeGmail struct {
	mu          sync.Mutex
	labels      []label
	batches     []batchModifyRequest
	labelLists  int
	failures    []int // status codes returned by the next batchModify calls
	lastUser    string
	lastHeaders http.Header
}

func (f *fakeGmail) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/gmail/v1/users/{userID}/labels", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.labelLists++
		resp := listLabelsResponse{Labels: f.labels}
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
	r.Post("/gmail/v1/users/{userID}/messages/batchModify", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastUser = chi.URLParam(r, "userID")
		f.lastHeaders = r.Header.Clone()

		if len(f.failures) > 0 {
			status := f.failures[0]
			f.failures = f.failures[1:]
			http.Error(w, `{"error":{"message":"try later"}}`, status)
			return
		}

		var req batchModifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.batches = append(f.batches, req)
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func newTestGmail(t *testing.T, fake *fakeGmail) *GmailClient {
	t.Helper()
	srv := httptest.NewServer(fake.router())
	t.Cleanup(srv.Close)

	return NewGmailClient(GmailConfig{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Backoff: &retry.BackoffConfig{
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			Multiplier:      2,
			MaxRetries:      3,
		},
	})
}

func messageIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("msg%05d", i)
	}
	return ids
}

func TestGmailBatchMutateSystemLabels(t *testing.T) {
	fake := &fakeGmail{}
	c := newTestGmail(t, fake)

	err := c.BatchMutate(context.Background(), []string{"18c1", "18c2"}, nil, []string{MarkerUnread})
	require.NoError(t, err)

	require.Len(t, fake.batches, 1)
	assert.Equal(t, []string{"18c1", "18c2"}, fake.batches[0].IDs)
	assert.Equal(t, []string{"UNREAD"}, fake.batches[0].RemoveLabelIDs)
	assert.Empty(t, fake.batches[0].AddLabelIDs)
	assert.Equal(t, "me", fake.lastUser)
	assert.Equal(t, "application/json", fake.lastHeaders.Get("Content-Type"))
	assert.Zero(t, fake.labelLists, "system labels must not trigger a label lookup")
}

func TestGmailBatchMutateResolvesUserLabels(t *testing.T) {
	fake := &fakeGmail{labels: []label{
		{ID: "INBOX", Name: "INBOX", Type: "system"},
		{ID: "Label_12", Name: "Receipts", Type: "user"},
		{ID: "Label_34", Name: "Work/Clients", Type: "user"},
	}}
	c := newTestGmail(t, fake)
	ctx := context.Background()

	require.NoError(t, c.BatchMutate(ctx, []string{"a"}, []string{"Receipts"}, nil))
	require.NoError(t, c.BatchMutate(ctx, []string{"b"}, []string{"Work/Clients", "STARRED"}, nil))
	require.NoError(t, c.BatchMutate(ctx, []string{"c"}, []string{"Label_12"}, nil))

	require.Len(t, fake.batches, 3)
	assert.Equal(t, []string{"Label_12"}, fake.batches[0].AddLabelIDs)
	assert.Equal(t, []string{"Label_34", "STARRED"}, fake.batches[1].AddLabelIDs)
	assert.Equal(t, []string{"Label_12"}, fake.batches[2].AddLabelIDs)
	assert.Equal(t, 1, fake.labelLists, "label lookup should be cached")
}

func TestGmailBatchMutateUnknownLabel(t *testing.T) {
	fake := &fakeGmail{labels: []label{{ID: "Label_1", Name: "Receipts"}}}
	c := newTestGmail(t, fake)

	err := c.BatchMutate(context.Background(), []string{"a"}, []string{"Nope"}, nil)
	assert.True(t, errors.Is(err, ErrUnknownLabel), "err = %v", err)
	assert.Empty(t, fake.batches)
}

func TestGmailBatchMutateChunksLargeBatches(t *testing.T) {
	fake := &fakeGmail{}
	c := newTestGmail(t, fake)

	ids := messageIDs(2*maxBatchModifyIDs + 500)
	require.NoError(t, c.BatchMutate(context.Background(), ids, []string{MarkerStarred}, nil))

	require.Len(t, fake.batches, 3)
	assert.Len(t, fake.batches[0].IDs, maxBatchModifyIDs)
	assert.Len(t, fake.batches[1].IDs, maxBatchModifyIDs)
	assert.Len(t, fake.batches[2].IDs, 500)
	assert.Equal(t, ids[len(ids)-1], fake.batches[2].IDs[499])
}

func TestGmailBatchMutateRetriesTransientErrors(t *testing.T) {
	fake := &fakeGmail{failures: []int{http.StatusTooManyRequests, http.StatusServiceUnavailable}}
	c := newTestGmail(t, fake)

	require.NoError(t, c.BatchMutate(context.Background(), []string{"a"}, []string{MarkerUnread}, nil))
	assert.Len(t, fake.batches, 1)
	assert.Empty(t, fake.failures)
}

func TestGmailBatchMutateDoesNotRetryClientErrors(t *testing.T) {
	fake := &fakeGmail{failures: []int{http.StatusForbidden, http.StatusForbidden}}
	c := newTestGmail(t, fake)

	err := c.BatchMutate(context.Background(), []string{"a"}, []string{MarkerUnread}, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "err = %v", err)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.False(t, apiErr.Temporary())
	assert.Len(t, fake.failures, 1, "a 403 must not be retried")
}

func TestGmailBatchMutateGivesUp(t *testing.T) {
	fake := &fakeGmail{failures: []int{500, 502, 503, 504, 500}}
	c := newTestGmail(t, fake)

	err := c.BatchMutate(context.Background(), []string{"a"}, []string{MarkerUnread}, nil)
	assert.ErrorContains(t, err, "after 4 attempts")
	assert.Empty(t, fake.batches)
}

func TestGmailBatchMutateEmpty(t *testing.T) {
	fake := &fakeGmail{}
	c := newTestGmail(t, fake)

	require.NoError(t, c.BatchMutate(context.Background(), nil, []string{"Receipts"}, nil))
	assert.Empty(t, fake.batches)
	assert.Zero(t, fake.labelLists)
}

func TestIsSystemLabel(t *testing.T) {
	assert.True(t, IsSystemLabel("INBOX"))
	assert.True(t, IsSystemLabel("CATEGORY_PROMOTIONS"))
	assert.False(t, IsSystemLabel("Receipts"))
	assert.False(t, IsSystemLabel("inbox"))
}
