package records

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/liamcoop/mailrules/filter"
)

// MemoryStore is an in-memory Store. Filters are evaluated with CEL; text
// containment is case-insensitive under Unicode case folding and equality is
// exact.
type MemoryStore struct {
	records map[string]Record
	cel     *filter.CELCompiler
	mu      sync.RWMutex
}

// NewMemoryStore creates a store seeded with recs.
func NewMemoryStore(recs ...Record) (*MemoryStore, error) {
	compiler, err := filter.NewCELCompiler()
	if err != nil {
		return nil, err
	}
	s := &MemoryStore{
		records: make(map[string]Record, len(recs)),
		cel:     compiler,
	}
	if err := s.Put(context.Background(), recs...); err != nil {
		return nil, err
	}
	return s, nil
}

// Put inserts or replaces records by id.
func (s *MemoryStore) Put(ctx context.Context, recs ...Record) error {
	if err := validateRecords(recs); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		s.records[r.ID] = r
	}
	return nil
}

// Get returns the record with the given id.
func (s *MemoryStore) Get(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Query evaluates expr against every record and returns the matching ids in
// ascending byte order.
func (s *MemoryStore) Query(ctx context.Context, expr filter.Expr) ([]string, error) {
	prog, err := s.cel.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	matches := make([]string, 0)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := prog.Match(s.records[id].vars())
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate filter on record %s: %w", id, err)
		}
		if ok {
			matches = append(matches, id)
		}
	}
	return matches, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, ids []string, status string) error {
	return s.update(ids, func(r *Record) { r.Status = status })
}

func (s *MemoryStore) UpdateMailbox(ctx context.Context, ids []string, mailbox string) error {
	return s.update(ids, func(r *Record) { r.Mailbox = mailbox })
}

func (s *MemoryStore) update(ids []string, set func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		r, ok := s.records[id]
		if !ok {
			continue
		}
		set(&r)
		s.records[id] = r
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
