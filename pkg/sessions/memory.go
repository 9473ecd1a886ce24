package sessions

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/platinummonkey/ruckstats/pkg/period"
)

// MemoryStore is an in-memory Store. Mutations notify registered listeners so
// callers can invalidate derived data.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[uuid.UUID]Record
	listeners []func()
	fetchErr  error
}

// NewMemoryStore creates an empty store
func NewMemoryStore(records ...Record) *MemoryStore {
	s := &MemoryStore{records: make(map[uuid.UUID]Record, len(records))}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

// OnChange registers fn to be called after every mutation
func (s *MemoryStore) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Add inserts or replaces a record
func (s *MemoryStore) Add(records ...Record) {
	s.mu.Lock()
	for _, r := range records {
		s.records[r.ID] = r
	}
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners)
}

// Remove deletes a record by id
func (s *MemoryStore) Remove(id uuid.UUID) bool {
	s.mu.Lock()
	_, ok := s.records[id]
	delete(s.records, id)
	listeners := s.listeners
	s.mu.Unlock()

	if ok {
		notify(listeners)
	}
	return ok
}

// Replace swaps the whole record set
func (s *MemoryStore) Replace(records []Record) {
	s.mu.Lock()
	s.records = make(map[uuid.UUID]Record, len(records))
	for _, r := range records {
		s.records[r.ID] = r
	}
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners)
}

// SetFetchError makes subsequent fetches fail with err (nil clears it)
func (s *MemoryStore) SetFetchError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

// Len returns the number of stored records, complete or not
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// FetchCompleteSessions implements Store
func (s *MemoryStore) FetchCompleteSessions(ctx context.Context, rng period.Range) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	out := make([]Record, 0)
	for _, r := range s.records {
		if r.IsComplete() && rng.Contains(r.StartedAt) {
			out = append(out, r)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})

	return out, nil
}

func notify(listeners []func()) {
	for _, fn := range listeners {
		fn()
	}
}
