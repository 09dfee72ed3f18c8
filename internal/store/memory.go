package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nvandessel/nodenet/internal/nodenet"
)

type memoryEntry struct {
	payload []byte
	summary Summary
}

// InMemoryStore implements Repository for testing and development. Entries
// are kept encoded so callers never share maps with the store.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

var _ Repository = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]memoryEntry)}
}

// Save inserts or replaces the nodenet.
func (s *InMemoryStore) Save(ctx context.Context, data nodenet.Data) error {
	if data.UID == "" {
		return fmt.Errorf("nodenet uid is required")
	}
	payload, err := data.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode nodenet %s: %w", data.UID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[data.UID] = memoryEntry{payload: payload, summary: summarize(data, time.Now().UTC())}
	return nil
}

// Load returns the stored nodenet.
func (s *InMemoryStore) Load(ctx context.Context, uid string) (nodenet.Data, error) {
	s.mu.RLock()
	e, ok := s.entries[uid]
	s.mu.RUnlock()
	if !ok {
		return nodenet.Data{}, fmt.Errorf("%w: %s", ErrNotFound, uid)
	}
	return nodenet.ParseData(e.payload)
}

// List returns summaries ordered by name, then uid.
func (s *InMemoryStore) List(ctx context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UID < out[j].UID
	})
	return out, nil
}

// Delete removes a stored nodenet.
func (s *InMemoryStore) Delete(ctx context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[uid]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, uid)
	}
	delete(s.entries, uid)
	return nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }
