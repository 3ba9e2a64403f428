// Package identifier stores the shuffled index to identifier mapping. It is
// written once at setup and read-only afterwards.
package identifier

import (
	"context"
	"sync"

	"mintgate/pkg/platform/sentinel"
)

// Entry maps a sequential pool index to the identifier handed out for it.
type Entry struct {
	Index int64
	Value int64
}

type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[int64]int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[int64]int64)}
}

func (s *InMemoryStore) Lookup(_ context.Context, index int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[index]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	return v, nil
}

func (s *InMemoryStore) PutBatch(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[e.Index] = e.Value
	}
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[int64]int64)
	return nil
}

func (s *InMemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}
