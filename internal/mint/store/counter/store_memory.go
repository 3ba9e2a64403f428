// Package counter holds the per-category allocation counters. Increment is the
// only atomic primitive allocation relies on.
package counter

import (
	"context"
	"sync"
)

type InMemoryStore struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{values: make(map[string]int64)}
}

// Increment creates the counter at zero if needed and returns the new value.
func (s *InMemoryStore) Increment(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name]++
	return s.values[name], nil
}

func (s *InMemoryStore) Current(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[name], nil
}

// Reset sets the counter back to zero. Only pool rebuilds call it.
func (s *InMemoryStore) Reset(ctx context.Context, name string) error {
	return s.Set(ctx, name, 0)
}

// Set overwrites a counter that is not used for allocation, such as the chain
// watcher cursor.
func (s *InMemoryStore) Set(_ context.Context, name string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
	return nil
}
