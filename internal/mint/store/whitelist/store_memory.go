// Package whitelist reads the externally maintained address to category
// grants.
package whitelist

import (
	"context"
	"sync"

	"mintgate/internal/mint/models"
)

// InMemoryStore holds whitelist rows in insertion order.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]models.WhitelistEntry
}

func NewInMemoryStore(entries ...models.WhitelistEntry) *InMemoryStore {
	s := &InMemoryStore{entries: make(map[string][]models.WhitelistEntry)}
	s.Add(entries...)
	return s
}

// Add appends rows. Duplicate rows for one address are kept; the resolver
// treats them as the overflow classification.
func (s *InMemoryStore) Add(entries ...models.WhitelistEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		e.Address = models.NormalizeAddress(e.Address)
		s.entries[e.Address] = append(s.entries[e.Address], e)
	}
}

func (s *InMemoryStore) FindByAddress(_ context.Context, address string) ([]models.WhitelistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.entries[models.NormalizeAddress(address)]
	out := make([]models.WhitelistEntry, len(rows))
	copy(out, rows)
	return out, nil
}
