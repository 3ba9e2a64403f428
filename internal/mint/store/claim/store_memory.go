// Package claim provides short-lived exclusive claims on a key. Authorization
// holds one per owner while it resolves and writes, and the replay guard holds
// one per signed message for the grace window.
package claim

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type held struct {
	token     string
	expiresAt time.Time
}

type InMemoryStore struct {
	mu     sync.Mutex
	claims map[string]held
	now    func() time.Time
}

// Option configures an InMemoryStore.
type Option func(*InMemoryStore)

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{claims: make(map[string]held), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire takes the claim if it is free or expired. The returned token
// releases it.
func (s *InMemoryStore) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if h, ok := s.claims[key]; ok && now.Before(h.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	s.claims[key] = held{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

// Release drops the claim only if token still owns it.
func (s *InMemoryStore) Release(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.claims[key]; ok && h.token == token {
		delete(s.claims, key)
	}
	return nil
}
