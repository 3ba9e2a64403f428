package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps one sliding window of request times per key. It is
// process-local; RedisStore shares windows across instances.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

type MemoryOption func(*InMemoryStore)

func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{windows: make(map[string][]time.Time), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stamps := evict(s.windows[key], now.Add(-window))
	res := Result{Limit: limit}
	if len(stamps) < limit {
		stamps = append(stamps, now)
		res.Allowed = true
	}
	res.Remaining = limit - len(stamps)
	if len(stamps) == 0 {
		delete(s.windows, key)
		res.ResetAt = now.Add(window)
		return res, nil
	}
	s.windows[key] = stamps
	res.ResetAt = stamps[0].Add(window)
	return res, nil
}

// evict drops timestamps at or before cutoff. stamps is in ascending order.
func evict(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
