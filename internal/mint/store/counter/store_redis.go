package counter

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each counter under "<prefix>:<name>" and relies on INCR
// creating missing keys at zero.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + ":" + name
}

func (s *RedisStore) Increment(ctx context.Context, name string) (int64, error) {
	n, err := s.client.Incr(ctx, s.key(name)).Result()
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}
	return n, nil
}

func (s *RedisStore) Current(ctx context.Context, name string) (int64, error) {
	n, err := s.client.Get(ctx, s.key(name)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", name, err)
	}
	return n, nil
}

func (s *RedisStore) Reset(ctx context.Context, name string) error {
	return s.Set(ctx, name, 0)
}

func (s *RedisStore) Set(ctx context.Context, name string, value int64) error {
	if err := s.client.Set(ctx, s.key(name), value, 0).Err(); err != nil {
		return fmt.Errorf("set counter %s: %w", name, err)
	}
	return nil
}
