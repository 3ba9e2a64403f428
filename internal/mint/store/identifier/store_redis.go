package identifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"mintgate/pkg/platform/sentinel"
)

const redisBatchSize = 500

// RedisStore keeps the whole pool in one hash, field = index.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Lookup(ctx context.Context, index int64) (int64, error) {
	v, err := s.client.HGet(ctx, s.key, strconv.FormatInt(index, 10)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup pool index %d: %w", index, err)
	}
	return v, nil
}

// PutBatch writes entries in pipelined HSET chunks.
func (s *RedisStore) PutBatch(ctx context.Context, entries []Entry) error {
	pipe := s.client.Pipeline()
	for start := 0; start < len(entries); start += redisBatchSize {
		end := min(start+redisBatchSize, len(entries))
		fields := make([]any, 0, 2*(end-start))
		for _, e := range entries[start:end] {
			fields = append(fields, strconv.FormatInt(e.Index, 10), e.Value)
		}
		pipe.HSet(ctx, s.key, fields...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write pool batch: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear pool: %w", err)
	}
	return nil
}

func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.HLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count pool: %w", err)
	}
	return n, nil
}
