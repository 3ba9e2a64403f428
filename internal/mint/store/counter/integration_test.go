//go:build integration

package counter_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"mintgate/internal/mint/store/counter"
	"mintgate/pkg/testutil/containers"
)

type incrementer interface {
	Increment(ctx context.Context, name string) (int64, error)
	Current(ctx context.Context, name string) (int64, error)
	Reset(ctx context.Context, name string) error
	Set(ctx context.Context, name string, value int64) error
}

type CounterStoreSuite struct {
	suite.Suite
	redis    *containers.RedisContainer
	postgres *containers.PostgresContainer
	stores   map[string]incrementer
}

func TestCounterStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CounterStoreSuite))
}

func (s *CounterStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.postgres = mgr.GetPostgres(s.T())
	s.stores = map[string]incrementer{
		"redis":    counter.NewRedisStore(s.redis.Client, "counters"),
		"postgres": counter.NewPostgresStore(s.postgres.DB, containers.DefaultTables.Counters),
	}
}

func (s *CounterStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.redis.FlushAll(ctx))
	s.Require().NoError(s.postgres.TruncateTables(ctx, containers.DefaultTables.Counters))
}

func (s *CounterStoreSuite) TestConcurrentIncrementsAreUnique() {
	ctx := context.Background()
	for name, store := range s.stores {
		s.Run(name, func() {
			const n = 50
			var mu sync.Mutex
			seen := make(map[int64]bool, n)
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					v, err := store.Increment(ctx, "category1")
					s.NoError(err)
					mu.Lock()
					seen[v] = true
					mu.Unlock()
				}()
			}
			wg.Wait()
			s.Len(seen, n)

			cur, err := store.Current(ctx, "category1")
			s.Require().NoError(err)
			s.Equal(int64(n), cur)
		})
	}
}

func (s *CounterStoreSuite) TestResetAndMissing() {
	ctx := context.Background()
	for name, store := range s.stores {
		s.Run(name, func() {
			cur, err := store.Current(ctx, "category9")
			s.Require().NoError(err)
			s.Zero(cur)

			_, err = store.Increment(ctx, "category9")
			s.Require().NoError(err)
			s.Require().NoError(store.Reset(ctx, "category9"))
			v, err := store.Increment(ctx, "category9")
			s.Require().NoError(err)
			s.Equal(int64(1), v)
		})
	}
}

func (s *CounterStoreSuite) TestSetOverwrites() {
	ctx := context.Background()
	for name, store := range s.stores {
		s.Run(name, func() {
			s.Require().NoError(store.Set(ctx, "chainwatch.cursor", 1200))
			s.Require().NoError(store.Set(ctx, "chainwatch.cursor", 1350))
			cur, err := store.Current(ctx, "chainwatch.cursor")
			s.Require().NoError(err)
			s.Equal(int64(1350), cur)
		})
	}
}
