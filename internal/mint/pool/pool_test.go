package pool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"mintgate/internal/mint/models"
	"mintgate/internal/mint/store/counter"
	"mintgate/internal/mint/store/identifier"
)

func TestNewLayout(t *testing.T) {
	l, err := NewLayout([]int{50, 100, 200})
	require.NoError(t, err)

	assert.Equal(t, 3, l.Categories())
	assert.Equal(t, int64(1), l.Start(0))
	assert.Equal(t, int64(51), l.Start(1))
	assert.Equal(t, int64(151), l.Start(2))
	assert.Equal(t, int64(350), l.Total())

	k, ok := l.CategoryOf(150)
	assert.True(t, ok)
	assert.Equal(t, 1, k)
	_, ok = l.CategoryOf(351)
	assert.False(t, ok)

	_, err = NewLayout(nil)
	assert.Error(t, err)
	_, err = NewLayout([]int{10, -1})
	assert.Error(t, err)
}

type PoolSuite struct {
	suite.Suite
	ctx      context.Context
	layout   Layout
	counters *counter.InMemoryStore
	ids      *identifier.InMemoryStore
	builder  *Builder
	alloc    *Allocator
}

func TestPoolSuite(t *testing.T) {
	suite.Run(t, new(PoolSuite))
}

func (s *PoolSuite) SetupTest() {
	var err error
	s.ctx = context.Background()
	s.layout, err = NewLayout([]int{50, 100, 200})
	s.Require().NoError(err)
	s.counters = counter.NewInMemoryStore()
	s.ids = identifier.NewInMemoryStore()
	s.builder = NewBuilder(s.layout, s.ids, s.counters,
		WithSeed(1, 2),
		WithBuilderLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.alloc = NewAllocator(s.layout, s.counters, s.ids)
}

func (s *PoolSuite) TestBuildIsAPermutationPerCategory() {
	report, err := s.builder.Build(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(350, report.Inserted)

	for k := 0; k < s.layout.Categories(); k++ {
		start, capacity := s.layout.Start(k), s.layout.Capacity(k)
		var values []int64
		for idx := start; idx < start+capacity; idx++ {
			v, err := s.ids.Lookup(s.ctx, idx)
			s.Require().NoError(err)
			values = append(values, v)
		}
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
		for i, v := range values {
			s.Equal(start+int64(i), v, "category %d", k)
		}
	}
}

func (s *PoolSuite) TestShuffleActuallyPermutes() {
	_, err := s.builder.Build(s.ctx, nil)
	s.Require().NoError(err)

	inPlace := 0
	for idx := int64(151); idx <= 350; idx++ {
		v, _ := s.ids.Lookup(s.ctx, idx)
		if v == idx {
			inPlace++
		}
	}
	s.Less(inPlace, 20)
}

func (s *PoolSuite) TestConcurrentAllocationCoversCategoryExactly() {
	_, err := s.builder.Build(s.ctx, nil)
	s.Require().NoError(err)

	const workers = 16
	var (
		mu        sync.Mutex
		got       []int64
		exhausted int
		wg        sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				id, err := s.alloc.Allocate(s.ctx, 1)
				mu.Lock()
				switch {
				case err == nil:
					got = append(got, id)
				case errors.Is(err, models.ErrCategoryExhausted):
					exhausted++
				default:
					s.Failf("unexpected error", "%v", err)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Len(got, 100)
	s.Equal(workers*10-100, exhausted)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	for i, id := range got {
		s.Equal(int64(51+i), id)
	}
}

func (s *PoolSuite) TestUnknownCategory() {
	_, err := s.alloc.Allocate(s.ctx, 7)
	s.Error(err)
	s.NotErrorIs(err, models.ErrCategoryExhausted)
}

func (s *PoolSuite) TestRebuildExcludesMintedAndResetsCounters() {
	_, err := s.builder.Build(s.ctx, nil)
	s.Require().NoError(err)
	for i := 0; i < 30; i++ {
		_, err := s.alloc.Allocate(s.ctx, 0)
		s.Require().NoError(err)
	}

	exclude := map[int64]struct{}{1: {}, 2: {}, 3: {}, 60: {}}
	report, err := s.builder.Build(s.ctx, exclude)
	s.Require().NoError(err)
	s.Equal(346, report.Inserted)
	s.Equal(3, report.Categories[0].Excluded)
	s.Equal(47, report.Categories[0].Inserted)
	s.Equal(1, report.Categories[1].Excluded)

	seen := make(map[int64]bool)
	for {
		id, err := s.alloc.Allocate(s.ctx, 0)
		if errors.Is(err, models.ErrCategoryExhausted) {
			break
		}
		s.Require().NoError(err)
		_, excluded := exclude[id]
		s.False(excluded, "allocated excluded id %d", id)
		seen[id] = true
	}
	s.Len(seen, 47)
}

func (s *PoolSuite) TestStatus() {
	_, err := s.builder.Build(s.ctx, nil)
	s.Require().NoError(err)
	for i := 0; i < 3; i++ {
		_, err := s.alloc.Allocate(s.ctx, 2)
		s.Require().NoError(err)
	}

	status, err := s.alloc.Status(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(status, 3)
	s.Equal(models.CategoryStatus{Category: 2, Start: 151, Capacity: 200, Allocated: 3, Remaining: 197}, status[2])
	s.Equal(int64(0), status[0].Allocated)
}

type failingCounter struct{}

func (failingCounter) Increment(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func (failingCounter) Current(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func (s *PoolSuite) TestCounterFailureIsStoreUnavailable() {
	alloc := NewAllocator(s.layout, failingCounter{}, s.ids)
	_, err := alloc.Allocate(s.ctx, 0)
	s.ErrorIs(err, models.ErrStoreUnavailable)
}
