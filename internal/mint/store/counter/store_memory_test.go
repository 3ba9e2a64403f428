package counter

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIncrementIsDense(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	const n = 200
	seen := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := store.Increment(ctx, "category1")
			assert.NoError(t, err)
			seen <- v
		}()
	}
	wg.Wait()
	close(seen)

	values := make(map[int64]bool, n)
	for v := range seen {
		values[v] = true
	}
	assert.Len(t, values, n)
	for i := int64(1); i <= n; i++ {
		assert.True(t, values[i], "missing %d", i)
	}
}

func TestInMemoryCurrentAndReset(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	cur, err := store.Current(ctx, "category0")
	require.NoError(t, err)
	assert.Zero(t, cur)

	_, _ = store.Increment(ctx, "category0")
	_, _ = store.Increment(ctx, "category0")
	cur, _ = store.Current(ctx, "category0")
	assert.Equal(t, int64(2), cur)

	require.NoError(t, store.Reset(ctx, "category0"))
	v, _ := store.Increment(ctx, "category0")
	assert.Equal(t, int64(1), v)
}

func TestInMemorySet(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "chainwatch.cursor", 77))
	cur, err := store.Current(ctx, "chainwatch.cursor")
	require.NoError(t, err)
	assert.Equal(t, int64(77), cur)
}
