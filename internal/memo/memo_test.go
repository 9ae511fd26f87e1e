package memo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCachesPerGeneration(t *testing.T) {
	s, err := NewStore(16)
	require.NoError(t, err)

	var calls atomic.Int32
	compute := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 42, nil
	}

	ctx := context.Background()
	v, err := Get(ctx, s, "answer", compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = Get(ctx, s, "answer", compute)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int32(1), calls.Load(), "second call must hit the cache")

	s.Invalidate()
	_, err = Get(ctx, s, "answer", compute)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "invalidation must force recomputation")
}

func TestGetDoesNotCacheErrors(t *testing.T) {
	s, err := NewStore(16)
	require.NoError(t, err)

	var calls atomic.Int32
	boom := errors.New("boom")
	ctx := context.Background()

	_, err = Get(ctx, s, "k", func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", boom
	})
	assert.ErrorIs(t, err, boom)

	v, err := Get(ctx, s, "k", func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetCollapsesConcurrentCallers(t *testing.T) {
	s, err := NewStore(16)
	require.NoError(t, err)

	var calls atomic.Int32
	gate := make(chan struct{})
	compute := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-gate
		return 7, nil
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Get(ctx, s, "shared", compute)
			assert.NoError(t, err)
			assert.Equal(t, 7, v)
		}()
	}
	close(gate)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load(), "concurrent callers must share one computation")
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
	assert.NotEqual(t, Key("a", "b"), Key("ab"))
	assert.NotEqual(t, Key("a", "b"), Key("a", "b", ""))
}
