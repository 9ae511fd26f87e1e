package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/routepack/internal/ctxlog"
)

func testCtx() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestWatcherReportsSettledBatch(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(testCtx())
	defer cancel()

	batches := make(chan []string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(paths []string) {
			select {
			case batches <- paths:
			default:
			}
		})
	}()

	path := filepath.Join(dir, "routepack.hcl")
	require.NoError(t, os.WriteFile(path, []byte("project {}\n"), 0o600))

	select {
	case batch := <-batches:
		require.NotEmpty(t, batch)
		assert.Contains(t, batch[0], "routepack.hcl")
	case <-time.After(5 * time.Second):
		t.Fatal("no change batch reported")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestWatcherCoalescesBursts(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, 100*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(testCtx())
	defer cancel()

	batches := make(chan []string, 4)
	go func() {
		_ = w.Run(ctx, func(paths []string) { batches <- paths })
	}()

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"), []byte("project {}\n"), 0o600))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case batch := <-batches:
		assert.Len(t, batch, 1, "repeated writes of one file coalesce")
	case <-time.After(5 * time.Second):
		t.Fatal("no change batch reported")
	}
}

func TestWatcherRejectsMissingPath(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "nope")}, 0)
	require.Error(t, err)
}
