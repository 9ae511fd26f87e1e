// Package memo is the incremental computation substrate of the build
// pipeline: memoized invocation of pure functions over generation-versioned
// cells. Derived values are keyed by their inputs' identities plus the
// current build generation; bumping the generation invalidates the whole
// derived tree, and the next request recomputes.
//
// Concurrent requests for the same cell are collapsed into one in-flight
// computation. Failed computations are never cached, so callers retrying
// after an input fix recompute instead of observing a stale error.
package memo

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCells is the default capacity of a store's cell cache.
const DefaultCells = 4096

// Store holds the memoized cells of one build.
type Store struct {
	cells *lru.Cache[string, any]
	group singleflight.Group
	gen   atomic.Uint64
}

// NewStore creates a store with capacity for the given number of cells.
// A non-positive size falls back to DefaultCells.
func NewStore(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultCells
	}
	cells, err := lru.New[string, any](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cell cache: %w", err)
	}
	return &Store{cells: cells}, nil
}

// Generation returns the current build generation.
func (s *Store) Generation() uint64 {
	return s.gen.Load()
}

// Invalidate advances the build generation, logically invalidating every
// cell. Stale cells age out of the LRU instead of being swept eagerly.
func (s *Store) Invalidate() uint64 {
	return s.gen.Add(1)
}

// Key builds a cell key from its parts. The parts must fully identify the
// computation's inputs; two computations with equal keys are assumed to
// produce structurally identical results.
func Key(parts ...string) string {
	return strings.Join(parts, "\x1f")
}

// Get returns the cell value for key under the current generation, computing
// it with compute on a miss. Concurrent callers for the same key share one
// computation.
func Get[V any](ctx context.Context, s *Store, key string, compute func(ctx context.Context) (V, error)) (V, error) {
	var zero V
	genKey := fmt.Sprintf("g%d\x1f%s", s.gen.Load(), key)

	if cached, ok := s.cells.Get(genKey); ok {
		v, ok := cached.(V)
		if !ok {
			return zero, fmt.Errorf("memo cell %q holds %T, caller expects different type", key, cached)
		}
		return v, nil
	}

	v, err, _ := s.group.Do(genKey, func() (any, error) {
		if cached, ok := s.cells.Get(genKey); ok {
			return cached, nil
		}
		computed, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		s.cells.Add(genKey, computed)
		return computed, nil
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(V)
	if !ok {
		return zero, fmt.Errorf("memo cell %q holds %T, caller expects different type", key, v)
	}
	return typed, nil
}
