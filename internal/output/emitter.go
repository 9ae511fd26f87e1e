package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vk/routepack/internal/ctxlog"
)

// Emitter materializes assets under the configured disk roots. It remembers
// the content hash of every path it has written, so re-emitting an unchanged
// asset is a no-op and repeated writes of one endpoint stay idempotent.
//
// Transient file-system retry policy belongs to callers; the emitter
// performs a single attempt per asset.
type Emitter struct {
	serverDir string
	clientDir string

	mu      sync.Mutex
	written map[string]string
}

// NewEmitter creates an emitter rooted at the two output directories.
func NewEmitter(serverDir, clientDir string) *Emitter {
	return &Emitter{
		serverDir: serverDir,
		clientDir: clientDir,
		written:   make(map[string]string),
	}
}

// Emit writes all assets, skipping those whose content is unchanged since
// the last emission. It returns the number of files actually written. All
// assets are on disk when Emit returns.
func (e *Emitter) Emit(ctx context.Context, assets []*Asset) (int, error) {
	logger := ctxlog.FromContext(ctx)

	writtenCount := 0
	for _, asset := range assets {
		e.mu.Lock()
		previous, seen := e.written[asset.ID()]
		e.mu.Unlock()

		hash := asset.Hash()
		if seen && previous == hash {
			continue
		}

		root := e.serverDir
		if asset.Root == RootClient {
			root = e.clientDir
		}
		target := filepath.Join(root, filepath.FromSlash(asset.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return writtenCount, fmt.Errorf("failed to create output directory for %s: %w", asset.Path, err)
		}
		if err := os.WriteFile(target, asset.Content, 0o644); err != nil {
			return writtenCount, fmt.Errorf("failed to write %s: %w", asset.Path, err)
		}

		e.mu.Lock()
		e.written[asset.ID()] = hash
		e.mu.Unlock()
		writtenCount++
		logger.Debug("Emitted output asset.", "path", asset.Path, "root", asset.Root.String())
	}
	return writtenCount, nil
}
