// Package watch drives incremental rebuilds: it observes the configuration
// and source directories and reports coalesced change batches, which the app
// layer turns into a build-generation bump and a rebuild.
package watch

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vk/routepack/internal/ctxlog"
)

// DefaultSettle is how long the watcher waits for the file system to go
// quiet before reporting a change batch.
const DefaultSettle = 150 * time.Millisecond

// Watcher reports coalesced file-system change batches.
type Watcher struct {
	fsw    *fsnotify.Watcher
	settle time.Duration
}

// New creates a watcher over the given paths. Directories are watched
// non-recursively, matching how config files are laid out.
func New(paths []string, settle time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := fsw.Add(p); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{fsw: fsw, settle: settle}, nil
}

// Run invokes onChange with the changed paths of each settled batch until
// the context is canceled. Watcher errors are logged, not fatal.
func (w *Watcher) Run(ctx context.Context, onChange func(paths []string)) error {
	logger := ctxlog.FromContext(ctx)

	var (
		pending []string
		timer   *time.Timer
		fire    <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("File change observed.", "path", ev.Name, "op", ev.Op.String())
			pending = append(pending, ev.Name)
			if timer == nil {
				timer = time.NewTimer(w.settle)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.settle)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error.", "error", err)

		case <-fire:
			batch := dedupe(pending)
			pending = nil
			fire = nil
			timer = nil
			onChange(batch)
		}
	}
}

// Close stops the watcher. Run returns after Close.
func (w *Watcher) Close() error { return w.fsw.Close() }

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
