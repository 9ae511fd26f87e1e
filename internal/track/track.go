// Package track implements change detection over content fingerprints.
// An endpoint observes the hash of its server or client asset set after each
// build; subscribers holding a handle are notified whenever a later
// observation differs from the previous one.
package track

import (
	"context"
	"sync"
)

// Tracker records the last observed fingerprint per key and fans change
// notifications out to subscribers.
type Tracker struct {
	mu     sync.Mutex
	last   map[string]string
	subs   map[string]map[int]chan struct{}
	nextID int
}

func New() *Tracker {
	return &Tracker{
		last: make(map[string]string),
		subs: make(map[string]map[int]chan struct{}),
	}
}

// Observe records the fingerprint for key and reports whether it differs
// from the previous observation. The first observation of a key establishes
// the baseline and reports no change. Subscribers are notified on change.
func (t *Tracker) Observe(key, hash string) bool {
	t.mu.Lock()
	prev, seen := t.last[key]
	t.last[key] = hash
	changed := seen && prev != hash
	var notify []chan struct{}
	if changed {
		for _, ch := range t.subs[key] {
			notify = append(notify, ch)
		}
	}
	t.mu.Unlock()

	for _, ch := range notify {
		select {
		case ch <- struct{}{}:
		default:
			// Slow subscriber already has a pending notification.
		}
	}
	return changed
}

// Handle is one subscription to a key's changes.
type Handle struct {
	t   *Tracker
	key string
	id  int
	ch  chan struct{}
}

// Subscribe returns a handle notified whenever the key's observed
// fingerprint changes.
func (t *Tracker) Subscribe(key string) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	if t.subs[key] == nil {
		t.subs[key] = make(map[int]chan struct{})
	}
	ch := make(chan struct{}, 1)
	t.subs[key][id] = ch
	return &Handle{t: t, key: key, id: id, ch: ch}
}

// Changed returns the notification channel. It delivers one value per
// coalesced change; pending notifications are never lost, only merged.
func (h *Handle) Changed() <-chan struct{} { return h.ch }

// Wait blocks until the next change notification or context cancellation.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close removes the subscription.
func (h *Handle) Close() {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	delete(h.t.subs[h.key], h.id)
	if len(h.t.subs[h.key]) == 0 {
		delete(h.t.subs, h.key)
	}
}
