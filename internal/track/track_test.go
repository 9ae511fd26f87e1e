package track

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveBaselineAndChange(t *testing.T) {
	tr := New()

	assert.False(t, tr.Observe("route/server", "h1"), "first observation is the baseline")
	assert.False(t, tr.Observe("route/server", "h1"), "unchanged fingerprint")
	assert.True(t, tr.Observe("route/server", "h2"))
	assert.False(t, tr.Observe("route/server", "h2"))
}

func TestKeysAreIndependent(t *testing.T) {
	tr := New()
	tr.Observe("a", "h1")
	tr.Observe("b", "h1")
	assert.True(t, tr.Observe("a", "h2"))
	assert.False(t, tr.Observe("b", "h1"))
}

func TestSubscribeNotifiesOnChange(t *testing.T) {
	tr := New()
	tr.Observe("route/client", "h1")

	h := tr.Subscribe("route/client")
	defer h.Close()

	tr.Observe("route/client", "h2")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))
}

func TestSubscribeCoalescesPendingChanges(t *testing.T) {
	tr := New()
	tr.Observe("k", "h1")

	h := tr.Subscribe("k")
	defer h.Close()

	tr.Observe("k", "h2")
	tr.Observe("k", "h3")

	<-h.Changed()
	select {
	case <-h.Changed():
		t.Fatal("changes while unread must coalesce into one notification")
	default:
	}
}

func TestClosedHandleStopsReceiving(t *testing.T) {
	tr := New()
	tr.Observe("k", "h1")

	h := tr.Subscribe("k")
	h.Close()

	tr.Observe("k", "h2")
	select {
	case <-h.Changed():
		t.Fatal("closed handle must not be notified")
	default:
	}
}

func TestWaitHonorsContext(t *testing.T) {
	tr := New()
	h := tr.Subscribe("idle")
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)
}
