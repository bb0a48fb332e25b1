// ABOUTME: Tests for store subscriptions
// ABOUTME: Covers priming, per-key isolation, latest-wins coalescing, unsubscribe and ctx cleanup

package store

import (
	"context"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "channel closed")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func assertQuiet(t *testing.T, ch <-chan Snapshot) {
	t.Helper()
	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot for %q at version %d", snap.Key, snap.Version)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribe_PrimedWithCurrentState(t *testing.T) {
	st := New(nil)
	defer st.Close()

	st.Set("u1", Transcript{UserMessage("hi")})

	ch, _ := st.Subscribe(t.Context(), "u1")
	snap := receive(t, ch)

	assert.Equal(t, "u1", snap.Key)
	assert.Equal(t, Transcript{UserMessage("hi")}, snap.Transcript)
	assert.Equal(t, uint64(1), snap.Version)
	assert.False(t, snap.Removed)
}

func TestSubscribe_PrimedForUnknownKey(t *testing.T) {
	st := New(nil)
	defer st.Close()

	ch, _ := st.Subscribe(t.Context(), "fresh")
	snap := receive(t, ch)

	assert.True(t, snap.Removed)
	assert.Empty(t, snap.Transcript)
	assert.Equal(t, uint64(0), snap.Version)
}

func TestSubscribe_NotifiedOnSetUpdateRemove(t *testing.T) {
	st := New(nil)
	defer st.Close()

	ch, _ := st.Subscribe(t.Context(), "u1")
	receive(t, ch) // initial

	st.Set("u1", Transcript{UserMessage("hi")})
	snap := receive(t, ch)
	assert.Equal(t, Transcript{UserMessage("hi")}, snap.Transcript)

	st.Update("u1", func(tr Transcript) Transcript { return tr.Append(AgentMessage("hello")) })
	snap = receive(t, ch)
	assert.Equal(t, Transcript{UserMessage("hi"), AgentMessage("hello")}, snap.Transcript)

	st.Remove("u1")
	snap = receive(t, ch)
	assert.True(t, snap.Removed)
	assert.Empty(t, snap.Transcript)
	assert.Equal(t, uint64(3), snap.Version)
}

func TestSubscribe_RemoveOfAbsentKeyIsSilent(t *testing.T) {
	st := New(nil)
	defer st.Close()

	ch, _ := st.Subscribe(t.Context(), "u1")
	receive(t, ch)

	st.Remove("u1")
	assertQuiet(t, ch)
}

func TestSubscribe_OtherKeysDoNotNotify(t *testing.T) {
	st := New(nil)
	defer st.Close()

	ch1, _ := st.Subscribe(t.Context(), "u1")
	ch2, _ := st.Subscribe(t.Context(), "u2")
	receive(t, ch1)
	receive(t, ch2)

	st.Set("u1", Transcript{UserMessage("only u1")})
	st.Update("u1", func(tr Transcript) Transcript { return tr.Append(AgentMessage("reply")) })
	st.Remove("u1")

	assertQuiet(t, ch2)
}

func TestSubscribe_SlowSubscriberSeesLatest(t *testing.T) {
	st := New(nil)
	defer st.Close()

	ch, _ := st.Subscribe(t.Context(), "u1")

	// Never read while publishing: the slot must hold only the newest state
	for i := 0; i < 10; i++ {
		st.Update("u1", func(tr Transcript) Transcript { return tr.Append(UserMessage("m")) })
	}

	snap := receive(t, ch)
	assert.Equal(t, uint64(10), snap.Version)
	assert.Len(t, snap.Transcript, 10)
	assertQuiet(t, ch)
}

func TestSubscribe_VersionSurvivesRemove(t *testing.T) {
	st := New(nil)
	defer st.Close()

	st.Set("u1", Transcript{UserMessage("a")})
	st.Remove("u1")
	st.Set("u1", Transcript{UserMessage("b")})

	ch, _ := st.Subscribe(t.Context(), "u1")
	snap := receive(t, ch)
	assert.Equal(t, uint64(3), snap.Version)
}

func TestSubscribe_MultipleSubscribersSameKey(t *testing.T) {
	st := New(nil)
	defer st.Close()

	ch1, _ := st.Subscribe(t.Context(), "u1")
	ch2, _ := st.Subscribe(t.Context(), "u1")
	receive(t, ch1)
	receive(t, ch2)

	st.Set("u1", Transcript{UserMessage("both")})

	for i, ch := range []<-chan Snapshot{ch1, ch2} {
		snap := receive(t, ch)
		assert.Equal(t, "both", snap.Transcript[0].Text, "subscriber %d got wrong snapshot", i)
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	st := New(nil)
	defer st.Close()

	ch, subID := st.Subscribe(t.Context(), "u1")
	receive(t, ch)

	st.Unsubscribe("u1", subID)

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after unsubscribe must not panic
	st.Set("u1", Transcript{UserMessage("after")})

	// Double unsubscribe is a no-op
	st.Unsubscribe("u1", subID)
}

func TestSubscribe_ContextCancelUnsubscribes(t *testing.T) {
	st := New(nil)
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := st.Subscribe(ctx, "u1")
	receive(t, ch)

	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestClose_ClosesAllAndRejectsNew(t *testing.T) {
	st := New(nil)

	ch1, _ := st.Subscribe(t.Context(), "u1")
	ch2, _ := st.Subscribe(t.Context(), "u2")
	receive(t, ch1)
	receive(t, ch2)

	st.Close()

	_, ok := <-ch1
	assert.False(t, ok)
	_, ok = <-ch2
	assert.False(t, ok)

	ch3, _ := st.Subscribe(t.Context(), "u3")
	_, ok = <-ch3
	assert.False(t, ok)

	// The data side keeps working
	st.Set("u1", Transcript{UserMessage("still here")})
	assert.Len(t, st.Get("u1"), 1)
}

func TestBroadcaster_DoneClosedOnUnsubscribeAndClose(t *testing.T) {
	b := newBroadcaster(slog.Default())

	_, id1, done1 := b.subscribe("u1", Snapshot{Key: "u1"})
	_, _, done2 := b.subscribe("u2", Snapshot{Key: "u2"})

	b.unsubscribe("u1", id1)
	assertClosed(t, done1)

	b.close()
	assertClosed(t, done2)

	_, _, done3 := b.subscribe("u3", Snapshot{Key: "u3"})
	assertClosed(t, done3)
}

func TestSubscribe_WatcherExitsOnUnsubscribe(t *testing.T) {
	st := New(nil)
	defer st.Close()

	before := runtime.NumGoroutine()

	// A context that is never cancelled must not pin the watcher goroutine
	for i := 0; i < 20; i++ {
		_, subID := st.Subscribe(context.Background(), "u1")
		st.Unsubscribe("u1", subID)
	}

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, time.Second, 5*time.Millisecond)
}

func assertClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done channel not closed")
	}
}
