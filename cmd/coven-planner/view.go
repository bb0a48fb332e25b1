// ABOUTME: Renders one conversation from its store subscription
// ABOUTME: Diffs each snapshot against what is on screen, showing new and withdrawn messages

package main

import (
	"context"
	"io"
	"sync"

	"github.com/2389/coven-planner/internal/store"
)

// view prints a conversation as its snapshots arrive. Messages that
// disappear without a reset, like an optimistic message rolled back after a
// failed send, are reported as not sent.
type view struct {
	r     *repl
	key   string
	subID string

	mu       sync.Mutex
	cond     *sync.Cond
	rendered uint64
	closed   bool
	finished chan struct{}
}

// follow subscribes to key and renders it until stop or ctx is done.
func (r *repl) follow(ctx context.Context, key string) *view {
	ch, subID := r.st.Subscribe(ctx, key)
	v := &view{
		r:        r,
		key:      key,
		subID:    subID,
		finished: make(chan struct{}),
	}
	v.cond = sync.NewCond(&v.mu)
	go v.run(ch)
	return v
}

func (v *view) run(ch <-chan store.Snapshot) {
	defer close(v.finished)
	defer func() {
		v.mu.Lock()
		v.closed = true
		v.cond.Broadcast()
		v.mu.Unlock()
	}()

	var shown store.Transcript
	for snap := range ch {
		v.show(shown, snap.Transcript)
		shown = snap.Transcript

		v.mu.Lock()
		v.rendered = snap.Version
		v.cond.Broadcast()
		v.mu.Unlock()
	}
}

// show prints the difference between the old and new transcript.
func (v *view) show(old, cur store.Transcript) {
	n := 0
	for n < len(old) && n < len(cur) && old[n] == cur[n] {
		n++
	}
	withdrawn, added := old[n:], cur[n:]
	if len(withdrawn) == 0 && len(added) == 0 {
		return
	}

	r := v.r
	r.write(func(w io.Writer) {
		switch {
		case len(withdrawn) > 0 && len(cur) == 0 && r.isClearing():
			r.dim.Fprintln(w, "Conversation cleared.")
		default:
			for _, msg := range withdrawn {
				r.errc.Fprintf(w, "✗ not sent: %s\n", msg.Text)
			}
		}
		for _, msg := range added {
			r.printMessage(w, msg)
		}
	})
}

// wait blocks until a snapshot at version or later has been rendered, or
// the subscription has ended.
func (v *view) wait(version uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for v.rendered < version && !v.closed {
		v.cond.Wait()
	}
}

// stop ends the subscription once the last snapshot has been rendered.
func (v *view) stop() {
	v.r.st.Unsubscribe(v.key, v.subID)
	<-v.finished
}
