// ABOUTME: Per-key fan-out of transcript snapshots to store subscribers
// ABOUTME: Single-slot channels keep only the newest snapshot so publishing never blocks

package store

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// broadcaster delivers Snapshots to the subscribers of a single key.
// The Store calls publish while holding its own write lock, which is what
// orders notifications; broadcaster.mu only guards the subscriber maps.
type broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]map[string]*subscription // conversationKey -> subID -> sub
	closed      bool
	logger      *slog.Logger
}

// subscription is one subscriber. done is closed together with ch.
type subscription struct {
	ch   chan Snapshot
	done chan struct{}
}

func (s *subscription) end() {
	close(s.ch)
	close(s.done)
}

func newBroadcaster(logger *slog.Logger) *broadcaster {
	return &broadcaster{
		subscribers: make(map[string]map[string]*subscription),
		logger:      logger,
	}
}

// subscribe registers a new subscriber for key and primes its channel with
// initial. The returned done channel is closed when the subscription ends.
// After close, both channels are already closed.
func (b *broadcaster) subscribe(key string, initial Snapshot) (ch chan Snapshot, subID string, done <-chan struct{}) {
	subID = uuid.New().String()
	sub := &subscription{
		ch:   make(chan Snapshot, 1),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.end()
		return sub.ch, subID, sub.done
	}

	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[string]*subscription)
	}
	b.subscribers[key][subID] = sub
	sub.ch <- initial

	b.logger.Debug("subscriber added",
		"conversation_key", key,
		"sub_id", subID)

	return sub.ch, subID, sub.done
}

// publish hands snap to every subscriber of snap.Key, replacing any snapshot
// the subscriber has not read yet.
func (b *broadcaster) publish(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers[snap.Key] {
		offer(sub.ch, snap)
	}
}

// offer places snap in a single-slot channel, evicting a stale value.
// Only publish sends on subscriber channels and it holds b.mu, so after the
// eviction the slot is guaranteed free.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}
	ch <- snap
}

// unsubscribe removes a subscription and closes its channel.
func (b *broadcaster) unsubscribe(key, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[key]
	if !ok {
		return
	}

	sub, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	sub.end()

	if len(subs) == 0 {
		delete(b.subscribers, key)
	}

	b.logger.Debug("subscriber removed",
		"conversation_key", key,
		"sub_id", subID)
}

// close closes every subscriber channel. Later subscriptions get a closed channel.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, subs := range b.subscribers {
		for subID, sub := range subs {
			sub.end()
			delete(subs, subID)
		}
		delete(b.subscribers, key)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
