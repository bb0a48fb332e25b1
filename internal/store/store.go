// ABOUTME: In-memory conversation store keyed by conversation key
// ABOUTME: Holds one ordered transcript per key and notifies per-key subscribers on change

package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Role identifies who authored a message.
type Role string

// Message roles
const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Message is a single transcript entry. Messages are values and are never
// mutated after creation.
type Message struct {
	Role Role
	Text string
}

// UserMessage returns a message authored by the end user.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// AgentMessage returns a message authored by the remote dialogue service.
func AgentMessage(text string) Message {
	return Message{Role: RoleAgent, Text: text}
}

// Transcript is the ordered message history of one conversation.
// Insertion order is chronological order.
type Transcript []Message

// Clone returns a copy that shares no backing array with t.
// Empty transcripts clone to nil.
func (t Transcript) Clone() Transcript {
	if len(t) == 0 {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// Append returns a new transcript with msgs added after the existing messages.
// The receiver is left untouched.
func (t Transcript) Append(msgs ...Message) Transcript {
	out := make(Transcript, 0, len(t)+len(msgs))
	out = append(out, t...)
	return append(out, msgs...)
}

// Last returns the most recent message, if any.
func (t Transcript) Last() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[len(t)-1], true
}

// Snapshot is what subscribers receive: the full transcript of one key at a
// given version.
type Snapshot struct {
	Key        string
	Transcript Transcript
	// Version increases by one on every change to Key and never goes back,
	// even across Remove.
	Version uint64
	// Removed is true when the key has no transcript (reset, or never used).
	Removed bool
}

// Store is the conversation cache. It is safe for concurrent use.
//
// Every method that changes a key's transcript publishes a Snapshot to that
// key's subscribers before returning, so notifications for a key are
// delivered in the same order the changes were made.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]Transcript
	versions map[string]uint64
	subs     *broadcaster
	logger   *slog.Logger
}

// New creates an empty store. Pass nil logger for default.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")
	return &Store{
		entries:  make(map[string]Transcript),
		versions: make(map[string]uint64),
		subs:     newBroadcaster(logger),
		logger:   logger,
	}
}

// Get returns the transcript for key, or an empty transcript if there is none.
func (s *Store) Get(key string) Transcript {
	t, _ := s.Lookup(key)
	return t
}

// Lookup returns the transcript for key and whether the key is present.
func (s *Store) Lookup(key string) (Transcript, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.entries[key]
	return t.Clone(), ok
}

// Set replaces the transcript for key.
func (s *Store) Set(key string, t Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = t.Clone()
	s.publishLocked(key)
}

// Update applies fn to the current transcript for key and stores the result.
// fn runs under the store lock and must not call back into the store.
// The stored transcript is returned.
func (s *Store) Update(key string, fn func(Transcript) Transcript) Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.entries[key].Clone()).Clone()
	s.entries[key] = next
	s.publishLocked(key)
	return next.Clone()
}

// Remove deletes the transcript for key. Subscribers are only notified when
// the key was present. Reports whether anything was removed.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	s.publishLocked(key)
	return true
}

// Version returns the version of key's latest change, 0 if it never changed.
// It matches the Version of the newest Snapshot published for key.
func (s *Store) Version(key string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[key]
}

// Keys returns the keys that currently hold a transcript, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys holding a transcript.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Subscribe registers for changes to key. The returned channel immediately
// holds the current state of key and afterwards always holds the newest
// unread Snapshot: a subscriber that falls behind skips intermediate states
// but never misses the latest one. The channel is closed on Unsubscribe,
// Close, or when ctx is cancelled.
func (s *Store) Subscribe(ctx context.Context, key string) (<-chan Snapshot, string) {
	s.mu.RLock()
	ch, subID, done := s.subs.subscribe(key, s.snapshotLocked(key))
	s.mu.RUnlock()

	go func() {
		select {
		case <-ctx.Done():
			s.subs.unsubscribe(key, subID)
		case <-done:
		}
	}()

	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(key, subID string) {
	s.subs.unsubscribe(key, subID)
}

// Close drops all subscriptions, closing their channels. The store itself
// remains readable and writable.
func (s *Store) Close() {
	s.subs.close()
}

// publishLocked bumps the version of key and fans the new state out.
// Must be called with mu held for writing.
func (s *Store) publishLocked(key string) {
	s.versions[key]++
	snap := s.snapshotLocked(key)
	s.subs.publish(snap)

	s.logger.Debug("transcript changed",
		"conversation_key", key,
		"version", snap.Version,
		"messages", len(snap.Transcript),
		"removed", snap.Removed)
}

// snapshotLocked builds the current Snapshot for key. Must be called with mu held.
func (s *Store) snapshotLocked(key string) Snapshot {
	t, ok := s.entries[key]
	return Snapshot{
		Key:        key,
		Transcript: t.Clone(),
		Version:    s.versions[key],
		Removed:    !ok,
	}
}
