// ABOUTME: Expiring per-user chat sessions for the fake dialogue service
// ABOUTME: Keeps each user's history in a transcript store and forgets it after the session TTL

package planner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-planner/internal/store"
)

// Sessions holds chat history per user id. A session expires ttl after its
// last write; expired sessions read as absent. Zero ttl never expires.
type Sessions struct {
	history *store.Store
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.Mutex
	expires map[string]time.Time
}

// NewSessions creates an empty session table. Pass nil logger for default.
func NewSessions(ttl time.Duration, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		history: store.New(logger),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger.With("component", "sessions"),
		expires: make(map[string]time.Time),
	}
}

// Get returns the history of userID and whether a live session exists.
func (s *Sessions) Get(userID string) (store.Transcript, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.liveLocked(userID) {
		return nil, false
	}
	return s.history.Lookup(userID)
}

// Set replaces the history of userID and restarts its TTL.
func (s *Sessions) Set(userID string, history store.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Set(userID, history)
	if s.ttl > 0 {
		s.expires[userID] = s.now().Add(s.ttl)
	}
}

// Delete drops the session of userID. Returns false when none was live.
func (s *Sessions) Delete(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.liveLocked(userID)
	s.history.Remove(userID)
	delete(s.expires, userID)
	return live
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, key := range s.history.Keys() {
		if s.liveLocked(key) {
			n++
		}
	}
	return n
}

// Sweep removes expired sessions and returns how many were removed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := s.now()
	for key, exp := range s.expires {
		if !now.Before(exp) {
			s.history.Remove(key)
			delete(s.expires, key)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is done.
func (s *Sessions) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}

// Close releases the underlying store.
func (s *Sessions) Close() {
	s.history.Close()
}

// liveLocked reports whether userID has an unexpired session. Must be called with mu held.
func (s *Sessions) liveLocked(userID string) bool {
	if _, ok := s.history.Lookup(userID); !ok {
		return false
	}
	if s.ttl <= 0 {
		return true
	}
	exp, ok := s.expires[userID]
	return ok && s.now().Before(exp)
}
