// ABOUTME: Thread-safe TTL cache for replaying responses to repeated idempotency keys
// ABOUTME: Used by the fake dialogue service so a retried mutation is applied at most once

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Response is a recorded reply to replay for a repeated key.
type Response struct {
	Status int
	Body   []byte
}

// State is the result of Begin.
type State int

// Begin outcomes
const (
	// StateNew means the key was unseen; the caller now owns it and must
	// call Complete or Abandon.
	StateNew State = iota
	// StateInProgress means another caller owns the key and has not finished.
	StateInProgress
	// StateDone means a response was recorded and should be replayed.
	StateDone
)

// cacheEntry stores the timestamp, list element and (once complete) the
// response for a cached key.
type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
	resp      *Response // nil while in progress
}

// Cache provides a thread-safe, TTL-based, size-limited store of responses
// keyed by idempotency key. Uses a doubly-linked list to maintain insertion
// order for O(1) eviction.
type Cache struct {
	mu      sync.RWMutex
	seen    map[string]*cacheEntry
	order   *list.List // List of keys in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a new cache with the specified TTL and maximum size.
// A background goroutine periodically cleans up expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Begin atomically checks key and claims it when unseen or expired.
// The returned Response is only meaningful with StateDone.
func (c *Cache) Begin(key string) (Response, State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[key]
	if ok && time.Since(entry.timestamp) < c.ttl {
		if entry.resp == nil {
			return Response{}, StateInProgress
		}
		return cloneResponse(*entry.resp), StateDone
	}

	c.putLocked(key, nil)
	return Response{}, StateNew
}

// Lookup returns the recorded response for key, if any.
func (c *Cache) Lookup(key string) (Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.seen[key]
	if !ok || entry.resp == nil || time.Since(entry.timestamp) >= c.ttl {
		return Response{}, false
	}
	return cloneResponse(*entry.resp), true
}

// Complete records resp for a key claimed with Begin. The TTL restarts.
func (c *Cache) Complete(key string, resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp = cloneResponse(resp)
	c.putLocked(key, &resp)
}

// Abandon releases a claimed key without recording a response, so a later
// request with the same key is processed again.
func (c *Cache) Abandon(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[key]; ok && entry.resp == nil {
		c.order.Remove(entry.element)
		delete(c.seen, key)
	}
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.seen)
}

// putLocked inserts or refreshes key. Must be called with mu held.
func (c *Cache) putLocked(key string, resp *Response) {
	now := time.Now()

	// If key already exists, update it and move to back
	if entry, exists := c.seen[key]; exists {
		entry.timestamp = now
		entry.resp = resp
		c.order.MoveToBack(entry.element)
		return
	}

	// Evict oldest if at capacity
	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.seen[key] = &cacheEntry{
		timestamp: now,
		element:   elem,
		resp:      resp,
	}
}

// evictOldest removes the oldest entry from the cache.
// Must be called with mu held. O(1) operation using linked list.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.seen {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}

func cloneResponse(r Response) Response {
	if r.Body != nil {
		r.Body = append([]byte(nil), r.Body...)
	}
	return r
}
