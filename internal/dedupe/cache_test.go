// ABOUTME: Tests for the idempotency response cache
// ABOUTME: Validates claim/complete/abandon, TTL expiration, eviction, cleanup and concurrency safety

package dedupe

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Begin_NewKey(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	_, state := cache.Begin("never-seen-key")
	assert.Equal(t, StateNew, state)

	// The key is now claimed
	_, state = cache.Begin("never-seen-key")
	assert.Equal(t, StateInProgress, state)
}

func TestCache_CompleteThenReplay(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	_, state := cache.Begin("req-1")
	require.Equal(t, StateNew, state)

	cache.Complete("req-1", Response{Status: 200, Body: []byte(`{"response":"hi"}`)})

	resp, state := cache.Begin("req-1")
	assert.Equal(t, StateDone, state)
	assert.Equal(t, 200, resp.Status)
	assert.JSONEq(t, `{"response":"hi"}`, string(resp.Body))

	got, ok := cache.Lookup("req-1")
	require.True(t, ok)
	assert.Equal(t, resp, got)
}

func TestCache_ReplayedBodyIsACopy(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	body := []byte("original")
	cache.Begin("k")
	cache.Complete("k", Response{Status: 200, Body: body})
	body[0] = 'X'

	resp, _ := cache.Lookup("k")
	resp.Body[1] = 'Y'

	again, _ := cache.Lookup("k")
	assert.Equal(t, "original", string(again.Body))
}

func TestCache_Abandon(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	cache.Begin("req-1")
	cache.Abandon("req-1")

	_, state := cache.Begin("req-1")
	assert.Equal(t, StateNew, state, "abandoned key must be processable again")

	// Abandon never drops a completed response
	cache.Complete("req-1", Response{Status: 200})
	cache.Abandon("req-1")
	_, ok := cache.Lookup("req-1")
	assert.True(t, ok)
}

func TestCache_Lookup_InProgressIsMiss(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	cache.Begin("req-1")
	_, ok := cache.Lookup("req-1")
	assert.False(t, ok)
}

func TestCache_Expired(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	cache.Begin("expiring-key")
	cache.Complete("expiring-key", Response{Status: 200})

	_, ok := cache.Lookup("expiring-key")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = cache.Lookup("expiring-key")
	assert.False(t, ok)

	_, state := cache.Begin("expiring-key")
	assert.Equal(t, StateNew, state)
}

func TestCache_EvictionOrder(t *testing.T) {
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	for _, k := range []string{"first", "second", "third"} {
		cache.Begin(k)
		cache.Complete(k, Response{Status: 200})
	}
	assert.Equal(t, 3, cache.Len())

	// Add fourth - should evict "first" (oldest)
	cache.Begin("fourth")

	_, ok := cache.Lookup("first")
	assert.False(t, ok, "first should be evicted")
	for _, k := range []string{"second", "third"} {
		_, ok := cache.Lookup(k)
		assert.True(t, ok, "%s should remain", k)
	}
	assert.Equal(t, 3, cache.Len())
}

func TestCache_Cleanup(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	for _, k := range []string{"cleanup-1", "cleanup-2", "cleanup-3"} {
		cache.Begin(k)
	}
	time.Sleep(20 * time.Millisecond)

	// Trigger cleanup manually rather than waiting for the ticker
	cache.runCleanup()

	assert.Equal(t, 0, cache.Len(), "cleanup should remove expired entries from map")
}

func TestCache_Begin_Atomic(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	const numGoroutines = 100

	var winners int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if _, state := cache.Begin("contested-key"); state == StateNew {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), winners, "exactly one goroutine should claim the key")
}

func TestCache_Close(t *testing.T) {
	cache := New(5*time.Minute, 100)

	// Close should not panic and multiple closes are fine
	cache.Close()
	cache.Close()
}
