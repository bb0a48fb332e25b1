// Package store provides the in-memory conversation cache.
//
// # Data Model
//
//   - Message: a role (user or agent) and text
//   - Transcript: ordered messages of one conversation, oldest first
//   - Snapshot: a transcript at a given per-key version, as seen by subscribers
//
// A conversation key is an opaque string supplied by the caller. At most one
// transcript exists per key.
//
// # Usage
//
//	st := store.New(logger)
//	st.Set("u1", store.Transcript{store.UserMessage("hi")})
//	st.Update("u1", func(t store.Transcript) store.Transcript {
//		return t.Append(store.AgentMessage("hello"))
//	})
//	st.Remove("u1")
//
// Reads and writes copy transcripts in and out, so callers can never alias
// the store's internal slices.
//
// # Subscriptions
//
// Renderers observe a single key:
//
//	ch, subID := st.Subscribe(ctx, "u1")
//	for snap := range ch {
//		render(snap.Transcript)
//	}
//
// The channel is primed with the current state and then always holds the
// newest unread snapshot. Publishing never blocks, and a change to one key
// never wakes the subscribers of another.
//
// # Persistence
//
// None. The store lives for the lifetime of the process.
package store
