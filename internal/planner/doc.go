// Package planner implements a local stand-in for the dialogue service.
//
// # Overview
//
// The service speaks the same JSON API as the real planner backend, so the
// client can be developed and tested without a language model:
//
//	POST /api/start_chat     {"user_id", "user_input"} -> {"response"}
//	POST /api/continue_chat  {"user_id", "message"}    -> {"response"}
//	POST /api/reset_chat     {"user_id"}               -> {"response": "Chat reset"}
//	GET  /health
//
// Failures are {"error": "..."} with 400 for missing fields, 404 when
// continuing or resetting without a session, and 500 when the Replier
// fails.
//
// # Sessions
//
// History is kept per user id and expires after the session TTL, counted
// from the last exchange. start_chat always begins a fresh history.
//
// # Optional Features
//
//   - Verifier set: every chat request needs a bearer JWT whose subject is
//     the user id (or "*").
//   - Idempotency set: a repeated Idempotency-Key replays the first
//     response instead of running the exchange again.
//   - ReplyDelay set: each reply is delayed, to exercise client loading
//     states and timeouts.
package planner
