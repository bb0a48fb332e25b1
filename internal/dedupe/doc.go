// Package dedupe provides a time-based response cache keyed by idempotency
// key, so a retried request is processed once and its response replayed.
//
//	resp, state := cache.Begin(key)
//	switch state {
//	case dedupe.StateDone:       // replay resp
//	case dedupe.StateInProgress: // reject, the first request is still running
//	case dedupe.StateNew:        // process, then Complete (or Abandon on error)
//	}
package dedupe
