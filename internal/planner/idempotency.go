// ABOUTME: Idempotency-Key handling for the chat endpoints
// ABOUTME: Replays the recorded response for a repeated key and rejects duplicates still in flight

package planner

import (
	"bytes"
	"net/http"

	"github.com/2389/coven-planner/internal/auth"
	"github.com/2389/coven-planner/internal/dedupe"
	"github.com/2389/coven-planner/internal/transport"
)

// capture records the status and body written through it.
type capture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *capture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *capture) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}

// idempotency serves repeated requests carrying the same Idempotency-Key
// from the cache. Server errors are not recorded so the client may retry.
func (s *Server) idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(transport.HeaderIdempotencyKey)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Scope by endpoint and caller so keys from different users never collide
		scope := r.URL.Path + "|" + key
		if ac := auth.FromContext(r.Context()); ac != nil {
			scope = ac.Subject + "|" + scope
		}

		resp, state := s.idem.Begin(scope)
		switch state {
		case dedupe.StateDone:
			s.logger.Debug("replaying response", "path", r.URL.Path, "idempotency_key", key)
			w.Header().Set(HeaderReplayed, "true")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(resp.Status)
			_, _ = w.Write(resp.Body)
			return
		case dedupe.StateInProgress:
			sendJSONError(w, http.StatusConflict, msgInProgress)
			return
		}

		rec := &capture{ResponseWriter: w}
		defer func() {
			if rec.status == 0 || rec.status >= http.StatusInternalServerError {
				s.idem.Abandon(scope)
				return
			}
			s.idem.Complete(scope, dedupe.Response{Status: rec.status, Body: rec.body.Bytes()})
		}()

		next.ServeHTTP(rec, r)
	})
}
