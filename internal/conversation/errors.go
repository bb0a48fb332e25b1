// ABOUTME: Error values returned by the mutation coordinator
// ABOUTME: Usage errors are sentinels; remote failures are *TransportFailure carrying the retry text

package conversation

import (
	"errors"
	"fmt"

	"github.com/2389/coven-planner/internal/transport"
)

// Usage errors. The store is never touched when one of these is returned.
var (
	ErrEmptyKey     = errors.New("conversation key is required")
	ErrEmptyMessage = errors.New("message text is required")
	ErrInvalidPhase = errors.New("invalid conversation phase")
	ErrInFlight     = errors.New("another mutation is in flight for this conversation")
)

// TransportFailure reports that the dialogue service rejected or never
// answered a mutation. The transcript has already been rolled back when the
// caller sees it; resubmitting Text re-runs the whole protocol.
type TransportFailure struct {
	Op   transport.Op
	Key  string
	Text string // submitted text, empty for reset
	Err  error
}

func (f *TransportFailure) Error() string {
	return fmt.Sprintf("%s failed for %q: %v", f.Op, f.Key, f.Err)
}

func (f *TransportFailure) Unwrap() error {
	return f.Err
}

// phaseError wraps ErrInvalidPhase with the phases involved.
func phaseError(op transport.Op, key string, have, want Phase) error {
	return fmt.Errorf("%w: %s on %q needs %s, conversation is %s", ErrInvalidPhase, op, key, want, have)
}
