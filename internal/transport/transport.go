// ABOUTME: Transport adapter contract for the remote dialogue service
// ABOUTME: Start, continue and reset a conversation; no caching or retry logic lives here

package transport

import "context"

// Op names one of the three remote operations.
type Op string

// Remote operations
const (
	OpStart    Op = "start"
	OpContinue Op = "continue"
	OpReset    Op = "reset"
)

// Transport issues the remote operations of the dialogue service.
// Implementations own request timeouts; callers may add deadlines via ctx.
type Transport interface {
	// Start opens a conversation for key with its first message.
	Start(ctx context.Context, key, inputText string) (replyText string, err error)
	// Continue sends a follow-up message in an open conversation.
	Continue(ctx context.Context, key, messageText string) (replyText string, err error)
	// Reset discards the remote conversation for key.
	Reset(ctx context.Context, key string) error
}

type requestIDKey struct{}

// WithRequestID attaches an idempotency key to ctx. HTTPClient forwards it as
// the Idempotency-Key header so the service can recognise replays.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the idempotency key attached by WithRequestID.
func RequestIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}
