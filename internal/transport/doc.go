// Package transport talks to the remote dialogue service.
//
// # Contract
//
// Transport has three operations, one per service endpoint:
//
//   - Start(ctx, key, text): first message of a conversation
//   - Continue(ctx, key, text): every later message
//   - Reset(ctx, key): discard the conversation
//
// Start and Continue return the service's reply text. Nothing is cached or
// retried here; that belongs to the conversation package.
//
// # HTTP API
//
// HTTPClient speaks the service's JSON API:
//
//	POST {base}/start_chat     {"user_id": "...", "user_input": "..."} -> {"response": "..."}
//	POST {base}/continue_chat  {"user_id": "...", "message": "..."}    -> {"response": "..."}
//	POST {base}/reset_chat     {"user_id": "..."}                       -> {"response": "Chat reset"}
//
// Non-2xx replies carry {"error": "..."} and surface as *Failure:
//
//	var f *transport.Failure
//	if errors.As(err, &f) {
//		fmt.Println(f.StatusCode, f.Message)
//	}
//	if errors.Is(err, transport.ErrSessionNotFound) { ... }
//
// # Headers
//
//   - Authorization: Bearer <token>, when configured
//   - Idempotency-Key: from WithRequestID, one per mutation
//   - traceparent: W3C trace context of the calling span
package transport
