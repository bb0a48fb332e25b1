// Package conversation coordinates user submissions against the dialogue
// service and the local transcript store.
//
// # Overview
//
// The Coordinator sits between the presentation layer and the transport.
// Every submission is applied to the store before the service answers, so
// the user's message shows up immediately. When the service replies the
// agent message is appended; when it fails the transcript is restored to
// exactly what it was before the submission.
//
//	coord := conversation.New(st, client, logger)
//	coord.SetFailureHandler(func(f *conversation.TransportFailure) {
//	    // show f.Err, offer to resubmit f.Text
//	})
//	res, err := coord.Submit(ctx, "alice", "plan a trip to Lisbon")
//
// # Phases
//
// Each conversation key is NotStarted until its first exchange succeeds,
// then Active. SubmitFirst requires NotStarted and SubmitNext requires
// Active; Submit picks whichever applies. A failed first exchange leaves the
// conversation NotStarted so the same text can be resubmitted.
//
// # Concurrency
//
// Only one submit per key may be unsettled. A second submit for the same key
// returns ErrInFlight without touching the store. Different keys never
// interact.
//
// Reset may run while a submit is pending. If the reset succeeds, the
// pending submit's eventual reply or error is dropped and its Result has
// Superseded set. If the reset fails, the pending submit settles normally.
//
// # Errors
//
// Usage errors (ErrEmptyKey, ErrEmptyMessage, ErrInvalidPhase, ErrInFlight)
// are returned before any state changes. Service failures come back as
// *TransportFailure after rollback and are also passed to the handler set
// with SetFailureHandler. The underlying transport error is available
// through errors.Is and errors.As.
package conversation
