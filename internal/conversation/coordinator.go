// ABOUTME: Mutation coordinator: optimistic transcript updates with snapshot rollback
// ABOUTME: Allows one in-flight submit per conversation key and drops settlements superseded by reset

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-planner/internal/observe"
	"github.com/2389/coven-planner/internal/store"
	"github.com/2389/coven-planner/internal/transport"
)

// Phase records whether a conversation's opening exchange has succeeded.
type Phase int

// Conversation phases
const (
	PhaseNotStarted Phase = iota
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseActive:
		return "active"
	default:
		return "unknown"
	}
}

// Result is the outcome of a submit that was not rejected.
type Result struct {
	// Reply is the agent message appended on commit.
	Reply store.Message
	// Transcript is the transcript right after the commit.
	Transcript store.Transcript
	// Superseded is set when a reset completed while the submit was in
	// flight. Nothing was written to the store and Reply is empty.
	Superseded bool
}

// FailureHandler receives every TransportFailure, after rollback. It is
// called without any coordinator lock held.
type FailureHandler func(*TransportFailure)

// session is the per-key state owned by the coordinator.
type session struct {
	phase     Phase
	pending   *mutation // unsettled submit, nil when idle
	resetting bool
}

// mutation is one optimistic submit, from snapshot to settle.
type mutation struct {
	id       string
	op       transport.Op
	snapshot store.Transcript
	existed  bool // whether the key had a transcript before the optimistic write
}

// Coordinator applies user submissions to the store optimistically and
// reconciles them with the dialogue service. It is safe for concurrent use.
//
// Locking: mu guards sessions and is held across every store write the
// coordinator makes, never across a transport call. The store never calls
// back into the coordinator.
type Coordinator struct {
	store     *store.Store
	transport transport.Transport
	metrics   *observe.Metrics
	onFailure FailureHandler
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates a coordinator over st and tr. Pass nil logger for default.
func New(st *store.Store, tr transport.Transport, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:     st,
		transport: tr,
		logger:    logger.With("component", "coordinator"),
		sessions:  make(map[string]*session),
	}
}

// SetMetrics enables mutation metrics.
func (c *Coordinator) SetMetrics(m *observe.Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// SetFailureHandler registers the callback for transport failures.
func (c *Coordinator) SetFailureHandler(fn FailureHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFailure = fn
}

// Phase returns the phase of key. Unknown keys are NotStarted.
func (c *Coordinator) Phase(key string) Phase {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[key]; ok {
		return s.phase
	}
	return PhaseNotStarted
}

// Pending reports whether a submit or reset for key is unsettled.
func (c *Coordinator) Pending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[key]
	return ok && (s.pending != nil || s.resetting)
}

// Transcript returns the current transcript of key.
func (c *Coordinator) Transcript(key string) store.Transcript {
	return c.store.Get(key)
}

// SubmitFirst opens the conversation for key with text. Valid only while
// the conversation is NotStarted.
func (c *Coordinator) SubmitFirst(ctx context.Context, key, text string) (*Result, error) {
	return c.submit(ctx, key, text, transport.OpStart, false)
}

// SubmitNext sends text in the open conversation for key. Valid only while
// the conversation is Active.
func (c *Coordinator) SubmitNext(ctx context.Context, key, text string) (*Result, error) {
	return c.submit(ctx, key, text, transport.OpContinue, false)
}

// Submit sends text using start or continue, whichever the current phase
// of key calls for. The choice is made atomically with the in-flight check.
func (c *Coordinator) Submit(ctx context.Context, key, text string) (*Result, error) {
	return c.submit(ctx, key, text, "", true)
}

// submit runs snapshot -> optimistic apply -> await -> commit or rollback.
func (c *Coordinator) submit(ctx context.Context, key, text string, op transport.Op, auto bool) (*Result, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	s, m, err := c.begin(key, text, op, auto)
	if err != nil {
		if errors.Is(err, ErrInFlight) {
			c.recordMutation(ctx, op, observe.OutcomeRejected)
		}
		c.logger.Debug("submit rejected",
			"conversation_key", key,
			"op", op,
			"error", err)
		return nil, err
	}

	if met := c.metricsSnapshot(); met != nil {
		met.MutationStarted(ctx, string(m.op))
	}
	c.logger.Debug("optimistic message applied",
		"conversation_key", key,
		"mutation_id", m.id,
		"op", m.op)

	reply, callErr := c.call(transport.WithRequestID(ctx, m.id), m.op, key, text)

	return c.settle(ctx, key, text, s, m, reply, callErr)
}

// begin performs the guard checks and the optimistic write as one atomic step.
func (c *Coordinator) begin(key, text string, op transport.Op, auto bool) (*session, *mutation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[key]
	if !ok {
		s = &session{}
	}

	if auto {
		op = transport.OpStart
		if s.phase == PhaseActive {
			op = transport.OpContinue
		}
	}

	if s.pending != nil || s.resetting {
		return nil, nil, ErrInFlight
	}

	want := PhaseNotStarted
	if op == transport.OpContinue {
		want = PhaseActive
	}
	if s.phase != want {
		return nil, nil, phaseError(op, key, s.phase, want)
	}

	snapshot, existed := c.store.Lookup(key)
	m := &mutation{
		id:       uuid.New().String(),
		op:       op,
		snapshot: snapshot,
		existed:  existed,
	}
	c.store.Set(key, snapshot.Append(store.UserMessage(text)))

	s.pending = m
	c.sessions[key] = s
	return s, m, nil
}

// settle commits or rolls back m unless a reset has superseded it.
func (c *Coordinator) settle(ctx context.Context, key, text string, s *session, m *mutation, replyText string, callErr error) (*Result, error) {
	c.mu.Lock()
	met := c.metrics

	if met != nil {
		met.MutationSettled(ctx, string(m.op))
	}

	if s.pending != m {
		c.mu.Unlock()
		c.logger.Debug("settlement dropped, mutation superseded",
			"conversation_key", key,
			"mutation_id", m.id,
			"op", m.op,
			"error", callErr)
		c.recordMutationWith(ctx, met, m.op, observe.OutcomeSuperseded)
		return &Result{Superseded: true}, nil
	}
	s.pending = nil

	if callErr != nil {
		if m.existed {
			c.store.Set(key, m.snapshot)
		} else {
			c.store.Remove(key)
		}
		c.pruneLocked(key, s)
		handler := c.onFailure
		c.mu.Unlock()

		failure := &TransportFailure{Op: m.op, Key: key, Text: text, Err: callErr}
		c.logger.Warn("mutation rolled back",
			"conversation_key", key,
			"mutation_id", m.id,
			"op", m.op,
			"error", callErr)
		c.recordMutationWith(ctx, met, m.op, observe.OutcomeRolledBack)
		if handler != nil {
			handler(failure)
		}
		return nil, failure
	}

	reply := store.AgentMessage(replyText)
	transcript := c.store.Update(key, func(t store.Transcript) store.Transcript {
		return t.Append(reply)
	})
	if m.op == transport.OpStart {
		s.phase = PhaseActive
	}
	c.mu.Unlock()

	c.logger.Debug("mutation committed",
		"conversation_key", key,
		"mutation_id", m.id,
		"op", m.op,
		"messages", len(transcript))
	c.recordMutationWith(ctx, met, m.op, observe.OutcomeCommitted)

	return &Result{Reply: reply, Transcript: transcript}, nil
}

// Reset discards the conversation for key on the service and then locally.
// On failure nothing local changes. A submit still in flight for key is
// superseded by a successful reset.
func (c *Coordinator) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	c.mu.Lock()
	s, ok := c.sessions[key]
	if !ok {
		s = &session{}
		c.sessions[key] = s
	}
	if s.resetting {
		met := c.metrics
		c.mu.Unlock()
		c.recordMutationWith(ctx, met, transport.OpReset, observe.OutcomeRejected)
		return ErrInFlight
	}
	s.resetting = true
	met := c.metrics
	c.mu.Unlock()

	if met != nil {
		met.MutationStarted(ctx, string(transport.OpReset))
	}

	_, err := c.call(transport.WithRequestID(ctx, uuid.New().String()), transport.OpReset, key, "")
	if errors.Is(err, transport.ErrSessionNotFound) {
		// The service holds no conversation for key, which is the state a
		// reset asks for.
		c.logger.Debug("reset of unknown session treated as success", "conversation_key", key)
		err = nil
	}

	c.mu.Lock()
	if met != nil {
		met.MutationSettled(ctx, string(transport.OpReset))
	}
	s.resetting = false

	if err != nil {
		c.pruneLocked(key, s)
		handler := c.onFailure
		c.mu.Unlock()

		failure := &TransportFailure{Op: transport.OpReset, Key: key, Err: err}
		c.logger.Warn("reset failed", "conversation_key", key, "error", err)
		c.recordMutationWith(ctx, met, transport.OpReset, observe.OutcomeRolledBack)
		if handler != nil {
			handler(failure)
		}
		return failure
	}

	superseded := s.pending
	s.pending = nil
	s.phase = PhaseNotStarted
	if c.sessions[key] == s {
		delete(c.sessions, key)
	}
	c.store.Remove(key)
	c.mu.Unlock()

	if superseded != nil {
		c.logger.Debug("pending mutation superseded by reset",
			"conversation_key", key,
			"mutation_id", superseded.id)
	}
	c.logger.Debug("conversation reset", "conversation_key", key)
	c.recordMutationWith(ctx, met, transport.OpReset, observe.OutcomeCommitted)
	return nil
}

// call dispatches op to the transport.
func (c *Coordinator) call(ctx context.Context, op transport.Op, key, text string) (string, error) {
	switch op {
	case transport.OpStart:
		return c.transport.Start(ctx, key, text)
	case transport.OpContinue:
		return c.transport.Continue(ctx, key, text)
	case transport.OpReset:
		return "", c.transport.Reset(ctx, key)
	default:
		return "", fmt.Errorf("unknown operation %q", op)
	}
}

// pruneLocked forgets a session that carries no state. Must be called with mu held.
func (c *Coordinator) pruneLocked(key string, s *session) {
	if s.phase == PhaseNotStarted && s.pending == nil && !s.resetting && c.sessions[key] == s {
		delete(c.sessions, key)
	}
}

func (c *Coordinator) metricsSnapshot() *observe.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *Coordinator) recordMutation(ctx context.Context, op transport.Op, outcome string) {
	c.recordMutationWith(ctx, c.metricsSnapshot(), op, outcome)
}

func (c *Coordinator) recordMutationWith(ctx context.Context, met *observe.Metrics, op transport.Op, outcome string) {
	if met == nil {
		return
	}
	if op == "" {
		op = "submit"
	}
	met.RecordMutation(ctx, string(op), outcome)
}
