// ABOUTME: HTTP server for the fake dialogue service
// ABOUTME: Serves start_chat, continue_chat and reset_chat with optional JWT auth and idempotent replay

package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/coven-planner/internal/auth"
	"github.com/2389/coven-planner/internal/dedupe"
	"github.com/2389/coven-planner/internal/observe"
	"github.com/2389/coven-planner/internal/store"
	"github.com/2389/coven-planner/internal/transport"
)

// APIPrefix is where the chat endpoints are mounted, matching the client's
// default base URL.
const APIPrefix = "/api"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Error messages returned by the chat endpoints.
const (
	msgMissingFields   = "user_id and message required"
	msgMissingUserID   = "user_id required"
	msgInvalidBody     = "invalid JSON body"
	msgMissingHistory  = "Invalid or missing chat history"
	msgSessionNotFound = "User session not found"
	msgForbiddenUser   = "token not valid for this user_id"
	msgInProgress      = "request with this idempotency key is still in progress"
	msgReset           = "Chat reset"
)

// HeaderReplayed marks a response served from the idempotency cache.
const HeaderReplayed = "Idempotent-Replayed"

// Options configures a Server. Zero values disable the optional features.
type Options struct {
	Sessions       *Sessions
	Replier        Replier             // defaults to EchoReplier
	Verifier       auth.TokenVerifier  // nil disables auth
	Idempotency    *dedupe.Cache       // nil disables replay
	Metrics        *observe.Metrics    // defaults to observe.DefaultMetrics()
	MetricsHandler http.Handler        // mounted at MetricsPath when set
	MetricsPath    string              // defaults to /metrics
	ReplyDelay     time.Duration       // artificial latency before each reply
}

// Server is the fake dialogue service.
type Server struct {
	router   *chi.Mux
	sessions *Sessions
	replier  Replier
	idem     *dedupe.Cache
	delay    time.Duration
	logger   *slog.Logger
}

// NewServer builds the router. Pass nil logger for default.
func NewServer(opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Sessions == nil {
		opts.Sessions = NewSessions(0, logger)
	}
	if opts.Replier == nil {
		opts.Replier = EchoReplier{}
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}

	s := &Server{
		router:   chi.NewRouter(),
		sessions: opts.Sessions,
		replier:  opts.Replier,
		idem:     opts.Idempotency,
		delay:    opts.ReplyDelay,
		logger:   logger.With("component", "planner"),
	}

	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(opts.Metrics, logger))

	r.Get("/health", s.handleHealth)
	if opts.MetricsHandler != nil {
		r.Handle(opts.MetricsPath, opts.MetricsHandler)
	}

	r.Route(APIPrefix, func(r chi.Router) {
		if opts.Verifier != nil {
			r.Use(auth.HTTPAuthMiddleware(opts.Verifier, logger))
		}
		if s.idem != nil {
			r.Use(s.idempotency)
		}
		r.Post(transport.PathStartChat, s.handleStartChat)
		r.Post(transport.PathContinueChat, s.handleContinueChat)
		r.Post(transport.PathResetChat, s.handleResetChat)
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleStartChat(w http.ResponseWriter, r *http.Request) {
	var req transport.StartChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserID == "" || strings.TrimSpace(req.UserInput) == "" {
		sendJSONError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	if !s.authorize(w, r, req.UserID) {
		return
	}

	reply, err := s.reply(r.Context(), nil, req.UserInput)
	if err != nil {
		s.replyFailed(w, req.UserID, err)
		return
	}

	// Starting over discards whatever history the user had
	s.sessions.Set(req.UserID, store.Transcript{
		store.UserMessage(req.UserInput),
		store.AgentMessage(reply),
	})

	s.logger.Debug("chat started", "user_id", req.UserID)
	writeJSON(w, http.StatusOK, transport.ChatResponse{Response: reply})
}

func (s *Server) handleContinueChat(w http.ResponseWriter, r *http.Request) {
	var req transport.ContinueChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserID == "" || strings.TrimSpace(req.Message) == "" {
		sendJSONError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	if !s.authorize(w, r, req.UserID) {
		return
	}

	history, ok := s.sessions.Get(req.UserID)
	if !ok || len(history) == 0 {
		sendJSONError(w, http.StatusNotFound, msgMissingHistory)
		return
	}

	reply, err := s.reply(r.Context(), history, req.Message)
	if err != nil {
		s.replyFailed(w, req.UserID, err)
		return
	}

	s.sessions.Set(req.UserID, history.Append(
		store.UserMessage(req.Message),
		store.AgentMessage(reply),
	))

	s.logger.Debug("chat continued", "user_id", req.UserID, "messages", len(history)+2)
	writeJSON(w, http.StatusOK, transport.ChatResponse{Response: reply})
}

func (s *Server) handleResetChat(w http.ResponseWriter, r *http.Request) {
	var req transport.ResetChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		sendJSONError(w, http.StatusBadRequest, msgMissingUserID)
		return
	}
	if !s.authorize(w, r, req.UserID) {
		return
	}

	if !s.sessions.Delete(req.UserID) {
		sendJSONError(w, http.StatusNotFound, msgSessionNotFound)
		return
	}

	s.logger.Debug("chat reset", "user_id", req.UserID)
	writeJSON(w, http.StatusOK, transport.ChatResponse{Response: msgReset})
}

// reply waits out the configured delay and asks the replier.
func (s *Server) reply(ctx context.Context, history store.Transcript, input string) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.replier.Reply(ctx, history, input)
}

func (s *Server) replyFailed(w http.ResponseWriter, userID string, err error) {
	s.logger.Error("reply failed", "user_id", userID, "error", err)
	sendJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Something went wrong %v", err))
}

// decode reads a JSON body into dst, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		sendJSONError(w, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	return true
}

// authorize rejects callers whose token does not cover userID.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, userID string) bool {
	ac := auth.FromContext(r.Context())
	if ac == nil || ac.CanActAs(userID) {
		return true
	}
	s.logger.Warn("token subject mismatch", "subject", ac.Subject, "user_id", userID)
	sendJSONError(w, http.StatusForbidden, msgForbiddenUser)
	return false
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, transport.ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
