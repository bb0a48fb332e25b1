// ABOUTME: JSON-over-HTTP transport for the dialogue service
// ABOUTME: Posts start/continue/reset requests with bearer auth, idempotency keys and trace context

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/coven-planner/internal/observe"
)

const (
	// DefaultBaseURL is where the dialogue service listens in development.
	DefaultBaseURL = "http://127.0.0.1:5000/api"

	// DefaultTimeout bounds a single round trip. Replies come from a language
	// model and can take a while.
	DefaultTimeout = 60 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 1 << 20
)

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	// BaseURL of the service, e.g. "http://127.0.0.1:5000/api".
	BaseURL string
	// Token is sent as a bearer token when non-empty.
	Token string
	// Timeout per request. Ignored when HTTPClient is set.
	Timeout time.Duration
	// HTTPClient overrides the underlying client (tests).
	HTTPClient *http.Client
}

// HTTPClient implements Transport against the dialogue service HTTP API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	metrics *observe.Metrics
	logger  *slog.Logger
}

// NewHTTPClient creates a client. Zero config fields take defaults. Pass nil
// logger for default.
func NewHTTPClient(cfg HTTPConfig, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  client,
		logger:  logger.With("component", "transport"),
	}
}

// SetMetrics enables latency recording for every call.
func (c *HTTPClient) SetMetrics(m *observe.Metrics) {
	c.metrics = m
}

// Start implements Transport.
func (c *HTTPClient) Start(ctx context.Context, key, inputText string) (string, error) {
	var resp ChatResponse
	err := c.post(ctx, OpStart, key, PathStartChat, StartChatRequest{UserID: key, UserInput: inputText}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// Continue implements Transport.
func (c *HTTPClient) Continue(ctx context.Context, key, messageText string) (string, error) {
	var resp ChatResponse
	err := c.post(ctx, OpContinue, key, PathContinueChat, ContinueChatRequest{UserID: key, Message: messageText}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// Reset implements Transport.
func (c *HTTPClient) Reset(ctx context.Context, key string) error {
	return c.post(ctx, OpReset, key, PathResetChat, ResetChatRequest{UserID: key}, nil)
}

// post sends body as JSON and decodes a 2xx reply into out (when non-nil).
// Every failure is returned as *Failure.
func (c *HTTPClient) post(ctx context.Context, op Op, key, path string, body, out any) (err error) {
	ctx, span := observe.StartSpan(ctx, "transport."+string(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("conversation_key", key)),
	)
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if c.metrics != nil {
			c.metrics.RecordTransport(ctx, string(op), time.Since(start), err)
		}
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return &Failure{Op: op, Message: "encoding request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &Failure{Op: op, Message: "creating request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if id, ok := RequestIDFrom(ctx); ok {
		req.Header.Set(HeaderIdempotencyKey, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			"op", op,
			"conversation_key", key,
			"error", err)
		return &Failure{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Failure{Op: op, StatusCode: resp.StatusCode, Message: "reading response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f := &Failure{Op: op, StatusCode: resp.StatusCode}
		var errResp ErrorResponse
		if json.Unmarshal(data, &errResp) == nil {
			f.Message = errResp.Error
		}
		c.logger.Debug("service returned error",
			"op", op,
			"conversation_key", key,
			"status", resp.StatusCode,
			"message", f.Message)
		return f
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Failure{Op: op, StatusCode: resp.StatusCode, Message: "invalid response body", Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
