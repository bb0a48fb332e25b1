// ABOUTME: OpenTelemetry metric instruments for the conversation synchronizer
// ABOUTME: Counts mutation outcomes and times transport calls and dialogue-service requests

package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all coven-planner metrics.
const meterName = "github.com/2389/coven-planner"

// Mutation outcomes recorded on Metrics.Mutations.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeSuperseded = "superseded"
	OutcomeRejected   = "rejected"
)

// Metrics holds the metric instruments. All fields are safe for concurrent
// use; the OTel types synchronise internally.
type Metrics struct {
	// Mutations counts settled or rejected mutations.
	// Attributes: op (start, continue, reset), outcome.
	Mutations metric.Int64Counter

	// PendingMutations tracks mutations that have been applied optimistically
	// but not yet settled.
	PendingMutations metric.Int64UpDownCounter

	// TransportDuration tracks dialogue-service round trips as seen by the client.
	// Attributes: op, status ("ok" or "error").
	TransportDuration metric.Float64Histogram

	// HTTPRequestDuration tracks request handling time on the fake dialogue
	// service. Attributes: method, path, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Dialogue replies come
// from a language model, so the tail is long.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Mutations, err = m.Int64Counter("coven_planner.mutations",
		metric.WithDescription("Conversation mutations by operation and outcome."),
	); err != nil {
		return nil, err
	}
	if met.PendingMutations, err = m.Int64UpDownCounter("coven_planner.mutations.pending",
		metric.WithDescription("Mutations applied optimistically and awaiting the dialogue service."),
	); err != nil {
		return nil, err
	}
	if met.TransportDuration, err = m.Float64Histogram("coven_planner.transport.duration",
		metric.WithDescription("Round-trip latency of dialogue-service calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("coven_planner.http.request.duration",
		metric.WithDescription("Request latency of the fake dialogue service."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level Metrics bound to the global meter
// provider. Tests should use NewMetrics with their own provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordMutation counts one mutation outcome.
func (m *Metrics) RecordMutation(ctx context.Context, op, outcome string) {
	m.Mutations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("outcome", outcome),
		),
	)
}

// MutationStarted increments the pending gauge. Pair with MutationSettled.
func (m *Metrics) MutationStarted(ctx context.Context, op string) {
	m.PendingMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// MutationSettled decrements the pending gauge.
func (m *Metrics) MutationSettled(ctx context.Context, op string) {
	m.PendingMutations.Add(ctx, -1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordTransport records the latency of one dialogue-service call.
func (m *Metrics) RecordTransport(ctx context.Context, op string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.TransportDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}
