// ABOUTME: Tests for coven-planner metric instruments
// ABOUTME: Reads recorded data back through an SDK ManualReader

package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func findMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumFor(t *testing.T, m *metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestRecordMutation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordMutation(ctx, "start", OutcomeCommitted)
	m.RecordMutation(ctx, "start", OutcomeCommitted)
	m.RecordMutation(ctx, "continue", OutcomeRolledBack)

	got := findMetric(t, reader, "coven_planner.mutations")
	require.NotNil(t, got)
	assert.Equal(t, int64(2), sumFor(t, got,
		attribute.String("op", "start"), attribute.String("outcome", OutcomeCommitted)))
	assert.Equal(t, int64(1), sumFor(t, got,
		attribute.String("op", "continue"), attribute.String("outcome", OutcomeRolledBack)))
}

func TestPendingMutationsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.MutationStarted(ctx, "start")
	m.MutationStarted(ctx, "start")
	m.MutationSettled(ctx, "start")

	got := findMetric(t, reader, "coven_planner.mutations.pending")
	require.NotNil(t, got)
	assert.Equal(t, int64(1), sumFor(t, got, attribute.String("op", "start")))
}

func TestRecordTransport(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTransport(ctx, "continue", 150*time.Millisecond, nil)
	m.RecordTransport(ctx, "continue", 2*time.Second, errors.New("boom"))

	got := findMetric(t, reader, "coven_planner.transport.duration")
	require.NotNil(t, got)

	hist, ok := got.Data.(metricdata.Histogram[float64])
	require.True(t, ok)

	var total uint64
	statuses := map[string]bool{}
	for _, dp := range hist.DataPoints {
		total += dp.Count
		if v, ok := dp.Attributes.Value("status"); ok {
			statuses[v.AsString()] = true
		}
	}
	assert.Equal(t, uint64(2), total)
	assert.True(t, statuses["ok"])
	assert.True(t, statuses["error"])
}

func TestDefaultMetricsIsSingleton(t *testing.T) {
	assert.Same(t, DefaultMetrics(), DefaultMetrics())
}
