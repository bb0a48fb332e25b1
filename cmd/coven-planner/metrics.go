// ABOUTME: Optional Prometheus endpoint for the terminal client
// ABOUTME: Exposes mutation and transport metrics while the client runs

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/2389/coven-planner/internal/config"
	"github.com/2389/coven-planner/internal/observe"
)

// telemetry is the client's metrics wiring. addr is empty when the endpoint
// is disabled.
type telemetry struct {
	metrics  *observe.Metrics
	addr     string
	shutdown func(context.Context) error
}

// startTelemetry builds the client's metrics. When cfg.Enabled it installs
// the SDK providers and serves cfg.Path on cfg.Addr; otherwise the
// instruments are bound to the no-op global provider. Pass nil logger for
// default.
func startTelemetry(ctx context.Context, cfg config.MetricsConfig, logger *slog.Logger) (*telemetry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tel := &telemetry{shutdown: func(context.Context) error { return nil }}

	if !cfg.Enabled {
		m, err := observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return nil, fmt.Errorf("creating metrics: %w", err)
		}
		tel.metrics = m
		return tel, nil
	}

	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "coven-planner",
		ServiceVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		_ = shutdownOTel(ctx)
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = shutdownOTel(ctx)
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	r := chi.NewRouter()
	r.Handle(cfg.Path, promhttp.Handler())
	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	tel.metrics = m
	tel.addr = ln.Addr().String()
	tel.shutdown = func(ctx context.Context) error {
		return errors.Join(srv.Shutdown(ctx), shutdownOTel(ctx))
	}
	logger.Debug("metrics endpoint listening", "addr", tel.addr, "path", cfg.Path)
	return tel, nil
}
