// Package http provides the inbound HTTP transport: a decision endpoint, a
// trace lookup endpoint, a health check, and a Prometheus metrics endpoint.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// HealthChecker reports whether the service is ready to serve traffic.
type HealthChecker func() error

// Transport serves the decision API and, optionally, metrics on a second
// listener.
type Transport struct {
	addr          string
	metricsAddr   string
	logger        *slog.Logger
	planner       PlannerService
	traces        TraceReader
	reg           *prometheus.Registry
	healthCheck   HealthChecker
	server        *http.Server
	metricsServer *http.Server
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// WithMetricsAddr sets a separate listener address for /metrics. If empty or
// equal to the main addr, metrics are served on the main mux instead.
func WithMetricsAddr(addr string) Option {
	return func(t *Transport) { t.metricsAddr = addr }
}

// WithHealthChecker overrides the default always-healthy check.
func WithHealthChecker(fn HealthChecker) Option {
	return func(t *Transport) { t.healthCheck = fn }
}

// WithRegisterer swaps the default Prometheus registry, e.g. to reuse one
// metrics.New(reg) was already constructed against.
func WithRegisterer(reg *prometheus.Registry) Option {
	return func(t *Transport) { t.reg = reg }
}

// New builds a Transport serving addr. planner and traces back the decision
// and trace-lookup endpoints; either may be nil only in tests that don't
// exercise those routes.
func New(addr string, planner PlannerService, traces TraceReader, opts ...Option) *Transport {
	t := &Transport{
		addr:    addr,
		planner: planner,
		traces:  traces,
		logger:  slog.Default(),
		reg:     prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.healthCheck == nil {
		t.healthCheck = func() error { return nil }
	}
	return t
}

// Start builds the handler chain and serves until ctx is canceled, then
// gracefully shuts down. It blocks until shutdown completes or a fatal
// listener error occurs.
func (t *Transport) Start(ctx context.Context) error {
	t.reg.MustRegister(collectors.NewGoCollector())
	t.reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mux := http.NewServeMux()
	mux.Handle("POST /v1/plan", t.handlePlan())
	mux.Handle("GET /v1/traces/{id}", t.handleTrace())
	mux.Handle("GET /health", t.handleHealth())

	serveMetricsOnMain := t.metricsAddr == "" || t.metricsAddr == t.addr
	if serveMetricsOnMain {
		mux.Handle("GET /metrics", promhttp.HandlerFor(t.reg, promhttp.HandlerOpts{}))
	}

	t.server = &http.Server{Addr: t.addr, Handler: requestLogging(t.logger)(mux)}

	errCh := make(chan error, 2)
	go func() {
		t.logger.Info("http listener starting", "addr", t.addr)
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if !serveMetricsOnMain {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", promhttp.HandlerFor(t.reg, promhttp.HandlerOpts{}))
		t.metricsServer = &http.Server{Addr: t.metricsAddr, Handler: metricsMux}
		go func() {
			t.logger.Info("metrics listener starting", "addr", t.metricsAddr)
			if err := t.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// Registerer exposes the transport's Prometheus registry so callers can
// register domain metrics against the same registry serving /metrics.
func (t *Transport) Registerer() prometheus.Registerer {
	return t.reg
}

func (t *Transport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	if t.server != nil {
		err = t.server.Shutdown(ctx)
	}
	if t.metricsServer != nil {
		if mErr := t.metricsServer.Shutdown(ctx); mErr != nil && err == nil {
			err = mErr
		}
	}
	return err
}
