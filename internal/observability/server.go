// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the service is ready to accept requests.
type ReadinessChecker func() bool

// Package-level counters let services record events without holding the
// Server. They are registered on every Server registry by NewMetrics.
var (
	sessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accountd_sessions_created_total",
			Help: "Total number of user sessions created",
		},
	)
	sessionsRevoked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_sessions_revoked_total",
			Help: "Total number of user sessions revoked by reason",
		},
		[]string{"reason"},
	)
	tokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_tokens_issued_total",
			Help: "Total number of verification tokens issued by purpose",
		},
		[]string{"purpose"},
	)
	tokensConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_tokens_consumed_total",
			Help: "Total number of verification token consume attempts by purpose and result",
		},
		[]string{"purpose", "result"},
	)
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_notifications_total",
			Help: "Total number of outbound notifications by kind and status",
		},
		[]string{"kind", "status"},
	)
	swept = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_swept_total",
			Help: "Total number of expired records removed by the sweeper",
		},
		[]string{"kind"},
	)
)

// RecordSessionCreated increments the session creation counter.
func RecordSessionCreated() {
	sessionsCreated.Inc()
}

// RecordSessionsRevoked adds n revoked sessions for the given reason.
func RecordSessionsRevoked(reason string, n int) {
	if n <= 0 {
		return
	}
	sessionsRevoked.WithLabelValues(reason).Add(float64(n))
}

// RecordTokenIssued increments the token issuance counter.
func RecordTokenIssued(purpose string) {
	tokensIssued.WithLabelValues(purpose).Inc()
}

// RecordTokenConsumed records a consume attempt. result is "ok" or an error code.
func RecordTokenConsumed(purpose, result string) {
	tokensConsumed.WithLabelValues(purpose, result).Inc()
}

// RecordDelivery records an outbound notification attempt.
func RecordDelivery(kind, status string) {
	deliveries.WithLabelValues(kind, status).Inc()
}

// RecordSwept adds n swept records of the given kind.
func RecordSwept(kind string, n int64) {
	if n <= 0 {
		return
	}
	swept.WithLabelValues(kind).Add(float64(n))
}

// Metrics contains the HTTP request metrics of the API server.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers accountd metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accountd_http_requests_total",
				Help: "Total number of API requests by route and status",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "accountd_http_request_duration_seconds",
				Help:    "API request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(sessionsCreated, sessionsRevoked, tokensIssued, tokensConsumed, deliveries, swept)

	return m
}

// ObserveRequest records one API request.
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Server serves metrics and health checks on a dedicated listener.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates a new observability server.
// addr: listen address in "host:port" format (e.g., "127.0.0.1:9100", ":9100" for all interfaces).
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics := NewMetrics(registry)

	s := &Server{
		addr:     addr,
		registry: registry,
		metrics:  metrics,
		isReady:  readinessChecker,
	}

	return s
}

// Metrics returns the API request metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving observability endpoints.
// It returns an error channel that will receive any errors from the HTTP server
// after it starts. The channel is closed when the server stops gracefully.
// Callers should monitor this channel to detect server failures.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	// Kubernetes-style health checks
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	// Create buffered error channel so the goroutine doesn't block
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		// Use local httpSrv to avoid race with subsequent Start() calls
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	// Use CompareAndSwap to atomically transition from running to stopped.
	// This prevents a race where a concurrent Start() could succeed between
	// checking the running state and setting it to false.
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			// Restore running state on failure so the server can be stopped again
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleLiveness returns 200 while the process is running.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

// handleReadiness returns 200 if the service is ready to accept requests,
// or 503 if not ready.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable, client may disconnect
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("not ready\n"))
}
