// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability exposes credential flow metrics and health probes
// over HTTP.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// ReadinessChecker reports whether the service can take work.
type ReadinessChecker func() bool

// Metrics holds the auth counters. It implements auth.FlowRecorder and
// auth.SweepRecorder.
type Metrics struct {
	FlowsTotal        *prometheus.CounterVec
	SweepsTotal       *prometheus.CounterVec
	SweptRecordsTotal *prometheus.CounterVec
}

// NewMetrics creates the auth metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FlowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holoauth_flows_total",
				Help: "Credential flow completions by flow and outcome",
			},
			[]string{"flow", "outcome"},
		),
		SweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holoauth_sweeps_total",
				Help: "Expiry sweeps by target and status",
			},
			[]string{"target", "status"},
		),
		SweptRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holoauth_swept_records_total",
				Help: "Expired records removed by target",
			},
			[]string{"target"},
		),
	}

	reg.MustRegister(m.FlowsTotal, m.SweepsTotal, m.SweptRecordsTotal)
	return m
}

// RecordFlow counts one flow completion.
func (m *Metrics) RecordFlow(flow, outcome string) {
	m.FlowsTotal.WithLabelValues(flow, outcome).Inc()
}

// RecordSweep counts one sweep of target.
func (m *Metrics) RecordSweep(target string, removed int64, err error) {
	if err != nil {
		m.SweepsTotal.WithLabelValues(target, "error").Inc()
		return
	}
	m.SweepsTotal.WithLabelValues(target, "ok").Inc()
	if removed > 0 {
		m.SweptRecordsTotal.WithLabelValues(target).Add(float64(removed))
	}
}

var (
	_ auth.FlowRecorder  = (*Metrics)(nil)
	_ auth.SweepRecorder = (*Metrics)(nil)
)

// Server serves /metrics and the health probes.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	logger     *slog.Logger
	running    atomic.Bool
}

// NewServer creates a server listening on addr ("host:port"; port 0 picks
// a free port). A nil checker always reports ready.
func NewServer(addr string, readinessChecker ReadinessChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	// A private registry keeps tests and embedders off the global one.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
		logger:   logger,
	}
}

// Metrics returns the auth metrics served by s.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving. The returned channel receives a serve error, if
// any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_ALREADY_RUNNING").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // client may disconnect
	w.Write([]byte("ok\n"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // client may disconnect
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // client may disconnect
	w.Write([]byte("not ready\n"))
}
