// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/store"
)

var errNotSupported = errors.New("not supported by fake pool")

// fakePool answers DELETE statements with per-table row counts and records
// which tables were swept.
type fakePool struct {
	mu       sync.Mutex
	removed  map[string]int64
	failOn   string
	swept    []string
	closed   bool
	pingErr  error
	execHook func()
}

func (p *fakePool) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	p.mu.Lock()
	table := deleteTable(sql)
	p.swept = append(p.swept, table)
	hook := p.execHook
	n := p.removed[table]
	fail := p.failOn != "" && p.failOn == table
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	if fail {
		return pgconn.CommandTag{}, errors.New("connection reset")
	}
	return pgconn.NewCommandTag(fmt.Sprintf("DELETE %d", n)), nil
}

func (p *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errNotSupported
}

func (p *fakePool) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{}
}

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) {
	return nil, errNotSupported
}

func (p *fakePool) Ping(context.Context) error { return p.pingErr }

func (p *fakePool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePool) sweptTables() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.swept...)
}

func (p *fakePool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type errRow struct{}

func (errRow) Scan(...any) error { return errNotSupported }

// deleteTable extracts the table from "DELETE FROM <table> ...".
func deleteTable(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) >= 3 && strings.EqualFold(fields[0], "DELETE") {
		return fields[2]
	}
	return sql
}

// fakeMigrator records calls and returns canned results.
type fakeMigrator struct {
	upErr    error
	downErr  error
	forceErr error
	status   *store.Status
	calls    []string
	closed   bool
}

func (m *fakeMigrator) Up() error {
	m.calls = append(m.calls, "up")
	return m.upErr
}

func (m *fakeMigrator) Down() error {
	m.calls = append(m.calls, "down")
	return m.downErr
}

func (m *fakeMigrator) Force(version int) error {
	m.calls = append(m.calls, fmt.Sprintf("force %d", version))
	return m.forceErr
}

func (m *fakeMigrator) Status() (*store.Status, error) {
	m.calls = append(m.calls, "status")
	if m.status == nil {
		return &store.Status{Version: 3, Name: "000003_verification_codes"}, nil
	}
	return m.status, nil
}

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

// fakeObservability is an ObservabilityServer with a private registry.
type fakeObservability struct {
	mu      sync.Mutex
	metrics *observability.Metrics
	errCh   chan error
	started bool
	stopped bool
}

func newFakeObservability() *fakeObservability {
	return &fakeObservability{
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		errCh:   make(chan error, 1),
	}
}

func (o *fakeObservability) Start() (<-chan error, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = true
	return o.errCh, nil
}

func (o *fakeObservability) Stop(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
	return nil
}

func (o *fakeObservability) Addr() string { return "127.0.0.1:0" }

func (o *fakeObservability) Metrics() *observability.Metrics { return o.metrics }

func (o *fakeObservability) state() (started, stopped bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started, o.stopped
}

// testDeps wires fakes into Deps.
func testDeps(pool *fakePool, migrator *fakeMigrator) *Deps {
	return &Deps{
		MigratorFactory: func(string) (Migrator, error) { return migrator, nil },
		PoolFactory: func(context.Context, store.PoolConfig, *slog.Logger) (Pool, error) {
			return pool, nil
		},
	}
}
