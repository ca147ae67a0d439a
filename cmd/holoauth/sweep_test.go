// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/store"
	"github.com/holomush/holoauth/pkg/errutil"
)

var allTables = []string{
	"login_sessions",
	"signup_sessions",
	"password_reset_sessions",
	"account_association_sessions",
	"email_verification_codes",
}

func TestSweep_Once(t *testing.T) {
	pool := &fakePool{removed: map[string]int64{"login_sessions": 2, "email_verification_codes": 5}}

	out, _, err := execute(context.Background(), testDeps(pool, &fakeMigrator{}),
		"sweep", "--database-url", testDatabaseURL)

	require.NoError(t, err)
	assert.Equal(t, allTables, pool.sweptTables())
	assert.Equal(t, "association_sessions: removed 0\n"+
		"login_sessions: removed 2\n"+
		"password_reset_sessions: removed 0\n"+
		"signup_sessions: removed 0\n"+
		"verification_codes: removed 5\n", out)
	assert.True(t, pool.isClosed())
}

func TestSweep_OnceContinuesPastFailures(t *testing.T) {
	pool := &fakePool{removed: map[string]int64{"login_sessions": 1}, failOn: "signup_sessions"}

	out, logs, err := execute(context.Background(), testDeps(pool, &fakeMigrator{}),
		"sweep", "--database-url", testDatabaseURL)

	require.Error(t, err)
	assert.Equal(t, allTables, pool.sweptTables(), "every target is attempted")
	assert.Contains(t, out, "login_sessions: removed 1")
	assert.NotContains(t, out, "signup_sessions")
	assert.Contains(t, logs, "sweep failed")
}

func TestSweep_RedisCodes(t *testing.T) {
	mr := miniredis.RunT(t)
	pool := &fakePool{}

	out, _, err := execute(context.Background(), testDeps(pool, &fakeMigrator{}),
		"sweep", "--database-url", testDatabaseURL, "--redis-addr", mr.Addr())

	require.NoError(t, err)
	assert.Equal(t, allTables[:4], pool.sweptTables(), "codes expire in redis, not postgres")
	assert.Contains(t, out, "verification_codes: removed 0")
}

func TestSweep_RedisUnavailable(t *testing.T) {
	pool := &fakePool{}

	_, _, err := execute(context.Background(), testDeps(pool, &fakeMigrator{}),
		"sweep", "--database-url", testDatabaseURL, "--redis-addr", "127.0.0.1:1")

	errutil.AssertErrorCode(t, err, "REDIS_CONNECT_FAILED")
	assert.Empty(t, pool.sweptTables())
	assert.True(t, pool.isClosed())
}

func TestSweep_PoolError(t *testing.T) {
	deps := &Deps{PoolFactory: func(context.Context, store.PoolConfig, *slog.Logger) (Pool, error) {
		return nil, errors.New("unreachable")
	}}

	_, _, err := execute(context.Background(), deps, "sweep", "--database-url", testDatabaseURL)

	require.EqualError(t, err, "unreachable")
}

func TestSweep_Daemon(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent(), goleak.IgnoreAnyFunction("os/signal.loop"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	pool := &fakePool{removed: map[string]int64{"login_sessions": 3}}
	pool.execHook = func() { once.Do(cancel) }
	obs := newFakeObservability()
	deps := testDeps(pool, &fakeMigrator{})
	deps.ObservabilityServerFactory = func(string, observability.ReadinessChecker, *slog.Logger) ObservabilityServer {
		return obs
	}

	out, _, err := execute(ctx, deps, "sweep", "--interval", "1h",
		"--database-url", testDatabaseURL, "--metrics-addr", "127.0.0.1:0")

	require.NoError(t, err)
	assert.Contains(t, out, "Sweeper started")
	started, stopped := obs.state()
	assert.True(t, started)
	assert.True(t, stopped)
	assert.Equal(t, allTables, pool.sweptTables(), "first sweep runs immediately and completes")
	assert.InDelta(t, 3, testutil.ToFloat64(obs.metrics.SweptRecordsTotal.WithLabelValues("login_sessions")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(obs.metrics.SweepsTotal.WithLabelValues("signup_sessions", "ok")), 0)
}

func TestSweep_DaemonStopsOnObservabilityFailure(t *testing.T) {
	obs := newFakeObservability()
	obs.errCh <- errors.New("listener closed")
	deps := testDeps(&fakePool{}, &fakeMigrator{})
	deps.ObservabilityServerFactory = func(string, observability.ReadinessChecker, *slog.Logger) ObservabilityServer {
		return obs
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := execute(context.Background(), deps, "sweep", "--daemon",
			"--database-url", testDatabaseURL, "--metrics-addr", "127.0.0.1:0")
		done <- err
	}()

	select {
	case err := <-done:
		errutil.AssertErrorCode(t, err, "OBSERVABILITY_FAILED")
	case <-time.After(5 * time.Second):
		t.Fatal("sweep daemon did not stop after observability failure")
	}
	_, stopped := obs.state()
	assert.True(t, stopped)
}
