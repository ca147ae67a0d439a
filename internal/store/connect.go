// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store owns the PostgreSQL schema and connection pool used by the
// auth repositories.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolConfig controls pool creation.
type PoolConfig struct {
	URL      string
	MaxConns int32
	// Attempts is the number of connection attempts before giving up.
	Attempts uint64
	// Backoff is the first retry delay; it doubles per attempt.
	Backoff time.Duration
	// MaxBackoff caps a single delay.
	MaxBackoff time.Duration
}

// DefaultPoolConfig returns the pool settings used when none are configured.
func DefaultPoolConfig(url string) PoolConfig {
	return PoolConfig{
		URL:        url,
		MaxConns:   10,
		Attempts:   5,
		Backoff:    250 * time.Millisecond,
		MaxBackoff: 5 * time.Second,
	}
}

// Connect opens a pool and pings it, retrying with exponential backoff while
// the database is unreachable. A malformed URL fails immediately.
func Connect(ctx context.Context, cfg PoolConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	backoff := retry.NewExponential(cfg.Backoff)
	if cfg.MaxBackoff > 0 {
		backoff = retry.WithCappedDuration(cfg.MaxBackoff, backoff)
	}
	if cfg.Attempts > 0 {
		backoff = retry.WithMaxRetries(cfg.Attempts-1, backoff)
	}

	var (
		pool    *pgxpool.Pool
		attempt int
	)
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return oops.With("attempt", attempt).Wrap(err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			logger.WarnContext(ctx, "database not reachable, retrying",
				"attempt", attempt,
				"host", poolCfg.ConnConfig.Host,
				"error", err)
			return retry.RetryableError(oops.With("attempt", attempt).Wrap(err))
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("attempts", attempt).
			With("host", poolCfg.ConnConfig.Host).
			Wrap(err)
	}

	logger.InfoContext(ctx, "database connected",
		"host", poolCfg.ConnConfig.Host,
		"database", poolCfg.ConnConfig.Database,
		"attempts", attempt)
	return pool, nil
}
