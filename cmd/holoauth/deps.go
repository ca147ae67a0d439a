// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/holomush/holoauth/internal/auth/postgres"
	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/observability"
	"github.com/holomush/holoauth/internal/store"
)

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// MigratorFactory creates a schema migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// PoolFactory opens a database pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, cfg store.PoolConfig, logger *slog.Logger) (Pool, error)

	// RedisFactory creates a Redis client.
	// Default: redis.NewClient
	RedisFactory func(cfg config.RedisConfig) redis.UniversalClient

	// ObservabilityServerFactory creates a metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.PoolFactory == nil {
		out.PoolFactory = func(ctx context.Context, cfg store.PoolConfig, logger *slog.Logger) (Pool, error) {
			pool, err := store.Connect(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if out.RedisFactory == nil {
		out.RedisFactory = func(cfg config.RedisConfig) redis.UniversalClient {
			return redis.NewClient(&redis.Options{
				Addr:     cfg.Addr,
				Password: cfg.Password,
				DB:       cfg.DB,
			})
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker, logger)
		}
	}
	return &out
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// Pool is a database pool the repositories can run on.
type Pool interface {
	postgres.DB
	Ping(ctx context.Context) error
	Close()
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
