// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/postgres"
	"github.com/holomush/holoauth/internal/auth/redisstore"
	"github.com/holomush/holoauth/internal/config"
)

// stores holds the open connections behind a set of repositories.
type stores struct {
	deps  auth.Deps
	pool  Pool
	redis redis.UniversalClient
}

// codeBackend names where verification codes live.
func (s *stores) codeBackend() string {
	if s.redis != nil {
		return "redis"
	}
	return "postgres"
}

func (s *stores) Close(logger *slog.Logger) {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logger.Warn("failed to close redis client", "error", err)
		}
	}
	s.pool.Close()
}

// openStores connects to Postgres and, when configured, Redis. Redis takes
// over verification codes; everything else stays in Postgres.
func openStores(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger) (*stores, error) {
	pool, err := deps.PoolFactory(ctx, poolConfig(cfg), logger)
	if err != nil {
		return nil, err
	}
	s := &stores{pool: pool, deps: postgres.New(pool).Deps()}

	if cfg.Redis.Addr == "" {
		return s, nil
	}
	client := deps.RedisFactory(cfg.Redis)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // ping error takes precedence
		pool.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Redis.Addr).Wrap(err)
	}
	s.redis = client
	s.deps.Codes = redisstore.NewVerificationCodeRepository(client, redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix))
	logger.Info("verification codes stored in redis", "addr", cfg.Redis.Addr)
	return s, nil
}
