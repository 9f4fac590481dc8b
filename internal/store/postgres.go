// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package store owns the PostgreSQL schema and connection setup.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolConfig tunes Connect.
type PoolConfig struct {
	MaxConns int32
	// ConnectAttempts bounds the initial ping retries. Zero means one attempt.
	ConnectAttempts uint64
	// RetryBase is the first backoff delay. It doubles on each retry.
	RetryBase time.Duration
}

// Connect opens a pgx pool and pings it, retrying with exponential backoff
// until the database answers or the attempts run out.
func Connect(ctx context.Context, url string, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := Retry(ctx, cfg.ConnectAttempts, cfg.RetryBase, pool.Ping); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping").
			With("attempts", cfg.ConnectAttempts).
			Wrap(err)
	}
	return pool, nil
}

// Retry runs fn until it succeeds, ctx ends, or attempts retries have been
// made. Every error from fn is treated as retryable.
func Retry(ctx context.Context, attempts uint64, base time.Duration, fn func(context.Context) error) error {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	backoff := retry.WithCappedDuration(10*time.Second, retry.NewExponential(base))
	backoff = retry.WithMaxRetries(attempts, backoff)

	//nolint:wrapcheck // callers wrap with the backend they were reaching
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
