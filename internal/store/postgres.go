// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store owns the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Default connection settings.
const (
	DefaultConnectRetries = 5
	DefaultRetryBase      = 200 * time.Millisecond
)

// PoolOptions tunes the connection pool.
type PoolOptions struct {
	MaxConns       int32
	ConnectRetries uint64
	RetryBase      time.Duration
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Connect opens a pgx pool and waits for the database to answer a ping,
// retrying with exponential backoff.
func Connect(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForPing(ctx, pool, backoff(opts)); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func backoff(opts PoolOptions) retry.Backoff {
	retries := opts.ConnectRetries
	if retries == 0 {
		retries = DefaultConnectRetries
	}
	base := opts.RetryBase
	if base <= 0 {
		base = DefaultRetryBase
	}
	return retry.WithMaxRetries(retries, retry.WithCappedDuration(5*time.Second, retry.NewExponential(base)))
}

func waitForPing(ctx context.Context, p pinger, b retry.Backoff) error {
	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := p.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "database ping failed",
				"attempt", attempt,
				"error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
