// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/holomush/accountd/internal/auth"
	"github.com/holomush/accountd/internal/cache"
	"github.com/holomush/accountd/internal/observability"
	"github.com/holomush/accountd/internal/store"
)

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// PoolFactory opens the PostgreSQL pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, url string, opts store.PoolOptions) (*pgxpool.Pool, error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrator, error)

	// RedisClientFactory connects to Redis for the identity cache.
	// Default: cache.NewRedisClient
	RedisClientFactory func(ctx context.Context, opts cache.RedisOptions) (redis.UniversalClient, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// Notifier replaces the configured notification driver.
	Notifier auth.Notifier

	// LogWriter receives log output.
	// Default: os.Stderr
	LogWriter io.Writer

	// OnReady is called with the API address once serve is accepting requests.
	OnReady func(apiAddr string)
}

// Migrator is the part of store.Migrator the migrate command uses.
type Migrator interface {
	Up() error
	Steps(n int) error
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// ObservabilityServer is the part of observability.Server serve uses.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = store.Connect
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string) (Migrator, error) {
			return store.NewMigrator(url)
		}
	}
	if out.RedisClientFactory == nil {
		out.RedisClientFactory = func(ctx context.Context, opts cache.RedisOptions) (redis.UniversalClient, error) {
			return cache.NewRedisClient(ctx, opts)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	return &out
}
