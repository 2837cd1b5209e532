// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/auth"
	"github.com/holomush/accountd/internal/auth/memory"
	"github.com/holomush/accountd/internal/auth/postgres"
	"github.com/holomush/accountd/internal/cache"
	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/internal/jobs"
	"github.com/holomush/accountd/internal/notify"
	"github.com/holomush/accountd/internal/store"
)

// app holds the wired services shared by serve and sweep.
type app struct {
	users         *auth.UserService
	sessions      *auth.SessionManager
	tokens        *auth.TokenStore
	resolver      *auth.IdentityResolver
	authenticator *auth.Authenticator
	workflow      *auth.CredentialWorkflow
	sweeper       *jobs.Sweeper
	ping          func(ctx context.Context) error

	closers []func()
}

// Close releases the app's connections in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

type repositories struct {
	users    auth.UserRepository
	sessions auth.SessionRepository
	tokens   auth.TokenRepository
	tx       auth.Transactor
}

// buildApp connects storage and the optional cache and wires every service.
func buildApp(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger) (_ *app, err error) {
	a := &app{ping: func(context.Context) error { return nil }}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	repos, err := a.openStorage(ctx, cfg, deps, logger)
	if err != nil {
		return nil, err
	}

	opts := []auth.Option{auth.WithLogger(logger)}
	if cfg.Redis.Enabled() {
		client, err := deps.RedisClientFactory(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("error closing redis client", "error", closeErr)
			}
		})
		opts = append(opts, auth.WithIdentityCache(cache.NewRedisIdentityCache(client, cfg.Redis.Prefix)))
		logger.Info("identity cache enabled", "addr", cfg.Redis.Addr)
	}

	notifier, err := buildNotifier(cfg.Notify, deps, logger)
	if err != nil {
		return nil, err
	}

	hasher := auth.NewArgon2idHasher(cfg.Argon2)

	if a.users, err = auth.NewUserService(repos.users); err != nil {
		return nil, err
	}
	if a.sessions, err = auth.NewSessionManager(repos.users, repos.sessions, cfg.Session.TTL, opts...); err != nil {
		return nil, err
	}
	if a.tokens, err = auth.NewTokenStore(repos.tokens, repos.tx, opts...); err != nil {
		return nil, err
	}
	if a.authenticator, err = auth.NewAuthenticator(repos.users, a.sessions, hasher, opts...); err != nil {
		return nil, err
	}
	if a.workflow, err = auth.NewCredentialWorkflow(repos.users, a.tokens, a.sessions, repos.tx, hasher, notifier, opts...); err != nil {
		return nil, err
	}
	a.resolver = auth.NewIdentityResolver(a.sessions)

	a.sweeper, err = jobs.NewSweeper(cfg.Sweep.Schedule, logger,
		jobs.Target{Name: "sessions", Sweep: a.sessions.Sweep},
		jobs.Target{Name: "tokens", Sweep: a.tokens.Sweep},
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStorage(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger) (*repositories, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		logger.Warn("using in-memory storage; data is lost on exit")
		s := memory.NewStore()
		return &repositories{users: s.Users(), sessions: s.Sessions(), tokens: s.Tokens(), tx: s}, nil

	case config.StoragePostgres:
		if cfg.Storage.AutoMigrate {
			if err := migrateUp(cfg.Storage.DatabaseURL, deps, logger); err != nil {
				return nil, err
			}
		}
		pool, err := deps.PoolFactory(ctx, cfg.Storage.DatabaseURL, store.PoolOptions{MaxConns: cfg.Storage.MaxConns})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.ping = pool.Ping
		logger.Info("connected to database")
		return &repositories{
			users:    postgres.NewUserRepository(pool),
			sessions: postgres.NewSessionRepository(pool),
			tokens:   postgres.NewTokenRepository(pool),
			tx:       postgres.NewTransactor(pool),
		}, nil

	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("driver", cfg.Storage.Driver).
			Errorf("unknown storage driver")
	}
}

// buildNotifier returns the configured delivery channel behind the
// outbound throttle.
func buildNotifier(cfg config.NotifyConfig, deps *Deps, logger *slog.Logger) (auth.Notifier, error) {
	var n auth.Notifier
	switch {
	case deps.Notifier != nil:
		n = deps.Notifier
	case cfg.Driver == config.NotifySMTP:
		smtp, err := notify.NewSMTPNotifier(cfg.SMTP)
		if err != nil {
			return nil, err
		}
		n = smtp
	case cfg.Driver == config.NotifyLog:
		n = notify.NewLogNotifier(logger)
	case cfg.Driver == config.NotifyOutbox:
		n = notify.NewOutbox()
	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("driver", cfg.Driver).
			Errorf("unknown notify driver")
	}
	return notify.NewThrottled(n, cfg.Throttle), nil
}

// migrateUp applies pending migrations for auto-migrate.
func migrateUp(databaseURL string, deps *Deps, logger *slog.Logger) error {
	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "auto-migrate").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}
