// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accountd/internal/config"
	"github.com/holomush/accountd/internal/httpapi"
	"github.com/holomush/accountd/internal/observability"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return newServeCmd(nil)
}

func newServeCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account HTTP API",
		Long: `Start the HTTP API serving sign-in, sessions and the email and
password change flows, along with the metrics server and the expiry sweep.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, deps)
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps runs the server until a signal arrives or ctx ends.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogging(cfg.Log, deps.LogWriter)

	logger.Info("starting accountd",
		"addr", cfg.Server.Addr,
		"storage", cfg.Storage.Driver,
		"notify", cfg.Notify.Driver,
		"version", version)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := buildApp(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var ready atomic.Bool
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, func() bool {
			if !ready.Load() {
				return false
			}
			pingCtx, pingCancel := context.WithTimeout(context.Background(), time.Second)
			defer pingCancel()
			return a.ping(pingCtx) == nil
		})
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
	}

	api, err := httpapi.New(httpapi.Services{
		Sessions:      a.sessions,
		Resolver:      a.resolver,
		Authenticator: a.authenticator,
		Workflow:      a.workflow,
	}, httpapi.Options{
		CookieSecure:   cfg.Server.CookieSecure,
		Logger:         logger,
		Metrics:        metrics,
		RequestTimeout: cfg.Server.RequestTimeout,
		TrustedProxies: cfg.Server.TrustedProxies,
	})
	if err != nil {
		stopObservability(obsServer, cfg.Server.ShutdownTimeout)
		return err
	}

	apiServer := httpapi.NewServer(cfg.Server.Addr, api.Routes())
	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopObservability(obsServer, cfg.Server.ShutdownTimeout)
		return err
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	if cfg.Sweep.Enabled {
		if err := a.sweeper.Start(ctx); err != nil {
			logger.Warn("expiry sweep not started", "error", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ready.Store(true)
	cmd.Println("accountd started")
	logger.Info("accountd ready", "addr", apiServer.Addr())
	if deps.OnReady != nil {
		deps.OnReady(apiServer.Addr())
	}

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}
	ready.Store(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if err := a.sweeper.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping expiry sweep", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

func stopObservability(s ObservabilityServer, timeout time.Duration) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports a failure. It
// exits when the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
