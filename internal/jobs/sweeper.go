// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package jobs runs periodic maintenance for accountd.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/observability"
	"github.com/holomush/accountd/pkg/errutil"
)

// DefaultSchedule runs the sweep every ten minutes.
const DefaultSchedule = "@every 10m"

// DefaultRunTimeout bounds a single sweep run.
const DefaultRunTimeout = time.Minute

// SweepFunc deletes expired records and reports how many were removed.
type SweepFunc func(ctx context.Context) (int64, error)

// Target is one kind of record the sweeper cleans up.
type Target struct {
	Name  string
	Sweep SweepFunc
}

// Sweeper deletes expired sessions and tokens on a cron schedule.
type Sweeper struct {
	schedule string
	targets  []Target
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewSweeper creates a Sweeper. schedule accepts standard five-field cron
// expressions and descriptors such as "@every 10m" or "@hourly".
func NewSweeper(schedule string, logger *slog.Logger, targets ...Target) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, oops.Code("JOBS_SCHEDULE_INVALID").
			With("schedule", schedule).
			Wrap(err)
	}
	if len(targets) == 0 {
		return nil, oops.Code("JOBS_NO_TARGETS").Errorf("at least one sweep target is required")
	}
	for _, t := range targets {
		if t.Name == "" || t.Sweep == nil {
			return nil, oops.Code("JOBS_TARGET_INVALID").
				With("name", t.Name).
				Errorf("sweep target needs a name and a function")
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		schedule: schedule,
		targets:  targets,
		timeout:  DefaultRunTimeout,
		logger:   logger,
	}, nil
}

// Start schedules the sweep. Runs that overlap a still-running sweep are
// skipped. The context bounds every scheduled run.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return oops.Code("JOBS_ALREADY_STARTED").Errorf("sweeper already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(
		cron.WithLogger(cronLogger{s.logger}),
		cron.WithChain(cron.Recover(cronLogger{s.logger}), cron.SkipIfStillRunning(cronLogger{s.logger})),
	)
	if _, err := c.AddFunc(s.schedule, func() { s.run(runCtx) }); err != nil {
		cancel()
		return oops.Code("JOBS_SCHEDULE_INVALID").
			With("schedule", s.schedule).
			Wrap(err)
	}
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.logger.Info("sweeper started", "schedule", s.schedule)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish or ctx to
// end. Stopping a sweeper that is not running is a no-op.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	done := c.Stop()
	select {
	case <-done.Done():
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		return oops.Code("JOBS_STOP_TIMEOUT").Wrap(ctx.Err())
	}
}

// RunOnce sweeps every target immediately and returns the counts removed.
// A failing target does not stop the others; the first error is returned.
func (s *Sweeper) RunOnce(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(s.targets))
	var firstErr error
	for _, t := range s.targets {
		n, err := t.Sweep(ctx)
		if err != nil {
			errutil.LogErrorContext(ctx, s.logger, "sweep failed", err)
			if firstErr == nil {
				firstErr = oops.Code("JOBS_SWEEP_FAILED").With("target", t.Name).Wrap(err)
			}
			continue
		}
		counts[t.Name] = n
		observability.RecordSwept(t.Name, n)
	}
	return counts, firstErr
}

func (s *Sweeper) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	counts, err := s.RunOnce(ctx)
	if err != nil {
		return
	}
	s.logger.Debug("sweep complete", "counts", counts, "duration", time.Since(start))
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
