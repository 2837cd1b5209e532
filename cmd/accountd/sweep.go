// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"sort"

	"github.com/spf13/cobra"

	"github.com/holomush/accountd/internal/config"
)

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	return newSweepCmd(nil)
}

func newSweepCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions and verification tokens once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd.Context(), cmd, deps)
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

func runSweep(ctx context.Context, cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogging(cfg.Log, deps.LogWriter)

	a, err := buildApp(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	counts, err := a.sweeper.RunOnce(ctx)
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd.Printf("%s: %d removed\n", name, counts[name])
	}
	return err
}
