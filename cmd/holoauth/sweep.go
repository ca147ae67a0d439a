// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/pkg/errutil"
)

// sweepConfig holds flags for the sweep command.
type sweepConfig struct {
	daemon bool
}

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd(deps *Deps) *cobra.Command {
	cfg := &sweepConfig{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions and verification codes",
		Long: `Delete expired login, signup, password reset and association sessions
and expired verification codes. Runs once unless --daemon or --interval is
given, in which case it sweeps periodically until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			daemon := cfg.daemon || cmd.Flags().Changed("interval")
			return runSweep(cmd, deps, daemon)
		},
	}

	cmd.Flags().BoolVar(&cfg.daemon, "daemon", false, "keep sweeping every interval until interrupted")
	cmd.Flags().Duration("interval", 0, "time between sweeps (implies --daemon)")

	return cmd
}

func runSweep(cmd *cobra.Command, deps *Deps, daemon bool) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStores(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer st.Close(logger)

	targets := auth.SweepTargets(st.deps)
	opts := []auth.SweeperOption{auth.WithSweepLogger(logger)}

	if !daemon {
		sweeper, err := auth.NewSweeper(cfg.Sweep.Interval, targets, opts...)
		if err != nil {
			return err
		}
		removed, err := sweeper.RunOnce(ctx)
		names := make([]string, 0, len(removed))
		for name := range removed {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			cmd.Printf("%s: removed %d\n", name, removed[name])
		}
		if err != nil {
			errutil.LogError(ctx, logger, "sweep failed", err)
		}
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var obsServer ObservabilityServer
	var obsErrChan <-chan error
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, func() bool { return true }, logger)
		obsErrChan, err = obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		opts = append(opts, auth.WithSweepRecorder(obsServer.Metrics()))
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	sweeper, err := auth.NewSweeper(cfg.Sweep.Interval, targets, opts...)
	if err != nil {
		stopObservability(obsServer, logger)
		return err
	}
	sweeper.Start(ctx)
	cmd.Println("Sweeper started")
	logger.Info("sweeper running", "interval", cfg.Sweep.Interval.String(), "targets", len(targets))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down sweeper")
	case err, ok := <-obsErrChan:
		if ok && err != nil {
			runErr = oops.Code("OBSERVABILITY_FAILED").Wrap(err)
			errutil.LogError(ctx, logger, "observability server failed", runErr)
		}
	}

	sweeper.Stop()
	stopObservability(obsServer, logger)
	return runErr
}

func stopObservability(s ObservabilityServer, logger *slog.Logger) {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}
