// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/config"
	"github.com/holomush/holoauth/internal/logging"
	"github.com/holomush/holoauth/internal/store"
)

const serviceName = "holoauth"

// NewRootCmd creates the root command. A nil deps uses the defaults.
func NewRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "holoauth",
		Short: "holoauth - short-lived credential engine",
		Long: `holoauth manages the credentials behind a login system: login,
signup, password reset and OAuth association sessions, plus email
verification codes. The CLI owns the schema and expiry housekeeping.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (default "+config.DefaultPath()+" if present)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewSweepCmd(deps))
	cmd.AddCommand(NewCheckCmd(deps))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// loadSettings reads the configuration for cmd and builds its logger. The
// logger writes to the command's error stream.
func loadSettings(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	flagPath, err := cmd.Flags().GetString("config")
	if err != nil {
		flagPath = ""
	}
	path, err := config.Resolve(flagPath)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := logging.Setup(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	}, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// poolConfig converts database settings to store pool settings.
func poolConfig(cfg *config.Config) store.PoolConfig {
	pc := store.DefaultPoolConfig(cfg.Database.URL)
	pc.MaxConns = cfg.Database.MaxConns
	if cfg.Database.ConnectAttempts > 0 {
		pc.Attempts = uint64(cfg.Database.ConnectAttempts)
	}
	if cfg.Database.ConnectBackoff > 0 {
		pc.Backoff = cfg.Database.ConnectBackoff
	}
	return pc
}
