// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/oauth"
)

// NewCheckCmd creates the check subcommand.
func NewCheckCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify configuration, connectivity and schema",
		Long: `Load the configuration, connect to every configured store, confirm the
schema is current and build every credential service. Exits non-zero on the
first problem found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, deps)
		},
	}
}

func runCheck(cmd *cobra.Command, deps *Deps) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	if err := cfg.RequireSecrets(); err != nil {
		return err
	}
	providers, err := oauth.NewProviders(cfg.OAuth)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openStores(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer st.Close(logger)

	if err := st.pool.Ping(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	cmd.Println("Database: ok")
	cmd.Printf("Verification codes: %s\n", st.codeBackend())

	if err := checkSchema(deps, cfg.Database.URL); err != nil {
		return err
	}
	cmd.Println("Schema: current")

	if _, err := newEngine(cfg, st.deps, providers, logger, nil); err != nil {
		return oops.With("operation", "build services").Wrap(err)
	}

	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	if len(names) == 0 {
		cmd.Println("OAuth providers: none")
	} else {
		cmd.Printf("OAuth providers: %s\n", strings.Join(names, ", "))
	}
	cmd.Println("Services: ready")
	return nil
}

// checkSchema fails if the database is dirty or has pending migrations.
func checkSchema(deps *Deps, databaseURL string) (err error) {
	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	st, err := m.Status()
	if err != nil {
		return err
	}
	if st.Dirty {
		return oops.Code("SCHEMA_DIRTY").
			With("version", st.Version).
			Errorf("schema version %d is dirty", st.Version)
	}
	if len(st.Pending) > 0 {
		return oops.Code("SCHEMA_OUTDATED").
			With("version", st.Version).
			With("pending", len(st.Pending)).
			Errorf("%d migrations pending; run 'holoauth migrate up'", len(st.Pending))
	}
	return nil
}

