// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/holoauth/internal/store"
)

// NewMigrateCmd creates the migrate command and its subcommands.
func NewMigrateCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, roll back, inspect or repair the holoauth PostgreSQL schema.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	})

	var confirm bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all auth data)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops all auth data; pass --yes to confirm")
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	}
	down.Flags().BoolVar(&confirm, "yes", false, "confirm dropping all auth data")
	cmd.AddCommand(down)

	var jsonOutput bool
	status := &cobra.Command{
		Use:   "status",
		Short: "Show the applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				st, err := m.Status()
				if err != nil {
					return err
				}
				out, err := formatStatus(st, jsonOutput)
				if err != nil {
					return err
				}
				cmd.Println(out)
				return nil
			})
		},
	}
	status.Flags().BoolVar(&jsonOutput, "json", false, "output status as JSON")
	cmd.AddCommand(status)

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it (clears a dirty state)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced schema version to %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

// withMigrator loads configuration, opens a migrator and runs fn with it.
func withMigrator(cmd *cobra.Command, deps *Deps, fn func(Migrator) error) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	m, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := fn(m); err != nil {
		logger.Error("migration command failed", "command", cmd.Name(), "error", err)
		return err
	}
	return nil
}

// parseForceVersion parses the VERSION argument of migrate force.
func parseForceVersion(arg string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(arg), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", arg).Wrap(err)
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", arg).Errorf("version must be non-negative, got %d", version)
	}
	return version, nil
}

type statusJSON struct {
	Version uint   `json:"version"`
	Name    string `json:"name,omitempty"`
	Dirty   bool   `json:"dirty"`
	Pending []uint `json:"pending"`
}

// formatStatus renders st for the terminal or as JSON.
func formatStatus(st *store.Status, asJSON bool) (string, error) {
	if asJSON {
		pending := st.Pending
		if pending == nil {
			pending = []uint{}
		}
		b, err := json.MarshalIndent(statusJSON{
			Version: st.Version,
			Name:    st.Name,
			Dirty:   st.Dirty,
			Pending: pending,
		}, "", "  ")
		if err != nil {
			return "", oops.Code("STATUS_FORMAT_FAILED").Wrap(err)
		}
		return string(b), nil
	}

	var sb strings.Builder
	if st.Version == 0 {
		sb.WriteString("Schema version: none\n")
	} else {
		fmt.Fprintf(&sb, "Schema version: %d (%s)\n", st.Version, st.Name)
	}
	if st.Dirty {
		sb.WriteString("State: DIRTY (run 'holoauth migrate force VERSION' after fixing the database)\n")
	}
	if len(st.Pending) == 0 {
		sb.WriteString("Pending: none")
	} else {
		parts := make([]string, len(st.Pending))
		for i, v := range st.Pending {
			parts[i] = fmt.Sprintf("%d", v)
		}
		fmt.Fprintf(&sb, "Pending: %s", strings.Join(parts, ", "))
	}
	return sb.String(), nil
}
