// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"encoding/json"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// versionInfo is the JSON form of the version command.
type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !jsonOutput {
				cmd.Printf("holoauth %s (commit: %s, built: %s)\n", version, commit, date)
				return nil
			}
			b, err := json.Marshal(versionInfo{Version: version, Commit: commit, Date: date})
			if err != nil {
				return oops.Code("VERSION_FORMAT_FAILED").Wrap(err)
			}
			cmd.Println(string(b))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
