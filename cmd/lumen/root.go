// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Lumen CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lumen",
		Short: "Lumen - a plugin-powered launcher daemon",
		Long: `Lumen hosts sandboxed WebAssembly plugins that contribute search
results, AI tools, command triggers, and widgets to the launcher.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewPluginsCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}
