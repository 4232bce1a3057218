// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the agb command-line application.
package app

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentbay/agentbay-go/pkg/agentbay"
	"github.com/agentbay/agentbay-go/pkg/config"
	"github.com/agentbay/agentbay-go/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "agb",
	DisableAutoGenTag: true,
	Short:             "agb manages AgentBay cloud sessions from the command line",
	Long: `agb manages AgentBay cloud sessions from the command line.

It drives the same control-plane API as the Go SDK: creating and
releasing sessions, invoking tools inside them, and administering
persistent contexts. Credentials come from --api-key or the
AGENTBAY_API_KEY environment variable.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates a new root command for the agb CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().String("api-key", "", "AgentBay API key (defaults to $AGENTBAY_API_KEY)")
	rootCmd.PersistentFlags().String("region", "", "Region id override")
	rootCmd.PersistentFlags().String("endpoint", "", "Control-plane endpoint override")

	viper.SetEnvPrefix("AGENTBAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, name := range []string{"debug", "api-key", "region", "endpoint"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			logger.Errorf("Error binding flag %s: %v", name, err)
		}
	}

	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(newContextCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newClient builds the SDK client from the resolved flag/env settings.
func newClient() (*agentbay.Client, error) {
	// Empty fields of the override fall through to file/env resolution.
	override := &config.Config{
		RegionID: viper.GetString("region"),
		Endpoint: viper.GetString("endpoint"),
	}
	return agentbay.New(viper.GetString("api-key"), agentbay.WithConfig(override))
}
