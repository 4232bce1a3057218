// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the agb CLI.
package main

import (
	"os"

	"github.com/agentbay/agentbay-go/cmd/agb/app"
	"github.com/agentbay/agentbay-go/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
