// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/tools"
)

var callCmd = &cobra.Command{
	Use:   "call [session-id] [tool]",
	Short: "Invoke a tool inside a session",
	Long: `Invoke a tool inside a session by name and print its text output.
Tool arguments are passed as a JSON object via --args.`,
	Args: cobra.ExactArgs(2),
	RunE: callCmdFunc,
}

var (
	callArgs    string
	callTimeout time.Duration
)

func init() {
	callCmd.Flags().StringVar(&callArgs, "args", "{}", "Tool arguments as a JSON object")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 0, "Per-call timeout (default: SDK default)")
}

func callCmdFunc(cmd *cobra.Command, cmdArgs []string) error {
	ctx := cmd.Context()
	sessionID, toolName := cmdArgs[0], cmdArgs[1]

	var toolArgs map[string]any
	if err := json.Unmarshal([]byte(callArgs), &toolArgs); err != nil {
		return agberrors.NewValidationError("--args must be a JSON object", err)
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	s, err := client.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to fetch session %s: %w", sessionID, err)
	}

	var opts []tools.CallOption
	if callTimeout > 0 {
		opts = append(opts, tools.WithTimeout(callTimeout))
	}

	result, err := s.Call(ctx, toolName, toolArgs, opts...)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", toolName, err)
	}
	if !result.Success {
		return fmt.Errorf("tool %s failed: %s (request id %s)",
			toolName, result.ErrorMessage, result.RequestID)
	}

	fmt.Print(result.Data)
	return nil
}
