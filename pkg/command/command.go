// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package command runs shell commands inside a session.
package command

import (
	"context"
	"time"

	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/tools"
)

// DefaultTimeoutMs bounds command execution on the remote runtime.
const DefaultTimeoutMs = 60000

// Result is the outcome of one command execution.
type Result struct {
	RequestID string
	Output    string
}

// Command executes shell commands through the session dispatcher.
type Command struct {
	invoker tools.Invoker
}

// New creates the command facade.
func New(invoker tools.Invoker) *Command {
	return &Command{invoker: invoker}
}

// Execute runs cmd with the default remote timeout.
func (c *Command) Execute(ctx context.Context, cmd string) (*Result, error) {
	return c.ExecuteWithTimeout(ctx, cmd, DefaultTimeoutMs)
}

// ExecuteWithTimeout runs cmd, bounding it remotely to timeoutMs. The
// local call deadline is stretched past the remote budget so a slow
// command fails remotely, with output, rather than locally without.
func (c *Command) ExecuteWithTimeout(ctx context.Context, cmd string, timeoutMs int) (*Result, error) {
	if cmd == "" {
		return nil, agberrors.NewValidationError("command cannot be empty", nil)
	}
	if timeoutMs <= 0 {
		timeoutMs = DefaultTimeoutMs
	}

	callTimeout := time.Duration(timeoutMs)*time.Millisecond + 10*time.Second
	result, err := c.invoker.Call(ctx, "shell", map[string]any{
		"command":    cmd,
		"timeout_ms": timeoutMs,
	}, tools.WithTimeout(callTimeout))
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return &Result{RequestID: result.RequestID},
			agberrors.NewToolError(result.ErrorMessage, nil)
	}
	return &Result{RequestID: result.RequestID, Output: result.Data}, nil
}
