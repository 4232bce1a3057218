// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package agent runs long-lived natural language tasks on the session's
// built-in agent and polls them to completion.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/logger"
	"github.com/agentbay/agentbay-go/pkg/tools"
)

// Task statuses reported by the agent runtime.
const (
	StatusFinished    = "finished"
	StatusFailed      = "failed"
	StatusUnsupported = "unsupported"
	StatusRunning     = "running"
)

// Polling defaults for ExecuteTask.
const (
	DefaultMaxTryTimes  = 300
	DefaultPollInterval = 3 * time.Second
)

// TaskResult is the final state of one agent task.
type TaskResult struct {
	RequestID string
	TaskID    string
	Status    string
	Product   string
}

// Agent wraps the flux task tools of one session.
type Agent struct {
	invoker tools.Invoker
}

// New creates the agent facade.
func New(invoker tools.Invoker) *Agent {
	return &Agent{invoker: invoker}
}

// ExecuteTask starts a task and polls until it reaches a terminal status
// or the attempt budget runs out. Failed and unsupported tasks are
// reported in the result, not raised.
func (a *Agent) ExecuteTask(ctx context.Context, task string, maxTryTimes int) (*TaskResult, error) {
	if task == "" {
		return nil, agberrors.NewValidationError("task description cannot be empty", nil)
	}
	if maxTryTimes <= 0 {
		maxTryTimes = DefaultMaxTryTimes
	}

	started, err := a.invoker.Call(ctx, "flux_execute_task", map[string]any{"task": task})
	if err != nil {
		return nil, err
	}
	if !started.Success {
		return &TaskResult{RequestID: started.RequestID, Status: StatusFailed},
			agberrors.NewToolError(started.ErrorMessage, nil)
	}

	taskID := gjson.Get(started.Data, "task_id").String()
	if taskID == "" {
		return &TaskResult{RequestID: started.RequestID, Status: StatusFailed},
			agberrors.NewToolError("agent did not return a task id", nil)
	}

	pending := agberrors.NewTimeoutError("task still running", nil)
	result, err := backoff.Retry(ctx, func() (*TaskResult, error) {
		status, pollErr := a.GetTaskStatus(ctx, taskID)
		if pollErr != nil {
			return nil, backoff.Permanent(pollErr)
		}
		switch status.Status {
		case StatusFinished, StatusFailed, StatusUnsupported:
			return status, nil
		default:
			logger.Debugf("task %s status %s, waiting", taskID, status.Status)
			return nil, pending
		}
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(DefaultPollInterval)),
		backoff.WithMaxTries(uint(maxTryTimes)), // #nosec G115 -- poll budgets are small positive ints
	)
	if err != nil {
		if errors.Is(err, pending) {
			return &TaskResult{TaskID: taskID, Status: StatusRunning},
				agberrors.NewTimeoutError("task did not finish within the polling budget", err)
		}
		return nil, err
	}
	return result, nil
}

// GetTaskStatus reads the current state of a task.
func (a *Agent) GetTaskStatus(ctx context.Context, taskID string) (*TaskResult, error) {
	if taskID == "" {
		return nil, agberrors.NewValidationError("task id cannot be empty", nil)
	}
	result, err := a.invoker.Call(ctx, "flux_get_task_status", map[string]any{"task_id": taskID})
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return &TaskResult{RequestID: result.RequestID, TaskID: taskID, Status: StatusFailed},
			agberrors.NewToolError(result.ErrorMessage, nil)
	}

	root := gjson.Parse(result.Data)
	return &TaskResult{
		RequestID: result.RequestID,
		TaskID:    taskID,
		Status:    root.Get("status").String(),
		Product:   root.Get("product").String(),
	}, nil
}

// TerminateTask cancels a running task.
func (a *Agent) TerminateTask(ctx context.Context, taskID string) (*TaskResult, error) {
	if taskID == "" {
		return nil, agberrors.NewValidationError("task id cannot be empty", nil)
	}
	result, err := a.invoker.Call(ctx, "flux_terminate_task", map[string]any{"task_id": taskID})
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return &TaskResult{RequestID: result.RequestID, TaskID: taskID},
			agberrors.NewToolError(result.ErrorMessage, nil)
	}
	return &TaskResult{
		RequestID: result.RequestID,
		TaskID:    taskID,
		Status:    gjson.Get(result.Data, "status").String(),
	}, nil
}
