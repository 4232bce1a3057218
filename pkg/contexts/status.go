// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package contexts

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/agentbay/agentbay-go/pkg/logger"
)

// Terminal sync task statuses. The service vocabulary is open-ended;
// anything else counts as still pending.
const (
	StatusSuccess = "Success"
	StatusFailed  = "Failed"
)

// Sync task types relevant to completion tracking.
const (
	TaskUpload   = "upload"
	TaskDownload = "download"
)

// Context volume states reported by GetContext.
const (
	StateAvailable    = "available"
	StateInUse        = "in-use"
	StatePreAvailable = "pre-available"
	StateClearing     = "clearing"
)

// StatusItem is one sync task status row for a mounted context.
type StatusItem struct {
	ContextID    string `json:"contextId"`
	Path         string `json:"path"`
	ErrorMessage string `json:"errorMessage"`
	Status       string `json:"status"`
	StartTime    int64  `json:"startTime"`
	FinishTime   int64  `json:"finishTime"`
	TaskType     string `json:"taskType"`
}

// parseContextStatus decodes the doubly-encoded ContextStatus payload of
// GetContextInfo: the outer layer is a JSON array of {type, data} entries,
// and each data field is itself a JSON string holding an array of status
// items. Both layers must be parsed; this is the wire contract, not a bug.
func parseContextStatus(raw string) ([]StatusItem, error) {
	if raw == "" {
		return nil, nil
	}
	outer := gjson.Parse(raw)
	if !outer.IsArray() {
		return nil, fmt.Errorf("context status is not a JSON array: %q", raw)
	}

	var items []StatusItem
	var parseErr error
	outer.ForEach(func(_, entry gjson.Result) bool {
		if entry.Get("type").String() != "data" {
			return true
		}
		inner := entry.Get("data").String()
		if inner == "" {
			return true
		}
		var chunk []StatusItem
		if err := json.Unmarshal([]byte(inner), &chunk); err != nil {
			parseErr = fmt.Errorf("decoding inner context status data: %w", err)
			return false
		}
		items = append(items, chunk...)
		return true
	})
	return items, parseErr
}

// syncSettled reports whether every upload/download item reached a
// terminal status, and collects the failed ones. Items with unknown
// statuses keep the sync pending and are logged at warn.
func syncSettled(items []StatusItem) (bool, []StatusItem) {
	var failed []StatusItem
	for _, item := range items {
		if item.TaskType != TaskUpload && item.TaskType != TaskDownload {
			continue
		}
		switch item.Status {
		case StatusSuccess:
		case StatusFailed:
			failed = append(failed, item)
		default:
			logger.Warnf("context %s path %s: sync status %q not terminal, still waiting",
				item.ContextID, item.Path, item.Status)
			return false, nil
		}
	}
	return true, failed
}
