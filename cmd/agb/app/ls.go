// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentbay/agentbay-go/cmd/agb/app/ui"
	"github.com/agentbay/agentbay-go/pkg/logger"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List sessions",
	Long:  `List the sessions visible to the current API key, optionally filtered by labels.`,
	RunE:  lsCmdFunc,
}

var (
	lsLabels   []string
	lsPage     int
	lsPageSize int
	lsFormat   string
)

func init() {
	lsCmd.Flags().StringArrayVarP(&lsLabels, "label", "l", nil, "Label filter in key=value form (repeatable)")
	lsCmd.Flags().IntVar(&lsPage, "page", 1, "Page number (1-based)")
	lsCmd.Flags().IntVar(&lsPageSize, "page-size", 10, "Sessions per page")
	lsCmd.Flags().StringVar(&lsFormat, "format", "text", "Output format (json or text)")
}

func lsCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	labels, err := parseLabels(lsLabels)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	page, err := client.List(ctx, labels, lsPage, lsPageSize)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if lsFormat == "json" {
		raw, err := json.MarshalIndent(map[string]any{
			"session_ids": page.SessionIDs,
			"next_token":  page.NextToken,
			"total_count": page.TotalCount,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal session list: %w", err)
		}
		fmt.Println(string(raw))
		return nil
	}

	rows := make([]ui.SessionRow, 0, len(page.SessionIDs))
	for _, id := range page.SessionIDs {
		row := ui.SessionRow{SessionID: id}
		// Status requires a per-session fetch; listing survives the
		// occasional session released between the two calls.
		if s, err := client.Get(ctx, id); err == nil {
			row.Status = s.Status()
			row.Resource = s.ResourceURL()
		} else {
			logger.Debugf("skipping status for %s: %v", id, err)
			row.Status = "UNKNOWN"
		}
		rows = append(rows, row)
	}

	if err := ui.RenderSessionTable(rows); err != nil {
		return err
	}
	if page.NextToken != "" {
		fmt.Printf("More sessions available: rerun with --page %d\n", lsPage+1)
	}
	return nil
}
