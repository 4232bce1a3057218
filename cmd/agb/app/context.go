// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentbay/agentbay-go/cmd/agb/app/ui"
	"github.com/agentbay/agentbay-go/pkg/contexts"
)

func newContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage persistent contexts",
		Long:  `Manage the persistent contexts that sessions mount for data that outlives them.`,
	}
	cmd.AddCommand(newContextLsCmd())
	cmd.AddCommand(newContextRmCmd())
	cmd.AddCommand(newContextClearCmd())
	return cmd
}

func newContextLsCmd() *cobra.Command {
	var maxResults int

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List contexts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			result, err := client.Contexts.List(cmd.Context(), contexts.ListParams{
				MaxResults: maxResults,
			})
			if err != nil {
				return fmt.Errorf("failed to list contexts: %w", err)
			}

			rows := make([]ui.ContextRow, 0, len(result.Contexts))
			for _, c := range result.Contexts {
				rows = append(rows, ui.ContextRow{
					ID:       c.ID,
					Name:     c.Name,
					State:    c.State,
					OSType:   c.OSType,
					LastUsed: c.LastUsedAt,
				})
			}
			return ui.RenderContextTable(rows)
		},
	}

	cmd.Flags().IntVar(&maxResults, "max-results", 10, "Contexts per page")
	return cmd
}

func newContextRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm [context-id]...",
		Short: "Delete contexts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := newClient()
			if err != nil {
				return err
			}

			for _, contextID := range args {
				c, _, err := client.Contexts.Get(ctx, contexts.GetParams{ContextID: contextID})
				if err != nil {
					return fmt.Errorf("failed to fetch context %s: %w", contextID, err)
				}
				if _, err := client.Contexts.Delete(ctx, c); err != nil {
					return fmt.Errorf("failed to delete context %s: %w", contextID, err)
				}
				fmt.Printf("Context %s deleted\n", contextID)
			}
			return nil
		},
	}
}

func newContextClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [context-id]",
		Short: "Wipe a context's data",
		Long:  `Wipe all data stored in a context and wait for the wipe to finish. The context itself survives.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			contextID := args[0]
			if _, err := client.Contexts.Clear(cmd.Context(), contextID, nil); err != nil {
				return fmt.Errorf("failed to clear context %s: %w", contextID, err)
			}
			fmt.Printf("Context %s cleared\n", contextID)
			return nil
		},
	}
}
