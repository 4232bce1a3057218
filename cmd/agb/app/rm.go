// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var rmCmd = &cobra.Command{
	Use:   "rm [session-id]...",
	Short: "Remove one or more sessions",
	Long:  `Release sessions and wait until the control plane confirms they are gone.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  rmCmdFunc,
}

var rmSync bool

func init() {
	rmCmd.Flags().BoolVar(&rmSync, "sync", false, "Sync persistent contexts before releasing")
}

func rmCmdFunc(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client, err := newClient()
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	for _, sessionID := range args {
		group.Go(func() error {
			s, err := client.Get(ctx, sessionID)
			if err != nil {
				return fmt.Errorf("failed to fetch session %s: %w", sessionID, err)
			}
			if err := client.Delete(ctx, s, rmSync); err != nil {
				return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
			}
			fmt.Printf("Session %s removed\n", sessionID)
			return nil
		})
	}
	return group.Wait()
}
