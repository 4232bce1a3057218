// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentbay/agentbay-go/pkg/agentbay"
	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session",
	Long:  `Create a session and print its id. The session keeps running until removed with rm.`,
	RunE:  createCmdFunc,
}

var (
	createLabels []string
	createImage  string
	createVPC    bool
)

func init() {
	createCmd.Flags().StringArrayVarP(&createLabels, "label", "l", nil, "Label in key=value form (repeatable)")
	createCmd.Flags().StringVar(&createImage, "image", "", "Image id for the session runtime")
	createCmd.Flags().BoolVar(&createVPC, "vpc", false, "Create the session inside a VPC")
}

func createCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	labels, err := parseLabels(createLabels)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	params := agentbay.NewCreateSessionParams()
	if len(labels) > 0 {
		params = params.WithLabels(labels)
	}
	if createImage != "" {
		params = params.WithImageID(createImage)
	}
	params.IsVpc = createVPC

	s, err := client.Create(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	fmt.Printf("Session %s created\n", s.SessionID())
	return nil
}

// parseLabels turns repeated key=value flags into a label map.
func parseLabels(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	labels := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" || value == "" {
			return nil, agberrors.NewValidationError(
				fmt.Sprintf("invalid label %q: expected key=value", pair), nil)
		}
		labels[key] = value
	}
	return labels, nil
}
