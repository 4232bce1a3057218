// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ui contains shared console rendering helpers for the agb CLI.
package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

var (
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pausedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failedStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	finishedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func init() {
	// DISABLE_COLORS wins over FORCE_COLOR; FORCE_COLOR overrides the
	// usual TTY detection so piped output keeps its colors.
	if envSet("DISABLE_COLORS") {
		lipgloss.SetColorProfile(termenv.Ascii)
	} else if envSet("FORCE_COLOR") {
		lipgloss.SetColorProfile(termenv.ANSI256)
	}
}

func envSet(name string) bool {
	v := os.Getenv(name)
	return v != "" && v != "0"
}

// StyleStatus colors a session or context status for terminal output.
func StyleStatus(status string) string {
	switch status {
	case "RUNNING", "available":
		return runningStyle.Render(status)
	case "PAUSING", "PAUSED", "RESUMING", "CREATING", "in-use":
		return pausedStyle.Render(status)
	case "ERROR", "FAILED":
		return failedStyle.Render(status)
	case "FINISH", "deleted":
		return finishedStyle.Render(status)
	default:
		return status
	}
}

// SessionRow is one line of the session table.
type SessionRow struct {
	SessionID string
	Status    string
	Resource  string
}

// RenderSessionTable renders the session listing to stdout.
func RenderSessionTable(rows []SessionRow) error {
	if len(rows) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Options(
		tablewriter.WithHeader([]string{"Session ID", "Status", "Resource"}),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(3, tw.AlignLeft)),
	)

	for _, row := range rows {
		if err := table.Append([]string{
			row.SessionID,
			StyleStatus(row.Status),
			row.Resource,
		}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

// ContextRow is one line of the context table.
type ContextRow struct {
	ID       string
	Name     string
	State    string
	OSType   string
	LastUsed string
}

// RenderContextTable renders the context listing to stdout.
func RenderContextTable(rows []ContextRow) error {
	if len(rows) == 0 {
		fmt.Println("No contexts found.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Options(
		tablewriter.WithHeader([]string{"Context ID", "Name", "State", "OS", "Last Used"}),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(5, tw.AlignLeft)),
	)

	for _, row := range rows {
		if err := table.Append([]string{
			row.ID,
			row.Name,
			StyleStatus(row.State),
			row.OSType,
			row.LastUsed,
		}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
