// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package mobile drives the UI of a mobile emulator session and owns the
// device simulation bootstrap run after session creation.
package mobile

import (
	"context"

	"github.com/tidwall/gjson"

	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/tools"
)

// InfoPath is where simulated device metadata lives inside the emulator.
// Sessions created with a simulate mode mount a persistent context here
// so the simulated identity survives the session.
const InfoPath = "/data/local/tmp/mobile_info"

// SimulateMode selects which device properties the post-create bootstrap
// command simulates.
type SimulateMode string

// Simulation modes.
const (
	SimulatePropertiesOnly SimulateMode = "PropertiesOnly"
	SimulateSensorsOnly    SimulateMode = "SensorsOnly"
	SimulatePackagesOnly   SimulateMode = "PackagesOnly"
	SimulateServicesOnly   SimulateMode = "ServicesOnly"
	SimulateAll            SimulateMode = "All"
)

// simulateFlags maps each mode to its literal bootstrap argument. The
// command is always assembled from this table, never by string math.
var simulateFlags = map[SimulateMode]string{
	SimulatePropertiesOnly: "",
	SimulateSensorsOnly:    "-sensors",
	SimulatePackagesOnly:   "-packages",
	SimulateServicesOnly:   "-services",
	SimulateAll:            "-all",
}

// SimulateCommand returns the shell command that applies the simulation
// mode inside a freshly created session.
func SimulateCommand(mode SimulateMode) (string, error) {
	flag, ok := simulateFlags[mode]
	if !ok {
		return "", agberrors.NewValidationError("unknown simulate mode: "+string(mode), nil)
	}
	cmd := "agentbay-simulate"
	if flag != "" {
		cmd += " " + flag
	}
	return cmd, nil
}

// InstalledApp is one application installed on the device.
type InstalledApp struct {
	AppName     string `json:"app_name"`
	PackageName string `json:"package_name"`
	Version     string `json:"version"`
}

// Mobile wraps the mobile automation tools of one session.
type Mobile struct {
	invoker tools.Invoker
}

// New creates the mobile facade.
func New(invoker tools.Invoker) *Mobile {
	return &Mobile{invoker: invoker}
}

func (m *Mobile) call(ctx context.Context, name string, args map[string]any) (string, string, error) {
	result, err := m.invoker.Call(ctx, name, args)
	if err != nil {
		return "", "", err
	}
	if !result.Success {
		return "", result.RequestID, agberrors.NewToolError(result.ErrorMessage, nil)
	}
	return result.Data, result.RequestID, nil
}

// Tap taps the screen at (x, y).
func (m *Mobile) Tap(ctx context.Context, x, y int) (string, error) {
	_, reqID, err := m.call(ctx, "tap", map[string]any{"x": x, "y": y})
	return reqID, err
}

// Swipe drags from (startX, startY) to (endX, endY) over durationMs.
func (m *Mobile) Swipe(ctx context.Context, startX, startY, endX, endY, durationMs int) (string, error) {
	if durationMs <= 0 {
		durationMs = 300
	}
	_, reqID, err := m.call(ctx, "swipe", map[string]any{
		"start_x": startX, "start_y": startY,
		"end_x": endX, "end_y": endY,
		"duration_ms": durationMs,
	})
	return reqID, err
}

// InputText types text into the focused field.
func (m *Mobile) InputText(ctx context.Context, text string) (string, error) {
	_, reqID, err := m.call(ctx, "input_text", map[string]any{"text": text})
	return reqID, err
}

// SendKey sends an Android key code.
func (m *Mobile) SendKey(ctx context.Context, key int) (string, error) {
	_, reqID, err := m.call(ctx, "send_key", map[string]any{"key": key})
	return reqID, err
}

// Screenshot captures the device screen and returns the image URL.
func (m *Mobile) Screenshot(ctx context.Context) (string, string, error) {
	return m.call(ctx, "system_screenshot", nil)
}

// GetInstalledApps lists installed applications.
func (m *Mobile) GetInstalledApps(ctx context.Context, startMenu, desktop, ignoreSystemApps bool) ([]InstalledApp, string, error) {
	data, reqID, err := m.call(ctx, "get_installed_apps", map[string]any{
		"start_menu":         startMenu,
		"desktop":            desktop,
		"ignore_system_apps": ignoreSystemApps,
	})
	if err != nil {
		return nil, reqID, err
	}

	var apps []InstalledApp
	for _, node := range gjson.Parse(data).Array() {
		apps = append(apps, InstalledApp{
			AppName:     node.Get("app_name").String(),
			PackageName: node.Get("package_name").String(),
			Version:     node.Get("version").String(),
		})
	}
	return apps, reqID, nil
}

// StartApp launches an application by its start command, optionally in a
// named activity.
func (m *Mobile) StartApp(ctx context.Context, startCmd, workDirectory, activity string) (string, error) {
	if startCmd == "" {
		return "", agberrors.NewValidationError("start command cannot be empty", nil)
	}
	args := map[string]any{"start_cmd": startCmd}
	if workDirectory != "" {
		args["work_directory"] = workDirectory
	}
	if activity != "" {
		args["activity"] = activity
	}
	_, reqID, err := m.call(ctx, "start_app", args)
	return reqID, err
}

// StopAppByCmd stops an application by its stop command.
func (m *Mobile) StopAppByCmd(ctx context.Context, stopCmd string) (string, error) {
	if stopCmd == "" {
		return "", agberrors.NewValidationError("stop command cannot be empty", nil)
	}
	_, reqID, err := m.call(ctx, "stop_app_by_cmd", map[string]any{"stop_cmd": stopCmd})
	return reqID, err
}
