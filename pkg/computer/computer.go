// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package computer drives the desktop UI of a session.
package computer

import (
	"context"

	"github.com/tidwall/gjson"

	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/tools"
)

// MouseButton names accepted by ClickMouse.
const (
	ButtonLeft       = "left"
	ButtonRight      = "right"
	ButtonMiddle     = "middle"
	ButtonDoubleLeft = "double_left"
)

// ScreenSize is the remote display geometry.
type ScreenSize struct {
	Width            int
	Height           int
	DpiScalingFactor float64
}

// CursorPosition is the remote cursor location.
type CursorPosition struct {
	X int
	Y int
}

// Window is one root window of the remote desktop.
type Window struct {
	WindowID int    `json:"window_id"`
	Title    string `json:"title"`
	PID      int    `json:"pid"`
	PName    string `json:"pname"`
}

// App is one visible application on the remote desktop.
type App struct {
	PID     int    `json:"pid"`
	PName   string `json:"pname"`
	CmdLine string `json:"cmdline"`
}

// Computer wraps the desktop automation tools of one session.
type Computer struct {
	invoker tools.Invoker
}

// New creates the computer facade.
func New(invoker tools.Invoker) *Computer {
	return &Computer{invoker: invoker}
}

func (c *Computer) call(ctx context.Context, name string, args map[string]any) (string, string, error) {
	result, err := c.invoker.Call(ctx, name, args)
	if err != nil {
		return "", "", err
	}
	if !result.Success {
		return "", result.RequestID, agberrors.NewToolError(result.ErrorMessage, nil)
	}
	return result.Data, result.RequestID, nil
}

// ClickMouse clicks at (x, y) with the named button.
func (c *Computer) ClickMouse(ctx context.Context, x, y int, button string) (string, error) {
	switch button {
	case ButtonLeft, ButtonRight, ButtonMiddle, ButtonDoubleLeft:
	case "":
		button = ButtonLeft
	default:
		return "", agberrors.NewValidationError(
			"invalid mouse button: "+button+" (supported: left, right, middle, double_left)", nil)
	}
	_, reqID, err := c.call(ctx, "click_mouse", map[string]any{"x": x, "y": y, "button": button})
	return reqID, err
}

// MoveMouse moves the cursor to (x, y).
func (c *Computer) MoveMouse(ctx context.Context, x, y int) (string, error) {
	_, reqID, err := c.call(ctx, "move_mouse", map[string]any{"x": x, "y": y})
	return reqID, err
}

// PressKeys presses the named keys together. Modifier names are
// case-insensitive; the dispatcher normalizes them.
func (c *Computer) PressKeys(ctx context.Context, keys []string, hold bool) (string, error) {
	if len(keys) == 0 {
		return "", agberrors.NewValidationError("at least one key is required", nil)
	}
	_, reqID, err := c.call(ctx, "press_keys", map[string]any{"keys": keys, "hold": hold})
	return reqID, err
}

// ReleaseKeys releases previously held keys.
func (c *Computer) ReleaseKeys(ctx context.Context, keys []string) (string, error) {
	if len(keys) == 0 {
		return "", agberrors.NewValidationError("at least one key is required", nil)
	}
	_, reqID, err := c.call(ctx, "release_keys", map[string]any{"keys": keys})
	return reqID, err
}

// InputText types text at the current focus.
func (c *Computer) InputText(ctx context.Context, text string) (string, error) {
	_, reqID, err := c.call(ctx, "input_text", map[string]any{"text": text})
	return reqID, err
}

// Screenshot captures the screen and returns the image URL the runtime
// stored it under.
func (c *Computer) Screenshot(ctx context.Context) (string, string, error) {
	return c.call(ctx, "system_screenshot", nil)
}

// GetScreenSize returns the remote display geometry.
func (c *Computer) GetScreenSize(ctx context.Context) (*ScreenSize, string, error) {
	data, reqID, err := c.call(ctx, "get_screen_size", nil)
	if err != nil {
		return nil, reqID, err
	}
	root := gjson.Parse(data)
	return &ScreenSize{
		Width:            int(root.Get("width").Int()),
		Height:           int(root.Get("height").Int()),
		DpiScalingFactor: root.Get("dpiScalingFactor").Float(),
	}, reqID, nil
}

// GetCursorPosition returns the remote cursor location.
func (c *Computer) GetCursorPosition(ctx context.Context) (*CursorPosition, string, error) {
	data, reqID, err := c.call(ctx, "get_cursor_position", nil)
	if err != nil {
		return nil, reqID, err
	}
	root := gjson.Parse(data)
	return &CursorPosition{
		X: int(root.Get("x").Int()),
		Y: int(root.Get("y").Int()),
	}, reqID, nil
}

// ListRootWindows returns the root windows of the remote desktop.
func (c *Computer) ListRootWindows(ctx context.Context) ([]Window, string, error) {
	data, reqID, err := c.call(ctx, "list_root_windows", nil)
	if err != nil {
		return nil, reqID, err
	}

	var windows []Window
	for _, node := range gjson.Parse(data).Array() {
		windows = append(windows, Window{
			WindowID: int(node.Get("window_id").Int()),
			Title:    node.Get("title").String(),
			PID:      int(node.Get("pid").Int()),
			PName:    node.Get("pname").String(),
		})
	}
	return windows, reqID, nil
}

// ListVisibleApps returns the applications visible on the remote desktop.
func (c *Computer) ListVisibleApps(ctx context.Context) ([]App, string, error) {
	data, reqID, err := c.call(ctx, "list_visible_apps", nil)
	if err != nil {
		return nil, reqID, err
	}

	var apps []App
	for _, node := range gjson.Parse(data).Array() {
		apps = append(apps, App{
			PID:     int(node.Get("pid").Int()),
			PName:   node.Get("pname").String(),
			CmdLine: node.Get("cmdline").String(),
		})
	}
	return apps, reqID, nil
}
