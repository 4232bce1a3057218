// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package code executes snippets in the session's code runtime and
// extracts the rich multi-format results it reports.
package code

import (
	"context"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/tools"
)

// DefaultTimeoutS bounds code execution on the remote runtime.
const DefaultTimeoutS = 300

// Languages the remote runtime accepts.
const (
	LanguagePython     = "python"
	LanguageJavaScript = "javascript"
)

// Logs captures the stdout and stderr streams of one run.
type Logs struct {
	Stdout []string `json:"stdout"`
	Stderr []string `json:"stderr"`
}

// Frame is one output artifact of a run: text plus any richer renderings
// the runtime produced for the same value.
type Frame struct {
	Text         string `json:"text"`
	HTML         string `json:"html"`
	Markdown     string `json:"markdown"`
	PNG          string `json:"png"`
	IsMainResult bool   `json:"is_main_result"`
}

// RunError is the structured failure description of a run.
type RunError struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Traceback string `json:"traceback"`
}

// Result is the outcome of one code run. Result is the backward
// compatible scalar: the main frame's text, else the first frame's text,
// else joined stdout.
type Result struct {
	RequestID string
	Logs      Logs
	Frames    []Frame
	RunError  *RunError
	Result    string
}

// Code runs snippets through the session dispatcher.
type Code struct {
	invoker tools.Invoker
}

// New creates the code facade.
func New(invoker tools.Invoker) *Code {
	return &Code{invoker: invoker}
}

// Run executes source in the named language with the default timeout.
func (c *Code) Run(ctx context.Context, source, language string) (*Result, error) {
	return c.RunWithTimeout(ctx, source, language, DefaultTimeoutS)
}

// RunWithTimeout executes source, bounding it remotely to timeoutS
// seconds.
func (c *Code) RunWithTimeout(ctx context.Context, source, language string, timeoutS int) (*Result, error) {
	language = strings.ToLower(language)
	if language != LanguagePython && language != LanguageJavaScript {
		return nil, agberrors.NewValidationError(
			"unsupported language: "+language+" (supported: python, javascript)", nil)
	}
	if timeoutS <= 0 {
		timeoutS = DefaultTimeoutS
	}

	callTimeout := time.Duration(timeoutS)*time.Second + 10*time.Second
	result, err := c.invoker.Call(ctx, "run_code", map[string]any{
		"code":      source,
		"language":  language,
		"timeout_s": timeoutS,
	}, tools.WithTimeout(callTimeout))
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return &Result{RequestID: result.RequestID},
			agberrors.NewToolError(result.ErrorMessage, nil)
	}

	parsed := parseRunResult(result.Data)
	parsed.RequestID = result.RequestID
	return parsed, nil
}

// parseRunResult extracts the rich run payload. Plain text output from
// older runtimes falls through as the scalar result.
func parseRunResult(data string) *Result {
	result := &Result{}
	if !gjson.Valid(data) {
		result.Result = data
		return result
	}

	root := gjson.Parse(data)

	for _, line := range root.Get("logs.stdout").Array() {
		result.Logs.Stdout = append(result.Logs.Stdout, line.String())
	}
	for _, line := range root.Get("logs.stderr").Array() {
		result.Logs.Stderr = append(result.Logs.Stderr, line.String())
	}

	for _, frame := range root.Get("results").Array() {
		result.Frames = append(result.Frames, Frame{
			Text:         frame.Get("text").String(),
			HTML:         frame.Get("html").String(),
			Markdown:     frame.Get("markdown").String(),
			PNG:          frame.Get("png").String(),
			IsMainResult: frame.Get("is_main_result").Bool(),
		})
	}

	if errNode := root.Get("error"); errNode.Exists() {
		result.RunError = &RunError{
			Name:      errNode.Get("name").String(),
			Value:     errNode.Get("value").String(),
			Traceback: errNode.Get("traceback").String(),
		}
	}

	result.Result = scalarResult(result)
	return result
}

// scalarResult prefers the main frame's text, then the first frame's
// text, then joined stdout.
func scalarResult(r *Result) string {
	for _, frame := range r.Frames {
		if frame.IsMainResult && frame.Text != "" {
			return frame.Text
		}
	}
	if len(r.Frames) > 0 && r.Frames[0].Text != "" {
		return r.Frames[0].Text
	}
	return strings.Join(r.Logs.Stdout, "")
}
