// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tools routes per-session tool invocations to the control plane
// or, for VPC sessions, directly to the in-session HTTP endpoint.
//
// Both routes normalize into the same ToolResult: operational failures
// (isError responses, missing servers) ride in the result, while the
// error return is reserved for transport and programming errors.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentbay/agentbay-go/pkg/api"
	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/logger"
)

// DefaultCallTimeout bounds a tool call when the caller's context carries
// no deadline.
const DefaultCallTimeout = 60 * time.Second

// maxVPCResponseBytes caps reads from the in-session endpoint.
const maxVPCResponseBytes = 64 << 20

// Tool describes one server-resident action of the session's catalog.
type Tool struct {
	Name        string
	Description string
	Server      string
	InputSchema json.RawMessage
}

// Session is the slice of session state the dispatcher needs. The session
// owner implements it; the dispatcher never mutates session state.
type Session interface {
	SessionID() string
	IsVPC() bool
	NetworkInterfaceIP() string
	HTTPPort() string
	Token() string
	// FindTool resolves a catalog entry by name. VPC routing fails closed
	// when it returns false.
	FindTool(name string) (Tool, bool)
}

// Result is the normalized outcome of one tool call.
type Result struct {
	RequestID    string
	Success      bool
	Data         string
	ErrorMessage string
}

// Invoker is the facade-facing dispatch surface.
type Invoker interface {
	Call(ctx context.Context, name string, args map[string]any, opts ...CallOption) (*Result, error)
}

// CallOption tunes one dispatch.
type CallOption func(*callSettings)

type callSettings struct {
	timeout        time.Duration
	autoGenSession bool
}

// WithTimeout overrides the default per-call timeout.
func WithTimeout(d time.Duration) CallOption {
	return func(s *callSettings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithAutoGenSession asks the control plane to allocate a session for the
// call when the referenced one is gone. Only the control-plane route
// honors it; the VPC endpoint has no equivalent.
func WithAutoGenSession() CallOption {
	return func(s *callSettings) { s.autoGenSession = true }
}

// Dispatcher routes tool calls for one session.
type Dispatcher struct {
	caller     api.Caller
	session    Session
	httpClient *http.Client
	hooks      *HookRegistry
}

var _ Invoker = (*Dispatcher)(nil)

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHTTPClient replaces the HTTP client used for VPC calls.
func WithHTTPClient(hc *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.httpClient = hc }
}

// WithHooks replaces the argument hook registry.
func WithHooks(hooks *HookRegistry) DispatcherOption {
	return func(d *Dispatcher) { d.hooks = hooks }
}

// NewDispatcher creates a dispatcher bound to one session.
func NewDispatcher(caller api.Caller, session Session, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		caller:     caller,
		session:    session,
		httpClient: &http.Client{Timeout: DefaultCallTimeout},
		hooks:      DefaultHooks(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Call invokes a named tool with the given arguments. Calls are
// independent; callers that need ordering await each in turn.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any, opts ...CallOption) (*Result, error) {
	settings := &callSettings{timeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(settings)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.timeout)
		defer cancel()
	}

	args = d.hooks.Apply(name, args)

	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, agberrors.NewInternalError("encoding tool args for "+name, err)
	}

	if d.session.IsVPC() {
		return d.callVPC(ctx, name, string(encoded))
	}
	return d.callControlPlane(ctx, name, string(encoded), settings.autoGenSession)
}

func (d *Dispatcher) callControlPlane(ctx context.Context, name, args string, autoGenSession bool) (*Result, error) {
	env, err := d.caller.Do(ctx, &api.CallMcpToolRequest{
		SessionID:      d.session.SessionID(),
		Name:           name,
		Args:           args,
		AutoGenSession: autoGenSession,
	})
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return &Result{
			RequestID:    env.RequestID,
			ErrorMessage: env.FailureMessage(),
		}, nil
	}

	result, err := resultFromContent(env.Data)
	if err != nil {
		return nil, agberrors.NewTransportError("parsing "+name+" tool response", err)
	}
	result.RequestID = env.RequestID
	return result, nil
}

// callVPC bypasses the control plane and talks to the in-session tool
// endpoint. The route fails closed: no catalog entry, no request.
func (d *Dispatcher) callVPC(ctx context.Context, name, args string) (*Result, error) {
	ip := d.session.NetworkInterfaceIP()
	port := d.session.HTTPPort()
	if ip == "" || port == "" {
		return &Result{
			ErrorMessage: "VPC session missing network interface IP or HTTP port",
		}, nil
	}

	tool, ok := d.session.FindTool(name)
	if !ok || tool.Server == "" {
		return &Result{
			ErrorMessage: "server not found for tool: " + name,
		}, nil
	}

	requestID := NewVPCRequestID()
	query := url.Values{}
	query.Set("server", tool.Server)
	query.Set("tool", name)
	query.Set("args", args)
	query.Set("token", d.session.Token())
	query.Set("requestId", requestID)

	endpoint := fmt.Sprintf("http://%s:%s/callTool?%s", ip, port, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, agberrors.NewTransportError("building VPC request for "+name, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	logger.Debugw("VPC tool call", "tool", name, "server", tool.Server, "request_id", requestID)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, agberrors.NewTransportError("VPC call for "+name+" failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxVPCResponseBytes))
	if err != nil {
		return nil, agberrors.NewTransportError("reading VPC response for "+name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, agberrors.NewTransportError(
			"VPC call for "+name+" returned HTTP "+strconv.Itoa(resp.StatusCode), nil)
	}

	// The VPC endpoint wraps the tool result in a data field.
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, agberrors.NewTransportError("malformed VPC response for "+name, err)
	}
	body := wrapper.Data
	if len(body) == 0 {
		body = raw
	}

	result, err := resultFromContent(body)
	if err != nil {
		return nil, agberrors.NewTransportError("parsing VPC tool response for "+name, err)
	}
	result.RequestID = requestID
	return result, nil
}

// resultFromContent folds an MCP call-tool payload into a Result. Text
// items are joined with newlines; isError turns the text into the error
// message.
func resultFromContent(raw json.RawMessage) (*Result, error) {
	if len(raw) == 0 {
		return &Result{Success: true}, nil
	}
	message := json.RawMessage(raw)
	parsed, err := mcp.ParseCallToolResult(&message)
	if err != nil {
		return nil, err
	}

	var texts []string
	for _, content := range parsed.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			texts = append(texts, text.Text)
		}
	}
	joined := strings.Join(texts, "\n")

	if parsed.IsError {
		return &Result{ErrorMessage: joined}, nil
	}
	return &Result{Success: true, Data: joined}, nil
}

// NewVPCRequestID generates the client-side correlation id used on the
// VPC route, in the form vpc-<epoch_ms>-<random9>.
func NewVPCRequestID() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("vpc-%d-%s", time.Now().UnixMilli(), random[:9])
}
