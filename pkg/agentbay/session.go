// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package agentbay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"github.com/agentbay/agentbay-go/pkg/agent"
	"github.com/agentbay/agentbay-go/pkg/api"
	"github.com/agentbay/agentbay-go/pkg/browser"
	"github.com/agentbay/agentbay-go/pkg/code"
	"github.com/agentbay/agentbay-go/pkg/command"
	"github.com/agentbay/agentbay-go/pkg/computer"
	"github.com/agentbay/agentbay-go/pkg/contexts"
	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/filesystem"
	"github.com/agentbay/agentbay-go/pkg/logger"
	"github.com/agentbay/agentbay-go/pkg/mobile"
	"github.com/agentbay/agentbay-go/pkg/oss"
	"github.com/agentbay/agentbay-go/pkg/tools"
)

// Session lifecycle statuses reported by the control plane.
const (
	StatusCreating = "CREATING"
	StatusRunning  = "RUNNING"
	StatusPausing  = "PAUSING"
	StatusPaused   = "PAUSED"
	StatusResuming = "RESUMING"
	StatusError    = "ERROR"
	StatusFailed   = "FAILED"
	StatusFinished = "FINISH"
)

// Pause/resume polling budget.
const (
	stateChangeInterval = 2 * time.Second
	stateChangeTimeout  = 600 * time.Second
)

// GetLink accepts only ports of the session's forwarded range.
const (
	MinLinkPort = 30100
	MaxLinkPort = 30199
)

// SessionInfo is a point-in-time snapshot of a session's resource.
type SessionInfo struct {
	SessionID            string
	ResourceURL          string
	AppID                string
	AuthCode             string
	ConnectionProperties string
	ResourceID           string
	ResourceType         string
	Ticket               string
}

// Session is one remote agent runtime. Facade fields are wired at
// construction and safe for concurrent use.
type Session struct {
	caller api.Caller

	id      string
	imageID string

	mu                 sync.RWMutex
	resourceURL        string
	status             string
	isVPC              bool
	networkInterfaceIP string
	httpPort           string
	token              string
	mcpTools           []tools.Tool

	// creation parameters kept for release-time sync decisions
	params *CreateSessionParams

	dispatcher *tools.Dispatcher

	FileSystem *filesystem.FileSystem
	Command    *command.Command
	Code       *code.Code
	Computer   *computer.Computer
	Mobile     *mobile.Mobile
	OSS        *oss.OSS
	Agent      *agent.Agent
	Browser    *browser.Browser
	Context    *contexts.Manager
}

var _ tools.Session = (*Session)(nil)

func newSession(caller api.Caller, id string, params *CreateSessionParams) *Session {
	s := &Session{
		caller: caller,
		id:     id,
		params: params,
	}
	if params != nil {
		s.imageID = params.ImageID
	}

	dispatcher := tools.NewDispatcher(caller, s)
	s.dispatcher = dispatcher
	s.FileSystem = filesystem.New(dispatcher)
	s.Command = command.New(dispatcher)
	s.Code = code.New(dispatcher)
	s.Computer = computer.New(dispatcher)
	s.Mobile = mobile.New(dispatcher)
	s.OSS = oss.New(dispatcher)
	s.Agent = agent.New(dispatcher)
	s.Browser = browser.New(caller, id)
	s.Context = contexts.NewManager(caller, id)
	return s
}

// Call dispatches an arbitrary tool by name through the session's
// dispatcher, routing to the VPC endpoint or the control plane as
// appropriate. The typed facades are preferred; Call exists for tools
// the SDK has no facade for.
func (s *Session) Call(ctx context.Context, name string, args map[string]any, opts ...tools.CallOption) (*tools.Result, error) {
	return s.dispatcher.Call(ctx, name, args, opts...)
}

// SessionID implements tools.Session.
func (s *Session) SessionID() string { return s.id }

// ImageID returns the image the session was created from.
func (s *Session) ImageID() string { return s.imageID }

// IsVPC implements tools.Session.
func (s *Session) IsVPC() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isVPC
}

// NetworkInterfaceIP implements tools.Session.
func (s *Session) NetworkInterfaceIP() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.networkInterfaceIP
}

// HTTPPort implements tools.Session.
func (s *Session) HTTPPort() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.httpPort
}

// Token implements tools.Session.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// FindTool implements tools.Session. VPC dispatch fails closed when the
// named tool is missing from the catalog.
func (s *Session) FindTool(name string) (tools.Tool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tool := range s.mcpTools {
		if tool.Name == name {
			return tool, true
		}
	}
	return tools.Tool{}, false
}

// ResourceURL returns the last known resource URL.
func (s *Session) ResourceURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resourceURL
}

// Status returns the last observed lifecycle status.
func (s *Session) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// McpTools returns a copy of the tool catalog.
func (s *Session) McpTools() []tools.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tools.Tool, len(s.mcpTools))
	copy(out, s.mcpTools)
	return out
}

func (s *Session) setVPC(ip, port, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isVPC = true
	s.networkInterfaceIP = ip
	s.httpPort = port
	s.token = token
}

func (s *Session) setTools(catalog []tools.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mcpTools = catalog
}

func (s *Session) setStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *Session) setResourceURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resourceURL = url
}

// do runs one RPC and folds a Success=false envelope into a remote error.
func (s *Session) do(ctx context.Context, req api.Request) (*api.Envelope, error) {
	env, err := s.caller.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, &agberrors.RemoteError{
			RequestID:      env.RequestID,
			Code:           env.Code,
			Message:        env.Message,
			HTTPStatusCode: env.HTTPStatusCode,
		}
	}
	return env, nil
}

// Info reads the session's resource descriptor and refreshes the cached
// resource URL.
func (s *Session) Info(ctx context.Context) (*SessionInfo, string, error) {
	env, err := s.do(ctx, &api.GetMcpResourceRequest{SessionID: s.id})
	if err != nil {
		return nil, requestID(err), err
	}

	var data api.GetMcpResourceData
	if err := env.DecodeData(&data); err != nil {
		return nil, env.RequestID, agberrors.NewTransportError("decoding GetMcpResource data", err)
	}

	info := &SessionInfo{
		SessionID:   s.id,
		ResourceURL: data.ResourceURL,
	}
	if data.DesktopInfo != nil {
		info.AppID = data.DesktopInfo.AppID
		info.AuthCode = data.DesktopInfo.AuthCode
		info.ConnectionProperties = data.DesktopInfo.ConnectionProperties
		info.ResourceID = data.DesktopInfo.ResourceID
		info.ResourceType = data.DesktopInfo.ResourceType
		info.Ticket = data.DesktopInfo.Ticket
	}
	if data.ResourceURL != "" {
		s.setResourceURL(data.ResourceURL)
	}
	return info, env.RequestID, nil
}

// GetLink resolves an access link for the session. A non-nil port must
// fall inside the session's forwarded range.
func (s *Session) GetLink(ctx context.Context, protocolType string, port *int32, options string) (string, string, error) {
	if port != nil && (*port < MinLinkPort || *port > MaxLinkPort) {
		return "", "", agberrors.NewValidationError(
			fmt.Sprintf("invalid port %d: must be within [%d, %d]", *port, MinLinkPort, MaxLinkPort), nil)
	}

	env, err := s.do(ctx, &api.GetLinkRequest{
		SessionID:    s.id,
		ProtocolType: protocolType,
		Port:         port,
		Options:      options,
	})
	if err != nil {
		return "", requestID(err), err
	}

	var data api.GetLinkData
	if err := env.DecodeData(&data); err != nil {
		return "", env.RequestID, agberrors.NewTransportError("decoding GetLink data", err)
	}
	return data.URL, env.RequestID, nil
}

// SetLabels replaces the session's labels. Labels must be non-empty with
// no empty keys or values.
func (s *Session) SetLabels(ctx context.Context, labels map[string]string) (string, error) {
	if len(labels) == 0 {
		return "", agberrors.NewValidationError("labels cannot be empty", nil)
	}
	for k, v := range labels {
		if k == "" || v == "" {
			return "", agberrors.NewValidationError("labels cannot contain empty keys or values", nil)
		}
	}
	raw, err := json.Marshal(labels)
	if err != nil {
		return "", agberrors.NewValidationError("encoding labels", err)
	}

	env, err := s.do(ctx, &api.SetLabelRequest{SessionID: s.id, Labels: string(raw)})
	if err != nil {
		return requestID(err), err
	}
	return env.RequestID, nil
}

// GetLabels reads the session's labels.
func (s *Session) GetLabels(ctx context.Context) (map[string]string, string, error) {
	env, err := s.do(ctx, &api.GetLabelRequest{SessionID: s.id})
	if err != nil {
		return nil, requestID(err), err
	}

	var data api.GetLabelData
	if err := env.DecodeData(&data); err != nil {
		return nil, env.RequestID, agberrors.NewTransportError("decoding GetLabel data", err)
	}

	labels := map[string]string{}
	if data.Labels != "" {
		if err := json.Unmarshal([]byte(data.Labels), &labels); err != nil {
			return nil, env.RequestID, agberrors.NewTransportError("parsing session labels", err)
		}
	}
	return labels, env.RequestID, nil
}

// ListMcpTools fetches the tool catalog for the session's image and
// refreshes the local copy used for VPC routing.
func (s *Session) ListMcpTools(ctx context.Context) ([]tools.Tool, string, error) {
	env, err := s.do(ctx, &api.ListMcpToolsRequest{ImageID: s.imageID})
	if err != nil {
		return nil, requestID(err), err
	}

	catalog := parseToolCatalog(env.Data)
	s.setTools(catalog)
	return catalog, env.RequestID, nil
}

// parseToolCatalog decodes a ListMcpTools payload. The catalog arrives
// either as a JSON array or as a JSON string containing one.
func parseToolCatalog(raw json.RawMessage) []tools.Tool {
	if len(raw) == 0 {
		return nil
	}
	root := gjson.ParseBytes(raw)
	if root.Type == gjson.String {
		root = gjson.Parse(root.String())
	}
	if wrapped := root.Get("Tools"); wrapped.Exists() {
		root = wrapped
		if root.Type == gjson.String {
			root = gjson.Parse(root.String())
		}
	}

	var catalog []tools.Tool
	for _, node := range root.Array() {
		tool := tools.Tool{
			Name:        node.Get("name").String(),
			Description: node.Get("description").String(),
			Server:      node.Get("server").String(),
		}
		if schema := node.Get("inputSchema"); schema.Exists() {
			tool.InputSchema = json.RawMessage(schema.Raw)
		}
		if tool.Name != "" {
			catalog = append(catalog, tool)
		}
	}
	return catalog
}

// PauseAsync triggers a pause without waiting for it to land.
func (s *Session) PauseAsync(ctx context.Context) (string, error) {
	env, err := s.do(ctx, &api.PauseSessionRequest{SessionID: s.id})
	if err != nil {
		return requestID(err), err
	}
	s.setStatus(StatusPausing)
	return env.RequestID, nil
}

// Pause stops the session's billing clock and waits until it reports
// PAUSED.
func (s *Session) Pause(ctx context.Context) (string, error) {
	reqID, err := s.PauseAsync(ctx)
	if err != nil {
		return reqID, err
	}
	return reqID, s.awaitStatus(ctx, StatusPaused, StatusPausing)
}

// ResumeAsync triggers a resume without waiting for it to land.
func (s *Session) ResumeAsync(ctx context.Context) (string, error) {
	env, err := s.do(ctx, &api.ResumeSessionRequest{SessionID: s.id})
	if err != nil {
		return requestID(err), err
	}
	s.setStatus(StatusResuming)
	return env.RequestID, nil
}

// Resume restarts a paused session and waits until it reports RUNNING.
func (s *Session) Resume(ctx context.Context) (string, error) {
	reqID, err := s.ResumeAsync(ctx)
	if err != nil {
		return reqID, err
	}
	return reqID, s.awaitStatus(ctx, StatusRunning, StatusResuming)
}

var errStateChangePending = agberrors.NewTimeoutError("session state change in progress", nil)

// awaitStatus polls GetSession until the target status is observed.
// ERROR and FAILED are immediately terminal; PAUSING and RESUMING are
// expected transients; anything else logs and keeps polling.
func (s *Session) awaitStatus(ctx context.Context, target, transient string) error {
	maxTries := uint(stateChangeTimeout / stateChangeInterval)

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		env, pollErr := s.do(ctx, &api.GetSessionRequest{SessionID: s.id})
		if pollErr != nil {
			return struct{}{}, backoff.Permanent(pollErr)
		}
		var data api.GetSessionData
		if decodeErr := env.DecodeData(&data); decodeErr != nil {
			return struct{}{}, backoff.Permanent(
				agberrors.NewTransportError("decoding GetSession data", decodeErr))
		}

		s.setStatus(data.Status)
		switch data.Status {
		case target:
			return struct{}{}, nil
		case StatusError, StatusFailed:
			return struct{}{}, backoff.Permanent(agberrors.NewInternalError(
				"session "+s.id+" entered terminal status "+data.Status, nil))
		case transient, StatusPausing, StatusResuming:
			return struct{}{}, errStateChangePending
		default:
			logger.Warnf("session %s reported unexpected status %s while waiting for %s",
				s.id, data.Status, target)
			return struct{}{}, errStateChangePending
		}
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(stateChangeInterval)),
		backoff.WithMaxTries(maxTries),
	)
	if err != nil {
		if errors.Is(err, errStateChangePending) {
			return agberrors.NewTimeoutError(
				"session "+s.id+" did not reach "+target+" within the polling budget", err)
		}
		return err
	}
	return nil
}

// requestID extracts the request id carried by a remote error, if any.
func requestID(err error) string {
	var remote *agberrors.RemoteError
	if errors.As(err, &remote) {
		return remote.RequestID
	}
	return ""
}
