// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package agentbay is the top-level client of the SDK: session lifecycle,
// the per-session facade graph, and the client-scoped context service.
package agentbay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/agentbay/agentbay-go/pkg/api"
	"github.com/agentbay/agentbay-go/pkg/browser"
	"github.com/agentbay/agentbay-go/pkg/config"
	"github.com/agentbay/agentbay-go/pkg/contexts"
	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/logger"
	"github.com/agentbay/agentbay-go/pkg/mobile"
	"github.com/agentbay/agentbay-go/pkg/telemetry"
	"github.com/agentbay/agentbay-go/pkg/versions"
)

// EnvAPIKey names the environment variable consulted when no key is
// passed explicitly.
const EnvAPIKey = "AGENTBAY_API_KEY"

// codeSessionNotFound is the control plane code for a missing session.
const codeSessionNotFound = "InvalidMcpSession.NotFound"

// Delete polling budget.
const (
	deleteInterval = 1 * time.Second
	deleteTimeout  = 50 * time.Second
)

// Client is the entry point of the SDK. It owns the control plane
// connection, the set of sessions it created, the context service, and
// the telemetry pipeline. Safe for concurrent use.
type Client struct {
	cfg       config.Config
	caller    api.Caller
	telemetry *telemetry.Pipeline
	owner     string

	Contexts *contexts.Service

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option customizes a Client.
type Option func(*options)

type options struct {
	config            *config.Config
	caller            api.Caller
	telemetryEndpoint *string
}

// WithConfig overrides connection settings; empty fields fall through to
// the usual resolution chain.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithCaller replaces the control plane caller. Tests use it to point the
// client at a fake.
func WithCaller(caller api.Caller) Option {
	return func(o *options) { o.caller = caller }
}

// WithTelemetryEndpoint overrides the telemetry delivery host. An empty
// string disables telemetry entirely.
func WithTelemetryEndpoint(endpoint string) Option {
	return func(o *options) { o.telemetryEndpoint = &endpoint }
}

// New creates a client. The API key is taken from apiKey, falling back to
// the AGENTBAY_API_KEY environment variable.
func New(apiKey string, opts ...Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	key := apiKey
	if key == "" {
		key = os.Getenv(EnvAPIKey)
	}
	if key == "" {
		return nil, agberrors.NewAuthenticationError(
			"no API key provided: pass one explicitly or set "+EnvAPIKey, nil)
	}

	cfg := config.Load(o.config)

	caller := o.caller
	if caller == nil {
		var err error
		caller, err = api.New(api.Config{
			Endpoint: cfg.Endpoint,
			APIKey:   key,
			Timeout:  time.Duration(cfg.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return nil, err
		}
	}

	telemetryEndpoint := telemetry.DefaultEndpoint
	if o.telemetryEndpoint != nil {
		telemetryEndpoint = *o.telemetryEndpoint
	}

	c := &Client{
		cfg:    cfg,
		caller: caller,
		telemetry: telemetry.New(telemetry.Config{
			Endpoint: telemetryEndpoint,
			APIKey:   key,
			AppName:  "agentbay-go",
		}),
		owner:    api.MaskAuthorization(key),
		Contexts: contexts.NewService(caller),
		sessions: make(map[string]*Session),
	}
	return c, nil
}

// Config returns the resolved connection configuration.
func (c *Client) Config() config.Config { return c.cfg }

// Telemetry returns the client's telemetry pipeline.
func (c *Client) Telemetry() *telemetry.Pipeline { return c.telemetry }

// Shutdown flushes pending telemetry. The control plane connection needs
// no teardown.
func (c *Client) Shutdown(ctx context.Context) {
	c.telemetry.Shutdown(ctx)
}

func (c *Client) cache(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[s.id] = s
}

func (c *Client) uncache(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
}

// Session returns a cached session created by this client.
func (c *Client) Session(id string) (*Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[id]
	return s, ok
}

// Create provisions a new session and waits until it is usable: context
// mounts settled, VPC tool catalog loaded, mobile simulation applied.
func (c *Client) Create(ctx context.Context, params *CreateSessionParams) (*Session, error) {
	if params == nil {
		params = NewCreateSessionParams()
	}

	labels, err := params.labelsJSON()
	if err != nil {
		return nil, err
	}
	persistence, err := params.persistenceDataList()
	if err != nil {
		return nil, err
	}
	extraConfigs, err := params.extraConfigsJSON()
	if err != nil {
		return nil, err
	}
	stats, err := json.Marshal(versions.GetStats(params.Framework))
	if err != nil {
		return nil, agberrors.NewInternalError("encoding sdk stats", err)
	}

	env, err := c.caller.Do(ctx, &api.CreateMcpSessionRequest{
		ImageID:             params.ImageID,
		Labels:              labels,
		VpcResource:         params.IsVpc,
		McpPolicyID:         params.McpPolicyID,
		PersistenceDataList: persistence,
		ExtraConfigs:        extraConfigs,
		SdkStats:            string(stats),
		LoginRegionID:       c.cfg.RegionID,
		EnableRecord:        params.EnableBrowserReplay,
	})
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

	var data api.CreateMcpSessionData
	if err := env.DecodeData(&data); err != nil {
		return nil, agberrors.NewTransportError("decoding CreateMcpSession data", err)
	}
	if data.ErrMsg != "" && !data.Success {
		return nil, &agberrors.RemoteError{
			RequestID:      env.RequestID,
			Message:        data.ErrMsg,
			HTTPStatusCode: env.HTTPStatusCode,
		}
	}
	if data.SessionID == "" {
		return nil, &agberrors.RemoteError{
			RequestID:      env.RequestID,
			Message:        "CreateMcpSession returned no session id",
			HTTPStatusCode: env.HTTPStatusCode,
		}
	}

	s := newSession(c.caller, data.SessionID, params)
	s.setResourceURL(data.ResourceURL)
	s.setStatus(StatusRunning)
	if params.IsVpc {
		s.setVPC(data.NetworkInterfaceIP, data.HTTPPort, data.Token)
	}
	c.cache(s)
	logger.Infof("created session %s (request %s)", s.id, env.RequestID)

	c.telemetry.SendTrace(ctx, c.owner,
		map[string]any{"action": "create_session", "session_id": s.id, "request_id": env.RequestID},
		"session_lifecycle", s.id, "", true)

	// The VPC route cannot work without the tool→server catalog; a fetch
	// failure degrades to control plane dispatch rather than failing the
	// create.
	if params.IsVpc {
		if _, _, err := s.ListMcpTools(ctx); err != nil {
			logger.Warnf("failed to load tool catalog for VPC session %s: %v", s.id, err)
		}
	}

	if params.hasPersistence() {
		if _, err := s.Context.Await(ctx); err != nil {
			return s, err
		}
	}

	c.bootstrapSimulation(ctx, s, params)
	return s, nil
}

// bootstrapSimulation applies the configured mobile behavior simulation.
// Failures are logged and never fail creation.
func (c *Client) bootstrapSimulation(ctx context.Context, s *Session, params *CreateSessionParams) {
	if params.ExtraConfigs == nil || params.ExtraConfigs.Mobile == nil {
		return
	}
	mode := params.ExtraConfigs.Mobile.SimulateMode
	if mode == "" {
		return
	}
	if !browser.SimulationEnabled() {
		logger.Debugf("behavior simulation disabled by environment, skipping for session %s", s.id)
		return
	}

	cmd, err := mobile.SimulateCommand(mode)
	if err != nil {
		logger.Warnf("invalid simulate mode for session %s: %v", s.id, err)
		return
	}
	if _, err := s.Command.Execute(ctx, cmd); err != nil {
		logger.Warnf("behavior simulation bootstrap failed for session %s: %v", s.id, err)
	}
}

// Get fetches a session by id and returns a read-only handle. The handle
// is not cached: lifecycle management stays with whoever created it.
func (c *Client) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, agberrors.NewValidationError("session id cannot be empty", nil)
	}

	env, err := c.caller.Do(ctx, &api.GetSessionRequest{SessionID: sessionID})
	if err != nil {
		if remote := remoteError(err); remote != nil && remote.Code == codeSessionNotFound {
			logger.Infof("session %s not found", sessionID)
			return nil, agberrors.NewNotFoundError("session not found: "+sessionID, nil)
		}
		return nil, err
	}
	if !env.Success {
		if env.Code == codeSessionNotFound {
			logger.Infof("session %s not found", sessionID)
			return nil, agberrors.NewNotFoundError("session not found: "+sessionID, nil)
		}
		return nil, &agberrors.RemoteError{
			RequestID:      env.RequestID,
			Code:           env.Code,
			Message:        env.Message,
			HTTPStatusCode: env.HTTPStatusCode,
		}
	}

	var data api.GetSessionData
	if err := env.DecodeData(&data); err != nil {
		return nil, agberrors.NewTransportError("decoding GetSession data", err)
	}

	s := newSession(c.caller, sessionID, nil)
	s.setStatus(data.Status)
	s.setResourceURL(data.ResourceURL)
	if data.VpcResource {
		s.setVPC(data.NetworkInterfaceIP, data.HTTPPort, data.Token)
	}
	return s, nil
}

// SessionListResult is one page of session ids.
type SessionListResult struct {
	RequestID  string
	SessionIDs []string
	NextToken  string
	MaxResults int
	TotalCount int
}

// List returns the requested page of sessions matching labels. Pages are
// 1-based; reaching page N requires walking pages 1..N-1 through their
// continuation tokens.
func (c *Client) List(ctx context.Context, labels map[string]string, page, pageSize int) (*SessionListResult, error) {
	if page < 1 {
		return nil, agberrors.NewValidationError(
			fmt.Sprintf("cannot reach page %d: page number must be at least 1", page), nil)
	}

	labelFilter := ""
	if len(labels) > 0 {
		raw, err := json.Marshal(labels)
		if err != nil {
			return nil, agberrors.NewValidationError("encoding label filter", err)
		}
		labelFilter = string(raw)
	}

	token := ""
	for current := 1; ; current++ {
		env, err := c.caller.Do(ctx, &api.ListSessionRequest{
			Labels:     labelFilter,
			MaxResults: pageSize,
			NextToken:  token,
		})
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

		var data api.ListSessionData
		if err := env.DecodeData(&data); err != nil {
			return nil, agberrors.NewTransportError("decoding ListSession data", err)
		}

		if current == page {
			result := &SessionListResult{
				RequestID:  env.RequestID,
				NextToken:  data.NextToken,
				MaxResults: data.MaxResults,
				TotalCount: data.TotalCount,
			}
			for _, item := range data.Data {
				result.SessionIDs = append(result.SessionIDs, item.SessionID)
			}
			return result, nil
		}
		if data.NextToken == "" {
			return nil, agberrors.NewValidationError(
				fmt.Sprintf("Cannot reach page %d: No more pages available", page), nil)
		}
		token = data.NextToken
	}
}

var errStillReleasing = agberrors.NewTimeoutError("session release in progress", nil)

// Delete releases a session and waits until the control plane reports it
// gone. With syncContext, or when any mount uploads on release, pending
// context changes are flushed first.
func (c *Client) Delete(ctx context.Context, s *Session, syncContext bool) error {
	if s == nil {
		return agberrors.NewValidationError("session cannot be nil", nil)
	}

	if syncContext || (s.params != nil && s.params.hasAutoUpload()) {
		if result, err := s.Context.Sync(ctx); err != nil {
			logger.Warnf("pre-release context sync for session %s failed: %v", s.id, err)
		} else if !result.Success {
			logger.Warnf("pre-release context sync for session %s completed with failures", s.id)
		}
	}

	env, err := c.caller.Do(ctx, &api.ReleaseMcpSessionRequest{SessionID: s.id})
	if err != nil {
		return err
	}
	if !env.Success {
		return &agberrors.RemoteError{
			RequestID:      env.RequestID,
			Code:           env.Code,
			Message:        env.Message,
			HTTPStatusCode: env.HTTPStatusCode,
		}
	}

	maxTries := uint(deleteTimeout / deleteInterval)
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		gone, pollErr := c.sessionGone(ctx, s.id)
		if pollErr != nil {
			return struct{}{}, backoff.Permanent(pollErr)
		}
		if !gone {
			return struct{}{}, errStillReleasing
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(deleteInterval)),
		backoff.WithMaxTries(maxTries),
	)
	if err != nil {
		if errors.Is(err, errStillReleasing) {
			return agberrors.NewTimeoutError(
				"session "+s.id+" was not released within the polling budget", err)
		}
		return err
	}

	s.setStatus(StatusFinished)
	c.uncache(s.id)
	logger.Infof("deleted session %s (request %s)", s.id, env.RequestID)

	c.telemetry.SendTrace(ctx, c.owner,
		map[string]any{"action": "delete_session", "session_id": s.id, "request_id": env.RequestID},
		"session_lifecycle", s.id, "", false)
	return nil
}

// sessionGone reads the session once and applies the release classifier:
// a not-found code, an HTTP 400 carrying not-found text, or a FINISH
// status all mean the session is gone.
func (c *Client) sessionGone(ctx context.Context, sessionID string) (bool, error) {
	env, err := c.caller.Do(ctx, &api.GetSessionRequest{SessionID: sessionID})
	if err != nil {
		if remote := remoteError(err); remote != nil && remoteNotFound(remote) {
			return true, nil
		}
		return false, err
	}
	if !env.Success {
		if env.Code == codeSessionNotFound ||
			(env.HTTPStatusCode == 400 && strings.Contains(strings.ToLower(env.Message), "not found")) {
			return true, nil
		}
		return false, &agberrors.RemoteError{
			RequestID:      env.RequestID,
			Code:           env.Code,
			Message:        env.Message,
			HTTPStatusCode: env.HTTPStatusCode,
		}
	}

	var data api.GetSessionData
	if err := env.DecodeData(&data); err != nil {
		return false, agberrors.NewTransportError("decoding GetSession data", err)
	}
	return data.Status == StatusFinished, nil
}

func remoteError(err error) *agberrors.RemoteError {
	var remote *agberrors.RemoteError
	if errors.As(err, &remote) {
		return remote
	}
	return nil
}

func remoteNotFound(remote *agberrors.RemoteError) bool {
	return remote.Code == codeSessionNotFound ||
		(remote.HTTPStatusCode == 400 && strings.Contains(strings.ToLower(remote.Message), "not found"))
}
