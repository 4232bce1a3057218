// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package browser boots the in-session browser and resolves its debug
// endpoints. The browser runs remotely; callers attach over CDP.
package browser

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/agentbay/agentbay-go/pkg/api"
	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/logger"
)

// DataPath is where the session image keeps the browser profile. Context
// bindings that persist browser state mount at this path.
const DataPath = "/home/wuying/Browser/User Data"

// ContextWhiteList names the profile files worth persisting across
// sessions, relative to DataPath.
var ContextWhiteList = []string{
	"/Local State",
	"/Default/Cookies",
	"/Default/Cookies-journal",
}

const simulateEnvVar = "AGENTBAY_BROWSER_BEHAVIOR_SIMULATE"

// SimulationEnabled reports whether behavior simulation should run after
// session creation. Anything but an explicit "0" keeps it on.
func SimulationEnabled() bool {
	return os.Getenv(simulateEnvVar) != "0"
}

// InitResult is the outcome of browser initialization.
type InitResult struct {
	RequestID string
	Port      int
}

// Browser manages the remote browser of one session.
type Browser struct {
	caller    api.Caller
	sessionID string

	mu          sync.Mutex
	initialized bool
	port        int
}

// New creates the browser facade for a session.
func New(caller api.Caller, sessionID string) *Browser {
	return &Browser{caller: caller, sessionID: sessionID}
}

// Initialize starts the remote browser. option is marshaled as an opaque
// JSON blob the runtime interprets; nil sends no options. persistPath,
// when set, points the profile at a context mount. Initialize is
// idempotent per facade instance.
func (b *Browser) Initialize(ctx context.Context, persistPath string, option any) (*InitResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return &InitResult{Port: b.port}, nil
	}

	blob := ""
	if option != nil {
		raw, err := json.Marshal(option)
		if err != nil {
			return nil, agberrors.NewValidationError("encoding browser option", err)
		}
		blob = string(raw)
	}

	env, err := b.do(ctx, &api.InitBrowserRequest{
		SessionID:     b.sessionID,
		PersistPath:   persistPath,
		BrowserOption: blob,
	})
	if err != nil {
		return nil, err
	}

	var data api.InitBrowserData
	if err := env.DecodeData(&data); err != nil {
		return nil, agberrors.NewTransportError("decoding InitBrowser data", err)
	}

	b.initialized = true
	b.port = data.Port
	logger.Debugf("browser initialized for session %s on port %d", b.sessionID, data.Port)
	return &InitResult{RequestID: env.RequestID, Port: data.Port}, nil
}

// IsInitialized reports whether Initialize has succeeded.
func (b *Browser) IsInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// GetCdpLink returns the CDP websocket URL of the session browser. The
// browser must have been initialized first.
func (b *Browser) GetCdpLink(ctx context.Context) (string, string, error) {
	if !b.IsInitialized() {
		return "", "", agberrors.NewValidationError("browser is not initialized", nil)
	}
	return b.link(ctx, &api.GetCdpLinkRequest{SessionID: b.sessionID}, "GetCdpLink")
}

// GetAdbLink returns the ADB endpoint of a mobile session.
func (b *Browser) GetAdbLink(ctx context.Context) (string, string, error) {
	return b.link(ctx, &api.GetAdbLinkRequest{SessionID: b.sessionID}, "GetAdbLink")
}

func (b *Browser) link(ctx context.Context, req api.Request, action string) (string, string, error) {
	env, err := b.do(ctx, req)
	if err != nil {
		return "", "", err
	}
	var data api.GetLinkData
	if err := env.DecodeData(&data); err != nil {
		return "", env.RequestID, agberrors.NewTransportError("decoding "+action+" data", err)
	}
	if data.URL == "" {
		return "", env.RequestID, agberrors.NewNotFoundError(action+" returned no url", nil)
	}
	return data.URL, env.RequestID, nil
}

func (b *Browser) do(ctx context.Context, req api.Request) (*api.Envelope, error) {
	env, err := b.caller.Do(ctx, req)
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
