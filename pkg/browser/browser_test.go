// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package browser

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/agentbay/agentbay-go/pkg/api"
	"github.com/agentbay/agentbay-go/pkg/api/mocks"
	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
)

func TestInitializeSendsOpaqueOption(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.InitBrowserRequest{})).
		DoAndReturn(func(_ context.Context, req api.Request) (*api.Envelope, error) {
			init := req.(*api.InitBrowserRequest)
			assert.Equal(t, "s-1", init.SessionID)
			assert.Equal(t, DataPath, init.PersistPath)
			assert.JSONEq(t, `{"useStealth": true}`, init.BrowserOption)
			return &api.Envelope{
				RequestID: "req-init", Success: true, HTTPStatusCode: 200,
				Data: json.RawMessage(`{"Port": 9222}`),
			}, nil
		})

	b := New(caller, "s-1")
	result, err := b.Initialize(context.Background(), DataPath, map[string]any{"useStealth": true})
	require.NoError(t, err)
	assert.Equal(t, 9222, result.Port)
	assert.True(t, b.IsInitialized())

	// Second call is a local no-op.
	again, err := b.Initialize(context.Background(), DataPath, nil)
	require.NoError(t, err)
	assert.Equal(t, 9222, again.Port)
}

func TestGetCdpLinkRequiresInitialization(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	b := New(caller, "s-1")
	_, _, err := b.GetCdpLink(context.Background())
	require.Error(t, err)
	assert.True(t, agberrors.IsValidation(err))
}

func TestGetCdpLink(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.InitBrowserRequest{})).
		Return(&api.Envelope{
			RequestID: "req-init", Success: true, HTTPStatusCode: 200,
			Data: json.RawMessage(`{"Port": 9222}`),
		}, nil)
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.GetCdpLinkRequest{})).
		Return(&api.Envelope{
			RequestID: "req-cdp", Success: true, HTTPStatusCode: 200,
			Data: json.RawMessage(`{"Url": "ws://gateway/devtools/browser/abc"}`),
		}, nil)

	b := New(caller, "s-1")
	_, err := b.Initialize(context.Background(), "", nil)
	require.NoError(t, err)

	url, reqID, err := b.GetCdpLink(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ws://gateway/devtools/browser/abc", url)
	assert.Equal(t, "req-cdp", reqID)
}

func TestGetAdbLinkRemoteFailure(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.GetAdbLinkRequest{})).
		Return(&api.Envelope{
			RequestID: "req-adb", Success: false, Code: "InvalidSession",
			Message: "no such session", HTTPStatusCode: 400,
		}, nil)

	b := New(caller, "s-404")
	_, _, err := b.GetAdbLink(context.Background())
	require.Error(t, err)

	var remote *agberrors.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "req-adb", remote.RequestID)
}

func TestSimulationEnabled(t *testing.T) {
	t.Setenv(simulateEnvVar, "")
	assert.True(t, SimulationEnabled())

	t.Setenv(simulateEnvVar, "0")
	assert.False(t, SimulationEnabled())

	t.Setenv(simulateEnvVar, "1")
	assert.True(t, SimulationEnabled())
}
