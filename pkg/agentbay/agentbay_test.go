// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package agentbay

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/agentbay/agentbay-go/pkg/api"
	"github.com/agentbay/agentbay-go/pkg/api/mocks"
	"github.com/agentbay/agentbay-go/pkg/browser"
	"github.com/agentbay/agentbay-go/pkg/config"
	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/mobile"
)

func newTestClient(t *testing.T, caller api.Caller) *Client {
	t.Helper()
	c, err := New("test-key", WithCaller(caller), WithTelemetryEndpoint(""))
	require.NoError(t, err)
	return c
}

func okEnvelope(reqID string, data any) *api.Envelope {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	return &api.Envelope{RequestID: reqID, Success: true, HTTPStatusCode: 200, Data: raw}
}

// settledStatusEnvelope builds a GetContextInfo response whose every sync
// task has already succeeded, using the doubly-encoded wire layout.
func settledStatusEnvelope(t *testing.T, reqID string) *api.Envelope {
	t.Helper()
	inner, err := json.Marshal([]map[string]any{{
		"contextId": "ctx-1", "path": "/mnt/data", "status": "Success", "taskType": "download",
	}})
	require.NoError(t, err)
	outer, err := json.Marshal([]map[string]string{{"type": "data", "data": string(inner)}})
	require.NoError(t, err)
	return okEnvelope(reqID, map[string]string{"ContextStatus": string(outer)})
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv(EnvAPIKey, "")

	_, err := New("")
	require.Error(t, err)
	assert.True(t, agberrors.IsAuthentication(err))
}

func TestNewFallsBackToEnvironmentKey(t *testing.T) {
	t.Setenv(EnvAPIKey, "env-key")

	c, err := New("", WithTelemetryEndpoint(""))
	require.NoError(t, err)
	assert.NotNil(t, c.Contexts)
}

func TestCreateSession(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.CreateMcpSessionRequest{})).
		DoAndReturn(func(_ context.Context, req api.Request) (*api.Envelope, error) {
			create := req.(*api.CreateMcpSessionRequest)
			assert.Equal(t, "linux_latest", create.ImageID)
			assert.JSONEq(t, `{"project": "demo"}`, create.Labels)
			assert.Contains(t, create.SdkStats, `"sdk_language":"golang"`)
			assert.Empty(t, create.PersistenceDataList)
			return okEnvelope("req-create", map[string]any{
				"SessionId":   "s-100",
				"ResourceUrl": "https://gateway/resource/s-100",
			}), nil
		})

	c := newTestClient(t, caller)
	params := NewCreateSessionParams().
		WithImageID("linux_latest").
		WithLabels(map[string]string{"project": "demo"})

	s, err := c.Create(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, "s-100", s.SessionID())
	assert.Equal(t, "https://gateway/resource/s-100", s.ResourceURL())
	assert.Equal(t, StatusRunning, s.Status())

	cached, ok := c.Session("s-100")
	require.True(t, ok)
	assert.Same(t, s, cached)
}

func TestCreateSessionBrowserContextBinding(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.CreateMcpSessionRequest{})).
		DoAndReturn(func(_ context.Context, req api.Request) (*api.Envelope, error) {
			create := req.(*api.CreateMcpSessionRequest)

			var bindings []map[string]any
			require.NoError(t, json.Unmarshal([]byte(create.PersistenceDataList), &bindings))
			require.Len(t, bindings, 1)
			assert.Equal(t, "ctx-browser", bindings[0]["contextId"])
			assert.Equal(t, browser.DataPath, bindings[0]["path"])

			// The synthetic binding white-lists only the profile state files.
			raw, err := json.Marshal(bindings[0]["policy"])
			require.NoError(t, err)
			for _, path := range browser.ContextWhiteList {
				assert.Contains(t, string(raw), path)
			}
			return okEnvelope("req-create", map[string]any{"SessionId": "s-101"}), nil
		})
	// One binding exists, so creation awaits context readiness.
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.GetContextInfoRequest{})).
		Return(settledStatusEnvelope(t, "req-info"), nil)

	c := newTestClient(t, caller)
	s, err := c.Create(context.Background(), &CreateSessionParams{
		BrowserContext: &BrowserContext{ContextID: "ctx-browser", AutoUpload: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "s-101", s.SessionID())
}

func TestCreateSessionSendsLoginRegion(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.CreateMcpSessionRequest{})).
		DoAndReturn(func(_ context.Context, req api.Request) (*api.Envelope, error) {
			create := req.(*api.CreateMcpSessionRequest)
			assert.Equal(t, "cn-hangzhou", create.LoginRegionID)
			assert.Equal(t, "cn-hangzhou", create.Values().Get("LoginRegionId"))
			return okEnvelope("req-create", map[string]any{"SessionId": "s-region"}), nil
		})

	c, err := New("test-key",
		WithCaller(caller),
		WithTelemetryEndpoint(""),
		WithConfig(&config.Config{RegionID: "cn-hangzhou"}))
	require.NoError(t, err)

	_, err = c.Create(context.Background(), nil)
	require.NoError(t, err)
}

func TestCreateSessionMissingSessionID(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.CreateMcpSessionRequest{})).
		Return(okEnvelope("req-create", map[string]any{"ResourceUrl": "x"}), nil)

	c := newTestClient(t, caller)
	_, err := c.Create(context.Background(), nil)
	require.Error(t, err)

	var remote *agberrors.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "req-create", remote.RequestID)
}

func TestCreateSessionVPCLoadsCatalog(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.CreateMcpSessionRequest{})).
		DoAndReturn(func(_ context.Context, req api.Request) (*api.Envelope, error) {
			create := req.(*api.CreateMcpSessionRequest)
			assert.Contains(t, create.Values().Get("VpcResource"), "true")
			return okEnvelope("req-create", map[string]any{
				"SessionId":          "s-vpc",
				"NetworkInterfaceIp": "10.0.0.8",
				"HttpPort":           "8080",
				"Token":              "tok",
			}), nil
		})
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.ListMcpToolsRequest{})).
		Return(okEnvelope("req-tools",
			`[{"name": "shell", "description": "run commands", "server": "system"}]`), nil)

	c := newTestClient(t, caller)
	s, err := c.Create(context.Background(), &CreateSessionParams{ImageID: "vpc_image", IsVpc: true})
	require.NoError(t, err)
	assert.True(t, s.IsVPC())
	assert.Equal(t, "10.0.0.8", s.NetworkInterfaceIP())

	tool, ok := s.FindTool("shell")
	require.True(t, ok)
	assert.Equal(t, "system", tool.Server)
}

func TestCreateSessionRunsSimulationBootstrap(t *testing.T) {
	t.Setenv("AGENTBAY_BROWSER_BEHAVIOR_SIMULATE", "1")
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.CreateMcpSessionRequest{})).
		DoAndReturn(func(_ context.Context, req api.Request) (*api.Envelope, error) {
			create := req.(*api.CreateMcpSessionRequest)
			assert.Contains(t, create.ExtraConfigs, `"simulate_mode":"All"`)

			// Simulation implies the synthetic mobile-info mount with a
			// server-allocated context.
			var bindings []map[string]any
			require.NoError(t, json.Unmarshal([]byte(create.PersistenceDataList), &bindings))
			require.Len(t, bindings, 1)
			assert.Equal(t, mobile.InfoPath, bindings[0]["path"])
			assert.Empty(t, bindings[0]["contextId"])
			return okEnvelope("req-create", map[string]any{"SessionId": "s-mob"}), nil
		})
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.GetContextInfoRequest{})).
		Return(settledStatusEnvelope(t, "req-info"), nil)
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.CallMcpToolRequest{})).
		DoAndReturn(func(_ context.Context, req api.Request) (*api.Envelope, error) {
			call := req.(*api.CallMcpToolRequest)
			assert.Equal(t, "shell", call.Name)
			assert.Contains(t, call.Args, "agentbay-simulate -all")
			return &api.Envelope{
				RequestID: "req-sim", Success: true, HTTPStatusCode: 200,
				Data: json.RawMessage(`{"content":[{"type":"text","text":"ok"}],"isError":false}`),
			}, nil
		})

	c := newTestClient(t, caller)
	_, err := c.Create(context.Background(), &CreateSessionParams{
		ImageID: "mobile_latest",
		ExtraConfigs: &ExtraConfigs{
			Mobile: &MobileExtraConfig{SimulateMode: "All"},
		},
	})
	require.NoError(t, err)
}

func TestCreateSessionSimulationFailureIsNonFatal(t *testing.T) {
	t.Setenv("AGENTBAY_BROWSER_BEHAVIOR_SIMULATE", "1")
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.CreateMcpSessionRequest{})).
		Return(okEnvelope("req-create", map[string]any{"SessionId": "s-mob2"}), nil)
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.GetContextInfoRequest{})).
		Return(settledStatusEnvelope(t, "req-info"), nil)
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.CallMcpToolRequest{})).
		Return(&api.Envelope{
			RequestID: "req-sim", Success: false,
			Code: "InternalError", Message: "boom", HTTPStatusCode: 500,
		}, nil)

	c := newTestClient(t, caller)
	s, err := c.Create(context.Background(), &CreateSessionParams{
		ExtraConfigs: &ExtraConfigs{
			Mobile: &MobileExtraConfig{SimulateMode: "SensorsOnly"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "s-mob2", s.SessionID())
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.GetSessionRequest{})).
		Return(&api.Envelope{
			RequestID: "req-get", Success: false,
			Code: "InvalidMcpSession.NotFound", Message: "session not found",
			HTTPStatusCode: 400,
		}, nil)

	c := newTestClient(t, caller)
	_, err := c.Get(context.Background(), "s-404")
	require.Error(t, err)
	assert.True(t, agberrors.IsNotFound(err))
}

func TestGetSessionReadOnlyHandle(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.GetSessionRequest{})).
		Return(okEnvelope("req-get", map[string]any{
			"SessionId": "s-200", "Status": "RUNNING", "ResourceUrl": "https://gateway/s-200",
		}), nil)

	c := newTestClient(t, caller)
	s, err := c.Get(context.Background(), "s-200")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, s.Status())

	// Fetched handles are not owned by the client.
	_, ok := c.Session("s-200")
	assert.False(t, ok)
}

func TestListPageWalk(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	first := caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.ListSessionRequest{})).
		DoAndReturn(func(_ context.Context, req api.Request) (*api.Envelope, error) {
			list := req.(*api.ListSessionRequest)
			assert.Empty(t, list.NextToken)
			assert.JSONEq(t, `{"team": "qa"}`, list.Labels)
			return okEnvelope("req-p1", map[string]any{
				"Data":      []map[string]string{{"SessionId": "s-1"}},
				"NextToken": "tok-2",
			}), nil
		})
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.ListSessionRequest{})).
		After(first).
		DoAndReturn(func(_ context.Context, req api.Request) (*api.Envelope, error) {
			list := req.(*api.ListSessionRequest)
			assert.Equal(t, "tok-2", list.NextToken)
			return okEnvelope("req-p2", map[string]any{
				"Data":       []map[string]string{{"SessionId": "s-2"}, {"SessionId": "s-3"}},
				"TotalCount": 3,
			}), nil
		})

	c := newTestClient(t, caller)
	result, err := c.List(context.Background(), map[string]string{"team": "qa"}, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"s-2", "s-3"}, result.SessionIDs)
	assert.Equal(t, 3, result.TotalCount)
}

func TestListPastLastPage(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.ListSessionRequest{})).
		Return(okEnvelope("req-p1", map[string]any{
			"Data": []map[string]string{{"SessionId": "s-1"}},
		}), nil)

	c := newTestClient(t, caller)
	_, err := c.List(context.Background(), nil, 3, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot reach page 3: No more pages available")
}

func TestListRejectsInvalidPage(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	c := newTestClient(t, caller)
	_, err := c.List(context.Background(), nil, 0, 10)
	require.Error(t, err)
	assert.True(t, agberrors.IsValidation(err))
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.CreateMcpSessionRequest{})).
		Return(okEnvelope("req-create", map[string]any{"SessionId": "s-300"}), nil)
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.ReleaseMcpSessionRequest{})).
		Return(&api.Envelope{RequestID: "req-release", Success: true, HTTPStatusCode: 200}, nil)
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.GetSessionRequest{})).
		Return(&api.Envelope{
			RequestID: "req-get", Success: false,
			Code: "InvalidMcpSession.NotFound", HTTPStatusCode: 400,
		}, nil)

	c := newTestClient(t, caller)
	s, err := c.Create(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, c.Delete(context.Background(), s, false))
	assert.Equal(t, StatusFinished, s.Status())

	_, ok := c.Session("s-300")
	assert.False(t, ok)
}

func TestDeleteSessionWithContextSync(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.SyncContextRequest{})).
		Return(&api.Envelope{RequestID: "req-sync", Success: true, HTTPStatusCode: 200}, nil)
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.GetContextInfoRequest{})).
		Return(settledStatusEnvelope(t, "req-info"), nil)
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.ReleaseMcpSessionRequest{})).
		Return(&api.Envelope{RequestID: "req-release", Success: true, HTTPStatusCode: 200}, nil)
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.GetSessionRequest{})).
		Return(okEnvelope("req-get", map[string]any{"Status": "FINISH"}), nil)

	c := newTestClient(t, caller)
	s := newSession(caller, "s-301", nil)
	c.cache(s)

	require.NoError(t, c.Delete(context.Background(), s, true))
}
