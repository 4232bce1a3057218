// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/agentbay/agentbay-go/pkg/api"
	"github.com/agentbay/agentbay-go/pkg/api/mocks"
)

type fakeSession struct {
	id    string
	vpc   bool
	ip    string
	port  string
	token string
	tools []Tool
}

func (s *fakeSession) SessionID() string          { return s.id }
func (s *fakeSession) IsVPC() bool                { return s.vpc }
func (s *fakeSession) NetworkInterfaceIP() string { return s.ip }
func (s *fakeSession) HTTPPort() string           { return s.port }
func (s *fakeSession) Token() string              { return s.token }

func (s *fakeSession) FindTool(name string) (Tool, bool) {
	for _, tool := range s.tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return Tool{}, false
}

func TestCallControlPlane(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.CallMcpToolRequest{})).
		DoAndReturn(func(_ context.Context, req api.Request) (*api.Envelope, error) {
			call := req.(*api.CallMcpToolRequest)
			assert.Equal(t, "s-1", call.SessionID)
			assert.Equal(t, "shell", call.Name)

			var args map[string]any
			require.NoError(t, json.Unmarshal([]byte(call.Args), &args))
			assert.Equal(t, "echo hi", args["command"])

			return &api.Envelope{
				RequestID: "req-tool", Success: true, HTTPStatusCode: 200,
				Data: json.RawMessage(`{"content":[{"type":"text","text":"hi\n"}],"isError":false}`),
			}, nil
		})

	d := NewDispatcher(caller, &fakeSession{id: "s-1"})
	result, err := d.Call(context.Background(), "shell", map[string]any{"command": "echo hi"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hi\n", result.Data)
	assert.Equal(t, "req-tool", result.RequestID)
	assert.Empty(t, result.ErrorMessage)
}

func TestCallControlPlaneAutoGenSession(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	first := caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.CallMcpToolRequest{})).
		DoAndReturn(func(_ context.Context, req api.Request) (*api.Envelope, error) {
			call := req.(*api.CallMcpToolRequest)
			assert.False(t, call.AutoGenSession)
			assert.Empty(t, call.Values().Get("AutoGenSession"))
			return &api.Envelope{RequestID: "req-1", Success: true, HTTPStatusCode: 200}, nil
		})
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.CallMcpToolRequest{})).
		After(first).
		DoAndReturn(func(_ context.Context, req api.Request) (*api.Envelope, error) {
			call := req.(*api.CallMcpToolRequest)
			assert.True(t, call.AutoGenSession)
			assert.Equal(t, "true", call.Values().Get("AutoGenSession"))
			return &api.Envelope{RequestID: "req-2", Success: true, HTTPStatusCode: 200}, nil
		})

	d := NewDispatcher(caller, &fakeSession{id: "s-1"})
	_, err := d.Call(context.Background(), "shell", nil)
	require.NoError(t, err)

	_, err = d.Call(context.Background(), "shell", nil, WithAutoGenSession())
	require.NoError(t, err)
}

func TestCallControlPlaneToolError(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().Do(gomock.Any(), gomock.Any()).Return(&api.Envelope{
		RequestID: "req-err", Success: true, HTTPStatusCode: 200,
		Data: json.RawMessage(`{"content":[{"type":"text","text":"command not found"}],"isError":true}`),
	}, nil)

	d := NewDispatcher(caller, &fakeSession{id: "s-1"})
	result, err := d.Call(context.Background(), "shell", map[string]any{"command": "nope"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "command not found", result.ErrorMessage)
	assert.Equal(t, "req-err", result.RequestID)
}

func TestCallControlPlaneBusinessFailure(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().Do(gomock.Any(), gomock.Any()).Return(&api.Envelope{
		RequestID: "req-biz", Success: false,
		Code: "InvalidMcpSession.NotFound", Message: "session not found",
	}, nil)

	d := NewDispatcher(caller, &fakeSession{id: "gone"})
	result, err := d.Call(context.Background(), "shell", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "[InvalidMcpSession.NotFound] session not found", result.ErrorMessage)
	assert.Equal(t, "req-biz", result.RequestID)
}

func TestCallVPCRoutesToInSessionEndpoint(t *testing.T) {
	t.Parallel()

	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/callTool", r.URL.Path)
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"content":[{"type":"text","text":"hi\n"}],"isError":false}}`))
	}))
	t.Cleanup(srv.Close)

	host := strings.TrimPrefix(srv.URL, "http://")
	ip, port, ok := strings.Cut(host, ":")
	require.True(t, ok)

	session := &fakeSession{
		id: "s-vpc", vpc: true, ip: ip, port: port, token: "tok-1",
		tools: []Tool{{Name: "shell", Server: "system-tools"}},
	}

	ctrl := gomock.NewController(t)
	d := NewDispatcher(mocks.NewMockCaller(ctrl), session)

	result, err := d.Call(context.Background(), "shell", map[string]any{"command": "echo hi"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hi\n", result.Data)
	assert.True(t, strings.HasPrefix(result.RequestID, "vpc-"))

	assert.Equal(t, "system-tools", gotQuery.Get("server"))
	assert.Equal(t, "shell", gotQuery.Get("tool"))
	assert.Equal(t, "tok-1", gotQuery.Get("token"))
	assert.Equal(t, result.RequestID, gotQuery.Get("requestId"))

	var args map[string]any
	require.NoError(t, json.Unmarshal([]byte(gotQuery.Get("args")), &args))
	assert.Equal(t, "echo hi", args["command"])
}

func TestCallVPCFailsClosedForUnknownTool(t *testing.T) {
	t.Parallel()

	// Any HTTP request is a test failure: the route must fail closed
	// before touching the network.
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL)
	}))
	t.Cleanup(srv.Close)

	host := strings.TrimPrefix(srv.URL, "http://")
	ip, port, ok := strings.Cut(host, ":")
	require.True(t, ok)

	session := &fakeSession{
		id: "s-vpc", vpc: true, ip: ip, port: port,
		tools: []Tool{{Name: "shell", Server: "system-tools"}},
	}

	ctrl := gomock.NewController(t)
	d := NewDispatcher(mocks.NewMockCaller(ctrl), session)

	result, err := d.Call(context.Background(), "made_up", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, strings.HasPrefix(result.ErrorMessage, "server not found for tool: made_up"))
	assert.Empty(t, result.RequestID)
}

func TestCallVPCRequiresNetworkFields(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	d := NewDispatcher(mocks.NewMockCaller(ctrl), &fakeSession{id: "s-vpc", vpc: true})

	result, err := d.Call(context.Background(), "shell", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "network interface IP or HTTP port")
}

func TestNewVPCRequestID(t *testing.T) {
	t.Parallel()

	id := NewVPCRequestID()
	parts := strings.SplitN(id, "-", 3)
	require.Len(t, parts, 3)
	assert.Equal(t, "vpc", parts[0])
	assert.Len(t, parts[2], 9)
	assert.NotEqual(t, id, NewVPCRequestID())
}
