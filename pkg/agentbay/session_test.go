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
	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
)

func TestSessionInfoRefreshesResourceURL(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.GetMcpResourceRequest{})).
		Return(okEnvelope("req-info", map[string]any{
			"SessionId":   "s-1",
			"ResourceUrl": "https://gateway/fresh",
			"DesktopInfo": map[string]string{"AppId": "app-1", "Ticket": "tk"},
		}), nil)

	s := newSession(caller, "s-1", nil)
	info, reqID, err := s.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "req-info", reqID)
	assert.Equal(t, "app-1", info.AppID)
	assert.Equal(t, "tk", info.Ticket)
	assert.Equal(t, "https://gateway/fresh", s.ResourceURL())
}

func TestGetLinkPortRange(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	s := newSession(caller, "s-1", nil)

	badPort := int32(8080)
	_, _, err := s.GetLink(context.Background(), "https", &badPort, "")
	require.Error(t, err)
	assert.True(t, agberrors.IsValidation(err))

	goodPort := int32(30150)
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.GetLinkRequest{})).
		DoAndReturn(func(_ context.Context, req api.Request) (*api.Envelope, error) {
			link := req.(*api.GetLinkRequest)
			assert.Equal(t, "30150", link.Values().Get("Port"))
			return okEnvelope("req-link", map[string]string{"Url": "wss://gateway/link"}), nil
		})

	url, reqID, err := s.GetLink(context.Background(), "https", &goodPort, "")
	require.NoError(t, err)
	assert.Equal(t, "wss://gateway/link", url)
	assert.Equal(t, "req-link", reqID)
}

func TestSetLabelsValidation(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	s := newSession(caller, "s-1", nil)

	_, err := s.SetLabels(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, agberrors.IsValidation(err))

	_, err = s.SetLabels(context.Background(), map[string]string{"env": ""})
	require.Error(t, err)
	assert.True(t, agberrors.IsValidation(err))
}

func TestLabelsRoundTrip(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.SetLabelRequest{})).
		DoAndReturn(func(_ context.Context, req api.Request) (*api.Envelope, error) {
			set := req.(*api.SetLabelRequest)
			assert.JSONEq(t, `{"env": "staging"}`, set.Labels)
			return &api.Envelope{RequestID: "req-set", Success: true, HTTPStatusCode: 200}, nil
		})
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.GetLabelRequest{})).
		Return(okEnvelope("req-get", map[string]string{"Labels": `{"env":"staging"}`}), nil)

	s := newSession(caller, "s-1", nil)
	_, err := s.SetLabels(context.Background(), map[string]string{"env": "staging"})
	require.NoError(t, err)

	labels, _, err := s.GetLabels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"env": "staging"}, labels)
}

func TestPauseWaitsForPaused(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.PauseSessionRequest{})).
		Return(&api.Envelope{RequestID: "req-pause", Success: true, HTTPStatusCode: 200}, nil)
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.GetSessionRequest{})).
		Return(okEnvelope("req-get", map[string]any{"Status": "PAUSED"}), nil)

	s := newSession(caller, "s-1", nil)
	reqID, err := s.Pause(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "req-pause", reqID)
	assert.Equal(t, StatusPaused, s.Status())
}

func TestResumeTerminalFailure(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.ResumeSessionRequest{})).
		Return(&api.Envelope{RequestID: "req-resume", Success: true, HTTPStatusCode: 200}, nil)
	caller.EXPECT().
		Do(gomock.Any(), gomock.AssignableToTypeOf(&api.GetSessionRequest{})).
		Return(okEnvelope("req-get", map[string]any{"Status": "ERROR"}), nil)

	s := newSession(caller, "s-1", nil)
	_, err := s.Resume(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal status ERROR")
	assert.Equal(t, StatusError, s.Status())
}

func TestParseToolCatalog(t *testing.T) {
	t.Parallel()

	catalog := `[
		{"name": "shell", "description": "run commands", "server": "system",
		 "inputSchema": {"type": "object"}},
		{"name": "", "server": "ignored"}
	]`

	// Plain array payload.
	parsed := parseToolCatalog(json.RawMessage(catalog))
	require.Len(t, parsed, 1)
	assert.Equal(t, "shell", parsed[0].Name)
	assert.Equal(t, "system", parsed[0].Server)
	assert.JSONEq(t, `{"type": "object"}`, string(parsed[0].InputSchema))

	// The same payload arriving as a JSON string.
	wrapped, err := json.Marshal(catalog)
	require.NoError(t, err)
	parsed = parseToolCatalog(wrapped)
	require.Len(t, parsed, 1)
	assert.Equal(t, "shell", parsed[0].Name)
}

func TestSessionFacadesWired(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	caller := mocks.NewMockCaller(ctrl)

	s := newSession(caller, "s-1", nil)
	assert.NotNil(t, s.FileSystem)
	assert.NotNil(t, s.Command)
	assert.NotNil(t, s.Code)
	assert.NotNil(t, s.Computer)
	assert.NotNil(t, s.Mobile)
	assert.NotNil(t, s.OSS)
	assert.NotNil(t, s.Agent)
	assert.NotNil(t, s.Browser)
	assert.NotNil(t, s.Context)
}
