// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package testkit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// VPCCall is one recorded invocation of the fake VPC endpoint.
type VPCCall struct {
	Server    string
	Tool      string
	Args      string
	Token     string
	RequestID string
}

// VPCServer fakes the in-session tool endpoint of a VPC session. It
// enforces the callTool query contract: every request must carry server,
// tool, token, and a vpc- prefixed request id.
type VPCServer struct {
	server *httptest.Server
	tools  map[string]ToolFunc

	mu    sync.Mutex
	calls []VPCCall
}

// NewVPCServer starts the fake VPC endpoint.
func NewVPCServer(tools map[string]ToolFunc) *VPCServer {
	vs := &VPCServer{tools: tools}

	r := chi.NewRouter()
	r.Get("/callTool", vs.handle)
	vs.server = httptest.NewServer(r)
	return vs
}

// Close shuts the fake down.
func (vs *VPCServer) Close() { vs.server.Close() }

// Host returns the ip:port the fake listens on, split for session wiring.
func (vs *VPCServer) Host() (ip, port string) {
	addr := strings.TrimPrefix(vs.server.URL, "http://")
	host, p, _ := strings.Cut(addr, ":")
	return host, p
}

// Calls returns the recorded invocations, in order.
func (vs *VPCServer) Calls() []VPCCall {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	out := make([]VPCCall, len(vs.calls))
	copy(out, vs.calls)
	return out
}

func (vs *VPCServer) handle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	call := VPCCall{
		Server:    query.Get("server"),
		Tool:      query.Get("tool"),
		Args:      query.Get("args"),
		Token:     query.Get("token"),
		RequestID: query.Get("requestId"),
	}

	if msg := validateCall(query); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	vs.mu.Lock()
	vs.calls = append(vs.calls, call)
	vs.mu.Unlock()

	fn, ok := vs.tools[call.Tool]
	if !ok {
		http.Error(w, "unknown tool: "+call.Tool, http.StatusNotFound)
		return
	}
	text, isError := fn(call.Args)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{
			"content": []map[string]string{{"type": "text", "text": text}},
			"isError": isError,
		},
	})
}

func validateCall(query url.Values) string {
	switch {
	case query.Get("server") == "":
		return "missing server parameter"
	case query.Get("tool") == "":
		return "missing tool parameter"
	case query.Get("token") == "":
		return "missing token parameter"
	case !strings.HasPrefix(query.Get("requestId"), "vpc-"):
		return "requestId must carry the vpc- prefix"
	}
	return ""
}
