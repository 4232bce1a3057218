// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package testkit provides an in-memory fake of the AgentBay control
// plane for integration-style tests.
//
// The fake speaks the real wire protocol: form-encoded POSTs dispatched
// on the Action field, answered with the shared response envelope. Tests
// point an api.Client at ControlPlane.URL() and drive the SDK end to end
// without a network. Default handlers implement plausible in-memory
// semantics for sessions, contexts, and tool calls; individual actions
// can be overridden per test, and session statuses can follow a script
// so polling paths are exercisable without sleeping through real
// transitions.
package testkit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Response is what a handler produces; it is marshaled into the wire
// envelope. A zero Response is a bare success.
type Response struct {
	Success        bool
	Code           string
	Message        string
	HTTPStatusCode int
	Data           any
}

// OK wraps a data payload in a successful response.
func OK(data any) Response {
	return Response{Success: true, Data: data}
}

// Fail builds an unsuccessful response with the given code and message.
func Fail(httpStatus int, code, message string) Response {
	return Response{Code: code, Message: message, HTTPStatusCode: httpStatus}
}

// HandlerFunc handles one control plane action.
type HandlerFunc func(form url.Values) Response

// ToolFunc handles one tool invocation. Returning isError marks the MCP
// result as failed with text as the error message.
type ToolFunc func(args string) (text string, isError bool)

// SessionRecord is the fake's view of one session.
type SessionRecord struct {
	ID          string
	Status      string
	ImageID     string
	Labels      string
	ResourceURL string
	Released    bool
}

// ContextRecord is the fake's view of one context volume.
type ContextRecord struct {
	ID    string
	Name  string
	State string
}

// ControlPlane is the fake server. Safe for concurrent use.
type ControlPlane struct {
	server *httptest.Server

	mu            sync.Mutex
	sessions      map[string]*SessionRecord
	contexts      map[string]*ContextRecord
	tools         map[string]ToolFunc
	overrides     map[string]HandlerFunc
	statusScripts map[string][]string
	stateScripts  map[string][]string
	nextID        int
	requests      []string
}

// Option configures the fake before it starts serving.
type Option func(*ControlPlane)

// WithSession seeds a session record.
func WithSession(record SessionRecord) Option {
	return func(cp *ControlPlane) {
		cp.sessions[record.ID] = &record
	}
}

// WithContext seeds a context record.
func WithContext(record ContextRecord) Option {
	return func(cp *ControlPlane) {
		cp.contexts[record.ID] = &record
	}
}

// WithTool registers a tool reachable through CallMcpTool.
func WithTool(name string, fn ToolFunc) Option {
	return func(cp *ControlPlane) {
		cp.tools[name] = fn
	}
}

// WithHandler overrides the handler for one action.
func WithHandler(action string, fn HandlerFunc) Option {
	return func(cp *ControlPlane) {
		cp.overrides[action] = fn
	}
}

// WithStatusScript makes successive GetSession calls for the session
// report the given statuses in order, sticking on the last one.
func WithStatusScript(sessionID string, statuses ...string) Option {
	return func(cp *ControlPlane) {
		cp.statusScripts[sessionID] = statuses
	}
}

// WithStateScript makes successive GetContext calls for the context
// report the given states in order, sticking on the last one.
func WithStateScript(contextID string, states ...string) Option {
	return func(cp *ControlPlane) {
		cp.stateScripts[contextID] = states
	}
}

// NewControlPlane starts the fake. Callers own the shutdown via Close.
func NewControlPlane(opts ...Option) *ControlPlane {
	cp := &ControlPlane{
		sessions:      make(map[string]*SessionRecord),
		contexts:      make(map[string]*ContextRecord),
		tools:         make(map[string]ToolFunc),
		overrides:     make(map[string]HandlerFunc),
		statusScripts: make(map[string][]string),
		stateScripts:  make(map[string][]string),
	}
	for _, opt := range opts {
		opt(cp)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/", cp.dispatch)
	cp.server = httptest.NewServer(r)
	return cp
}

// URL returns the endpoint to point an api.Client at.
func (cp *ControlPlane) URL() string { return cp.server.URL }

// Close shuts the fake down.
func (cp *ControlPlane) Close() { cp.server.Close() }

// Requests returns the actions received, in order.
func (cp *ControlPlane) Requests() []string {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	out := make([]string, len(cp.requests))
	copy(out, cp.requests)
	return out
}

// Session returns the current record for id.
func (cp *ControlPlane) Session(id string) (SessionRecord, bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	record, ok := cp.sessions[id]
	if !ok {
		return SessionRecord{}, false
	}
	return *record, true
}

func (cp *ControlPlane) dispatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}
	action := r.PostForm.Get("Action")

	cp.mu.Lock()
	cp.requests = append(cp.requests, action)
	cp.nextID++
	requestID := fmt.Sprintf("req-fake-%04d", cp.nextID)
	override := cp.overrides[action]
	cp.mu.Unlock()

	var resp Response
	if override != nil {
		resp = override(r.PostForm)
	} else {
		resp = cp.handle(action, r.PostForm)
	}
	writeEnvelope(w, requestID, resp)
}

func writeEnvelope(w http.ResponseWriter, requestID string, resp Response) {
	status := resp.HTTPStatusCode
	if status == 0 {
		status = http.StatusOK
	}

	envelope := map[string]any{
		"RequestId":      requestID,
		"Success":        resp.Success,
		"HttpStatusCode": status,
	}
	if resp.Code != "" {
		envelope["Code"] = resp.Code
	}
	if resp.Message != "" {
		envelope["Message"] = resp.Message
	}
	if resp.Data != nil {
		raw, err := json.Marshal(resp.Data)
		if err != nil {
			http.Error(w, "unmarshalable handler data", http.StatusInternalServerError)
			return
		}
		envelope["Data"] = json.RawMessage(raw)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope)
}

// handle implements the default in-memory semantics.
func (cp *ControlPlane) handle(action string, form url.Values) Response {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	switch action {
	case "CreateMcpSession":
		return cp.createSession(form)
	case "GetSession":
		return cp.getSession(form)
	case "ReleaseMcpSession":
		return cp.releaseSession(form)
	case "ListSession":
		return cp.listSessions(form)
	case "PauseSessionAsync", "ResumeSessionAsync":
		return Response{Success: true}
	case "GetLabel":
		return cp.getLabel(form)
	case "SetLabel":
		return cp.setLabel(form)
	case "CallMcpTool":
		return cp.callTool(form)
	case "GetContext":
		return cp.getContext(form)
	case "ClearContext":
		return Response{Success: true}
	case "SyncContext":
		return OK(map[string]bool{"Success": true})
	case "GetContextInfo":
		return OK(map[string]string{"ContextStatus": settledContextStatus()})
	default:
		return Fail(http.StatusBadRequest, "InvalidAction.NotFound",
			"unhandled action "+action+": register a handler with WithHandler")
	}
}

func (cp *ControlPlane) createSession(form url.Values) Response {
	id := fmt.Sprintf("s-fake-%03d", len(cp.sessions)+1)
	cp.sessions[id] = &SessionRecord{
		ID:          id,
		Status:      "RUNNING",
		ImageID:     form.Get("ImageId"),
		Labels:      form.Get("Labels"),
		ResourceURL: "https://fake-gateway/" + id,
	}
	return OK(map[string]string{
		"SessionId":   id,
		"ResourceUrl": "https://fake-gateway/" + id,
	})
}

func (cp *ControlPlane) getSession(form url.Values) Response {
	id := form.Get("SessionId")
	record, ok := cp.sessions[id]
	if !ok || record.Released {
		return Fail(http.StatusBadRequest, "InvalidMcpSession.NotFound", "session not found")
	}

	status := record.Status
	if script := cp.statusScripts[id]; len(script) > 0 {
		status = script[0]
		if len(script) > 1 {
			cp.statusScripts[id] = script[1:]
		}
		record.Status = status
	}
	return OK(map[string]any{
		"SessionId":   id,
		"Status":      status,
		"ResourceUrl": record.ResourceURL,
	})
}

func (cp *ControlPlane) releaseSession(form url.Values) Response {
	id := form.Get("SessionId")
	record, ok := cp.sessions[id]
	if !ok {
		return Fail(http.StatusBadRequest, "InvalidMcpSession.NotFound", "session not found")
	}
	record.Released = true
	record.Status = "FINISH"
	return Response{Success: true}
}

func (cp *ControlPlane) listSessions(form url.Values) Response {
	pageSize := 100
	if raw := form.Get("MaxResults"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			pageSize = n
		}
	}

	var ids []string
	for id, record := range cp.sessions {
		if !record.Released {
			ids = append(ids, id)
		}
	}

	start := 0
	if token := form.Get("NextToken"); token != "" {
		if n, err := strconv.Atoi(token); err == nil {
			start = n
		}
	}
	end := start + pageSize
	if end > len(ids) {
		end = len(ids)
	}

	items := make([]map[string]string, 0, end-start)
	for _, id := range ids[start:end] {
		items = append(items, map[string]string{
			"SessionId": id,
			"Status":    cp.sessions[id].Status,
		})
	}
	next := ""
	if end < len(ids) {
		next = strconv.Itoa(end)
	}
	return OK(map[string]any{
		"Data":       items,
		"NextToken":  next,
		"MaxResults": pageSize,
		"TotalCount": len(ids),
	})
}

func (cp *ControlPlane) getLabel(form url.Values) Response {
	record, ok := cp.sessions[form.Get("SessionId")]
	if !ok {
		return Fail(http.StatusBadRequest, "InvalidMcpSession.NotFound", "session not found")
	}
	return OK(map[string]string{"Labels": record.Labels})
}

func (cp *ControlPlane) setLabel(form url.Values) Response {
	record, ok := cp.sessions[form.Get("SessionId")]
	if !ok {
		return Fail(http.StatusBadRequest, "InvalidMcpSession.NotFound", "session not found")
	}
	record.Labels = form.Get("Labels")
	return Response{Success: true}
}

func (cp *ControlPlane) callTool(form url.Values) Response {
	name := form.Get("Name")
	fn, ok := cp.tools[name]
	if !ok {
		return Fail(http.StatusBadRequest, "InvalidTool.NotFound", "tool not found: "+name)
	}

	text, isError := fn(form.Get("Args"))
	return OK(map[string]any{
		"content": []map[string]string{{"type": "text", "text": text}},
		"isError": isError,
	})
}

func (cp *ControlPlane) getContext(form url.Values) Response {
	id := form.Get("ContextId")
	name := form.Get("Name")

	var record *ContextRecord
	if id != "" {
		record = cp.contexts[id]
	} else {
		for _, candidate := range cp.contexts {
			if candidate.Name == name {
				record = candidate
				break
			}
		}
	}
	if record == nil {
		if form.Get("AllowCreate") != "true" {
			return OK(map[string]string{})
		}
		record = &ContextRecord{
			ID:    fmt.Sprintf("ctx-fake-%03d", len(cp.contexts)+1),
			Name:  name,
			State: "available",
		}
		cp.contexts[record.ID] = record
	}

	state := record.State
	if script := cp.stateScripts[record.ID]; len(script) > 0 {
		state = script[0]
		if len(script) > 1 {
			cp.stateScripts[record.ID] = script[1:]
		}
		record.State = state
	}
	return OK(map[string]string{
		"Id":    record.ID,
		"Name":  record.Name,
		"State": state,
	})
}

// settledContextStatus renders the doubly-encoded ContextStatus payload
// with every sync task already succeeded.
func settledContextStatus() string {
	inner, _ := json.Marshal([]map[string]any{{
		"contextId": "ctx-fake-001",
		"path":      "/mnt/data",
		"status":    "Success",
		"taskType":  "download",
	}})
	outer, _ := json.Marshal([]map[string]string{{"type": "data", "data": string(inner)}})
	return string(outer)
}
