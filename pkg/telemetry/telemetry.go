// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry forwards SDK usage events to the remote log store.
//
// Events flow through a bounded in-memory queue and are delivered with
// short-lived STS credentials fetched from a side channel. Delivery is
// strictly best-effort: a full queue drops the oldest events, a busy lock
// drops the newest, and no delivery failure ever propagates into an SDK
// operation.
package telemetry

import (
	"context"
	"encoding/json"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentbay/agentbay-go/pkg/logger"
	"github.com/agentbay/agentbay-go/pkg/versions"
)

// Queue and delivery limits.
const (
	// QueueCapacity bounds the pending queue; the oldest event is dropped
	// when a new one arrives at capacity.
	QueueCapacity = 100

	// lockBudget bounds how long an enqueue waits for the queue lock
	// before dropping the event instead of blocking the caller.
	lockBudget = 2 * time.Second

	// maxFieldBytes truncates oversized field values.
	maxFieldBytes = 8 << 10
)

// Topic tags every delivered log group.
const Topic = "golang_sdk_trace"

// Event is one telemetry record.
type Event struct {
	EventID   string
	Timestamp int64 // milliseconds
	OS        string
	AppName   string
	SW        string
	Owner     string

	// Trace correlation, set only for trace events.
	TraceID      string
	SpanID       string
	ParentSpanID string
	SpanName     string
	IsStart      bool

	Fields map[string]string
}

// Config enables the pipeline. A zero Endpoint leaves the pipeline as a
// no-op sink.
type Config struct {
	// Endpoint is the STS side channel host.
	Endpoint string
	// APIKey authenticates the token request.
	APIKey string
	// AppName identifies the embedding application.
	AppName string
}

// Pipeline queues and delivers telemetry events. The zero value is a
// usable no-op sink.
type Pipeline struct {
	appName string

	queue    *boundedQueue
	spans    *spanState
	delivery *deliverer
}

// New creates a telemetry pipeline. When cfg.Endpoint is empty every send
// is a silent no-op.
func New(cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		appName: cfg.AppName,
		queue:   newBoundedQueue(QueueCapacity, lockBudget),
		spans:   newSpanState(),
	}
	if cfg.Endpoint != "" {
		p.delivery = newDeliverer(cfg)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithTokenSource replaces the STS side channel. Used by tests.
func WithTokenSource(source TokenSource) Option {
	return func(p *Pipeline) {
		if p.delivery != nil {
			p.delivery.tokens = source
		}
	}
}

// Enabled reports whether the pipeline delivers anywhere.
func (p *Pipeline) Enabled() bool {
	return p != nil && p.delivery != nil
}

// SendTrack enqueues a tracking event.
func (p *Pipeline) SendTrack(ctx context.Context, owner string, fields map[string]any) {
	if !p.Enabled() {
		return
	}
	p.dispatch(ctx, p.newEvent(owner, fields))
}

// SendTrace enqueues a trace event, chaining span ids per (bizIndex,
// extra) key: the first event of a chain becomes its own parent, and each
// event's span id becomes the parent of the next. IsStart resets the
// chain.
func (p *Pipeline) SendTrace(ctx context.Context, owner string, fields map[string]any, spanName, bizIndex, extra string, isStart bool) {
	if !p.Enabled() {
		return
	}
	event := p.newEvent(owner, fields)
	event.SpanName = spanName
	event.IsStart = isStart
	event.TraceID, event.SpanID, event.ParentSpanID = p.spans.next(bizIndex, extra, isStart)
	p.dispatch(ctx, event)
}

// Flush synchronously delivers everything pending.
func (p *Pipeline) Flush(ctx context.Context) {
	if !p.Enabled() {
		return
	}
	p.drain(ctx)
}

// Shutdown flushes and drops the remaining state.
func (p *Pipeline) Shutdown(ctx context.Context) {
	p.Flush(ctx)
}

// PendingLen reports the queue depth. Diagnostics only.
func (p *Pipeline) PendingLen() int {
	if p == nil {
		return 0
	}
	return p.queue.len()
}

func (p *Pipeline) newEvent(owner string, fields map[string]any) Event {
	return Event{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		OS:        runtime.GOOS,
		AppName:   p.appName,
		SW:        versions.GetVersionInfo().Version,
		Owner:     owner,
		Fields:    encodeFields(fields),
	}
}

// dispatch attempts an immediate send; failures park the event in the
// bounded queue for a later drain.
func (p *Pipeline) dispatch(ctx context.Context, event Event) {
	if err := p.delivery.send(ctx, []Event{event}); err != nil {
		logger.Debugf("telemetry send failed, queueing event: %v", err)
		p.queue.push(event)
		return
	}
	p.drain(ctx)
}

// drain snapshots the queue under the lock and delivers outside it.
func (p *Pipeline) drain(ctx context.Context) {
	pending := p.queue.snapshot()
	if len(pending) == 0 {
		return
	}
	if err := p.delivery.send(ctx, pending); err != nil {
		logger.Debugf("telemetry drain failed, requeueing %d events: %v", len(pending), err)
		for _, event := range pending {
			p.queue.push(event)
		}
	}
}

// encodeFields stringifies field values: strings pass through, everything
// else is JSON-encoded. Values are truncated to 8 KiB.
func encodeFields(fields map[string]any) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for key, value := range fields {
		var encoded string
		if s, ok := value.(string); ok {
			encoded = s
		} else if raw, err := json.Marshal(value); err == nil {
			encoded = string(raw)
		} else {
			encoded = "<unencodable>"
		}
		if len(encoded) > maxFieldBytes {
			encoded = encoded[:maxFieldBytes]
		}
		out[key] = encoded
	}
	return out
}

// newTraceID returns a 128-bit hex trace id.
func newTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// newSpanID returns a 64-bit hex span id.
func newSpanID() string {
	return newTraceID()[:16]
}
