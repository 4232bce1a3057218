// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api implements the low-level control plane RPC client.
//
// Every action is one form-encoded POST returning the shared response
// envelope. The client performs no retries; polling and retry policy
// belong to callers that understand which actions are idempotent.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/logger"
	"github.com/agentbay/agentbay-go/pkg/versions"
)

//go:generate mockgen -destination=mocks/mock_caller.go -package=mocks -source=client.go Caller

// Wire protocol constants.
const (
	apiVersion       = "2025-05-06"
	signatureVersion = "v2"

	// maxResponseBytes caps envelope reads; tool outputs ride inside the
	// envelope, so the limit is generous.
	maxResponseBytes = 64 << 20
)

const instrumentationName = "github.com/agentbay/agentbay-go/pkg/api"

// Caller performs one control plane RPC. It is the seam the rest of the
// SDK is tested against.
type Caller interface {
	Do(ctx context.Context, req Request) (*Envelope, error)
}

// Config carries the immutable connection settings of a Client.
type Config struct {
	// Endpoint is the control plane host, with or without a scheme.
	Endpoint string
	// APIKey is the bearer credential attached to every request.
	APIKey string
	// Timeout bounds each call when the caller's context has no deadline.
	Timeout time.Duration
}

// Client is the concrete control plane caller. Safe for concurrent use;
// it holds no mutable state beyond the http.Client's connection pool.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client

	tracer        trace.Tracer
	callsTotal    metric.Int64Counter
	callsDuration metric.Float64Histogram
}

var _ Caller = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Used by tests to
// point the caller at a fake control plane.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a control plane client.
func New(cfg Config, opts ...Option) (*Client, error) {
	meter := otel.Meter(instrumentationName)

	callsTotal, err := meter.Int64Counter(
		"agentbay_api_calls",
		metric.WithDescription("Total number of control plane calls"))
	if err != nil {
		return nil, fmt.Errorf("failed to create calls counter: %w", err)
	}
	callsDuration, err := meter.Float64Histogram(
		"agentbay_api_call_duration",
		metric.WithDescription("Duration of control plane calls in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create call duration histogram: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	c := &Client{
		baseURL: normalizeEndpoint(cfg.Endpoint),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: timeout,
				MaxIdleConnsPerHost:   8,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		tracer:        otel.Tracer(instrumentationName),
		callsTotal:    callsTotal,
		callsDuration: callsDuration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// normalizeEndpoint ensures the endpoint carries a scheme. Bare hosts get
// https; an explicit http scheme is kept for local fakes.
func normalizeEndpoint(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return strings.TrimSuffix(endpoint, "/") + "/"
	}
	return "https://" + strings.TrimSuffix(endpoint, "/") + "/"
}

// Do implements Caller. Network failures and malformed bodies return a
// transport error; non-2xx responses return a RemoteError with whatever
// envelope fields could be parsed; a 2xx envelope is returned as-is even
// when Success=false, for higher-level interpretation.
func (c *Client) Do(ctx context.Context, req Request) (*Envelope, error) {
	action := req.Action()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ctx, span := c.tracer.Start(ctx, "agentbay.api."+action,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.method", action),
			attribute.String("server.address", c.baseURL),
		),
	)
	defer span.End()

	form := req.Values()
	form.Set("Action", action)
	form.Set("Version", apiVersion)
	form.Set("SignatureVersion", signatureVersion)
	form.Set("Authorization", "Bearer "+c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, agberrors.NewTransportError("building "+action+" request", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("User-Agent", "agentbay-go/"+versions.GetVersionInfo().Version)

	logger.Debugw("control plane request",
		"action", action,
		"authorization", MaskAuthorization("Bearer "+c.apiKey))

	metricAttrs := metric.WithAttributes(attribute.String("action", action))
	c.callsTotal.Add(ctx, 1, metricAttrs)
	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.fail(ctx, span, start, metricAttrs, err)
		return nil, agberrors.NewTransportError(action+" request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.fail(ctx, span, start, metricAttrs, err)
		return nil, agberrors.NewTransportError("reading "+action+" response", err)
	}
	c.callsDuration.Record(ctx, time.Since(start).Seconds(), metricAttrs)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		re := &agberrors.RemoteError{HTTPStatusCode: resp.StatusCode}
		var env Envelope
		if json.Unmarshal(raw, &env) == nil {
			re.RequestID = env.RequestID
			re.Code = env.Code
			re.Message = env.Message
		}
		if re.Message == "" {
			re.Message = http.StatusText(resp.StatusCode)
		}
		span.RecordError(re)
		span.SetStatus(codes.Error, re.Error())
		return nil, re
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.fail(ctx, span, time.Now(), metricAttrs, err)
		return nil, agberrors.NewTransportError("malformed "+action+" response envelope", err)
	}
	if env.HTTPStatusCode == 0 {
		env.HTTPStatusCode = resp.StatusCode
	}

	span.SetAttributes(
		attribute.String("agentbay.request_id", env.RequestID),
		attribute.Bool("agentbay.success", env.Success),
	)
	logger.Debugw("control plane response",
		"action", action,
		"request_id", env.RequestID,
		"success", env.Success)

	return &env, nil
}

func (c *Client) fail(ctx context.Context, span trace.Span, start time.Time, attrs metric.MeasurementOption, err error) {
	c.callsDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// MaskAuthorization renders a credential safe for logs. Values of twelve
// runes or more keep the first six and last four; shorter values keep two
// on each side.
func MaskAuthorization(value string) string {
	r := []rune(value)
	switch {
	case len(r) >= 12:
		return string(r[:6]) + "***" + string(r[len(r)-4:])
	case len(r) >= 4:
		return string(r[:2]) + "****" + string(r[len(r)-2:])
	default:
		return "****"
	}
}
