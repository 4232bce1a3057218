// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/logger"
)

// DefaultEndpoint is the STS side channel used when the host does not
// configure one explicitly.
const DefaultEndpoint = "wyota.cn-hangzhou.aliyuncs.com"

// tokenAction is the side channel RPC that mints report credentials.
const tokenAction = "GetTerminalReportToken"

// refreshThrottle prevents token request storms: outside expiry, a new
// token is requested only when the last successful fetch is at least this
// old or no token is cached at all.
const refreshThrottle = 24 * time.Hour

// maxConsecutiveErrors triggers a token refresh even without an explicit
// auth failure.
const maxConsecutiveErrors = 5

// ReportToken is the credential set for the remote log store.
type ReportToken struct {
	AccessKeyID     string `json:"AccessKeyId"`
	AccessKeySecret string `json:"AccessKeySecret"`
	SecurityToken   string `json:"SecurityToken"`
	Endpoint        string `json:"Endpoint"`
	Project         string `json:"Project"`
	Logstore        string `json:"Logstore"`
	ExpireTime      int64  `json:"ExpireTime"`
}

// TokenSource mints report tokens. The production implementation talks to
// the STS side channel; tests substitute their own.
type TokenSource interface {
	Token(ctx context.Context) (*ReportToken, error)
}

// stsClient fetches report tokens from the side channel endpoint.
type stsClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func (c *stsClient) Token(ctx context.Context) (*ReportToken, error) {
	endpoint := c.endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	body := strings.NewReader("Action=" + tokenAction)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, agberrors.NewTransportError("building token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, agberrors.NewTransportError("token request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, agberrors.NewTransportError("reading token response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, agberrors.NewAuthenticationError(
			"token request returned HTTP "+strconv.Itoa(resp.StatusCode), nil)
	}

	var payload struct {
		Data ReportToken `json:"Data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, agberrors.NewTransportError("malformed token response", err)
	}
	if payload.Data.AccessKeyID == "" || payload.Data.Project == "" {
		return nil, agberrors.NewAuthenticationError("token response missing credentials", nil)
	}
	return &payload.Data, nil
}

// deliverer ships event batches to the log store.
type deliverer struct {
	tokens     TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter

	mu          sync.Mutex
	token       *ReportToken
	lastSuccess time.Time
	consecutive int
}

func newDeliverer(cfg Config) *deliverer {
	hc := &http.Client{Timeout: 10 * time.Second}
	return &deliverer{
		tokens:     &stsClient{endpoint: cfg.Endpoint, apiKey: cfg.APIKey, httpClient: hc},
		httpClient: hc,
		limiter:    rate.NewLimiter(100, 200),
	}
}

// send delivers one batch. An auth rejection or a run of consecutive
// failures triggers a throttled token refresh and one retry.
func (d *deliverer) send(ctx context.Context, events []Event) error {
	token, err := d.currentToken(ctx, false)
	if err != nil {
		return err
	}

	err = d.putLogs(ctx, token, events)
	if err == nil {
		d.mu.Lock()
		d.consecutive = 0
		d.mu.Unlock()
		return nil
	}

	d.mu.Lock()
	d.consecutive++
	retry := isAuthFailure(err) || d.consecutive > maxConsecutiveErrors
	d.mu.Unlock()

	if !retry {
		return err
	}
	token, refreshErr := d.currentToken(ctx, true)
	if refreshErr != nil {
		return err
	}
	if retryErr := d.putLogs(ctx, token, events); retryErr != nil {
		return retryErr
	}
	d.mu.Lock()
	d.consecutive = 0
	d.mu.Unlock()
	return nil
}

// currentToken returns the cached token, fetching a fresh one when forced,
// missing, or expiring within five minutes. Forced refreshes stay subject
// to the 24h throttle so a flapping log store cannot hammer the side
// channel. Credentials swap atomically; in-flight sends keep the previous
// token.
func (d *deliverer) currentToken(ctx context.Context, force bool) (*ReportToken, error) {
	d.mu.Lock()
	token := d.token
	lastSuccess := d.lastSuccess
	d.mu.Unlock()

	now := time.Now()
	expired := token != nil && token.ExpireTime > 0 &&
		now.After(time.Unix(token.ExpireTime, 0).Add(-5*time.Minute))

	needsFetch := token == nil || expired
	if force && !needsFetch {
		needsFetch = lastSuccess.IsZero() || now.Sub(lastSuccess) >= refreshThrottle
	}
	if !needsFetch {
		return token, nil
	}

	fresh, err := d.tokens.Token(ctx)
	if err != nil {
		if token != nil {
			logger.Warnf("telemetry token refresh failed, keeping previous credentials: %v", err)
			return token, nil
		}
		return nil, err
	}

	d.mu.Lock()
	d.token = fresh
	d.lastSuccess = now
	d.mu.Unlock()
	return fresh, nil
}

// putLogs posts one batch to the log store track endpoint.
func (d *deliverer) putLogs(ctx context.Context, token *ReportToken, events []Event) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return agberrors.NewTransportError("telemetry rate limiter", err)
	}

	body, err := json.Marshal(logGroup(events))
	if err != nil {
		return agberrors.NewInternalError("encoding telemetry batch", err)
	}

	// A token endpoint with an explicit scheme is used as-is, which lets
	// tests point delivery at a local fake.
	var endpoint string
	if strings.HasPrefix(token.Endpoint, "http://") || strings.HasPrefix(token.Endpoint, "https://") {
		endpoint = fmt.Sprintf("%s/logstores/%s/track", strings.TrimSuffix(token.Endpoint, "/"), token.Logstore)
	} else {
		endpoint = fmt.Sprintf("https://%s.%s/logstores/%s/track", token.Project, token.Endpoint, token.Logstore)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return agberrors.NewTransportError("building telemetry request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-log-apiversion", "0.6.0")
	req.Header.Set("x-log-bodyrawsize", strconv.Itoa(len(body)))
	req.Header.Set("x-acs-access-key-id", token.AccessKeyID)
	req.Header.Set("x-acs-security-token", token.SecurityToken)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return agberrors.NewTransportError("telemetry delivery failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return agberrors.NewAuthenticationError(
			"log store rejected credentials with HTTP "+strconv.Itoa(resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return agberrors.NewTransportError(
			"log store returned HTTP "+strconv.Itoa(resp.StatusCode), nil)
	}
	return nil
}

func isAuthFailure(err error) bool {
	if agberrors.IsAuthentication(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden")
}

// logGroup shapes a batch the way the track endpoint expects it.
func logGroup(events []Event) map[string]any {
	logs := make([]map[string]any, 0, len(events))
	for _, event := range events {
		entry := map[string]any{
			"__time__": event.Timestamp / 1000,
			"uuid":     event.EventID,
			"os":       event.OS,
			"app_name": event.AppName,
			"ts":       strconv.FormatInt(event.Timestamp, 10),
			"sw":       event.SW,
			"owner":    event.Owner,
		}
		if event.SpanID != "" {
			entry["traceId"] = event.TraceID
			entry["spanId"] = event.SpanID
			entry["parentSpanId"] = event.ParentSpanID
			entry["spanName"] = event.SpanName
			entry["is_start"] = strconv.FormatBool(event.IsStart)
		}
		for key, value := range event.Fields {
			entry[key] = value
		}
		logs = append(logs, entry)
	}
	return map[string]any{
		"__topic__": Topic,
		"__logs__":  logs,
	}
}
