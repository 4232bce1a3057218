// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package contexts

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/agentbay/agentbay-go/pkg/api"
	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/logger"
)

// Sync polling defaults. Session creation uses the longer interval because
// freshly provisioned mounts settle more slowly.
const (
	DefaultSyncRetries        = 150
	DefaultSyncInterval       = 1500 * time.Millisecond
	DefaultCreateSyncInterval = 2 * time.Second
)

// SyncModeUpload is the sync mode sent when the caller did not pick one.
const SyncModeUpload = "upload"

// SyncResult is the outcome of one sync wait. Failed tasks are reported,
// not raised: a sync that settles with failures still returns nil error.
type SyncResult struct {
	RequestID string
	Success   bool
	Failed    []StatusItem
}

// InfoParams narrow an Info query to one mount or task type.
type InfoParams struct {
	ContextID string
	Path      string
	TaskType  string
}

// SyncOption tunes one Sync or Await call.
type SyncOption func(*syncSettings)

type syncSettings struct {
	params     InfoParams
	mode       string
	maxRetries int
	interval   time.Duration
	trigger    bool
}

// WithContextID narrows the sync to one context.
func WithContextID(id string) SyncOption {
	return func(s *syncSettings) { s.params.ContextID = id }
}

// WithPath narrows the sync to one mount path.
func WithPath(path string) SyncOption {
	return func(s *syncSettings) { s.params.Path = path }
}

// WithMode overrides the sync mode sent to SyncContext.
func WithMode(mode string) SyncOption {
	return func(s *syncSettings) { s.mode = mode }
}

// WithMaxRetries overrides the polling attempt budget.
func WithMaxRetries(n int) SyncOption {
	return func(s *syncSettings) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithInterval overrides the polling interval.
func WithInterval(d time.Duration) SyncOption {
	return func(s *syncSettings) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Manager tracks context sync state for the mounts of one session.
type Manager struct {
	caller    api.Caller
	sessionID string
}

// NewManager creates a sync manager bound to one session.
func NewManager(caller api.Caller, sessionID string) *Manager {
	return &Manager{caller: caller, sessionID: sessionID}
}

// Info returns the sync task status of every mount of the session.
func (m *Manager) Info(ctx context.Context) ([]StatusItem, string, error) {
	return m.InfoWithParams(ctx, InfoParams{})
}

// InfoWithParams returns sync task status narrowed by params. The payload
// arrives doubly encoded; see parseContextStatus.
func (m *Manager) InfoWithParams(ctx context.Context, params InfoParams) ([]StatusItem, string, error) {
	env, err := m.caller.Do(ctx, &api.GetContextInfoRequest{
		SessionID: m.sessionID,
		ContextID: params.ContextID,
		Path:      params.Path,
		TaskType:  params.TaskType,
	})
	if err != nil {
		return nil, requestID(err), err
	}
	if !env.Success {
		return nil, env.RequestID, &agberrors.RemoteError{
			RequestID:      env.RequestID,
			Code:           env.Code,
			Message:        env.Message,
			HTTPStatusCode: env.HTTPStatusCode,
		}
	}

	var data api.GetContextInfoData
	if err := env.DecodeData(&data); err != nil {
		return nil, env.RequestID, agberrors.NewTransportError("decoding GetContextInfo data", err)
	}
	items, err := parseContextStatus(data.ContextStatus)
	if err != nil {
		return nil, env.RequestID, agberrors.NewTransportError("parsing context status", err)
	}
	return items, env.RequestID, nil
}

// Sync triggers a server-side sync task and waits for every upload and
// download item to reach a terminal status. Items that settle as Failed
// make the result unsuccessful but do not produce an error; a poll budget
// exhausted before settling does.
func (m *Manager) Sync(ctx context.Context, opts ...SyncOption) (*SyncResult, error) {
	settings := &syncSettings{
		mode:       SyncModeUpload,
		maxRetries: DefaultSyncRetries,
		interval:   DefaultSyncInterval,
		trigger:    true,
	}
	for _, opt := range opts {
		opt(settings)
	}
	return m.run(ctx, settings)
}

// SyncAsync runs Sync on its own goroutine and delivers the outcome to
// callback. The callback runs exactly once.
func (m *Manager) SyncAsync(ctx context.Context, callback func(*SyncResult, error), opts ...SyncOption) {
	go func() {
		result, err := m.Sync(ctx, opts...)
		if callback != nil {
			callback(result, err)
		}
	}()
}

// Await waits for the session's pending sync tasks to settle without
// triggering a new one. Session creation uses it to wait out the initial
// download of freshly mounted contexts.
func (m *Manager) Await(ctx context.Context, opts ...SyncOption) (*SyncResult, error) {
	settings := &syncSettings{
		maxRetries: DefaultSyncRetries,
		interval:   DefaultCreateSyncInterval,
	}
	for _, opt := range opts {
		opt(settings)
	}
	return m.run(ctx, settings)
}

var errSyncPending = agberrors.NewTimeoutError("context sync still in progress", nil)

func (m *Manager) run(ctx context.Context, settings *syncSettings) (*SyncResult, error) {
	result := &SyncResult{}

	if settings.trigger {
		env, err := m.caller.Do(ctx, &api.SyncContextRequest{
			SessionID: m.sessionID,
			ContextID: settings.params.ContextID,
			Path:      settings.params.Path,
			Mode:      settings.mode,
		})
		if err != nil {
			result.RequestID = requestID(err)
			return result, err
		}
		result.RequestID = env.RequestID
		if !env.Success {
			return result, &agberrors.RemoteError{
				RequestID:      env.RequestID,
				Code:           env.Code,
				Message:        env.Message,
				HTTPStatusCode: env.HTTPStatusCode,
			}
		}
	}

	failed, err := backoff.Retry(ctx, func() ([]StatusItem, error) {
		items, reqID, pollErr := m.InfoWithParams(ctx, settings.params)
		if reqID != "" {
			result.RequestID = reqID
		}
		if pollErr != nil {
			// Transient poll failures consume attempts but do not abort;
			// the mount may still be coming up.
			logger.Warnf("context info poll for session %s failed: %v", m.sessionID, pollErr)
			return nil, pollErr
		}
		settled, failedItems := syncSettled(items)
		if !settled {
			return nil, errSyncPending
		}
		return failedItems, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(settings.interval)),
		backoff.WithMaxTries(uint(settings.maxRetries)), // #nosec G115 -- retry budgets are small positive ints
	)
	if err != nil {
		if errors.Is(err, errSyncPending) {
			return result, agberrors.NewTimeoutError(
				"context sync did not settle within the polling budget", err)
		}
		return result, err
	}

	result.Success = len(failed) == 0
	result.Failed = failed
	if !result.Success {
		for _, item := range failed {
			logger.Warnf("context %s path %s: %s task failed: %s",
				item.ContextID, item.Path, item.TaskType, item.ErrorMessage)
		}
	}
	return result, nil
}
