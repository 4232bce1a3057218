// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package contexts manages named persistent volumes and their sync
// policies.
//
// A Context lives on the server independently of any session; sessions
// mount it through a ContextSync binding declared at creation time. The
// Service covers client-scoped CRUD and file operations; the Manager
// covers sync status of the mounts of one session.
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

// Context is one persistent volume as reported by the control plane.
type Context struct {
	ID         string
	Name       string
	State      string
	CreatedAt  string
	LastUsedAt string
	OSType     string
}

// GetParams selects a context by name or id. Exactly the combinations the
// control plane accepts: a name (optionally created when absent), or an
// explicit id.
type GetParams struct {
	Name        string
	ContextID   string
	AllowCreate bool
}

// ListParams drives server-side pagination of List.
type ListParams struct {
	MaxResults int
	NextToken  string
}

// ListResult is one page of contexts plus the pagination cursor.
type ListResult struct {
	RequestID  string
	Contexts   []*Context
	NextToken  string
	MaxResults int
	TotalCount int
}

// FileListResult is one page of files under a parent folder.
type FileListResult struct {
	RequestID string
	Entries   []api.ContextFileEntry
	Count     int
}

// FileURLResult is a presigned URL for bulk payload I/O. The control plane
// never streams file bytes itself.
type FileURLResult struct {
	RequestID  string
	URL        string
	ExpireTime int64
}

// Clear polling defaults.
const (
	DefaultClearTimeout  = 60 * time.Second
	DefaultClearInterval = 2 * time.Second
)

// Service performs client-scoped context operations.
type Service struct {
	caller api.Caller
}

// NewService creates a context service on top of a control plane caller.
func NewService(caller api.Caller) *Service {
	return &Service{caller: caller}
}

func contextFromData(d *api.ContextData) *Context {
	return &Context{
		ID:         d.ID,
		Name:       d.Name,
		State:      d.State,
		CreatedAt:  d.CreateTime,
		LastUsedAt: d.LastUsedTime,
		OSType:     d.OsType,
	}
}

// do runs one RPC and folds a Success=false envelope into a remote error,
// so every service method deals with exactly one error path.
func (s *Service) do(ctx context.Context, req api.Request) (*api.Envelope, error) {
	env, err := s.caller.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, &agberrors.RemoteError{
			RequestID:      env.RequestID,
			Code:           env.Code,
			Message:        env.Message,
			HTTPStatusCode: env.HTTPStatusCode,
		}
	}
	return env, nil
}

// Get looks a context up by name or id. With AllowCreate, a missing name
// is created server-side. Validation failures carry no request id because
// no RPC was issued.
func (s *Service) Get(ctx context.Context, params GetParams) (*Context, string, error) {
	if params.Name == "" && params.ContextID == "" {
		return nil, "", agberrors.NewValidationError("either name or context id is required", nil)
	}
	if params.ContextID != "" && params.AllowCreate {
		return nil, "", agberrors.NewValidationError("allow create cannot be combined with an explicit context id", nil)
	}

	env, err := s.do(ctx, &api.GetContextRequest{
		Name:        params.Name,
		ContextID:   params.ContextID,
		AllowCreate: params.AllowCreate,
	})
	if err != nil {
		return nil, requestID(err), err
	}

	var data api.ContextData
	if err := env.DecodeData(&data); err != nil {
		return nil, env.RequestID, agberrors.NewTransportError("decoding GetContext data", err)
	}
	if data.ID == "" {
		return nil, env.RequestID, agberrors.NewNotFoundError("context not found: "+params.Name+params.ContextID, nil)
	}
	return contextFromData(&data), env.RequestID, nil
}

// Create makes a new named context, returning the existing one when the
// name is already taken.
func (s *Service) Create(ctx context.Context, name string) (*Context, string, error) {
	return s.Get(ctx, GetParams{Name: name, AllowCreate: true})
}

// List returns one page of contexts.
func (s *Service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	env, err := s.do(ctx, &api.ListContextsRequest{
		MaxResults: params.MaxResults,
		NextToken:  params.NextToken,
	})
	if err != nil {
		return nil, err
	}

	var data api.ListContextsData
	if err := env.DecodeData(&data); err != nil {
		return nil, agberrors.NewTransportError("decoding ListContexts data", err)
	}

	result := &ListResult{
		RequestID:  env.RequestID,
		NextToken:  data.NextToken,
		MaxResults: data.MaxResults,
		TotalCount: data.TotalCount,
	}
	for i := range data.Data {
		result.Contexts = append(result.Contexts, contextFromData(&data.Data[i]))
	}
	return result, nil
}

// Update renames a context.
func (s *Service) Update(ctx context.Context, c *Context) (string, error) {
	if c == nil || c.ID == "" {
		return "", agberrors.NewValidationError("context id is required", nil)
	}
	env, err := s.do(ctx, &api.ModifyContextRequest{ContextID: c.ID, Name: c.Name})
	if err != nil {
		return requestID(err), err
	}
	return env.RequestID, nil
}

// Delete removes a context and all its data.
func (s *Service) Delete(ctx context.Context, c *Context) (string, error) {
	if c == nil || c.ID == "" {
		return "", agberrors.NewValidationError("context id is required", nil)
	}
	env, err := s.do(ctx, &api.DeleteContextRequest{ContextID: c.ID})
	if err != nil {
		return requestID(err), err
	}
	return env.RequestID, nil
}

// ListFiles returns one page of files under parentPath.
func (s *Service) ListFiles(ctx context.Context, contextID, parentPath string, pageNumber, pageSize int) (*FileListResult, error) {
	if contextID == "" {
		return nil, agberrors.NewValidationError("context id is required", nil)
	}
	env, err := s.do(ctx, &api.DescribeContextFilesRequest{
		ContextID:  contextID,
		ParentPath: parentPath,
		PageNumber: pageNumber,
		PageSize:   pageSize,
	})
	if err != nil {
		return nil, err
	}

	var data api.DescribeContextFilesData
	if err := env.DecodeData(&data); err != nil {
		return nil, agberrors.NewTransportError("decoding DescribeContextFiles data", err)
	}
	return &FileListResult{RequestID: env.RequestID, Entries: data.Entries, Count: data.Count}, nil
}

// GetFileUploadURL returns a presigned URL for writing filePath.
func (s *Service) GetFileUploadURL(ctx context.Context, contextID, filePath string) (*FileURLResult, error) {
	return s.fileURL(ctx, &api.GetContextFileUploadUrlRequest{ContextID: contextID, FilePath: filePath})
}

// GetFileDownloadURL returns a presigned URL for reading filePath.
func (s *Service) GetFileDownloadURL(ctx context.Context, contextID, filePath string) (*FileURLResult, error) {
	return s.fileURL(ctx, &api.GetContextFileDownloadUrlRequest{ContextID: contextID, FilePath: filePath})
}

func (s *Service) fileURL(ctx context.Context, req api.Request) (*FileURLResult, error) {
	env, err := s.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var data api.PresignedUrlData
	if err := env.DecodeData(&data); err != nil {
		return nil, agberrors.NewTransportError("decoding presigned URL data", err)
	}
	return &FileURLResult{RequestID: env.RequestID, URL: data.URL, ExpireTime: data.ExpireTime}, nil
}

// DeleteFile removes one file from a context.
func (s *Service) DeleteFile(ctx context.Context, contextID, filePath string) (string, error) {
	env, err := s.do(ctx, &api.DeleteContextFileRequest{ContextID: contextID, FilePath: filePath})
	if err != nil {
		return requestID(err), err
	}
	return env.RequestID, nil
}

// ClearAsync starts a server-side wipe of the context and returns without
// waiting. The context transitions to the clearing state immediately.
func (s *Service) ClearAsync(ctx context.Context, contextID string) (string, error) {
	if contextID == "" {
		return "", agberrors.NewValidationError("context id is required", nil)
	}
	env, err := s.do(ctx, &api.ClearContextRequest{ContextID: contextID})
	if err != nil {
		return requestID(err), err
	}
	return env.RequestID, nil
}

// GetClearStatus reads the current state of a clearing context.
func (s *Service) GetClearStatus(ctx context.Context, contextID string) (string, string, error) {
	c, reqID, err := s.Get(ctx, GetParams{ContextID: contextID})
	if err != nil {
		return "", reqID, err
	}
	return c.State, reqID, nil
}

// ClearOptions tune the synchronous Clear poll loop.
type ClearOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// Clear wipes a context and waits for the wipe to finish. The state is
// polled every interval until it returns to available; any other state
// keeps the poll going. When the budget runs out the call fails with
// ErrClearanceTimeout, the one timeout in the SDK surfaced as a raised
// error rather than a result value.
func (s *Service) Clear(ctx context.Context, contextID string, opts *ClearOptions) (string, error) {
	timeout := DefaultClearTimeout
	interval := DefaultClearInterval
	if opts != nil {
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		if opts.Interval > 0 {
			interval = opts.Interval
		}
	}

	reqID, err := s.ClearAsync(ctx, contextID)
	if err != nil {
		return reqID, err
	}

	lastReqID := reqID
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err = backoff.Retry(pollCtx, func() (struct{}, error) {
		state, pollReqID, pollErr := s.GetClearStatus(pollCtx, contextID)
		if pollReqID != "" {
			lastReqID = pollReqID
		}
		if pollErr != nil {
			// Failures during polling short-circuit with the error.
			return struct{}{}, backoff.Permanent(pollErr)
		}
		switch state {
		case StateAvailable:
			// ClearAsync already moved the context into clearing, so
			// available means the wipe finished.
			return struct{}{}, nil
		case StateClearing:
			return struct{}{}, errStillClearing
		default:
			logger.Debugf("context %s in state %q during clear, still waiting", contextID, state)
			return struct{}{}, errStillClearing
		}
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
	)
	if err != nil {
		if errors.Is(err, errStillClearing) || errors.Is(err, context.DeadlineExceeded) {
			return lastReqID, agberrors.ErrClearanceTimeout
		}
		return lastReqID, err
	}
	return lastReqID, nil
}

var errStillClearing = agberrors.NewTimeoutError("context still clearing", nil)

// requestID pulls the request id out of a remote error chain, if any.
func requestID(err error) string {
	if re, ok := agberrors.AsRemote(err); ok {
		return re.RequestID
	}
	return ""
}
