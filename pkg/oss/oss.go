// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oss moves files between a session and object storage buckets
// through the in-session OSS tools.
package oss

import (
	"context"

	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/tools"
)

// Result is the outcome of one OSS operation; Data carries whatever the
// tool reported (object URL, byte count, or a status line).
type Result struct {
	RequestID string
	Data      string
}

// OSS wraps the object storage tools of one session.
type OSS struct {
	invoker tools.Invoker
}

// New creates the OSS facade.
func New(invoker tools.Invoker) *OSS {
	return &OSS{invoker: invoker}
}

func (o *OSS) call(ctx context.Context, name string, args map[string]any) (*Result, error) {
	result, err := o.invoker.Call(ctx, name, args)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return &Result{RequestID: result.RequestID},
			agberrors.NewToolError(result.ErrorMessage, nil)
	}
	return &Result{RequestID: result.RequestID, Data: result.Data}, nil
}

// EnvInit provisions OSS credentials inside the session. All later
// bucket operations use them.
func (o *OSS) EnvInit(ctx context.Context, accessKeyID, accessKeySecret, securityToken, endpoint, region string) (*Result, error) {
	if accessKeyID == "" || accessKeySecret == "" {
		return nil, agberrors.NewValidationError("access key id and secret are required", nil)
	}
	args := map[string]any{
		"access_key_id":     accessKeyID,
		"access_key_secret": accessKeySecret,
	}
	if securityToken != "" {
		args["security_token"] = securityToken
	}
	if endpoint != "" {
		args["endpoint"] = endpoint
	}
	if region != "" {
		args["region"] = region
	}
	return o.call(ctx, "oss_env_init", args)
}

// Upload pushes a session-local file into a bucket.
func (o *OSS) Upload(ctx context.Context, bucket, object, path string) (*Result, error) {
	if bucket == "" || object == "" || path == "" {
		return nil, agberrors.NewValidationError("bucket, object and path are required", nil)
	}
	return o.call(ctx, "oss_upload", map[string]any{
		"bucket": bucket, "object": object, "path": path,
	})
}

// UploadAnonymous pushes a session-local file to a presigned URL.
func (o *OSS) UploadAnonymous(ctx context.Context, url, path string) (*Result, error) {
	if url == "" || path == "" {
		return nil, agberrors.NewValidationError("url and path are required", nil)
	}
	return o.call(ctx, "oss_upload_annon", map[string]any{"url": url, "path": path})
}

// Download pulls a bucket object to a session-local path.
func (o *OSS) Download(ctx context.Context, bucket, object, path string) (*Result, error) {
	if bucket == "" || object == "" || path == "" {
		return nil, agberrors.NewValidationError("bucket, object and path are required", nil)
	}
	return o.call(ctx, "oss_download", map[string]any{
		"bucket": bucket, "object": object, "path": path,
	})
}

// DownloadAnonymous pulls a URL to a session-local path.
func (o *OSS) DownloadAnonymous(ctx context.Context, url, path string) (*Result, error) {
	if url == "" || path == "" {
		return nil, agberrors.NewValidationError("url and path are required", nil)
	}
	return o.call(ctx, "oss_download_annon", map[string]any{"url": url, "path": path})
}
