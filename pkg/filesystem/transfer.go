// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package filesystem

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/agentbay/agentbay-go/pkg/contexts"
	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/logger"
)

// Transfer moves file payloads between the local machine and a context
// mounted into the session. Bytes travel through presigned URLs; the
// control plane only mints the URLs and schedules sync tasks.
type Transfer struct {
	service    *contexts.Service
	manager    *contexts.Manager
	httpClient *http.Client
}

// NewTransfer creates a bulk transfer helper for one session.
func NewTransfer(service *contexts.Service, manager *contexts.Manager) *Transfer {
	return &Transfer{
		service:    service,
		manager:    manager,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// Upload pushes localPath into the context at remotePath, then waits for
// the session's mount to pick it up through a download sync.
func (t *Transfer) Upload(ctx context.Context, localPath, contextID, remotePath string) (string, error) {
	if localPath == "" || contextID == "" || remotePath == "" {
		return "", agberrors.NewValidationError("local path, context id and remote path are required", nil)
	}

	file, err := os.Open(localPath) //nolint:gosec // caller-chosen local path
	if err != nil {
		return "", agberrors.NewValidationError("opening "+localPath, err)
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		return "", agberrors.NewValidationError("inspecting "+localPath, err)
	}

	presigned, err := t.service.GetFileUploadURL(ctx, contextID, remotePath)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presigned.URL, file)
	if err != nil {
		return presigned.RequestID, agberrors.NewTransportError("building upload request", err)
	}
	req.ContentLength = stat.Size()

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return presigned.RequestID, agberrors.NewTransportError("uploading "+localPath, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return presigned.RequestID, agberrors.NewTransportError(
			fmt.Sprintf("upload of %s returned HTTP %d", localPath, resp.StatusCode), nil)
	}

	logger.Debugf("uploaded %s (%d bytes) to context %s:%s", localPath, stat.Size(), contextID, remotePath)

	// Let the session's mount pull the new object down.
	result, err := t.manager.Sync(ctx,
		contexts.WithContextID(contextID),
		contexts.WithMode("download"))
	if err != nil {
		return presigned.RequestID, err
	}
	if !result.Success {
		return result.RequestID, agberrors.NewToolError("context download sync completed with failures", nil)
	}
	return presigned.RequestID, nil
}

// Download syncs the session's mount up to the context store, then pulls
// remotePath down to localPath.
func (t *Transfer) Download(ctx context.Context, contextID, remotePath, localPath string) (string, error) {
	if localPath == "" || contextID == "" || remotePath == "" {
		return "", agberrors.NewValidationError("local path, context id and remote path are required", nil)
	}

	// Flush pending session-side changes before minting the URL.
	result, err := t.manager.Sync(ctx, contexts.WithContextID(contextID))
	if err != nil {
		return "", err
	}
	if !result.Success {
		return result.RequestID, agberrors.NewToolError("context upload sync completed with failures", nil)
	}

	presigned, err := t.service.GetFileDownloadURL(ctx, contextID, remotePath)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, presigned.URL, nil)
	if err != nil {
		return presigned.RequestID, agberrors.NewTransportError("building download request", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return presigned.RequestID, agberrors.NewTransportError("downloading "+remotePath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return presigned.RequestID, agberrors.NewTransportError(
			fmt.Sprintf("download of %s returned HTTP %d", remotePath, resp.StatusCode), nil)
	}

	out, err := os.Create(localPath) //nolint:gosec // caller-chosen local path
	if err != nil {
		return presigned.RequestID, agberrors.NewValidationError("creating "+localPath, err)
	}
	defer out.Close()
	written, err := io.Copy(out, resp.Body)
	if err != nil {
		return presigned.RequestID, agberrors.NewTransportError("writing "+localPath, err)
	}

	logger.Debugf("downloaded %s (%d bytes) from context %s:%s", localPath, written, contextID, remotePath)
	return presigned.RequestID, nil
}
