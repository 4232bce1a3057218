// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package contexts

import (
	"fmt"
	"strings"

	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
)

// UploadStrategy controls when a mounted context uploads local changes.
type UploadStrategy string

// UploadBeforeResourceRelease uploads pending changes as part of session release.
const UploadBeforeResourceRelease UploadStrategy = "UploadBeforeResourceRelease"

// UploadMode controls the wire format of uploaded data.
type UploadMode string

// Upload modes.
const (
	UploadModeFile    UploadMode = "File"
	UploadModeArchive UploadMode = "Archive"
)

// DownloadStrategy controls how context data reaches a new session.
type DownloadStrategy string

// DownloadAsync downloads context data in the background after mount.
const DownloadAsync DownloadStrategy = "DownloadAsync"

// Lifecycle is the retention period of recycled context data.
type Lifecycle string

// Recycle lifecycles accepted by the service.
const (
	Lifecycle1Day    Lifecycle = "1d"
	Lifecycle3Days   Lifecycle = "3d"
	Lifecycle5Days   Lifecycle = "5d"
	Lifecycle10Days  Lifecycle = "10d"
	Lifecycle15Days  Lifecycle = "15d"
	Lifecycle30Days  Lifecycle = "30d"
	Lifecycle90Days  Lifecycle = "90d"
	Lifecycle180Days Lifecycle = "180d"
	Lifecycle360Days Lifecycle = "360d"
	LifecycleForever Lifecycle = "Forever"
)

// UploadPolicy controls upload behavior of a mounted context.
type UploadPolicy struct {
	AutoUpload     bool           `json:"autoUpload"`
	UploadStrategy UploadStrategy `json:"uploadStrategy"`
	UploadMode     UploadMode     `json:"uploadMode"`
}

// DefaultUploadPolicy returns the upload policy applied when none is given.
func DefaultUploadPolicy() *UploadPolicy {
	return &UploadPolicy{
		AutoUpload:     true,
		UploadStrategy: UploadBeforeResourceRelease,
		UploadMode:     UploadModeFile,
	}
}

// DownloadPolicy controls download behavior of a mounted context.
type DownloadPolicy struct {
	AutoDownload     bool             `json:"autoDownload"`
	DownloadStrategy DownloadStrategy `json:"downloadStrategy"`
}

// DefaultDownloadPolicy returns the download policy applied when none is given.
func DefaultDownloadPolicy() *DownloadPolicy {
	return &DownloadPolicy{
		AutoDownload:     true,
		DownloadStrategy: DownloadAsync,
	}
}

// DeletePolicy controls whether local deletions propagate to the context.
type DeletePolicy struct {
	SyncLocalFile bool `json:"syncLocalFile"`
}

// DefaultDeletePolicy returns the delete policy applied when none is given.
func DefaultDeletePolicy() *DeletePolicy {
	return &DeletePolicy{SyncLocalFile: true}
}

// ExtractPolicy controls archive extraction on download.
type ExtractPolicy struct {
	Extract                bool `json:"extract"`
	DeleteSrcFile          bool `json:"deleteSrcFile"`
	ExtractToCurrentFolder bool `json:"extractToCurrentFolder"`
}

// RecyclePolicy controls retention of context data after session release.
// Paths must be literal; an empty string means all paths.
type RecyclePolicy struct {
	Lifecycle Lifecycle `json:"lifecycle,omitempty"`
	Paths     []string  `json:"paths,omitempty"`
}

// WhiteList selects a subtree to sync, minus excluded subpaths.
type WhiteList struct {
	Path         string   `json:"path"`
	ExcludePaths []string `json:"excludePaths,omitempty"`
}

// BWList restricts syncing to the white-listed subtrees.
type BWList struct {
	WhiteLists []*WhiteList `json:"whiteLists,omitempty"`
}

// MappingPolicy remaps the context path across operating systems.
type MappingPolicy struct {
	Path string `json:"path"`
}

// SyncPolicy is the full policy tree attached to a context mount. It is
// serialized with camelCase keys when embedded in an RPC.
type SyncPolicy struct {
	UploadPolicy   *UploadPolicy   `json:"uploadPolicy,omitempty"`
	DownloadPolicy *DownloadPolicy `json:"downloadPolicy,omitempty"`
	DeletePolicy   *DeletePolicy   `json:"deletePolicy,omitempty"`
	ExtractPolicy  *ExtractPolicy  `json:"extractPolicy,omitempty"`
	RecyclePolicy  *RecyclePolicy  `json:"recyclePolicy,omitempty"`
	BWList         *BWList         `json:"bwList,omitempty"`
	MappingPolicy  *MappingPolicy  `json:"mappingPolicy,omitempty"`
}

// DefaultSyncPolicy returns the policy used when a mount declares none:
// auto upload on release, async download, local deletes propagated, and a
// white list covering the whole tree.
func DefaultSyncPolicy() *SyncPolicy {
	return &SyncPolicy{
		UploadPolicy:   DefaultUploadPolicy(),
		DownloadPolicy: DefaultDownloadPolicy(),
		DeletePolicy:   DefaultDeletePolicy(),
		BWList: &BWList{
			WhiteLists: []*WhiteList{{Path: ""}},
		},
	}
}

const wildcardChars = "*?[]"

func validateLiteralPath(kind, path string) error {
	if strings.ContainsAny(path, wildcardChars) {
		return agberrors.NewValidationError(
			fmt.Sprintf("%s %q must be literal: wildcard characters * ? [ ] are not supported", kind, path), nil)
	}
	return nil
}

// Validate rejects wildcard characters anywhere in recycle paths, white
// list paths, or exclude paths. The service treats these fields as
// literals; a wildcard would silently match nothing.
func (p *SyncPolicy) Validate() error {
	if p == nil {
		return nil
	}
	if p.RecyclePolicy != nil {
		for _, path := range p.RecyclePolicy.Paths {
			if err := validateLiteralPath("recycle path", path); err != nil {
				return err
			}
		}
	}
	if p.BWList != nil {
		for _, wl := range p.BWList.WhiteLists {
			if wl == nil {
				continue
			}
			if err := validateLiteralPath("white list path", wl.Path); err != nil {
				return err
			}
			for _, ex := range wl.ExcludePaths {
				if err := validateLiteralPath("exclude path", ex); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ContextSync binds a context volume to a mount path inside a session.
type ContextSync struct {
	ContextID string      `json:"contextId"`
	Path      string      `json:"path"`
	Policy    *SyncPolicy `json:"policy,omitempty"`
}

// NewContextSync builds a validated mount binding. A nil policy means the
// server applies DefaultSyncPolicy semantics.
func NewContextSync(contextID, path string, policy *SyncPolicy) (*ContextSync, error) {
	if contextID == "" {
		return nil, agberrors.NewValidationError("context sync requires a context id", nil)
	}
	if path == "" {
		return nil, agberrors.NewValidationError("context sync requires a mount path", nil)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &ContextSync{ContextID: contextID, Path: path, Policy: policy}, nil
}
