// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package agentbay

import (
	"encoding/json"

	"github.com/agentbay/agentbay-go/pkg/browser"
	"github.com/agentbay/agentbay-go/pkg/contexts"
	agberrors "github.com/agentbay/agentbay-go/pkg/errors"
	"github.com/agentbay/agentbay-go/pkg/mobile"
)

// BrowserContext persists browser profile state across sessions. The
// named context is mounted at the image's browser data path with a white
// list covering only the files worth keeping.
type BrowserContext struct {
	ContextID  string
	AutoUpload bool
}

// MobileExtraConfig tunes mobile session behavior at creation time.
type MobileExtraConfig struct {
	LockResolution bool                `json:"lock_resolution,omitempty"`
	SimulateMode   mobile.SimulateMode `json:"simulate_mode,omitempty"`
}

// ExtraConfigs is the opaque per-image configuration blob attached to
// session creation.
type ExtraConfigs struct {
	Mobile *MobileExtraConfig `json:"mobile,omitempty"`
}

// CreateSessionParams configures one session creation.
type CreateSessionParams struct {
	ImageID        string
	Labels         map[string]string
	ContextSyncs   []*contexts.ContextSync
	BrowserContext *BrowserContext
	McpPolicyID    string
	IsVpc          bool
	ExtraConfigs   *ExtraConfigs
	// EnableBrowserReplay is sent only when explicitly set; nil keeps the
	// field off the wire.
	EnableBrowserReplay *bool
	// Framework names the embedding framework for sdk_stats attribution.
	Framework string
}

// NewCreateSessionParams returns empty creation parameters.
func NewCreateSessionParams() *CreateSessionParams {
	return &CreateSessionParams{Labels: map[string]string{}}
}

// WithLabels replaces the session labels.
func (p *CreateSessionParams) WithLabels(labels map[string]string) *CreateSessionParams {
	p.Labels = labels
	return p
}

// WithImageID sets the image the session boots from.
func (p *CreateSessionParams) WithImageID(imageID string) *CreateSessionParams {
	p.ImageID = imageID
	return p
}

// WithContextSync appends a context mount binding.
func (p *CreateSessionParams) WithContextSync(sync *contexts.ContextSync) *CreateSessionParams {
	p.ContextSyncs = append(p.ContextSyncs, sync)
	return p
}

// labelsJSON renders the labels map as the JSON object literal the wire
// expects, or empty when there are no labels.
func (p *CreateSessionParams) labelsJSON() (string, error) {
	if len(p.Labels) == 0 {
		return "", nil
	}
	for k, v := range p.Labels {
		if k == "" || v == "" {
			return "", agberrors.NewValidationError("labels cannot contain empty keys or values", nil)
		}
	}
	raw, err := json.Marshal(p.Labels)
	if err != nil {
		return "", agberrors.NewValidationError("encoding labels", err)
	}
	return string(raw), nil
}

// persistenceDataList validates every mount binding and renders the JSON
// array sent on the wire. A BrowserContext adds a synthetic binding for
// the browser profile with a white list restricted to its state files.
func (p *CreateSessionParams) persistenceDataList() (string, error) {
	var bindings []*contexts.ContextSync
	for _, sync := range p.ContextSyncs {
		if sync == nil {
			continue
		}
		if sync.ContextID == "" || sync.Path == "" {
			return "", agberrors.NewValidationError("context sync requires a context id and mount path", nil)
		}
		if err := sync.Policy.Validate(); err != nil {
			return "", err
		}
		bindings = append(bindings, sync)
	}
	if p.BrowserContext != nil {
		if p.BrowserContext.ContextID == "" {
			return "", agberrors.NewValidationError("browser context requires a context id", nil)
		}
		bindings = append(bindings, browserContextSync(p.BrowserContext))
	}
	if p.simulationRequested() {
		bindings = append(bindings, mobileInfoSync())
	}
	if len(bindings) == 0 {
		return "", nil
	}

	raw, err := json.Marshal(bindings)
	if err != nil {
		return "", agberrors.NewInternalError("encoding persistence data list", err)
	}
	return string(raw), nil
}

// browserContextSync builds the synthetic mount that persists browser
// profile state.
func browserContextSync(bc *BrowserContext) *contexts.ContextSync {
	policy := contexts.DefaultSyncPolicy()
	policy.UploadPolicy.AutoUpload = bc.AutoUpload

	whiteLists := make([]*contexts.WhiteList, 0, len(browser.ContextWhiteList))
	for _, path := range browser.ContextWhiteList {
		whiteLists = append(whiteLists, &contexts.WhiteList{Path: path})
	}
	policy.BWList = &contexts.BWList{WhiteLists: whiteLists}

	return &contexts.ContextSync{
		ContextID: bc.ContextID,
		Path:      browser.DataPath,
		Policy:    policy,
	}
}

// mobileInfoSync builds the synthetic mount that persists the simulated
// device identity. The context id is left empty so the server allocates
// the backing context.
func mobileInfoSync() *contexts.ContextSync {
	return &contexts.ContextSync{
		Path:   mobile.InfoPath,
		Policy: contexts.DefaultSyncPolicy(),
	}
}

// extraConfigsJSON renders the opaque extra configuration blob.
func (p *CreateSessionParams) extraConfigsJSON() (string, error) {
	if p.ExtraConfigs == nil {
		return "", nil
	}
	raw, err := json.Marshal(p.ExtraConfigs)
	if err != nil {
		return "", agberrors.NewInternalError("encoding extra configs", err)
	}
	return string(raw), nil
}

// simulationRequested reports whether the creation asks for mobile
// behavior simulation, which implies the mobile-info mount binding.
func (p *CreateSessionParams) simulationRequested() bool {
	return p.ExtraConfigs != nil && p.ExtraConfigs.Mobile != nil &&
		p.ExtraConfigs.Mobile.SimulateMode != ""
}

// hasPersistence reports whether any mount binding was requested.
func (p *CreateSessionParams) hasPersistence() bool {
	return len(p.ContextSyncs) > 0 || p.BrowserContext != nil || p.simulationRequested()
}

// hasAutoUpload reports whether any binding uploads on release; Delete
// uses it to decide whether a pre-release sync is worth triggering.
func (p *CreateSessionParams) hasAutoUpload() bool {
	for _, sync := range p.ContextSyncs {
		if sync == nil {
			continue
		}
		if sync.Policy == nil || sync.Policy.UploadPolicy == nil || sync.Policy.UploadPolicy.AutoUpload {
			return true
		}
	}
	if p.BrowserContext != nil && p.BrowserContext.AutoUpload {
		return true
	}
	// The synthetic mobile-info binding carries the default policy, which
	// uploads on release.
	return p.simulationRequested()
}
