// SPDX-FileCopyrightText: Copyright 2025 AgentBay, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"net/url"
	"strconv"
)

// Control plane actions.
const (
	ActionCreateMcpSession         = "CreateMcpSession"
	ActionReleaseMcpSession        = "ReleaseMcpSession"
	ActionGetSession               = "GetSession"
	ActionListSession              = "ListSession"
	ActionPauseSessionAsync        = "PauseSessionAsync"
	ActionResumeSessionAsync       = "ResumeSessionAsync"
	ActionCallMcpTool              = "CallMcpTool"
	ActionListMcpTools             = "ListMcpTools"
	ActionGetLabel                 = "GetLabel"
	ActionSetLabel                 = "SetLabel"
	ActionGetMcpResource           = "GetMcpResource"
	ActionGetLink                  = "GetLink"
	ActionInitBrowser              = "InitBrowser"
	ActionGetCdpLink               = "GetCdpLink"
	ActionGetAdbLink               = "GetAdbLink"
	ActionGetContext               = "GetContext"
	ActionListContexts             = "ListContexts"
	ActionModifyContext            = "ModifyContext"
	ActionDeleteContext            = "DeleteContext"
	ActionSyncContext              = "SyncContext"
	ActionGetContextInfo           = "GetContextInfo"
	ActionClearContext             = "ClearContext"
	ActionDescribeContextFiles     = "DescribeContextFiles"
	ActionGetContextFileUploadUrl   = "GetContextFileUploadUrl"
	ActionGetContextFileDownloadUrl = "GetContextFileDownloadUrl"
	ActionDeleteContextFile         = "DeleteContextFile"
)

// Request is one control plane RPC invocation. Values returns only the
// action-specific form fields; the client adds the protocol and auth fields.
type Request interface {
	Action() string
	Values() url.Values
}

// Envelope is the response wrapper every control plane action returns.
type Envelope struct {
	RequestID      string          `json:"RequestId"`
	Success        bool            `json:"Success"`
	Code           string          `json:"Code,omitempty"`
	Message        string          `json:"Message,omitempty"`
	HTTPStatusCode int             `json:"HttpStatusCode,omitempty"`
	Data           json.RawMessage `json:"Data,omitempty"`
}

// DecodeData unmarshals the Data payload into v. A missing payload leaves
// v untouched.
func (e *Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// FailureMessage renders a Success=false envelope the way callers report
// it: "[<Code>] <Message>", or the bare message when no code was sent.
func (e *Envelope) FailureMessage() string {
	if e.Code != "" {
		return "[" + e.Code + "] " + e.Message
	}
	return e.Message
}

func setIfNotEmpty(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

// CreateMcpSessionRequest creates a new session.
type CreateMcpSessionRequest struct {
	ImageID             string
	Labels              string // JSON object literal
	VpcResource         bool
	McpPolicyID         string
	PersistenceDataList string // JSON array literal
	ExtraConfigs        string // JSON literal, opaque mobile settings
	SdkStats            string // JSON literal
	LoginRegionID       string
	// EnableRecord is sent as false only when the caller explicitly
	// disabled browser replay; nil means the field stays off the wire.
	EnableRecord *bool
}

// Action implements Request.
func (*CreateMcpSessionRequest) Action() string { return ActionCreateMcpSession }

// Values implements Request.
func (r *CreateMcpSessionRequest) Values() url.Values {
	v := url.Values{}
	setIfNotEmpty(v, "ImageId", r.ImageID)
	setIfNotEmpty(v, "Labels", r.Labels)
	if r.VpcResource {
		v.Set("VpcResource", "true")
	}
	setIfNotEmpty(v, "McpPolicyId", r.McpPolicyID)
	setIfNotEmpty(v, "PersistenceDataList", r.PersistenceDataList)
	setIfNotEmpty(v, "ExtraConfigs", r.ExtraConfigs)
	setIfNotEmpty(v, "SdkStats", r.SdkStats)
	setIfNotEmpty(v, "LoginRegionId", r.LoginRegionID)
	if r.EnableRecord != nil {
		v.Set("EnableRecord", strconv.FormatBool(*r.EnableRecord))
	}
	return v
}

// CreateMcpSessionData is the Data payload of CreateMcpSession.
type CreateMcpSessionData struct {
	SessionID          string `json:"SessionId"`
	ResourceURL        string `json:"ResourceUrl"`
	Success            bool   `json:"Success"`
	ErrMsg             string `json:"ErrMsg"`
	NetworkInterfaceIP string `json:"NetworkInterfaceIp"`
	HTTPPort           string `json:"HttpPort"`
	Token              string `json:"Token"`
}

// ReleaseMcpSessionRequest asynchronously releases a session.
type ReleaseMcpSessionRequest struct {
	SessionID string
}

// Action implements Request.
func (*ReleaseMcpSessionRequest) Action() string { return ActionReleaseMcpSession }

// Values implements Request.
func (r *ReleaseMcpSessionRequest) Values() url.Values {
	v := url.Values{}
	v.Set("SessionId", r.SessionID)
	return v
}

// GetSessionRequest reads one session's current state.
type GetSessionRequest struct {
	SessionID string
}

// Action implements Request.
func (*GetSessionRequest) Action() string { return ActionGetSession }

// Values implements Request.
func (r *GetSessionRequest) Values() url.Values {
	v := url.Values{}
	v.Set("SessionId", r.SessionID)
	return v
}

// GetSessionData is the Data payload of GetSession.
type GetSessionData struct {
	SessionID          string `json:"SessionId"`
	Status             string `json:"Status"`
	Success            bool   `json:"Success"`
	ErrMsg             string `json:"ErrMsg"`
	ResourceURL        string `json:"ResourceUrl"`
	AppInstanceID      string `json:"AppInstanceId"`
	ResourceID         string `json:"ResourceId"`
	VpcResource        bool   `json:"VpcResource"`
	NetworkInterfaceIP string `json:"NetworkInterfaceIp"`
	HTTPPort           string `json:"HttpPort"`
	Token              string `json:"Token"`
}

// ListSessionRequest lists sessions filtered by labels.
type ListSessionRequest struct {
	Labels     string // JSON object literal
	MaxResults int
	NextToken  string
}

// Action implements Request.
func (*ListSessionRequest) Action() string { return ActionListSession }

// Values implements Request.
func (r *ListSessionRequest) Values() url.Values {
	v := url.Values{}
	setIfNotEmpty(v, "Labels", r.Labels)
	if r.MaxResults > 0 {
		v.Set("MaxResults", strconv.Itoa(r.MaxResults))
	}
	setIfNotEmpty(v, "NextToken", r.NextToken)
	return v
}

// SessionListItem is one entry of a ListSession page.
type SessionListItem struct {
	SessionID string `json:"SessionId"`
	Status    string `json:"Status"`
	ImageID   string `json:"ImageId"`
}

// ListSessionData is the Data payload of ListSession.
type ListSessionData struct {
	Data       []SessionListItem `json:"Data"`
	NextToken  string            `json:"NextToken"`
	MaxResults int               `json:"MaxResults"`
	TotalCount int               `json:"TotalCount"`
}

// PauseSessionRequest triggers an asynchronous pause.
type PauseSessionRequest struct {
	SessionID string
}

// Action implements Request.
func (*PauseSessionRequest) Action() string { return ActionPauseSessionAsync }

// Values implements Request.
func (r *PauseSessionRequest) Values() url.Values {
	v := url.Values{}
	v.Set("SessionId", r.SessionID)
	return v
}

// ResumeSessionRequest triggers an asynchronous resume.
type ResumeSessionRequest struct {
	SessionID string
}

// Action implements Request.
func (*ResumeSessionRequest) Action() string { return ActionResumeSessionAsync }

// Values implements Request.
func (r *ResumeSessionRequest) Values() url.Values {
	v := url.Values{}
	v.Set("SessionId", r.SessionID)
	return v
}

// CallMcpToolRequest invokes a tool through the control plane.
type CallMcpToolRequest struct {
	SessionID      string
	Name           string
	Args           string // canonical JSON
	AutoGenSession bool
}

// Action implements Request.
func (*CallMcpToolRequest) Action() string { return ActionCallMcpTool }

// Values implements Request.
func (r *CallMcpToolRequest) Values() url.Values {
	v := url.Values{}
	v.Set("SessionId", r.SessionID)
	v.Set("Name", r.Name)
	v.Set("Args", r.Args)
	if r.AutoGenSession {
		v.Set("AutoGenSession", "true")
	}
	return v
}

// ListMcpToolsRequest fetches the tool catalog for an image.
type ListMcpToolsRequest struct {
	ImageID string
}

// Action implements Request.
func (*ListMcpToolsRequest) Action() string { return ActionListMcpTools }

// Values implements Request.
func (r *ListMcpToolsRequest) Values() url.Values {
	v := url.Values{}
	setIfNotEmpty(v, "ImageId", r.ImageID)
	return v
}

// GetLabelRequest reads the labels of a session.
type GetLabelRequest struct {
	SessionID string
}

// Action implements Request.
func (*GetLabelRequest) Action() string { return ActionGetLabel }

// Values implements Request.
func (r *GetLabelRequest) Values() url.Values {
	v := url.Values{}
	v.Set("SessionId", r.SessionID)
	return v
}

// GetLabelData is the Data payload of GetLabel.
type GetLabelData struct {
	Labels string `json:"Labels"`
}

// SetLabelRequest replaces the labels of a session.
type SetLabelRequest struct {
	SessionID string
	Labels    string // JSON object literal
}

// Action implements Request.
func (*SetLabelRequest) Action() string { return ActionSetLabel }

// Values implements Request.
func (r *SetLabelRequest) Values() url.Values {
	v := url.Values{}
	v.Set("SessionId", r.SessionID)
	v.Set("Labels", r.Labels)
	return v
}

// GetMcpResourceRequest reads the desktop resource info of a session.
type GetMcpResourceRequest struct {
	SessionID string
}

// Action implements Request.
func (*GetMcpResourceRequest) Action() string { return ActionGetMcpResource }

// Values implements Request.
func (r *GetMcpResourceRequest) Values() url.Values {
	v := url.Values{}
	v.Set("SessionId", r.SessionID)
	return v
}

// DesktopInfo describes the remote desktop backing a session.
type DesktopInfo struct {
	AppID                string `json:"AppId"`
	AuthCode             string `json:"AuthCode"`
	ConnectionProperties string `json:"ConnectionProperties"`
	ResourceID           string `json:"ResourceId"`
	ResourceType         string `json:"ResourceType"`
	Ticket               string `json:"Ticket"`
}

// GetMcpResourceData is the Data payload of GetMcpResource.
type GetMcpResourceData struct {
	SessionID   string       `json:"SessionId"`
	ResourceURL string       `json:"ResourceUrl"`
	DesktopInfo *DesktopInfo `json:"DesktopInfo,omitempty"`
}

// GetLinkRequest resolves an access link for a session.
type GetLinkRequest struct {
	SessionID    string
	ProtocolType string
	Port         *int32
	Options      string // opaque JSON blob
}

// Action implements Request.
func (*GetLinkRequest) Action() string { return ActionGetLink }

// Values implements Request.
func (r *GetLinkRequest) Values() url.Values {
	v := url.Values{}
	v.Set("SessionId", r.SessionID)
	setIfNotEmpty(v, "ProtocolType", r.ProtocolType)
	if r.Port != nil {
		v.Set("Port", strconv.FormatInt(int64(*r.Port), 10))
	}
	setIfNotEmpty(v, "Options", r.Options)
	return v
}

// GetLinkData is the Data payload of GetLink.
type GetLinkData struct {
	URL string `json:"Url"`
}

// InitBrowserRequest starts the in-session browser.
type InitBrowserRequest struct {
	SessionID     string
	PersistPath   string
	BrowserOption string // opaque JSON blob
}

// Action implements Request.
func (*InitBrowserRequest) Action() string { return ActionInitBrowser }

// Values implements Request.
func (r *InitBrowserRequest) Values() url.Values {
	v := url.Values{}
	v.Set("SessionId", r.SessionID)
	setIfNotEmpty(v, "PersistPath", r.PersistPath)
	setIfNotEmpty(v, "BrowserOption", r.BrowserOption)
	return v
}

// InitBrowserData is the Data payload of InitBrowser.
type InitBrowserData struct {
	Port int `json:"Port"`
}

// GetCdpLinkRequest resolves the CDP websocket URL of a session browser.
type GetCdpLinkRequest struct {
	SessionID string
}

// Action implements Request.
func (*GetCdpLinkRequest) Action() string { return ActionGetCdpLink }

// Values implements Request.
func (r *GetCdpLinkRequest) Values() url.Values {
	v := url.Values{}
	v.Set("SessionId", r.SessionID)
	return v
}

// GetAdbLinkRequest resolves the ADB endpoint of a mobile session.
type GetAdbLinkRequest struct {
	SessionID string
}

// Action implements Request.
func (*GetAdbLinkRequest) Action() string { return ActionGetAdbLink }

// Values implements Request.
func (r *GetAdbLinkRequest) Values() url.Values {
	v := url.Values{}
	v.Set("SessionId", r.SessionID)
	return v
}

// GetContextRequest looks a context up by name, optionally creating it.
type GetContextRequest struct {
	Name        string
	ContextID   string
	AllowCreate bool
}

// Action implements Request.
func (*GetContextRequest) Action() string { return ActionGetContext }

// Values implements Request.
func (r *GetContextRequest) Values() url.Values {
	v := url.Values{}
	setIfNotEmpty(v, "Name", r.Name)
	setIfNotEmpty(v, "ContextId", r.ContextID)
	if r.AllowCreate {
		v.Set("AllowCreate", "true")
	}
	return v
}

// ContextData describes one persistent context volume.
type ContextData struct {
	ID           string `json:"Id"`
	Name         string `json:"Name"`
	State        string `json:"State"`
	CreateTime   string `json:"CreateTime"`
	LastUsedTime string `json:"LastUsedTime"`
	OsType       string `json:"OsType"`
}

// ListContextsRequest lists contexts with server-driven pagination.
type ListContextsRequest struct {
	MaxResults int
	NextToken  string
}

// Action implements Request.
func (*ListContextsRequest) Action() string { return ActionListContexts }

// Values implements Request.
func (r *ListContextsRequest) Values() url.Values {
	v := url.Values{}
	if r.MaxResults > 0 {
		v.Set("MaxResults", strconv.Itoa(r.MaxResults))
	}
	setIfNotEmpty(v, "NextToken", r.NextToken)
	return v
}

// ListContextsData is the Data payload of ListContexts.
type ListContextsData struct {
	Data       []ContextData `json:"Data"`
	NextToken  string        `json:"NextToken"`
	MaxResults int           `json:"MaxResults"`
	TotalCount int           `json:"TotalCount"`
}

// ModifyContextRequest renames a context.
type ModifyContextRequest struct {
	ContextID string
	Name      string
}

// Action implements Request.
func (*ModifyContextRequest) Action() string { return ActionModifyContext }

// Values implements Request.
func (r *ModifyContextRequest) Values() url.Values {
	v := url.Values{}
	v.Set("ContextId", r.ContextID)
	v.Set("Name", r.Name)
	return v
}

// DeleteContextRequest removes a context.
type DeleteContextRequest struct {
	ContextID string
}

// Action implements Request.
func (*DeleteContextRequest) Action() string { return ActionDeleteContext }

// Values implements Request.
func (r *DeleteContextRequest) Values() url.Values {
	v := url.Values{}
	v.Set("ContextId", r.ContextID)
	return v
}

// SyncContextRequest triggers a server-side sync task for a session mount.
type SyncContextRequest struct {
	SessionID string
	ContextID string
	Path      string
	Mode      string
}

// Action implements Request.
func (*SyncContextRequest) Action() string { return ActionSyncContext }

// Values implements Request.
func (r *SyncContextRequest) Values() url.Values {
	v := url.Values{}
	v.Set("SessionId", r.SessionID)
	setIfNotEmpty(v, "ContextId", r.ContextID)
	setIfNotEmpty(v, "Path", r.Path)
	setIfNotEmpty(v, "Mode", r.Mode)
	return v
}

// SyncContextData is the Data payload of SyncContext.
type SyncContextData struct {
	Success bool `json:"Success"`
}

// GetContextInfoRequest reads sync task status for a session's mounts.
type GetContextInfoRequest struct {
	SessionID string
	ContextID string
	Path      string
	TaskType  string
}

// Action implements Request.
func (*GetContextInfoRequest) Action() string { return ActionGetContextInfo }

// Values implements Request.
func (r *GetContextInfoRequest) Values() url.Values {
	v := url.Values{}
	v.Set("SessionId", r.SessionID)
	setIfNotEmpty(v, "ContextId", r.ContextID)
	setIfNotEmpty(v, "Path", r.Path)
	setIfNotEmpty(v, "TaskType", r.TaskType)
	return v
}

// GetContextInfoData is the Data payload of GetContextInfo. ContextStatus
// is a doubly-encoded JSON string; see the contexts package for the parse.
type GetContextInfoData struct {
	ContextStatus string `json:"ContextStatus"`
}

// ClearContextRequest starts an asynchronous wipe of a context.
type ClearContextRequest struct {
	ContextID string
}

// Action implements Request.
func (*ClearContextRequest) Action() string { return ActionClearContext }

// Values implements Request.
func (r *ClearContextRequest) Values() url.Values {
	v := url.Values{}
	v.Set("ContextId", r.ContextID)
	return v
}

// DescribeContextFilesRequest lists files under a parent folder.
type DescribeContextFilesRequest struct {
	ContextID  string
	ParentPath string
	PageNumber int
	PageSize   int
}

// Action implements Request.
func (*DescribeContextFilesRequest) Action() string { return ActionDescribeContextFiles }

// Values implements Request.
func (r *DescribeContextFilesRequest) Values() url.Values {
	v := url.Values{}
	v.Set("ContextId", r.ContextID)
	setIfNotEmpty(v, "ParentPath", r.ParentPath)
	if r.PageNumber > 0 {
		v.Set("PageNumber", strconv.Itoa(r.PageNumber))
	}
	if r.PageSize > 0 {
		v.Set("PageSize", strconv.Itoa(r.PageSize))
	}
	return v
}

// ContextFileEntry is one row of a DescribeContextFiles page.
type ContextFileEntry struct {
	FileID      string `json:"FileId"`
	FileName    string `json:"FileName"`
	FilePath    string `json:"FilePath"`
	FileType    string `json:"FileType"`
	Size        int64  `json:"Size"`
	Status      string `json:"Status"`
	GmtCreate   string `json:"GmtCreate"`
	GmtModified string `json:"GmtModified"`
}

// DescribeContextFilesData is the Data payload of DescribeContextFiles.
type DescribeContextFilesData struct {
	Entries []ContextFileEntry `json:"Entries"`
	Count   int                `json:"Count"`
}

// GetContextFileUploadUrlRequest requests a presigned upload URL.
type GetContextFileUploadUrlRequest struct {
	ContextID string
	FilePath  string
}

// Action implements Request.
func (*GetContextFileUploadUrlRequest) Action() string { return ActionGetContextFileUploadUrl }

// Values implements Request.
func (r *GetContextFileUploadUrlRequest) Values() url.Values {
	v := url.Values{}
	v.Set("ContextId", r.ContextID)
	v.Set("FilePath", r.FilePath)
	return v
}

// GetContextFileDownloadUrlRequest requests a presigned download URL.
type GetContextFileDownloadUrlRequest struct {
	ContextID string
	FilePath  string
}

// Action implements Request.
func (*GetContextFileDownloadUrlRequest) Action() string { return ActionGetContextFileDownloadUrl }

// Values implements Request.
func (r *GetContextFileDownloadUrlRequest) Values() url.Values {
	v := url.Values{}
	v.Set("ContextId", r.ContextID)
	v.Set("FilePath", r.FilePath)
	return v
}

// PresignedUrlData is the Data payload of the presigned URL actions.
type PresignedUrlData struct {
	URL        string `json:"Url"`
	ExpireTime int64  `json:"ExpireTime"`
}

// DeleteContextFileRequest removes one file from a context.
type DeleteContextFileRequest struct {
	ContextID string
	FilePath  string
}

// Action implements Request.
func (*DeleteContextFileRequest) Action() string { return ActionDeleteContextFile }

// Values implements Request.
func (r *DeleteContextFileRequest) Values() url.Values {
	v := url.Values{}
	v.Set("ContextId", r.ContextID)
	v.Set("FilePath", r.FilePath)
	return v
}
