// Package audit records every mutating operation and authorization outcome
// as append-only activity events. Emission is fire-and-forget: a failing or
// slow sink never blocks and never fails the operation that triggered it.
package audit

import "time"

// Action names the operation an event records.
type Action string

const (
	ActionLogin        Action = "login"
	ActionLoginFailed  Action = "login_failed"
	ActionTokenRefresh Action = "token_refresh"

	ActionList         Action = "list"
	ActionUpload       Action = "upload"
	ActionDownload     Action = "download"
	ActionRename       Action = "rename"
	ActionMove         Action = "move"
	ActionCopy         Action = "copy"
	ActionDelete       Action = "delete"
	ActionCreateFolder Action = "create_folder"
	ActionShare        Action = "share"

	ActionUserCreated   Action = "user_created"
	ActionUserUpdated   Action = "user_updated"
	ActionUserDeleted   Action = "user_deleted"
	ActionGrantsUpdated Action = "grants_updated"

	ActionSFTPProvisioned Action = "sftp_provisioned"
	ActionSFTPClosed      Action = "sftp_connection_closed"

	ActionAccessDenied Action = "access_denied"
)

// Status is the recorded outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusPartial Status = "partial"
	StatusDenied  Status = "denied"
)

// ResourceKind classifies the acted-on resource.
type ResourceKind string

const (
	ResourceFile   ResourceKind = "file"
	ResourceFolder ResourceKind = "folder"
	ResourceUser   ResourceKind = "user"
	ResourceSFTP   ResourceKind = "sftp"
	ResourceNone   ResourceKind = ""
)

// Event is one append-only activity record. Events are never mutated after
// emission.
type Event struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	ActorID      string            `json:"actor_id"`
	ActorName    string            `json:"actor_name"`
	Action       Action            `json:"action"`
	ResourceKind ResourceKind      `json:"resource_kind,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	Status       Status            `json:"status"`
	Detail       map[string]string `json:"detail,omitempty"`
	ClientIP     string            `json:"client_ip,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
	Country      string            `json:"country,omitempty"`
	Region       string            `json:"region,omitempty"`
	City         string            `json:"city,omitempty"`
}

// Filter restricts a query over recorded events. Zero values match
// everything; Page is 1-based.
type Filter struct {
	ActorID string
	Action  Action
	Status  Status
	From    time.Time
	To      time.Time
	Page    int
	Limit   int
}
