// Package vfs projects a flat, prefix-keyed object store onto a hierarchical
// path and permission model.
//
// The package has three layers. The codec maps logical paths, store keys and
// synthetic entry ids onto each other with no I/O. The policy decides what a
// principal may do at a path. The projector and mutator translate listing and
// mutation requests into object-store calls through those two.
//
// There is no real directory abstraction in the store: a "folder" exists only
// as a shared key prefix, optionally anchored by a zero-byte placeholder key
// ending in "/". Concurrent mutations of overlapping paths are not
// coordinated; the accepted failure mode is last-write-wins and, for an
// interrupted move, a duplicate object at both locations.
package vfs

import "time"

// Kind distinguishes the two entry shapes. It is always carried explicitly;
// entries are never re-classified from the shape of their name.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Permission is the access level attached to a grant.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionFull  Permission = "full"
)

// Covers reports whether p satisfies the requested level. Read covers
// listing and download only; write and full cover mutation as well.
func (p Permission) Covers(want Permission) bool {
	switch want {
	case PermissionRead:
		return p == PermissionRead || p == PermissionWrite || p == PermissionFull
	case PermissionWrite:
		return p == PermissionWrite || p == PermissionFull
	case PermissionFull:
		return p == PermissionFull
	default:
		return false
	}
}

// Valid reports whether p is one of the known levels.
func (p Permission) Valid() bool {
	return p == PermissionRead || p == PermissionWrite || p == PermissionFull
}

// Role is the coarse principal class.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// FolderGrant binds a principal to a folder path at a permission level.
// Inactive grants are retained for audit but never authorize anything.
type FolderGrant struct {
	FolderPath string
	Permission Permission
	Active     bool
}

// Principal is the request-scoped identity the policy evaluates. It is
// constructed once per request from a validated token and never mutated.
type Principal struct {
	ID       string
	Username string
	Role     Role
	HomePath string
	Grants   []FolderGrant
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Entry is the externally visible listing unit: a single object (file) or a
// collapsed key prefix (folder).
type Entry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Kind         Kind      `json:"type"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	MIMEType     string    `json:"mime_type,omitempty"`
}
