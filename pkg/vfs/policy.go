package vfs

import (
	"fmt"
	"strings"
)

// DenyReason classifies an authorization denial.
type DenyReason string

const (
	// DenyNoGrant: no grant or home rule matches the path at all.
	DenyNoGrant DenyReason = "no_grant"
	// DenyInsufficientPermission: a grant matches the path but its level
	// does not cover the requested one.
	DenyInsufficientPermission DenyReason = "insufficient_permission"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed   bool
	Effective Permission
	Reason    DenyReason
}

// Err converts a denial into an ErrAccessDenied-wrapped error carrying the
// reason, nil if the decision allows.
func (d Decision) Err(logicalPath string) error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("path %s (%s): %w", logicalPath, d.Reason, ErrAccessDenied)
}

// Authorize decides whether the principal may act on logicalPath at the
// requested permission level.
//
// Admins are allowed everywhere at full permission. Non-admins are allowed
// inside their home path at full permission, and inside any active grant
// whose level covers the request. Root ("/") is a listing-only virtual view
// for non-admins: it is composed of the home folder and the grants, never
// resolved against the store, so only read is ever allowed there.
//
// A denial is always surfaced to the caller as an authorization failure; it
// is never downgraded to an empty result.
func Authorize(p Principal, logicalPath string, want Permission) Decision {
	if p.IsAdmin() {
		return Decision{Allowed: true, Effective: PermissionFull}
	}

	lp := NormalizePath(logicalPath)

	if lp == "/" {
		if want == PermissionRead {
			return Decision{Allowed: true, Effective: PermissionRead}
		}
		return Decision{Reason: DenyInsufficientPermission}
	}

	if p.HomePath != "" && pathWithin(lp, NormalizePath(p.HomePath)) {
		return Decision{Allowed: true, Effective: PermissionFull}
	}

	matched := false
	for _, g := range p.Grants {
		if !g.Active || g.FolderPath == "" {
			continue
		}
		if !pathWithin(lp, NormalizePath(g.FolderPath)) {
			continue
		}
		matched = true
		if g.Permission.Covers(want) {
			return Decision{Allowed: true, Effective: g.Permission}
		}
	}

	if matched {
		return Decision{Reason: DenyInsufficientPermission}
	}
	return Decision{Reason: DenyNoGrant}
}

// pathWithin reports whether p equals base or is a descendant of it. Both
// arguments must already be normalized.
func pathWithin(p, base string) bool {
	if base == "/" {
		return true
	}
	return p == base || strings.HasPrefix(p, base+"/")
}
