package vfs

import "errors"

// Standard virtual-filesystem errors.
//
// Callers wrap these with additional context:
//
//	return fmt.Errorf("path %s: %w", path, vfs.ErrAccessDenied)
var (
	// ErrAccessDenied indicates the principal is not authorized for the
	// requested path and permission. It is never silently converted into an
	// empty result.
	//
	// Protocol Mapping:
	//   - HTTP: 403 Forbidden
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound indicates the path or entry has no backing objects.
	//
	// Protocol Mapping:
	//   - HTTP: 404 Not Found
	ErrNotFound = errors.New("not found")

	// ErrMalformedID indicates a synthetic entry id could not be decoded.
	//
	// Protocol Mapping:
	//   - HTTP: 400 Bad Request
	ErrMalformedID = errors.New("malformed entry id")

	// ErrAlreadyExists indicates the target entry already exists.
	//
	// Protocol Mapping:
	//   - HTTP: 409 Conflict
	ErrAlreadyExists = errors.New("entry already exists")

	// ErrStorageUnavailable indicates a transient backend failure. The
	// request is retry-safe and no partial result is returned.
	//
	// Protocol Mapping:
	//   - HTTP: 503 Service Unavailable
	ErrStorageUnavailable = errors.New("storage unavailable")
)
