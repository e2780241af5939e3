// Package object defines the gateway contract for the flat object store
// backing the virtual filesystem.
//
// A Store adapts a prefix-keyed bucket (S3 or compatible) behind a small
// interface so the projection and mutation layers never touch an SDK type.
// Listing is eventually consistent; reads of a known key are assumed
// read-after-write consistent.
package object

import (
	"context"
	"errors"
	"io"
	"time"
)

// Standard gateway errors.
//
// Implementations wrap these with additional context:
//
//	return fmt.Errorf("object %s: %w", key, object.ErrObjectNotFound)
var (
	// ErrObjectNotFound indicates the requested key does not exist.
	//
	// Protocol Mapping:
	//   - HTTP: 404 Not Found
	ErrObjectNotFound = errors.New("object not found")

	// ErrUnavailable indicates a transient backend failure (timeout, 5xx).
	// Operations returning it are retry-safe.
	//
	// Protocol Mapping:
	//   - HTTP: 503 Service Unavailable
	ErrUnavailable = errors.New("object store unavailable")
)

// Info describes one key returned by a listing.
type Info struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Metadata describes a single object as returned by a head request.
type Metadata struct {
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Store is the object-store gateway.
//
// All methods honor context cancellation. A cancelled or failed List never
// returns a partial result: callers depend on global knowledge of the keys
// under a prefix, so truncation would corrupt folder collapsing downstream.
type Store interface {
	// List returns every key starting with prefix, draining any backend
	// pagination before returning. An empty result is not an error.
	List(ctx context.Context, prefix string) ([]Info, error)

	// ListCommonPrefixes returns the first-level "directories" under prefix
	// using the backend's delimiter support, without enumerating the keys
	// below them.
	ListCommonPrefixes(ctx context.Context, prefix string) ([]string, error)

	// Get returns a reader for the object's bytes. The caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put writes the object, replacing any existing one. contentType may be
	// empty.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteMany removes objects using the backend's native batch delete,
	// chunked to its per-call limit. It returns the keys actually deleted and
	// a per-key error map for the rest; a non-nil error is reserved for
	// whole-call failures such as context cancellation.
	DeleteMany(ctx context.Context, keys []string) (deleted []string, failed map[string]error, err error)

	// Copy duplicates src to dst within the store.
	Copy(ctx context.Context, src, dst string) error

	// Head returns object metadata without fetching the body.
	Head(ctx context.Context, key string) (*Metadata, error)

	// Exists reports whether the key is present. Absence is not an error.
	Exists(ctx context.Context, key string) (bool, error)
}

// Presigner is implemented by stores that can mint time-limited download
// URLs. It is optional; callers probe for it with a type assertion.
type Presigner interface {
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}
