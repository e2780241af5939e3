package identity

import (
	"context"
	"errors"
)

// Standard identity store errors.
var (
	// ErrUserNotFound indicates no user matches the given id or username.
	//
	// Protocol Mapping:
	//   - HTTP: 404 Not Found
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateUsername indicates the username is already taken.
	//
	// Protocol Mapping:
	//   - HTTP: 409 Conflict
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrCredentialsNotFound indicates the user has no SFTP provisioning
	// record.
	//
	// Protocol Mapping:
	//   - HTTP: 404 Not Found
	ErrCredentialsNotFound = errors.New("sftp credentials not found")
)

// ListOptions paginate and filter user listings. Page is 1-based; Search
// matches username and email substrings case-insensitively.
type ListOptions struct {
	Page   int
	Limit  int
	Search string
}

// Store persists users, their folder grants and their SFTP credentials.
// Deleting a user cascades to both.
type Store interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context, opts ListOptions) (users []*User, total int, err error)

	// ReplaceGrants swaps the user's whole grant set atomically.
	ReplaceGrants(ctx context.Context, userID string, grants []Grant) error
	ListGrants(ctx context.Context, userID string) ([]Grant, error)

	PutSFTPCredentials(ctx context.Context, creds *SFTPCredentials) error
	GetSFTPCredentials(ctx context.Context, userID string) (*SFTPCredentials, error)
	DeleteSFTPCredentials(ctx context.Context, userID string) error

	Close() error
}
