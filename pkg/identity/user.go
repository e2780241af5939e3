// Package identity holds the user, grant and SFTP credential model and the
// persistence contract behind authentication and folder-scoped access
// control.
package identity

import (
	"time"

	"github.com/stratafs/stratafs/pkg/vfs"
)

// User is an account record. PasswordHash is a bcrypt hash, never the
// password itself.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         vfs.Role  `json:"role"`
	HomePath     string    `json:"home_path"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Grant is a persisted folder grant owned by a user. Inactive grants are
// kept for audit and excluded from authorization.
type Grant struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	FolderPath string         `json:"folder_path"`
	Permission vfs.Permission `json:"permission"`
	Active     bool           `json:"active"`
	CreatedAt  time.Time      `json:"created_at"`
}

// SFTPCredentials is the per-user SFTP provisioning record. AuthorizedKey is
// the public key in authorized_keys format; the private key is handed to the
// user once at provisioning time and never stored.
type SFTPCredentials struct {
	UserID        string    `json:"user_id"`
	Username      string    `json:"username"`
	AuthorizedKey string    `json:"authorized_key"`
	Fingerprint   string    `json:"fingerprint"`
	Enabled       bool      `json:"enabled"`
	ProvisionedAt time.Time `json:"provisioned_at"`
}

// Principal builds the request-scoped identity the filesystem policy
// evaluates, folding the user's persisted grants in.
func (u *User) Principal(grants []Grant) vfs.Principal {
	p := vfs.Principal{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
		HomePath: u.HomePath,
	}
	for _, g := range grants {
		p.Grants = append(p.Grants, vfs.FolderGrant{
			FolderPath: g.FolderPath,
			Permission: g.Permission,
			Active:     g.Active,
		})
	}
	return p
}
