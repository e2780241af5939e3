// Package testing provides a reusable conformance suite for identity.Store
// implementations. Each implementation runs the same suite so behavior stays
// aligned between the persistent and in-memory stores.
package testing

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratafs/stratafs/pkg/identity"
	"github.com/stratafs/stratafs/pkg/vfs"
)

// StoreTestSuite runs the complete identity.Store contract against a fresh
// store per test.
type StoreTestSuite struct {
	// NewStore returns an empty store. The suite closes it.
	NewStore func(t *testing.T) identity.Store
}

// Run executes the full suite.
func (s *StoreTestSuite) Run(t *testing.T) {
	t.Run("CreateAndGet", s.testCreateAndGet)
	t.Run("DuplicateUsername", s.testDuplicateUsername)
	t.Run("UpdateUser", s.testUpdateUser)
	t.Run("DeleteCascades", s.testDeleteCascades)
	t.Run("ListUsers", s.testListUsers)
	t.Run("ReplaceGrants", s.testReplaceGrants)
	t.Run("SFTPCredentials", s.testSFTPCredentials)
}

func (s *StoreTestSuite) open(t *testing.T) identity.Store {
	t.Helper()
	store := s.NewStore(t)
	t.Cleanup(func() {
		assert.NoError(t, store.Close(), "close store")
	})
	return store
}

func newUser(username string) *identity.User {
	return &identity.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$2a$10$fakefakefakefakefakefak",
		Role:         vfs.RoleUser,
		HomePath:     "/users/" + username,
		Active:       true,
	}
}

func (s *StoreTestSuite) testCreateAndGet(t *testing.T) {
	store := s.open(t)
	ctx := context.Background()

	user := newUser("alice")
	require.NoError(t, store.CreateUser(ctx, user))
	require.NotEmpty(t, user.ID, "CreateUser should assign an id")
	require.False(t, user.CreatedAt.IsZero(), "CreateUser should set CreatedAt")
	require.False(t, user.UpdatedAt.IsZero(), "CreateUser should set UpdatedAt")

	byID, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
	assert.Equal(t, "/users/alice", byID.HomePath)
	// login verifies against the stored hash, so it must survive a write
	// and read back intact
	assert.Equal(t, user.PasswordHash, byID.PasswordHash)

	byName, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)
	assert.Equal(t, user.PasswordHash, byName.PasswordHash)

	_, err = store.GetUser(ctx, "missing")
	require.ErrorIs(t, err, identity.ErrUserNotFound)
	_, err = store.GetUserByUsername(ctx, "nobody")
	require.ErrorIs(t, err, identity.ErrUserNotFound)
}

func (s *StoreTestSuite) testDuplicateUsername(t *testing.T) {
	store := s.open(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, newUser("bob")))
	err := store.CreateUser(ctx, newUser("bob"))
	require.ErrorIs(t, err, identity.ErrDuplicateUsername)
}

func (s *StoreTestSuite) testUpdateUser(t *testing.T) {
	store := s.open(t)
	ctx := context.Background()

	user := newUser("carol")
	require.NoError(t, store.CreateUser(ctx, user))
	other := newUser("dave")
	require.NoError(t, store.CreateUser(ctx, other))

	user.Username = "carol2"
	user.Role = vfs.RoleAdmin
	require.NoError(t, store.UpdateUser(ctx, user))

	_, err := store.GetUserByUsername(ctx, "carol")
	require.ErrorIs(t, err, identity.ErrUserNotFound, "old username should not resolve")

	updated, err := store.GetUserByUsername(ctx, "carol2")
	require.NoError(t, err)
	assert.Equal(t, vfs.RoleAdmin, updated.Role)
	assert.Equal(t, user.PasswordHash, updated.PasswordHash)

	// renaming onto a taken username must fail
	user.Username = "dave"
	require.ErrorIs(t, store.UpdateUser(ctx, user), identity.ErrDuplicateUsername)
}

func (s *StoreTestSuite) testDeleteCascades(t *testing.T) {
	store := s.open(t)
	ctx := context.Background()

	user := newUser("erin")
	require.NoError(t, store.CreateUser(ctx, user))

	grants := []identity.Grant{
		{FolderPath: "/shared/a", Permission: vfs.PermissionRead, Active: true},
	}
	require.NoError(t, store.ReplaceGrants(ctx, user.ID, grants))

	creds := &identity.SFTPCredentials{
		UserID:        user.ID,
		Username:      user.Username,
		AuthorizedKey: "ssh-rsa AAAA... test",
		Enabled:       true,
	}
	require.NoError(t, store.PutSFTPCredentials(ctx, creds))

	require.NoError(t, store.DeleteUser(ctx, user.ID))

	_, err := store.GetUser(ctx, user.ID)
	require.ErrorIs(t, err, identity.ErrUserNotFound, "user should not survive delete")
	_, err = store.GetUserByUsername(ctx, "erin")
	require.ErrorIs(t, err, identity.ErrUserNotFound, "username index should not survive delete")

	left, err := store.ListGrants(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, left, "grants should not survive delete")

	_, err = store.GetSFTPCredentials(ctx, user.ID)
	require.ErrorIs(t, err, identity.ErrCredentialsNotFound, "sftp credentials should not survive delete")

	require.ErrorIs(t, store.DeleteUser(ctx, user.ID), identity.ErrUserNotFound, "double delete")
}

func (s *StoreTestSuite) testListUsers(t *testing.T) {
	store := s.open(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.CreateUser(ctx, newUser(fmt.Sprintf("user%02d", i))))
	}
	require.NoError(t, store.CreateUser(ctx, newUser("zoe")))

	users, total, err := store.ListUsers(ctx, identity.ListOptions{Page: 1, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	require.Len(t, users, 4)
	assert.Equal(t, "user00", users[0].Username, "listing should be sorted by username")

	users, total, err = store.ListUsers(ctx, identity.ListOptions{Page: 2, Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Len(t, users, 2)

	users, total, err = store.ListUsers(ctx, identity.ListOptions{Search: "ZOE"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "zoe", users[0].Username)
}

func (s *StoreTestSuite) testReplaceGrants(t *testing.T) {
	store := s.open(t)
	ctx := context.Background()

	user := newUser("frank")
	require.NoError(t, store.CreateUser(ctx, user))

	first := []identity.Grant{
		{FolderPath: "/shared/a", Permission: vfs.PermissionRead, Active: true},
		{FolderPath: "/shared/b", Permission: vfs.PermissionWrite, Active: true},
	}
	require.NoError(t, store.ReplaceGrants(ctx, user.ID, first))

	grants, err := store.ListGrants(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "/shared/a", grants[0].FolderPath)
	for _, g := range grants {
		assert.NotEmpty(t, g.ID, "grant id should be assigned")
		assert.Equal(t, user.ID, g.UserID)
	}

	// replacement swaps the whole set, not a merge
	second := []identity.Grant{
		{FolderPath: "/shared/c", Permission: vfs.PermissionFull, Active: false},
	}
	require.NoError(t, store.ReplaceGrants(ctx, user.ID, second))

	grants, err = store.ListGrants(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "/shared/c", grants[0].FolderPath)
	assert.False(t, grants[0].Active)

	require.ErrorIs(t, store.ReplaceGrants(ctx, "missing", first), identity.ErrUserNotFound)
}

func (s *StoreTestSuite) testSFTPCredentials(t *testing.T) {
	store := s.open(t)
	ctx := context.Background()

	user := newUser("grace")
	require.NoError(t, store.CreateUser(ctx, user))

	creds := &identity.SFTPCredentials{
		UserID:        user.ID,
		Username:      user.Username,
		AuthorizedKey: "ssh-rsa AAAA... grace",
		Fingerprint:   "SHA256:abcdef",
		Enabled:       true,
	}
	require.NoError(t, store.PutSFTPCredentials(ctx, creds))
	require.False(t, creds.ProvisionedAt.IsZero(), "ProvisionedAt should be set")

	got, err := store.GetSFTPCredentials(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "SHA256:abcdef", got.Fingerprint)
	assert.True(t, got.Enabled)

	require.NoError(t, store.DeleteSFTPCredentials(ctx, user.ID))
	_, err = store.GetSFTPCredentials(ctx, user.ID)
	require.ErrorIs(t, err, identity.ErrCredentialsNotFound)

	// deleting again is fine
	require.NoError(t, store.DeleteSFTPCredentials(ctx, user.ID))

	err = store.PutSFTPCredentials(ctx, &identity.SFTPCredentials{UserID: "missing"})
	require.ErrorIs(t, err, identity.ErrUserNotFound)
}
