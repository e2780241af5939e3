// Package memory provides an in-memory identity.Store used by tests and
// local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratafs/stratafs/pkg/identity"
)

// Store is an in-memory identity.Store. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	users  map[string]identity.User
	byName map[string]string
	grants map[string][]identity.Grant
	sftp   map[string]identity.SFTPCredentials
}

var _ identity.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:  make(map[string]identity.User),
		byName: make(map[string]string),
		grants: make(map[string][]identity.Grant),
		sftp:   make(map[string]identity.SFTPCredentials),
	}
}

func (s *Store) CreateUser(ctx context.Context, user *identity.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byName[user.Username]; taken {
		return fmt.Errorf("username %s: %w", user.Username, identity.ErrDuplicateUsername)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	s.users[user.ID] = *user
	s.byName[user.Username] = user.ID
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*identity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, identity.ErrUserNotFound)
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*identity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[username]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", username, identity.ErrUserNotFound)
	}
	user := s.users[id]
	return &user, nil
}

func (s *Store) UpdateUser(ctx context.Context, user *identity.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[user.ID]
	if !ok {
		return fmt.Errorf("user %s: %w", user.ID, identity.ErrUserNotFound)
	}
	if current.Username != user.Username {
		if _, taken := s.byName[user.Username]; taken {
			return fmt.Errorf("username %s: %w", user.Username, identity.ErrDuplicateUsername)
		}
		delete(s.byName, current.Username)
		s.byName[user.Username] = user.ID
	}

	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = *user
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, identity.ErrUserNotFound)
	}

	delete(s.users, id)
	delete(s.byName, user.Username)
	delete(s.grants, id)
	delete(s.sftp, id)
	return nil
}

func (s *Store) ListUsers(ctx context.Context, opts identity.ListOptions) ([]*identity.User, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(opts.Search))

	var users []*identity.User
	for _, u := range s.users {
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Username), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		user := u
		users = append(users, &user)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	total := len(users)

	page, limit := opts.Page, opts.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	start := (page - 1) * limit
	if start >= total {
		return []*identity.User{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return users[start:end], total, nil
}

func (s *Store) ReplaceGrants(ctx context.Context, userID string, grants []identity.Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("user %s: %w", userID, identity.ErrUserNotFound)
	}

	now := time.Now().UTC()
	stored := make([]identity.Grant, len(grants))
	for i, g := range grants {
		g.UserID = userID
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		if g.CreatedAt.IsZero() {
			g.CreatedAt = now
		}
		stored[i] = g
	}
	s.grants[userID] = stored
	return nil
}

func (s *Store) ListGrants(ctx context.Context, userID string) ([]identity.Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	grants := make([]identity.Grant, len(s.grants[userID]))
	copy(grants, s.grants[userID])
	sort.Slice(grants, func(i, j int) bool { return grants[i].FolderPath < grants[j].FolderPath })
	return grants, nil
}

func (s *Store) PutSFTPCredentials(ctx context.Context, creds *identity.SFTPCredentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[creds.UserID]; !ok {
		return fmt.Errorf("user %s: %w", creds.UserID, identity.ErrUserNotFound)
	}
	if creds.ProvisionedAt.IsZero() {
		creds.ProvisionedAt = time.Now().UTC()
	}
	s.sftp[creds.UserID] = *creds
	return nil
}

func (s *Store) GetSFTPCredentials(ctx context.Context, userID string) (*identity.SFTPCredentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	creds, ok := s.sftp[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, identity.ErrCredentialsNotFound)
	}
	return &creds, nil
}

func (s *Store) DeleteSFTPCredentials(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sftp, userID)
	return nil
}

func (s *Store) Close() error {
	return nil
}
