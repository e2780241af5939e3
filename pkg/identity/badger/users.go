package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/stratafs/stratafs/pkg/identity"
)

// userRecord is the on-disk shape of a user. identity.User hides the
// password hash from JSON, so the store carries it in its own field.
type userRecord struct {
	identity.User
	PasswordHash string `json:"password_hash"`
}

func recordFromUser(u *identity.User) userRecord {
	return userRecord{User: *u, PasswordHash: u.PasswordHash}
}

func (r userRecord) toUser() *identity.User {
	u := r.User
	u.PasswordHash = r.PasswordHash
	return &u
}

// CreateUser persists a new user. The username index is written in the same
// transaction, so a duplicate name fails atomically with
// identity.ErrDuplicateUsername.
func (s *Store) CreateUser(ctx context.Context, user *identity.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(keyUsername(user.Username))
		if err == nil {
			return fmt.Errorf("username %s: %w", user.Username, identity.ErrDuplicateUsername)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check username %s: %w", user.Username, err)
		}

		data, err := json.Marshal(recordFromUser(user))
		if err != nil {
			return fmt.Errorf("marshal user %s: %w", user.ID, err)
		}
		if err := txn.Set(keyUser(user.ID), data); err != nil {
			return fmt.Errorf("store user %s: %w", user.ID, err)
		}
		if err := txn.Set(keyUsername(user.Username), []byte(user.ID)); err != nil {
			return fmt.Errorf("index username %s: %w", user.Username, err)
		}
		return nil
	})
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*identity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keyUser(id), &rec)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, identity.ErrUserNotFound)
		}
		return nil, err
	}
	return rec.toUser(), nil
}

// GetUserByUsername resolves the username index and fetches the user.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*identity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyUsername(username))
		if err != nil {
			return err
		}
		return item.Value(func(idBytes []byte) error {
			return getJSON(txn, keyUser(string(idBytes)), &rec)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("user %s: %w", username, identity.ErrUserNotFound)
		}
		return nil, err
	}
	return rec.toUser(), nil
}

// UpdateUser rewrites a user record, maintaining the username index when the
// name changed.
func (s *Store) UpdateUser(ctx context.Context, user *identity.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	user.UpdatedAt = time.Now().UTC()

	return s.db.Update(func(txn *badger.Txn) error {
		var current userRecord
		if err := getJSON(txn, keyUser(user.ID), &current); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("user %s: %w", user.ID, identity.ErrUserNotFound)
			}
			return err
		}

		if current.Username != user.Username {
			if _, err := txn.Get(keyUsername(user.Username)); err == nil {
				return fmt.Errorf("username %s: %w", user.Username, identity.ErrDuplicateUsername)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("check username %s: %w", user.Username, err)
			}
			if err := txn.Delete(keyUsername(current.Username)); err != nil {
				return fmt.Errorf("drop username index %s: %w", current.Username, err)
			}
			if err := txn.Set(keyUsername(user.Username), []byte(user.ID)); err != nil {
				return fmt.Errorf("index username %s: %w", user.Username, err)
			}
		}

		user.CreatedAt = current.CreatedAt
		data, err := json.Marshal(recordFromUser(user))
		if err != nil {
			return fmt.Errorf("marshal user %s: %w", user.ID, err)
		}
		return txn.Set(keyUser(user.ID), data)
	})
}

// DeleteUser removes a user, cascading to the username index, every grant
// and the SFTP credentials in one transaction.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		var user userRecord
		if err := getJSON(txn, keyUser(id), &user); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("user %s: %w", id, identity.ErrUserNotFound)
			}
			return err
		}

		if err := txn.Delete(keyUser(id)); err != nil {
			return fmt.Errorf("delete user %s: %w", id, err)
		}
		if err := txn.Delete(keyUsername(user.Username)); err != nil {
			return fmt.Errorf("drop username index %s: %w", user.Username, err)
		}
		if err := deletePrefix(txn, keyGrantScan(id)); err != nil {
			return fmt.Errorf("cascade grants for %s: %w", id, err)
		}
		if err := txn.Delete(keySFTPCreds(id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("cascade sftp credentials for %s: %w", id, err)
		}
		return nil
	})
}

// ListUsers scans all user records, filters by the search term and
// paginates. The scan is acceptable at the fleet sizes this store targets;
// it is not meant for millions of accounts.
func (s *Store) ListUsers(ctx context.Context, opts identity.ListOptions) ([]*identity.User, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	search := strings.ToLower(strings.TrimSpace(opts.Search))

	var users []*identity.User
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixUser)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec userRecord
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return err
			}
			if search != "" &&
				!strings.Contains(strings.ToLower(rec.Username), search) &&
				!strings.Contains(strings.ToLower(rec.Email), search) {
				continue
			}
			users = append(users, rec.toUser())
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
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

// getJSON reads and unmarshals one value inside a transaction.
func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(v []byte) error {
		return json.Unmarshal(v, out)
	})
}

// deletePrefix drops every key under prefix within the transaction.
func deletePrefix(txn *badger.Txn, prefix []byte) error {
	it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
