package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/stratafs/stratafs/pkg/identity"
)

// ReplaceGrants swaps the user's whole grant set in one transaction: the
// existing range is dropped and the new grants written. Grant ids and
// timestamps are assigned here when missing.
func (s *Store) ReplaceGrants(ctx context.Context, userID string, grants []identity.Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyUser(userID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("user %s: %w", userID, identity.ErrUserNotFound)
			}
			return err
		}

		if err := deletePrefix(txn, keyGrantScan(userID)); err != nil {
			return fmt.Errorf("drop grants for %s: %w", userID, err)
		}

		now := time.Now().UTC()
		for i := range grants {
			g := &grants[i]
			g.UserID = userID
			if g.ID == "" {
				g.ID = uuid.NewString()
			}
			if g.CreatedAt.IsZero() {
				g.CreatedAt = now
			}
			data, err := json.Marshal(g)
			if err != nil {
				return fmt.Errorf("marshal grant %s: %w", g.ID, err)
			}
			if err := txn.Set(keyGrant(userID, g.ID), data); err != nil {
				return fmt.Errorf("store grant %s: %w", g.ID, err)
			}
		}
		return nil
	})
}

// ListGrants returns the user's grants sorted by folder path.
func (s *Store) ListGrants(ctx context.Context, userID string) ([]identity.Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var grants []identity.Grant
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := keyGrantScan(userID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var g identity.Grant
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &g)
			}); err != nil {
				return err
			}
			grants = append(grants, g)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list grants for %s: %w", userID, err)
	}

	sort.Slice(grants, func(i, j int) bool { return grants[i].FolderPath < grants[j].FolderPath })
	return grants, nil
}
