package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/stratafs/stratafs/pkg/identity"
)

// PutSFTPCredentials stores or replaces the user's SFTP provisioning
// record.
func (s *Store) PutSFTPCredentials(ctx context.Context, creds *identity.SFTPCredentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if creds.ProvisionedAt.IsZero() {
		creds.ProvisionedAt = time.Now().UTC()
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyUser(creds.UserID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("user %s: %w", creds.UserID, identity.ErrUserNotFound)
			}
			return err
		}

		data, err := json.Marshal(creds)
		if err != nil {
			return fmt.Errorf("marshal sftp credentials for %s: %w", creds.UserID, err)
		}
		return txn.Set(keySFTPCreds(creds.UserID), data)
	})
}

// GetSFTPCredentials fetches the user's SFTP provisioning record.
func (s *Store) GetSFTPCredentials(ctx context.Context, userID string) (*identity.SFTPCredentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var creds identity.SFTPCredentials
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keySFTPCreds(userID), &creds)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, identity.ErrCredentialsNotFound)
		}
		return nil, err
	}
	return &creds, nil
}

// DeleteSFTPCredentials removes the record. Deleting a missing record is not
// an error.
func (s *Store) DeleteSFTPCredentials(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(keySFTPCreds(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
