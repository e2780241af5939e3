// Package badger implements identity.Store on BadgerDB.
//
// The store is suitable for single-node deployments that need users, grants
// and SFTP credentials to survive restarts without running an external
// database. See keys.go for the key namespace schema.
package badger

import (
	"context"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/stratafs/stratafs/pkg/identity"
)

// Config configures the BadgerDB identity store.
type Config struct {
	// DBPath is the directory holding the database files. Ignored when
	// InMemory is set.
	DBPath string

	// InMemory runs the database without persistence. Used by tests.
	InMemory bool
}

// Store implements identity.Store. BadgerDB transactions give the
// read-modify-write operations (create with uniqueness check, cascade
// delete) their atomicity; no additional locking is needed.
type Store struct {
	db *badger.DB
}

var _ identity.Store = (*Store)(nil)

// New opens the identity database.
func New(ctx context.Context, config Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(config.DBPath)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	// identity records are tiny; compression overhead is not worth it
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open identity database at %s: %w", config.DBPath, err)
	}

	return &Store{db: db}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
