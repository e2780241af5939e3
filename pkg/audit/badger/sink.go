// Package badger implements audit.Sink on BadgerDB.
//
// Events are stored under time-ordered keys so queries are range scans in
// reverse chronological order.
//
// Key Namespace:
//
// Data Type       Prefix  Key Format                      Value Type
// =====================================================================
// Activity Event  "e:"    e:<unix-nano-padded>:<eventID>  Event (JSON)
//
// The timestamp is zero-padded to 19 digits so lexicographic key order is
// chronological order; the event id suffix keeps keys unique when two
// events share a nanosecond.
package badger

import (
	"context"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/stratafs/stratafs/pkg/audit"
)

const prefixEvent = "e:"

// keyEvent generates the time-ordered key for an event.
func keyEvent(e *audit.Event) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", prefixEvent, e.Timestamp.UnixNano(), e.ID))
}

// Config configures the BadgerDB audit sink.
type Config struct {
	// DBPath is the directory holding the database files. Ignored when
	// InMemory is set.
	DBPath string

	// InMemory runs the database without persistence. Used by tests.
	InMemory bool
}

// Sink implements audit.Sink.
type Sink struct {
	db *badger.DB
}

var _ audit.Sink = (*Sink)(nil)

// New opens the audit database.
func New(ctx context.Context, config Config) (*Sink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(config.DBPath)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit database at %s: %w", config.DBPath, err)
	}

	return &Sink{db: db}, nil
}

// Record appends one event.
func (s *Sink) Record(ctx context.Context, event *audit.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyEvent(event), data)
	})
}

// Close flushes and closes the database.
func (s *Sink) Close() error {
	return s.db.Close()
}
