package sftp

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrConnectionNotFound indicates the connection id is unknown or already
// closed.
//
// Protocol Mapping:
//   - HTTP: 404 Not Found
var ErrConnectionNotFound = errors.New("sftp connection not found")

// Connection is one live SFTP session.
type Connection struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	RemoteAddr string    `json:"remote_addr"`
	OpenedAt   time.Time `json:"opened_at"`
}

// Registry tracks live SFTP connections with an explicit create/get/close
// lifecycle. It is owned by the request-handling layer and passed by
// handle, never consulted as ambient global state. Thread-safe.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{connections: make(map[string]*Connection)}
}

// Open records a new connection and returns its handle.
func (r *Registry) Open(userID, username, remoteAddr string) *Connection {
	conn := &Connection{
		ID:         uuid.NewString(),
		UserID:     userID,
		Username:   username,
		RemoteAddr: remoteAddr,
		OpenedAt:   time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID] = conn
	return conn
}

// Get returns a live connection by id.
func (r *Registry) Get(id string) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[id]
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", id, ErrConnectionNotFound)
	}
	return conn, nil
}

// Close removes a connection. Closing an unknown or already-closed id is an
// error so callers notice double closes.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[id]; !ok {
		return fmt.Errorf("connection %s: %w", id, ErrConnectionNotFound)
	}
	delete(r.connections, id)
	return nil
}

// List returns the live connections sorted by open time, newest first.
func (r *Registry) List() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.connections))
	for _, c := range r.connections {
		conns = append(conns, c)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].OpenedAt.After(conns[j].OpenedAt) })
	return conns
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
