// Package memory provides an in-memory object.Store used by tests and
// local development.
//
// Besides the plain store behavior it supports fault injection: tests can
// register per-key, per-operation failures to exercise partial-failure paths
// (for example the copy-succeeded-delete-failed move case).
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stratafs/stratafs/pkg/store/object"
)

// Op names an operation for fault injection.
type Op string

const (
	OpList   Op = "list"
	OpGet    Op = "get"
	OpPut    Op = "put"
	OpDelete Op = "delete"
	OpCopy   Op = "copy"
	OpHead   Op = "head"
)

type entry struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// Store is an in-memory object store. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	objects map[string]entry
	faults  map[string]error // "<op>:<key>" -> injected error
	clock   func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		objects: make(map[string]entry),
		faults:  make(map[string]error),
		clock:   time.Now,
	}
}

// FailWith injects an error for the given operation and key. The fault stays
// armed until cleared with ClearFaults.
func (s *Store) FailWith(op Op, key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[string(op)+":"+key] = err
}

// ClearFaults removes all injected faults.
func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[string]error)
}

// Seed stores an object without going through Put (no fault checks).
func (s *Store) Seed(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = entry{data: data, lastModified: s.clock()}
}

// Keys returns all stored keys, sorted. Test helper.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) fault(op Op, key string) error {
	if err, ok := s.faults[string(op)+":"+key]; ok {
		return err
	}
	return nil
}

// List returns every key starting with prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]object.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fault(OpList, prefix); err != nil {
		return nil, err
	}

	var infos []object.Info
	for k, e := range s.objects {
		if strings.HasPrefix(k, prefix) {
			infos = append(infos, object.Info{
				Key:          k,
				Size:         int64(len(e.data)),
				LastModified: e.lastModified,
			})
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// ListCommonPrefixes returns the first-level prefixes under prefix.
func (s *Store) ListCommonPrefixes(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var prefixes []string
	for k := range s.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := k[len(prefix):]
		idx := strings.Index(rest, "/")
		if idx < 0 {
			continue
		}
		cp := prefix + rest[:idx+1]
		if !seen[cp] {
			seen[cp] = true
			prefixes = append(prefixes, cp)
		}
	}

	sort.Strings(prefixes)
	return prefixes, nil
}

// Get returns a reader over the stored bytes.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fault(OpGet, key); err != nil {
		return nil, err
	}

	e, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, object.ErrObjectNotFound)
	}

	return io.NopCloser(bytes.NewReader(e.data)), nil
}

// Put stores the object.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fault(OpPut, key); err != nil {
		return err
	}

	s.objects[key] = entry{data: data, contentType: contentType, lastModified: s.clock()}
	return nil
}

// Delete removes the object. Idempotent.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fault(OpDelete, key); err != nil {
		return err
	}

	delete(s.objects, key)
	return nil
}

// DeleteMany removes keys one by one, collecting per-key failures.
func (s *Store) DeleteMany(ctx context.Context, keys []string) ([]string, map[string]error, error) {
	deleted := make([]string, 0, len(keys))
	failed := make(map[string]error)

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			for _, rest := range keys[len(deleted)+len(failed):] {
				failed[rest] = err
			}
			return deleted, failed, err
		}
		if err := s.Delete(ctx, k); err != nil {
			failed[k] = err
			continue
		}
		deleted = append(deleted, k)
	}

	return deleted, failed, nil
}

// Copy duplicates src to dst.
func (s *Store) Copy(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fault(OpCopy, src); err != nil {
		return err
	}

	e, ok := s.objects[src]
	if !ok {
		return fmt.Errorf("object %s: %w", src, object.ErrObjectNotFound)
	}

	dup := make([]byte, len(e.data))
	copy(dup, e.data)
	s.objects[dst] = entry{data: dup, contentType: e.contentType, lastModified: s.clock()}
	return nil
}

// Head returns object metadata.
func (s *Store) Head(ctx context.Context, key string) (*object.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fault(OpHead, key); err != nil {
		return nil, err
	}

	e, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, object.ErrObjectNotFound)
	}

	return &object.Metadata{
		Size:         int64(len(e.data)),
		LastModified: e.lastModified,
		ContentType:  e.contentType,
	}, nil
}

// Exists reports whether the key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Head(ctx, key)
	if err != nil {
		if errors.Is(err, object.ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
