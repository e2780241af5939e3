package vfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/carlmjohnson/workgroup"
	"github.com/rs/zerolog/log"

	"github.com/stratafs/stratafs/pkg/store/object"
)

// folderPlaceholderType marks the zero-byte keys that anchor empty folders.
const folderPlaceholderType = "application/x-directory"

// defaultFolderWorkers bounds per-key parallelism inside a folder operation.
const defaultFolderWorkers = 4

// BatchError is one failed item of a batch operation.
type BatchError struct {
	ID  string
	Err error
}

// BatchResult accumulates per-item outcomes. A batch never fails as a whole
// because one item failed; mixed outcomes are the normal contract.
type BatchResult struct {
	Succeeded []string
	Errors    []BatchError
}

func (r *BatchResult) ok(id string) {
	r.Succeeded = append(r.Succeeded, id)
}

func (r *BatchResult) fail(id string, err error) {
	r.Errors = append(r.Errors, BatchError{ID: id, Err: err})
}

// Mutator executes delete, move, copy, rename, upload and folder creation
// against the store, atomically per item but never across items. Two
// concurrent mutations of the same object are not coordinated; last write
// wins.
type Mutator struct {
	store   object.Store
	workers int
}

// NewMutator creates a mutator. workers bounds the per-key parallelism of
// folder-wide operations; values below 1 fall back to the default.
func NewMutator(store object.Store, workers int) *Mutator {
	if workers < 1 {
		workers = defaultFolderWorkers
	}
	return &Mutator{store: store, workers: workers}
}

// Delete removes the entries named by ids. File ids are batched through the
// store's native multi-key delete; each folder id is enumerated and deleted
// as one item. Per-item failures never abort sibling items.
func (m *Mutator) Delete(ctx context.Context, principal Principal, ids []string) *BatchResult {
	res := &BatchResult{}

	var fileKeys []string
	idByKey := make(map[string]string)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			res.fail(id, err)
			continue
		}

		kind, keyOrPrefix, err := DecodeID(id)
		if err != nil {
			res.fail(id, err)
			continue
		}
		if d := Authorize(principal, LogicalPath(keyOrPrefix), PermissionWrite); !d.Allowed {
			res.fail(id, d.Err(LogicalPath(keyOrPrefix)))
			continue
		}

		if kind == KindFile {
			fileKeys = append(fileKeys, keyOrPrefix)
			idByKey[keyOrPrefix] = id
			continue
		}

		if err := m.deleteFolder(ctx, keyOrPrefix); err != nil {
			res.fail(id, err)
			continue
		}
		res.ok(id)
	}

	if len(fileKeys) > 0 {
		deleted, failed, err := m.store.DeleteMany(ctx, fileKeys)
		for _, k := range deleted {
			res.ok(idByKey[k])
		}
		for k, kerr := range failed {
			res.fail(idByKey[k], wrapStoreErr(fmt.Errorf("delete %s: %w", k, kerr)))
		}
		if err != nil {
			for _, k := range fileKeys {
				if _, infailed := failed[k]; !infailed && !contains(deleted, k) {
					res.fail(idByKey[k], err)
				}
			}
		}
	}

	log.Debug().Int("succeeded", len(res.Succeeded)).Int("failed", len(res.Errors)).
		Msg("batch delete completed")
	return res
}

func (m *Mutator) deleteFolder(ctx context.Context, prefix string) error {
	infos, err := m.store.List(ctx, prefix)
	if err != nil {
		return wrapStoreErr(fmt.Errorf("list %s: %w", prefix, err))
	}
	if len(infos) == 0 {
		return nil
	}

	keys := make([]string, len(infos))
	for i, info := range infos {
		keys[i] = info.Key
	}

	_, failed, err := m.store.DeleteMany(ctx, keys)
	if err != nil {
		return wrapStoreErr(fmt.Errorf("delete under %s: %w", prefix, err))
	}
	for k, kerr := range failed {
		return wrapStoreErr(fmt.Errorf("delete %s under %s: %w", k, prefix, kerr))
	}
	return nil
}

// Move relocates the entries named by ids under targetPath. Each move is a
// copy followed by a source delete; when the copy succeeds and the delete
// fails, the object exists at both locations and the item is reported
// failed, never silently treated as moved. The duplicate is the caller's
// cleanup responsibility.
//
// A denied or invalid target fails the whole request; per-item failures do
// not.
func (m *Mutator) Move(ctx context.Context, principal Principal, ids []string, targetPath string) (*BatchResult, error) {
	return m.transfer(ctx, principal, ids, targetPath, true)
}

// Copy duplicates the entries named by ids under targetPath with the same
// batch contract as Move, minus the source delete.
func (m *Mutator) Copy(ctx context.Context, principal Principal, ids []string, targetPath string) (*BatchResult, error) {
	return m.transfer(ctx, principal, ids, targetPath, false)
}

func (m *Mutator) transfer(ctx context.Context, principal Principal, ids []string, targetPath string, deleteSource bool) (*BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := NormalizePath(targetPath)
	if d := Authorize(principal, target, PermissionWrite); !d.Allowed {
		return nil, d.Err(target)
	}
	targetPrefix := ToPrefix(target)

	srcPerm := PermissionRead
	if deleteSource {
		srcPerm = PermissionWrite
	}

	res := &BatchResult{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			res.fail(id, err)
			continue
		}

		kind, keyOrPrefix, err := DecodeID(id)
		if err != nil {
			res.fail(id, err)
			continue
		}
		if d := Authorize(principal, LogicalPath(keyOrPrefix), srcPerm); !d.Allowed {
			res.fail(id, d.Err(LogicalPath(keyOrPrefix)))
			continue
		}

		if kind == KindFile {
			err = m.transferFile(ctx, keyOrPrefix, targetPrefix+BaseName(keyOrPrefix), deleteSource)
		} else {
			err = m.transferFolder(ctx, keyOrPrefix, targetPrefix, deleteSource)
		}
		if err != nil {
			res.fail(id, err)
			continue
		}
		res.ok(id)
	}

	return res, nil
}

func (m *Mutator) transferFile(ctx context.Context, src, dst string, deleteSource bool) error {
	if src == dst {
		return nil
	}
	if err := m.store.Copy(ctx, src, dst); err != nil {
		return wrapStoreErr(fmt.Errorf("copy %s to %s: %w", src, dst, err))
	}
	if !deleteSource {
		return nil
	}
	if err := m.store.Delete(ctx, src); err != nil {
		// Copy landed but the source survived: the object now exists at both
		// locations. Reported as a failure for this item.
		return wrapStoreErr(fmt.Errorf("source %s not removed after copy to %s, duplicate remains: %w", src, dst, err))
	}
	return nil
}

func (m *Mutator) transferFolder(ctx context.Context, srcPrefix, targetPrefix string, deleteSource bool) error {
	return m.copyTree(ctx, srcPrefix, targetPrefix+BaseName(srcPrefix)+"/", deleteSource)
}

// copyTree duplicates every key under srcPrefix to the same relative
// position under dstPrefix, bounded-parallel, and optionally removes the
// sources afterwards. Only the sources whose copy succeeded are deleted.
func (m *Mutator) copyTree(ctx context.Context, srcPrefix, dstPrefix string, deleteSource bool) error {
	if srcPrefix == dstPrefix {
		return nil
	}
	if strings.HasPrefix(dstPrefix, srcPrefix) {
		return fmt.Errorf("cannot place %s inside itself: %w", LogicalPath(srcPrefix), ErrMalformedID)
	}

	infos, err := m.store.List(ctx, srcPrefix)
	if err != nil {
		return wrapStoreErr(fmt.Errorf("list %s: %w", srcPrefix, err))
	}
	if len(infos) == 0 {
		// nothing on the store side: just anchor the destination
		return wrapStoreErr(m.store.Put(ctx, dstPrefix, bytes.NewReader(nil), folderPlaceholderType))
	}

	keys := make([]string, len(infos))
	for i, info := range infos {
		keys[i] = info.Key
	}

	var copyErrs []error
	copied := make([]string, 0, len(keys))
	task := func(key string) (struct{}, error) {
		return struct{}{}, m.store.Copy(ctx, key, dstPrefix+strings.TrimPrefix(key, srcPrefix))
	}
	manager := func(key string, _ struct{}, err error) ([]string, error) {
		if err != nil {
			copyErrs = append(copyErrs, fmt.Errorf("copy %s: %w", key, err))
			return nil, nil
		}
		copied = append(copied, key)
		return nil, nil
	}
	if err := workgroup.Do(m.workers, task, manager, keys...); err != nil {
		return wrapStoreErr(fmt.Errorf("copy under %s: %w", srcPrefix, err))
	}
	if len(copyErrs) > 0 {
		return wrapStoreErr(fmt.Errorf("copy under %s: %w", srcPrefix, copyErrs[0]))
	}

	if !deleteSource {
		return nil
	}

	_, failed, err := m.store.DeleteMany(ctx, copied)
	if err != nil {
		return wrapStoreErr(fmt.Errorf("source under %s not removed after copy, duplicates remain: %w", srcPrefix, err))
	}
	for k, kerr := range failed {
		return wrapStoreErr(fmt.Errorf("source %s not removed after copy, duplicate remains: %w", k, kerr))
	}
	return nil
}

// Rename gives the entry named by id a new name within its parent. Renames
// are copy-then-delete like moves; a surviving source after a failed delete
// is surfaced as the operation's error.
func (m *Mutator) Rename(ctx context.Context, principal Principal, id, newName string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidName(newName) {
		return nil, fmt.Errorf("invalid name %q: %w", newName, ErrMalformedID)
	}

	kind, keyOrPrefix, err := DecodeID(id)
	if err != nil {
		return nil, err
	}
	if d := Authorize(principal, LogicalPath(keyOrPrefix), PermissionWrite); !d.Allowed {
		return nil, d.Err(LogicalPath(keyOrPrefix))
	}

	if kind == KindFile {
		return m.renameFile(ctx, keyOrPrefix, newName)
	}
	return m.renameFolder(ctx, keyOrPrefix, newName)
}

func (m *Mutator) renameFile(ctx context.Context, key, newName string) (*Entry, error) {
	dst := ParentPrefix(key) + newName
	if dst == key {
		return m.fileEntry(ctx, key)
	}

	exists, err := m.store.Exists(ctx, dst)
	if err != nil {
		return nil, wrapStoreErr(fmt.Errorf("check %s: %w", dst, err))
	}
	if exists {
		return nil, fmt.Errorf("%s: %w", LogicalPath(dst), ErrAlreadyExists)
	}

	if err := m.transferFile(ctx, key, dst, true); err != nil {
		return nil, err
	}
	return m.fileEntry(ctx, dst)
}

func (m *Mutator) renameFolder(ctx context.Context, srcPrefix, newName string) (*Entry, error) {
	dstPrefix := ParentPrefix(srcPrefix) + newName + "/"
	if dstPrefix == srcPrefix {
		e := folderEntry(LogicalPath(srcPrefix))
		return &e, nil
	}

	occupied, err := m.store.List(ctx, dstPrefix)
	if err != nil {
		return nil, wrapStoreErr(fmt.Errorf("check %s: %w", dstPrefix, err))
	}
	if len(occupied) > 0 {
		return nil, fmt.Errorf("%s: %w", LogicalPath(dstPrefix), ErrAlreadyExists)
	}

	if err := m.copyTree(ctx, srcPrefix, dstPrefix, true); err != nil {
		return nil, err
	}

	e := folderEntry(LogicalPath(dstPrefix))
	return &e, nil
}

// CreateFolder anchors a new empty folder under parentPath with a zero-byte
// placeholder key.
func (m *Mutator) CreateFolder(ctx context.Context, principal Principal, parentPath, name string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidName(name) {
		return nil, fmt.Errorf("invalid name %q: %w", name, ErrMalformedID)
	}

	parent := NormalizePath(parentPath)
	if d := Authorize(principal, parent, PermissionWrite); !d.Allowed {
		return nil, d.Err(parent)
	}

	logical := joinLogical(parent, name)
	prefix := ToPrefix(logical)

	existing, err := m.store.List(ctx, prefix)
	if err != nil {
		return nil, wrapStoreErr(fmt.Errorf("check %s: %w", prefix, err))
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%s: %w", logical, ErrAlreadyExists)
	}

	if err := m.store.Put(ctx, prefix, bytes.NewReader(nil), folderPlaceholderType); err != nil {
		return nil, wrapStoreErr(fmt.Errorf("create %s: %w", prefix, err))
	}

	e := folderEntry(logical)
	return &e, nil
}

// Upload stores a new object named name under parentPath, replacing any
// existing object with the same key. size is informational for the returned
// entry; the body is streamed to the store.
func (m *Mutator) Upload(ctx context.Context, principal Principal, parentPath, name string, body io.Reader, size int64, contentType string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidName(name) {
		return nil, fmt.Errorf("invalid name %q: %w", name, ErrMalformedID)
	}

	parent := NormalizePath(parentPath)
	if d := Authorize(principal, parent, PermissionWrite); !d.Allowed {
		return nil, d.Err(parent)
	}

	key := ToPrefix(parent) + name
	if contentType == "" {
		contentType = MIMEType(name)
	}

	if err := m.store.Put(ctx, key, body, contentType); err != nil {
		return nil, wrapStoreErr(fmt.Errorf("put %s: %w", key, err))
	}

	return &Entry{
		ID:       EncodeID(KindFile, key),
		Name:     name,
		Path:     joinLogical(parent, name),
		Kind:     KindFile,
		Size:     size,
		MIMEType: contentType,
	}, nil
}

func (m *Mutator) fileEntry(ctx context.Context, key string) (*Entry, error) {
	meta, err := m.store.Head(ctx, key)
	if err != nil {
		return nil, wrapStoreErr(fmt.Errorf("head %s: %w", key, err))
	}
	name := BaseName(key)
	return &Entry{
		ID:           EncodeID(KindFile, key),
		Name:         name,
		Path:         LogicalPath(key),
		Kind:         KindFile,
		Size:         meta.Size,
		LastModified: meta.LastModified,
		MIMEType:     MIMEType(name),
	}, nil
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
