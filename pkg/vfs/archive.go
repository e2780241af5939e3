package vfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/stratafs/stratafs/pkg/store/object"
)

// Open returns a reader over a single file entry's bytes together with its
// metadata. The caller closes the reader.
func (p *Projector) Open(ctx context.Context, principal Principal, id string) (io.ReadCloser, *Entry, error) {
	entry, err := p.Stat(ctx, principal, id)
	if err != nil {
		return nil, nil, err
	}

	_, key, _ := DecodeID(id)
	rc, err := p.store.Get(ctx, key)
	if err != nil {
		return nil, nil, wrapStoreErr(fmt.Errorf("get %s: %w", key, err))
	}
	return rc, entry, nil
}

// Stat resolves a file id to its entry without fetching the body.
func (p *Projector) Stat(ctx context.Context, principal Principal, id string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kind, key, err := DecodeID(id)
	if err != nil {
		return nil, err
	}
	if kind != KindFile {
		return nil, fmt.Errorf("id %q does not name a file: %w", id, ErrMalformedID)
	}
	if d := Authorize(principal, LogicalPath(key), PermissionRead); !d.Allowed {
		return nil, d.Err(LogicalPath(key))
	}

	meta, err := p.store.Head(ctx, key)
	if err != nil {
		return nil, wrapStoreErr(fmt.Errorf("head %s: %w", key, err))
	}

	name := BaseName(key)
	return &Entry{
		ID:           id,
		Name:         name,
		Path:         LogicalPath(key),
		Kind:         KindFile,
		Size:         meta.Size,
		LastModified: meta.LastModified,
		MIMEType:     MIMEType(name),
	}, nil
}

// PresignDownload mints a time-limited direct URL for a file entry when the
// store supports it.
func (p *Projector) PresignDownload(ctx context.Context, principal Principal, id string, expires int64) (string, error) {
	if _, err := p.Stat(ctx, principal, id); err != nil {
		return "", err
	}

	presigner, ok := p.store.(object.Presigner)
	if !ok {
		return "", fmt.Errorf("presigned downloads: %w", ErrStorageUnavailable)
	}

	_, key, _ := DecodeID(id)
	url, err := presigner.PresignGet(ctx, key, time.Duration(expires)*time.Second)
	if err != nil {
		return "", wrapStoreErr(fmt.Errorf("presign %s: %w", key, err))
	}
	return url, nil
}

// WriteArchive streams every object under the folder id into a zip archive
// written to w. Each archive entry is named by its path relative to the
// folder prefix. A prefix with zero backing objects is ErrNotFound; this is
// deliberately stricter than listing the same prefix, which returns an empty
// success. Downloading nothing is treated as a caller mistake, listing
// nothing is a normal browse.
func (p *Projector) WriteArchive(ctx context.Context, principal Principal, id string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	kind, prefix, err := DecodeID(id)
	if err != nil {
		return err
	}
	if kind != KindFolder {
		return fmt.Errorf("id %q does not name a folder: %w", id, ErrMalformedID)
	}
	if d := Authorize(principal, LogicalPath(prefix), PermissionRead); !d.Allowed {
		return d.Err(LogicalPath(prefix))
	}

	infos, err := p.store.List(ctx, prefix)
	if err != nil {
		return wrapStoreErr(fmt.Errorf("list %s: %w", prefix, err))
	}

	zw := zip.NewWriter(w)
	wrote := 0
	for _, info := range infos {
		if info.Key == prefix || strings.HasSuffix(info.Key, "/") {
			continue
		}
		if err := p.writeArchiveEntry(ctx, zw, prefix, info); err != nil {
			zw.Close()
			return err
		}
		wrote++
	}

	if wrote == 0 {
		// Close is skipped on purpose: it would flush the empty archive's
		// trailer to w, and callers streaming to a response need w untouched
		// to still turn this into a clean 404.
		return fmt.Errorf("no objects under %s: %w", LogicalPath(prefix), ErrNotFound)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive for %s: %w", prefix, err)
	}
	return nil
}

func (p *Projector) writeArchiveEntry(ctx context.Context, zw *zip.Writer, prefix string, info object.Info) error {
	rc, err := p.store.Get(ctx, info.Key)
	if err != nil {
		// a key visible in the listing but gone on read: eventual consistency,
		// skip rather than abort the whole archive
		if errors.Is(err, object.ErrObjectNotFound) {
			return nil
		}
		return wrapStoreErr(fmt.Errorf("get %s: %w", info.Key, err))
	}
	defer rc.Close()

	hdr := &zip.FileHeader{
		Name:     strings.TrimPrefix(info.Key, prefix),
		Method:   zip.Deflate,
		Modified: info.LastModified,
	}
	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("archive entry %s: %w", hdr.Name, err)
	}
	if _, err := io.Copy(fw, rc); err != nil {
		return wrapStoreErr(fmt.Errorf("archive entry %s: %w", hdr.Name, err))
	}
	return nil
}
