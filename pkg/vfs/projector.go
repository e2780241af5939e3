package vfs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/stratafs/stratafs/pkg/store/object"
)

// Projector resolves the entries visible at a logical path for a principal.
// It is stateless; every call reflects the store's current listing view.
type Projector struct {
	store object.Store
}

// NewProjector creates a projector over the given store.
func NewProjector(store object.Store) *Projector {
	return &Projector{store: store}
}

// Usage aggregates object count and byte size under a path.
type Usage struct {
	TotalSize   int64 `json:"total_size"`
	ObjectCount int   `json:"object_count"`
}

// List returns the deduplicated entries at logicalPath.
//
// For non-admin principals the root path is a virtual union of the home
// folder and the active grants, synthesized without touching the store. For
// any concrete path the store is scanned under the corresponding prefix and
// multi-level suffixes collapse into one folder entry per first segment,
// first occurrence wins. A prefix with zero matching keys is an empty
// listing, not an error; an empty folder and a missing folder are
// indistinguishable here.
func (p *Projector) List(ctx context.Context, principal Principal, logicalPath string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lp := NormalizePath(logicalPath)

	if d := Authorize(principal, lp, PermissionRead); !d.Allowed {
		return nil, d.Err(lp)
	}

	if lp == "/" && !principal.IsAdmin() {
		return p.rootView(principal), nil
	}

	prefix := ToPrefix(lp)
	infos, err := p.store.List(ctx, prefix)
	if err != nil {
		return nil, wrapStoreErr(fmt.Errorf("list %s: %w", prefix, err))
	}

	return collapse(lp, prefix, infos), nil
}

// rootView synthesizes the non-admin root listing: one folder entry for the
// home path plus one per active grant. Grants that sit at or below the home
// path are already reachable through it and are dropped, as are duplicate
// grant paths.
func (p *Projector) rootView(principal Principal) []Entry {
	var entries []Entry
	seen := make(map[string]bool)

	home := ""
	if principal.HomePath != "" {
		home = NormalizePath(principal.HomePath)
		entries = append(entries, folderEntry(home))
		seen[home] = true
	}

	for _, g := range principal.Grants {
		if !g.Active || g.FolderPath == "" {
			continue
		}
		gp := NormalizePath(g.FolderPath)
		if seen[gp] || (home != "" && pathWithin(gp, home)) {
			continue
		}
		seen[gp] = true
		entries = append(entries, folderEntry(gp))
	}

	return entries
}

// scopePrefixes returns the object-store prefixes reachable through a
// non-admin principal's virtual root: the home path plus every active grant.
// Nested paths fold into their ancestor so no subtree is visited twice.
func scopePrefixes(principal Principal) []string {
	var paths []string
	add := func(raw string) {
		if raw == "" {
			return
		}
		np := NormalizePath(raw)
		kept := make([]string, 0, len(paths)+1)
		for _, existing := range paths {
			if pathWithin(np, existing) {
				return
			}
			if pathWithin(existing, np) {
				continue
			}
			kept = append(kept, existing)
		}
		paths = append(kept, np)
	}

	add(principal.HomePath)
	for _, g := range principal.Grants {
		if g.Active {
			add(g.FolderPath)
		}
	}

	prefixes := make([]string, len(paths))
	for i, lp := range paths {
		prefixes[i] = ToPrefix(lp)
	}
	return prefixes
}

// collapse turns the raw key listing under prefix into entries: keys with no
// further "/" become files, deeper keys collapse into one folder per first
// segment.
func collapse(logicalPath, prefix string, infos []object.Info) []Entry {
	entries := make([]Entry, 0, len(infos))
	seenFolders := make(map[string]bool)

	for _, info := range infos {
		if info.Key == "" || info.Key == prefix {
			// placeholder key anchoring an otherwise empty folder
			continue
		}

		segment, hasMore := RelativeChild(prefix, info.Key)
		if segment == "" {
			continue
		}

		if !hasMore {
			entries = append(entries, Entry{
				ID:           EncodeID(KindFile, info.Key),
				Name:         segment,
				Path:         joinLogical(logicalPath, segment),
				Kind:         KindFile,
				Size:         info.Size,
				LastModified: info.LastModified,
				MIMEType:     MIMEType(segment),
			})
			continue
		}

		if seenFolders[segment] {
			continue
		}
		seenFolders[segment] = true
		entries = append(entries, Entry{
			ID:   EncodeID(KindFolder, prefix+segment+"/"),
			Name: segment,
			Path: joinLogical(logicalPath, segment),
			Kind: KindFolder,
		})
	}

	return entries
}

// Search returns the file entries under logicalPath whose name contains
// query, case-insensitively. The scan covers the full subtree, so matches
// deeper than one level are returned with their real path.
func (p *Projector) Search(ctx context.Context, principal Principal, logicalPath, query string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lp := NormalizePath(logicalPath)

	if d := Authorize(principal, lp, PermissionRead); !d.Allowed {
		return nil, d.Err(lp)
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []Entry{}, nil
	}

	// Root is a virtual union for non-admins, never a store prefix: scan
	// each reachable subtree rather than the whole bucket.
	prefixes := []string{ToPrefix(lp)}
	if lp == "/" && !principal.IsAdmin() {
		prefixes = scopePrefixes(principal)
	}

	matches := []Entry{}
	for _, prefix := range prefixes {
		infos, err := p.store.List(ctx, prefix)
		if err != nil {
			return nil, wrapStoreErr(fmt.Errorf("search %s: %w", prefix, err))
		}
		for _, info := range infos {
			if info.Key == prefix || strings.HasSuffix(info.Key, "/") {
				continue
			}
			name := BaseName(info.Key)
			if !strings.Contains(strings.ToLower(name), query) {
				continue
			}
			matches = append(matches, Entry{
				ID:           EncodeID(KindFile, info.Key),
				Name:         name,
				Path:         LogicalPath(info.Key),
				Kind:         KindFile,
				Size:         info.Size,
				LastModified: info.LastModified,
				MIMEType:     MIMEType(name),
			})
		}
	}

	log.Debug().Str("path", lp).Str("query", query).Int("matches", len(matches)).
		Msg("search completed")
	return matches, nil
}

// ComputeUsage sums object count and size under logicalPath.
func (p *Projector) ComputeUsage(ctx context.Context, principal Principal, logicalPath string) (*Usage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lp := NormalizePath(logicalPath)

	if d := Authorize(principal, lp, PermissionRead); !d.Allowed {
		return nil, d.Err(lp)
	}

	// Same virtual-root rule as Search: non-admin root sums the scoped
	// subtrees, never the whole bucket.
	prefixes := []string{ToPrefix(lp)}
	if lp == "/" && !principal.IsAdmin() {
		prefixes = scopePrefixes(principal)
	}

	u := &Usage{}
	for _, prefix := range prefixes {
		infos, err := p.store.List(ctx, prefix)
		if err != nil {
			return nil, wrapStoreErr(fmt.Errorf("usage %s: %w", lp, err))
		}
		for _, info := range infos {
			if strings.HasSuffix(info.Key, "/") {
				continue
			}
			u.ObjectCount++
			u.TotalSize += info.Size
		}
	}
	return u, nil
}

// TopLevelFolders lists the first-level folders of the whole store using the
// backend's delimiter support. Admin-only by policy: for anyone else root is
// the virtual union, not a store scan.
func (p *Projector) TopLevelFolders(ctx context.Context, principal Principal) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !principal.IsAdmin() {
		return nil, fmt.Errorf("top-level folders (%s): %w", DenyNoGrant, ErrAccessDenied)
	}

	prefixes, err := p.store.ListCommonPrefixes(ctx, "")
	if err != nil {
		return nil, wrapStoreErr(fmt.Errorf("list top-level folders: %w", err))
	}

	entries := make([]Entry, 0, len(prefixes))
	for _, pre := range prefixes {
		entries = append(entries, Entry{
			ID:   EncodeID(KindFolder, pre),
			Name: BaseName(pre),
			Path: LogicalPath(pre),
			Kind: KindFolder,
		})
	}
	return entries, nil
}

func folderEntry(logicalPath string) Entry {
	return Entry{
		ID:   EncodeID(KindFolder, ToPrefix(logicalPath)),
		Name: BaseName(ToPrefix(logicalPath)),
		Path: logicalPath,
		Kind: KindFolder,
	}
}

func joinLogical(logicalPath, segment string) string {
	if logicalPath == "/" {
		return "/" + segment
	}
	return logicalPath + "/" + segment
}

// wrapStoreErr maps gateway failures onto the filesystem error taxonomy.
// Context cancellation passes through untouched.
func wrapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, object.ErrObjectNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, object.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}
