package vfs

import (
	"fmt"
	"path"
	"strings"
)

// Synthetic id tags. The tag is a fixed marker at the start of the id, so a
// key containing the separator character still round-trips: decoding strips
// the known tag and takes everything after it verbatim. Ids embed the exact
// key or prefix; they are never hashes, so decoding is lossless and two
// distinct paths can never collide.
const (
	fileIDTag   = "file:"
	folderIDTag = "folder:"
)

// NormalizePath returns the canonical absolute form of a logical path: a
// leading "/", no trailing "/" except for root itself, and all "." and ".."
// segments resolved away (".." can never escape root).
func NormalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// ToPrefix maps a logical path onto an object-store prefix: the leading "/"
// is stripped and a trailing "/" appended. Root maps to the empty prefix.
func ToPrefix(logicalPath string) string {
	p := NormalizePath(logicalPath)
	if p == "/" {
		return ""
	}
	return strings.TrimPrefix(p, "/") + "/"
}

// LogicalPath is the inverse of ToPrefix for a key or prefix: the absolute
// path of the entry the key represents.
func LogicalPath(keyOrPrefix string) string {
	return "/" + strings.TrimSuffix(keyOrPrefix, "/")
}

// RelativeChild splits a listed key relative to the prefix it was listed
// under. firstSegment is the key's first path segment below the prefix;
// hasMore reports whether further segments follow, in which case the key
// collapses into a folder entry named firstSegment.
func RelativeChild(prefix, fullKey string) (firstSegment string, hasMore bool) {
	rest := strings.TrimPrefix(fullKey, prefix)
	idx := strings.Index(rest, "/")
	if idx < 0 {
		return rest, false
	}
	return rest[:idx], true
}

// EncodeID produces the opaque synthetic id for an entry. Folder prefixes
// keep their trailing "/" inside the id so decoding recovers them exactly.
func EncodeID(kind Kind, keyOrPrefix string) string {
	if kind == KindFolder {
		return folderIDTag + keyOrPrefix
	}
	return fileIDTag + keyOrPrefix
}

// DecodeID reverses EncodeID. Ids without a known tag fail with
// ErrMalformedID; everything after the tag is the exact key or prefix.
func DecodeID(id string) (Kind, string, error) {
	if key, ok := strings.CutPrefix(id, fileIDTag); ok {
		if key == "" {
			return "", "", fmt.Errorf("id %q has empty key: %w", id, ErrMalformedID)
		}
		return KindFile, key, nil
	}
	if prefix, ok := strings.CutPrefix(id, folderIDTag); ok {
		if prefix == "" {
			return "", "", fmt.Errorf("id %q has empty prefix: %w", id, ErrMalformedID)
		}
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		return KindFolder, prefix, nil
	}
	return "", "", fmt.Errorf("id %q has no kind tag: %w", id, ErrMalformedID)
}

// BaseName returns the last path segment of a key or prefix.
func BaseName(keyOrPrefix string) string {
	trimmed := strings.TrimSuffix(keyOrPrefix, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// ParentPrefix returns the prefix of the segment containing the key or
// prefix, empty for top-level entries.
func ParentPrefix(keyOrPrefix string) string {
	trimmed := strings.TrimSuffix(keyOrPrefix, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return ""
	}
	return trimmed[:idx+1]
}

// ValidName reports whether name can be used as a single path segment.
func ValidName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.Contains(name, "/")
}
