package vfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
)

// TestWriteArchive verifies every object under the prefix lands in the zip
// under its relative path.
func TestWriteArchive(t *testing.T) {
	st := seeded("docs/", "docs/a.txt", "docs/sub/b.txt")
	proj := NewProjector(st)

	var buf bytes.Buffer
	if err := proj.WriteArchive(context.Background(), adminPrincipal(), "folder:docs/", &buf); err != nil {
		t.Fatalf("WriteArchive failed: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader failed: %v", err)
	}

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)

	want := []string{"a.txt", "sub/b.txt"}
	if len(names) != len(want) || names[0] != want[0] || names[1] != want[1] {
		t.Fatalf("archive entries = %v, want %v", names, want)
	}

	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("open archive entry: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read archive entry: %v", err)
	}
	if string(data) != "data" {
		t.Fatalf("entry content = %q, want %q", data, "data")
	}
}

// TestWriteArchiveEmptyIsNotFound locks in the asymmetry with listing: a
// prefix with zero backing objects downloads as NotFound while the same
// prefix lists as an empty success.
func TestWriteArchiveEmptyIsNotFound(t *testing.T) {
	proj := NewProjector(seeded())

	var buf bytes.Buffer
	err := proj.WriteArchive(context.Background(), adminPrincipal(), "folder:ghost/", &buf)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("WriteArchive = %v, want ErrNotFound", err)
	}

	entries, err := proj.List(context.Background(), adminPrincipal(), "/ghost")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("List = %v, want empty success", entries)
	}
}

// TestWriteArchivePlaceholderOnly verifies a folder holding only its own
// placeholder key has nothing to download.
func TestWriteArchivePlaceholderOnly(t *testing.T) {
	proj := NewProjector(seeded("empty/"))

	var buf bytes.Buffer
	err := proj.WriteArchive(context.Background(), adminPrincipal(), "folder:empty/", &buf)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("WriteArchive = %v, want ErrNotFound", err)
	}
}

// TestWriteArchiveDenied verifies unauthorized downloads fail before any
// store access.
func TestWriteArchiveDenied(t *testing.T) {
	proj := NewProjector(seeded("private/x.txt"))

	var buf bytes.Buffer
	err := proj.WriteArchive(context.Background(), userPrincipal(), "folder:private/", &buf)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("WriteArchive = %v, want ErrAccessDenied", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("wrote %d bytes despite denial", buf.Len())
	}
}

// TestWriteArchiveRejectsFileID verifies a file id cannot be downloaded as
// an archive.
func TestWriteArchiveRejectsFileID(t *testing.T) {
	proj := NewProjector(seeded("docs/a.txt"))

	var buf bytes.Buffer
	err := proj.WriteArchive(context.Background(), adminPrincipal(), "file:docs/a.txt", &buf)
	if !errors.Is(err, ErrMalformedID) {
		t.Fatalf("WriteArchive = %v, want ErrMalformedID", err)
	}
}

// TestOpenAndStat verifies single-file download resolution.
func TestOpenAndStat(t *testing.T) {
	proj := NewProjector(seeded("docs/a.txt"))

	entry, err := proj.Stat(context.Background(), adminPrincipal(), "file:docs/a.txt")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if entry.Size != 4 || entry.Name != "a.txt" {
		t.Fatalf("entry = %+v", entry)
	}

	rc, entry, err := proj.Open(context.Background(), adminPrincipal(), "file:docs/a.txt")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "data" || entry.Path != "/docs/a.txt" {
		t.Fatalf("data = %q, entry = %+v", data, entry)
	}

	_, err = proj.Stat(context.Background(), adminPrincipal(), "file:docs/missing.txt")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Stat missing = %v, want ErrNotFound", err)
	}
}
