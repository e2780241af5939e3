package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/stratafs/stratafs/pkg/audit"
	"github.com/stratafs/stratafs/pkg/vfs"
)

// multipartMemoryLimit bounds the in-memory part of multipart parsing;
// larger bodies spill to temporary files.
const multipartMemoryLimit = 32 << 20

type listResponse struct {
	Data  []vfs.Entry `json:"data"`
	Total int         `json:"total"`
	Path  string      `json:"path"`
}

// handleFiles serves GET (listing) and DELETE (bulk delete) on /api/files.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleList(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}

	entries, err := s.projector.List(r.Context(), principal, path)
	if err != nil {
		s.emitDenied(r, err, audit.ResourceFolder, path)
		respondError(w, err)
		return
	}
	if entries == nil {
		entries = []vfs.Entry{}
	}

	writeJSON(w, http.StatusOK, listResponse{Data: entries, Total: len(entries), Path: vfs.NormalizePath(path)})
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	var req deleteRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		jsonError(w, "ids are required", http.StatusBadRequest)
		return
	}

	result := s.mutator.Delete(r.Context(), principal, req.IDs)
	s.storageMetrics.RecordBatchSize(len(req.IDs))

	s.emit(r, audit.Event{
		Action: audit.ActionDelete,
		Status: batchStatus(result),
		Detail: map[string]string{
			"requested": strconv.Itoa(len(req.IDs)),
			"deleted":   strconv.Itoa(len(result.Succeeded)),
		},
	})

	writeBatch(w, "deleted_count", result)
}

// handleUpload stores a multipart file under the given path.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, _ := principalFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		jsonError(w, "invalid multipart body", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file part is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	path := r.FormValue("path")
	if path == "" {
		path = "/"
	}

	entry, err := s.mutator.Upload(r.Context(), principal, path, header.Filename,
		file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		s.emitDenied(r, err, audit.ResourceFolder, path)
		respondError(w, err)
		return
	}

	s.storageMetrics.RecordBytes("in", header.Size)
	s.emit(r, audit.Event{
		Action:       audit.ActionUpload,
		ResourceKind: audit.ResourceFile,
		ResourceID:   entry.ID,
		Status:       audit.StatusSuccess,
		Detail:       map[string]string{"name": entry.Name, "size": strconv.FormatInt(entry.Size, 10)},
	})

	writeJSON(w, http.StatusCreated, entry)
}

// lazyResponseWriter defers the header write until the first payload byte,
// so an error raised before anything streamed can still pick its own status.
type lazyResponseWriter struct {
	http.ResponseWriter
	prepare func(http.ResponseWriter)
	wrote   bool
}

func (l *lazyResponseWriter) Write(p []byte) (int, error) {
	if !l.wrote {
		l.wrote = true
		l.prepare(l.ResponseWriter)
	}
	return l.ResponseWriter.Write(p)
}

// handleDownload streams a file's bytes, or a zip archive for a folder id.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, _ := principalFrom(r.Context())

	id := r.URL.Query().Get("id")
	if id == "" {
		jsonError(w, "id is required", http.StatusBadRequest)
		return
	}

	kind, keyOrPrefix, err := vfs.DecodeID(id)
	if err != nil {
		respondError(w, err)
		return
	}

	if kind == vfs.KindFolder {
		s.downloadFolder(w, r, principal, id, keyOrPrefix)
		return
	}
	s.downloadFile(w, r, principal, id)
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request, principal vfs.Principal, id string) {
	rc, entry, err := s.projector.Open(r.Context(), principal, id)
	if err != nil {
		s.emitDenied(r, err, audit.ResourceFile, id)
		respondError(w, err)
		return
	}
	defer rc.Close()

	contentType := entry.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(entry.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entry.Name))

	n, err := io.Copy(w, rc)
	if err != nil {
		// Headers are gone; all we can do is log the truncation.
		log.Warn().Err(err).Str("id", id).Int64("written", n).Msg("download stream interrupted")
		return
	}

	s.storageMetrics.RecordBytes("out", n)
	s.emit(r, audit.Event{
		Action:       audit.ActionDownload,
		ResourceKind: audit.ResourceFile,
		ResourceID:   id,
		Status:       audit.StatusSuccess,
	})
}

func (s *Server) downloadFolder(w http.ResponseWriter, r *http.Request, principal vfs.Principal, id, prefix string) {
	name := vfs.BaseName(prefix)
	if name == "" {
		name = "archive"
	}

	lazy := &lazyResponseWriter{
		ResponseWriter: w,
		prepare: func(w http.ResponseWriter) {
			w.Header().Set("Content-Type", "application/zip")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".zip"))
		},
	}

	if err := s.projector.WriteArchive(r.Context(), principal, id, lazy); err != nil {
		if !lazy.wrote {
			s.emitDenied(r, err, audit.ResourceFolder, id)
			respondError(w, err)
			return
		}
		log.Warn().Err(err).Str("id", id).Msg("archive stream interrupted")
		return
	}

	s.emit(r, audit.Event{
		Action:       audit.ActionDownload,
		ResourceKind: audit.ResourceFolder,
		ResourceID:   id,
		Status:       audit.StatusSuccess,
	})
}

type renameRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, _ := principalFrom(r.Context())

	var req renameRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" || req.Name == "" {
		jsonError(w, "id and name are required", http.StatusBadRequest)
		return
	}

	entry, err := s.mutator.Rename(r.Context(), principal, req.ID, req.Name)
	if err != nil {
		s.emitDenied(r, err, audit.ResourceFile, req.ID)
		respondError(w, err)
		return
	}

	s.emit(r, audit.Event{
		Action:       audit.ActionRename,
		ResourceKind: resourceKindOf(entry.Kind),
		ResourceID:   entry.ID,
		Status:       audit.StatusSuccess,
		Detail:       map[string]string{"name": req.Name},
	})

	writeJSON(w, http.StatusOK, entry)
}

type transferRequest struct {
	IDs        []string `json:"ids"`
	TargetPath string   `json:"target_path"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handleTransfer(w, r, "moved_count", audit.ActionMove, s.mutator.Move)
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handleTransfer(w, r, "copied_count", audit.ActionCopy, s.mutator.Copy)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, countKey string, action audit.Action,
	op func(ctx context.Context, principal vfs.Principal, ids []string, targetPath string) (*vfs.BatchResult, error),
) {
	principal, _ := principalFrom(r.Context())

	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 || req.TargetPath == "" {
		jsonError(w, "ids and target_path are required", http.StatusBadRequest)
		return
	}

	result, err := op(r.Context(), principal, req.IDs, req.TargetPath)
	if err != nil {
		// A bad or denied target fails the request whole; item-level failures
		// never land here.
		s.emitDenied(r, err, audit.ResourceFolder, req.TargetPath)
		respondError(w, err)
		return
	}
	s.storageMetrics.RecordBatchSize(len(req.IDs))

	s.emit(r, audit.Event{
		Action: action,
		Status: batchStatus(result),
		Detail: map[string]string{
			"target":    req.TargetPath,
			"requested": strconv.Itoa(len(req.IDs)),
			"succeeded": strconv.Itoa(len(result.Succeeded)),
		},
	})

	writeBatch(w, countKey, result)
}

type createFolderRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, _ := principalFrom(r.Context())

	var req createFolderRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		jsonError(w, "name is required", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		req.Path = "/"
	}

	entry, err := s.mutator.CreateFolder(r.Context(), principal, req.Path, req.Name)
	if err != nil {
		s.emitDenied(r, err, audit.ResourceFolder, req.Path)
		respondError(w, err)
		return
	}

	s.emit(r, audit.Event{
		Action:       audit.ActionCreateFolder,
		ResourceKind: audit.ResourceFolder,
		ResourceID:   entry.ID,
		Status:       audit.StatusSuccess,
		Detail:       map[string]string{"name": entry.Name},
	})

	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, _ := principalFrom(r.Context())

	query := r.URL.Query().Get("query")
	if query == "" {
		jsonError(w, "query is required", http.StatusBadRequest)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}

	entries, err := s.projector.Search(r.Context(), principal, path, query)
	if err != nil {
		s.emitDenied(r, err, audit.ResourceFolder, path)
		respondError(w, err)
		return
	}
	if entries == nil {
		entries = []vfs.Entry{}
	}

	writeJSON(w, http.StatusOK, listResponse{Data: entries, Total: len(entries), Path: vfs.NormalizePath(path)})
}

// defaultShareExpiry is the presigned URL lifetime when none is requested.
const defaultShareExpiry = 3600

// maxShareExpiry caps requested lifetimes at 7 days, the S3 SigV4 ceiling.
const maxShareExpiry = 7 * 24 * 3600

type shareResponse struct {
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in"`
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, _ := principalFrom(r.Context())

	id := r.URL.Query().Get("id")
	if id == "" {
		jsonError(w, "id is required", http.StatusBadRequest)
		return
	}

	expires := int64(defaultShareExpiry)
	if raw := r.URL.Query().Get("expires"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 || parsed > maxShareExpiry {
			jsonError(w, fmt.Sprintf("expires must be between 1 and %d seconds", maxShareExpiry), http.StatusBadRequest)
			return
		}
		expires = parsed
	}

	url, err := s.projector.PresignDownload(r.Context(), principal, id, expires)
	if err != nil {
		s.emitDenied(r, err, audit.ResourceFile, id)
		respondError(w, err)
		return
	}

	s.emit(r, audit.Event{
		Action:       audit.ActionShare,
		ResourceKind: audit.ResourceFile,
		ResourceID:   id,
		Status:       audit.StatusSuccess,
		Detail:       map[string]string{"expires_in": strconv.FormatInt(expires, 10)},
	})

	writeJSON(w, http.StatusOK, shareResponse{URL: url, ExpiresIn: expires})
}

// previewExpiry is the short presigned URL lifetime backing inline previews.
const previewExpiry = 300

type previewResponse struct {
	Entry *vfs.Entry `json:"entry"`
	URL   string     `json:"url,omitempty"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, _ := principalFrom(r.Context())

	id := r.URL.Query().Get("id")
	if id == "" {
		jsonError(w, "id is required", http.StatusBadRequest)
		return
	}

	entry, err := s.projector.Stat(r.Context(), principal, id)
	if err != nil {
		s.emitDenied(r, err, audit.ResourceFile, id)
		respondError(w, err)
		return
	}

	// Preview still works against stores without presign support; the
	// client falls back to the download endpoint.
	url, err := s.projector.PresignDownload(r.Context(), principal, id, previewExpiry)
	if err != nil && !errors.Is(err, vfs.ErrStorageUnavailable) {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, previewResponse{Entry: entry, URL: url})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, _ := principalFrom(r.Context())

	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}

	usage, err := s.projector.ComputeUsage(r.Context(), principal, path)
	if err != nil {
		s.emitDenied(r, err, audit.ResourceFolder, path)
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, usage)
}

// batchStatus grades a batch outcome for the activity trail.
func batchStatus(result *vfs.BatchResult) audit.Status {
	switch {
	case len(result.Errors) == 0:
		return audit.StatusSuccess
	case len(result.Succeeded) == 0:
		return audit.StatusFailure
	default:
		return audit.StatusPartial
	}
}

func resourceKindOf(kind vfs.Kind) audit.ResourceKind {
	if kind == vfs.KindFolder {
		return audit.ResourceFolder
	}
	return audit.ResourceFile
}

// emitDenied records an access_denied event when err is a denial; other
// errors are not audited here.
func (s *Server) emitDenied(r *http.Request, err error, kind audit.ResourceKind, resource string) {
	if !errors.Is(err, vfs.ErrAccessDenied) {
		return
	}
	s.emit(r, audit.Event{
		Action:       audit.ActionAccessDenied,
		ResourceKind: kind,
		ResourceID:   resource,
		Status:       audit.StatusDenied,
	})
}
