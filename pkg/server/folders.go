package server

import (
	"net/http"

	"github.com/stratafs/stratafs/pkg/vfs"
)

type foldersResponse struct {
	Data  []vfs.Entry `json:"data"`
	Total int         `json:"total"`
}

// handleTopLevelFolders lists the bucket's first-level folders via a
// delimiter listing. Admin only.
func (s *Server) handleTopLevelFolders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, _ := principalFrom(r.Context())

	entries, err := s.projector.TopLevelFolders(r.Context(), principal)
	if err != nil {
		respondError(w, err)
		return
	}
	if entries == nil {
		entries = []vfs.Entry{}
	}

	writeJSON(w, http.StatusOK, foldersResponse{Data: entries, Total: len(entries)})
}

type bucketInfoResponse struct {
	TotalSize   int64 `json:"total_size"`
	ObjectCount int   `json:"object_count"`
	FolderCount int   `json:"folder_count"`
}

// handleBucketInfo aggregates whole-bucket statistics. Admin only.
func (s *Server) handleBucketInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, _ := principalFrom(r.Context())

	usage, err := s.projector.ComputeUsage(r.Context(), principal, "/")
	if err != nil {
		respondError(w, err)
		return
	}

	folders, err := s.projector.TopLevelFolders(r.Context(), principal)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bucketInfoResponse{
		TotalSize:   usage.TotalSize,
		ObjectCount: usage.ObjectCount,
		FolderCount: len(folders),
	})
}
