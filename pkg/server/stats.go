package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stratafs/stratafs/pkg/audit"
	"github.com/stratafs/stratafs/pkg/identity"
)

type dashboardResponse struct {
	TotalUsers      int    `json:"total_users"`
	TotalSize       int64  `json:"total_size"`
	ObjectCount     int    `json:"object_count"`
	FolderCount     int    `json:"folder_count"`
	SFTPConnections int    `json:"sftp_connections"`
	Activity24h     int    `json:"activity_24h"`
	DroppedEvents   uint64 `json:"dropped_events"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// handleDashboard aggregates the admin dashboard numbers. Partial data beats
// no dashboard: individual collection failures are logged and zeroed, not
// propagated.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, _ := principalFrom(r.Context())

	resp := dashboardResponse{
		SFTPConnections: s.sftpReg.Len(),
		UptimeSeconds:   int64(time.Since(s.startTime).Seconds()),
	}

	if _, total, err := s.identities.ListUsers(r.Context(), identity.ListOptions{Page: 1, Limit: 1}); err == nil {
		resp.TotalUsers = total
	} else {
		log.Warn().Err(err).Msg("dashboard: user count failed")
	}

	if usage, err := s.projector.ComputeUsage(r.Context(), principal, "/"); err == nil {
		resp.TotalSize = usage.TotalSize
		resp.ObjectCount = usage.ObjectCount
	} else {
		log.Warn().Err(err).Msg("dashboard: usage aggregation failed")
	}

	if folders, err := s.projector.TopLevelFolders(r.Context(), principal); err == nil {
		resp.FolderCount = len(folders)
	} else {
		log.Warn().Err(err).Msg("dashboard: folder count failed")
	}

	if s.sink != nil {
		filter := audit.Filter{From: time.Now().Add(-24 * time.Hour), Page: 1, Limit: 1}
		if _, total, err := s.sink.Query(r.Context(), filter); err == nil {
			resp.Activity24h = total
		} else {
			log.Warn().Err(err).Msg("dashboard: activity count failed")
		}
	}
	if s.emitter != nil {
		resp.DroppedEvents = s.emitter.Dropped()
	}

	writeJSON(w, http.StatusOK, resp)
}
