package server

import (
	"net/http"
	"time"

	"github.com/stratafs/stratafs/pkg/audit"
)

type activityResponse struct {
	Data  []*audit.Event `json:"data"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// handleActivity queries the full activity trail. Admin only.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter, ok := s.parseActivityFilter(w, r)
	if !ok {
		return
	}
	filter.ActorID = r.URL.Query().Get("user")

	s.queryActivity(w, r, filter)
}

// handleActivityMine queries the caller's own events only.
func (s *Server) handleActivityMine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, _ := principalFrom(r.Context())

	filter, ok := s.parseActivityFilter(w, r)
	if !ok {
		return
	}
	// The actor is pinned to the caller regardless of query parameters.
	filter.ActorID = principal.ID

	s.queryActivity(w, r, filter)
}

func (s *Server) parseActivityFilter(w http.ResponseWriter, r *http.Request) (audit.Filter, bool) {
	filter := audit.Filter{
		Action: audit.Action(r.URL.Query().Get("action")),
		Status: audit.Status(r.URL.Query().Get("status")),
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 50),
	}

	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			jsonError(w, "from must be RFC3339", http.StatusBadRequest)
			return filter, false
		}
		filter.From = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			jsonError(w, "to must be RFC3339", http.StatusBadRequest)
			return filter, false
		}
		filter.To = t
	}

	return filter, true
}

func (s *Server) queryActivity(w http.ResponseWriter, r *http.Request, filter audit.Filter) {
	// With auditing disabled there is no trail to show; an empty page keeps
	// the endpoint's contract instead of erroring.
	if s.sink == nil {
		writeJSON(w, http.StatusOK, activityResponse{
			Data: []*audit.Event{}, Page: filter.Page, Limit: filter.Limit,
		})
		return
	}

	events, total, err := s.sink.Query(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	if events == nil {
		events = []*audit.Event{}
	}

	writeJSON(w, http.StatusOK, activityResponse{
		Data:  events,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	})
}
