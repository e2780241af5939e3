package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/stratafs/stratafs/pkg/identity"
	"github.com/stratafs/stratafs/pkg/sftp"
	"github.com/stratafs/stratafs/pkg/vfs"
)

// errorResponse is the uniform error payload.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, errorResponse{Error: message})
}

// respondError maps a domain error to its HTTP status and writes it.
func respondError(w http.ResponseWriter, err error) {
	jsonError(w, err.Error(), statusFromErr(err))
}

// statusFromErr maps domain sentinels to status codes. Batch endpoints never
// come through here: partial failure is encoded in a 200 body.
func statusFromErr(err error) int {
	switch {
	case errors.Is(err, vfs.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, vfs.ErrNotFound),
		errors.Is(err, identity.ErrUserNotFound),
		errors.Is(err, identity.ErrCredentialsNotFound),
		errors.Is(err, sftp.ErrConnectionNotFound):
		return http.StatusNotFound
	case errors.Is(err, vfs.ErrMalformedID):
		return http.StatusBadRequest
	case errors.Is(err, vfs.ErrAlreadyExists),
		errors.Is(err, identity.ErrDuplicateUsername):
		return http.StatusConflict
	case errors.Is(err, vfs.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The client went away or the operation timed out mid-flight.
		return http.StatusServiceUnavailable
	default:
		log.Error().Err(err).Msg("unhandled internal error")
		return http.StatusInternalServerError
	}
}

// batchError is the per-item failure element of a batch response.
type batchError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// batchResponse is the body of every bulk mutation. The HTTP status is
// always 200; item outcomes live here.
type batchResponse struct {
	Count   int          `json:"count"`
	Errors  []batchError `json:"errors"`
	Success bool         `json:"success"`
}

// newBatchResponse flattens a BatchResult. Errors is always a non-nil slice
// so clients never see null.
func newBatchResponse(result *vfs.BatchResult) batchResponse {
	resp := batchResponse{
		Count:  len(result.Succeeded),
		Errors: make([]batchError, 0, len(result.Errors)),
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, batchError{ID: e.ID, Error: e.Err.Error()})
	}
	resp.Success = len(resp.Errors) == 0
	return resp
}

// writeBatch writes a batch response with the count under the given key
// (moved_count, copied_count, deleted_count).
func writeBatch(w http.ResponseWriter, countKey string, result *vfs.BatchResult) {
	resp := newBatchResponse(result)
	payload := map[string]any{
		countKey:  resp.Count,
		"errors":  resp.Errors,
		"success": resp.Success,
	}
	writeJSON(w, http.StatusOK, payload)
}

// decodeBody decodes a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
