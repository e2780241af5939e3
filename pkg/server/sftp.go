package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stratafs/stratafs/pkg/audit"
	"github.com/stratafs/stratafs/pkg/identity"
	"github.com/stratafs/stratafs/pkg/sftp"
)

type sftpStatusResponse struct {
	Enabled       bool      `json:"enabled"`
	Provisioned   bool      `json:"provisioned"`
	Host          string    `json:"host,omitempty"`
	Port          int       `json:"port,omitempty"`
	Username      string    `json:"username,omitempty"`
	Fingerprint   string    `json:"fingerprint,omitempty"`
	ProvisionedAt time.Time `json:"provisioned_at,omitzero"`
}

// handleSFTPStatus reports the caller's own provisioning state and the
// connection coordinates.
func (s *Server) handleSFTPStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, _ := principalFrom(r.Context())

	resp := sftpStatusResponse{Enabled: s.cfg.SFTP.Enabled}
	if !s.cfg.SFTP.Enabled {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Host = s.cfg.SFTP.Host
	resp.Port = s.cfg.SFTP.Port

	creds, err := s.identities.GetSFTPCredentials(r.Context(), principal.ID)
	if err != nil {
		if errors.Is(err, identity.ErrCredentialsNotFound) {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		respondError(w, err)
		return
	}

	resp.Provisioned = creds.Enabled
	resp.Username = creds.Username
	resp.Fingerprint = creds.Fingerprint
	resp.ProvisionedAt = creds.ProvisionedAt
	writeJSON(w, http.StatusOK, resp)
}

type provisionRequest struct {
	// PublicKey optionally supplies the user's own key in authorized_keys
	// format; when empty a keypair is generated server-side.
	PublicKey string `json:"public_key"`
}

type provisionResponse struct {
	Username    string `json:"username"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Fingerprint string `json:"fingerprint"`
	// PrivateKey is only present for server-generated keys and is never
	// stored; this response is the one chance to save it.
	PrivateKey string `json:"private_key,omitempty"`
}

// handleSFTPProvision creates or replaces the caller's SFTP credentials.
func (s *Server) handleSFTPProvision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.cfg.SFTP.Enabled {
		jsonError(w, "sftp access is disabled", http.StatusServiceUnavailable)
		return
	}
	principal, _ := principalFrom(r.Context())

	var req provisionRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var (
		authorizedKey string
		fingerprint   string
		privateKey    string
	)
	if req.PublicKey != "" {
		normalized, fp, err := sftp.ValidateAuthorizedKey(req.PublicKey)
		if err != nil {
			jsonError(w, "invalid public key: "+err.Error(), http.StatusBadRequest)
			return
		}
		authorizedKey, fingerprint = normalized, fp
	} else {
		pair, err := sftp.GenerateKeyPair()
		if err != nil {
			respondError(w, err)
			return
		}
		authorizedKey, fingerprint, privateKey = pair.AuthorizedKey, pair.Fingerprint, pair.PrivateKeyPEM
	}

	creds := &identity.SFTPCredentials{
		UserID:        principal.ID,
		Username:      principal.Username,
		AuthorizedKey: authorizedKey,
		Fingerprint:   fingerprint,
		Enabled:       true,
		ProvisionedAt: time.Now().UTC(),
	}
	if err := s.identities.PutSFTPCredentials(r.Context(), creds); err != nil {
		respondError(w, err)
		return
	}

	s.emit(r, audit.Event{
		Action:       audit.ActionSFTPProvisioned,
		ResourceKind: audit.ResourceSFTP,
		ResourceID:   principal.ID,
		Status:       audit.StatusSuccess,
		Detail:       map[string]string{"fingerprint": fingerprint},
	})

	writeJSON(w, http.StatusCreated, provisionResponse{
		Username:    principal.Username,
		Host:        s.cfg.SFTP.Host,
		Port:        s.cfg.SFTP.Port,
		Fingerprint: fingerprint,
		PrivateKey:  privateKey,
	})
}

type connectionsResponse struct {
	Data  []*sftp.Connection `json:"data"`
	Total int                `json:"total"`
}

// handleSFTPConnections lists live sessions. Admin only.
func (s *Server) handleSFTPConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	principal, _ := principalFrom(r.Context())
	if !principal.IsAdmin() {
		jsonError(w, "admin access required", http.StatusForbidden)
		return
	}

	conns := s.sftpReg.List()
	writeJSON(w, http.StatusOK, connectionsResponse{Data: conns, Total: len(conns)})
}

// handleSFTPConnectionByID serves GET and DELETE on a single session. Admin
// only.
func (s *Server) handleSFTPConnectionByID(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())
	if !principal.IsAdmin() {
		jsonError(w, "admin access required", http.StatusForbidden)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/sftp/connections/")
	if id == "" {
		jsonError(w, "connection id required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		conn, err := s.sftpReg.Get(id)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conn)

	case http.MethodDelete:
		if err := s.sftpReg.Close(id); err != nil {
			respondError(w, err)
			return
		}
		s.emit(r, audit.Event{
			Action:       audit.ActionSFTPClosed,
			ResourceKind: audit.ResourceSFTP,
			ResourceID:   id,
			Status:       audit.StatusSuccess,
		})
		writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})

	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
