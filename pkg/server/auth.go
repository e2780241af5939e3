package server

import (
	"errors"
	"net/http"

	"github.com/stratafs/stratafs/pkg/audit"
	"github.com/stratafs/stratafs/pkg/auth"
	"github.com/stratafs/stratafs/pkg/identity"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	auth.TokenPair
	User *identity.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		jsonError(w, "username and password are required", http.StatusBadRequest)
		return
	}

	user, err := s.identities.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			// Indistinguishable from a wrong password on the wire.
			s.emitLoginFailure(r, req.Username)
			jsonError(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		respondError(w, err)
		return
	}

	if !user.Active {
		s.emitLoginFailure(r, req.Username)
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := identity.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		s.emitLoginFailure(r, req.Username)
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		respondError(w, err)
		return
	}

	s.emit(r, audit.Event{
		ActorID:   user.ID,
		ActorName: user.Username,
		Action:    audit.ActionLogin,
		Status:    audit.StatusSuccess,
	})

	writeJSON(w, http.StatusOK, loginResponse{TokenPair: *pair, User: user})
}

func (s *Server) emitLoginFailure(r *http.Request, username string) {
	s.emit(r, audit.Event{
		ActorName: username,
		Action:    audit.ActionLoginFailed,
		Status:    audit.StatusFailure,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	claims, err := s.tokens.ParseRefresh(req.RefreshToken)
	if err != nil {
		jsonError(w, "invalid or expired refresh token", http.StatusUnauthorized)
		return
	}

	// The user must still exist and be active; a refresh token outliving the
	// account must not resurrect it.
	user, err := s.identities.GetUser(r.Context(), claims.Subject)
	if err != nil {
		jsonError(w, "invalid or expired refresh token", http.StatusUnauthorized)
		return
	}
	if !user.Active {
		jsonError(w, "account disabled", http.StatusForbidden)
		return
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		respondError(w, err)
		return
	}

	s.emit(r, audit.Event{
		ActorID:   user.ID,
		ActorName: user.Username,
		Action:    audit.ActionTokenRefresh,
		Status:    audit.StatusSuccess,
	})

	writeJSON(w, http.StatusOK, pair)
}

type meResponse struct {
	User   *identity.User   `json:"user"`
	Grants []identity.Grant `json:"grants"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	principal, _ := principalFrom(r.Context())

	user, err := s.identities.GetUser(r.Context(), principal.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	grants, err := s.identities.ListGrants(r.Context(), user.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	if grants == nil {
		grants = []identity.Grant{}
	}

	writeJSON(w, http.StatusOK, meResponse{User: user, Grants: grants})
}
