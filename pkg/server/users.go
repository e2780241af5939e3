package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/stratafs/stratafs/pkg/audit"
	"github.com/stratafs/stratafs/pkg/identity"
	"github.com/stratafs/stratafs/pkg/vfs"
)

// handleUsers serves GET (list) and POST (create) on /api/users.
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListUsers(w, r)
	case http.MethodPost:
		s.handleCreateUser(w, r)
	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type userListResponse struct {
	Data  []*identity.User `json:"data"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	opts := identity.ListOptions{
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 50),
		Search: r.URL.Query().Get("search"),
	}

	users, total, err := s.identities.ListUsers(r.Context(), opts)
	if err != nil {
		respondError(w, err)
		return
	}
	if users == nil {
		users = []*identity.User{}
	}

	writeJSON(w, http.StatusOK, userListResponse{
		Data:  users,
		Total: total,
		Page:  opts.Page,
		Limit: opts.Limit,
	})
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	HomePath string `json:"home_path"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		jsonError(w, "username and password are required", http.StatusBadRequest)
		return
	}
	if !vfs.ValidName(req.Username) {
		jsonError(w, "invalid username", http.StatusBadRequest)
		return
	}

	role := vfs.Role(req.Role)
	if role == "" {
		role = vfs.RoleUser
	}
	if role != vfs.RoleAdmin && role != vfs.RoleUser {
		jsonError(w, "role must be admin or user", http.StatusBadRequest)
		return
	}

	homePath := req.HomePath
	if homePath == "" {
		homePath = "/users/" + req.Username
	}
	homePath = vfs.NormalizePath(homePath)

	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		respondError(w, err)
		return
	}

	user := &identity.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		HomePath:     homePath,
		Active:       true,
	}
	if err := s.identities.CreateUser(r.Context(), user); err != nil {
		respondError(w, err)
		return
	}

	s.emit(r, audit.Event{
		Action:       audit.ActionUserCreated,
		ResourceKind: audit.ResourceUser,
		ResourceID:   user.ID,
		Status:       audit.StatusSuccess,
		Detail:       map[string]string{"username": user.Username, "role": string(user.Role)},
	})

	writeJSON(w, http.StatusCreated, user)
}

// handleUserByID dispatches /api/users/{id} and /api/users/{id}/folders.
func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/users/")
	if rest == "" {
		jsonError(w, "user id required", http.StatusBadRequest)
		return
	}

	if id, ok := strings.CutSuffix(rest, "/folders"); ok {
		s.handleReplaceGrants(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetUser(w, r, rest)
	case http.MethodPut:
		s.handleUpdateUser(w, r, rest)
	case http.MethodDelete:
		s.handleDeleteUser(w, r, rest)
	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type userDetailResponse struct {
	User   *identity.User   `json:"user"`
	Grants []identity.Grant `json:"grants"`
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, id string) {
	user, err := s.identities.GetUser(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	grants, err := s.identities.ListGrants(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if grants == nil {
		grants = []identity.Grant{}
	}

	writeJSON(w, http.StatusOK, userDetailResponse{User: user, Grants: grants})
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
	HomePath *string `json:"home_path"`
	Active   *bool   `json:"active"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, id string) {
	var req updateUserRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := s.identities.GetUser(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Password != nil {
		if *req.Password == "" {
			jsonError(w, "password must not be empty", http.StatusBadRequest)
			return
		}
		hash, err := identity.HashPassword(*req.Password)
		if err != nil {
			respondError(w, err)
			return
		}
		user.PasswordHash = hash
	}
	if req.Role != nil {
		role := vfs.Role(*req.Role)
		if role != vfs.RoleAdmin && role != vfs.RoleUser {
			jsonError(w, "role must be admin or user", http.StatusBadRequest)
			return
		}
		user.Role = role
	}
	if req.HomePath != nil {
		user.HomePath = vfs.NormalizePath(*req.HomePath)
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.identities.UpdateUser(r.Context(), user); err != nil {
		respondError(w, err)
		return
	}

	s.emit(r, audit.Event{
		Action:       audit.ActionUserUpdated,
		ResourceKind: audit.ResourceUser,
		ResourceID:   user.ID,
		Status:       audit.StatusSuccess,
	})

	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, id string) {
	principal, _ := principalFrom(r.Context())
	if principal.ID == id {
		jsonError(w, "cannot delete your own account", http.StatusBadRequest)
		return
	}

	if err := s.identities.DeleteUser(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}

	s.emit(r, audit.Event{
		Action:       audit.ActionUserDeleted,
		ResourceKind: audit.ResourceUser,
		ResourceID:   id,
		Status:       audit.StatusSuccess,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type grantSpec struct {
	FolderPath string `json:"folder_path"`
	Permission string `json:"permission"`
	Active     *bool  `json:"active"`
}

type replaceGrantsRequest struct {
	Grants []grantSpec `json:"grants"`
}

// handleReplaceGrants swaps a user's entire grant set. PUT only.
func (s *Server) handleReplaceGrants(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req replaceGrantsRequest
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	grants := make([]identity.Grant, 0, len(req.Grants))
	for i, spec := range req.Grants {
		if spec.FolderPath == "" {
			jsonError(w, "grants["+strconv.Itoa(i)+"]: folder_path is required", http.StatusBadRequest)
			return
		}
		perm := vfs.Permission(spec.Permission)
		if !perm.Valid() {
			jsonError(w, "grants["+strconv.Itoa(i)+"]: permission must be read, write or full", http.StatusBadRequest)
			return
		}
		active := true
		if spec.Active != nil {
			active = *spec.Active
		}
		grants = append(grants, identity.Grant{
			FolderPath: vfs.NormalizePath(spec.FolderPath),
			Permission: perm,
			Active:     active,
		})
	}

	if err := s.identities.ReplaceGrants(r.Context(), id, grants); err != nil {
		respondError(w, err)
		return
	}

	stored, err := s.identities.ListGrants(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if stored == nil {
		stored = []identity.Grant{}
	}

	s.emit(r, audit.Event{
		Action:       audit.ActionGrantsUpdated,
		ResourceKind: audit.ResourceUser,
		ResourceID:   id,
		Status:       audit.StatusSuccess,
		Detail:       map[string]string{"grants": strconv.Itoa(len(stored))},
	})

	writeJSON(w, http.StatusOK, map[string]any{"grants": stored})
}

// queryInt parses an integer query parameter, falling back on absence or
// garbage.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
