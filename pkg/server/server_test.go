package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/stratafs/stratafs/pkg/audit"
	auditBadger "github.com/stratafs/stratafs/pkg/audit/badger"
	"github.com/stratafs/stratafs/pkg/auth"
	"github.com/stratafs/stratafs/pkg/config"
	"github.com/stratafs/stratafs/pkg/identity"
	idmem "github.com/stratafs/stratafs/pkg/identity/memory"
	objmem "github.com/stratafs/stratafs/pkg/store/object/memory"
	"github.com/stratafs/stratafs/pkg/vfs"
)

const serverTestSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	server *Server
	store  *objmem.Store
	ids    identity.Store

	adminToken string
	aliceToken string
	adminID    string
	aliceID    string
}

// newTestEnv wires a server over in-memory stores with two users: admin and
// alice (home /users/alice). Auditing is off unless withAudit is set.
func newTestEnv(t *testing.T, withAudit bool) *testEnv {
	t.Helper()
	ctx := context.Background()

	cfg := config.GetDefaultConfig()
	cfg.Auth.Secret = serverTestSecret
	cfg.Storage.Type = "memory"

	store := objmem.New()
	ids := idmem.New()

	tokens, err := auth.NewManager(auth.Config{Secret: serverTestSecret, Issuer: "test"})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	var (
		emitter *audit.Emitter
		sink    audit.Sink
	)
	if withAudit {
		sink, err = auditBadger.New(ctx, auditBadger.Config{InMemory: true})
		if err != nil {
			t.Fatalf("audit sink: %v", err)
		}
		t.Cleanup(func() { sink.Close() })
		emitter = audit.NewEmitter(sink, nil, 64)
	}

	srv, err := New(Options{
		Config:     cfg,
		Store:      store,
		Identities: ids,
		Tokens:     tokens,
		Emitter:    emitter,
		Sink:       sink,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	env := &testEnv{server: srv, store: store, ids: ids}
	env.adminID = env.createUser(t, "admin", "admin-pass", vfs.RoleAdmin, "/admin")
	env.aliceID = env.createUser(t, "alice", "alice-pass", vfs.RoleUser, "/users/alice")
	env.adminToken = env.login(t, "admin", "admin-pass")
	env.aliceToken = env.login(t, "alice", "alice-pass")
	return env
}

func (e *testEnv) createUser(t *testing.T, username, password string, role vfs.Role, home string) string {
	t.Helper()
	hash, err := identity.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := &identity.User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		HomePath:     home,
		Active:       true,
	}
	if err := e.ids.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser %s: %v", username, err)
	}
	return user.ID
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := e.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username, "password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, rec.Code, rec.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

// TestHealthz verifies the health endpoint needs no token.
func TestHealthz(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.doJSON(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

// TestLoginRejectsBadPassword verifies credentials are actually checked and
// the failure is indistinguishable from an unknown user.
func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}

	rec = env.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "nobody", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown user, got %d", rec.Code)
	}
}

// TestRefreshTokenFlow verifies refresh issues a new pair and access tokens
// are rejected at the refresh endpoint.
func TestRefreshTokenFlow(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "password": "alice-pass",
	})
	var pair auth.TokenPair
	if err := json.Unmarshal(rec.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode pair: %v", err)
	}

	rec = env.doJSON(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from refresh, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.doJSON(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refresh_token": pair.AccessToken,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for access token at refresh, got %d", rec.Code)
	}
}

// TestAuthRequired verifies API endpoints reject missing and garbage tokens.
func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.doJSON(t, http.MethodGet, "/api/files?path=/", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = env.doJSON(t, http.MethodGet, "/api/files?path=/", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rec.Code)
	}
}

// TestListRootVirtual verifies a non-admin's root listing is the virtual
// home-plus-grants view.
func TestListRootVirtual(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.Seed("users/alice/a.txt", []byte("hello"))

	rec := env.doJSON(t, http.MethodGet, "/api/files?path=/", env.aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Data[0].Name != "alice" || resp.Data[0].Kind != vfs.KindFolder {
		t.Fatalf("expected single folder entry 'alice', got %+v", resp.Data)
	}
}

// TestListOutsideGrantsDenied verifies listing outside home and grants is a
// 403, never an empty 200.
func TestListOutsideGrantsDenied(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.Seed("private/secret.txt", []byte("x"))

	rec := env.doJSON(t, http.MethodGet, "/api/files?path=/private", env.aliceToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

// TestGrantOpensAccess verifies a granted folder becomes listable and the
// grant shows up in the root view.
func TestGrantOpensAccess(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.Seed("shared/doc.txt", []byte("x"))

	rec := env.doJSON(t, http.MethodPut, "/api/users/"+env.aliceID+"/folders", env.adminToken,
		map[string]any{"grants": []map[string]any{
			{"folder_path": "/shared", "permission": "read"},
		}})
	if rec.Code != http.StatusOK {
		t.Fatalf("replace grants: status %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.doJSON(t, http.MethodGet, "/api/files?path=/shared", env.aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after grant, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Data[0].Name != "doc.txt" {
		t.Fatalf("expected doc.txt, got %+v", resp.Data)
	}
}

// TestUploadAndDownload round-trips a file through the multipart upload and
// the download endpoint.
func TestUploadAndDownload(t *testing.T) {
	env := newTestEnv(t, false)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "report.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte("quarterly numbers")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.WriteField("path", "/users/alice"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &buf)
	req.Header.Set("Authorization", "Bearer "+env.aliceToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var entry vfs.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.Name != "report.txt" || entry.Kind != vfs.KindFile {
		t.Fatalf("unexpected entry %+v", entry)
	}

	rec = env.doJSON(t, http.MethodGet, "/api/files/download?id="+entry.ID, env.aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "quarterly numbers" {
		t.Fatalf("downloaded bytes mismatch: %q", rec.Body.String())
	}
}

// TestFolderDownloadZip verifies a folder id downloads as a readable zip of
// its subtree, and an empty prefix is a 404.
func TestFolderDownloadZip(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.Seed("users/alice/docs/a.txt", []byte("aaa"))
	env.store.Seed("users/alice/docs/sub/b.txt", []byte("bbb"))

	id := vfs.EncodeID(vfs.KindFolder, "users/alice/docs/")
	rec := env.doJSON(t, http.MethodGet, "/api/files/download?id="+id, env.aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("expected zip content type, got %q", ct)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 archive entries, got %d", len(zr.File))
	}

	missing := vfs.EncodeID(vfs.KindFolder, "users/alice/nothing/")
	rec = env.doJSON(t, http.MethodGet, "/api/files/download?id="+missing, env.aliceToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty prefix, got %d", rec.Code)
	}
}

// TestBatchDeletePartialFailure verifies the partial-failure contract: valid
// ids succeed, the malformed one fails, and the response is still a 200.
func TestBatchDeletePartialFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.Seed("users/alice/1.txt", []byte("1"))
	env.store.Seed("users/alice/2.txt", []byte("2"))
	env.store.Seed("users/alice/3.txt", []byte("3"))

	ids := []string{
		vfs.EncodeID(vfs.KindFile, "users/alice/1.txt"),
		vfs.EncodeID(vfs.KindFile, "users/alice/2.txt"),
		vfs.EncodeID(vfs.KindFile, "users/alice/3.txt"),
		"bogus-id-without-tag",
	}
	rec := env.doJSON(t, http.MethodDelete, "/api/files", env.aliceToken, map[string]any{"ids": ids})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for batch, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		DeletedCount int          `json:"deleted_count"`
		Errors       []batchError `json:"errors"`
		Success      bool         `json:"success"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DeletedCount != 3 || len(resp.Errors) != 1 || resp.Success {
		t.Fatalf("unexpected batch response %+v", resp)
	}
	if resp.Errors[0].ID != "bogus-id-without-tag" {
		t.Fatalf("expected failure on the malformed id, got %+v", resp.Errors[0])
	}
}

// TestMoveFile verifies a move lands under the target and removes the
// source.
func TestMoveFile(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.Seed("users/alice/a.txt", []byte("data"))

	rec := env.doJSON(t, http.MethodPut, "/api/files/move", env.aliceToken, map[string]any{
		"ids":         []string{vfs.EncodeID(vfs.KindFile, "users/alice/a.txt")},
		"target_path": "/users/alice/archive",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		MovedCount int  `json:"moved_count"`
		Success    bool `json:"success"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.MovedCount != 1 || !resp.Success {
		t.Fatalf("unexpected response %+v", resp)
	}

	ctx := context.Background()
	if ok, _ := env.store.Exists(ctx, "users/alice/archive/a.txt"); !ok {
		t.Error("expected destination object")
	}
	if ok, _ := env.store.Exists(ctx, "users/alice/a.txt"); ok {
		t.Error("expected source to be gone")
	}
}

// TestMoveToDeniedTargetFailsWhole verifies a denied target path aborts the
// whole request with 403 rather than partial results.
func TestMoveToDeniedTargetFailsWhole(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.Seed("users/alice/a.txt", []byte("data"))

	rec := env.doJSON(t, http.MethodPut, "/api/files/move", env.aliceToken, map[string]any{
		"ids":         []string{vfs.EncodeID(vfs.KindFile, "users/alice/a.txt")},
		"target_path": "/private",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
	if ok, _ := env.store.Exists(context.Background(), "users/alice/a.txt"); !ok {
		t.Error("source must be untouched after a denied move")
	}
}

// TestCreateFolderConflict verifies folder creation and the 409 on an
// existing placeholder.
func TestCreateFolderConflict(t *testing.T) {
	env := newTestEnv(t, false)

	body := map[string]string{"name": "projects", "path": "/users/alice"}
	rec := env.doJSON(t, http.MethodPost, "/api/files/folder", env.aliceToken, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.doJSON(t, http.MethodPost, "/api/files/folder", env.aliceToken, body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d: %s", rec.Code, rec.Body.String())
	}
}

// TestRename verifies renaming via the endpoint returns the updated entry.
func TestRename(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.Seed("users/alice/old.txt", []byte("data"))

	rec := env.doJSON(t, http.MethodPut, "/api/files/rename", env.aliceToken, map[string]string{
		"id":   vfs.EncodeID(vfs.KindFile, "users/alice/old.txt"),
		"name": "new.txt",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var entry vfs.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.Name != "new.txt" {
		t.Fatalf("expected renamed entry, got %+v", entry)
	}
}

// TestShareWithoutPresignSupport verifies the memory store's lack of
// presigning surfaces as a 503, while preview degrades to metadata only.
func TestShareWithoutPresignSupport(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.Seed("users/alice/a.txt", []byte("data"))
	id := vfs.EncodeID(vfs.KindFile, "users/alice/a.txt")

	rec := env.doJSON(t, http.MethodGet, "/api/files/share?id="+id, env.aliceToken, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.doJSON(t, http.MethodGet, "/api/files/preview?id="+id, env.aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from preview, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp previewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Entry == nil || resp.URL != "" {
		t.Fatalf("expected metadata without url, got %+v", resp)
	}
}

// TestUserAdminEndpoints verifies role gating and the create/get/delete
// cycle.
func TestUserAdminEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.doJSON(t, http.MethodGet, "/api/users", env.aliceToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	rec = env.doJSON(t, http.MethodPost, "/api/users", env.adminToken, map[string]string{
		"username": "bob", "password": "bob-pass",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var bob identity.User
	if err := json.Unmarshal(rec.Body.Bytes(), &bob); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bob.HomePath != "/users/bob" || bob.Role != vfs.RoleUser {
		t.Fatalf("unexpected defaults %+v", bob)
	}

	rec = env.doJSON(t, http.MethodPost, "/api/users", env.adminToken, map[string]string{
		"username": "bob", "password": "other",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", rec.Code)
	}

	rec = env.doJSON(t, http.MethodDelete, "/api/users/"+bob.ID, env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.doJSON(t, http.MethodGet, "/api/users/"+bob.ID, env.adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

// TestDeleteOwnAccountRejected verifies an admin cannot delete itself.
func TestDeleteOwnAccountRejected(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.doJSON(t, http.MethodDelete, "/api/users/"+env.adminID, env.adminToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// TestDeactivatedUserLockedOut verifies deactivation takes effect on the
// next request even with a live token.
func TestDeactivatedUserLockedOut(t *testing.T) {
	env := newTestEnv(t, false)

	inactive := false
	rec := env.doJSON(t, http.MethodPut, "/api/users/"+env.aliceID, env.adminToken, map[string]any{
		"active": &inactive,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.doJSON(t, http.MethodGet, "/api/files?path=/", env.aliceToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for deactivated user, got %d", rec.Code)
	}
}

// TestSFTPProvisionAndStatus verifies server-side key generation hands the
// private key out exactly once and status reflects provisioning.
func TestSFTPProvisionAndStatus(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.doJSON(t, http.MethodPost, "/api/sftp/provision", env.aliceToken, map[string]string{})
	if rec.Code != http.StatusCreated {
		t.Fatalf("provision: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var prov provisionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &prov); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if prov.PrivateKey == "" || prov.Fingerprint == "" || prov.Username != "alice" {
		t.Fatalf("unexpected provision response %+v", prov)
	}

	rec = env.doJSON(t, http.MethodGet, "/api/sftp/status", env.aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	var status sftpStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Provisioned || status.Fingerprint != prov.Fingerprint {
		t.Fatalf("unexpected status %+v", status)
	}
}

// TestSFTPConnectionsAdminOnly verifies the session registry endpoints are
// gated and the close lifecycle works.
func TestSFTPConnectionsAdminOnly(t *testing.T) {
	env := newTestEnv(t, false)
	conn := env.server.sftpReg.Open(env.aliceID, "alice", "203.0.113.9:2022")

	rec := env.doJSON(t, http.MethodGet, "/api/sftp/connections", env.aliceToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	rec = env.doJSON(t, http.MethodGet, "/api/sftp/connections", env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp connectionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 {
		t.Fatalf("expected one live connection, got %d", resp.Total)
	}

	rec = env.doJSON(t, http.MethodDelete, "/api/sftp/connections/"+conn.ID, env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d", rec.Code)
	}

	rec = env.doJSON(t, http.MethodDelete, "/api/sftp/connections/"+conn.ID, env.adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double close: expected 404, got %d", rec.Code)
	}
}

// TestActivityTrail verifies events land in the trail, the admin query
// filters by actor and /mine is pinned to the caller.
func TestActivityTrail(t *testing.T) {
	env := newTestEnv(t, true)
	env.store.Seed("users/alice/a.txt", []byte("data"))

	rec := env.doJSON(t, http.MethodDelete, "/api/files", env.aliceToken, map[string]any{
		"ids": []string{vfs.EncodeID(vfs.KindFile, "users/alice/a.txt")},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}

	// Drain the async queue before querying.
	env.server.emitter.Close()

	rec = env.doJSON(t, http.MethodGet, "/api/activity?action=delete", env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("activity: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp activityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Data[0].ActorName != "alice" || resp.Data[0].Action != audit.ActionDelete {
		t.Fatalf("unexpected trail %+v", resp)
	}

	rec = env.doJSON(t, http.MethodGet, "/api/activity/mine", env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mine: expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, ev := range resp.Data {
		if ev.ActorID != env.adminID {
			t.Fatalf("mine leaked foreign event %+v", ev)
		}
	}

	rec = env.doJSON(t, http.MethodGet, "/api/activity", env.aliceToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin activity query, got %d", rec.Code)
	}
}

// TestDashboard verifies the admin dashboard aggregates and its gating.
func TestDashboard(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.Seed("users/alice/a.txt", []byte("12345"))
	env.store.Seed("projects/readme.md", []byte("12345"))

	rec := env.doJSON(t, http.MethodGet, "/api/stats/dashboard", env.aliceToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	rec = env.doJSON(t, http.MethodGet, "/api/stats/dashboard", env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp dashboardResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalUsers != 2 || resp.ObjectCount != 2 || resp.TotalSize != 10 || resp.FolderCount != 2 {
		t.Fatalf("unexpected dashboard %+v", resp)
	}
}

// TestBucketInfo verifies the admin bucket statistics endpoint.
func TestBucketInfo(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.Seed("a/1.txt", []byte("xx"))
	env.store.Seed("b/2.txt", []byte("yy"))

	rec := env.doJSON(t, http.MethodGet, "/api/folders/bucket-info", env.adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp bucketInfoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ObjectCount != 2 || resp.TotalSize != 4 || resp.FolderCount != 2 {
		t.Fatalf("unexpected bucket info %+v", resp)
	}
}

// TestSearch verifies substring search scoped to an authorized subtree.
func TestSearch(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.Seed("users/alice/notes/meeting.md", []byte("x"))
	env.store.Seed("users/alice/pic.png", []byte("x"))

	rec := env.doJSON(t, http.MethodGet, "/api/files/search?query=meet&path=/users/alice", env.aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Data[0].Name != "meeting.md" {
		t.Fatalf("unexpected search result %+v", resp.Data)
	}
}

// TestUsage verifies usage aggregation over an authorized path.
func TestUsage(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.Seed("users/alice/a.txt", []byte("12345678"))
	env.store.Seed("users/alice/sub/b.txt", []byte("12"))

	rec := env.doJSON(t, http.MethodGet, "/api/files/usage?path=/users/alice", env.aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var usage vfs.Usage
	if err := json.Unmarshal(rec.Body.Bytes(), &usage); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if usage.ObjectCount != 2 || usage.TotalSize != 10 {
		t.Fatalf("unexpected usage %+v", usage)
	}
}

// TestMoveDeleteFailureSurfacesAsItemError verifies the copy-then-delete
// move semantics at the HTTP level: a failing source delete leaves a
// duplicate and reports the item as failed in a 200 response.
func TestMoveDeleteFailureSurfacesAsItemError(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.Seed("users/alice/a.txt", []byte("data"))
	env.store.FailWith(objmem.OpDelete, "users/alice/a.txt", fmt.Errorf("delete refused: %w", errInjected))

	rec := env.doJSON(t, http.MethodPut, "/api/files/move", env.aliceToken, map[string]any{
		"ids":         []string{vfs.EncodeID(vfs.KindFile, "users/alice/a.txt")},
		"target_path": "/users/alice/dst",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		MovedCount int          `json:"moved_count"`
		Errors     []batchError `json:"errors"`
		Success    bool         `json:"success"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.MovedCount != 0 || len(resp.Errors) != 1 || resp.Success {
		t.Fatalf("unexpected response %+v", resp)
	}

	ctx := context.Background()
	if ok, _ := env.store.Exists(ctx, "users/alice/dst/a.txt"); !ok {
		t.Error("expected the copied destination to remain")
	}
	if ok, _ := env.store.Exists(ctx, "users/alice/a.txt"); !ok {
		t.Error("expected the undeletable source to remain")
	}
}

var errInjected = errors.New("injected")
