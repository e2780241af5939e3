// Package server exposes the file management API over HTTP.
//
// All endpoints speak JSON and, apart from login, health and metrics, expect
// a bearer token minted by the auth manager. Authorization decisions live in
// pkg/vfs; this package only translates HTTP into principal-scoped calls and
// maps the domain sentinels back to status codes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/stratafs/stratafs/pkg/audit"
	"github.com/stratafs/stratafs/pkg/auth"
	"github.com/stratafs/stratafs/pkg/config"
	"github.com/stratafs/stratafs/pkg/identity"
	"github.com/stratafs/stratafs/pkg/metrics"
	"github.com/stratafs/stratafs/pkg/sftp"
	"github.com/stratafs/stratafs/pkg/store/object"
	"github.com/stratafs/stratafs/pkg/vfs"
)

// Options bundles the collaborators the server needs. Emitter and Sink may
// be nil when auditing is disabled.
type Options struct {
	Config     *config.Config
	Store      object.Store
	Identities identity.Store
	Tokens     *auth.Manager
	Emitter    *audit.Emitter
	Sink       audit.Sink
}

// Server is the HTTP API server.
type Server struct {
	cfg        *config.Config
	store      object.Store
	projector  *vfs.Projector
	mutator    *vfs.Mutator
	identities identity.Store
	tokens     *auth.Manager
	emitter    *audit.Emitter
	sink       audit.Sink
	sftpReg    *sftp.Registry

	httpMetrics    *metrics.HTTPMetrics
	storageMetrics *metrics.StorageMetrics

	mux          *http.ServeMux
	httpServer   *http.Server
	startTime    time.Time
	shutdownOnce sync.Once
}

// New creates the server and registers its routes.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if opts.Identities == nil {
		return nil, fmt.Errorf("identity store is required")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("token manager is required")
	}

	s := &Server{
		cfg:            opts.Config,
		store:          opts.Store,
		projector:      vfs.NewProjector(opts.Store),
		mutator:        vfs.NewMutator(opts.Store, opts.Config.Server.CopyWorkers),
		identities:     opts.Identities,
		tokens:         opts.Tokens,
		emitter:        opts.Emitter,
		sink:           opts.Sink,
		sftpReg:        sftp.NewRegistry(),
		httpMetrics:    metrics.NewHTTPMetrics(),
		storageMetrics: metrics.NewStorageMetrics(),
		mux:            http.NewServeMux(),
		startTime:      time.Now(),
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	if metrics.IsEnabled() {
		s.mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}

	s.mux.HandleFunc("/api/auth/login", s.instrument("auth_login", s.handleLogin))
	s.mux.HandleFunc("/api/auth/refresh", s.instrument("auth_refresh", s.handleRefresh))
	s.mux.HandleFunc("/api/auth/me", s.instrument("auth_me", s.withAuth(s.handleMe)))

	s.mux.HandleFunc("/api/files", s.instrument("files", s.withAuth(s.handleFiles)))
	s.mux.HandleFunc("/api/files/upload", s.instrument("files_upload", s.withAuth(s.handleUpload)))
	s.mux.HandleFunc("/api/files/download", s.instrument("files_download", s.withAuth(s.handleDownload)))
	s.mux.HandleFunc("/api/files/rename", s.instrument("files_rename", s.withAuth(s.handleRename)))
	s.mux.HandleFunc("/api/files/move", s.instrument("files_move", s.withAuth(s.handleMove)))
	s.mux.HandleFunc("/api/files/copy", s.instrument("files_copy", s.withAuth(s.handleCopy)))
	s.mux.HandleFunc("/api/files/folder", s.instrument("files_folder", s.withAuth(s.handleCreateFolder)))
	s.mux.HandleFunc("/api/files/search", s.instrument("files_search", s.withAuth(s.handleSearch)))
	s.mux.HandleFunc("/api/files/share", s.instrument("files_share", s.withAuth(s.handleShare)))
	s.mux.HandleFunc("/api/files/preview", s.instrument("files_preview", s.withAuth(s.handlePreview)))
	s.mux.HandleFunc("/api/files/usage", s.instrument("files_usage", s.withAuth(s.handleUsage)))

	s.mux.HandleFunc("/api/folders", s.instrument("folders", s.withAuth(s.requireAdmin(s.handleTopLevelFolders))))
	s.mux.HandleFunc("/api/folders/bucket-info", s.instrument("folders_bucket_info", s.withAuth(s.requireAdmin(s.handleBucketInfo))))

	s.mux.HandleFunc("/api/users", s.instrument("users", s.withAuth(s.requireAdmin(s.handleUsers))))
	s.mux.HandleFunc("/api/users/", s.instrument("users_by_id", s.withAuth(s.requireAdmin(s.handleUserByID))))

	s.mux.HandleFunc("/api/sftp/status", s.instrument("sftp_status", s.withAuth(s.handleSFTPStatus)))
	s.mux.HandleFunc("/api/sftp/provision", s.instrument("sftp_provision", s.withAuth(s.handleSFTPProvision)))
	s.mux.HandleFunc("/api/sftp/connections", s.instrument("sftp_connections", s.withAuth(s.handleSFTPConnections)))
	s.mux.HandleFunc("/api/sftp/connections/", s.instrument("sftp_connection_by_id", s.withAuth(s.handleSFTPConnectionByID)))

	s.mux.HandleFunc("/api/activity", s.instrument("activity", s.withAuth(s.requireAdmin(s.handleActivity))))
	s.mux.HandleFunc("/api/activity/mine", s.instrument("activity_mine", s.withAuth(s.handleActivityMine)))

	s.mux.HandleFunc("/api/stats/dashboard", s.instrument("stats_dashboard", s.withAuth(s.requireAdmin(s.handleDashboard))))
}

// ServeHTTP implements http.Handler; exposed for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Serve runs the HTTP server and blocks until the context is cancelled or
// the listener fails. Cancellation triggers graceful shutdown bounded by the
// configured shutdown timeout.
func (s *Server) Serve(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.mux,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Server.ListenAddr).Msg("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.httpServer == nil {
			return
		}
		if err := s.httpServer.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
		} else {
			log.Info().Msg("HTTP server stopped gracefully")
		}
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// emit records an activity event, filling in the request-derived actor and
// client fields. A nil emitter (auditing disabled) makes this a no-op.
func (s *Server) emit(r *http.Request, event audit.Event) {
	if s.emitter == nil {
		return
	}
	event.ClientIP = clientIP(r)
	event.UserAgent = r.UserAgent()
	if event.ActorID == "" {
		if principal, ok := principalFrom(r.Context()); ok {
			event.ActorID = principal.ID
			event.ActorName = principal.Username
		}
	}
	s.emitter.Emit(&event)
}
