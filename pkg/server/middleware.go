package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stratafs/stratafs/pkg/vfs"
)

type contextKey string

const principalKey contextKey = "principal"

// principalFrom returns the authenticated principal stored by withAuth.
func principalFrom(ctx context.Context) (vfs.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(vfs.Principal)
	return principal, ok
}

// withAuth authenticates the request with the bearer token, resolves the
// user and its grants into a principal and stores it on the context.
//
// The principal is rebuilt from the identity store on every request rather
// than trusted from the token: deactivating a user or revoking a grant takes
// effect immediately, not at token expiry.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			jsonError(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			jsonError(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}

		claims, err := s.tokens.ParseAccess(parts[1])
		if err != nil {
			jsonError(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		user, err := s.identities.GetUser(r.Context(), claims.Subject)
		if err != nil {
			jsonError(w, "unknown user", http.StatusUnauthorized)
			return
		}
		if !user.Active {
			jsonError(w, "account disabled", http.StatusForbidden)
			return
		}

		grants, err := s.identities.ListGrants(r.Context(), user.ID)
		if err != nil {
			respondError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, user.Principal(grants))
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin gates a handler on the admin role. Runs inside withAuth.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFrom(r.Context())
		if !ok {
			jsonError(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		if !principal.IsAdmin() {
			jsonError(w, "admin access required", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument wraps a handler with request logging and HTTP metrics.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		done := s.httpMetrics.TrackInFlight()
		defer done()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next(rec, r)

		duration := time.Since(start)
		s.httpMetrics.ObserveRequest(route, r.Method, rec.status, duration)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", duration).
			Str("ip", clientIP(r)).
			Msg("request")
	}
}

// clientIP extracts the originating client address, honoring the first
// X-Forwarded-For hop when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
