package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mhaswell/fabtrace/internal/metrics"
	"github.com/mhaswell/fabtrace/internal/store"
	"github.com/mhaswell/fabtrace/internal/store/postgres"
	"github.com/mhaswell/fabtrace/internal/tenant"
)

// tenantSourceHeader reports how the response's tenant context was resolved.
const tenantSourceHeader = "X-Tenant-Source"

// errRolledBack signals the request transaction was aborted because the
// handler already wrote an error response.
var errRolledBack = errors.New("request transaction rolled back")

// authMiddleware loads the principal named by a bearer token. Requests
// without credentials proceed anonymously; permission checks downstream
// decide what anonymous callers may do.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r.WithContext(tenant.WithScope(r.Context(), tenant.NewScope(nil))))
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			s.respondError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		principalID, _, err := s.jwt.ValidateToken(token)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		principal, err := s.stores.Principals.Get(r.Context(), principalID)
		if err != nil {
			if errors.Is(err, store.ErrPrincipalNotFound) {
				s.respondError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			s.respondError(w, http.StatusInternalServerError, "internal error")
			return
		}

		scope := tenant.NewScope(principal)
		next.ServeHTTP(w, r.WithContext(tenant.WithScope(r.Context(), scope)))
	})
}

// tenantMiddleware resolves the request's tenant into the scope and echoes
// the outcome in response headers.
func (s *Server) tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := tenant.ScopeFromContext(r.Context())

		res, err := s.resolver.Resolve(r.Context(), tenant.Request{
			Path:      r.URL.Path,
			Host:      r.Host,
			Header:    r.Header.Get(s.resolver.Header()),
			Principal: scope.Principal,
		})
		if err != nil {
			switch {
			case errors.Is(err, tenant.ErrTenantNotFound):
				metrics.TenantResolutionFailures.WithLabelValues("not_found").Inc()
				s.respondError(w, http.StatusNotFound, "tenant not found")
			case errors.Is(err, tenant.ErrAccessDenied):
				metrics.TenantResolutionFailures.WithLabelValues("access_denied").Inc()
				s.respondError(w, http.StatusForbidden, "access to tenant denied")
			default:
				metrics.TenantResolutionFailures.WithLabelValues("error").Inc()
				log.Ctx(r.Context()).Error().Err(err).Msg("Tenant resolution failed")
				s.respondError(w, http.StatusInternalServerError, "internal error")
			}
			return
		}

		scope.SetTenant(res.Tenant, res.Source)
		metrics.TenantResolutions.WithLabelValues(string(res.Source)).Inc()

		w.Header().Set(tenantSourceHeader, string(res.Source))
		if res.Tenant != nil {
			w.Header().Set(s.resolver.Header(), res.Tenant.Slug)
		}

		next.ServeHTTP(w, r)
	})
}

// txMiddleware wraps the handler in one tenant-scoped transaction: the
// request is the unit of work. An error response from the handler rolls the
// transaction back, so a half-completed handler never commits.
func (s *Server) txMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.db == nil {
			next.ServeHTTP(w, r)
			return
		}

		scope := tenant.ScopeFromContext(r.Context())

		rec := &statusRecorder{ResponseWriter: w}
		err := s.db.RunScopedFor(r.Context(), scope.Tenant(), func(ctx context.Context) error {
			next.ServeHTTP(rec, r.WithContext(ctx))
			if rec.status >= http.StatusBadRequest {
				return errRolledBack
			}
			return nil
		})
		if err == nil || errors.Is(err, errRolledBack) {
			return
		}

		if errors.Is(err, postgres.ErrIsolationSetup) {
			metrics.IsolationFailures.Inc()
			log.Ctx(r.Context()).Error().Err(err).Msg("Tenant isolation setup failed")
			s.respondError(w, http.StatusServiceUnavailable, "tenant isolation unavailable")
			return
		}

		log.Ctx(r.Context()).Error().Err(err).Msg("Request transaction failed")
		if !rec.wrote {
			s.respondError(w, http.StatusInternalServerError, "internal error")
		}
	})
}

// statusRecorder captures the response status so the transaction middleware
// can decide between commit and rollback after the handler returns.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wrote {
		r.status = status
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.status = http.StatusOK
		r.wrote = true
	}
	return r.ResponseWriter.Write(b)
}
