// Package api implements the REST surface. Every request flows through the
// same pipeline: authentication, tenant resolution, a tenant-scoped
// transaction, then the handler.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mhaswell/fabtrace/internal/auth"
	"github.com/mhaswell/fabtrace/internal/logger"
	"github.com/mhaswell/fabtrace/internal/permission"
	"github.com/mhaswell/fabtrace/internal/store"
	"github.com/mhaswell/fabtrace/internal/store/postgres"
	"github.com/mhaswell/fabtrace/internal/tenant"
)

// Stores bundles the storage interfaces the server depends on.
type Stores struct {
	Tenants    store.TenantStore
	Principals store.PrincipalStore
	Groups     store.GroupStore
	Orders     store.OrderStore
	CAPAs      store.CAPAStore
	Audit      store.AuditStore
}

// Server is the REST API server.
type Server struct {
	stores   Stores
	resolver *tenant.Resolver
	perms    *permission.Resolver
	jwt      *auth.JWTManager

	// db is nil when running against memory stores; request transactions
	// are skipped in that case.
	db *postgres.DB

	// nextCAPANumber issues the next CAPA number inside the request's
	// transaction scope.
	nextCAPANumber func(ctx context.Context, tenantID *uuid.UUID) (string, error)

	router  chi.Router
	server  *http.Server
	metrics http.Handler
}

// Option configures optional server dependencies.
type Option func(*Server)

// WithDB enables tenant-scoped request transactions.
func WithDB(db *postgres.DB) Option {
	return func(s *Server) { s.db = db }
}

// WithCAPANumberSource sets the CAPA number issuer.
func WithCAPANumberSource(next func(ctx context.Context, tenantID *uuid.UUID) (string, error)) Option {
	return func(s *Server) { s.nextCAPANumber = next }
}

// WithMetricsHandler mounts a handler at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewServer creates the REST API server.
func NewServer(stores Stores, resolver *tenant.Resolver, perms *permission.Resolver, jwt *auth.JWTManager, opts ...Option) *Server {
	s := &Server{
		stores:   stores,
		resolver: resolver,
		perms:    perms,
		jwt:      jwt,
		router:   chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.nextCAPANumber == nil {
		s.nextCAPANumber = func(ctx context.Context, tenantID *uuid.UUID) (string, error) {
			return "", errors.New("capa number source not configured")
		}
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router returns the configured router, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(logger.Requests(log.Logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", s.resolver.Header()},
		ExposedHeaders:   []string{s.resolver.Header(), tenantSourceHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/healthz", s.HandleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Use(s.tenantMiddleware)
			r.Use(s.txMiddleware)

			r.Get("/tenant", s.HandleCurrentTenant)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", s.HandleListOrders)
				r.Post("/", s.HandleCreateOrder)
				r.Get("/{id}", s.HandleGetOrder)
			})

			r.Route("/capas", func(r chi.Router) {
				r.Get("/", s.HandleListCAPAs)
				r.Post("/", s.HandleCreateCAPA)
				r.Get("/{id}", s.HandleGetCAPA)
				r.Get("/{id}/audit", s.HandleCAPAAudit)
			})
		})
	})
}

// ListenAndServe starts the server.
func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// HandleHealth reports liveness.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
