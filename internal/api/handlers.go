package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mhaswell/fabtrace/internal/auth"
	"github.com/mhaswell/fabtrace/internal/metrics"
	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/permission"
	"github.com/mhaswell/fabtrace/internal/store"
	"github.com/mhaswell/fabtrace/internal/tenant"
)

// HandleLogin authenticates a principal and issues an access token.
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	principal, err := s.stores.Principals.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			s.respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.respondStoreError(w, err)
		return
	}

	if !auth.VerifyPassword(req.Password, principal.PasswordHash) {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.jwt.GenerateToken(principal)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to issue token")
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
	})
}

// HandleCurrentTenant reports the resolved tenant context and the caller's
// effective permissions within it.
func (s *Server) HandleCurrentTenant(w http.ResponseWriter, r *http.Request) {
	scope := tenant.ScopeFromContext(r.Context())

	perms, err := s.perms.PermissionsFor(r.Context(), scope)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	resp := map[string]any{
		"source":      scope.Source(),
		"permissions": perms,
	}
	if t := scope.Tenant(); t != nil {
		resp["tenant"] = map[string]any{
			"tenant_id": t.TenantID,
			"slug":      t.Slug,
			"name":      t.Name,
			"status":    t.Status,
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// requirePermission checks the caller holds p in the current scope.
func (s *Server) requirePermission(w http.ResponseWriter, r *http.Request, p permission.Permission) bool {
	scope := tenant.ScopeFromContext(r.Context())
	if err := s.perms.Check(r.Context(), scope, p); err != nil {
		if errors.Is(err, permission.ErrPermissionDenied) {
			metrics.PermissionDenials.WithLabelValues(string(p)).Inc()
		}
		s.respondStoreError(w, err)
		return false
	}
	return true
}

// requireTenant rejects writes issued without a tenant context.
func (s *Server) requireTenant(w http.ResponseWriter, r *http.Request) (*tenant.Scope, bool) {
	scope := tenant.ScopeFromContext(r.Context())
	if scope.Tenant() == nil {
		s.respondError(w, http.StatusBadRequest, "no tenant context")
		return nil, false
	}
	return scope, true
}

// inScope reports whether a row owned by rowTenant is visible to the scope.
// Shared rows (nil owner) are visible to every tenant.
func inScope(scope *tenant.Scope, rowTenant *uuid.UUID) bool {
	if rowTenant == nil {
		return true
	}
	id := scope.TenantID()
	return id != nil && *id == *rowTenant
}

func (s *Server) audit(r *http.Request, action, entity, entityID string) error {
	scope := tenant.ScopeFromContext(r.Context())
	event := &models.AuditEvent{
		EventID:   uuid.Must(uuid.NewV7()),
		TenantID:  scope.TenantID(),
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		CreatedAt: time.Now(),
	}
	if scope.Principal != nil {
		event.PrincipalID = &scope.Principal.PrincipalID
	}
	if err := s.stores.Audit.Append(r.Context(), event); err != nil {
		// A write without its audit trail must not survive: the caller
		// fails the request, which rolls the transaction back.
		log.Ctx(r.Context()).Error().Err(err).Str("action", action).Msg("Failed to append audit event")
		return err
	}
	return nil
}

// ========== Order handlers ==========

// HandleListOrders lists the orders visible to the current tenant scope.
func (s *Server) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	if !s.requirePermission(w, r, permission.OrdersView) {
		return
	}

	scope := tenant.ScopeFromContext(r.Context())
	orders, err := s.stores.Orders.List(r.Context(), scope.TenantID())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// HandleCreateOrder creates an order in the current tenant.
func (s *Server) HandleCreateOrder(w http.ResponseWriter, r *http.Request) {
	if !s.requirePermission(w, r, permission.OrdersCreate) {
		return
	}
	scope, ok := s.requireTenant(w, r)
	if !ok {
		return
	}

	var req struct {
		Name     string `json:"name"`
		Customer string `json:"customer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	now := time.Now()
	order := &models.Order{
		OrderID:   uuid.Must(uuid.NewV7()),
		TenantID:  scope.TenantID(),
		Name:      req.Name,
		Customer:  req.Customer,
		Status:    models.OrderStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.stores.Orders.Create(r.Context(), order); err != nil {
		s.respondStoreError(w, err)
		return
	}
	if err := s.audit(r, "order.create", "order", order.OrderID.String()); err != nil {
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.respondJSON(w, http.StatusCreated, order)
}

// HandleGetOrder retrieves one order. Rows outside the caller's tenant read
// as not found.
func (s *Server) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	if !s.requirePermission(w, r, permission.OrdersView) {
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := s.stores.Orders.Get(r.Context(), orderID)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	scope := tenant.ScopeFromContext(r.Context())
	if !inScope(scope, order.TenantID) {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}

	s.respondJSON(w, http.StatusOK, order)
}

// ========== CAPA handlers ==========

// HandleListCAPAs lists the CAPAs visible to the current tenant scope.
func (s *Server) HandleListCAPAs(w http.ResponseWriter, r *http.Request) {
	if !s.requirePermission(w, r, permission.CAPAsView) {
		return
	}

	scope := tenant.ScopeFromContext(r.Context())
	capas, err := s.stores.CAPAs.List(r.Context(), scope.TenantID())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"capas": capas})
}

// HandleCreateCAPA creates a CAPA, issuing its number within the request's
// transaction so the insert and the number computation commit together.
func (s *Server) HandleCreateCAPA(w http.ResponseWriter, r *http.Request) {
	if !s.requirePermission(w, r, permission.CAPAsCreate) {
		return
	}
	scope, ok := s.requireTenant(w, r)
	if !ok {
		return
	}

	var req struct {
		Title   string `json:"title"`
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var orderID *uuid.UUID
	if req.OrderID != "" {
		id, err := uuid.Parse(req.OrderID)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid order id")
			return
		}
		order, err := s.stores.Orders.Get(r.Context(), id)
		if err != nil || !inScope(scope, order.TenantID) {
			s.respondError(w, http.StatusNotFound, "order not found")
			return
		}
		orderID = &order.OrderID
	}

	number, err := s.nextCAPANumber(r.Context(), scope.TenantID())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	now := time.Now()
	capa := &models.CAPA{
		CAPAID:    uuid.Must(uuid.NewV7()),
		TenantID:  scope.TenantID(),
		Number:    number,
		Title:     req.Title,
		Status:    models.CAPAStatusOpen,
		OrderID:   orderID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.stores.CAPAs.Create(r.Context(), capa); err != nil {
		s.respondStoreError(w, err)
		return
	}
	if err := s.audit(r, "capa.create", "capa", capa.CAPAID.String()); err != nil {
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.respondJSON(w, http.StatusCreated, capa)
}

// HandleGetCAPA retrieves one CAPA.
func (s *Server) HandleGetCAPA(w http.ResponseWriter, r *http.Request) {
	if !s.requirePermission(w, r, permission.CAPAsView) {
		return
	}

	capa, ok := s.loadCAPA(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, capa)
}

// HandleCAPAAudit returns the audit trail of one CAPA.
func (s *Server) HandleCAPAAudit(w http.ResponseWriter, r *http.Request) {
	if !s.requirePermission(w, r, permission.AuditView) {
		return
	}

	capa, ok := s.loadCAPA(w, r)
	if !ok {
		return
	}

	events, err := s.stores.Audit.ListByEntity(r.Context(), "capa", capa.CAPAID.String())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) loadCAPA(w http.ResponseWriter, r *http.Request) (*models.CAPA, bool) {
	capaID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid capa id")
		return nil, false
	}

	capa, err := s.stores.CAPAs.Get(r.Context(), capaID)
	if err != nil {
		s.respondStoreError(w, err)
		return nil, false
	}

	scope := tenant.ScopeFromContext(r.Context())
	if !inScope(scope, capa.TenantID) {
		s.respondError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	return capa, true
}
