// Package tenant implements tenant resolution and the per-unit-of-work scope
// that carries the resolved tenant through a request or background job.
package tenant

import (
	"context"

	"github.com/google/uuid"
	"github.com/mhaswell/fabtrace/internal/models"
)

// Source identifies how the tenant context of a unit of work was resolved.
type Source string

const (
	SourceHeader    Source = "header"
	SourceSubdomain Source = "subdomain"
	SourcePrincipal Source = "principal"
	SourceDefault   Source = "default"
	SourceNone      Source = "none"
)

// Scope is the per-unit-of-work context: the authenticated principal (if
// any), the resolved tenant, and the permission cache. A Scope is created at
// the start of a request or job and discarded at the end; it is never shared
// across units of work, so no locking is needed. State that used to live as
// ad-hoc attributes on the principal lives here instead.
type Scope struct {
	Principal *models.Principal

	tenant *models.Tenant
	source Source

	// perms caches computed permission sets keyed by tenant, for the
	// lifetime of this scope only. uuid.Nil keys the no-tenant case.
	perms map[uuid.UUID][]string
}

// NewScope creates a scope for a unit of work, with no tenant resolved yet.
func NewScope(principal *models.Principal) *Scope {
	return &Scope{Principal: principal, source: SourceNone}
}

// Tenant returns the resolved tenant, or nil.
func (s *Scope) Tenant() *models.Tenant {
	return s.tenant
}

// Source returns how the tenant was resolved.
func (s *Scope) Source() Source {
	return s.source
}

// TenantID returns the resolved tenant's ID, or nil when unscoped.
func (s *Scope) TenantID() *uuid.UUID {
	if s.tenant == nil {
		return nil
	}
	return &s.tenant.TenantID
}

// SetTenant records the resolved tenant and drops every cached permission
// set: permissions computed under a previous tenant must never survive a
// tenant change within the same unit of work.
func (s *Scope) SetTenant(tenant *models.Tenant, source Source) {
	s.tenant = tenant
	s.source = source
	s.perms = nil
}

// CachedPermissions returns the permission set cached for a tenant, if any.
func (s *Scope) CachedPermissions(tenantID uuid.UUID) ([]string, bool) {
	perms, ok := s.perms[tenantID]
	return perms, ok
}

// CachePermissions stores a computed permission set for a tenant.
func (s *Scope) CachePermissions(tenantID uuid.UUID, perms []string) {
	if s.perms == nil {
		s.perms = make(map[uuid.UUID][]string)
	}
	s.perms[tenantID] = perms
}

type scopeContextKey struct{}

// WithScope attaches a scope to the context.
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the scope from the context.
// Returns nil for units of work that never established one.
func ScopeFromContext(ctx context.Context) *Scope {
	scope, _ := ctx.Value(scopeContextKey{}).(*Scope)
	return scope
}
