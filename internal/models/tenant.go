package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantStatus represents the lifecycle status of a tenant.
type TenantStatus string

const (
	TenantStatusActive          TenantStatus = "active"
	TenantStatusTrial           TenantStatus = "trial"
	TenantStatusSuspended       TenantStatus = "suspended"
	TenantStatusPendingDeletion TenantStatus = "pending_deletion"
)

// Tenant represents an isolated customer organization. All tenant-partitioned
// data hangs off its ID; the slug is the URL-safe identity used on subdomains
// and in the tenant selection header, and is immutable after creation.
type Tenant struct {
	TenantID uuid.UUID // UUIDv7
	Slug     string    // unique, immutable
	Name     string
	Status   TenantStatus

	// RLSEnforced controls whether database row-level security is required
	// for this tenant's units of work. When true, a failure to establish the
	// session tenant variable aborts the unit of work.
	RLSEnforced bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Usable reports whether the tenant can be resolved into. Suspended and
// pending-deletion tenants exist but accept no tenant-scoped traffic.
func (t *Tenant) Usable() bool {
	return t.Status == TenantStatusActive || t.Status == TenantStatusTrial
}

// CanTransition reports whether the tenant may move to the given status.
// The lifecycle runs forward only (trial, active, suspended, pending
// deletion), with suspension the single reversible step: a suspended tenant
// may return to active. Pending deletion is terminal.
func (t *Tenant) CanTransition(to TenantStatus) bool {
	if to == t.Status {
		return false
	}
	switch t.Status {
	case TenantStatusTrial:
		return to == TenantStatusActive || to == TenantStatusSuspended || to == TenantStatusPendingDeletion
	case TenantStatusActive:
		return to == TenantStatusSuspended || to == TenantStatusPendingDeletion
	case TenantStatusSuspended:
		return to == TenantStatusActive || to == TenantStatusPendingDeletion
	default:
		return false
	}
}
