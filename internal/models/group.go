package models

import (
	"time"

	"github.com/google/uuid"
)

// Group is a tenant-owned bundle of permissions. Group names are unique
// within a tenant only; two tenants may each have an "Administrators" group
// and the two are unrelated.
type Group struct {
	GroupID  uuid.UUID // UUIDv7
	TenantID uuid.UUID
	Name     string

	// Permissions are concrete grants. Wildcard patterns from the seed spec
	// are expanded before they reach this field.
	Permissions []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Membership associates a principal with a group, implicitly scoping the
// principal to the group's tenant. A principal may hold memberships across
// several tenants; each unit of work still resolves to exactly one.
type Membership struct {
	PrincipalID uuid.UUID
	GroupID     uuid.UUID
	CreatedAt   time.Time
}
