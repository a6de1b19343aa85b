package models

import (
	"time"

	"github.com/google/uuid"
)

// Principal represents an identity in the system.
// A principal may have a home tenant (the tenant it was created under),
// additional cross-tenant group memberships, or neither. Platform superusers
// have no home tenant and pass every permission check.
type Principal struct {
	PrincipalID uuid.UUID  // UUIDv7
	TenantID    *uuid.UUID // home tenant, nil for platform accounts
	Email       string     // unique
	Name        string
	Superuser   bool

	// PasswordHash is a bcrypt hash; empty for SSO-only accounts.
	PasswordHash string

	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastSeenAt *time.Time
}
