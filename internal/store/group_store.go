package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/mhaswell/fabtrace/internal/models"
)

// GroupStore manages tenant-scoped groups and the memberships that tie
// principals to them. These tables are control-plane data: tenant resolution
// and permission computation read them before a tenant scope exists.
type GroupStore interface {
	// Create creates a group owned by a tenant.
	Create(ctx context.Context, group *models.Group) error

	// Get retrieves a group by ID.
	// Returns ErrGroupNotFound if it doesn't exist.
	Get(ctx context.Context, groupID uuid.UUID) (*models.Group, error)

	// ListByTenant returns all groups owned by a tenant.
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Group, error)

	// AddMember adds a principal to a group.
	AddMember(ctx context.Context, principalID, groupID uuid.UUID) error

	// RemoveMember removes a principal from a group.
	RemoveMember(ctx context.Context, principalID, groupID uuid.UUID) error

	// HasMembership reports whether the principal belongs to any group owned
	// by the given tenant. Used by tenant resolution to authorize explicit
	// tenant selection.
	HasMembership(ctx context.Context, principalID, tenantID uuid.UUID) (bool, error)

	// MemberPermissions returns the union of permissions granted through the
	// principal's groups within the given tenant only. Memberships in other
	// tenants never contribute.
	MemberPermissions(ctx context.Context, principalID, tenantID uuid.UUID) ([]string, error)
}
