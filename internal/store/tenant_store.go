package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/mhaswell/fabtrace/internal/models"
)

// TenantStore is the durable record of tenants. Read-mostly; writes come from
// provisioning flows. Lookups run before any tenant scope is established, so
// implementations must not depend on a tenant session variable being set.
type TenantStore interface {
	// Create creates a new tenant.
	// Returns ErrTenantAlreadyExists if the slug is already taken.
	Create(ctx context.Context, tenant *models.Tenant) error

	// Get retrieves a tenant by ID.
	// Returns ErrTenantNotFound if it doesn't exist.
	Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)

	// GetBySlug retrieves a tenant by its slug.
	// Returns ErrTenantNotFound if it doesn't exist.
	GetBySlug(ctx context.Context, slug string) (*models.Tenant, error)

	// UpdateStatus transitions a tenant's lifecycle status. The slug and ID
	// are immutable, so status is the only mutable identity field.
	UpdateStatus(ctx context.Context, tenantID uuid.UUID, status models.TenantStatus) error

	// List returns all tenants ordered by creation time.
	List(ctx context.Context) ([]*models.Tenant, error)
}
