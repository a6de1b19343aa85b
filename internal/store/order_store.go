package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/mhaswell/fabtrace/internal/models"
)

// OrderStore manages orders, the canonical tenant-partitioned entity.
// Implementations filter by the unit of work's tenant at the application
// layer; row-level security independently re-checks every row.
type OrderStore interface {
	// Create inserts an order.
	Create(ctx context.Context, order *models.Order) error

	// Get retrieves an order by ID within the current tenant scope.
	// Returns ErrOrderNotFound for rows outside the scope so that existence
	// is never leaked across tenants.
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)

	// List returns orders visible to the current tenant scope.
	List(ctx context.Context, tenantID *uuid.UUID) ([]*models.Order, error)
}

// CAPAStore manages corrective-action records.
type CAPAStore interface {
	// Create inserts a CAPA. The Number field must already be populated;
	// a duplicate (tenant, number) pair returns ErrDuplicate.
	Create(ctx context.Context, capa *models.CAPA) error

	// Get retrieves a CAPA by ID within the current tenant scope.
	Get(ctx context.Context, capaID uuid.UUID) (*models.CAPA, error)

	// List returns CAPAs visible to the current tenant scope.
	List(ctx context.Context, tenantID *uuid.UUID) ([]*models.CAPA, error)
}

// AuditStore appends audit events. There is deliberately no update or delete:
// the table is immutable at the database layer.
type AuditStore interface {
	Append(ctx context.Context, event *models.AuditEvent) error
	ListByEntity(ctx context.Context, entity, entityID string) ([]*models.AuditEvent, error)
}
