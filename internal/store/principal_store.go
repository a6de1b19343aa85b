package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/mhaswell/fabtrace/internal/models"
)

// PrincipalStore manages principals (users and service accounts).
type PrincipalStore interface {
	// Create creates a new principal.
	Create(ctx context.Context, principal *models.Principal) error

	// Get retrieves a principal by ID.
	// Returns ErrPrincipalNotFound if it doesn't exist.
	Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error)

	// GetByEmail retrieves a principal by email, used by login.
	// Returns ErrPrincipalNotFound if it doesn't exist.
	GetByEmail(ctx context.Context, email string) (*models.Principal, error)

	// DirectPermissions returns permission identifiers granted directly to
	// the principal, independent of any group.
	DirectPermissions(ctx context.Context, principalID uuid.UUID) ([]string, error)

	// GrantPermission attaches a permission directly to the principal.
	GrantPermission(ctx context.Context, principalID uuid.UUID, permission string) error
}
