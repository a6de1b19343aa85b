package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/store"
)

// TenantStore implements store.TenantStore using PostgreSQL.
// The tenants table is control-plane data outside row-level security:
// lookups here happen before any tenant scope exists.
type TenantStore struct {
	db *DB
}

// NewTenantStore creates a new PostgreSQL-backed tenant store.
func NewTenantStore(db *DB) *TenantStore {
	return &TenantStore{db: db}
}

const tenantColumns = "tenant_id, slug, name, status, rls_enforced, created_at, updated_at"

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(
		&t.TenantID,
		&t.Slug,
		&t.Name,
		&t.Status,
		&t.RLSEnforced,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create creates a new tenant in the database.
func (s *TenantStore) Create(ctx context.Context, tenant *models.Tenant) error {
	query := `
		INSERT INTO tenants (
			tenant_id, slug, name, status, rls_enforced, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := s.db.Querier(ctx).Exec(ctx, query,
		tenant.TenantID,
		tenant.Slug,
		tenant.Name,
		tenant.Status,
		tenant.RLSEnforced,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)

	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrTenantAlreadyExists
		}
		return fmt.Errorf("failed to create tenant: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("tenant_id", tenant.TenantID.String()).
		Str("slug", tenant.Slug).
		Msg("Created tenant")

	return nil
}

// Get retrieves a tenant by ID.
func (s *TenantStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE tenant_id = $1`

	tenant, err := scanTenant(s.db.Querier(ctx).QueryRow(ctx, query, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", mapPostgresError(err))
	}

	return tenant, nil
}

// GetBySlug retrieves a tenant by slug.
func (s *TenantStore) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1`

	tenant, err := scanTenant(s.db.Querier(ctx).QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant by slug: %w", mapPostgresError(err))
	}

	return tenant, nil
}

// UpdateStatus transitions a tenant's lifecycle status.
func (s *TenantStore) UpdateStatus(ctx context.Context, tenantID uuid.UUID, status models.TenantStatus) error {
	query := `UPDATE tenants SET status = $2, updated_at = $3 WHERE tenant_id = $1`

	result, err := s.db.Querier(ctx).Exec(ctx, query, tenantID, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update tenant status: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrTenantNotFound
	}

	log.Info().
		Str("tenant_id", tenantID.String()).
		Str("status", string(status)).
		Msg("Updated tenant status")

	return nil
}

// List returns all tenants ordered by creation time.
func (s *TenantStore) List(ctx context.Context) ([]*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants ORDER BY created_at ASC`

	rows, err := s.db.Querier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}

	return tenants, nil
}
