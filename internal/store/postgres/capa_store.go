package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/store"
)

// CAPAStore implements store.CAPAStore using PostgreSQL.
type CAPAStore struct {
	db *DB
}

// NewCAPAStore creates a new PostgreSQL-backed CAPA store.
func NewCAPAStore(db *DB) *CAPAStore {
	return &CAPAStore{db: db}
}

const capaColumns = "capa_id, tenant_id, number, title, status, order_id, created_at, updated_at"

func scanCAPA(row pgx.Row) (*models.CAPA, error) {
	var c models.CAPA
	err := row.Scan(
		&c.CAPAID,
		&c.TenantID,
		&c.Number,
		&c.Title,
		&c.Status,
		&c.OrderID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a CAPA. The (tenant, number) unique constraint is the final
// backstop for the sequence generator; a violation surfaces as ErrDuplicate
// so callers can retry issuance.
func (s *CAPAStore) Create(ctx context.Context, capa *models.CAPA) error {
	query := `
		INSERT INTO capas (
			capa_id, tenant_id, number, title, status, order_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := s.db.Querier(ctx).Exec(ctx, query,
		capa.CAPAID,
		capa.TenantID,
		capa.Number,
		capa.Title,
		capa.Status,
		capa.OrderID,
		capa.CreatedAt,
		capa.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: capa number %s", store.ErrDuplicate, capa.Number)
		}
		return fmt.Errorf("failed to create capa: %w", mapPostgresError(err))
	}

	return nil
}

// Get retrieves a CAPA by ID within the current tenant scope.
func (s *CAPAStore) Get(ctx context.Context, capaID uuid.UUID) (*models.CAPA, error) {
	filter, args := tenantFilter(ScopeTenant(ctx), 2)
	query := `SELECT ` + capaColumns + ` FROM capas WHERE capa_id = $1 AND ` + filter

	capa, err := scanCAPA(s.db.Querier(ctx).QueryRow(ctx, query, append([]any{capaID}, args...)...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCAPANotFound
		}
		return nil, fmt.Errorf("failed to get capa: %w", mapPostgresError(err))
	}

	return capa, nil
}

// List returns CAPAs visible to the given tenant scope.
func (s *CAPAStore) List(ctx context.Context, tenantID *uuid.UUID) ([]*models.CAPA, error) {
	filter, args := tenantFilter(tenantID, 1)
	query := `SELECT ` + capaColumns + ` FROM capas WHERE ` + filter + ` ORDER BY number ASC`

	rows, err := s.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list capas: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var capas []*models.CAPA
	for rows.Next() {
		capa, err := scanCAPA(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan capa: %w", err)
		}
		capas = append(capas, capa)
	}

	return capas, rows.Err()
}
