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

// PrincipalStore implements store.PrincipalStore using PostgreSQL.
type PrincipalStore struct {
	db *DB
}

// NewPrincipalStore creates a new PostgreSQL-backed principal store.
func NewPrincipalStore(db *DB) *PrincipalStore {
	return &PrincipalStore{db: db}
}

const principalColumns = "principal_id, tenant_id, email, name, superuser, password_hash, created_at, updated_at, last_seen_at"

func scanPrincipal(row pgx.Row) (*models.Principal, error) {
	var p models.Principal
	err := row.Scan(
		&p.PrincipalID,
		&p.TenantID,
		&p.Email,
		&p.Name,
		&p.Superuser,
		&p.PasswordHash,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create creates a new principal.
func (s *PrincipalStore) Create(ctx context.Context, principal *models.Principal) error {
	query := `
		INSERT INTO principals (
			principal_id, tenant_id, email, name, superuser, password_hash, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := s.db.Querier(ctx).Exec(ctx, query,
		principal.PrincipalID,
		principal.TenantID,
		principal.Email,
		principal.Name,
		principal.Superuser,
		principal.PasswordHash,
		principal.CreatedAt,
		principal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create principal: %w", mapPostgresError(err))
	}

	return nil
}

// Get retrieves a principal by ID.
func (s *PrincipalStore) Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE principal_id = $1`

	principal, err := scanPrincipal(s.db.Querier(ctx).QueryRow(ctx, query, principalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal: %w", mapPostgresError(err))
	}

	return principal, nil
}

// GetByEmail retrieves a principal by email.
func (s *PrincipalStore) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE email = $1`

	principal, err := scanPrincipal(s.db.Querier(ctx).QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal by email: %w", mapPostgresError(err))
	}

	return principal, nil
}

// DirectPermissions returns permissions granted directly to the principal.
func (s *PrincipalStore) DirectPermissions(ctx context.Context, principalID uuid.UUID) ([]string, error) {
	query := `SELECT permission FROM principal_permissions WHERE principal_id = $1 ORDER BY permission`

	rows, err := s.db.Querier(ctx).Query(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list direct permissions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, perm)
	}

	return perms, rows.Err()
}

// GrantPermission attaches a permission directly to the principal.
func (s *PrincipalStore) GrantPermission(ctx context.Context, principalID uuid.UUID, permission string) error {
	query := `
		INSERT INTO principal_permissions (principal_id, permission)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	if _, err := s.db.Querier(ctx).Exec(ctx, query, principalID, permission); err != nil {
		return fmt.Errorf("failed to grant permission: %w", mapPostgresError(err))
	}
	return nil
}
