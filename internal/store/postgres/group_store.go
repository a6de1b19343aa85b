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

// GroupStore implements store.GroupStore using PostgreSQL.
// Groups, memberships and grants are control-plane data read during tenant
// resolution and permission computation, before any scope exists, so these
// tables stay outside row-level security.
type GroupStore struct {
	db *DB
}

// NewGroupStore creates a new PostgreSQL-backed group store.
func NewGroupStore(db *DB) *GroupStore {
	return &GroupStore{db: db}
}

// Create creates a group and its permission grants.
func (s *GroupStore) Create(ctx context.Context, group *models.Group) error {
	q := s.db.Querier(ctx)

	query := `
		INSERT INTO groups (group_id, tenant_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := q.Exec(ctx, query,
		group.GroupID,
		group.TenantID,
		group.Name,
		group.CreatedAt,
		group.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to create group: %w", mapPostgresError(err))
	}

	for _, perm := range group.Permissions {
		_, err := q.Exec(ctx,
			`INSERT INTO group_permissions (group_id, permission) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			group.GroupID, perm)
		if err != nil {
			return fmt.Errorf("failed to grant group permission: %w", mapPostgresError(err))
		}
	}

	return nil
}

// Get retrieves a group by ID, including its permission grants.
func (s *GroupStore) Get(ctx context.Context, groupID uuid.UUID) (*models.Group, error) {
	q := s.db.Querier(ctx)

	var g models.Group
	err := q.QueryRow(ctx,
		`SELECT group_id, tenant_id, name, created_at, updated_at FROM groups WHERE group_id = $1`,
		groupID,
	).Scan(&g.GroupID, &g.TenantID, &g.Name, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", mapPostgresError(err))
	}

	rows, err := q.Query(ctx,
		`SELECT permission FROM group_permissions WHERE group_id = $1 ORDER BY permission`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group permissions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		g.Permissions = append(g.Permissions, perm)
	}

	return &g, rows.Err()
}

// ListByTenant returns all groups owned by a tenant.
func (s *GroupStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Group, error) {
	rows, err := s.db.Querier(ctx).Query(ctx,
		`SELECT group_id, tenant_id, name, created_at, updated_at FROM groups WHERE tenant_id = $1 ORDER BY name`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.GroupID, &g.TenantID, &g.Name, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, &g)
	}

	return groups, rows.Err()
}

// AddMember adds a principal to a group.
func (s *GroupStore) AddMember(ctx context.Context, principalID, groupID uuid.UUID) error {
	query := `
		INSERT INTO memberships (principal_id, group_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := s.db.Querier(ctx).Exec(ctx, query, principalID, groupID); err != nil {
		return fmt.Errorf("failed to add member: %w", mapPostgresError(err))
	}
	return nil
}

// RemoveMember removes a principal from a group.
func (s *GroupStore) RemoveMember(ctx context.Context, principalID, groupID uuid.UUID) error {
	query := `DELETE FROM memberships WHERE principal_id = $1 AND group_id = $2`
	if _, err := s.db.Querier(ctx).Exec(ctx, query, principalID, groupID); err != nil {
		return fmt.Errorf("failed to remove member: %w", mapPostgresError(err))
	}
	return nil
}

// HasMembership reports whether the principal belongs to any group owned by
// the tenant.
func (s *GroupStore) HasMembership(ctx context.Context, principalID, tenantID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1
			FROM memberships m
			JOIN groups g ON g.group_id = m.group_id
			WHERE m.principal_id = $1 AND g.tenant_id = $2
		)
	`

	var exists bool
	if err := s.db.Querier(ctx).QueryRow(ctx, query, principalID, tenantID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", mapPostgresError(err))
	}
	return exists, nil
}

// MemberPermissions returns the union of group permissions the principal
// holds within the given tenant. The tenant filter on groups is what keeps
// memberships in other tenants from contributing.
func (s *GroupStore) MemberPermissions(ctx context.Context, principalID, tenantID uuid.UUID) ([]string, error) {
	query := `
		SELECT DISTINCT gp.permission
		FROM memberships m
		JOIN groups g ON g.group_id = m.group_id
		JOIN group_permissions gp ON gp.group_id = g.group_id
		WHERE m.principal_id = $1 AND g.tenant_id = $2
		ORDER BY gp.permission
	`

	rows, err := s.db.Querier(ctx).Query(ctx, query, principalID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list member permissions: %w", mapPostgresError(err))
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
