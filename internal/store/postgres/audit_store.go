package postgres

import (
	"context"
	"fmt"

	"github.com/mhaswell/fabtrace/internal/models"
)

// AuditStore implements store.AuditStore using PostgreSQL.
// The audit_events table is append-only: the database rejects every update
// and delete regardless of role, so this store exposes no mutation beyond
// Append.
type AuditStore struct {
	db *DB
}

// NewAuditStore creates a new PostgreSQL-backed audit store.
func NewAuditStore(db *DB) *AuditStore {
	return &AuditStore{db: db}
}

// Append writes an audit event.
func (s *AuditStore) Append(ctx context.Context, event *models.AuditEvent) error {
	query := `
		INSERT INTO audit_events (
			event_id, tenant_id, principal_id, action, entity, entity_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := s.db.Querier(ctx).Exec(ctx, query,
		event.EventID,
		event.TenantID,
		event.PrincipalID,
		event.Action,
		event.Entity,
		event.EntityID,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", mapPostgresError(err))
	}

	return nil
}

// ListByEntity returns the audit trail for one entity, oldest first.
func (s *AuditStore) ListByEntity(ctx context.Context, entity, entityID string) ([]*models.AuditEvent, error) {
	query := `
		SELECT event_id, tenant_id, principal_id, action, entity, entity_id, created_at
		FROM audit_events
		WHERE entity = $1 AND entity_id = $2
		ORDER BY created_at ASC
	`

	rows, err := s.db.Querier(ctx).Query(ctx, query, entity, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		err := rows.Scan(&e.EventID, &e.TenantID, &e.PrincipalID, &e.Action, &e.Entity, &e.EntityID, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, &e)
	}

	return events, rows.Err()
}
