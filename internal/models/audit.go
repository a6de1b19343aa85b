package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEvent is an append-only record of who did what. Rows are immutable at
// the database layer: update and delete are rejected for every role,
// including the table owner.
type AuditEvent struct {
	EventID     uuid.UUID // UUIDv7
	TenantID    *uuid.UUID
	PrincipalID *uuid.UUID
	Action      string // e.g. "capa.create"
	Entity      string // e.g. "capa"
	EntityID    string
	CreatedAt   time.Time
}
