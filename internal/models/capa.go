package models

import (
	"time"

	"github.com/google/uuid"
)

// CAPAStatus represents where a corrective action sits in its workflow.
type CAPAStatus string

const (
	CAPAStatusOpen       CAPAStatus = "open"
	CAPAStatusInProgress CAPAStatus = "in_progress"
	CAPAStatusClosed     CAPAStatus = "closed"
)

// CAPA is a corrective/preventive action record. Number is the human-readable
// identifier issued by the sequence generator (e.g. "CAPA-2026-007") and is
// unique within the owning tenant.
type CAPA struct {
	CAPAID   uuid.UUID // UUIDv7
	TenantID *uuid.UUID
	Number   string
	Title    string
	Status   CAPAStatus

	OrderID *uuid.UUID // optional link to the order that triggered it

	CreatedAt time.Time
	UpdatedAt time.Time
}
