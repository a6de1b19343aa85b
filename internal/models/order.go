package models

import (
	"time"

	"github.com/google/uuid"
)

// Order is a manufacturing order. It is the canonical tenant-partitioned
// entity: a nil TenantID marks a shared row visible to every tenant.
type Order struct {
	OrderID  uuid.UUID // UUIDv7
	TenantID *uuid.UUID
	Name     string
	Customer string
	Status   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	OrderStatusOpen    = "open"
	OrderStatusClosed  = "closed"
	OrderStatusOnHold  = "on_hold"
	OrderStatusShipped = "shipped"
)
