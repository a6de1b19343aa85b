package memory

import (
	"context"
	"sync"

	"github.com/mhaswell/fabtrace/internal/models"
)

// AuditStore implements store.AuditStore using in-memory storage. The
// interface exposes no update or delete, mirroring the database tables that
// reject both.
type AuditStore struct {
	mu sync.RWMutex

	events []*models.AuditEvent
}

// NewAuditStore creates a new in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Append records an audit event.
func (s *AuditStore) Append(ctx context.Context, event *models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *event
	s.events = append(s.events, &clone)
	return nil
}

// ListByEntity returns events for one entity in append order.
func (s *AuditStore) ListByEntity(ctx context.Context, entity, entityID string) ([]*models.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*models.AuditEvent
	for _, event := range s.events {
		if event.Entity == entity && event.EntityID == entityID {
			clone := *event
			events = append(events, &clone)
		}
	}
	return events, nil
}
