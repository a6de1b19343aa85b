package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/store"
)

// CAPAStore implements store.CAPAStore using in-memory storage.
type CAPAStore struct {
	mu sync.RWMutex

	capas map[uuid.UUID]*models.CAPA
}

// NewCAPAStore creates a new in-memory CAPA store.
func NewCAPAStore() *CAPAStore {
	return &CAPAStore{capas: make(map[uuid.UUID]*models.CAPA)}
}

// Create inserts a CAPA. Matches the database's uniqueness semantics for
// (tenant, number): two shared rows with the same number also collide.
func (s *CAPAStore) Create(ctx context.Context, capa *models.CAPA) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.capas {
		if existing.Number == capa.Number && sameTenant(existing.TenantID, capa.TenantID) {
			return store.ErrDuplicate
		}
	}

	clone := *capa
	s.capas[capa.CAPAID] = &clone
	return nil
}

// Get retrieves a CAPA by ID.
func (s *CAPAStore) Get(ctx context.Context, capaID uuid.UUID) (*models.CAPA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	capa, exists := s.capas[capaID]
	if !exists {
		return nil, store.ErrCAPANotFound
	}

	clone := *capa
	return &clone, nil
}

// List returns shared CAPAs plus the given tenant's own, ordered by number.
func (s *CAPAStore) List(ctx context.Context, tenantID *uuid.UUID) ([]*models.CAPA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var capas []*models.CAPA
	for _, capa := range s.capas {
		if visibleTo(capa.TenantID, tenantID) {
			clone := *capa
			capas = append(capas, &clone)
		}
	}
	sort.Slice(capas, func(i, j int) bool { return capas[i].Number < capas[j].Number })

	return capas, nil
}

func sameTenant(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
