// Package memory provides in-memory store implementations.
// These are for testing only - data is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/store"
)

// TenantStore implements store.TenantStore using in-memory storage.
type TenantStore struct {
	mu sync.RWMutex

	tenants map[uuid.UUID]*models.Tenant // tenant_id -> Tenant
	bySlug  map[string]uuid.UUID
}

// NewTenantStore creates a new in-memory tenant store.
func NewTenantStore() *TenantStore {
	return &TenantStore{
		tenants: make(map[uuid.UUID]*models.Tenant),
		bySlug:  make(map[string]uuid.UUID),
	}
}

// Create creates a new tenant in memory.
func (s *TenantStore) Create(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySlug[tenant.Slug]; exists {
		return store.ErrTenantAlreadyExists
	}
	if _, exists := s.tenants[tenant.TenantID]; exists {
		return store.ErrTenantAlreadyExists
	}

	// Clone to avoid external modifications
	clone := *tenant
	s.tenants[tenant.TenantID] = &clone
	s.bySlug[tenant.Slug] = tenant.TenantID

	return nil
}

// Get retrieves a tenant by ID.
func (s *TenantStore) Get(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, exists := s.tenants[tenantID]
	if !exists {
		return nil, store.ErrTenantNotFound
	}

	clone := *tenant
	return &clone, nil
}

// GetBySlug retrieves a tenant by slug.
func (s *TenantStore) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenantID, exists := s.bySlug[slug]
	if !exists {
		return nil, store.ErrTenantNotFound
	}

	clone := *s.tenants[tenantID]
	return &clone, nil
}

// UpdateStatus transitions a tenant's lifecycle status.
func (s *TenantStore) UpdateStatus(ctx context.Context, tenantID uuid.UUID, status models.TenantStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, exists := s.tenants[tenantID]
	if !exists {
		return store.ErrTenantNotFound
	}

	tenant.Status = status
	tenant.UpdatedAt = time.Now()
	return nil
}

// List returns all tenants ordered by creation time.
func (s *TenantStore) List(ctx context.Context) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := make([]*models.Tenant, 0, len(s.tenants))
	for _, tenant := range s.tenants {
		clone := *tenant
		tenants = append(tenants, &clone)
	}
	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].CreatedAt.Before(tenants[j].CreatedAt)
	})

	return tenants, nil
}
