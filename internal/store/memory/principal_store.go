package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/store"
)

// PrincipalStore implements store.PrincipalStore using in-memory storage.
type PrincipalStore struct {
	mu sync.RWMutex

	principals map[uuid.UUID]*models.Principal
	byEmail    map[string]uuid.UUID
	direct     map[uuid.UUID][]string // principal_id -> direct permission grants
}

// NewPrincipalStore creates a new in-memory principal store.
func NewPrincipalStore() *PrincipalStore {
	return &PrincipalStore{
		principals: make(map[uuid.UUID]*models.Principal),
		byEmail:    make(map[string]uuid.UUID),
		direct:     make(map[uuid.UUID][]string),
	}
}

// Create creates a new principal in memory.
func (s *PrincipalStore) Create(ctx context.Context, principal *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[principal.Email]; exists {
		return store.ErrDuplicate
	}

	clone := *principal
	s.principals[principal.PrincipalID] = &clone
	s.byEmail[principal.Email] = principal.PrincipalID

	return nil
}

// Get retrieves a principal by ID.
func (s *PrincipalStore) Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	principal, exists := s.principals[principalID]
	if !exists {
		return nil, store.ErrPrincipalNotFound
	}

	clone := *principal
	return &clone, nil
}

// GetByEmail retrieves a principal by email.
func (s *PrincipalStore) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	principalID, exists := s.byEmail[email]
	if !exists {
		return nil, store.ErrPrincipalNotFound
	}

	clone := *s.principals[principalID]
	return &clone, nil
}

// DirectPermissions returns permissions attached directly to the principal.
func (s *PrincipalStore) DirectPermissions(ctx context.Context, principalID uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.principals[principalID]; !exists {
		return nil, store.ErrPrincipalNotFound
	}

	perms := make([]string, len(s.direct[principalID]))
	copy(perms, s.direct[principalID])
	return perms, nil
}

// GrantPermission attaches a permission directly to the principal.
func (s *PrincipalStore) GrantPermission(ctx context.Context, principalID uuid.UUID, permission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.principals[principalID]; !exists {
		return store.ErrPrincipalNotFound
	}

	for _, existing := range s.direct[principalID] {
		if existing == permission {
			return nil
		}
	}
	s.direct[principalID] = append(s.direct[principalID], permission)
	return nil
}
