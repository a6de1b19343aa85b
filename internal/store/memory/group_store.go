package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/store"
)

// GroupStore implements store.GroupStore using in-memory storage.
type GroupStore struct {
	mu sync.RWMutex

	groups  map[uuid.UUID]*models.Group
	members map[uuid.UUID]map[uuid.UUID]bool // group_id -> set of principal_ids
}

// NewGroupStore creates a new in-memory group store.
func NewGroupStore() *GroupStore {
	return &GroupStore{
		groups:  make(map[uuid.UUID]*models.Group),
		members: make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

// Create creates a group owned by a tenant.
func (s *GroupStore) Create(ctx context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.groups {
		if existing.TenantID == group.TenantID && existing.Name == group.Name {
			return store.ErrDuplicate
		}
	}

	clone := *group
	clone.Permissions = append([]string(nil), group.Permissions...)
	s.groups[group.GroupID] = &clone
	s.members[group.GroupID] = make(map[uuid.UUID]bool)

	return nil
}

// Get retrieves a group by ID.
func (s *GroupStore) Get(ctx context.Context, groupID uuid.UUID) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, exists := s.groups[groupID]
	if !exists {
		return nil, store.ErrGroupNotFound
	}

	clone := *group
	clone.Permissions = append([]string(nil), group.Permissions...)
	return &clone, nil
}

// ListByTenant returns all groups owned by a tenant.
func (s *GroupStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var groups []*models.Group
	for _, group := range s.groups {
		if group.TenantID == tenantID {
			clone := *group
			clone.Permissions = append([]string(nil), group.Permissions...)
			groups = append(groups, &clone)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })

	return groups, nil
}

// AddMember adds a principal to a group.
func (s *GroupStore) AddMember(ctx context.Context, principalID, groupID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[groupID]; !exists {
		return store.ErrGroupNotFound
	}
	s.members[groupID][principalID] = true
	return nil
}

// RemoveMember removes a principal from a group.
func (s *GroupStore) RemoveMember(ctx context.Context, principalID, groupID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[groupID]; !exists {
		return store.ErrGroupNotFound
	}
	delete(s.members[groupID], principalID)
	return nil
}

// HasMembership reports whether the principal belongs to any group owned by
// the tenant.
func (s *GroupStore) HasMembership(ctx context.Context, principalID, tenantID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for groupID, group := range s.groups {
		if group.TenantID == tenantID && s.members[groupID][principalID] {
			return true, nil
		}
	}
	return false, nil
}

// MemberPermissions returns the union of group permissions the principal
// holds within the given tenant.
func (s *GroupStore) MemberPermissions(ctx context.Context, principalID, tenantID uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var perms []string
	for groupID, group := range s.groups {
		if group.TenantID != tenantID || !s.members[groupID][principalID] {
			continue
		}
		for _, perm := range group.Permissions {
			if !seen[perm] {
				seen[perm] = true
				perms = append(perms, perm)
			}
		}
	}
	sort.Strings(perms)
	return perms, nil
}
