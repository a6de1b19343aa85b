package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/store"
)

// OrderStore implements store.OrderStore using in-memory storage.
type OrderStore struct {
	mu sync.RWMutex

	orders map[uuid.UUID]*models.Order
}

// NewOrderStore creates a new in-memory order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[uuid.UUID]*models.Order)}
}

// Create inserts an order.
func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.OrderID]; exists {
		return store.ErrDuplicate
	}

	clone := *order
	s.orders[order.OrderID] = &clone
	return nil
}

// Get retrieves an order by ID.
func (s *OrderStore) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[orderID]
	if !exists {
		return nil, store.ErrOrderNotFound
	}

	clone := *order
	return &clone, nil
}

// List returns shared orders plus the given tenant's own.
func (s *OrderStore) List(ctx context.Context, tenantID *uuid.UUID) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var orders []*models.Order
	for _, order := range s.orders {
		if visibleTo(order.TenantID, tenantID) {
			clone := *order
			orders = append(orders, &clone)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})

	return orders, nil
}

// visibleTo reports whether a row owned by rowTenant is visible to a unit of
// work scoped to scopeTenant. Shared rows (nil owner) are visible everywhere.
func visibleTo(rowTenant, scopeTenant *uuid.UUID) bool {
	if rowTenant == nil {
		return true
	}
	return scopeTenant != nil && *rowTenant == *scopeTenant
}
