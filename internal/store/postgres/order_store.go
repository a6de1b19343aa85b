package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/store"
)

// OrderStore implements store.OrderStore using PostgreSQL.
// Every query filters by the unit of work's tenant at the application layer;
// the row-level security policies independently reach the same answer, so a
// filtering bug here cannot become a cross-tenant leak.
type OrderStore struct {
	db *DB
}

// NewOrderStore creates a new PostgreSQL-backed order store.
func NewOrderStore(db *DB) *OrderStore {
	return &OrderStore{db: db}
}

const orderColumns = "order_id, tenant_id, name, customer, status, created_at, updated_at"

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.OrderID,
		&o.TenantID,
		&o.Name,
		&o.Customer,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// tenantFilter builds the application-level tenant predicate for a query
// whose next positional argument is n.
func tenantFilter(tenantID *uuid.UUID, n int) (string, []any) {
	if tenantID == nil {
		return "tenant_id IS NULL", nil
	}
	return fmt.Sprintf("(tenant_id IS NULL OR tenant_id = $%d)", n), []any{*tenantID}
}

// Create inserts an order.
func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (
			order_id, tenant_id, name, customer, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := s.db.Querier(ctx).Exec(ctx, query,
		order.OrderID,
		order.TenantID,
		order.Name,
		order.Customer,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", mapPostgresError(err))
	}

	return nil
}

// Get retrieves an order by ID within the current tenant scope. Rows outside
// the scope read as not found, never as forbidden.
func (s *OrderStore) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	filter, args := tenantFilter(ScopeTenant(ctx), 2)
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1 AND ` + filter

	order, err := scanOrder(s.db.Querier(ctx).QueryRow(ctx, query, append([]any{orderID}, args...)...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", mapPostgresError(err))
	}

	return order, nil
}

// List returns orders visible to the given tenant scope.
func (s *OrderStore) List(ctx context.Context, tenantID *uuid.UUID) ([]*models.Order, error) {
	filter, args := tenantFilter(tenantID, 1)
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + filter + ` ORDER BY created_at ASC`

	rows, err := s.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}
