//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mhaswell/fabtrace/internal/models"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*DB, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := NewPool(ctx, &PoolConfig{ConnString: connString})
	require.NoError(t, err)

	err = Migrate(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return NewDB(pool, false), cleanup
}

func createTenant(t *testing.T, ctx context.Context, db *DB, slug string) *models.Tenant {
	t.Helper()

	now := time.Now()
	tenant := &models.Tenant{
		TenantID:    uuid.Must(uuid.NewV7()),
		Slug:        slug,
		Name:        slug,
		Status:      models.TenantStatusActive,
		RLSEnforced: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, NewTenantStore(db).Create(ctx, tenant))
	return tenant
}

func insertOrder(t *testing.T, ctx context.Context, db *DB, tenantID *uuid.UUID, name string) {
	t.Helper()

	now := time.Now()
	err := db.RunScoped(ctx, tenantID, func(ctx context.Context) error {
		return NewOrderStore(db).Create(ctx, &models.Order{
			OrderID:   uuid.Must(uuid.NewV7()),
			TenantID:  tenantID,
			Name:      name,
			Status:    models.OrderStatusOpen,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	require.NoError(t, err)
}

// The database policies must isolate tenants on their own: these queries
// deliberately skip the stores' application-level tenant filter.
func TestIntegration_RowPoliciesIsolate(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	tenantA := createTenant(t, ctx, db, "tenant-a")
	tenantB := createTenant(t, ctx, db, "tenant-b")

	insertOrder(t, ctx, db, &tenantA.TenantID, "a1")
	insertOrder(t, ctx, db, &tenantA.TenantID, "a2")
	insertOrder(t, ctx, db, &tenantB.TenantID, "b1")
	insertOrder(t, ctx, db, nil, "shared")

	countOrders := func(tenantID *uuid.UUID) int {
		var count int
		err := db.RunScoped(ctx, tenantID, func(ctx context.Context) error {
			return db.Querier(ctx).QueryRow(ctx, "SELECT count(*) FROM orders").Scan(&count)
		})
		require.NoError(t, err)
		return count
	}

	t.Run("each tenant sees its own rows plus shared", func(t *testing.T) {
		require.Equal(t, 3, countOrders(&tenantA.TenantID))
		require.Equal(t, 2, countOrders(&tenantB.TenantID))
	})

	t.Run("unscoped transaction sees only shared rows", func(t *testing.T) {
		require.Equal(t, 1, countOrders(nil))
	})

	t.Run("writes into another tenant are rejected", func(t *testing.T) {
		now := time.Now()
		err := db.RunScoped(ctx, &tenantA.TenantID, func(ctx context.Context) error {
			_, err := db.Querier(ctx).Exec(ctx,
				"INSERT INTO orders (order_id, tenant_id, name, customer, status, created_at, updated_at) VALUES ($1, $2, $3, '', 'open', $4, $4)",
				uuid.Must(uuid.NewV7()), tenantB.TenantID, "smuggled", now)
			return err
		})
		require.Error(t, err)
	})
}

func TestIntegration_TenantVariableIsTransactionLocal(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	tenant := createTenant(t, ctx, db, "acme")

	err := db.RunScoped(ctx, &tenant.TenantID, func(ctx context.Context) error {
		value, err := db.CurrentTenant(ctx)
		require.NoError(t, err)
		require.Equal(t, tenant.TenantID.String(), value)
		return nil
	})
	require.NoError(t, err)

	// After commit the pooled connection must carry no tenant.
	value, err := db.CurrentTenant(ctx)
	require.NoError(t, err)
	require.Empty(t, value)
}

func TestIntegration_AuditEventsImmutable(t *testing.T) {
	ctx := context.Background()
	db, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	tenant := createTenant(t, ctx, db, "acme")
	audit := NewAuditStore(db)

	eventID := uuid.Must(uuid.NewV7())
	err := db.RunScoped(ctx, &tenant.TenantID, func(ctx context.Context) error {
		return audit.Append(ctx, &models.AuditEvent{
			EventID:   eventID,
			TenantID:  &tenant.TenantID,
			Action:    "capa.create",
			Entity:    "capa",
			EntityID:  "some-capa",
			CreatedAt: time.Now(),
		})
	})
	require.NoError(t, err)

	t.Run("updates match no rows, even for the owner", func(t *testing.T) {
		err := db.RunScoped(ctx, &tenant.TenantID, func(ctx context.Context) error {
			tag, err := db.Querier(ctx).Exec(ctx,
				"UPDATE audit_events SET action = 'tampered' WHERE event_id = $1", eventID)
			require.NoError(t, err)
			require.EqualValues(t, 0, tag.RowsAffected())
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("deletes match no rows", func(t *testing.T) {
		err := db.RunScoped(ctx, &tenant.TenantID, func(ctx context.Context) error {
			tag, err := db.Querier(ctx).Exec(ctx,
				"DELETE FROM audit_events WHERE event_id = $1", eventID)
			require.NoError(t, err)
			require.EqualValues(t, 0, tag.RowsAffected())
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("event still intact", func(t *testing.T) {
		err := db.RunScoped(ctx, &tenant.TenantID, func(ctx context.Context) error {
			events, err := audit.ListByEntity(ctx, "capa", "some-capa")
			require.NoError(t, err)
			require.Len(t, events, 1)
			require.Equal(t, "capa.create", events[0].Action)
			return nil
		})
		require.NoError(t, err)
	})
}
