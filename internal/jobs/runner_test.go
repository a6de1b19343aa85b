package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/store"
	"github.com/mhaswell/fabtrace/internal/store/memory"
	"github.com/mhaswell/fabtrace/internal/tenant"
)

func newTestRunner(t *testing.T) (*Runner, *memory.TenantStore) {
	t.Helper()

	tenants := memory.NewTenantStore()
	groups := memory.NewGroupStore()
	resolver := tenant.NewResolver(tenant.Config{}, tenants, groups, nil)
	return NewRunner(resolver, nil), tenants
}

func addTenant(t *testing.T, tenants *memory.TenantStore, status models.TenantStatus) *models.Tenant {
	t.Helper()

	tn := &models.Tenant{
		TenantID:  uuid.Must(uuid.NewV7()),
		Slug:      "acme",
		Name:      "Acme",
		Status:    status,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, tenants.Create(context.Background(), tn))
	return tn
}

func TestRunnerRun(t *testing.T) {
	ctx := context.Background()

	t.Run("body runs inside the tenant scope", func(t *testing.T) {
		runner, tenants := newTestRunner(t)
		tn := addTenant(t, tenants, models.TenantStatusActive)

		var seen *tenant.Scope
		err := runner.Run(ctx, "test.job", &tn.TenantID, nil,
			func(ctx context.Context, scope *tenant.Scope, payload json.RawMessage) error {
				seen = scope
				require.Same(t, scope, tenant.ScopeFromContext(ctx))
				return nil
			})
		require.NoError(t, err)
		require.NotNil(t, seen)
		require.Equal(t, tn.TenantID, *seen.TenantID())
	})

	t.Run("unknown tenant fails in bootstrap", func(t *testing.T) {
		runner, _ := newTestRunner(t)
		ghost := uuid.Must(uuid.NewV7())

		ran := false
		err := runner.Run(ctx, "test.job", &ghost, nil,
			func(ctx context.Context, scope *tenant.Scope, payload json.RawMessage) error {
				ran = true
				return nil
			})
		require.ErrorIs(t, err, tenant.ErrTenantNotFound)
		require.False(t, ran)
	})

	t.Run("suspended tenant fails in bootstrap", func(t *testing.T) {
		runner, tenants := newTestRunner(t)
		tn := addTenant(t, tenants, models.TenantStatusSuspended)

		err := runner.Run(ctx, "test.job", &tn.TenantID, nil,
			func(ctx context.Context, scope *tenant.Scope, payload json.RawMessage) error {
				return nil
			})
		require.ErrorIs(t, err, tenant.ErrTenantNotFound)
	})

	t.Run("nil tenant runs unscoped", func(t *testing.T) {
		runner, _ := newTestRunner(t)

		err := runner.Run(ctx, "maintenance.job", nil, nil,
			func(ctx context.Context, scope *tenant.Scope, payload json.RawMessage) error {
				require.Nil(t, scope.Tenant())
				return nil
			})
		require.NoError(t, err)
	})

	t.Run("bootstrap derives the tenant from the payload", func(t *testing.T) {
		runner, tenants := newTestRunner(t)
		tn := addTenant(t, tenants, models.TenantStatusActive)

		orders := memory.NewOrderStore()
		order := &models.Order{
			OrderID:  uuid.Must(uuid.NewV7()),
			TenantID: &tn.TenantID,
			Name:     "Batch 42",
			Status:   models.OrderStatusOpen,
		}
		require.NoError(t, orders.Create(ctx, order))

		lookup := func(ctx context.Context, payload json.RawMessage) (*uuid.UUID, error) {
			var ref struct {
				OrderID uuid.UUID `json:"order_id"`
			}
			if err := json.Unmarshal(payload, &ref); err != nil {
				return nil, err
			}
			got, err := orders.Get(ctx, ref.OrderID)
			if err != nil {
				return nil, err
			}
			return got.TenantID, nil
		}

		payload := json.RawMessage(`{"order_id":"` + order.OrderID.String() + `"}`)
		err := runner.Bootstrap(ctx, "order.job", payload, lookup,
			func(ctx context.Context, scope *tenant.Scope, got json.RawMessage) error {
				require.Equal(t, tn.TenantID, *scope.TenantID())
				require.JSONEq(t, string(payload), string(got))
				return nil
			})
		require.NoError(t, err)
	})

	t.Run("bootstrap lookup failure stops the job before the body", func(t *testing.T) {
		runner, _ := newTestRunner(t)

		ran := false
		err := runner.Bootstrap(ctx, "order.job", nil,
			func(ctx context.Context, payload json.RawMessage) (*uuid.UUID, error) {
				return nil, store.ErrOrderNotFound
			},
			func(ctx context.Context, scope *tenant.Scope, payload json.RawMessage) error {
				ran = true
				return nil
			})
		require.ErrorIs(t, err, store.ErrOrderNotFound)
		require.False(t, ran)
	})

	t.Run("bootstrap resolving a shared entity runs unscoped", func(t *testing.T) {
		runner, _ := newTestRunner(t)

		err := runner.Bootstrap(ctx, "order.job", nil,
			func(ctx context.Context, payload json.RawMessage) (*uuid.UUID, error) {
				return nil, nil
			},
			func(ctx context.Context, scope *tenant.Scope, payload json.RawMessage) error {
				require.Nil(t, scope.Tenant())
				return nil
			})
		require.NoError(t, err)
	})

	t.Run("payload reaches the body", func(t *testing.T) {
		runner, tenants := newTestRunner(t)
		tn := addTenant(t, tenants, models.TenantStatusActive)

		payload := json.RawMessage(`{"capa_id":"abc"}`)
		err := runner.Run(ctx, "test.job", &tn.TenantID, payload,
			func(ctx context.Context, scope *tenant.Scope, got json.RawMessage) error {
				require.JSONEq(t, string(payload), string(got))
				return nil
			})
		require.NoError(t, err)
	})
}
