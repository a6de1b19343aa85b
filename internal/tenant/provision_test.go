package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/store"
	"github.com/mhaswell/fabtrace/internal/store/memory"
)

func seedTenant(t *testing.T, tenants *memory.TenantStore, slug string, status models.TenantStatus) *models.Tenant {
	t.Helper()

	tn := &models.Tenant{
		TenantID:  uuid.Must(uuid.NewV7()),
		Slug:      slug,
		Name:      slug,
		Status:    status,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, tenants.Create(context.Background(), tn))
	return tn
}

func TestProvisioner_SetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("suspend and resume an active tenant", func(t *testing.T) {
		tenants := memory.NewTenantStore()
		seedTenant(t, tenants, "acme", models.TenantStatusActive)
		p := &Provisioner{Tenants: tenants}

		tn, err := p.SetStatus(ctx, "acme", models.TenantStatusSuspended)
		require.NoError(t, err)
		require.Equal(t, models.TenantStatusSuspended, tn.Status)

		tn, err = p.SetStatus(ctx, "acme", models.TenantStatusActive)
		require.NoError(t, err)
		require.Equal(t, models.TenantStatusActive, tn.Status)

		stored, err := tenants.GetBySlug(ctx, "acme")
		require.NoError(t, err)
		require.Equal(t, models.TenantStatusActive, stored.Status)
	})

	t.Run("trial converts to active", func(t *testing.T) {
		tenants := memory.NewTenantStore()
		seedTenant(t, tenants, "acme", models.TenantStatusTrial)
		p := &Provisioner{Tenants: tenants}

		tn, err := p.SetStatus(ctx, "acme", models.TenantStatusActive)
		require.NoError(t, err)
		require.Equal(t, models.TenantStatusActive, tn.Status)
	})

	t.Run("active cannot return to trial", func(t *testing.T) {
		tenants := memory.NewTenantStore()
		seedTenant(t, tenants, "acme", models.TenantStatusActive)
		p := &Provisioner{Tenants: tenants}

		_, err := p.SetStatus(ctx, "acme", models.TenantStatusTrial)
		require.ErrorIs(t, err, ErrInvalidTransition)

		stored, err := tenants.GetBySlug(ctx, "acme")
		require.NoError(t, err)
		require.Equal(t, models.TenantStatusActive, stored.Status)
	})

	t.Run("pending deletion is terminal", func(t *testing.T) {
		tenants := memory.NewTenantStore()
		seedTenant(t, tenants, "acme", models.TenantStatusPendingDeletion)
		p := &Provisioner{Tenants: tenants}

		_, err := p.SetStatus(ctx, "acme", models.TenantStatusActive)
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("unknown slug", func(t *testing.T) {
		p := &Provisioner{Tenants: memory.NewTenantStore()}

		_, err := p.SetStatus(ctx, "ghost", models.TenantStatusSuspended)
		require.ErrorIs(t, err, store.ErrTenantNotFound)
	})
}

func TestTenantCanTransition(t *testing.T) {
	cases := []struct {
		from, to models.TenantStatus
		ok       bool
	}{
		{models.TenantStatusTrial, models.TenantStatusActive, true},
		{models.TenantStatusTrial, models.TenantStatusSuspended, true},
		{models.TenantStatusTrial, models.TenantStatusPendingDeletion, true},
		{models.TenantStatusActive, models.TenantStatusSuspended, true},
		{models.TenantStatusActive, models.TenantStatusPendingDeletion, true},
		{models.TenantStatusActive, models.TenantStatusTrial, false},
		{models.TenantStatusSuspended, models.TenantStatusActive, true},
		{models.TenantStatusSuspended, models.TenantStatusPendingDeletion, true},
		{models.TenantStatusSuspended, models.TenantStatusTrial, false},
		{models.TenantStatusPendingDeletion, models.TenantStatusActive, false},
		{models.TenantStatusPendingDeletion, models.TenantStatusSuspended, false},
		{models.TenantStatusActive, models.TenantStatusActive, false},
	}

	for _, c := range cases {
		tn := &models.Tenant{Status: c.from}
		require.Equal(t, c.ok, tn.CanTransition(c.to), "%s to %s", c.from, c.to)
	}
}
