package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/store"
)

func newCAPA(tenantID *uuid.UUID, number string) *models.CAPA {
	now := time.Now()
	return &models.CAPA{
		CAPAID:    uuid.Must(uuid.NewV7()),
		TenantID:  tenantID,
		Number:    number,
		Title:     "test",
		Status:    models.CAPAStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCAPAStore_NumberUniqueness(t *testing.T) {
	ctx := context.Background()
	tenantA := uuid.Must(uuid.NewV7())
	tenantB := uuid.Must(uuid.NewV7())

	t.Run("duplicate number within tenant rejected", func(t *testing.T) {
		s := NewCAPAStore()
		require.NoError(t, s.Create(ctx, newCAPA(&tenantA, "CAPA-2026-001")))
		err := s.Create(ctx, newCAPA(&tenantA, "CAPA-2026-001"))
		require.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("same number in different tenants allowed", func(t *testing.T) {
		s := NewCAPAStore()
		require.NoError(t, s.Create(ctx, newCAPA(&tenantA, "CAPA-2026-001")))
		require.NoError(t, s.Create(ctx, newCAPA(&tenantB, "CAPA-2026-001")))
	})

	t.Run("duplicate shared number rejected", func(t *testing.T) {
		s := NewCAPAStore()
		require.NoError(t, s.Create(ctx, newCAPA(nil, "CAPA-2026-001")))
		err := s.Create(ctx, newCAPA(nil, "CAPA-2026-001"))
		require.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("shared and tenant rows do not collide", func(t *testing.T) {
		s := NewCAPAStore()
		require.NoError(t, s.Create(ctx, newCAPA(nil, "CAPA-2026-001")))
		require.NoError(t, s.Create(ctx, newCAPA(&tenantA, "CAPA-2026-001")))
	})
}

func TestCAPAStore_ListVisibility(t *testing.T) {
	ctx := context.Background()
	tenantA := uuid.Must(uuid.NewV7())
	tenantB := uuid.Must(uuid.NewV7())

	s := NewCAPAStore()
	require.NoError(t, s.Create(ctx, newCAPA(&tenantA, "CAPA-2026-001")))
	require.NoError(t, s.Create(ctx, newCAPA(&tenantA, "CAPA-2026-002")))
	require.NoError(t, s.Create(ctx, newCAPA(&tenantB, "CAPA-2026-001")))
	require.NoError(t, s.Create(ctx, newCAPA(nil, "BULLETIN-7")))

	t.Run("tenant sees own plus shared, ordered by number", func(t *testing.T) {
		capas, err := s.List(ctx, &tenantA)
		require.NoError(t, err)
		require.Len(t, capas, 3)

		var numbers []string
		for _, capa := range capas {
			numbers = append(numbers, capa.Number)
		}
		require.Equal(t, []string{"BULLETIN-7", "CAPA-2026-001", "CAPA-2026-002"}, numbers)
	})

	t.Run("no tenant sees shared only", func(t *testing.T) {
		capas, err := s.List(ctx, nil)
		require.NoError(t, err)
		require.Len(t, capas, 1)
		require.Equal(t, "BULLETIN-7", capas[0].Number)
	})
}

func TestCAPAStore_GetClones(t *testing.T) {
	ctx := context.Background()
	tenantA := uuid.Must(uuid.NewV7())

	s := NewCAPAStore()
	capa := newCAPA(&tenantA, "CAPA-2026-001")
	require.NoError(t, s.Create(ctx, capa))

	got, err := s.Get(ctx, capa.CAPAID)
	require.NoError(t, err)
	got.Title = "mutated"

	again, err := s.Get(ctx, capa.CAPAID)
	require.NoError(t, err)
	require.Equal(t, "test", again.Title)
}
