package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/store"
)

// Provisioner creates tenants and seeds their default groups. The seed
// policy itself (which groups, which grants) is injected: wildcard patterns
// are expanded by the permission package before they reach the stores.
type Provisioner struct {
	Tenants store.TenantStore
	Groups  store.GroupStore

	// SeedGroups returns the default groups for a new tenant, with concrete
	// permission grants.
	SeedGroups func(tenantID uuid.UUID) ([]*models.Group, error)
}

// Provision creates a tenant and its default groups.
func (p *Provisioner) Provision(ctx context.Context, name, slug string) (*models.Tenant, error) {
	now := time.Now()
	t := &models.Tenant{
		TenantID:    uuid.Must(uuid.NewV7()),
		Slug:        slug,
		Name:        name,
		Status:      models.TenantStatusActive,
		RLSEnforced: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := p.Tenants.Create(ctx, t); err != nil {
		return nil, err
	}

	if p.SeedGroups != nil {
		groups, err := p.SeedGroups(t.TenantID)
		if err != nil {
			return nil, fmt.Errorf("build default groups: %w", err)
		}
		for _, g := range groups {
			if err := p.Groups.Create(ctx, g); err != nil {
				return nil, fmt.Errorf("seed group %q: %w", g.Name, err)
			}
		}
	}

	log.Info().
		Str("tenant_id", t.TenantID.String()).
		Str("slug", slug).
		Msg("Provisioned tenant")

	return t, nil
}

// ErrInvalidTransition means a requested status change breaks the tenant
// lifecycle rules.
var ErrInvalidTransition = errors.New("invalid tenant status transition")

// SetStatus transitions a tenant's lifecycle status, enforcing the
// lifecycle rules before touching the store.
func (p *Provisioner) SetStatus(ctx context.Context, slug string, status models.TenantStatus) (*models.Tenant, error) {
	t, err := p.Tenants.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if !t.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, t.Status, status)
	}

	if err := p.Tenants.UpdateStatus(ctx, t.TenantID, status); err != nil {
		return nil, err
	}
	t.Status = status

	log.Info().
		Str("tenant_id", t.TenantID.String()).
		Str("slug", slug).
		Str("status", string(status)).
		Msg("Tenant status changed")

	return t, nil
}
