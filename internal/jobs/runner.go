// Package jobs executes background work on behalf of tenants. Every job
// runs in two explicit phases: an unscoped bootstrap that resolves the
// job's tenant reference, then the body inside the resolved tenant scope.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mhaswell/fabtrace/internal/store/postgres"
	"github.com/mhaswell/fabtrace/internal/tenant"
)

// ErrMissingTenant means a job that requires a tenant was submitted without
// one. Rejected before the body runs; a job silently running unscoped would
// touch shared rows only and look like it succeeded.
var ErrMissingTenant = errors.New("job submitted without tenant")

// JobFunc is a job body. It runs inside the tenant scope; the context
// carries the scoped transaction when a database is configured.
type JobFunc func(ctx context.Context, scope *tenant.Scope, payload json.RawMessage) error

// BootstrapFunc maps a job payload to the tenant owning the entity it
// references. It runs unscoped, before any tenant context exists, and must
// be the job's only unscoped read.
type BootstrapFunc func(ctx context.Context, payload json.RawMessage) (*uuid.UUID, error)

// Runner resolves a job's tenant and runs its body scoped to it.
type Runner struct {
	resolver *tenant.Resolver

	// db is nil in memory-backed deployments; jobs then run without a
	// transaction.
	db *postgres.DB
}

// NewRunner creates a job runner.
func NewRunner(resolver *tenant.Resolver, db *postgres.DB) *Runner {
	return &Runner{resolver: resolver, db: db}
}

// Run executes a job for the given tenant. The tenant hint goes through the
// same resolver as interactive requests: an unknown or suspended tenant
// fails the job in the bootstrap phase, before the body observes anything.
func (r *Runner) Run(ctx context.Context, name string, tenantID *uuid.UUID, payload json.RawMessage, fn JobFunc) error {
	res, err := r.resolver.Resolve(ctx, tenant.Request{Hint: tenantID, System: true})
	if err != nil {
		return fmt.Errorf("job %s: resolve tenant: %w", name, err)
	}

	scope := tenant.NewScope(nil)
	scope.SetTenant(res.Tenant, res.Source)

	logger := log.Ctx(ctx).With().Str("job", name).Logger()
	if res.Tenant != nil {
		logger = logger.With().Str("tenant_id", res.Tenant.TenantID.String()).Logger()
	}

	body := func(ctx context.Context) error {
		return fn(logger.WithContext(tenant.WithScope(ctx, scope)), scope, payload)
	}

	if r.db != nil {
		err = r.db.RunScopedFor(ctx, res.Tenant, body)
	} else {
		err = body(ctx)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Job failed")
		return fmt.Errorf("job %s: %w", name, err)
	}

	logger.Debug().Msg("Job completed")
	return nil
}

// Bootstrap runs a job whose message names an entity rather than a tenant:
// lookup derives the owning tenant from the payload's foreign key, then the
// body re-enters through the scoped path exactly as Run does.
func (r *Runner) Bootstrap(ctx context.Context, name string, payload json.RawMessage, lookup BootstrapFunc, fn JobFunc) error {
	tenantID, err := lookup(ctx, payload)
	if err != nil {
		return fmt.Errorf("job %s: bootstrap tenant: %w", name, err)
	}

	return r.Run(ctx, name, tenantID, payload, fn)
}
