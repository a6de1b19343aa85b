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

type resolverFixture struct {
	tenants    *memory.TenantStore
	groups     *memory.GroupStore
	resolver   *Resolver
	provisions int
}

func newResolverFixture(t *testing.T, cfg Config) *resolverFixture {
	t.Helper()

	f := &resolverFixture{
		tenants: memory.NewTenantStore(),
		groups:  memory.NewGroupStore(),
	}
	p := &Provisioner{Tenants: f.tenants, Groups: f.groups}
	f.resolver = NewResolver(cfg, f.tenants, f.groups,
		func(ctx context.Context, name, slug string) (*models.Tenant, error) {
			f.provisions++
			return p.Provision(ctx, name, slug)
		})
	return f
}

func (f *resolverFixture) addTenant(t *testing.T, slug string, status models.TenantStatus) *models.Tenant {
	t.Helper()

	tenant := &models.Tenant{
		TenantID:  uuid.Must(uuid.NewV7()),
		Slug:      slug,
		Name:      slug,
		Status:    status,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, f.tenants.Create(context.Background(), tenant))
	return tenant
}

func (f *resolverFixture) addMember(t *testing.T, tenant *models.Tenant, principalID uuid.UUID) {
	t.Helper()

	group := &models.Group{
		GroupID:  uuid.Must(uuid.NewV7()),
		TenantID: tenant.TenantID,
		Name:     "Members",
	}
	require.NoError(t, f.groups.Create(context.Background(), group))
	require.NoError(t, f.groups.AddMember(context.Background(), principalID, group.GroupID))
}

func newPrincipal(homeTenant *uuid.UUID) *models.Principal {
	return &models.Principal{
		PrincipalID: uuid.Must(uuid.NewV7()),
		TenantID:    homeTenant,
		Email:       "user@example.com",
	}
}

func TestResolver_ExplicitHeader(t *testing.T) {
	ctx := context.Background()

	t.Run("resolve by slug", func(t *testing.T) {
		f := newResolverFixture(t, Config{})
		tenant := f.addTenant(t, "acme", models.TenantStatusActive)
		principal := newPrincipal(&tenant.TenantID)

		res, err := f.resolver.Resolve(ctx, Request{Header: "acme", Principal: principal})
		require.NoError(t, err)
		require.Equal(t, tenant.TenantID, res.Tenant.TenantID)
		require.Equal(t, SourceHeader, res.Source)
	})

	t.Run("resolve by id", func(t *testing.T) {
		f := newResolverFixture(t, Config{})
		tenant := f.addTenant(t, "acme", models.TenantStatusActive)
		principal := newPrincipal(&tenant.TenantID)

		res, err := f.resolver.Resolve(ctx, Request{Header: tenant.TenantID.String(), Principal: principal})
		require.NoError(t, err)
		require.Equal(t, tenant.TenantID, res.Tenant.TenantID)
	})

	t.Run("unknown tenant fails, never falls through", func(t *testing.T) {
		f := newResolverFixture(t, Config{})
		home := f.addTenant(t, "home", models.TenantStatusActive)
		principal := newPrincipal(&home.TenantID)

		res, err := f.resolver.Resolve(ctx, Request{Header: "nope", Principal: principal})
		require.ErrorIs(t, err, ErrTenantNotFound)
		require.Nil(t, res)
	})

	t.Run("suspended tenant is treated as not found", func(t *testing.T) {
		f := newResolverFixture(t, Config{})
		tenant := f.addTenant(t, "acme", models.TenantStatusSuspended)
		principal := newPrincipal(&tenant.TenantID)

		_, err := f.resolver.Resolve(ctx, Request{Header: "acme", Principal: principal})
		require.ErrorIs(t, err, ErrTenantNotFound)
	})

	t.Run("trial tenant is usable", func(t *testing.T) {
		f := newResolverFixture(t, Config{})
		tenant := f.addTenant(t, "acme", models.TenantStatusTrial)
		principal := newPrincipal(&tenant.TenantID)

		res, err := f.resolver.Resolve(ctx, Request{Header: "acme", Principal: principal})
		require.NoError(t, err)
		require.Equal(t, tenant.TenantID, res.Tenant.TenantID)
	})
}

func TestResolver_Authorization(t *testing.T) {
	ctx := context.Background()

	t.Run("non-member gets access denied", func(t *testing.T) {
		f := newResolverFixture(t, Config{})
		f.addTenant(t, "acme", models.TenantStatusActive)
		other := f.addTenant(t, "other", models.TenantStatusActive)
		principal := newPrincipal(&other.TenantID)

		_, err := f.resolver.Resolve(ctx, Request{Header: "acme", Principal: principal})
		require.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("cross-tenant membership grants access", func(t *testing.T) {
		f := newResolverFixture(t, Config{})
		acme := f.addTenant(t, "acme", models.TenantStatusActive)
		other := f.addTenant(t, "other", models.TenantStatusActive)
		principal := newPrincipal(&other.TenantID)
		f.addMember(t, acme, principal.PrincipalID)

		res, err := f.resolver.Resolve(ctx, Request{Header: "acme", Principal: principal})
		require.NoError(t, err)
		require.Equal(t, acme.TenantID, res.Tenant.TenantID)
	})

	t.Run("superuser may assume any tenant", func(t *testing.T) {
		f := newResolverFixture(t, Config{})
		acme := f.addTenant(t, "acme", models.TenantStatusActive)
		principal := newPrincipal(nil)
		principal.Superuser = true

		res, err := f.resolver.Resolve(ctx, Request{Header: "acme", Principal: principal})
		require.NoError(t, err)
		require.Equal(t, acme.TenantID, res.Tenant.TenantID)
	})

	t.Run("anonymous caller never learns tenant exists", func(t *testing.T) {
		f := newResolverFixture(t, Config{})
		f.addTenant(t, "acme", models.TenantStatusActive)

		_, err := f.resolver.Resolve(ctx, Request{Header: "acme"})
		require.ErrorIs(t, err, ErrTenantNotFound)

		_, err = f.resolver.Resolve(ctx, Request{Header: "nope"})
		require.ErrorIs(t, err, ErrTenantNotFound)
	})

	t.Run("system unit of work skips membership check", func(t *testing.T) {
		f := newResolverFixture(t, Config{})
		acme := f.addTenant(t, "acme", models.TenantStatusActive)

		res, err := f.resolver.Resolve(ctx, Request{Hint: &acme.TenantID, System: true})
		require.NoError(t, err)
		require.Equal(t, acme.TenantID, res.Tenant.TenantID)
		require.Equal(t, SourceHeader, res.Source)
	})
}

func TestResolver_Subdomain(t *testing.T) {
	ctx := context.Background()

	t.Run("resolve from subdomain", func(t *testing.T) {
		f := newResolverFixture(t, Config{BaseDomain: "fabtrace.io"})
		tenant := f.addTenant(t, "acme", models.TenantStatusActive)

		res, err := f.resolver.Resolve(ctx, Request{Host: "acme.fabtrace.io"})
		require.NoError(t, err)
		require.Equal(t, tenant.TenantID, res.Tenant.TenantID)
		require.Equal(t, SourceSubdomain, res.Source)
	})

	t.Run("port is stripped before matching", func(t *testing.T) {
		f := newResolverFixture(t, Config{BaseDomain: "fabtrace.io"})
		tenant := f.addTenant(t, "acme", models.TenantStatusActive)

		res, err := f.resolver.Resolve(ctx, Request{Host: "acme.fabtrace.io:8443"})
		require.NoError(t, err)
		require.Equal(t, tenant.TenantID, res.Tenant.TenantID)
	})

	t.Run("reserved subdomain is not a tenant", func(t *testing.T) {
		f := newResolverFixture(t, Config{BaseDomain: "fabtrace.io"})
		f.addTenant(t, "www", models.TenantStatusActive)

		res, err := f.resolver.Resolve(ctx, Request{Host: "www.fabtrace.io"})
		require.NoError(t, err)
		require.Nil(t, res.Tenant)
		require.Equal(t, SourceNone, res.Source)
	})

	t.Run("bare base domain has no tenant", func(t *testing.T) {
		f := newResolverFixture(t, Config{BaseDomain: "fabtrace.io"})

		res, err := f.resolver.Resolve(ctx, Request{Host: "fabtrace.io"})
		require.NoError(t, err)
		require.Nil(t, res.Tenant)
	})

	t.Run("unknown subdomain fails", func(t *testing.T) {
		f := newResolverFixture(t, Config{BaseDomain: "fabtrace.io"})

		_, err := f.resolver.Resolve(ctx, Request{Host: "ghost.fabtrace.io"})
		require.ErrorIs(t, err, ErrTenantNotFound)
	})

	t.Run("header wins over subdomain", func(t *testing.T) {
		f := newResolverFixture(t, Config{BaseDomain: "fabtrace.io"})
		acme := f.addTenant(t, "acme", models.TenantStatusActive)
		f.addTenant(t, "beta", models.TenantStatusActive)
		principal := newPrincipal(&acme.TenantID)

		res, err := f.resolver.Resolve(ctx, Request{
			Host:      "beta.fabtrace.io",
			Header:    "acme",
			Principal: principal,
		})
		require.NoError(t, err)
		require.Equal(t, acme.TenantID, res.Tenant.TenantID)
		require.Equal(t, SourceHeader, res.Source)
	})
}

func TestResolver_PrincipalFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("home tenant used when nothing explicit", func(t *testing.T) {
		f := newResolverFixture(t, Config{})
		home := f.addTenant(t, "home", models.TenantStatusActive)
		principal := newPrincipal(&home.TenantID)

		res, err := f.resolver.Resolve(ctx, Request{Principal: principal})
		require.NoError(t, err)
		require.Equal(t, home.TenantID, res.Tenant.TenantID)
		require.Equal(t, SourcePrincipal, res.Source)
	})

	t.Run("suspended home tenant falls through to none", func(t *testing.T) {
		f := newResolverFixture(t, Config{})
		home := f.addTenant(t, "home", models.TenantStatusSuspended)
		principal := newPrincipal(&home.TenantID)

		res, err := f.resolver.Resolve(ctx, Request{Principal: principal})
		require.NoError(t, err)
		require.Nil(t, res.Tenant)
		require.Equal(t, SourceNone, res.Source)
	})

	t.Run("platform principal without home tenant resolves to none", func(t *testing.T) {
		f := newResolverFixture(t, Config{})
		principal := newPrincipal(nil)

		res, err := f.resolver.Resolve(ctx, Request{Principal: principal})
		require.NoError(t, err)
		require.Nil(t, res.Tenant)
	})
}

func TestResolver_SingleTenant(t *testing.T) {
	ctx := context.Background()

	t.Run("canonical tenant provisioned on first use", func(t *testing.T) {
		f := newResolverFixture(t, Config{SingleTenant: true})

		res, err := f.resolver.Resolve(ctx, Request{})
		require.NoError(t, err)
		require.NotNil(t, res.Tenant)
		require.Equal(t, "default", res.Tenant.Slug)
		require.Equal(t, SourceDefault, res.Source)
		require.Equal(t, 1, f.provisions)
	})

	t.Run("canonical tenant cached across resolutions", func(t *testing.T) {
		f := newResolverFixture(t, Config{SingleTenant: true})

		first, err := f.resolver.Resolve(ctx, Request{})
		require.NoError(t, err)
		second, err := f.resolver.Resolve(ctx, Request{})
		require.NoError(t, err)
		require.Equal(t, first.Tenant.TenantID, second.Tenant.TenantID)
		require.Equal(t, 1, f.provisions)
	})

	t.Run("existing canonical tenant is reused", func(t *testing.T) {
		f := newResolverFixture(t, Config{SingleTenant: true})
		existing := f.addTenant(t, "default", models.TenantStatusActive)

		res, err := f.resolver.Resolve(ctx, Request{})
		require.NoError(t, err)
		require.Equal(t, existing.TenantID, res.Tenant.TenantID)
		require.Equal(t, 0, f.provisions)
	})

	t.Run("lost creation race falls back to winner's tenant", func(t *testing.T) {
		f := newResolverFixture(t, Config{SingleTenant: true})
		var winner *models.Tenant
		f.resolver.provision = func(ctx context.Context, name, slug string) (*models.Tenant, error) {
			// Simulate another process creating the tenant between our
			// lookup and our insert.
			winner = f.addTenant(t, slug, models.TenantStatusActive)
			return nil, store.ErrTenantAlreadyExists
		}

		res, err := f.resolver.Resolve(ctx, Request{})
		require.NoError(t, err)
		require.Equal(t, winner.TenantID, res.Tenant.TenantID)
	})

	t.Run("explicit header still wins in single-tenant mode", func(t *testing.T) {
		f := newResolverFixture(t, Config{SingleTenant: true})
		acme := f.addTenant(t, "acme", models.TenantStatusActive)
		principal := newPrincipal(&acme.TenantID)

		res, err := f.resolver.Resolve(ctx, Request{Header: "acme", Principal: principal})
		require.NoError(t, err)
		require.Equal(t, acme.TenantID, res.Tenant.TenantID)
	})
}

func TestResolver_ExemptPaths(t *testing.T) {
	ctx := context.Background()

	f := newResolverFixture(t, Config{ExemptPaths: []string{"/healthz", "/api/v1/auth/"}})
	f.addTenant(t, "acme", models.TenantStatusActive)

	t.Run("exempt path bypasses resolution", func(t *testing.T) {
		res, err := f.resolver.Resolve(ctx, Request{Path: "/healthz", Header: "nope"})
		require.NoError(t, err)
		require.Nil(t, res.Tenant)
		require.Equal(t, SourceNone, res.Source)
	})

	t.Run("prefix match covers nested paths", func(t *testing.T) {
		res, err := f.resolver.Resolve(ctx, Request{Path: "/api/v1/auth/login"})
		require.NoError(t, err)
		require.Nil(t, res.Tenant)
	})

	t.Run("non-exempt path resolves normally", func(t *testing.T) {
		_, err := f.resolver.Resolve(ctx, Request{Path: "/api/v1/orders", Header: "nope"})
		require.ErrorIs(t, err, ErrTenantNotFound)
	})
}

func TestScope_PermissionCache(t *testing.T) {
	principal := newPrincipal(nil)
	scope := NewScope(principal)

	tenantA := &models.Tenant{TenantID: uuid.Must(uuid.NewV7()), Slug: "a", Status: models.TenantStatusActive}
	scope.SetTenant(tenantA, SourceHeader)

	_, ok := scope.CachedPermissions(tenantA.TenantID)
	require.False(t, ok)

	scope.CachePermissions(tenantA.TenantID, []string{"orders:view"})
	perms, ok := scope.CachedPermissions(tenantA.TenantID)
	require.True(t, ok)
	require.Equal(t, []string{"orders:view"}, perms)

	t.Run("tenant change drops cached permissions", func(t *testing.T) {
		tenantB := &models.Tenant{TenantID: uuid.Must(uuid.NewV7()), Slug: "b", Status: models.TenantStatusActive}
		scope.SetTenant(tenantB, SourceHeader)

		_, ok := scope.CachedPermissions(tenantA.TenantID)
		require.False(t, ok)
	})
}
