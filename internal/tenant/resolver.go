package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/store"
)

// Sentinel errors for tenant resolution.
var (
	// ErrTenantNotFound means an explicitly named tenant does not exist or
	// is not usable. Never silently treated as "no tenant": a caller that
	// names a tenant has signaled intent, and masking a typo would hide bugs.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrAccessDenied means the named tenant exists but the caller holds
	// neither it as home tenant nor a membership in it. Distinct from
	// ErrTenantNotFound for authenticated callers only; anonymous callers
	// get ErrTenantNotFound so existence is not leaked.
	ErrAccessDenied = errors.New("access to tenant denied")
)

// Config controls tenant resolution.
type Config struct {
	// Header is the inbound header naming a tenant by ID or slug.
	Header string

	// BaseDomain enables subdomain resolution: {slug}.{BaseDomain}.
	// Empty disables it.
	BaseDomain string

	// ReservedSubdomains are labels never treated as tenant slugs.
	ReservedSubdomains []string

	// ExemptPaths are path prefixes that bypass resolution entirely
	// (health checks, auth endpoints, static assets).
	ExemptPaths []string

	// SingleTenant makes every unit of work resolve to one canonical
	// tenant, provisioned lazily on first use.
	SingleTenant bool

	// DefaultTenantSlug and DefaultTenantName describe the canonical
	// tenant of single-tenant deployments.
	DefaultTenantSlug string
	DefaultTenantName string
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Header == "" {
		c.Header = "X-Tenant"
	}
	if len(c.ReservedSubdomains) == 0 {
		c.ReservedSubdomains = []string{"www", "api"}
	}
	if c.DefaultTenantSlug == "" {
		c.DefaultTenantSlug = "default"
	}
	if c.DefaultTenantName == "" {
		c.DefaultTenantName = "Default"
	}
}

// Request describes the unit of work to resolve a tenant for.
type Request struct {
	// Path is the request path, checked against the exemption list.
	// Background jobs leave it empty.
	Path string

	// Host is the request host, used for subdomain resolution.
	Host string

	// Header is the explicit tenant header value (ID or slug), if present.
	Header string

	// Principal is the authenticated caller, or nil.
	Principal *models.Principal

	// Hint is a background job's explicit tenant argument.
	Hint *uuid.UUID

	// System marks trusted internal units of work (background jobs) that
	// carry a hint placed there by an already-authorized caller; the
	// membership check is skipped for them.
	System bool
}

// Resolution is the outcome of tenant resolution. Tenant is nil when the
// unit of work legitimately has no tenant context.
type Resolution struct {
	Tenant *models.Tenant
	Source Source
}

// Resolver determines the tenant context for units of work. It owns the one
// piece of deliberately process-wide mutable state in this subsystem: the
// lazily provisioned canonical tenant of single-tenant deployments, which is
// safe to cache because it is read-mostly and re-derivable.
type Resolver struct {
	cfg     Config
	tenants store.TenantStore
	groups  store.GroupStore

	// provision creates the canonical tenant (and its default groups) on
	// first use in single-tenant mode. Injected so this package stays free
	// of seeding policy.
	provision func(ctx context.Context, name, slug string) (*models.Tenant, error)

	mu        sync.Mutex
	canonical *models.Tenant
}

// NewResolver creates a tenant resolver.
func NewResolver(cfg Config, tenants store.TenantStore, groups store.GroupStore,
	provision func(ctx context.Context, name, slug string) (*models.Tenant, error)) *Resolver {
	cfg.ApplyDefaults()
	return &Resolver{
		cfg:       cfg,
		tenants:   tenants,
		groups:    groups,
		provision: provision,
	}
}

// Exempt reports whether a path bypasses tenant resolution.
func (r *Resolver) Exempt(path string) bool {
	for _, prefix := range r.cfg.ExemptPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Header returns the configured tenant selection header name.
func (r *Resolver) Header() string {
	return r.cfg.Header
}

// Resolve determines the tenant for a unit of work. Precedence: explicit
// header/hint, subdomain, principal's home tenant, single-tenant canonical
// tenant, none. A failed explicit selection fails the resolution; every
// other miss falls through to the next rule.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	if req.Path != "" && r.Exempt(req.Path) {
		return &Resolution{Source: SourceNone}, nil
	}

	// 1. Explicit selection: header or background-job hint.
	if req.Header != "" {
		return r.resolveExplicit(ctx, req, req.Header)
	}
	if req.Hint != nil {
		return r.resolveExplicit(ctx, req, req.Hint.String())
	}

	// 2. Subdomain.
	if slug, ok := r.subdomainSlug(req.Host); ok {
		t, err := r.tenants.GetBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, store.ErrTenantNotFound) {
				return nil, ErrTenantNotFound
			}
			return nil, fmt.Errorf("resolve subdomain tenant: %w", err)
		}
		if !t.Usable() {
			return nil, ErrTenantNotFound
		}
		return &Resolution{Tenant: t, Source: SourceSubdomain}, nil
	}

	// 3. Principal's home tenant.
	if req.Principal != nil && req.Principal.TenantID != nil {
		t, err := r.tenants.Get(ctx, *req.Principal.TenantID)
		if err == nil && t.Usable() {
			return &Resolution{Tenant: t, Source: SourcePrincipal}, nil
		}
		if err != nil && !errors.Is(err, store.ErrTenantNotFound) {
			return nil, fmt.Errorf("resolve home tenant: %w", err)
		}
		// A missing or unusable home tenant is not an explicit selection;
		// fall through.
	}

	// 4. Single-tenant deployments always land on the canonical tenant.
	if r.cfg.SingleTenant {
		t, err := r.canonicalTenant(ctx)
		if err != nil {
			return nil, err
		}
		return &Resolution{Tenant: t, Source: SourceDefault}, nil
	}

	// 5. No tenant. Valid for exempt or anonymous-safe operations.
	return &Resolution{Source: SourceNone}, nil
}

// resolveExplicit handles an explicitly named tenant: a lookup failure is an
// error, never a fall-through, and the caller must be authorized for it.
func (r *Resolver) resolveExplicit(ctx context.Context, req Request, value string) (*Resolution, error) {
	t, err := r.lookup(ctx, value)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("resolve explicit tenant: %w", err)
	}
	if !t.Usable() {
		return nil, ErrTenantNotFound
	}

	if err := r.authorize(ctx, req, t); err != nil {
		return nil, err
	}

	return &Resolution{Tenant: t, Source: SourceHeader}, nil
}

// lookup accepts either an opaque tenant ID or a human slug.
func (r *Resolver) lookup(ctx context.Context, value string) (*models.Tenant, error) {
	if id, err := uuid.Parse(value); err == nil {
		return r.tenants.Get(ctx, id)
	}
	return r.tenants.GetBySlug(ctx, value)
}

// authorize checks the caller may assume the explicitly named tenant.
func (r *Resolver) authorize(ctx context.Context, req Request, t *models.Tenant) error {
	if req.System {
		return nil
	}
	if req.Principal == nil {
		// Anonymous callers never learn whether the tenant exists.
		return ErrTenantNotFound
	}
	if req.Principal.Superuser {
		return nil
	}
	if req.Principal.TenantID != nil && *req.Principal.TenantID == t.TenantID {
		return nil
	}

	member, err := r.groups.HasMembership(ctx, req.Principal.PrincipalID, t.TenantID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return ErrAccessDenied
	}
	return nil
}

// subdomainSlug extracts the tenant slug from the leftmost host label.
func (r *Resolver) subdomainSlug(host string) (string, bool) {
	if r.cfg.BaseDomain == "" || host == "" {
		return "", false
	}
	if i := strings.LastIndex(host, ":"); i != -1 {
		host = host[:i]
	}
	if !strings.HasSuffix(host, "."+r.cfg.BaseDomain) {
		return "", false
	}
	label := strings.TrimSuffix(host, "."+r.cfg.BaseDomain)
	if label == "" || strings.Contains(label, ".") {
		return "", false
	}
	for _, reserved := range r.cfg.ReservedSubdomains {
		if label == reserved {
			return "", false
		}
	}
	return label, true
}

// canonicalTenant returns the single-tenant deployment's tenant, creating it
// on first use. Losing the cached instance only costs one extra lookup.
func (r *Resolver) canonicalTenant(ctx context.Context) (*models.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.canonical != nil {
		return r.canonical, nil
	}

	t, err := r.tenants.GetBySlug(ctx, r.cfg.DefaultTenantSlug)
	if err == nil {
		r.canonical = t
		return t, nil
	}
	if !errors.Is(err, store.ErrTenantNotFound) {
		return nil, fmt.Errorf("load canonical tenant: %w", err)
	}

	t, err = r.provision(ctx, r.cfg.DefaultTenantName, r.cfg.DefaultTenantSlug)
	if err != nil {
		// Another process may have won the race.
		if errors.Is(err, store.ErrTenantAlreadyExists) {
			t, err = r.tenants.GetBySlug(ctx, r.cfg.DefaultTenantSlug)
			if err != nil {
				return nil, fmt.Errorf("load canonical tenant after race: %w", err)
			}
			r.canonical = t
			return t, nil
		}
		return nil, fmt.Errorf("provision canonical tenant: %w", err)
	}

	log.Info().
		Str("tenant_id", t.TenantID.String()).
		Str("slug", t.Slug).
		Msg("Provisioned canonical tenant")

	r.canonical = t
	return t, nil
}
