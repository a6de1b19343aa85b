package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mhaswell/fabtrace/internal/api"
	"github.com/mhaswell/fabtrace/internal/store/memory"
	"github.com/mhaswell/fabtrace/internal/store/postgres"
	"github.com/mhaswell/fabtrace/internal/tenant"
)

type Globals struct {
	Debug   bool
	Version string
}

// PostgresFlags configures the PostgreSQL connection.
type PostgresFlags struct {
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	AutoMigrate     bool `help:"run database migrations on startup" default:"false" env:"FABTRACE_POSTGRES_AUTO_MIGRATE"`
	StrictIsolation bool `help:"abort any unit of work whose tenant session variable cannot be set" default:"false" env:"FABTRACE_STRICT_ISOLATION"`
}

func (f *PostgresFlags) Validate() error {
	if f.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

// connect opens the pool and optionally migrates.
func (f *PostgresFlags) connect(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := postgres.NewPool(ctx, &postgres.PoolConfig{
		ConnString:      f.ConnString,
		MaxConns:        f.MaxConns,
		MinConns:        f.MinConns,
		MaxConnLifetime: f.MaxConnLifetime,
		MaxConnIdleTime: f.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if f.AutoMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return pool, nil
}

// TenantFlags configures tenant resolution.
type TenantFlags struct {
	Header             string   `help:"tenant selection header" default:"X-Tenant" env:"FABTRACE_TENANT_HEADER"`
	BaseDomain         string   `help:"base domain for subdomain tenant resolution (empty disables it)" env:"FABTRACE_BASE_DOMAIN"`
	ReservedSubdomains []string `help:"subdomain labels never treated as tenant slugs" default:"www,api"`
	SingleTenant       bool     `help:"run with one lazily provisioned canonical tenant" default:"false" env:"FABTRACE_SINGLE_TENANT"`
	DefaultTenantSlug  string   `help:"canonical tenant slug in single-tenant mode" default:"default"`
	DefaultTenantName  string   `help:"canonical tenant name in single-tenant mode" default:"Default"`
}

func (f *TenantFlags) config() tenant.Config {
	return tenant.Config{
		Header:             f.Header,
		BaseDomain:         f.BaseDomain,
		ReservedSubdomains: f.ReservedSubdomains,
		ExemptPaths:        []string{"/healthz", "/metrics", "/api/v1/auth/"},
		SingleTenant:       f.SingleTenant,
		DefaultTenantSlug:  f.DefaultTenantSlug,
		DefaultTenantName:  f.DefaultTenantName,
	}
}

// newMemoryStores builds the in-memory store set.
func newMemoryStores() api.Stores {
	return api.Stores{
		Tenants:    memory.NewTenantStore(),
		Principals: memory.NewPrincipalStore(),
		Groups:     memory.NewGroupStore(),
		Orders:     memory.NewOrderStore(),
		CAPAs:      memory.NewCAPAStore(),
		Audit:      memory.NewAuditStore(),
	}
}

// newPostgresStores builds the PostgreSQL store set around a shared DB.
func newPostgresStores(db *postgres.DB) api.Stores {
	return api.Stores{
		Tenants:    postgres.NewTenantStore(db),
		Principals: postgres.NewPrincipalStore(db),
		Groups:     postgres.NewGroupStore(db),
		Orders:     postgres.NewOrderStore(db),
		CAPAs:      postgres.NewCAPAStore(db),
		Audit:      postgres.NewAuditStore(db),
	}
}
