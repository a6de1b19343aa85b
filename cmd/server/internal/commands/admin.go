package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mhaswell/fabtrace/internal/auth"
	"github.com/mhaswell/fabtrace/internal/logger"
	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/permission"
	"github.com/mhaswell/fabtrace/internal/store/postgres"
	"github.com/mhaswell/fabtrace/internal/tenant"
)

// MigrateCmd runs database migrations and applies row-level security
// policies.
type MigrateCmd struct {
	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *MigrateCmd) Run(globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, &postgres.PoolConfig{ConnString: c.Postgres.ConnString})
	if err != nil {
		return err
	}
	defer pool.Close()

	return postgres.Migrate(ctx, pool)
}

// CreateTenantCmd provisions a tenant with its default groups.
type CreateTenantCmd struct {
	Name string `arg:"" help:"tenant display name"`
	Slug string `arg:"" help:"tenant slug (URL-safe, immutable)"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *CreateTenantCmd) Run(globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)
	ctx := context.Background()

	pool, err := c.Postgres.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	db := postgres.NewDB(pool, false)
	provisioner := &tenant.Provisioner{
		Tenants:    postgres.NewTenantStore(db),
		Groups:     postgres.NewGroupStore(db),
		SeedGroups: permission.DefaultGroups,
	}

	t, err := provisioner.Provision(ctx, c.Name, c.Slug)
	if err != nil {
		return fmt.Errorf("failed to provision tenant: %w", err)
	}

	fmt.Printf("created tenant %s (%s)\n", t.Slug, t.TenantID)
	return nil
}

// SuspendTenantCmd suspends an active or trial tenant, or lifts a
// suspension with --resume. Suspended tenants keep their data but accept no
// tenant-scoped traffic.
type SuspendTenantCmd struct {
	Slug   string `arg:"" help:"tenant slug"`
	Resume bool   `help:"return a suspended tenant to active" default:"false"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *SuspendTenantCmd) Run(globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)
	ctx := context.Background()

	pool, err := c.Postgres.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	db := postgres.NewDB(pool, false)
	provisioner := &tenant.Provisioner{Tenants: postgres.NewTenantStore(db)}

	status := models.TenantStatusSuspended
	if c.Resume {
		status = models.TenantStatusActive
	}

	t, err := provisioner.SetStatus(ctx, c.Slug, status)
	if err != nil {
		return fmt.Errorf("failed to change tenant status: %w", err)
	}

	fmt.Printf("tenant %s is now %s\n", t.Slug, t.Status)
	return nil
}

// CreateUserCmd creates a principal, optionally as a member of one of its
// home tenant's groups.
type CreateUserCmd struct {
	Email    string `arg:"" help:"principal email (unique)"`
	Name     string `help:"display name"`
	Password string `help:"login password" required:""`

	Tenant    string `help:"home tenant slug"`
	Group     string `help:"tenant group to join (e.g. Administrators)"`
	Superuser bool   `help:"create a platform superuser" default:"false"`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *CreateUserCmd) Run(globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)
	ctx := context.Background()

	pool, err := c.Postgres.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	db := postgres.NewDB(pool, false)
	tenants := postgres.NewTenantStore(db)
	principals := postgres.NewPrincipalStore(db)
	groups := postgres.NewGroupStore(db)

	hash, err := auth.HashPassword(c.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	principal := &models.Principal{
		PrincipalID:  uuid.Must(uuid.NewV7()),
		Email:        c.Email,
		Name:         c.Name,
		Superuser:    c.Superuser,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var home *models.Tenant
	if c.Tenant != "" {
		home, err = tenants.GetBySlug(ctx, c.Tenant)
		if err != nil {
			return fmt.Errorf("failed to load tenant %q: %w", c.Tenant, err)
		}
		principal.TenantID = &home.TenantID
	}

	if err := principals.Create(ctx, principal); err != nil {
		return fmt.Errorf("failed to create principal: %w", err)
	}

	if c.Group != "" {
		if home == nil {
			return fmt.Errorf("--group requires --tenant")
		}
		tenantGroups, err := groups.ListByTenant(ctx, home.TenantID)
		if err != nil {
			return err
		}
		var joined bool
		for _, g := range tenantGroups {
			if g.Name == c.Group {
				if err := groups.AddMember(ctx, principal.PrincipalID, g.GroupID); err != nil {
					return err
				}
				joined = true
				break
			}
		}
		if !joined {
			return fmt.Errorf("tenant %q has no group %q", c.Tenant, c.Group)
		}
	}

	fmt.Printf("created principal %s (%s)\n", principal.Email, principal.PrincipalID)
	return nil
}
