package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/mhaswell/fabtrace/internal/models"
)

// TenantGUC is the transaction-local session variable carrying the current
// tenant ID. It is the single coupling point between the application and the
// row-level security policies: this package is the only writer, the policies
// generated in rls.go are the only readers. set_config(..., true) makes the
// value transaction-local, so commit or rollback clears it and a pooled
// connection can never leak one tenant's scope into another's unit of work.
const TenantGUC = "app.current_tenant_id"

// ErrIsolationSetup is returned when the tenant session variable could not be
// established and isolation is strictly required. The unit of work must not
// proceed with any tenant-scoped data access.
var ErrIsolationSetup = errors.New("failed to establish tenant isolation context")

// DB wraps a pgx connection pool with tenant-scoped transaction management.
type DB struct {
	Pool *pgxpool.Pool

	// StrictIsolation makes a set_config failure fatal to the unit of work
	// for every tenant, not just those with RLSEnforced set.
	StrictIsolation bool
}

// NewDB creates a DB around an established pool.
func NewDB(pool *pgxpool.Pool, strict bool) *DB {
	return &DB{Pool: pool, StrictIsolation: strict}
}

type txContextKey struct{}
type tenantContextKey struct{}

// Querier is the subset of pgx operations shared by pgxpool.Pool and pgx.Tx.
// Store methods obtain one from the context so the same code runs inside a
// scoped transaction or directly against the pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Querier returns the transaction bound to the context, or the pool when the
// context carries none (bootstrap lookups run unscoped against the pool).
func (d *DB) Querier(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return d.Pool
}

// InTx reports whether the context carries a scoped transaction.
func (d *DB) InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txContextKey{}).(pgx.Tx)
	return ok
}

// ScopeTenant returns the tenant ID the context's unit of work is scoped to,
// or nil when unscoped. Stores use it for application-level filtering,
// redundantly with the row-level security policies.
func ScopeTenant(ctx context.Context) *uuid.UUID {
	id, _ := ctx.Value(tenantContextKey{}).(*uuid.UUID)
	return id
}

// RunScoped executes fn inside a single transaction whose boundary is the
// unit of work. When tenantID is non-nil the transaction-local tenant
// variable is set first, so every statement fn issues is re-checked by the
// database's row policies. strict controls whether a failure to set the
// variable aborts the unit of work; when false the transaction proceeds
// unscoped, which the policies treat as "global rows only" (default deny).
func (d *DB) RunScoped(ctx context.Context, tenantID *uuid.UUID, fn func(ctx context.Context) error) error {
	return d.runScoped(ctx, tenantID, d.StrictIsolation, fn)
}

// RunScopedFor is RunScoped with strictness widened by the tenant's own
// isolation flag.
func (d *DB) RunScopedFor(ctx context.Context, tenant *models.Tenant, fn func(ctx context.Context) error) error {
	if tenant == nil {
		return d.runScoped(ctx, nil, d.StrictIsolation, fn)
	}
	return d.runScoped(ctx, &tenant.TenantID, d.StrictIsolation || tenant.RLSEnforced, fn)
}

func (d *DB) runScoped(ctx context.Context, tenantID *uuid.UUID, strict bool, fn func(ctx context.Context) error) error {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if tenantID != nil {
		if _, err := tx.Exec(ctx, "SELECT set_config($1, $2, true)", TenantGUC, tenantID.String()); err != nil {
			if strict {
				return fmt.Errorf("%w: %v", ErrIsolationSetup, err)
			}
			// Default deny: the policies see no tenant variable and expose
			// only globally-shared rows.
			log.Warn().
				Err(err).
				Str("tenant_id", tenantID.String()).
				Msg("Proceeding unscoped after set_config failure")
			tenantID = nil
		}
	}

	scoped := context.WithValue(ctx, txContextKey{}, tx)
	scoped = context.WithValue(scoped, tenantContextKey{}, tenantID)

	if err := fn(scoped); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CurrentTenant reads the tenant variable back from the database within the
// context's transaction. Used by tests to verify both layers agree.
func (d *DB) CurrentTenant(ctx context.Context) (string, error) {
	var value string
	err := d.Querier(ctx).QueryRow(ctx, "SELECT COALESCE(current_setting($1, true), '')", TenantGUC).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("read tenant variable: %w", err)
	}
	return value, nil
}
