package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PartitionedTable describes a table under row-level security. A row is
// visible and writable when its tenant column is NULL (globally shared data)
// or equals the transaction's tenant variable; with no variable set only
// shared rows remain. Immutable tables additionally reject every update and
// delete, for any role including the table owner.
type PartitionedTable struct {
	Name         string
	TenantColumn string
	Immutable    bool
}

// PartitionedTables is the registry of tables the policies are applied to.
// Control-plane tables (tenants, principals, groups, memberships, grants)
// are deliberately absent: tenant resolution and permission computation read
// them before any scope exists.
var PartitionedTables = []PartitionedTable{
	{Name: "orders", TenantColumn: "tenant_id"},
	{Name: "capas", TenantColumn: "tenant_id"},
	{Name: "audit_events", TenantColumn: "tenant_id", Immutable: true},
}

// tenantPredicate is the policy expression both USING and WITH CHECK share.
// NULLIF guards the cast: an unset variable reads as the empty string, which
// must compare as "no tenant", not fail to cast to uuid.
func tenantPredicate(column string) string {
	return fmt.Sprintf("%s IS NULL OR %s = NULLIF(current_setting('%s', true), '')::uuid",
		column, column, TenantGUC)
}

// policyStatements returns the DDL for one table. FORCE ROW LEVEL SECURITY
// keeps the table owner inside the policy, so a misconfigured application
// role cannot silently bypass isolation. Statements are drop-and-recreate so
// applying them is idempotent.
func policyStatements(t PartitionedTable) []string {
	pred := tenantPredicate(t.TenantColumn)
	stmts := []string{
		fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", t.Name),
		fmt.Sprintf("ALTER TABLE %s FORCE ROW LEVEL SECURITY", t.Name),
		fmt.Sprintf("DROP POLICY IF EXISTS %s_tenant_isolation ON %s", t.Name, t.Name),
	}

	if t.Immutable {
		// Immutable tables split the policy per command: insert and select
		// follow the tenant predicate, update and delete are rejected
		// unconditionally.
		stmts = append(stmts,
			fmt.Sprintf("DROP POLICY IF EXISTS %s_tenant_select ON %s", t.Name, t.Name),
			fmt.Sprintf("DROP POLICY IF EXISTS %s_tenant_insert ON %s", t.Name, t.Name),
			fmt.Sprintf("DROP POLICY IF EXISTS %s_no_update ON %s", t.Name, t.Name),
			fmt.Sprintf("DROP POLICY IF EXISTS %s_no_delete ON %s", t.Name, t.Name),
			fmt.Sprintf("CREATE POLICY %s_tenant_select ON %s FOR SELECT USING (%s)", t.Name, t.Name, pred),
			fmt.Sprintf("CREATE POLICY %s_tenant_insert ON %s FOR INSERT WITH CHECK (%s)", t.Name, t.Name, pred),
			fmt.Sprintf("CREATE POLICY %s_no_update ON %s FOR UPDATE USING (false)", t.Name, t.Name),
			fmt.Sprintf("CREATE POLICY %s_no_delete ON %s FOR DELETE USING (false)", t.Name, t.Name),
		)
		return stmts
	}

	stmts = append(stmts,
		fmt.Sprintf("CREATE POLICY %s_tenant_isolation ON %s FOR ALL USING (%s) WITH CHECK (%s)",
			t.Name, t.Name, pred, pred),
	)
	return stmts
}

// ApplyRLSPolicies installs or refreshes the row-level security policies for
// every registered table. Run after migrations on startup. Generating the
// DDL here rather than in a static migration keeps the session variable name
// defined once, in TenantGUC, for both layers.
func ApplyRLSPolicies(ctx context.Context, pool *pgxpool.Pool) error {
	for _, table := range PartitionedTables {
		for _, stmt := range policyStatements(table) {
			if _, err := pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply policy on %s: %w", table.Name, err)
			}
		}
		log.Debug().Str("table", table.Name).Bool("immutable", table.Immutable).Msg("Applied row security policies")
	}

	log.Info().Int("tables", len(PartitionedTables)).Msg("Row-level security policies in place")
	return nil
}
