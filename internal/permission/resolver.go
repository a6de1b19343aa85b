package permission

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/mhaswell/fabtrace/internal/store"
	"github.com/mhaswell/fabtrace/internal/tenant"
)

// Resolver computes the effective permission set of a unit of work: the
// union of the principal's direct grants and its group grants within the
// scope's tenant. Groups from other tenants never contribute.
type Resolver struct {
	principals store.PrincipalStore
	groups     store.GroupStore
}

// NewResolver creates a permission resolver.
func NewResolver(principals store.PrincipalStore, groups store.GroupStore) *Resolver {
	return &Resolver{principals: principals, groups: groups}
}

// PermissionsFor returns the effective permissions of the scope, computing
// them at most once per tenant per unit of work. Anonymous scopes hold no
// permissions.
func (r *Resolver) PermissionsFor(ctx context.Context, scope *tenant.Scope) ([]string, error) {
	if scope == nil || scope.Principal == nil {
		return nil, nil
	}
	if scope.Principal.Superuser {
		return allStrings(), nil
	}

	// uuid.Nil keys the no-tenant case in the scope cache.
	cacheKey := uuid.Nil
	if id := scope.TenantID(); id != nil {
		cacheKey = *id
	}
	if perms, ok := scope.CachedPermissions(cacheKey); ok {
		return perms, nil
	}

	direct, err := r.principals.DirectPermissions(ctx, scope.Principal.PrincipalID)
	if err != nil {
		return nil, fmt.Errorf("load direct permissions: %w", err)
	}

	var member []string
	if id := scope.TenantID(); id != nil {
		member, err = r.groups.MemberPermissions(ctx, scope.Principal.PrincipalID, *id)
		if err != nil {
			return nil, fmt.Errorf("load group permissions: %w", err)
		}
	}

	perms := union(direct, member)
	scope.CachePermissions(cacheKey, perms)
	return perms, nil
}

// Check verifies the scope holds the given permission.
// Returns ErrPermissionDenied when it does not.
func (r *Resolver) Check(ctx context.Context, scope *tenant.Scope, p Permission) error {
	perms, err := r.PermissionsFor(ctx, scope)
	if err != nil {
		return err
	}
	for _, held := range perms {
		if held == string(p) {
			return nil
		}
	}
	return ErrPermissionDenied
}

func allStrings() []string {
	all := All()
	out := make([]string, len(all))
	for i, p := range all {
		out[i] = string(p)
	}
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, perms := range [][]string{a, b} {
		for _, p := range perms {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}
