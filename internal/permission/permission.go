// Package permission defines the permission vocabulary, the default group
// seed spec, and effective-permission resolution for a unit of work.
package permission

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrPermissionDenied means the principal lacks the required permission in
// the scope's tenant.
var ErrPermissionDenied = errors.New("permission denied")

// Permission is a "resource:action" grant, e.g. "orders:view".
type Permission string

// Registered permissions. Grants outside this set are rejected at seed and
// grant time so a typo in a group spec fails loudly instead of silently
// never matching.
const (
	OrdersView   Permission = "orders:view"
	OrdersCreate Permission = "orders:create"
	OrdersUpdate Permission = "orders:update"

	CAPAsView   Permission = "capas:view"
	CAPAsCreate Permission = "capas:create"
	CAPAsUpdate Permission = "capas:update"

	AuditView Permission = "audit:view"

	TenantView  Permission = "tenant:view"
	TenantAdmin Permission = "tenant:admin"

	GroupsManage     Permission = "groups:manage"
	PrincipalsManage Permission = "principals:manage"
)

var registry = []Permission{
	OrdersView, OrdersCreate, OrdersUpdate,
	CAPAsView, CAPAsCreate, CAPAsUpdate,
	AuditView,
	TenantView, TenantAdmin,
	GroupsManage, PrincipalsManage,
}

// Resource returns the resource half of the permission.
func (p Permission) Resource() string {
	resource, _, _ := strings.Cut(string(p), ":")
	return resource
}

// Action returns the action half of the permission.
func (p Permission) Action() string {
	_, action, _ := strings.Cut(string(p), ":")
	return action
}

// All returns every registered permission, sorted.
func All() []Permission {
	all := make([]Permission, len(registry))
	copy(all, registry)
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	return all
}

// Valid reports whether p is a registered permission.
func Valid(p Permission) bool {
	for _, known := range registry {
		if known == p {
			return true
		}
	}
	return false
}

// Expand resolves a grant pattern to concrete permissions. Supported forms:
// an exact permission, "*" (everything), "resource:*" and "*:action".
func Expand(pattern string) ([]Permission, error) {
	if pattern == "*" {
		return All(), nil
	}

	resource, action, found := strings.Cut(pattern, ":")
	if !found {
		return nil, fmt.Errorf("malformed permission pattern %q", pattern)
	}

	switch {
	case resource == "*" && action == "*":
		return All(), nil
	case resource == "*":
		return matchRegistry(func(p Permission) bool { return p.Action() == action }, pattern)
	case action == "*":
		return matchRegistry(func(p Permission) bool { return p.Resource() == resource }, pattern)
	default:
		p := Permission(pattern)
		if !Valid(p) {
			return nil, fmt.Errorf("unknown permission %q", pattern)
		}
		return []Permission{p}, nil
	}
}

func matchRegistry(match func(Permission) bool, pattern string) ([]Permission, error) {
	var perms []Permission
	for _, p := range All() {
		if match(p) {
			perms = append(perms, p)
		}
	}
	if len(perms) == 0 {
		return nil, fmt.Errorf("permission pattern %q matches nothing", pattern)
	}
	return perms, nil
}

// ExpandAll expands a list of grant patterns into a sorted, deduplicated
// set of concrete permission strings.
func ExpandAll(patterns []string) ([]string, error) {
	seen := make(map[Permission]bool)
	for _, pattern := range patterns {
		perms, err := Expand(pattern)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			seen[p] = true
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out, nil
}
