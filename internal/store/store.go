// Package store defines the storage interfaces and sentinel errors shared by
// the memory and postgres implementations.
package store

import "errors"

// Sentinel errors for common error conditions
var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("tenant already exists")
	ErrPrincipalNotFound   = errors.New("principal not found")
	ErrGroupNotFound       = errors.New("group not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrCAPANotFound        = errors.New("capa not found")
	ErrDuplicate           = errors.New("duplicate value")
	ErrImmutableRecord     = errors.New("record is immutable")
)
