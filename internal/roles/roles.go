package roles

import (
	"context"
	"errors"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	// Default is the fail-open role used whenever an authoritative record
	// is absent or unreadable.
	Default = RoleUser
)

// ErrNotFound is returned by GetRole when no record exists for the identity.
var ErrNotFound = errors.New("roles: record not found")

// Store owns the per-identity role records. SetRole is called once, at
// sign-up; roles never change afterwards in this system.
type Store interface {
	GetRole(ctx context.Context, identityID string) (string, error)
	SetRole(ctx context.Context, identityID, role string) error
}

// IsValid reports whether the value is a known role label.
func IsValid(role string) bool {
	return role == RoleAdmin || role == RoleUser
}
