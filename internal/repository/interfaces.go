package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/ifs-auth/internal/domain"
)

// UserRepository exposes persistence for identities.
type UserRepository interface {
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	List(ctx context.Context, filter UserFilter) ([]domain.User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
}

// UserFilter narrows List results.
type UserFilter struct {
	UserType domain.UserType
	RoleID   *int64
	Limit    int
	Offset   int
}

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// limit applies the default page size and caps oversized requests.
func (f UserFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	default:
		return f.Limit
	}
}

// RoleRepository exposes roles and their permissions.
type RoleRepository interface {
	// GetRole returns the role with its permissions loaded.
	GetRole(ctx context.Context, roleID int64) (domain.Role, error)
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)
	ListPermissions(ctx context.Context) ([]domain.Permission, error)
	EnsurePermission(ctx context.Context, perm domain.Permission) (domain.Permission, error)
	EnsureRole(ctx context.Context, role domain.Role) (domain.Role, error)
	// GrantPermissions adds codenames to the role, keeping existing grants.
	GrantPermissions(ctx context.Context, roleID int64, codenames []string) error
	// SetRolePermissions replaces the role's permission set atomically.
	SetRolePermissions(ctx context.Context, roleID int64, codenames []string) error
}

// CacheStore is the shared key/value store behind revocation and rate limiting.
type CacheStore interface {
	// SetNX stores value under key only when absent and reports whether it was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// Incr increments key and (re)arms its expiry in one round trip, returning the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}
