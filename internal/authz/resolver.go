package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/ifs-auth/internal/domain"
)

// RoleLoader loads roles with their permissions.
type RoleLoader interface {
	GetRole(ctx context.Context, roleID int64) (domain.Role, error)
	ListPermissions(ctx context.Context) ([]domain.Permission, error)
}

// PermissionChecker decides whether a user holds a permission.
type PermissionChecker interface {
	HasPermission(ctx context.Context, user domain.User, codename string) (bool, error)
}

// Resolver answers permission questions from role data loaded on every call,
// so grants and revocations apply to the next request.
type Resolver struct {
	roles RoleLoader
}

var _ PermissionChecker = (*Resolver)(nil)

func NewResolver(roles RoleLoader) *Resolver {
	return &Resolver{roles: roles}
}

// RolePermissions returns the codenames granted to roleID.
func (r *Resolver) RolePermissions(ctx context.Context, roleID int64) (map[string]struct{}, error) {
	role, err := r.roles.GetRole(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("resolve role %d: %w", roleID, err)
	}
	return role.PermissionSet(), nil
}

// HasPermission is true for superusers, false for users without a role, and
// otherwise reflects the role's current permission set.
func (r *Resolver) HasPermission(ctx context.Context, user domain.User, codename string) (bool, error) {
	if user.IsSuperuser {
		return true, nil
	}
	if !user.HasRole() {
		return false, nil
	}
	set, err := r.RolePermissions(ctx, *user.RoleID)
	if err != nil {
		// The role was removed between loading the user and this check.
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	_, ok := set[codename]
	return ok, nil
}

// Permissions lists the codenames the user holds. Superusers hold every
// known permission.
func (r *Resolver) Permissions(ctx context.Context, user domain.User) ([]string, error) {
	if user.IsSuperuser {
		perms, err := r.roles.ListPermissions(ctx)
		if err != nil {
			return nil, fmt.Errorf("list permissions: %w", err)
		}
		return domain.Role{Permissions: perms}.Codenames(), nil
	}
	if !user.HasRole() {
		return []string{}, nil
	}
	role, err := r.roles.GetRole(ctx, *user.RoleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("resolve role %d: %w", *user.RoleID, err)
	}
	return role.Codenames(), nil
}
