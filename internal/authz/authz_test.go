package authz_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/ifs-auth/internal/authz"
	"github.com/smallbiznis/ifs-auth/internal/domain"
)

type memoryRoles struct {
	roles map[int64]domain.Role
	calls int
	err   error
}

func (m *memoryRoles) GetRole(_ context.Context, roleID int64) (domain.Role, error) {
	m.calls++
	if m.err != nil {
		return domain.Role{}, m.err
	}
	role, ok := m.roles[roleID]
	if !ok {
		return domain.Role{}, domain.ErrNotFound
	}
	return role, nil
}

func (m *memoryRoles) ListPermissions(context.Context) ([]domain.Permission, error) {
	if m.err != nil {
		return nil, m.err
	}
	seen := map[string]struct{}{}
	var out []domain.Permission
	for _, role := range m.roles {
		for _, p := range role.Permissions {
			if _, ok := seen[p.Codename]; !ok {
				seen[p.Codename] = struct{}{}
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func int64p(v int64) *int64 { return &v }

func newRoles() *memoryRoles {
	return &memoryRoles{roles: map[int64]domain.Role{
		1: {ID: 1, Name: "Admin", Permissions: []domain.Permission{{Codename: "userManage.UserAdd"}}},
		2: {ID: 2, Name: "Student"},
	}}
}

func TestResolverHasPermission(t *testing.T) {
	ctx := context.Background()
	roles := newRoles()
	resolver := authz.NewResolver(roles)

	ok, err := resolver.HasPermission(ctx, domain.User{ID: 1, RoleID: int64p(1)}, "userManage.UserAdd")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = resolver.HasPermission(ctx, domain.User{ID: 2, RoleID: int64p(2)}, "userManage.UserAdd")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = resolver.HasPermission(ctx, domain.User{ID: 3}, "userManage.UserAdd")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = resolver.HasPermission(ctx, domain.User{ID: 4, RoleID: int64p(99)}, "userManage.UserAdd")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResolverSuperuserWithEmptyRole(t *testing.T) {
	roles := newRoles()
	resolver := authz.NewResolver(roles)

	ok, err := resolver.HasPermission(context.Background(), domain.User{ID: 1, IsSuperuser: true, RoleID: int64p(2)}, "anything.At.All")
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, roles.calls)
}

func TestResolverSeesChangesImmediately(t *testing.T) {
	ctx := context.Background()
	roles := newRoles()
	resolver := authz.NewResolver(roles)
	user := domain.User{ID: 1, RoleID: int64p(2)}

	ok, err := resolver.HasPermission(ctx, user, "userManage.UserList")
	require.NoError(t, err)
	require.False(t, ok)

	role := roles.roles[2]
	role.Permissions = append(role.Permissions, domain.Permission{Codename: "userManage.UserList"})
	roles.roles[2] = role

	ok, err = resolver.HasPermission(ctx, user, "userManage.UserList")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestResolverPermissions(t *testing.T) {
	ctx := context.Background()
	resolver := authz.NewResolver(newRoles())

	perms, err := resolver.Permissions(ctx, domain.User{ID: 1, RoleID: int64p(1)})
	require.NoError(t, err)
	require.Equal(t, []string{"userManage.UserAdd"}, perms)

	perms, err = resolver.Permissions(ctx, domain.User{ID: 2})
	require.NoError(t, err)
	require.Empty(t, perms)

	perms, err = resolver.Permissions(ctx, domain.User{ID: 3, IsSuperuser: true})
	require.NoError(t, err)
	require.Equal(t, []string{"userManage.UserAdd"}, perms)
}

func TestResolverStoreError(t *testing.T) {
	roles := newRoles()
	roles.err = errors.New("db down")
	resolver := authz.NewResolver(roles)

	_, err := resolver.HasPermission(context.Background(), domain.User{ID: 1, RoleID: int64p(1)}, "userManage.UserAdd")
	require.Error(t, err)
}

func TestGuard(t *testing.T) {
	resolver := authz.NewResolver(newRoles())
	calls := 0
	op := authz.Guard(resolver, "userManage.UserAdd", func(ctx context.Context, req string) (string, error) {
		calls++
		return "created " + req, nil
	})

	_, err := op(context.Background(), "x")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	student := authz.ContextWithIdentity(context.Background(), authz.Identity{User: domain.User{ID: 2, RoleID: int64p(2)}})
	_, err = op(student, "x")
	require.ErrorIs(t, err, domain.ErrForbidden)
	require.Zero(t, calls)

	admin := authz.ContextWithIdentity(context.Background(), authz.Identity{User: domain.User{ID: 1, RoleID: int64p(1)}})
	out, err := op(admin, "x")
	require.NoError(t, err)
	require.Equal(t, "created x", out)
	require.Equal(t, 1, calls)
}

func TestGuardPropagatesResolverError(t *testing.T) {
	roles := newRoles()
	roles.err = errors.New("db down")
	op := authz.Guard(authz.NewResolver(roles), "userManage.UserAdd", func(ctx context.Context, req int) (int, error) {
		return req, nil
	})

	ctx := authz.ContextWithIdentity(context.Background(), authz.Identity{User: domain.User{ID: 1, RoleID: int64p(1)}})
	_, err := op(ctx, 1)
	require.ErrorContains(t, err, "db down")
}

func TestRequireAuthenticated(t *testing.T) {
	op := authz.RequireAuthenticated(func(ctx context.Context, req int) (int, error) { return req * 2, nil })

	_, err := op(context.Background(), 2)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	ctx := authz.ContextWithIdentity(context.Background(), authz.Identity{User: domain.User{ID: 5}})
	out, err := op(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 4, out)
}

func TestRequirePermissionHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resolver := authz.NewResolver(newRoles())

	serve := func(id authz.Identity) int {
		engine := gin.New()
		engine.Use(func(c *gin.Context) {
			if !id.IsAnonymous() {
				authz.SetIdentity(c, id)
			}
			c.Next()
		})
		engine.GET("/users", authz.RequirePermission(resolver, "userManage.UserAdd", zap.NewNop()), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
		return rec.Code
	}

	require.Equal(t, http.StatusUnauthorized, serve(authz.Anonymous))
	require.Equal(t, http.StatusForbidden, serve(authz.Identity{User: domain.User{ID: 2, RoleID: int64p(2)}}))
	require.Equal(t, http.StatusNoContent, serve(authz.Identity{User: domain.User{ID: 1, RoleID: int64p(1)}}))
	require.Equal(t, http.StatusNoContent, serve(authz.Identity{User: domain.User{ID: 9, IsSuperuser: true}}))
}
