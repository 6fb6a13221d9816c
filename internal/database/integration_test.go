//go:build integration

package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/smallbiznis/ifs-auth/internal/database"
	"github.com/smallbiznis/ifs-auth/internal/domain"
	"github.com/smallbiznis/ifs-auth/internal/repository"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("ifs_test"),
		postgres.WithUsername("ifs"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestMigrateAndRepositories(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(t)

	require.NoError(t, database.Migrate(dsn, zap.NewNop()))
	// Second run is a no-op.
	require.NoError(t, database.Migrate(dsn, zap.NewNop()))

	pool, err := database.OpenPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	db := database.SQLDB(pool)

	roles := repository.NewPostgresRoleRepo(db)
	users := repository.NewPostgresUserRepo(db)

	_, err = roles.EnsurePermission(ctx, domain.Permission{Codename: "userManage.UserAdd", Name: "Kullanıcı Ekleme"})
	require.NoError(t, err)
	_, err = roles.EnsurePermission(ctx, domain.Permission{Codename: "userManage.UserList", Name: "Kullanıcı Listeleme"})
	require.NoError(t, err)

	role, err := roles.EnsureRole(ctx, domain.Role{Name: "Admin", Description: "Sistem yöneticisi"})
	require.NoError(t, err)
	again, err := roles.EnsureRole(ctx, domain.Role{Name: "Admin"})
	require.NoError(t, err)
	require.Equal(t, role.ID, again.ID)

	require.NoError(t, roles.SetRolePermissions(ctx, role.ID, []string{"userManage.UserAdd"}))
	loaded, err := roles.GetRole(ctx, role.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"userManage.UserAdd"}, loaded.Codenames())

	require.NoError(t, roles.SetRolePermissions(ctx, role.ID, []string{"userManage.UserList"}))
	loaded, err = roles.GetRole(ctx, role.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"userManage.UserList"}, loaded.Codenames())

	created, err := users.Create(ctx, domain.User{
		ID: 1001, Username: "admin", Email: "Admin@Example.com", PasswordHash: "x",
		UserType: domain.UserTypeAdmin, RoleID: &role.ID, IsActive: true,
	})
	require.NoError(t, err)

	_, err = users.Create(ctx, domain.User{ID: 1002, Username: "admin", Email: "other@example.com", PasswordHash: "x", UserType: domain.UserTypeStudent})
	require.ErrorIs(t, err, domain.ErrConflict)

	byEmail, err := users.GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	require.Equal(t, created.ID, byEmail.ID)
	require.Equal(t, "Admin", byEmail.RoleName)

	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, users.TouchLastLogin(ctx, created.ID, now))
	require.NoError(t, users.UpdatePassword(ctx, created.ID, "y"))

	byID, err := users.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "y", byID.PasswordHash)
	require.NotNil(t, byID.LastLogin)
	require.True(t, now.Equal(*byID.LastLogin))

	list, err := users.List(ctx, repository.UserFilter{UserType: domain.UserTypeAdmin})
	require.NoError(t, err)
	require.Len(t, list, 1)
}
