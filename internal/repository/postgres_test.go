package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/ifs-auth/internal/domain"
)

// passthroughConverter lets array arguments reach the mock the way pgx's
// stdlib driver accepts them.
type passthroughConverter struct{}

func (passthroughConverter) ConvertValue(v any) (driver.Value, error) { return v, nil }

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthroughConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var userColumns = []string{"id", "username", "email", "password_hash", "user_type", "role_id", "role_name",
	"is_active", "is_staff", "is_superuser", "last_login", "created_at", "updated_at"}

func TestUserRepoGetByUsername(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresUserRepo(db)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("FROM users u.*WHERE u.username = ").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(int64(1), "alice", "alice@example.com", "hash", "student", int64(3), "Student", true, false, false, nil, now, now))

	user, err := repo.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1), user.ID)
	require.Equal(t, domain.UserTypeStudent, user.UserType)
	require.NotNil(t, user.RoleID)
	require.Equal(t, int64(3), *user.RoleID)
	require.Equal(t, "Student", user.RoleName)
	require.Nil(t, user.LastLogin)
}

func TestUserRepoNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery("FROM users u.*WHERE lower").WithArgs("ghost@example.com").WillReturnError(sql.ErrNoRows)
	_, err := repo.GetByEmail(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	mock.ExpectQuery("FROM users u.*WHERE u.id = ").WithArgs(int64(9)).WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByID(context.Background(), 9)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUserRepoCreateConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	_, err := repo.Create(context.Background(), domain.User{ID: 5, Username: "dup", Email: "dup@example.com"})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestUserRepoCreate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresUserRepo(db)
	now := time.Now().UTC()
	roleID := int64(2)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(int64(5), "bob", "bob@example.com", "hash", "company", sql.NullInt64{Int64: 2, Valid: true}, true, false, false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	user, err := repo.Create(context.Background(), domain.User{
		ID: 5, Username: "bob", Email: "bob@example.com", PasswordHash: "hash",
		UserType: domain.UserTypeCompany, RoleID: &roleID, IsActive: true,
	})
	require.NoError(t, err)
	require.Equal(t, now, user.CreatedAt)
}

func TestUserRepoListFilters(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresUserRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery("WHERE u.user_type = .* ORDER BY u.id LIMIT").
		WithArgs("student", 100).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(int64(1), "s1", "s1@example.com", "h", "student", nil, "", true, false, false, now, now, now).
			AddRow(int64(2), "s2", "s2@example.com", "h", "student", nil, "", true, false, false, nil, now, now))

	users, err := repo.List(context.Background(), UserFilter{UserType: domain.UserTypeStudent})
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.False(t, users[0].HasRole())
	require.NotNil(t, users[0].LastLogin)
}

func TestUserRepoUpdatePasswordMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec("UPDATE users SET password_hash").WithArgs(int64(7), "new").WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdatePassword(context.Background(), 7, "new")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestRoleRepoGetRoleLoadsPermissions(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRoleRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, name, description, created_at FROM roles WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at"}).AddRow(int64(1), "Admin", "Sistem yöneticisi", now))
	mock.ExpectQuery("FROM role_permissions rp").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "codename", "name", "description"}).
			AddRow(int64(10), "userManage.UserAdd", "Kullanıcı Ekleme", "").
			AddRow(int64(11), "userManage.UserList", "Kullanıcı Listeleme", ""))

	role, err := repo.GetRole(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, role.Grants("userManage.UserAdd"))
	require.True(t, role.Grants("userManage.UserList"))
}

func TestRoleRepoSetRolePermissions(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRoleRepo(db)
	codes := []string{"userManage.UserAdd", "userManage.UserView"}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT count").WithArgs(codes).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec("DELETE FROM role_permissions").WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO role_permissions").WithArgs(int64(1), codes).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.SetRolePermissions(context.Background(), 1, []string{"userManage.UserAdd", "userManage.UserView", "userManage.UserAdd"})
	require.NoError(t, err)
}

func TestRoleRepoSetRolePermissionsUnknownCodename(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRoleRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT count").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	err := repo.SetRolePermissions(context.Background(), 1, []string{"nope.Nope"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRoleRepoSetRolePermissionsMissingRole(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresRoleRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").WithArgs(int64(99)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.SetRolePermissions(context.Background(), 99, nil)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
