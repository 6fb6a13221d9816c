package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/smallbiznis/ifs-auth/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository = (*PostgresUserRepo)(nil)
	_ RoleRepository = (*PostgresRoleRepo)(nil)
)

const uniqueViolation = "23505"

// mapError translates driver errors into domain sentinels.
func mapError(err error, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// PostgresUserRepo implements UserRepository on database/sql backed by pgx.
type PostgresUserRepo struct {
	db *sql.DB
}

func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const selectUserSQL = `SELECT u.id, u.username, u.email, u.password_hash, u.user_type, u.role_id, COALESCE(r.name, ''),
       u.is_active, u.is_staff, u.is_superuser, u.last_login, u.created_at, u.updated_at
FROM users u
LEFT JOIN roles r ON r.id = u.role_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		user      domain.User
		userType  string
		roleID    sql.NullInt64
		lastLogin sql.NullTime
	)
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&userType,
		&roleID,
		&user.RoleName,
		&user.IsActive,
		&user.IsStaff,
		&user.IsSuperuser,
		&lastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return domain.User{}, err
	}
	user.UserType = domain.UserType(userType)
	if roleID.Valid {
		id := roleID.Int64
		user.RoleID = &id
	}
	if lastLogin.Valid {
		at := lastLogin.Time
		user.LastLogin = &at
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, selectUserSQL+` WHERE u.id = $1`, userID))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by id: %w", mapError(err, domain.ErrUserNotFound))
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, selectUserSQL+` WHERE u.username = $1`, username))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by username: %w", mapError(err, domain.ErrUserNotFound))
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, selectUserSQL+` WHERE lower(u.email) = lower($1)`, email))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by email: %w", mapError(err, domain.ErrUserNotFound))
	}
	return user, nil
}

const insertUserSQL = `INSERT INTO users (id, username, email, password_hash, user_type, role_id, is_active, is_staff, is_superuser)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at, updated_at`

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	var roleID sql.NullInt64
	if user.RoleID != nil {
		roleID = sql.NullInt64{Int64: *user.RoleID, Valid: true}
	}

	row := r.db.QueryRowContext(ctx, insertUserSQL,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		string(user.UserType),
		roleID,
		user.IsActive,
		user.IsStaff,
		user.IsSuperuser,
	)
	if err := row.Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", mapError(err, domain.ErrNotFound))
	}
	return user, nil
}

func (r *PostgresUserRepo) List(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.UserType != "" {
		args = append(args, string(filter.UserType))
		clauses = append(clauses, fmt.Sprintf("u.user_type = $%d", len(args)))
	}
	if filter.RoleID != nil {
		args = append(args, *filter.RoleID)
		clauses = append(clauses, fmt.Sprintf("u.role_id = $%d", len(args)))
	}

	query := selectUserSQL
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY u.id"

	args = append(args, filter.limit())
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireAffected(res, domain.ErrUserNotFound)
}

func (r *PostgresUserRepo) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return requireAffected(res, domain.ErrUserNotFound)
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// PostgresRoleRepo implements RoleRepository.
type PostgresRoleRepo struct {
	db *sql.DB
}

func NewPostgresRoleRepo(db *sql.DB) *PostgresRoleRepo {
	return &PostgresRoleRepo{db: db}
}

const selectRolePermissionsSQL = `SELECT p.id, p.codename, p.name, p.description
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = $1
ORDER BY p.codename`

func (r *PostgresRoleRepo) GetRole(ctx context.Context, roleID int64) (domain.Role, error) {
	var role domain.Role
	err := r.db.QueryRowContext(ctx, `SELECT id, name, description, created_at FROM roles WHERE id = $1`, roleID).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt)
	if err != nil {
		return domain.Role{}, fmt.Errorf("get role: %w", mapError(err, domain.ErrNotFound))
	}
	if role.Permissions, err = r.loadPermissions(ctx, role.ID); err != nil {
		return domain.Role{}, err
	}
	return role, nil
}

func (r *PostgresRoleRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	var role domain.Role
	err := r.db.QueryRowContext(ctx, `SELECT id, name, description, created_at FROM roles WHERE name = $1`, name).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt)
	if err != nil {
		return domain.Role{}, fmt.Errorf("get role by name: %w", mapError(err, domain.ErrNotFound))
	}
	if role.Permissions, err = r.loadPermissions(ctx, role.ID); err != nil {
		return domain.Role{}, err
	}
	return role, nil
}

func (r *PostgresRoleRepo) loadPermissions(ctx context.Context, roleID int64) ([]domain.Permission, error) {
	rows, err := r.db.QueryContext(ctx, selectRolePermissionsSQL, roleID)
	if err != nil {
		return nil, fmt.Errorf("load role permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func scanPermissions(rows *sql.Rows) ([]domain.Permission, error) {
	var perms []domain.Permission
	for rows.Next() {
		var p domain.Permission
		if err := rows.Scan(&p.ID, &p.Codename, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan permissions: %w", err)
	}
	return perms, nil
}

func (r *PostgresRoleRepo) ListPermissions(ctx context.Context) ([]domain.Permission, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, codename, name, description FROM permissions ORDER BY codename`)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// EnsurePermission inserts the permission when its codename is unknown and
// returns the stored row. Existing name and description are left untouched.
func (r *PostgresRoleRepo) EnsurePermission(ctx context.Context, perm domain.Permission) (domain.Permission, error) {
	const query = `INSERT INTO permissions (codename, name, description)
VALUES ($1, $2, $3)
ON CONFLICT (codename) DO UPDATE SET codename = EXCLUDED.codename
RETURNING id, codename, name, description`

	var out domain.Permission
	if err := r.db.QueryRowContext(ctx, query, perm.Codename, perm.Name, perm.Description).
		Scan(&out.ID, &out.Codename, &out.Name, &out.Description); err != nil {
		return domain.Permission{}, fmt.Errorf("ensure permission %s: %w", perm.Codename, err)
	}
	return out, nil
}

// EnsureRole inserts the role by name when missing and returns the stored row
// without permissions.
func (r *PostgresRoleRepo) EnsureRole(ctx context.Context, role domain.Role) (domain.Role, error) {
	const query = `INSERT INTO roles (name, description)
VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id, name, description, created_at`

	var out domain.Role
	if err := r.db.QueryRowContext(ctx, query, role.Name, role.Description).
		Scan(&out.ID, &out.Name, &out.Description, &out.CreatedAt); err != nil {
		return domain.Role{}, fmt.Errorf("ensure role %s: %w", role.Name, err)
	}
	return out, nil
}

const grantPermissionsSQL = `INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, p.id FROM permissions p WHERE p.codename = ANY($2)
ON CONFLICT DO NOTHING`

func (r *PostgresRoleRepo) GrantPermissions(ctx context.Context, roleID int64, codenames []string) error {
	if len(codenames) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, grantPermissionsSQL, roleID, codenames); err != nil {
		return fmt.Errorf("grant permissions: %w", err)
	}
	return nil
}

func (r *PostgresRoleRepo) SetRolePermissions(ctx context.Context, roleID int64, codenames []string) (err error) {
	codenames = uniqueStrings(codenames)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists); err != nil {
		return fmt.Errorf("check role: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}

	if len(codenames) > 0 {
		var known int
		if err = tx.QueryRowContext(ctx, `SELECT count(*) FROM permissions WHERE codename = ANY($1)`, codenames).Scan(&known); err != nil {
			return fmt.Errorf("count permissions: %w", err)
		}
		if known != len(codenames) {
			return fmt.Errorf("%w: unknown permission codename", domain.ErrInvalidInput)
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("clear role permissions: %w", err)
	}
	if len(codenames) > 0 {
		if _, err = tx.ExecContext(ctx, grantPermissionsSQL, roleID, codenames); err != nil {
			return fmt.Errorf("set role permissions: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
