package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/ifs-auth/internal/domain"
)

var (
	_ UserRepository = (*MemoryUserRepo)(nil)
	_ RoleRepository = (*MemoryRoleRepo)(nil)
)

// MemoryUserRepo is a process-local UserRepository for tests and tooling.
// Role names are joined from the paired MemoryRoleRepo like the SQL LEFT JOIN.
type MemoryUserRepo struct {
	mu    sync.Mutex
	users map[int64]domain.User
	roles *MemoryRoleRepo
}

// NewMemoryUserRepo returns an empty repository. roles may be nil.
func NewMemoryUserRepo(roles *MemoryRoleRepo) *MemoryUserRepo {
	return &MemoryUserRepo{users: map[int64]domain.User{}, roles: roles}
}

// Put stores u as is, replacing any user with the same ID.
func (m *MemoryUserRepo) Put(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MemoryUserRepo) withRole(u domain.User) domain.User {
	if u.RoleID != nil && m.roles != nil {
		if role, err := m.roles.GetRole(context.Background(), *u.RoleID); err == nil {
			u.RoleName = role.Name
		}
	}
	return u
}

func (m *MemoryUserRepo) GetByID(_ context.Context, userID int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return m.withRole(u), nil
}

func (m *MemoryUserRepo) GetByUsername(_ context.Context, username string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return m.withRole(u), nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (m *MemoryUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return m.withRole(u), nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (m *MemoryUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username || strings.EqualFold(u.Email, user.Email) {
			return domain.User{}, domain.ErrConflict
		}
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m *MemoryUserRepo) List(_ context.Context, filter UserFilter) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.User
	for _, u := range m.users {
		if filter.UserType != "" && u.UserType != filter.UserType {
			continue
		}
		if filter.RoleID != nil && (u.RoleID == nil || *u.RoleID != *filter.RoleID) {
			continue
		}
		out = append(out, m.withRole(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	limit := filter.limit()
	offset := max(filter.Offset, 0)
	if offset >= len(out) {
		return []domain.User{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryUserRepo) UpdatePassword(_ context.Context, userID int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	m.users[userID] = u
	return nil
}

func (m *MemoryUserRepo) TouchLastLogin(_ context.Context, userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.LastLogin = &at
	m.users[userID] = u
	return nil
}

// MemoryRoleRepo is a process-local RoleRepository.
type MemoryRoleRepo struct {
	mu    sync.Mutex
	perms map[string]domain.Permission
	roles map[int64]domain.Role
}

// NewMemoryRoleRepo returns an empty repository.
func NewMemoryRoleRepo() *MemoryRoleRepo {
	return &MemoryRoleRepo{perms: map[string]domain.Permission{}, roles: map[int64]domain.Role{}}
}

func (m *MemoryRoleRepo) GetRole(_ context.Context, roleID int64) (domain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[roleID]
	if !ok {
		return domain.Role{}, domain.ErrNotFound
	}
	role.Permissions = append([]domain.Permission(nil), role.Permissions...)
	return role, nil
}

func (m *MemoryRoleRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	m.mu.Lock()
	var id int64
	for _, r := range m.roles {
		if r.Name == name {
			id = r.ID
		}
	}
	m.mu.Unlock()
	if id == 0 {
		return domain.Role{}, domain.ErrNotFound
	}
	return m.GetRole(ctx, id)
}

func (m *MemoryRoleRepo) ListPermissions(context.Context) ([]domain.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Codename < out[j].Codename })
	return out, nil
}

func (m *MemoryRoleRepo) EnsurePermission(_ context.Context, perm domain.Permission) (domain.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.perms[perm.Codename]; ok {
		return p, nil
	}
	perm.ID = int64(len(m.perms) + 1)
	m.perms[perm.Codename] = perm
	return perm, nil
}

func (m *MemoryRoleRepo) EnsureRole(_ context.Context, role domain.Role) (domain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name == role.Name {
			return r, nil
		}
	}
	role.ID = int64(len(m.roles) + 1)
	m.roles[role.ID] = role
	return role, nil
}

func (m *MemoryRoleRepo) GrantPermissions(_ context.Context, roleID int64, codenames []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[roleID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, c := range codenames {
		if !role.Grants(c) {
			role.Permissions = append(role.Permissions, m.perms[c])
		}
	}
	m.roles[roleID] = role
	return nil
}

func (m *MemoryRoleRepo) SetRolePermissions(_ context.Context, roleID int64, codenames []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[roleID]
	if !ok {
		return domain.ErrNotFound
	}
	perms := make([]domain.Permission, 0, len(codenames))
	for _, c := range codenames {
		p, ok := m.perms[c]
		if !ok {
			return domain.ErrInvalidInput
		}
		perms = append(perms, p)
	}
	role.Permissions = perms
	m.roles[roleID] = role
	return nil
}

var (
	_ UserRepository = (*MemoryUserRepo)(nil)
	_ RoleRepository = (*MemoryRoleRepo)(nil)
)
