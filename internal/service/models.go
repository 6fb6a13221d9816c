package service

import (
	"time"

	"github.com/smallbiznis/ifs-auth/internal/domain"
)

// UserViewModel is the public representation of a user. Password hashes
// never leave the service.
type UserViewModel struct {
	ID          int64      `json:"id,string"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	UserType    string     `json:"user_type"`
	RoleID      *int64     `json:"role_id,omitempty"`
	Role        string     `json:"role,omitempty"`
	IsActive    bool       `json:"is_active"`
	IsStaff     bool       `json:"is_staff"`
	IsSuperuser bool       `json:"is_superuser"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewUserViewModel maps a domain user.
func NewUserViewModel(u domain.User) UserViewModel {
	return UserViewModel{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		UserType:    string(u.UserType),
		RoleID:      u.RoleID,
		Role:        u.RoleName,
		IsActive:    u.IsActive,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		LastLogin:   u.LastLogin,
		CreatedAt:   u.CreatedAt,
	}
}

// Profile is the caller's own view: identity plus effective permissions.
type Profile struct {
	User        UserViewModel `json:"user"`
	Permissions []string      `json:"permissions"`
}

// RoleViewModel is a role with its permission codenames.
type RoleViewModel struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// NewRoleViewModel maps a domain role.
func NewRoleViewModel(r domain.Role) RoleViewModel {
	return RoleViewModel{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Permissions: r.Codenames(),
	}
}
