package domain

import (
	"fmt"
	"strings"
	"time"
)

// UserType classifies accounts the way the internship system does.
type UserType string

const (
	UserTypeAdmin   UserType = "admin"
	UserTypeStudent UserType = "student"
	UserTypeCompany UserType = "company"
)

// ParseUserType normalizes raw input into a known user type.
func ParseUserType(raw string) (UserType, error) {
	switch t := UserType(strings.ToLower(strings.TrimSpace(raw))); t {
	case UserTypeAdmin, UserTypeStudent, UserTypeCompany:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown user type %q", ErrInvalidInput, raw)
	}
}

// DefaultRoleName is the built-in role a new user of this type receives.
func (t UserType) DefaultRoleName() string {
	switch t {
	case UserTypeAdmin:
		return "Admin"
	case UserTypeStudent:
		return "Student"
	case UserTypeCompany:
		return "Company"
	}
	return ""
}

// User is an identity held by the credential store. Each user links to at most one role.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	UserType     UserType
	RoleID       *int64
	RoleName     string
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the user is linked to a role.
func (u User) HasRole() bool {
	return u.RoleID != nil
}
