package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRolePermissionSet(t *testing.T) {
	role := Role{Name: "Admin", Permissions: []Permission{
		{Codename: "userManage.UserAdd"},
		{Codename: "userManage.UserList"},
	}}

	require.True(t, role.Grants("userManage.UserAdd"))
	require.False(t, role.Grants("userManage.UserDelete"))
	require.Len(t, role.PermissionSet(), 2)
	require.Equal(t, []string{"userManage.UserAdd", "userManage.UserList"}, role.Codenames())

	require.Empty(t, Role{}.PermissionSet())
}

func TestParseUserType(t *testing.T) {
	typ, err := ParseUserType(" Student ")
	require.NoError(t, err)
	require.Equal(t, UserTypeStudent, typ)
	require.Equal(t, "Student", typ.DefaultRoleName())

	_, err = ParseUserType("mentor")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestDerivedTokenErrors(t *testing.T) {
	require.True(t, errors.Is(ErrWrongTokenType, ErrTokenInvalid))
	require.True(t, errors.Is(ErrTokenRevoked, ErrTokenInvalid))
	require.False(t, errors.Is(ErrTokenExpired, ErrTokenInvalid))
}
