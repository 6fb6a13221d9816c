package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/ifs-auth/internal/domain"
	"github.com/smallbiznis/ifs-auth/internal/password"
)

func TestHashPasswordFromFlag(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"hash-password", "--password", "s3cretpass"}, strings.NewReader(""), &out)
	require.NoError(t, err)

	hash := strings.TrimSpace(out.String())
	require.True(t, strings.HasPrefix(hash, "$argon2id$"))
	ok, err := password.Verify("s3cretpass", hash)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHashPasswordFromStdin(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"hash-password"}, strings.NewReader("fromstdin1\n"), &out)
	require.NoError(t, err)

	ok, err := password.Verify("fromstdin1", strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHashPasswordEnforcesPolicy(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"hash-password", "--password", "short"}, strings.NewReader(""), &out)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	require.Empty(t, out.String())
}

func TestUsage(t *testing.T) {
	var out bytes.Buffer
	require.ErrorIs(t, run(context.Background(), nil, strings.NewReader(""), &out), errUsage)
	require.ErrorIs(t, run(context.Background(), []string{"frobnicate"}, strings.NewReader(""), &out), errUsage)

	require.NoError(t, run(context.Background(), []string{"help"}, strings.NewReader(""), &out))
	require.Contains(t, out.String(), "create-superuser")
}

func TestDatabaseCommandsRequireURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	var out bytes.Buffer
	err := run(context.Background(), []string{"seed"}, strings.NewReader(""), &out)
	require.ErrorContains(t, err, "DATABASE_URL")

	err = run(context.Background(), []string{"migrate", "--database-url", ""}, strings.NewReader(""), &out)
	require.ErrorContains(t, err, "DATABASE_URL")
}

func TestCommandHelp(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"create-superuser", "--help"}, strings.NewReader(""), &out)
	require.ErrorIs(t, err, pflag.ErrHelp)
	require.Contains(t, out.String(), "--username")
}
