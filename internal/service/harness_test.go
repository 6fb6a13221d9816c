package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/ifs-auth/internal/adapter/cache"
	"github.com/smallbiznis/ifs-auth/internal/authz"
	"github.com/smallbiznis/ifs-auth/internal/catalog"
	"github.com/smallbiznis/ifs-auth/internal/config"
	"github.com/smallbiznis/ifs-auth/internal/domain"
	"github.com/smallbiznis/ifs-auth/internal/jwt"
	"github.com/smallbiznis/ifs-auth/internal/password"
	"github.com/smallbiznis/ifs-auth/internal/ratelimit"
	"github.com/smallbiznis/ifs-auth/internal/repository"
	"github.com/smallbiznis/ifs-auth/internal/revocation"
	"github.com/smallbiznis/ifs-auth/internal/service"
	"github.com/smallbiznis/ifs-auth/internal/telemetry"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type harness struct {
	now      time.Time
	store    *cache.MemoryStore
	codec    *jwt.Codec
	registry *revocation.Registry
	users    *repository.MemoryUserRepo
	roles    *repository.MemoryRoleRepo
	resolver *authz.Resolver
	metrics  *telemetry.Metrics
	auth     *service.AuthService
	dir      *service.DirectoryService
}

func newHarness(t *testing.T, rotation bool) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return h.now }

	cfg := config.Config{
		AccessTokenTTL:      15 * time.Minute,
		RefreshTokenTTL:     7 * 24 * time.Hour,
		RefreshRotation:     rotation,
		LoginMaxAttempts:    5,
		LoginWindow:         time.Minute,
		RefreshMaxAttempts:  5,
		RefreshWindow:       30 * time.Second,
		PasswordMaxAttempts: 5,
		PasswordWindow:      15 * time.Minute,
	}

	codec, err := jwt.NewCodec(testSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, jwt.WithClock(clock))
	require.NoError(t, err)
	h.codec = codec
	h.store = cache.NewMemoryStore(clock)
	h.registry = revocation.NewRegistry(h.store, codec, zap.NewNop(), revocation.WithClock(clock))
	limits := ratelimit.Limiters{
		Login:    ratelimit.NewLimiter(h.store, "login", cfg.LoginMaxAttempts, cfg.LoginWindow),
		Refresh:  ratelimit.NewLimiter(h.store, "refresh", cfg.RefreshMaxAttempts, cfg.RefreshWindow),
		Password: ratelimit.NewLimiter(h.store, "password", cfg.PasswordMaxAttempts, cfg.PasswordWindow),
	}

	h.roles = repository.NewMemoryRoleRepo()
	cat, err := catalog.Default()
	require.NoError(t, err)
	require.NoError(t, catalog.Seed(ctx, h.roles, cat, zap.NewNop()))

	h.users = repository.NewMemoryUserRepo(h.roles)
	h.resolver = authz.NewResolver(h.roles)
	h.metrics = telemetry.NewMetrics()
	h.auth = service.NewAuthService(h.users, codec, h.registry, limits, h.resolver, h.metrics, cfg, zap.NewNop(), service.WithClock(clock))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	h.dir = service.NewDirectoryService(h.users, h.roles, node, h.resolver, zap.NewNop())
	return h
}

func (h *harness) role(t *testing.T, name string) domain.Role {
	t.Helper()
	role, err := h.roles.GetRoleByName(context.Background(), name)
	require.NoError(t, err)
	return role
}

func (h *harness) addUser(t *testing.T, id int64, username, email, pass, roleName string) domain.User {
	t.Helper()
	hash, err := password.Hash(pass)
	require.NoError(t, err)
	user := domain.User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		UserType:     domain.UserTypeStudent,
		IsActive:     true,
	}
	if roleName != "" {
		role := h.role(t, roleName)
		user.RoleID = &role.ID
		user.RoleName = role.Name
	}
	h.users.Put(user)
	return user
}

// as authenticates ctx the way the HTTP middleware does.
func (h *harness) as(t *testing.T, accessToken string) context.Context {
	t.Helper()
	claims, err := h.codec.Verify(accessToken)
	require.NoError(t, err)
	user, err := h.users.GetByID(context.Background(), claims.UserID)
	require.NoError(t, err)
	return authz.ContextWithIdentity(context.Background(), authz.Identity{User: user, Claims: claims, Token: accessToken})
}
