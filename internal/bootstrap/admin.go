// Package bootstrap prepares a fresh deployment: built-in permissions and
// roles, plus an optional superuser from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/ifs-auth/internal/catalog"
	"github.com/smallbiznis/ifs-auth/internal/config"
	"github.com/smallbiznis/ifs-auth/internal/domain"
	"github.com/smallbiznis/ifs-auth/internal/password"
	"github.com/smallbiznis/ifs-auth/internal/repository"
)

// Superuser describes the account EnsureSuperuser creates.
type Superuser struct {
	Username string
	Email    string
	Password string
}

// Register seeds the catalog and the configured superuser on start.
func Register(lc fx.Lifecycle, cfg config.Config, users repository.UserRepository, roles repository.RoleRepository, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if cfg.SeedCatalog {
				if err := SeedCatalog(ctx, roles, logger); err != nil {
					return err
				}
			}
			username := adminUsername(cfg)
			if username == "" || cfg.AdminPassword == "" {
				logger.Debug("admin bootstrap skipped, no credentials configured")
				return nil
			}
			_, _, err := EnsureSuperuser(ctx, users, roles, node, Superuser{
				Username: username,
				Email:    cfg.AdminEmail,
				Password: cfg.AdminPassword,
			}, logger)
			return err
		},
	})
}

// adminUsername falls back to the local part of ADMIN_EMAIL.
func adminUsername(cfg config.Config) string {
	if name := strings.TrimSpace(cfg.AdminUsername); name != "" {
		return name
	}
	local, _, _ := strings.Cut(strings.TrimSpace(cfg.AdminEmail), "@")
	return local
}

// SeedCatalog upserts the embedded permission catalog.
func SeedCatalog(ctx context.Context, roles repository.RoleRepository, logger *zap.Logger) error {
	c, err := catalog.Default()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if err := catalog.Seed(ctx, roles, c, logger); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	return nil
}

// EnsureSuperuser creates an admin superuser unless the username is taken.
// It reports whether an account was created.
func EnsureSuperuser(ctx context.Context, users repository.UserRepository, roles repository.RoleRepository, node *snowflake.Node, su Superuser, logger *zap.Logger) (domain.User, bool, error) {
	username := strings.TrimSpace(su.Username)
	email := strings.ToLower(strings.TrimSpace(su.Email))
	if username == "" || su.Password == "" {
		return domain.User{}, false, fmt.Errorf("%w: superuser username and password are required", domain.ErrInvalidInput)
	}
	if email == "" {
		email = username + "@localhost"
	}

	existing, err := users.GetByUsername(ctx, username)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, false, fmt.Errorf("bootstrap lookup user: %w", err)
	}

	if err := password.ValidatePolicy(su.Password); err != nil {
		return domain.User{}, false, err
	}
	hashed, err := password.Hash(su.Password)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("bootstrap hash password: %w", err)
	}

	user := domain.User{
		ID:           node.Generate().Int64(),
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
		UserType:     domain.UserTypeAdmin,
		IsActive:     true,
		IsStaff:      true,
		IsSuperuser:  true,
	}
	role, err := roles.GetRoleByName(ctx, domain.UserTypeAdmin.DefaultRoleName())
	switch {
	case err == nil:
		user.RoleID = &role.ID
		user.RoleName = role.Name
	case errors.Is(err, domain.ErrNotFound):
		// Superusers pass every check without a role.
	default:
		return domain.User{}, false, fmt.Errorf("bootstrap lookup role: %w", err)
	}

	created, err := users.Create(ctx, user)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("bootstrap create user: %w", err)
	}

	if logger != nil {
		logger.Info("bootstrap superuser created",
			zap.String("username", created.Username),
			zap.Int64("user_id", created.ID),
		)
	}
	return created, true, nil
}
