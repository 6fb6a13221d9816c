// Package catalog holds the built-in permission catalog and roles and seeds
// them into the credential store.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/smallbiznis/ifs-auth/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the declarative set of permissions and roles.
type Catalog struct {
	Permissions []PermissionSpec `yaml:"permissions"`
	Roles       []RoleSpec       `yaml:"roles"`
}

// PermissionSpec declares one permission.
type PermissionSpec struct {
	Codename    string `yaml:"codename"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// RoleSpec declares a role and the codenames it carries.
type RoleSpec struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// Default returns the embedded catalog.
func Default() (Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse decodes and validates a catalog document.
func Parse(raw []byte) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate checks codename format and that roles only reference declared
// permissions. Duplicate permission entries are allowed when identical in
// codename.
func (c Catalog) Validate() error {
	known := make(map[string]struct{}, len(c.Permissions))
	for _, p := range c.Permissions {
		module, action, ok := strings.Cut(p.Codename, ".")
		if !ok || module == "" || action == "" {
			return fmt.Errorf("catalog: codename %q must be module.Action", p.Codename)
		}
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("catalog: permission %s has no name", p.Codename)
		}
		known[p.Codename] = struct{}{}
	}

	roles := make(map[string]struct{}, len(c.Roles))
	for _, r := range c.Roles {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("catalog: role without name")
		}
		if _, dup := roles[r.Name]; dup {
			return fmt.Errorf("catalog: duplicate role %s", r.Name)
		}
		roles[r.Name] = struct{}{}
		for _, code := range r.Permissions {
			if _, ok := known[code]; !ok {
				return fmt.Errorf("catalog: role %s references unknown permission %s", r.Name, code)
			}
		}
	}
	return nil
}

// Codenames lists every declared codename once, in declaration order.
func (c Catalog) Codenames() []string {
	seen := make(map[string]struct{}, len(c.Permissions))
	out := make([]string, 0, len(c.Permissions))
	for _, p := range c.Permissions {
		if _, ok := seen[p.Codename]; ok {
			continue
		}
		seen[p.Codename] = struct{}{}
		out = append(out, p.Codename)
	}
	return out
}

// Store is what seeding needs from the role repository.
type Store interface {
	EnsurePermission(ctx context.Context, perm domain.Permission) (domain.Permission, error)
	EnsureRole(ctx context.Context, role domain.Role) (domain.Role, error)
	GrantPermissions(ctx context.Context, roleID int64, codenames []string) error
}

// Seed upserts the catalog. It is additive: existing rows and grants made
// by administrators are kept.
func Seed(ctx context.Context, store Store, c Catalog, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.L()
	}

	for _, p := range c.Permissions {
		if _, err := store.EnsurePermission(ctx, domain.Permission{
			Codename:    p.Codename,
			Name:        p.Name,
			Description: p.Description,
		}); err != nil {
			return fmt.Errorf("seed permission: %w", err)
		}
	}

	for _, r := range c.Roles {
		role, err := store.EnsureRole(ctx, domain.Role{Name: r.Name, Description: r.Description})
		if err != nil {
			return fmt.Errorf("seed role: %w", err)
		}
		if err := store.GrantPermissions(ctx, role.ID, r.Permissions); err != nil {
			return fmt.Errorf("seed role %s: %w", r.Name, err)
		}
		logger.Debug("role seeded", zap.String("role", r.Name), zap.Int("permissions", len(r.Permissions)))
	}

	logger.Info("permission catalog seeded",
		zap.Int("permissions", len(c.Codenames())),
		zap.Int("roles", len(c.Roles)),
	)
	return nil
}
