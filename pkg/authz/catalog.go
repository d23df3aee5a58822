package authz

import (
	"errors"
	"fmt"
	"strings"

	cerrors "github.com/porthorian/cityauthz/pkg/errors"
)

type CatalogConfig struct {
	Permissions   map[Role]PermissionSet
	BuildingRules map[Role]BuildingRule
	Navigation    []NavigationEntry
}

// Catalog is the validated, immutable set of authorization tables.
// Every accessor returns a copy.
type Catalog struct {
	permissions [roleCount]PermissionSet
	rules       [roleCount]BuildingRule
	navigation  []NavigationEntry
}

func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Permissions:   DefaultRolePermissionMatrix(),
		BuildingRules: DefaultBuildingRules(),
		Navigation:    DefaultNavigation(),
	}
}

// DefaultCatalog panics if the built-in tables are inconsistent.
func DefaultCatalog() *Catalog {
	return MustCatalog(DefaultCatalogConfig())
}

func MustCatalog(config CatalogConfig) *Catalog {
	catalog, err := NewCatalog(config)
	if err != nil {
		panic(err)
	}
	return catalog
}

func NewCatalog(config CatalogConfig) (*Catalog, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	catalog := &Catalog{
		navigation: make([]NavigationEntry, len(config.Navigation)),
	}
	for _, role := range Roles() {
		catalog.permissions[role] = config.Permissions[role]
		catalog.rules[role] = cloneRule(config.BuildingRules[role])
	}
	copy(catalog.navigation, config.Navigation)

	return catalog, nil
}

// Validate reports every completeness problem at once.
func (c CatalogConfig) Validate() error {
	var issues []error

	for role, perms := range c.Permissions {
		if !role.Valid() {
			issues = append(issues, fmt.Errorf("permission table names unknown %s", role))
			continue
		}
		if !perms.known() {
			issues = append(issues, fmt.Errorf("role %s has unknown permission bits %#x", role, uint64(perms&^allPermissionsMask())))
		}
	}
	for role, rule := range c.BuildingRules {
		if !role.Valid() {
			issues = append(issues, fmt.Errorf("building rules name unknown %s", role))
			continue
		}
		if rule == nil {
			issues = append(issues, fmt.Errorf("role %s has a nil building rule", role))
		}
	}
	for _, role := range Roles() {
		if _, ok := c.Permissions[role]; !ok {
			issues = append(issues, fmt.Errorf("role %s has no permission entry", role))
		}
		if _, ok := c.BuildingRules[role]; !ok {
			issues = append(issues, fmt.Errorf("role %s has no building rule", role))
		}
	}

	seen := make(map[string]struct{}, len(c.Navigation))
	for i, entry := range c.Navigation {
		path := strings.TrimSpace(entry.Path)
		if path == "" {
			issues = append(issues, fmt.Errorf("navigation entry %d has an empty path", i))
			continue
		}
		if _, dup := seen[path]; dup {
			issues = append(issues, fmt.Errorf("navigation path %q is declared twice", path))
		}
		seen[path] = struct{}{}
		if !entry.AllowedRoles.known() {
			issues = append(issues, fmt.Errorf("navigation path %q names unknown roles", path))
		}
	}

	if len(issues) == 0 {
		return nil
	}
	joined := errors.Join(issues...)
	return cerrors.Wrap(cerrors.CodeInvalidCatalog, fmt.Sprintf("authz: invalid catalog: %v", joined), joined)
}

func (c *Catalog) Permissions(role Role) PermissionSet {
	if c == nil || !role.Valid() {
		return 0
	}
	return c.permissions[role]
}

// BuildingRule returns nil for roles outside the catalog.
func (c *Catalog) BuildingRule(role Role) BuildingRule {
	if c == nil || !role.Valid() {
		return nil
	}
	return c.rules[role]
}

func (c *Catalog) Navigation() []NavigationEntry {
	if c == nil {
		return nil
	}
	entries := make([]NavigationEntry, len(c.navigation))
	copy(entries, c.navigation)
	return entries
}

// RolesWithPermission lists, in role declaration order, the roles that hold perm.
func (c *Catalog) RolesWithPermission(perm Permission) []Role {
	roles := []Role{}
	for _, role := range Roles() {
		if c.Permissions(role).Has(perm) {
			roles = append(roles, role)
		}
	}
	return roles
}

func cloneRule(rule BuildingRule) BuildingRule {
	list, ok := rule.(FixedAllowList)
	if !ok {
		return rule
	}
	return NewFixedAllowList(list.IDs()...)
}
