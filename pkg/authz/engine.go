package authz

// Authorizer is the read-only decision surface. Engine and the root Client both satisfy it.
type Authorizer interface {
	HasPermission(role Role, perm Permission) bool
	CanAccessBuilding(role Role, buildingID string, assigned ...string) bool
	VisibleNavigation(role Role) []NavigationItem
}

// Engine evaluates decisions against a Catalog. It holds no other state,
// so a single Engine may be shared by any number of goroutines.
type Engine struct {
	catalog *Catalog
}

var _ Authorizer = (*Engine)(nil)

// NewEngine falls back to DefaultCatalog when catalog is nil.
func NewEngine(catalog *Catalog) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Engine{catalog: catalog}
}

func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

func (e *Engine) Permissions(role Role) PermissionSet {
	return e.catalog.Permissions(role)
}

func (e *Engine) HasPermission(role Role, perm Permission) bool {
	return e.catalog.Permissions(role).Has(perm)
}

func (e *Engine) CanAccessBuilding(role Role, buildingID string, assigned ...string) bool {
	rule := e.catalog.BuildingRule(role)
	if rule == nil {
		return false
	}
	return rule.allows(buildingID, assigned)
}

// AccessibleBuildings keeps the candidates the role may access, in their given order.
func (e *Engine) AccessibleBuildings(role Role, candidates []string, assigned ...string) []string {
	allowed := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if e.CanAccessBuilding(role, id, assigned...) {
			allowed = append(allowed, id)
		}
	}
	return allowed
}

func (e *Engine) VisibleNavigation(role Role) []NavigationItem {
	items := []NavigationItem{}
	if e.catalog == nil {
		return items
	}
	for _, entry := range e.catalog.navigation {
		if entry.AllowedRoles.Has(role) {
			items = append(items, entry.Item())
		}
	}
	return items
}
