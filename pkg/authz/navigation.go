package authz

type NavigationEntry struct {
	Path         string
	Label        string
	Icon         string
	AllowedRoles RoleSet
}

// NavigationItem is what a menu renderer receives. It carries no role data.
type NavigationItem struct {
	Path  string `json:"path"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

func (e NavigationEntry) Item() NavigationItem {
	return NavigationItem{Path: e.Path, Label: e.Label, Icon: e.Icon}
}

func DefaultNavigation() []NavigationEntry {
	staff := NewRoleSet(RoleAdmin, RoleManager, RoleMayor, RoleBuildingManager, RoleUser)
	operators := NewRoleSet(RoleAdmin, RoleManager, RoleBuildingManager)

	return []NavigationEntry{
		{Path: "/", Label: "Dashboard", Icon: "layout-dashboard", AllowedRoles: staff},
		{Path: "/buildings", Label: "Buildings", Icon: "building", AllowedRoles: staff},
		{Path: "/sensors", Label: "Sensors", Icon: "activity", AllowedRoles: NewRoleSet(RoleAdmin, RoleManager, RoleBuildingManager, RoleUser)},
		{Path: "/alerts", Label: "Alerts", Icon: "bell", AllowedRoles: operators},
		{Path: "/maintenance", Label: "Maintenance", Icon: "wrench", AllowedRoles: operators},
		{Path: "/reports", Label: "Reports", Icon: "file-text", AllowedRoles: NewRoleSet(RoleAdmin, RoleManager, RoleMayor, RoleBuildingManager)},
		{Path: "/costs", Label: "Costs", Icon: "euro", AllowedRoles: NewRoleSet(RoleAdmin, RoleManager, RoleMayor)},
		{Path: "/public", Label: "Public Data", Icon: "globe", AllowedRoles: allRolesMask()},
		{Path: "/admin", Label: "Administration", Icon: "shield", AllowedRoles: NewRoleSet(RoleAdmin)},
		{Path: "/settings", Label: "Settings", Icon: "settings", AllowedRoles: NewRoleSet(RoleAdmin)},
	}
}
