package authz

import (
	"fmt"
	"strings"

	cerrors "github.com/porthorian/cityauthz/pkg/errors"
)

type Permission uint8

// Declaration order is the order used by PermissionSet.List and the CLI.
const (
	PermissionManageUsers Permission = iota
	PermissionManageRoles
	PermissionManageSettings
	PermissionViewAuditLog

	PermissionViewAllBuildings
	PermissionViewAssignedBuildings
	PermissionViewPublicData
	PermissionViewReports
	PermissionExportData

	PermissionViewSensorData
	PermissionControlSensors
	PermissionManageAlerts
	PermissionScheduleMaintenance
	PermissionManageBuildings

	PermissionViewCosts
	PermissionManageBudgets
	PermissionApproveExpenses
	PermissionViewEnergyTariffs

	permissionCount
)

type PermissionCategory string

const (
	CategoryAdministration PermissionCategory = "administration"
	CategoryDataAccess     PermissionCategory = "data_access"
	CategoryOperations     PermissionCategory = "operations"
	CategoryFinancial      PermissionCategory = "financial"
)

var permissionTokens = [permissionCount]string{
	PermissionManageUsers:    "manage-users",
	PermissionManageRoles:    "manage-roles",
	PermissionManageSettings: "manage-settings",
	PermissionViewAuditLog:   "view-audit-log",

	PermissionViewAllBuildings:      "view-all-buildings",
	PermissionViewAssignedBuildings: "view-assigned-buildings",
	PermissionViewPublicData:        "view-public-data",
	PermissionViewReports:           "view-reports",
	PermissionExportData:            "export-data",

	PermissionViewSensorData:      "view-sensor-data",
	PermissionControlSensors:      "control-sensors",
	PermissionManageAlerts:        "manage-alerts",
	PermissionScheduleMaintenance: "schedule-maintenance",
	PermissionManageBuildings:     "manage-buildings",

	PermissionViewCosts:         "view-costs",
	PermissionManageBudgets:     "manage-budgets",
	PermissionApproveExpenses:   "approve-expenses",
	PermissionViewEnergyTariffs: "view-energy-tariffs",
}

// AllPermissions returns every permission in declaration order.
func AllPermissions() []Permission {
	perms := make([]Permission, permissionCount)
	for i := range perms {
		perms[i] = Permission(i)
	}
	return perms
}

func (p Permission) Valid() bool {
	return p < permissionCount
}

func (p Permission) String() string {
	if !p.Valid() {
		return fmt.Sprintf("permission(%d)", uint8(p))
	}
	return permissionTokens[p]
}

// Category is informational only; nothing is enforced per category.
func (p Permission) Category() PermissionCategory {
	switch {
	case p <= PermissionViewAuditLog:
		return CategoryAdministration
	case p <= PermissionExportData:
		return CategoryDataAccess
	case p <= PermissionManageBuildings:
		return CategoryOperations
	case p < permissionCount:
		return CategoryFinancial
	}
	return ""
}

func (p Permission) bit() PermissionSet {
	if !p.Valid() {
		return 0
	}
	return PermissionSet(1) << p
}

// ParsePermission accepts the kebab-case token, ignoring case and surrounding space.
// Underscores are treated as dashes.
func ParsePermission(token string) (Permission, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(token)), "_", "-")
	for i, candidate := range permissionTokens {
		if candidate == normalized {
			return Permission(i), nil
		}
	}
	return 0, cerrors.Wrap(cerrors.CodeUnknownPermission, fmt.Sprintf("authz: unknown permission %q", token), nil)
}
