package authz

var financialPermissions = NewPermissionSet(
	PermissionViewCosts,
	PermissionManageBudgets,
	PermissionApproveExpenses,
	PermissionViewEnergyTariffs,
)

// DefaultRolePermissionMatrix returns a fresh copy of the built-in role table.
func DefaultRolePermissionMatrix() map[Role]PermissionSet {
	return map[Role]PermissionSet{
		RoleAdmin: allPermissionsMask(),
		RoleManager: financialPermissions | NewPermissionSet(
			PermissionViewAuditLog,
			PermissionViewAllBuildings,
			PermissionViewPublicData,
			PermissionViewReports,
			PermissionExportData,
			PermissionViewSensorData,
			PermissionManageAlerts,
			PermissionScheduleMaintenance,
			PermissionManageBuildings,
		),
		RoleMayor: financialPermissions | NewPermissionSet(
			PermissionViewAllBuildings,
			PermissionViewPublicData,
			PermissionViewReports,
			PermissionExportData,
			PermissionViewSensorData,
		),
		RoleBuildingManager: NewPermissionSet(
			PermissionViewAssignedBuildings,
			PermissionViewPublicData,
			PermissionViewReports,
			PermissionViewSensorData,
			PermissionControlSensors,
			PermissionManageAlerts,
			PermissionScheduleMaintenance,
			PermissionViewCosts,
		),
		RoleUser: NewPermissionSet(
			PermissionViewAssignedBuildings,
			PermissionViewPublicData,
			PermissionViewSensorData,
		),
		RoleCitizen: NewPermissionSet(PermissionViewPublicData),
	}
}
