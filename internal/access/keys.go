package access

import "sort"

// Permission keys are MODULE.ACTION strings.
const (
	TenantView   = "TENANT.VIEW"
	TenantCreate = "TENANT.CREATE"
	TenantEdit   = "TENANT.EDIT"
	TenantDelete = "TENANT.DELETE"

	UserView   = "USER.VIEW"
	UserCreate = "USER.CREATE"
	UserEdit   = "USER.EDIT"
	UserDelete = "USER.DELETE"

	RoleView   = "ROLE.VIEW"
	RoleManage = "ROLE.MANAGE"

	EmployeeView   = "EMPLOYEE.VIEW"
	EmployeeCreate = "EMPLOYEE.CREATE"
	EmployeeEdit   = "EMPLOYEE.EDIT"
	EmployeeDelete = "EMPLOYEE.DELETE"

	BuildingView   = "BUILDING.VIEW"
	BuildingManage = "BUILDING.MANAGE"

	RoomView   = "ROOM.VIEW"
	RoomManage = "ROOM.MANAGE"

	AssignmentView   = "ASSIGNMENT.VIEW"
	AssignmentManage = "ASSIGNMENT.MANAGE"

	ReservationView   = "RESERVATION.VIEW"
	ReservationManage = "RESERVATION.MANAGE"

	HostingView   = "HOSTING.VIEW"
	HostingManage = "HOSTING.MANAGE"

	MaintenanceView   = "MAINTENANCE.VIEW"
	MaintenanceManage = "MAINTENANCE.MANAGE"

	ReportView   = "REPORT.VIEW"
	ReportExport = "REPORT.EXPORT"

	AuditView = "AUDIT.VIEW"

	SettingsView   = "SETTINGS.VIEW"
	SettingsManage = "SETTINGS.MANAGE"

	BackupManage = "BACKUP.MANAGE"
)

var catalog = map[string]string{
	TenantView:        "View properties",
	TenantCreate:      "Provision properties",
	TenantEdit:        "Edit properties",
	TenantDelete:      "Delete properties",
	UserView:          "View users",
	UserCreate:        "Create users",
	UserEdit:          "Edit users and their access",
	UserDelete:        "Delete users",
	RoleView:          "View roles",
	RoleManage:        "Create and edit roles",
	EmployeeView:      "View employees",
	EmployeeCreate:    "Create employees",
	EmployeeEdit:      "Edit employees",
	EmployeeDelete:    "Delete employees",
	BuildingView:      "View buildings and floors",
	BuildingManage:    "Manage buildings and floors",
	RoomView:          "View rooms",
	RoomManage:        "Manage rooms",
	AssignmentView:    "View room assignments",
	AssignmentManage:  "Assign and release rooms",
	ReservationView:   "View reservations",
	ReservationManage: "Manage reservations",
	HostingView:       "View hostings",
	HostingManage:     "Manage hostings",
	MaintenanceView:   "View maintenance requests",
	MaintenanceManage: "Manage maintenance requests",
	ReportView:        "View reports",
	ReportExport:      "Export reports",
	AuditView:         "View the audit log",
	SettingsView:      "View settings",
	SettingsManage:    "Change settings",
	BackupManage:      "Manage backups",
}

// Keys returns every known permission key in sorted order.
func Keys() []string {
	out := make([]string, 0, len(catalog))
	for key := range catalog {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func IsKnown(key string) bool {
	_, ok := catalog[key]
	return ok
}

func Describe(key string) string {
	return catalog[key]
}
