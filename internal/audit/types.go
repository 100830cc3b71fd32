package audit

import "time"

const (
	ActionTenantCreate = "tenant.create"
	ActionTenantUpdate = "tenant.update"
	ActionTenantSwitch = "tenant.switch"

	ActionUserCreate        = "user.create"
	ActionUserLogin         = "user.login"
	ActionUserLoginFailed   = "user.login-failed"
	ActionUserTenantsUpdate = "user.tenants-update"

	ActionRoleUpdate     = "role.update"
	ActionOverrideUpdate = "permission.override-update"
	ActionAccessDenied   = "permission.denied"

	ActionAssignmentCreate = "assignment.create"
	ActionAssignmentEnd    = "assignment.end"

	ActionSettingsUpdate = "settings.update"

	ActionBackupCreate  = "backup.create"
	ActionBackupRestore = "backup.restore"
	ActionStorageReset  = "storage.reset"
)

var AllActionTypes = []string{
	ActionTenantCreate,
	ActionTenantUpdate,
	ActionTenantSwitch,
	ActionUserCreate,
	ActionUserLogin,
	ActionUserLoginFailed,
	ActionUserTenantsUpdate,
	ActionRoleUpdate,
	ActionOverrideUpdate,
	ActionAccessDenied,
	ActionAssignmentCreate,
	ActionAssignmentEnd,
	ActionSettingsUpdate,
	ActionBackupCreate,
	ActionBackupRestore,
	ActionStorageReset,
}

const (
	ResultSuccess = "success"
	ResultDenied  = "denied"
	ResultError   = "error"
)

// Event is one auditable action within a tenant.
type Event struct {
	TenantID   string
	Timestamp  time.Time
	Actor      string
	Action     string
	TargetType string
	TargetID   string
	Result     string
	Details    any
}

type Filter struct {
	Action   string
	TargetID string
	Actor    string
	Since    *time.Time
	Until    *time.Time
	Limit    int
}

type RecordedEvent struct {
	ID          string
	TenantID    string
	Timestamp   time.Time
	Actor       string
	Action      string
	TargetType  string
	TargetID    string
	Result      string
	DetailsJSON string
	PrevHash    string
	EventHash   string
}

type VerifyResult struct {
	TenantID   string
	Valid      bool
	EventCount int
	ChainTip   string
	Error      string
}
