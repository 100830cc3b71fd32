package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type TenantStatus string

const (
	TenantStatusActive   TenantStatus = "active"
	TenantStatusInactive TenantStatus = "inactive"
)

type Tenant struct {
	ID        string
	Code      string
	Name      string
	Address   string
	Status    TenantStatus
	Features  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Role struct {
	ID          string
	Name        string
	Description string
	Permissions []string
	IsBuiltIn   bool
	CreatedAt   time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// User.TenantID is the user's primary tenant. The full set of reachable
// tenants lives in user_tenant_access.
type User struct {
	ID           string
	TenantID     string
	Username     string
	PasswordHash string
	FullName     string
	RoleID       string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Membership struct {
	UserID    string
	TenantID  string
	IsDefault bool
}

type Override struct {
	UserID        string
	TenantID      string
	PermissionKey string
	IsAllowed     bool
}

type Employee struct {
	ID         string
	TenantID   string
	NationalID string
	FullName   string
	Department string
	JobTitle   string
	Phone      string
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Building struct {
	ID        string
	TenantID  string
	Code      string
	Name      string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Floor struct {
	ID         string
	TenantID   string
	BuildingID string
	Name       string
	Level      int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Room struct {
	ID        string
	TenantID  string
	FloorID   string
	Number    string
	Kind      string
	Capacity  int
	Occupied  int
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type AssignmentStatus string

const (
	AssignmentActive AssignmentStatus = "active"
	AssignmentEnded  AssignmentStatus = "ended"
)

type Assignment struct {
	ID         string
	TenantID   string
	EmployeeID string
	RoomID     string
	StartDate  time.Time
	EndDate    time.Time
	Status     AssignmentStatus
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Reservation struct {
	ID        string
	TenantID  string
	RoomID    string
	GuestName string
	StartDate time.Time
	EndDate   time.Time
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Hosting struct {
	ID         string
	TenantID   string
	EmployeeID string
	RoomID     string
	GuestName  string
	StartDate  time.Time
	EndDate    time.Time
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type MaintenanceRequest struct {
	ID          string
	TenantID    string
	RoomID      string
	Title       string
	Description string
	Priority    string
	Status      string
	ResolvedAt  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type AuditLogEntry struct {
	ID          string
	TenantID    string
	ActorID     string
	Action      string
	TargetType  string
	TargetID    string
	Result      string
	DetailsJSON string
	PrevHash    string
	EventHash   string
	CreatedAt   time.Time
}

// Entity kinds carried by change notifications.
const (
	KindTenant      = "tenant"
	KindRole        = "role"
	KindUser        = "user"
	KindMembership  = "user_tenant_access"
	KindOverride    = "permission_override"
	KindEmployee    = "employee"
	KindBuilding    = "building"
	KindFloor       = "floor"
	KindRoom        = "room"
	KindAssignment  = "assignment"
	KindReservation = "reservation"
	KindHosting     = "hosting"
	KindMaintenance = "maintenance_request"
	KindAuditLog    = "audit_log"
	KindSetting     = "setting"
)

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(field, "is required")
	}
	return nil
}

var TenantDescriptor = &Descriptor[Tenant]{
	Kind:    KindTenant,
	Table:   "tenants",
	ID:      func(v *Tenant) *string { return &v.ID },
	Created: func(v *Tenant) *time.Time { return &v.CreatedAt },
	Updated: func(v *Tenant) *time.Time { return &v.UpdatedAt },
	Fields: []Field[Tenant]{
		{Name: "code", Ref: func(v *Tenant) any { return &v.Code }},
		{Name: "name", Ref: func(v *Tenant) any { return &v.Name }},
		{Name: "address", Ref: func(v *Tenant) any { return &v.Address }},
		{Name: "status", Ref: func(v *Tenant) any { return &v.Status }},
		{Name: "features", Ref: func(v *Tenant) any { return jsonList{&v.Features} }},
	},
	OrderBy: "code",
	Validate: func(v *Tenant) error {
		v.Code = strings.ToUpper(strings.TrimSpace(v.Code))
		if v.Status == "" {
			v.Status = TenantStatusActive
		}
		if err := required("code", v.Code); err != nil {
			return err
		}
		return required("name", v.Name)
	},
}

var RoleDescriptor = &Descriptor[Role]{
	Kind:    KindRole,
	Table:   "roles",
	ID:      func(v *Role) *string { return &v.ID },
	Created: func(v *Role) *time.Time { return &v.CreatedAt },
	Fields: []Field[Role]{
		{Name: "name", Ref: func(v *Role) any { return &v.Name }},
		{Name: "description", Ref: func(v *Role) any { return &v.Description }},
		{Name: "permissions", Ref: func(v *Role) any { return jsonList{&v.Permissions} }},
		{Name: "is_built_in", Ref: func(v *Role) any { return &v.IsBuiltIn }, ReadOnly: true},
	},
	OrderBy: "name",
	Validate: func(v *Role) error {
		v.IsBuiltIn = false
		return required("name", v.Name)
	},
	Protect: protectBuiltInRoles,
}

// protectBuiltInRoles rejects renaming or deleting built-in roles. Their
// permission lists and descriptions stay editable.
func protectBuiltInRoles(ctx context.Context, q Querier, ids []string, fields []string) error {
	if fields != nil {
		renaming := false
		for _, f := range fields {
			if f == "name" {
				renaming = true
			}
		}
		if !renaming {
			return nil
		}
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	var n int
	query := `SELECT COUNT(*) FROM roles WHERE is_built_in = 1 AND id IN (` + placeholders(len(ids)) + `)`
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return fmt.Errorf("check built-in roles: %w", err)
	}
	if n > 0 {
		return invalid("is_built_in", "built-in roles cannot be renamed or deleted")
	}
	return nil
}

var UserDescriptor = &Descriptor[User]{
	Kind:        KindUser,
	Table:       "users",
	Scoped:      true,
	AllowGlobal: true,
	ID:          func(v *User) *string { return &v.ID },
	Tenant:      func(v *User) *string { return &v.TenantID },
	Created:     func(v *User) *time.Time { return &v.CreatedAt },
	Updated:     func(v *User) *time.Time { return &v.UpdatedAt },
	Fields: []Field[User]{
		{Name: "username", Ref: func(v *User) any { return &v.Username }},
		{Name: "password_hash", Ref: func(v *User) any { return &v.PasswordHash }},
		{Name: "full_name", Ref: func(v *User) any { return &v.FullName }},
		{Name: "role_id", Ref: func(v *User) any { return &v.RoleID }},
		{Name: "status", Ref: func(v *User) any { return &v.Status }},
	},
	OrderBy: "username",
	Validate: func(v *User) error {
		v.Username = strings.TrimSpace(v.Username)
		if v.Status == "" {
			v.Status = UserStatusActive
		}
		if err := required("username", v.Username); err != nil {
			return err
		}
		if err := required("password_hash", v.PasswordHash); err != nil {
			return err
		}
		return required("role_id", v.RoleID)
	},
}

var EmployeeDescriptor = &Descriptor[Employee]{
	Kind:    KindEmployee,
	Table:   "employees",
	Scoped:  true,
	ID:      func(v *Employee) *string { return &v.ID },
	Tenant:  func(v *Employee) *string { return &v.TenantID },
	Created: func(v *Employee) *time.Time { return &v.CreatedAt },
	Updated: func(v *Employee) *time.Time { return &v.UpdatedAt },
	Fields: []Field[Employee]{
		{Name: "national_id", Ref: func(v *Employee) any { return &v.NationalID }},
		{Name: "full_name", Ref: func(v *Employee) any { return &v.FullName }},
		{Name: "department", Ref: func(v *Employee) any { return &v.Department }},
		{Name: "job_title", Ref: func(v *Employee) any { return &v.JobTitle }},
		{Name: "phone", Ref: func(v *Employee) any { return &v.Phone }},
		{Name: "status", Ref: func(v *Employee) any { return &v.Status }},
	},
	OrderBy: "full_name",
	Validate: func(v *Employee) error {
		v.NationalID = strings.TrimSpace(v.NationalID)
		if v.Status == "" {
			v.Status = "active"
		}
		if err := required("national_id", v.NationalID); err != nil {
			return err
		}
		return required("full_name", v.FullName)
	},
}

var BuildingDescriptor = &Descriptor[Building]{
	Kind:    KindBuilding,
	Table:   "buildings",
	Scoped:  true,
	ID:      func(v *Building) *string { return &v.ID },
	Tenant:  func(v *Building) *string { return &v.TenantID },
	Created: func(v *Building) *time.Time { return &v.CreatedAt },
	Updated: func(v *Building) *time.Time { return &v.UpdatedAt },
	Fields: []Field[Building]{
		{Name: "code", Ref: func(v *Building) any { return &v.Code }},
		{Name: "name", Ref: func(v *Building) any { return &v.Name }},
		{Name: "address", Ref: func(v *Building) any { return &v.Address }},
	},
	OrderBy:  "name",
	Validate: func(v *Building) error { return required("name", v.Name) },
}

var FloorDescriptor = &Descriptor[Floor]{
	Kind:    KindFloor,
	Table:   "floors",
	Scoped:  true,
	ID:      func(v *Floor) *string { return &v.ID },
	Tenant:  func(v *Floor) *string { return &v.TenantID },
	Created: func(v *Floor) *time.Time { return &v.CreatedAt },
	Updated: func(v *Floor) *time.Time { return &v.UpdatedAt },
	Fields: []Field[Floor]{
		{Name: "building_id", Ref: func(v *Floor) any { return &v.BuildingID }},
		{Name: "name", Ref: func(v *Floor) any { return &v.Name }},
		{Name: "level", Ref: func(v *Floor) any { return &v.Level }},
	},
	OrderBy: "level, name",
	Validate: func(v *Floor) error {
		if err := required("building_id", v.BuildingID); err != nil {
			return err
		}
		return required("name", v.Name)
	},
}

var RoomDescriptor = &Descriptor[Room]{
	Kind:    KindRoom,
	Table:   "rooms",
	Scoped:  true,
	ID:      func(v *Room) *string { return &v.ID },
	Tenant:  func(v *Room) *string { return &v.TenantID },
	Created: func(v *Room) *time.Time { return &v.CreatedAt },
	Updated: func(v *Room) *time.Time { return &v.UpdatedAt },
	Fields: []Field[Room]{
		{Name: "floor_id", Ref: func(v *Room) any { return &v.FloorID }},
		{Name: "number", Ref: func(v *Room) any { return &v.Number }},
		{Name: "kind", Ref: func(v *Room) any { return &v.Kind }},
		{Name: "capacity", Ref: func(v *Room) any { return &v.Capacity }},
		{Name: "occupied", Ref: func(v *Room) any { return &v.Occupied }},
		{Name: "status", Ref: func(v *Room) any { return &v.Status }},
	},
	OrderBy: "number",
	Validate: func(v *Room) error {
		if v.Status == "" {
			v.Status = "available"
		}
		if err := required("floor_id", v.FloorID); err != nil {
			return err
		}
		if err := required("number", v.Number); err != nil {
			return err
		}
		if v.Capacity < 0 {
			return invalid("capacity", "must not be negative")
		}
		if v.Occupied < 0 || v.Occupied > v.Capacity {
			return invalid("occupied", "must be between 0 and capacity")
		}
		return nil
	},
}

var AssignmentDescriptor = &Descriptor[Assignment]{
	Kind:    KindAssignment,
	Table:   "assignments",
	Scoped:  true,
	ID:      func(v *Assignment) *string { return &v.ID },
	Tenant:  func(v *Assignment) *string { return &v.TenantID },
	Created: func(v *Assignment) *time.Time { return &v.CreatedAt },
	Updated: func(v *Assignment) *time.Time { return &v.UpdatedAt },
	Fields: []Field[Assignment]{
		{Name: "employee_id", Ref: func(v *Assignment) any { return &v.EmployeeID }},
		{Name: "room_id", Ref: func(v *Assignment) any { return &v.RoomID }},
		{Name: "start_date", Ref: func(v *Assignment) any { return timeText{&v.StartDate} }},
		{Name: "end_date", Ref: func(v *Assignment) any { return timeText{&v.EndDate} }},
		{Name: "status", Ref: func(v *Assignment) any { return &v.Status }},
		{Name: "notes", Ref: func(v *Assignment) any { return &v.Notes }},
	},
	OrderBy: "start_date, rowid",
	Validate: func(v *Assignment) error {
		if v.Status == "" {
			v.Status = AssignmentActive
		}
		if err := required("employee_id", v.EmployeeID); err != nil {
			return err
		}
		if err := required("room_id", v.RoomID); err != nil {
			return err
		}
		if v.StartDate.IsZero() {
			return invalid("start_date", "is required")
		}
		return nil
	},
}

var ReservationDescriptor = &Descriptor[Reservation]{
	Kind:    KindReservation,
	Table:   "reservations",
	Scoped:  true,
	ID:      func(v *Reservation) *string { return &v.ID },
	Tenant:  func(v *Reservation) *string { return &v.TenantID },
	Created: func(v *Reservation) *time.Time { return &v.CreatedAt },
	Updated: func(v *Reservation) *time.Time { return &v.UpdatedAt },
	Fields: []Field[Reservation]{
		{Name: "room_id", Ref: func(v *Reservation) any { return &v.RoomID }},
		{Name: "guest_name", Ref: func(v *Reservation) any { return &v.GuestName }},
		{Name: "start_date", Ref: func(v *Reservation) any { return timeText{&v.StartDate} }},
		{Name: "end_date", Ref: func(v *Reservation) any { return timeText{&v.EndDate} }},
		{Name: "status", Ref: func(v *Reservation) any { return &v.Status }},
	},
	OrderBy: "start_date, rowid",
	Validate: func(v *Reservation) error {
		if v.Status == "" {
			v.Status = "pending"
		}
		if !v.EndDate.IsZero() && v.EndDate.Before(v.StartDate) {
			return invalid("end_date", "must not be before start_date")
		}
		return required("room_id", v.RoomID)
	},
}

var HostingDescriptor = &Descriptor[Hosting]{
	Kind:    KindHosting,
	Table:   "hostings",
	Scoped:  true,
	ID:      func(v *Hosting) *string { return &v.ID },
	Tenant:  func(v *Hosting) *string { return &v.TenantID },
	Created: func(v *Hosting) *time.Time { return &v.CreatedAt },
	Updated: func(v *Hosting) *time.Time { return &v.UpdatedAt },
	Fields: []Field[Hosting]{
		{Name: "employee_id", Ref: func(v *Hosting) any { return &v.EmployeeID }},
		{Name: "room_id", Ref: func(v *Hosting) any { return nullText{&v.RoomID} }},
		{Name: "guest_name", Ref: func(v *Hosting) any { return &v.GuestName }},
		{Name: "start_date", Ref: func(v *Hosting) any { return timeText{&v.StartDate} }},
		{Name: "end_date", Ref: func(v *Hosting) any { return timeText{&v.EndDate} }},
		{Name: "status", Ref: func(v *Hosting) any { return &v.Status }},
	},
	OrderBy: "start_date, rowid",
	Validate: func(v *Hosting) error {
		if v.Status == "" {
			v.Status = "active"
		}
		if err := required("employee_id", v.EmployeeID); err != nil {
			return err
		}
		return required("guest_name", v.GuestName)
	},
}

var MaintenanceDescriptor = &Descriptor[MaintenanceRequest]{
	Kind:    KindMaintenance,
	Table:   "maintenance_requests",
	Scoped:  true,
	ID:      func(v *MaintenanceRequest) *string { return &v.ID },
	Tenant:  func(v *MaintenanceRequest) *string { return &v.TenantID },
	Created: func(v *MaintenanceRequest) *time.Time { return &v.CreatedAt },
	Updated: func(v *MaintenanceRequest) *time.Time { return &v.UpdatedAt },
	Fields: []Field[MaintenanceRequest]{
		{Name: "room_id", Ref: func(v *MaintenanceRequest) any { return &v.RoomID }},
		{Name: "title", Ref: func(v *MaintenanceRequest) any { return &v.Title }},
		{Name: "description", Ref: func(v *MaintenanceRequest) any { return &v.Description }},
		{Name: "priority", Ref: func(v *MaintenanceRequest) any { return &v.Priority }},
		{Name: "status", Ref: func(v *MaintenanceRequest) any { return &v.Status }},
		{Name: "resolved_at", Ref: func(v *MaintenanceRequest) any { return timeText{&v.ResolvedAt} }},
	},
	OrderBy: "created_at, rowid",
	Validate: func(v *MaintenanceRequest) error {
		if v.Status == "" {
			v.Status = "open"
		}
		if v.Priority == "" {
			v.Priority = "normal"
		}
		if err := required("room_id", v.RoomID); err != nil {
			return err
		}
		return required("title", v.Title)
	},
}

var AuditLogDescriptor = &Descriptor[AuditLogEntry]{
	Kind:        KindAuditLog,
	Table:       "audit_log",
	Scoped:      true,
	AllowGlobal: true,
	ID:          func(v *AuditLogEntry) *string { return &v.ID },
	Tenant:      func(v *AuditLogEntry) *string { return &v.TenantID },
	Created:     func(v *AuditLogEntry) *time.Time { return &v.CreatedAt },
	Fields: []Field[AuditLogEntry]{
		{Name: "actor_id", Ref: func(v *AuditLogEntry) any { return &v.ActorID }, ReadOnly: true},
		{Name: "action", Ref: func(v *AuditLogEntry) any { return &v.Action }, ReadOnly: true},
		{Name: "target_type", Ref: func(v *AuditLogEntry) any { return &v.TargetType }, ReadOnly: true},
		{Name: "target_id", Ref: func(v *AuditLogEntry) any { return &v.TargetID }, ReadOnly: true},
		{Name: "result", Ref: func(v *AuditLogEntry) any { return &v.Result }, ReadOnly: true},
		{Name: "details_json", Ref: func(v *AuditLogEntry) any { return &v.DetailsJSON }, ReadOnly: true},
		{Name: "prev_hash", Ref: func(v *AuditLogEntry) any { return &v.PrevHash }, ReadOnly: true},
		{Name: "event_hash", Ref: func(v *AuditLogEntry) any { return &v.EventHash }, ReadOnly: true},
	},
	Validate: func(v *AuditLogEntry) error { return required("action", v.Action) },
	Protect: func(context.Context, Querier, []string, []string) error {
		return invalid("audit_log", "entries are append-only")
	},
}
