package app

import (
	"errors"
	"time"

	"github.com/amanthanvi/quarters/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("app: invalid username or password")
	ErrUserDisabled       = errors.New("app: user is disabled")
)

const (
	// TenantAdminRoleID is the role given to the administrator created with
	// a new tenant.
	TenantAdminRoleID = "role-admin"

	minPasswordLength = 8
)

type ProvisionTenantRequest struct {
	Code    string
	Name    string
	Address string

	AdminUsername string
	AdminFullName string
	// AdminPassword is wiped before Provision returns.
	AdminPassword []byte

	Actor string
}

type ProvisionResult struct {
	Tenant *storage.Tenant
	Admin  *storage.User
}

type CreateUserRequest struct {
	TenantID string
	Username string
	FullName string
	RoleID   string
	// Password is wiped before CreateUser returns.
	Password []byte

	Actor string
}

type SetTenantsRequest struct {
	UserID    string
	TenantIDs []string
	// DefaultTenantID must be one of TenantIDs. Empty picks the first.
	DefaultTenantID string

	Actor string
}

type AssignRoomRequest struct {
	TenantID   string
	EmployeeID string
	RoomID     string
	StartDate  time.Time
	Notes      string

	Actor string
}

type EndAssignmentRequest struct {
	TenantID     string
	AssignmentID string
	EndDate      time.Time

	Actor string
}

func invalid(field, reason string) error {
	return &storage.ValidationError{Field: field, Reason: reason}
}

func checkPassword(password []byte) error {
	if len(password) < minPasswordLength {
		return invalid("password", "must be at least 8 characters")
	}
	return nil
}
