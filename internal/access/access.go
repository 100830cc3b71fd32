// Package access decides whether a user may perform an action in a tenant.
// It performs no I/O; callers load the role, overrides and memberships and
// pass them in.
package access

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	SuperAdminRoleID   = "role-super-admin"
	SuperAdminRoleName = "Super Admin"
)

var (
	ErrPermissionDenied   = errors.New("access: permission denied")
	ErrTenantUnauthorized = errors.New("access: tenant not authorized")
)

type PermissionDeniedError struct {
	Key      string
	TenantID string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission %s denied in tenant %s", e.Key, e.TenantID)
}

func (e *PermissionDeniedError) Is(target error) bool { return target == ErrPermissionDenied }

type TenantUnauthorizedError struct {
	TenantID string
}

func (e *TenantUnauthorizedError) Error() string {
	return fmt.Sprintf("not authorized for tenant %s", e.TenantID)
}

func (e *TenantUnauthorizedError) Is(target error) bool { return target == ErrTenantUnauthorized }

// Role is the slice of a stored role the resolver needs.
type Role struct {
	ID          string
	Name        string
	Permissions []string
}

func (r Role) IsSuperAdmin() bool {
	return r.ID == SuperAdminRoleID || strings.EqualFold(strings.TrimSpace(r.Name), SuperAdminRoleName)
}

func (r Role) Has(key string) bool {
	return slices.Contains(r.Permissions, key)
}

type Override struct {
	UserID    string
	TenantID  string
	Key       string
	IsAllowed bool
}

type Source string

const (
	SourceDenyOverride  Source = "deny_override"
	SourceAllowOverride Source = "allow_override"
	SourceSuperAdmin    Source = "super_admin"
	SourceRole          Source = "role"
	SourceDefault       Source = "default_deny"
)

type Decision struct {
	Allowed bool
	Source  Source
}

// Resolve applies, first match wins: a deny override, an allow override,
// the super-admin role, the role's key set, and finally deny. Overrides for
// other users, tenants or keys are ignored.
func Resolve(key string, role Role, overrides []Override, userID, tenantID string) Decision {
	allow := false
	for _, o := range overrides {
		if o.UserID != userID || o.TenantID != tenantID || o.Key != key {
			continue
		}
		if !o.IsAllowed {
			return Decision{Allowed: false, Source: SourceDenyOverride}
		}
		allow = true
	}
	if allow {
		return Decision{Allowed: true, Source: SourceAllowOverride}
	}
	if role.IsSuperAdmin() {
		return Decision{Allowed: true, Source: SourceSuperAdmin}
	}
	if role.Has(key) {
		return Decision{Allowed: true, Source: SourceRole}
	}
	return Decision{Allowed: false, Source: SourceDefault}
}

// IsAuthorizedForTenant gates whether a tenant's data is reachable at all.
// It ignores per-permission overrides.
func IsAuthorizedForTenant(role Role, tenantIDs []string, tenantID string) bool {
	if role.IsSuperAdmin() {
		return true
	}
	return tenantID != "" && slices.Contains(tenantIDs, tenantID)
}

// Authorize combines the tenant gate and Resolve into a typed error.
func Authorize(key string, role Role, overrides []Override, tenantIDs []string, userID, tenantID string) error {
	if !IsAuthorizedForTenant(role, tenantIDs, tenantID) {
		return &TenantUnauthorizedError{TenantID: tenantID}
	}
	if !Resolve(key, role, overrides, userID, tenantID).Allowed {
		return &PermissionDeniedError{Key: key, TenantID: tenantID}
	}
	return nil
}
