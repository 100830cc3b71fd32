package storage

import (
	"strings"
	"sync"
)

type scopeMode int

const (
	scopeExplicit scopeMode = iota
	scopeActive
	scopeAll
)

// Scope selects the tenant a repository call operates on.
type Scope struct {
	mode     scopeMode
	tenantID string
}

// ForTenant scopes a call to one tenant.
func ForTenant(id string) Scope {
	return Scope{mode: scopeExplicit, tenantID: id}
}

var (
	// ActiveTenant resolves to the tenant last selected with
	// TenantContext.Switch.
	ActiveTenant = Scope{mode: scopeActive}
	// AllTenants lifts tenant filtering. Only kinds that support
	// cross-tenant administrative views accept it.
	AllTenants = Scope{mode: scopeAll}
)

func (s Scope) String() string {
	switch s.mode {
	case scopeActive:
		return "active tenant"
	case scopeAll:
		return "all tenants"
	default:
		return "tenant " + s.tenantID
	}
}

// TenantContext holds the process-wide active tenant.
type TenantContext struct {
	mu sync.RWMutex
	id string
}

func (c *TenantContext) Switch(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = strings.TrimSpace(id)
}

func (c *TenantContext) Current() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// resolve returns the tenant id for scope, or all=true for AllTenants.
func (c *TenantContext) resolve(scope Scope) (tenantID string, all bool, err error) {
	switch scope.mode {
	case scopeAll:
		return "", true, nil
	case scopeActive:
		id := ""
		if c != nil {
			id = c.Current()
		}
		if id == "" {
			return "", false, invalid("tenant_id", "no active tenant")
		}
		return id, false, nil
	default:
		id := strings.TrimSpace(scope.tenantID)
		if id == "" {
			return "", false, invalid("tenant_id", "is required")
		}
		return id, false, nil
	}
}
