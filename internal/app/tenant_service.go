package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/amanthanvi/quarters/internal/audit"
	"github.com/amanthanvi/quarters/internal/storage"
	"github.com/awnumar/memguard"
)

type TenantService struct {
	store  *storage.Store
	audit  *audit.Service
	access *AccessService
	hasher *Hasher
}

func NewTenantService(store *storage.Store, auditSvc *audit.Service, accessSvc *AccessService, hasher *Hasher) *TenantService {
	return &TenantService{
		store:  store,
		audit:  auditSvc,
		access: accessSvc,
		hasher: hasher,
	}
}

// Provision creates a tenant together with its first administrator. Either
// both exist afterwards or neither does.
func (s *TenantService) Provision(ctx context.Context, req ProvisionTenantRequest) (*ProvisionResult, error) {
	defer memguard.WipeBytes(req.AdminPassword)

	if strings.TrimSpace(req.AdminUsername) == "" {
		return nil, invalid("admin_username", "is required")
	}
	if err := checkPassword(req.AdminPassword); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(req.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("provision tenant: %w", err)
	}

	result := &ProvisionResult{}
	err = s.store.Write(ctx, func(tx *storage.Tx) error {
		tenant, err := s.store.Tenants.Tx(tx).Create(ctx, storage.AllTenants, &storage.Tenant{
			Code:    req.Code,
			Name:    req.Name,
			Address: req.Address,
		})
		if err != nil {
			return err
		}
		admin, err := s.store.Users.Tx(tx).Create(ctx, storage.ForTenant(tenant.ID), &storage.User{
			Username:     req.AdminUsername,
			PasswordHash: hash,
			FullName:     req.AdminFullName,
			RoleID:       TenantAdminRoleID,
		})
		if err != nil {
			return err
		}
		err = s.store.TenantAccess.Tx(tx).ReplaceForUser(ctx, admin.ID, []storage.Membership{
			{TenantID: tenant.ID, IsDefault: true},
		})
		if err != nil {
			return err
		}
		result.Tenant, result.Admin = tenant, admin
		return s.audit.RecordTx(ctx, tx, audit.Event{
			TenantID:   tenant.ID,
			Actor:      req.Actor,
			Action:     audit.ActionTenantCreate,
			TargetType: "tenant",
			TargetID:   tenant.ID,
			Details:    map[string]any{"code": tenant.Code, "admin_username": admin.Username},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("provision tenant: %w", err)
	}
	return result, nil
}

// List returns every tenant, or only those userID can reach when set.
func (s *TenantService) List(ctx context.Context, userID string) ([]storage.Tenant, error) {
	tenants, err := s.store.Tenants.GetAll(ctx, storage.AllTenants)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	if userID == "" {
		return tenants, nil
	}

	reachable, err := s.access.Tenants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	allowed := make(map[string]bool, len(reachable))
	for _, id := range reachable {
		allowed[id] = true
	}
	out := tenants[:0]
	for _, t := range tenants {
		if allowed[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

// Switch makes tenantID the active tenant. When userID is set the user must
// be authorized for the tenant. The active tenant is left unchanged when the
// switch cannot be audited.
func (s *TenantService) Switch(ctx context.Context, userID, tenantID string) (*storage.Tenant, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, invalid("tenant_id", "is required")
	}
	tenant, err := s.store.Tenants.GetByID(ctx, storage.AllTenants, tenantID)
	if err != nil {
		return nil, fmt.Errorf("switch tenant: %w", err)
	}
	if tenant.Status != storage.TenantStatusActive {
		return nil, invalid("tenant_id", "tenant is not active")
	}
	if userID != "" {
		if err := s.access.AuthorizeTenant(ctx, userID, tenantID); err != nil {
			return nil, err
		}
	}

	if err := s.audit.Record(ctx, audit.Event{
		TenantID:   tenant.ID,
		Actor:      userID,
		Action:     audit.ActionTenantSwitch,
		TargetType: "tenant",
		TargetID:   tenant.ID,
	}); err != nil {
		return nil, fmt.Errorf("switch tenant: %w", err)
	}
	s.store.Active.Switch(tenant.ID)
	return tenant, nil
}
