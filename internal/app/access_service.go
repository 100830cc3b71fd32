package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/amanthanvi/quarters/internal/access"
	"github.com/amanthanvi/quarters/internal/audit"
	"github.com/amanthanvi/quarters/internal/crypto"
	"github.com/amanthanvi/quarters/internal/storage"
	"github.com/awnumar/memguard"
)

type AccessService struct {
	store  *storage.Store
	audit  *audit.Service
	hasher *Hasher
}

func NewAccessService(store *storage.Store, auditSvc *audit.Service, hasher *Hasher) *AccessService {
	return &AccessService{
		store:  store,
		audit:  auditSvc,
		hasher: hasher,
	}
}

// subject is everything the resolver needs to know about one user.
type subject struct {
	user      *storage.User
	role      access.Role
	tenantIDs []string
	overrides []access.Override
}

func (s *AccessService) CreateUser(ctx context.Context, req CreateUserRequest) (*storage.User, error) {
	defer memguard.WipeBytes(req.Password)

	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.TenantID == "" {
		return nil, invalid("tenant_id", "is required")
	}
	if strings.TrimSpace(req.Username) == "" {
		return nil, invalid("username", "is required")
	}
	if err := checkPassword(req.Password); err != nil {
		return nil, err
	}
	if req.RoleID == "" {
		req.RoleID = TenantAdminRoleID
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	var created *storage.User
	err = s.store.Write(ctx, func(tx *storage.Tx) error {
		if _, err := s.store.Roles.Tx(tx).GetByID(ctx, storage.AllTenants, req.RoleID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return invalid("role_id", "unknown role")
			}
			return err
		}
		user, err := s.store.Users.Tx(tx).Create(ctx, storage.ForTenant(req.TenantID), &storage.User{
			Username:     req.Username,
			PasswordHash: hash,
			FullName:     req.FullName,
			RoleID:       req.RoleID,
		})
		if err != nil {
			return err
		}
		err = s.store.TenantAccess.Tx(tx).ReplaceForUser(ctx, user.ID, []storage.Membership{
			{TenantID: req.TenantID, IsDefault: true},
		})
		if err != nil {
			return err
		}
		created = user
		return s.audit.RecordTx(ctx, tx, audit.Event{
			TenantID:   req.TenantID,
			Actor:      req.Actor,
			Action:     audit.ActionUserCreate,
			TargetType: "user",
			TargetID:   user.ID,
			Details:    map[string]any{"username": user.Username, "role_id": user.RoleID},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// Authenticate checks a username and password. Failed attempts against a
// known user are audited in the user's primary tenant.
func (s *AccessService) Authenticate(ctx context.Context, username string, password []byte) (*storage.User, error) {
	defer memguard.WipeBytes(password)

	users, err := s.store.Users.FindBy(ctx, storage.AllTenants, "username", strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if len(users) == 0 {
		return nil, ErrInvalidCredentials
	}
	user := users[0]

	if err := s.hasher.Verify(password, user.PasswordHash); err != nil {
		if !errors.Is(err, crypto.ErrCredentialMismatch) {
			return nil, fmt.Errorf("authenticate: %w", err)
		}
		s.recordLogin(ctx, user, audit.ActionUserLoginFailed, audit.ResultDenied)
		return nil, ErrInvalidCredentials
	}
	if user.Status != storage.UserStatusActive {
		s.recordLogin(ctx, user, audit.ActionUserLoginFailed, audit.ResultDenied)
		return nil, ErrUserDisabled
	}
	s.recordLogin(ctx, user, audit.ActionUserLogin, audit.ResultSuccess)
	return &user, nil
}

func (s *AccessService) recordLogin(ctx context.Context, user storage.User, action, result string) {
	_ = s.audit.Record(ctx, audit.Event{
		TenantID:   user.TenantID,
		Actor:      user.ID,
		Action:     action,
		TargetType: "user",
		TargetID:   user.ID,
		Result:     result,
	})
}

// SetTenants replaces the tenants a user can reach.
func (s *AccessService) SetTenants(ctx context.Context, req SetTenantsRequest) error {
	if len(req.TenantIDs) == 0 {
		return invalid("tenant_ids", "at least one tenant is required")
	}
	defaultID := req.DefaultTenantID
	if defaultID == "" {
		defaultID = req.TenantIDs[0]
	}

	memberships := make([]storage.Membership, 0, len(req.TenantIDs))
	seen := map[string]bool{}
	foundDefault := false
	for _, id := range req.TenantIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		isDefault := id == defaultID
		foundDefault = foundDefault || isDefault
		memberships = append(memberships, storage.Membership{TenantID: id, IsDefault: isDefault})
	}
	if !foundDefault {
		return invalid("default_tenant_id", "must be one of the assigned tenants")
	}

	err := s.store.Write(ctx, func(tx *storage.Tx) error {
		user, err := s.store.Users.Tx(tx).GetByID(ctx, storage.AllTenants, req.UserID)
		if err != nil {
			return err
		}
		if err := s.store.TenantAccess.Tx(tx).ReplaceForUser(ctx, user.ID, memberships); err != nil {
			return err
		}
		return s.audit.RecordTx(ctx, tx, audit.Event{
			TenantID:   user.TenantID,
			Actor:      req.Actor,
			Action:     audit.ActionUserTenantsUpdate,
			TargetType: "user",
			TargetID:   user.ID,
			Details:    map[string]any{"tenant_ids": req.TenantIDs, "default_tenant_id": defaultID},
		})
	})
	if err != nil {
		return fmt.Errorf("set user tenants: %w", err)
	}
	return nil
}

// SaveOverrides replaces every permission override the user has.
func (s *AccessService) SaveOverrides(ctx context.Context, actor, userID string, overrides []storage.Override) error {
	for _, o := range overrides {
		if !access.IsKnown(o.PermissionKey) {
			return invalid("permission_key", fmt.Sprintf("unknown permission %q", o.PermissionKey))
		}
	}

	err := s.store.Write(ctx, func(tx *storage.Tx) error {
		user, err := s.store.Users.Tx(tx).GetByID(ctx, storage.AllTenants, userID)
		if err != nil {
			return err
		}
		if err := s.store.Overrides.Tx(tx).ReplaceForUser(ctx, user.ID, overrides); err != nil {
			return err
		}
		return s.audit.RecordTx(ctx, tx, audit.Event{
			TenantID:   user.TenantID,
			Actor:      actor,
			Action:     audit.ActionOverrideUpdate,
			TargetType: "user",
			TargetID:   user.ID,
			Details:    map[string]any{"count": len(overrides)},
		})
	})
	if err != nil {
		return fmt.Errorf("save permission overrides: %w", err)
	}
	return nil
}

// SaveTenantOverrides replaces the user's overrides in one tenant and keeps
// the ones they have elsewhere.
func (s *AccessService) SaveTenantOverrides(ctx context.Context, actor, userID, tenantID string, allow, deny []string) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return invalid("tenant_id", "is required")
	}
	for _, key := range append(append([]string{}, allow...), deny...) {
		if !access.IsKnown(key) {
			return invalid("permission_key", fmt.Sprintf("unknown permission %q", key))
		}
	}

	err := s.store.Write(ctx, func(tx *storage.Tx) error {
		user, err := s.store.Users.Tx(tx).GetByID(ctx, storage.AllTenants, userID)
		if err != nil {
			return err
		}
		if _, err := s.store.Tenants.Tx(tx).GetByID(ctx, storage.AllTenants, tenantID); err != nil {
			return err
		}
		existing, err := s.store.Overrides.Tx(tx).ListForUser(ctx, user.ID)
		if err != nil {
			return err
		}
		next := make([]storage.Override, 0, len(existing)+len(allow)+len(deny))
		for _, o := range existing {
			if o.TenantID != tenantID {
				next = append(next, o)
			}
		}
		for _, key := range allow {
			next = append(next, storage.Override{UserID: user.ID, TenantID: tenantID, PermissionKey: key, IsAllowed: true})
		}
		for _, key := range deny {
			next = append(next, storage.Override{UserID: user.ID, TenantID: tenantID, PermissionKey: key})
		}
		if err := s.store.Overrides.Tx(tx).ReplaceForUser(ctx, user.ID, next); err != nil {
			return err
		}
		return s.audit.RecordTx(ctx, tx, audit.Event{
			TenantID:   tenantID,
			Actor:      actor,
			Action:     audit.ActionOverrideUpdate,
			TargetType: "user",
			TargetID:   user.ID,
			Details:    map[string]any{"allow": allow, "deny": deny},
		})
	})
	if err != nil {
		return fmt.Errorf("save permission overrides: %w", err)
	}
	return nil
}

// Check resolves key for the user in tenantID. A tenant the user cannot
// reach returns *access.TenantUnauthorizedError.
func (s *AccessService) Check(ctx context.Context, userID, tenantID, key string) (access.Decision, error) {
	subj, err := s.load(ctx, userID)
	if err != nil {
		return access.Decision{}, fmt.Errorf("check permission: %w", err)
	}
	if !access.IsAuthorizedForTenant(subj.role, subj.tenantIDs, tenantID) {
		return access.Decision{Source: access.SourceDefault}, &access.TenantUnauthorizedError{TenantID: tenantID}
	}
	if subj.user.Status != storage.UserStatusActive {
		return access.Decision{Source: access.SourceDefault}, nil
	}
	return access.Resolve(key, subj.role, subj.overrides, userID, tenantID), nil
}

// Authorize is Check as an error. Denials inside a reachable tenant are
// audited.
func (s *AccessService) Authorize(ctx context.Context, userID, tenantID, key string) error {
	decision, err := s.Check(ctx, userID, tenantID, key)
	if err != nil {
		return err
	}
	if decision.Allowed {
		return nil
	}
	_ = s.audit.Record(ctx, audit.Event{
		TenantID:   tenantID,
		Actor:      userID,
		Action:     audit.ActionAccessDenied,
		TargetType: "permission",
		TargetID:   key,
		Result:     audit.ResultDenied,
		Details:    map[string]any{"source": string(decision.Source)},
	})
	return &access.PermissionDeniedError{Key: key, TenantID: tenantID}
}

// AuthorizeTenant checks only whether the user may enter tenantID.
func (s *AccessService) AuthorizeTenant(ctx context.Context, userID, tenantID string) error {
	subj, err := s.load(ctx, userID)
	if err != nil {
		return fmt.Errorf("authorize tenant: %w", err)
	}
	if !access.IsAuthorizedForTenant(subj.role, subj.tenantIDs, tenantID) {
		return &access.TenantUnauthorizedError{TenantID: tenantID}
	}
	return nil
}

// Tenants lists the ids of the tenants the user can reach. Super admins
// reach every tenant.
func (s *AccessService) Tenants(ctx context.Context, userID string) ([]string, error) {
	subj, err := s.load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user tenants: %w", err)
	}
	if !subj.role.IsSuperAdmin() {
		return subj.tenantIDs, nil
	}
	tenants, err := s.store.Tenants.GetAll(ctx, storage.AllTenants)
	if err != nil {
		return nil, fmt.Errorf("list user tenants: %w", err)
	}
	ids := make([]string, 0, len(tenants))
	for _, t := range tenants {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func (s *AccessService) load(ctx context.Context, userID string) (*subject, error) {
	user, err := s.store.Users.GetByID(ctx, storage.AllTenants, userID)
	if err != nil {
		return nil, err
	}
	role, err := s.store.Roles.GetByID(ctx, storage.AllTenants, user.RoleID)
	if err != nil {
		return nil, err
	}
	memberships, err := s.store.TenantAccess.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.Overrides.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	subj := &subject{
		user: user,
		role: access.Role{ID: role.ID, Name: role.Name, Permissions: role.Permissions},
	}
	for _, m := range memberships {
		subj.tenantIDs = append(subj.tenantIDs, m.TenantID)
	}
	for _, o := range stored {
		subj.overrides = append(subj.overrides, access.Override{
			UserID:    o.UserID,
			TenantID:  o.TenantID,
			Key:       o.PermissionKey,
			IsAllowed: o.IsAllowed,
		})
	}
	return subj, nil
}
