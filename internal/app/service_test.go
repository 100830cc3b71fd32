package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amanthanvi/quarters/internal/access"
	"github.com/amanthanvi/quarters/internal/audit"
	"github.com/amanthanvi/quarters/internal/backup"
	"github.com/amanthanvi/quarters/internal/blob"
	"github.com/amanthanvi/quarters/internal/config"
	"github.com/amanthanvi/quarters/internal/storage"
	"github.com/stretchr/testify/require"
)

const testAdminPassword = "correct horse battery"

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Credentials.Argon2MemoryKiB = 32 * 1024
	cfg.Credentials.Argon2Iterations = 1
	cfg.Seed.AdminPassword = testAdminPassword
	return cfg
}

func newAppTestRuntime(t *testing.T, cfg config.Config, keyspace blob.Keyspace) *Runtime {
	t.Helper()

	if keyspace == nil {
		keyspace = blob.NewMemory()
	}
	rt, err := OpenRuntime(context.Background(), RuntimeOptions{Keyspace: keyspace, Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func createTestUser(t *testing.T, rt *Runtime, tenantID, username, roleID string) *storage.User {
	t.Helper()

	user, err := rt.Access.CreateUser(context.Background(), CreateUserRequest{
		TenantID: tenantID,
		Username: username,
		RoleID:   roleID,
		Password: []byte("password-" + username),
		Actor:    storage.AdminUserID,
	})
	require.NoError(t, err)
	return user
}

func provisionTestTenant(t *testing.T, rt *Runtime, code string) *ProvisionResult {
	t.Helper()

	result, err := rt.Tenants.Provision(context.Background(), ProvisionTenantRequest{
		Code:          code,
		Name:          code + " Compound",
		AdminUsername: "admin-" + code,
		AdminPassword: []byte("password-" + code),
		Actor:         storage.AdminUserID,
	})
	require.NoError(t, err)
	return result
}

func createTestRoom(t *testing.T, rt *Runtime, tenantID string, capacity int) *storage.Room {
	t.Helper()

	ctx := context.Background()
	scope := storage.ForTenant(tenantID)
	building, err := rt.Store.Buildings.Create(ctx, scope, &storage.Building{Code: "B1", Name: "Block 1"})
	require.NoError(t, err)
	floor, err := rt.Store.Floors.Create(ctx, scope, &storage.Floor{BuildingID: building.ID, Name: "Ground", Level: 0})
	require.NoError(t, err)
	room, err := rt.Store.Rooms.Create(ctx, scope, &storage.Room{FloorID: floor.ID, Number: "101", Capacity: capacity})
	require.NoError(t, err)
	return room
}

func createTestEmployee(t *testing.T, rt *Runtime, tenantID, nationalID string) *storage.Employee {
	t.Helper()

	employee, err := rt.Store.Employees.Create(context.Background(), storage.ForTenant(tenantID), &storage.Employee{
		NationalID: nationalID,
		FullName:   "Employee " + nationalID,
	})
	require.NoError(t, err)
	return employee
}

func TestProvisionCreatesTenantAdminAndMembership(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt := newAppTestRuntime(t, testConfig(), nil)

	password := []byte("north-password")
	result, err := rt.Tenants.Provision(ctx, ProvisionTenantRequest{
		Code:          "north",
		Name:          "North Camp",
		AdminUsername: "north-admin",
		AdminPassword: password,
		Actor:         storage.AdminUserID,
	})
	require.NoError(t, err)
	require.Equal(t, make([]byte, len(password)), password)

	require.Equal(t, "NORTH", result.Tenant.Code)
	require.Equal(t, result.Tenant.ID, result.Admin.TenantID)
	require.Equal(t, TenantAdminRoleID, result.Admin.RoleID)
	require.NotContains(t, result.Admin.PasswordHash, "north-password")

	memberships, err := rt.Store.TenantAccess.ListForUser(ctx, result.Admin.ID)
	require.NoError(t, err)
	require.Equal(t, []storage.Membership{{UserID: result.Admin.ID, TenantID: result.Tenant.ID, IsDefault: true}}, memberships)

	events, err := rt.Audit.List(ctx, storage.ForTenant(result.Tenant.ID), audit.Filter{Action: audit.ActionTenantCreate})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, storage.AdminUserID, events[0].Actor)

	user, err := rt.Access.Authenticate(ctx, "north-admin", []byte("north-password"))
	require.NoError(t, err)
	require.Equal(t, result.Admin.ID, user.ID)
}

func TestProvisionIsAllOrNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt := newAppTestRuntime(t, testConfig(), nil)

	_, err := rt.Tenants.Provision(ctx, ProvisionTenantRequest{
		Code:          "south",
		Name:          "South Camp",
		AdminUsername: "ADMIN",
		AdminPassword: []byte("south-password"),
	})
	var dup *storage.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "username", dup.Field)

	count, err := rt.Store.Tenants.Count(ctx, storage.AllTenants)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	_, err = rt.Tenants.Provision(ctx, ProvisionTenantRequest{
		Code:          "main",
		Name:          "Duplicate Main",
		AdminUsername: "someone",
		AdminPassword: []byte("someone-password"),
	})
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "code", dup.Field)
}

func TestProvisionRejectsShortPassword(t *testing.T) {
	t.Parallel()

	rt := newAppTestRuntime(t, testConfig(), nil)
	_, err := rt.Tenants.Provision(context.Background(), ProvisionTenantRequest{
		Code:          "tiny",
		Name:          "Tiny",
		AdminUsername: "tiny-admin",
		AdminPassword: []byte("short"),
	})
	var invalidErr *storage.ValidationError
	require.ErrorAs(t, err, &invalidErr)
	require.Equal(t, "password", invalidErr.Field)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt := newAppTestRuntime(t, testConfig(), nil)

	admin, err := rt.Access.Authenticate(ctx, "Admin", []byte(testAdminPassword))
	require.NoError(t, err)
	require.Equal(t, storage.AdminUserID, admin.ID)

	_, err = rt.Access.Authenticate(ctx, "admin", []byte("wrong password"))
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = rt.Access.Authenticate(ctx, "nobody", []byte(testAdminPassword))
	require.ErrorIs(t, err, ErrInvalidCredentials)

	failed, err := rt.Audit.List(ctx, storage.ForTenant(storage.DefaultTenantID), audit.Filter{Action: audit.ActionUserLoginFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, audit.ResultDenied, failed[0].Result)

	user := createTestUser(t, rt, storage.DefaultTenantID, "dora", "role-viewer")
	err = rt.Store.Users.Update(ctx, storage.AllTenants, user.ID, &storage.User{Status: storage.UserStatusDisabled}, "status")
	require.NoError(t, err)
	_, err = rt.Access.Authenticate(ctx, "dora", []byte("password-dora"))
	require.ErrorIs(t, err, ErrUserDisabled)
}

func TestCreateUserValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt := newAppTestRuntime(t, testConfig(), nil)

	_, err := rt.Access.CreateUser(ctx, CreateUserRequest{
		TenantID: storage.DefaultTenantID,
		Username: "eve",
		RoleID:   "role-unknown",
		Password: []byte("password-eve"),
	})
	var invalidErr *storage.ValidationError
	require.ErrorAs(t, err, &invalidErr)
	require.Equal(t, "role_id", invalidErr.Field)

	_, err = rt.Access.CreateUser(ctx, CreateUserRequest{
		TenantID: "tenant-missing",
		Username: "eve",
		Password: []byte("password-eve"),
	})
	require.ErrorIs(t, err, storage.ErrReference)

	_, err = rt.Access.CreateUser(ctx, CreateUserRequest{Username: "eve", Password: []byte("password-eve")})
	require.ErrorAs(t, err, &invalidErr)
	require.Equal(t, "tenant_id", invalidErr.Field)

	count, err := rt.Store.Users.Count(ctx, storage.AllTenants)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestCheckFollowsResolverPriority(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt := newAppTestRuntime(t, testConfig(), nil)
	manager := createTestUser(t, rt, storage.DefaultTenantID, "mona", "role-manager")

	decision, err := rt.Access.Check(ctx, manager.ID, storage.DefaultTenantID, access.EmployeeView)
	require.NoError(t, err)
	require.Equal(t, access.Decision{Allowed: true, Source: access.SourceRole}, decision)

	decision, err = rt.Access.Check(ctx, manager.ID, storage.DefaultTenantID, access.UserCreate)
	require.NoError(t, err)
	require.Equal(t, access.Decision{Allowed: false, Source: access.SourceDefault}, decision)

	err = rt.Access.SaveOverrides(ctx, storage.AdminUserID, manager.ID, []storage.Override{
		{TenantID: storage.DefaultTenantID, PermissionKey: access.UserCreate, IsAllowed: true},
		{TenantID: storage.DefaultTenantID, PermissionKey: access.EmployeeView, IsAllowed: false},
	})
	require.NoError(t, err)

	decision, err = rt.Access.Check(ctx, manager.ID, storage.DefaultTenantID, access.UserCreate)
	require.NoError(t, err)
	require.Equal(t, access.Decision{Allowed: true, Source: access.SourceAllowOverride}, decision)

	decision, err = rt.Access.Check(ctx, manager.ID, storage.DefaultTenantID, access.EmployeeView)
	require.NoError(t, err)
	require.Equal(t, access.Decision{Allowed: false, Source: access.SourceDenyOverride}, decision)

	decision, err = rt.Access.Check(ctx, storage.AdminUserID, storage.DefaultTenantID, access.BackupManage)
	require.NoError(t, err)
	require.Equal(t, access.Decision{Allowed: true, Source: access.SourceSuperAdmin}, decision)
}

func TestSaveOverridesRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt := newAppTestRuntime(t, testConfig(), nil)
	user := createTestUser(t, rt, storage.DefaultTenantID, "otto", "role-viewer")

	err := rt.Access.SaveOverrides(ctx, "", user.ID, []storage.Override{
		{TenantID: storage.DefaultTenantID, PermissionKey: "EMPLOYEE.FLY", IsAllowed: true},
	})
	var invalidErr *storage.ValidationError
	require.ErrorAs(t, err, &invalidErr)
	require.Equal(t, "permission_key", invalidErr.Field)

	err = rt.Access.SaveOverrides(ctx, "", "user-missing", nil)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTenantGate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt := newAppTestRuntime(t, testConfig(), nil)
	north := provisionTestTenant(t, rt, "north")
	viewer := createTestUser(t, rt, storage.DefaultTenantID, "vic", "role-viewer")

	_, err := rt.Access.Check(ctx, viewer.ID, north.Tenant.ID, access.EmployeeView)
	require.ErrorIs(t, err, access.ErrTenantUnauthorized)
	_, err = rt.Tenants.Switch(ctx, viewer.ID, north.Tenant.ID)
	require.ErrorIs(t, err, access.ErrTenantUnauthorized)

	tenants, err := rt.Tenants.List(ctx, viewer.ID)
	require.NoError(t, err)
	require.Len(t, tenants, 1)

	err = rt.Access.SetTenants(ctx, SetTenantsRequest{
		UserID:          viewer.ID,
		TenantIDs:       []string{storage.DefaultTenantID, north.Tenant.ID},
		DefaultTenantID: north.Tenant.ID,
		Actor:           storage.AdminUserID,
	})
	require.NoError(t, err)

	decision, err := rt.Access.Check(ctx, viewer.ID, north.Tenant.ID, access.EmployeeView)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	tenants, err = rt.Tenants.List(ctx, viewer.ID)
	require.NoError(t, err)
	require.Len(t, tenants, 2)

	tenant, err := rt.Tenants.Switch(ctx, viewer.ID, north.Tenant.ID)
	require.NoError(t, err)
	require.Equal(t, north.Tenant.ID, tenant.ID)
	require.Equal(t, north.Tenant.ID, rt.Store.Active.Current())

	err = rt.Access.SetTenants(ctx, SetTenantsRequest{
		UserID:          viewer.ID,
		TenantIDs:       []string{storage.DefaultTenantID},
		DefaultTenantID: north.Tenant.ID,
	})
	var invalidErr *storage.ValidationError
	require.ErrorAs(t, err, &invalidErr)
	require.Equal(t, "default_tenant_id", invalidErr.Field)
}

func TestSwitchValidatesTenant(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt := newAppTestRuntime(t, testConfig(), nil)

	_, err := rt.Tenants.Switch(ctx, "", "tenant-missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = rt.Tenants.Switch(ctx, "", " ")
	require.ErrorIs(t, err, storage.ErrValidation)

	closed := provisionTestTenant(t, rt, "closed")
	err = rt.Store.Tenants.Update(ctx, storage.AllTenants, closed.Tenant.ID, &storage.Tenant{Status: storage.TenantStatusInactive}, "status")
	require.NoError(t, err)
	_, err = rt.Tenants.Switch(ctx, storage.AdminUserID, closed.Tenant.ID)
	require.ErrorIs(t, err, storage.ErrValidation)
	require.Empty(t, rt.Store.Active.Current())

	_, err = rt.Tenants.Switch(ctx, storage.AdminUserID, storage.DefaultTenantID)
	require.NoError(t, err)
	events, err := rt.Audit.List(ctx, storage.ActiveTenant, audit.Filter{Action: audit.ActionTenantSwitch})
	require.NoError(t, err)
	require.Len(t, events, 1)
}

type failingKeyspace struct {
	*blob.Memory
	fail atomic.Bool
}

func (k *failingKeyspace) Put(ctx context.Context, key string, data []byte) error {
	if k.fail.Load() {
		return errors.New("disk full")
	}
	return k.Memory.Put(ctx, key, data)
}

func TestSwitchKeepsActiveTenantWhenAuditFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	keyspace := &failingKeyspace{Memory: blob.NewMemory()}
	rt := newAppTestRuntime(t, testConfig(), keyspace)

	keyspace.fail.Store(true)
	_, err := rt.Tenants.Switch(ctx, storage.AdminUserID, storage.DefaultTenantID)
	require.ErrorIs(t, err, storage.ErrStorageIO)
	require.Empty(t, rt.Store.Active.Current())

	keyspace.fail.Store(false)
	_, err = rt.Tenants.Switch(ctx, storage.AdminUserID, storage.DefaultTenantID)
	require.NoError(t, err)
	require.Equal(t, storage.DefaultTenantID, rt.Store.Active.Current())
}

func TestAuthorizeAuditsDenials(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt := newAppTestRuntime(t, testConfig(), nil)
	viewer := createTestUser(t, rt, storage.DefaultTenantID, "wendy", "role-viewer")

	require.NoError(t, rt.Access.Authorize(ctx, viewer.ID, storage.DefaultTenantID, access.RoomView))

	err := rt.Access.Authorize(ctx, viewer.ID, storage.DefaultTenantID, access.RoomManage)
	var denied *access.PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, access.RoomManage, denied.Key)

	events, err := rt.Audit.List(ctx, storage.ForTenant(storage.DefaultTenantID), audit.Filter{Action: audit.ActionAccessDenied})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, access.RoomManage, events[0].TargetID)

	result, err := rt.Audit.Verify(ctx, storage.DefaultTenantID)
	require.NoError(t, err)
	require.True(t, result.Valid, result.Error)
}

func TestAssignRoomTracksOccupancy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt := newAppTestRuntime(t, testConfig(), nil)
	tenantID := storage.DefaultTenantID
	room := createTestRoom(t, rt, tenantID, 1)
	first := createTestEmployee(t, rt, tenantID, "100")
	second := createTestEmployee(t, rt, tenantID, "200")

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assignment, err := rt.Housing.AssignRoom(ctx, AssignRoomRequest{
		TenantID:   tenantID,
		EmployeeID: first.ID,
		RoomID:     room.ID,
		StartDate:  start,
	})
	require.NoError(t, err)
	require.Equal(t, storage.AssignmentActive, assignment.Status)

	stored, err := rt.Store.Rooms.GetByID(ctx, storage.ForTenant(tenantID), room.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.Occupied)

	_, err = rt.Housing.AssignRoom(ctx, AssignRoomRequest{TenantID: tenantID, EmployeeID: second.ID, RoomID: room.ID})
	var invalidErr *storage.ValidationError
	require.ErrorAs(t, err, &invalidErr)
	require.Equal(t, "room_id", invalidErr.Field)
	require.Equal(t, "room is full", invalidErr.Reason)

	count, err := rt.Store.Assignments.Count(ctx, storage.ForTenant(tenantID))
	require.NoError(t, err)
	require.Equal(t, 1, count)

	err = rt.Housing.EndAssignment(ctx, EndAssignmentRequest{
		TenantID:     tenantID,
		AssignmentID: assignment.ID,
		EndDate:      start.AddDate(0, 1, 0),
	})
	require.NoError(t, err)

	stored, err = rt.Store.Rooms.GetByID(ctx, storage.ForTenant(tenantID), room.ID)
	require.NoError(t, err)
	require.Zero(t, stored.Occupied)
	ended, err := rt.Store.Assignments.GetByID(ctx, storage.ForTenant(tenantID), assignment.ID)
	require.NoError(t, err)
	require.Equal(t, storage.AssignmentEnded, ended.Status)
	require.True(t, ended.EndDate.Equal(start.AddDate(0, 1, 0)))

	err = rt.Housing.EndAssignment(ctx, EndAssignmentRequest{TenantID: tenantID, AssignmentID: assignment.ID})
	require.ErrorAs(t, err, &invalidErr)
	require.Equal(t, "status", invalidErr.Field)

	_, err = rt.Housing.AssignRoom(ctx, AssignRoomRequest{TenantID: tenantID, EmployeeID: second.ID, RoomID: room.ID})
	require.NoError(t, err)
}

func TestAssignRoomRejectsSecondActiveAssignment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt := newAppTestRuntime(t, testConfig(), nil)
	tenantID := storage.DefaultTenantID
	room := createTestRoom(t, rt, tenantID, 4)
	employee := createTestEmployee(t, rt, tenantID, "300")

	_, err := rt.Housing.AssignRoom(ctx, AssignRoomRequest{TenantID: tenantID, EmployeeID: employee.ID, RoomID: room.ID})
	require.NoError(t, err)
	_, err = rt.Housing.AssignRoom(ctx, AssignRoomRequest{TenantID: tenantID, EmployeeID: employee.ID, RoomID: room.ID})
	var invalidErr *storage.ValidationError
	require.ErrorAs(t, err, &invalidErr)
	require.Equal(t, "employee_id", invalidErr.Field)

	stored, err := rt.Store.Rooms.GetByID(ctx, storage.ForTenant(tenantID), room.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.Occupied)
}

func TestAssignRoomIsTenantScoped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt := newAppTestRuntime(t, testConfig(), nil)
	north := provisionTestTenant(t, rt, "north")
	room := createTestRoom(t, rt, storage.DefaultTenantID, 2)
	employee := createTestEmployee(t, rt, north.Tenant.ID, "400")

	_, err := rt.Housing.AssignRoom(ctx, AssignRoomRequest{TenantID: north.Tenant.ID, EmployeeID: employee.ID, RoomID: room.ID})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBackupSnapshotAndRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig()
	cfg.Backup.Passphrase = "backup passphrase"
	rt := newAppTestRuntime(t, cfg, nil)

	slot, err := rt.Backup.Snapshot(ctx, storage.DefaultTenantID, storage.AdminUserID)
	require.NoError(t, err)

	_, err = rt.Store.Buildings.Create(ctx, storage.ForTenant(storage.DefaultTenantID), &storage.Building{Name: "Later"})
	require.NoError(t, err)

	slots, err := rt.Backup.List(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.Equal(t, slot.Key, slots[0].Key)

	require.NoError(t, rt.Backup.Restore(ctx, slot.Key, storage.AdminUserID))
	count, err := rt.Store.Buildings.Count(ctx, storage.ForTenant(storage.DefaultTenantID))
	require.NoError(t, err)
	require.Zero(t, count)

	events, err := rt.Audit.List(ctx, storage.ForTenant(storage.DefaultTenantID), audit.Filter{Action: audit.ActionBackupRestore})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, slot.Key, events[0].TargetID)

	result, err := rt.Audit.Verify(ctx, storage.DefaultTenantID)
	require.NoError(t, err)
	require.True(t, result.Valid, result.Error)
}

func TestSealedBackupsNeedPassphrase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	keyspace := blob.NewMemory()
	cfg := testConfig()
	cfg.Backup.Passphrase = "backup passphrase"
	sealed := newAppTestRuntime(t, cfg, keyspace)
	slot, err := sealed.Backup.Snapshot(ctx, "", "")
	require.NoError(t, err)
	require.NoError(t, sealed.Close())

	plain := newAppTestRuntime(t, testConfig(), keyspace)
	err = plain.Backup.Restore(ctx, slot.Key, "")
	require.ErrorIs(t, err, backup.ErrSealerNeeded)
}

func TestResetKeepsBackupsAndAuditsReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rt := newAppTestRuntime(t, testConfig(), nil)
	provisionTestTenant(t, rt, "north")
	_, err := rt.Backup.Snapshot(ctx, storage.DefaultTenantID, storage.AdminUserID)
	require.NoError(t, err)

	require.NoError(t, rt.Backup.Reset(ctx, storage.AdminUserID))

	tenants, err := rt.Store.Tenants.Count(ctx, storage.AllTenants)
	require.NoError(t, err)
	require.Equal(t, 1, tenants)
	slots, err := rt.Backup.List(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 1)

	events, err := rt.Audit.List(ctx, storage.ForTenant(storage.DefaultTenantID), audit.Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, audit.ActionStorageReset, events[0].Action)
}

func TestOpenRuntimeValidatesInputs(t *testing.T) {
	t.Parallel()

	_, err := OpenRuntime(context.Background(), RuntimeOptions{Config: testConfig()})
	require.Error(t, err)

	cfg := testConfig()
	cfg.Credentials.Argon2MemoryKiB = 1024
	_, err = OpenRuntime(context.Background(), RuntimeOptions{Keyspace: blob.NewMemory(), Config: cfg})
	require.Error(t, err)

	cfg = testConfig()
	cfg.Seed.AdminPassword = ""
	_, err = OpenRuntime(context.Background(), RuntimeOptions{Keyspace: blob.NewMemory(), Config: cfg})
	require.ErrorIs(t, err, storage.ErrValidation)
}
