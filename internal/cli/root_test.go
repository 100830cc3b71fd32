package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amanthanvi/quarters/internal/storage"
	"github.com/stretchr/testify/require"
)

const testAdminPassword = "correct horse battery"

func TestVersionCommandOutputsBuildInfo(t *testing.T) {
	t.Parallel()

	out, err := runCLI(t, "", "version")
	require.NoError(t, err)
	require.Contains(t, out, "version=1.2.3")
	require.Contains(t, out, "commit=abc123")
	require.Contains(t, out, "build_time=2026-02-19T00:00:00Z")
}

func TestVersionCommandOutputsJSON(t *testing.T) {
	t.Parallel()

	out, err := runCLI(t, "", "--json", "version")
	require.NoError(t, err)

	var payload BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Equal(t, "1.2.3", payload.Version)
	require.Equal(t, "abc123", payload.Commit)
}

func TestRootHasGlobalFlagsAndCommands(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := NewRootCommand(&out, testBuildInfo())

	for _, name := range []string{"config", "policy", "data-dir", "log-level", "actor", "json", "quiet", "yes"} {
		require.NotNilf(t, cmd.PersistentFlags().Lookup(name), "missing flag %q", name)
	}
	for _, name := range []string{"init", "status", "reset", "backup", "audit", "tenant", "user", "access", "override"} {
		_, _, err := cmd.Find([]string{name})
		require.NoErrorf(t, err, "expected command %q", name)
	}
}

func TestUnknownFlagReturnsUsageError(t *testing.T) {
	t.Parallel()

	_, err := runCLI(t, "", "--no-such-flag")
	require.Error(t, err)
	require.Equal(t, ExitCodeUsage, exitCode(err))
}

func TestMissingPositionalReturnsUsageError(t *testing.T) {
	t.Parallel()

	_, err := runCLI(t, "", "access", "check")
	require.Error(t, err)
	require.Equal(t, ExitCodeUsage, exitCode(err))
}

func TestInitWritesConfigAndSeedsStore(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "conf", "config.toml")
	dataDir := filepath.Join(tmp, "data")

	out, err := runCLI(t, testAdminPassword+"\n",
		"--config", configPath,
		"--policy", filepath.Join(tmp, "policy.toml"),
		"--data-dir", dataDir,
		"--json", "init", "--admin-password-stdin",
	)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Equal(t, true, payload["initialized"])
	require.Equal(t, dataDir, payload["data_dir"])
	require.Equal(t, storage.DefaultTenantID, payload["default_tenant_id"])
	require.Greater(t, payload["schema_version"], float64(0))

	raw, err := os.ReadFile(configPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), "[backup]")

	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestInitWithoutAdminPasswordFails(t *testing.T) {
	t.Parallel()

	env := newCLIEnv(t)
	_, err := env.run("", "init")
	require.Error(t, err)
	require.Equal(t, ExitCodeUsage, exitCode(err))
}

func TestInitAdminPasswordStdinRequiresValue(t *testing.T) {
	t.Parallel()

	env := newCLIEnv(t)
	_, err := env.run("\n", "init", "--admin-password-stdin")
	require.Error(t, err)
	require.Equal(t, ExitCodeUsage, exitCode(err))
}

func TestStatusReportsStore(t *testing.T) {
	t.Parallel()

	env := newInitializedCLIEnv(t)
	out, err := env.run("", "--json", "status")
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Equal(t, float64(1), payload["tenants"])
	require.Equal(t, float64(50), payload["backup_threshold"])
	require.Equal(t, float64(5), payload["backup_retention"])
}

func TestResetRequiresConfirmation(t *testing.T) {
	t.Parallel()

	env := newInitializedCLIEnv(t)
	_, err := env.run("", "reset")
	require.Error(t, err)
	require.Equal(t, ExitCodeUsage, exitCode(err))
}

func TestResetReseeds(t *testing.T) {
	t.Parallel()

	env := newInitializedCLIEnv(t)
	_, err := env.run(testAdminPassword+"\n", "tenant", "provision",
		"--code", "NORTH", "--name", "North Camp", "--admin-username", "north-admin", "--admin-password-stdin")
	require.NoError(t, err)

	_, err = env.run(testAdminPassword+"\n", "--yes", "reset", "--admin-password-stdin")
	require.NoError(t, err)

	tenants := env.tenants(t)
	require.Len(t, tenants, 1)
	require.Equal(t, storage.DefaultTenantID, tenants[0]["id"])
}

func TestTenantProvisionAndLogin(t *testing.T) {
	t.Parallel()

	env := newInitializedCLIEnv(t)
	out, err := env.run(testAdminPassword+"\n", "--json", "tenant", "provision",
		"--code", "NORTH", "--name", "North Camp", "--admin-username", "north-admin", "--admin-password-stdin")
	require.NoError(t, err)

	var provisioned map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &provisioned))
	tenantID, _ := provisioned["tenant_id"].(string)
	require.NotEmpty(t, tenantID)

	require.Len(t, env.tenants(t), 2)

	out, err = env.run(testAdminPassword+"\n", "--json", "user", "login", "--username", "NORTH-ADMIN", "--password-stdin")
	require.NoError(t, err)
	var login map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &login))
	require.Equal(t, provisioned["admin_user_id"], login["user_id"])
	require.Equal(t, []any{tenantID}, login["tenant_ids"])

	out, err = env.run("", "--json", "tenant", "list", "--user", provisioned["admin_user_id"].(string))
	require.NoError(t, err)
	var visible []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &visible))
	require.Len(t, visible, 1)
	require.Equal(t, tenantID, visible[0]["id"])
}

func TestTenantProvisionDuplicateCodeConflicts(t *testing.T) {
	t.Parallel()

	env := newInitializedCLIEnv(t)
	_, err := env.run(testAdminPassword+"\n", "tenant", "provision",
		"--code", "MAIN", "--admin-username", "second-admin", "--admin-password-stdin")
	require.Error(t, err)
	require.Equal(t, ExitCodeConflict, exitCode(err))
	require.Len(t, env.tenants(t), 1)
}

func TestLoginWithWrongPasswordFails(t *testing.T) {
	t.Parallel()

	env := newInitializedCLIEnv(t)
	_, err := env.run("not the password\n", "user", "login", "--username", "admin", "--password-stdin")
	require.Error(t, err)
	require.Equal(t, ExitCodeAuthFailed, exitCode(err))
}

func TestAccessCheckAndOverrides(t *testing.T) {
	t.Parallel()

	env := newInitializedCLIEnv(t)

	out, err := env.run("", "--json", "access", "check", "employee.view",
		"--user", storage.AdminUserID, "--tenant", storage.DefaultTenantID)
	require.NoError(t, err)
	require.Equal(t, "super_admin", decode(t, out)["source"])

	out, err = env.run(testAdminPassword+"\n", "--json", "user", "create",
		"--tenant", storage.DefaultTenantID, "--username", "frontdesk", "--role", "role-viewer", "--password-stdin")
	require.NoError(t, err)
	userID, _ := decode(t, out)["id"].(string)
	require.NotEmpty(t, userID)

	out, err = env.run("", "--json", "access", "check", "EMPLOYEE.VIEW", "--user", userID, "--tenant", storage.DefaultTenantID)
	require.NoError(t, err)
	require.Equal(t, "role", decode(t, out)["source"])

	_, err = env.run("", "override", "set", "--user", userID, "--tenant", storage.DefaultTenantID,
		"--deny", "EMPLOYEE.VIEW", "--allow", "USER.CREATE")
	require.NoError(t, err)

	out, err = env.run("", "--json", "access", "check", "EMPLOYEE.VIEW", "--user", userID, "--tenant", storage.DefaultTenantID)
	require.NoError(t, err)
	payload := decode(t, out)
	require.Equal(t, false, payload["allowed"])
	require.Equal(t, "deny_override", payload["source"])

	out, err = env.run("", "--json", "access", "check", "USER.CREATE", "--user", userID, "--tenant", storage.DefaultTenantID)
	require.NoError(t, err)
	require.Equal(t, "allow_override", decode(t, out)["source"])

	_, err = env.run("", "--quiet", "access", "check", "EMPLOYEE.VIEW", "--enforce",
		"--user", userID, "--tenant", storage.DefaultTenantID)
	require.Error(t, err)
	require.Equal(t, ExitCodePermission, exitCode(err))

	out, err = env.run("", "--json", "audit", "list", "--tenant", storage.DefaultTenantID, "--action", "permission.denied")
	require.NoError(t, err)
	var denied []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &denied))
	require.Len(t, denied, 1)
	require.Equal(t, "EMPLOYEE.VIEW", denied[0]["target_id"])
}

func TestAccessCheckOutsideTenantIsPermissionError(t *testing.T) {
	t.Parallel()

	env := newInitializedCLIEnv(t)
	out, err := env.run(testAdminPassword+"\n", "--json", "tenant", "provision",
		"--code", "NORTH", "--admin-username", "north-admin", "--admin-password-stdin")
	require.NoError(t, err)
	adminID, _ := decode(t, out)["admin_user_id"].(string)

	_, err = env.run("", "access", "check", "EMPLOYEE.VIEW", "--user", adminID, "--tenant", storage.DefaultTenantID)
	require.Error(t, err)
	require.Equal(t, ExitCodePermission, exitCode(err))
}

func TestOverrideSetRejectsUnknownKey(t *testing.T) {
	t.Parallel()

	env := newInitializedCLIEnv(t)
	_, err := env.run("", "override", "set", "--user", storage.AdminUserID,
		"--tenant", storage.DefaultTenantID, "--allow", "NOPE.NOTHING")
	require.Error(t, err)
	require.Equal(t, ExitCodeUsage, exitCode(err))
}

func TestBackupSnapshotAndRestore(t *testing.T) {
	t.Parallel()

	env := newInitializedCLIEnv(t)
	out, err := env.run("", "--json", "backup", "snapshot")
	require.NoError(t, err)
	key, _ := decode(t, out)["key"].(string)
	require.True(t, strings.HasPrefix(key, "backup/"))

	_, err = env.run(testAdminPassword+"\n", "tenant", "provision",
		"--code", "NORTH", "--admin-username", "north-admin", "--admin-password-stdin")
	require.NoError(t, err)
	require.Len(t, env.tenants(t), 2)

	out, err = env.run("", "backup", "list")
	require.NoError(t, err)
	require.Contains(t, out, key)

	_, err = env.run("", "backup", "restore", key)
	require.Error(t, err)
	require.Equal(t, ExitCodeUsage, exitCode(err))

	_, err = env.run("", "--yes", "backup", "restore", key)
	require.NoError(t, err)
	require.Len(t, env.tenants(t), 1)

	_, err = env.run("", "--yes", "backup", "restore", "backup/not-a-slot")
	require.Error(t, err)
	require.NotEqual(t, ExitCodeSuccess, exitCode(err))

	out, err = env.run("", "audit", "verify")
	require.NoError(t, err)
	require.Contains(t, out, "valid=true")
}

func TestAccessKeysListsCatalog(t *testing.T) {
	t.Parallel()

	out, err := runCLI(t, "", "--json", "access", "keys")
	require.NoError(t, err)

	var keys []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &keys))
	require.NotEmpty(t, keys)
	found := false
	for _, k := range keys {
		if k["key"] == "EMPLOYEE.VIEW" {
			found = true
			require.NotEmpty(t, k["description"])
		}
	}
	require.True(t, found)
}

func TestGenerateManPages(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, GenerateManPages(dir, testBuildInfo()))

	_, err := os.Stat(filepath.Join(dir, "quarters.1"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "quarters-backup-restore.1"))
	require.NoError(t, err)
}

type cliEnv struct {
	t    *testing.T
	args []string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.toml")
	body := "[credentials]\nargon2_memory_kib = 32768\nargon2_iterations = 1\n\n[logging]\nlevel = \"error\"\n"
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o600))

	return &cliEnv{
		t: t,
		args: []string{
			"--config", configPath,
			"--policy", filepath.Join(tmp, "policy.toml"),
			"--data-dir", filepath.Join(tmp, "data"),
		},
	}
}

func newInitializedCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	env := newCLIEnv(t)
	_, err := env.run(testAdminPassword+"\n", "init", "--admin-password-stdin")
	require.NoError(t, err)
	return env
}

func (e *cliEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	return runCLI(e.t, stdin, append(append([]string{}, e.args...), args...)...)
}

func (e *cliEnv) tenants(t *testing.T) []map[string]any {
	t.Helper()

	out, err := e.run("", "--json", "tenant", "list")
	require.NoError(t, err)
	var tenants []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &tenants))
	return tenants
}

func decode(t *testing.T, out string) map[string]any {
	t.Helper()

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	return payload
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCommand(&out, testBuildInfo())
	if stdin != "" {
		cmd.SetIn(strings.NewReader(stdin))
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func testBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   "1.2.3",
		Commit:    "abc123",
		BuildTime: "2026-02-19T00:00:00Z",
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var withExit interface{ ExitCode() int }
	if errors.As(err, &withExit) {
		return withExit.ExitCode()
	}
	return -1
}

func TestDoctorPassesOnHealthyStore(t *testing.T) {
	t.Parallel()

	env := newInitializedCLIEnv(t)
	_, err := env.run("", "backup", "snapshot")
	require.NoError(t, err)

	out, err := env.run("", "doctor")
	require.NoError(t, err)
	require.Contains(t, out, "config: ok")
	require.Contains(t, out, "store: ok")
	require.Contains(t, out, "audit: ok")
	require.Contains(t, out, "backups: ok (1 readable slots)")
}

func TestDoctorFailsWithoutStore(t *testing.T) {
	t.Parallel()

	env := newCLIEnv(t)
	out, err := env.run("", "doctor")
	require.Error(t, err)
	require.Equal(t, ExitCodeGeneric, exitCode(err))
	require.Contains(t, out, "store: fail")
}

func TestDebugBundleWritesSanitizedFile(t *testing.T) {
	t.Parallel()

	env := newInitializedCLIEnv(t)
	path := filepath.Join(t.TempDir(), "bundle.json")
	_, err := env.run("", "debug", "bundle", "--output", path)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), testAdminPassword)

	var bundle map[string]any
	require.NoError(t, json.Unmarshal(raw, &bundle))
	require.Equal(t, "1.2.3", bundle["version"].(map[string]any)["version"])
	require.NotNil(t, bundle["store"])
}
