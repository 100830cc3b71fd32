package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigPrecedenceFlagOverEnv(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfigFile(t, `
[storage]
data_dir = "/from/file"
`)

	flagDir := "/from/flag"
	cfg, _, err := Load(LoadOptions{
		ConfigPath: cfgPath,
		Env:        isolatedEnv(t, map[string]string{"QUARTERS_DATA_DIR": "/from/env"}),
		Flags:      FlagOverrides{DataDir: &flagDir},
	})
	require.NoError(t, err)
	require.Equal(t, "/from/flag", cfg.Storage.DataDir)
}

func TestLoadConfigPrecedenceEnvOverFile(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfigFile(t, `
[backup]
threshold = 10
`)

	cfg, _, err := Load(LoadOptions{
		ConfigPath: cfgPath,
		Env:        isolatedEnv(t, map[string]string{"QUARTERS_BACKUP_THRESHOLD": "25"}),
	})
	require.NoError(t, err)
	require.Equal(t, 25, cfg.Backup.Threshold)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	cfg, report, err := Load(LoadOptions{
		ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
		Env:        map[string]string{"QUARTERS_HOME": home},
	})
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Backup.Threshold)
	require.Equal(t, 5, cfg.Backup.Retention)
	require.True(t, cfg.Backup.Compress)
	require.Equal(t, "MAIN", cfg.Seed.TenantCode)
	require.Equal(t, "admin", cfg.Seed.AdminUsername)
	require.Empty(t, cfg.Seed.AdminPassword)
	require.Equal(t, 64*1024, cfg.Credentials.Argon2MemoryKiB)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, home, cfg.Storage.DataDir)
	require.Empty(t, report.PolicyOverrides)
}

func TestLoadConfigFromTOMLParsesAllSupportedFields(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfigFile(t, `
[storage]
data_dir = "/srv/quarters"

[backup]
threshold = 20
retention = 3
compress = false
passphrase = "backup secret"

[seed]
tenant_code = "HQ"
tenant_name = "Headquarters"
admin_username = "root"
admin_password = "first-run"

[credentials]
argon2_memory_kib = 32768
argon2_iterations = 1

[logging]
level = "debug"
format = "json"
file = "/var/log/quarters.log"
max_size_mb = 20
max_files = 2
`)

	cfg, _, err := Load(LoadOptions{ConfigPath: cfgPath, Env: isolatedEnv(t, nil)})
	require.NoError(t, err)
	require.Equal(t, Config{
		Storage: StorageConfig{DataDir: "/srv/quarters"},
		Backup:  BackupConfig{Threshold: 20, Retention: 3, Compress: false, Passphrase: "backup secret"},
		Seed: SeedConfig{
			TenantCode:    "HQ",
			TenantName:    "Headquarters",
			AdminUsername: "root",
			AdminPassword: "first-run",
		},
		Credentials: CredentialsConfig{Argon2MemoryKiB: 32768, Argon2Iterations: 1},
		Logging: LoggingConfig{
			Level:     "debug",
			Format:    "json",
			File:      "/var/log/quarters.log",
			MaxSizeMB: 20,
			MaxFiles:  2,
		},
	}, cfg)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Parallel()

	cfg, _, err := Load(LoadOptions{
		ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
		Env: isolatedEnv(t, map[string]string{
			"QUARTERS_BACKUP_COMPRESS":   "false",
			"QUARTERS_BACKUP_RETENTION":  "9",
			"QUARTERS_ADMIN_PASSWORD":    "from-env",
			"QUARTERS_TENANT_CODE":       "ENV",
			"QUARTERS_LOG_FORMAT":        "json",
			"QUARTERS_ARGON2_ITERATIONS": "2",
		}),
	})
	require.NoError(t, err)
	require.False(t, cfg.Backup.Compress)
	require.Equal(t, 9, cfg.Backup.Retention)
	require.Equal(t, "from-env", cfg.Seed.AdminPassword)
	require.Equal(t, "ENV", cfg.Seed.TenantCode)
	require.Equal(t, "json", cfg.Logging.Format)
	require.Equal(t, 2, cfg.Credentials.Argon2Iterations)
}

func TestLoadConfigRejectsMalformedEnv(t *testing.T) {
	t.Parallel()

	_, _, err := Load(LoadOptions{
		ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
		Env:        isolatedEnv(t, map[string]string{"QUARTERS_BACKUP_THRESHOLD": "lots"}),
	})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, _, err = Load(LoadOptions{
		ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
		Env:        isolatedEnv(t, map[string]string{"QUARTERS_BACKUP_COMPRESS": "maybe"}),
	})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfigPolicyOverridesUserValues(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfigFile(t, `
[backup]
retention = 10

[credentials]
argon2_memory_kib = 32768
`)
	policyPath := writePolicyFile(t, `
[backup]
retention = 3

[credentials]
argon2_memory_kib = 131072
`)

	cfg, report, err := Load(LoadOptions{
		ConfigPath: cfgPath,
		PolicyPath: policyPath,
		Env:        isolatedEnv(t, nil),
	})
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Backup.Retention)
	require.Equal(t, 131072, cfg.Credentials.Argon2MemoryKiB)
	require.ElementsMatch(t, []string{"backup.retention", "credentials.argon2_memory_kib"}, report.PolicyOverrides)
}

func TestLoadConfigPolicyMatchingValueIsNotReported(t *testing.T) {
	t.Parallel()

	policyPath := writePolicyFile(t, `
[backup]
threshold = 50
`)

	_, report, err := Load(LoadOptions{
		ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
		PolicyPath: policyPath,
		Env:        isolatedEnv(t, nil),
	})
	require.NoError(t, err)
	require.Empty(t, report.PolicyOverrides)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"zero threshold":   "[backup]\nthreshold = 0\n",
		"zero retention":   "[backup]\nretention = 0\n",
		"weak argon2":      "[credentials]\nargon2_memory_kib = 1024\n",
		"zero iterations":  "[credentials]\nargon2_iterations = 0\n",
		"empty tenant":     "[seed]\ntenant_code = \" \"\n",
		"empty admin":      "[seed]\nadmin_username = \"\"\n",
		"bad level":        "[logging]\nlevel = \"loud\"\n",
		"bad format":       "[logging]\nformat = \"xml\"\n",
		"zero log size":    "[logging]\nmax_size_mb = 0\n",
		"negative backups": "[logging]\nmax_files = -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, _, err := Load(LoadOptions{ConfigPath: writeConfigFile(t, body), Env: isolatedEnv(t, nil)})
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfigRejectsMalformedTOML(t *testing.T) {
	t.Parallel()

	_, _, err := Load(LoadOptions{ConfigPath: writeConfigFile(t, "[backup\nthreshold = "), Env: isolatedEnv(t, nil)})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfigPathFromEnv(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfigFile(t, `
[seed]
tenant_name = "From Env Path"
`)

	cfg, report, err := Load(LoadOptions{
		Env: isolatedEnv(t, map[string]string{"QUARTERS_CONFIG_PATH": cfgPath}),
	})
	require.NoError(t, err)
	require.Equal(t, cfgPath, report.ConfigPath)
	require.Equal(t, "From Env Path", cfg.Seed.TenantName)
}

func isolatedEnv(t *testing.T, env map[string]string) map[string]string {
	t.Helper()

	out := map[string]string{"QUARTERS_HOME": t.TempDir()}
	for key, value := range env {
		out[key] = value
	}
	return out
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func writePolicyFile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
