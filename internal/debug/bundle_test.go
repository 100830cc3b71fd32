package debug

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/amanthanvi/quarters/internal/config"
	"github.com/stretchr/testify/require"
)

func TestWriteBundleWritesJSONFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "bundle.json")
	bundle := NewBundle()
	bundle.Version = map[string]any{"version": "1.2.3"}
	bundle.Store = map[string]any{"schema_version": 3}
	bundle.Checks = []Check{{Name: "store", OK: true, Message: "opened"}}

	require.NoError(t, WriteBundle(path, bundle))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded Bundle
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, bundle.GOOS, decoded.GOOS)
	require.Equal(t, "1.2.3", decoded.Version["version"])
	require.Equal(t, bundle.Checks, decoded.Checks)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteBundleRequiresOutputPath(t *testing.T) {
	t.Parallel()

	err := WriteBundle("", NewBundle())
	require.Error(t, err)
	require.Contains(t, err.Error(), "output path is required")
}

func TestSanitizedConfigHidesSecrets(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Backup.Passphrase = "backup passphrase"
	cfg.Seed.AdminPassword = "admin password"

	out := SanitizedConfig(cfg)
	require.Equal(t, redacted, out["backup.passphrase"])
	require.Equal(t, redacted, out["seed.admin_password"])
	require.Equal(t, cfg.Backup.Threshold, out["backup.threshold"])

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "backup passphrase")
	require.NotContains(t, string(raw), "admin password")

	require.Equal(t, "unset", SanitizedConfig(config.DefaultConfig())["backup.passphrase"])
}

func TestBundleFailed(t *testing.T) {
	t.Parallel()

	bundle := NewBundle()
	require.False(t, bundle.Failed())
	bundle.Checks = []Check{{Name: "a", OK: true}, {Name: "b", OK: false}}
	require.True(t, bundle.Failed())
}
