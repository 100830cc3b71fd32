// Package debug collects sanitized diagnostics about a quarters data
// directory.
package debug

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/amanthanvi/quarters/internal/config"
)

const redacted = "[REDACTED]"

type Check struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type Bundle struct {
	GeneratedAt string         `json:"generated_at"`
	GOOS        string         `json:"goos"`
	GOARCH      string         `json:"goarch"`
	Version     map[string]any `json:"version,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	Store       map[string]any `json:"store,omitempty"`
	Checks      []Check        `json:"checks,omitempty"`
}

func NewBundle() Bundle {
	return Bundle{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339Nano),
		GOOS:        runtime.GOOS,
		GOARCH:      runtime.GOARCH,
	}
}

// Failed reports whether any check did not pass.
func (b Bundle) Failed() bool {
	for _, check := range b.Checks {
		if !check.OK {
			return true
		}
	}
	return false
}

// SanitizedConfig flattens cfg for a bundle. Secrets only show whether they
// are set.
func SanitizedConfig(cfg config.Config) map[string]any {
	return map[string]any{
		"storage.data_dir":              cfg.Storage.DataDir,
		"backup.threshold":              cfg.Backup.Threshold,
		"backup.retention":              cfg.Backup.Retention,
		"backup.compress":               cfg.Backup.Compress,
		"backup.passphrase":             secretState(cfg.Backup.Passphrase),
		"seed.tenant_code":              cfg.Seed.TenantCode,
		"seed.tenant_name":              cfg.Seed.TenantName,
		"seed.admin_username":           cfg.Seed.AdminUsername,
		"seed.admin_password":           secretState(cfg.Seed.AdminPassword),
		"credentials.argon2_memory_kib": cfg.Credentials.Argon2MemoryKiB,
		"credentials.argon2_iterations": cfg.Credentials.Argon2Iterations,
		"logging.level":                 cfg.Logging.Level,
		"logging.format":                cfg.Logging.Format,
		"logging.file":                  cfg.Logging.File,
	}
}

func secretState(value string) string {
	if value == "" {
		return "unset"
	}
	return redacted
}

func WriteBundle(outputPath string, bundle Bundle) error {
	if outputPath == "" {
		return fmt.Errorf("write debug bundle: output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o700); err != nil {
		return fmt.Errorf("write debug bundle: create output directory: %w", err)
	}

	payload, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("write debug bundle: marshal json: %w", err)
	}
	if err := os.WriteFile(outputPath, payload, 0o600); err != nil {
		return fmt.Errorf("write debug bundle: %w", err)
	}
	return nil
}
