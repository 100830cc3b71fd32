package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTenantID = "tenant-default"
	AdminUserID     = "user-admin"
)

//go:embed seed.yaml
var seedYAML []byte

type seedCatalog struct {
	Roles []struct {
		ID          string   `yaml:"id"`
		Name        string   `yaml:"name"`
		Description string   `yaml:"description"`
		Permissions []string `yaml:"permissions"`
	} `yaml:"roles"`
	Tenant struct {
		ID   string `yaml:"id"`
		Code string `yaml:"code"`
		Name string `yaml:"name"`
	} `yaml:"tenant"`
	Admin struct {
		ID       string `yaml:"id"`
		Username string `yaml:"username"`
		FullName string `yaml:"full_name"`
		RoleID   string `yaml:"role_id"`
	} `yaml:"admin"`
}

// SeedOptions overrides the embedded defaults for the first tenant and the
// seed administrator.
type SeedOptions struct {
	TenantCode    string
	TenantName    string
	AdminUsername string
	// Open moves AdminPassword into locked memory and wipes the caller's
	// slice.
	AdminPassword []byte
	// HashCredential hashes AdminPassword. It is only called when the seed
	// administrator has to be created.
	HashCredential func(secret []byte) (string, error)
}

// SeedCounts reports how many rows each seed step inserted.
type SeedCounts struct {
	Roles   int
	Tenants int
	Users   int
}

func loadSeedCatalog() (seedCatalog, error) {
	var catalog seedCatalog
	if err := yaml.Unmarshal(seedYAML, &catalog); err != nil {
		return seedCatalog{}, fmt.Errorf("parse seed catalog: %w", err)
	}
	return catalog, nil
}

// seed asserts reference rows with insert-if-absent semantics in a single
// transaction.
func seed(ctx context.Context, conn *sql.Conn, opts SeedOptions, logger *slog.Logger) (SeedCounts, error) {
	catalog, err := loadSeedCatalog()
	if err != nil {
		return SeedCounts{}, err
	}
	if code := strings.TrimSpace(opts.TenantCode); code != "" {
		catalog.Tenant.Code = strings.ToUpper(code)
	}
	if name := strings.TrimSpace(opts.TenantName); name != "" {
		catalog.Tenant.Name = name
	}
	if username := strings.TrimSpace(opts.AdminUsername); username != "" {
		catalog.Admin.Username = username
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return SeedCounts{}, fmt.Errorf("seed: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var counts SeedCounts
	now := fmtTime(nowUTC())

	for _, role := range catalog.Roles {
		permissions, err := json.Marshal(nonNil(role.Permissions))
		if err != nil {
			return SeedCounts{}, fmt.Errorf("seed role %s: %w", role.ID, err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO roles(id, name, description, permissions, is_built_in, created_at)
			SELECT ?, ?, ?, ?, 1, ?
			WHERE NOT EXISTS (SELECT 1 FROM roles WHERE id = ?)
		`, role.ID, role.Name, role.Description, string(permissions), now, role.ID)
		if err != nil {
			return SeedCounts{}, fmt.Errorf("seed role %s: %w", role.ID, classify(err, "roles"))
		}
		n, err := rowsAffected(res)
		if err != nil {
			return SeedCounts{}, err
		}
		counts.Roles += n
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO tenants(id, code, name, address, status, features, created_at, updated_at)
		SELECT ?, ?, ?, '', 'active', '[]', ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM tenants WHERE id = ? OR code = ?)
	`, catalog.Tenant.ID, catalog.Tenant.Code, catalog.Tenant.Name, now, now, catalog.Tenant.ID, catalog.Tenant.Code)
	if err != nil {
		return SeedCounts{}, fmt.Errorf("seed tenant: %w", classify(err, "tenants"))
	}
	if counts.Tenants, err = rowsAffected(res); err != nil {
		return SeedCounts{}, err
	}

	created, err := seedAdmin(ctx, tx, catalog, opts, now, logger)
	if err != nil {
		return SeedCounts{}, err
	}
	if created {
		counts.Users = 1
	}

	if err := tx.Commit(); err != nil {
		return SeedCounts{}, fmt.Errorf("seed: commit: %w", err)
	}
	return counts, nil
}

func seedAdmin(ctx context.Context, tx *sql.Tx, catalog seedCatalog, opts SeedOptions, now string, logger *slog.Logger) (bool, error) {
	var exists int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users WHERE id = ? OR username = ?
	`, catalog.Admin.ID, catalog.Admin.Username).Scan(&exists); err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	if exists > 0 {
		return false, nil
	}

	var tenantID string
	if err := tx.QueryRowContext(ctx, `
		SELECT id FROM tenants WHERE id = ? OR code = ? ORDER BY id = ? DESC LIMIT 1
	`, catalog.Tenant.ID, catalog.Tenant.Code, catalog.Tenant.ID).Scan(&tenantID); err != nil {
		return false, fmt.Errorf("seed admin: resolve default tenant: %w", err)
	}

	if len(opts.AdminPassword) == 0 {
		return false, fmt.Errorf("seed admin: %w", invalid("admin_password", "is required to create the seed administrator"))
	}
	if opts.HashCredential == nil {
		return false, fmt.Errorf("seed admin: no credential hasher configured")
	}
	hash, err := opts.HashCredential(opts.AdminPassword)
	if err != nil {
		return false, fmt.Errorf("seed admin: hash credential: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users(id, tenant_id, username, password_hash, full_name, role_id, status, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, 'active', ?, ?)
	`, catalog.Admin.ID, tenantID, catalog.Admin.Username, hash, catalog.Admin.FullName, catalog.Admin.RoleID, now, now); err != nil {
		return false, fmt.Errorf("seed admin: %w", classify(err, "users"))
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_tenant_access(user_id, tenant_id, is_default) VALUES(?, ?, 1)
	`, catalog.Admin.ID, tenantID); err != nil {
		return false, fmt.Errorf("seed admin membership: %w", classify(err, "user_tenant_access"))
	}

	logger.Info("seed administrator created", "username", catalog.Admin.Username, "tenant_id", tenantID)
	return true, nil
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
