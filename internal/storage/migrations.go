package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

const schemaVersionMetaKey = "schema_version"

type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// schemaStatements is the current shape of every table. It is applied on
// each open and must only use IF NOT EXISTS forms. An index over a column
// that a migration adds belongs to that migration, since the column is
// missing from older images when this runs.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		features TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS roles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL COLLATE NOCASE UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		permissions TEXT NOT NULL DEFAULT '[]',
		is_built_in INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		username TEXT NOT NULL COLLATE NOCASE UNIQUE,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		role_id TEXT NOT NULL REFERENCES roles(id),
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_tenant_access (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		is_default INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, tenant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS permission_overrides (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		permission_key TEXT NOT NULL,
		is_allowed INTEGER NOT NULL,
		PRIMARY KEY (user_id, tenant_id, permission_key)
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		tenant_id TEXT NOT NULL DEFAULT '',
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		national_id TEXT NOT NULL,
		full_name TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT '',
		job_title TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS buildings (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		code TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS floors (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		building_id TEXT NOT NULL REFERENCES buildings(id),
		name TEXT NOT NULL,
		level INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		floor_id TEXT NOT NULL REFERENCES floors(id),
		number TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT '',
		capacity INTEGER NOT NULL DEFAULT 1,
		occupied INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'available',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		employee_id TEXT NOT NULL REFERENCES employees(id),
		room_id TEXT NOT NULL REFERENCES rooms(id),
		start_date TEXT NOT NULL,
		end_date TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		room_id TEXT NOT NULL REFERENCES rooms(id),
		guest_name TEXT NOT NULL DEFAULT '',
		start_date TEXT,
		end_date TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS hostings (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		employee_id TEXT NOT NULL REFERENCES employees(id),
		room_id TEXT REFERENCES rooms(id),
		guest_name TEXT NOT NULL,
		start_date TEXT,
		end_date TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS maintenance_requests (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		room_id TEXT NOT NULL REFERENCES rooms(id),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT 'normal',
		status TEXT NOT NULL DEFAULT 'open',
		resolved_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		actor_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		target_type TEXT NOT NULL DEFAULT '',
		target_id TEXT NOT NULL DEFAULT '',
		result TEXT NOT NULL DEFAULT '',
		details_json TEXT NOT NULL DEFAULT '{}',
		prev_hash TEXT NOT NULL DEFAULT '',
		event_hash TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_tenant ON users(tenant_id)`,
	`CREATE INDEX IF NOT EXISTS idx_employees_tenant ON employees(tenant_id)`,
	`CREATE INDEX IF NOT EXISTS idx_rooms_tenant_floor ON rooms(tenant_id, floor_id)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_tenant_room ON assignments(tenant_id, room_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_tenant ON audit_log(tenant_id, created_at)`,
}

var defaultMigrations = []Migration{
	{
		Version:     2,
		Description: "add tenants.features",
		Up: func(tx *sql.Tx) error {
			return addColumn(tx, "tenants", "features", `TEXT NOT NULL DEFAULT '[]'`)
		},
	},
	{
		Version:     3,
		Description: "add room occupancy",
		Up: func(tx *sql.Tx) error {
			if err := addColumn(tx, "rooms", "occupied", `INTEGER NOT NULL DEFAULT 0`); err != nil {
				return err
			}
			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_rooms_tenant_status ON rooms(tenant_id, status)`); err != nil {
				return fmt.Errorf("create rooms status index: %w", err)
			}
			return nil
		},
	},
	{
		Version:     4,
		Description: "enforce unique national id per tenant",
		Up: func(tx *sql.Tx) error {
			exists, err := indexExists(tx, "idx_employees_tenant_national_id")
			if err != nil || exists {
				return err
			}
			if _, err := tx.Exec(`CREATE UNIQUE INDEX idx_employees_tenant_national_id ON employees(tenant_id, national_id)`); err != nil {
				return fmt.Errorf("create employees national id index: %w", err)
			}
			return nil
		},
	},
	{
		Version:     5,
		Description: "add users.status",
		Up: func(tx *sql.Tx) error {
			return addColumn(tx, "users", "status", `TEXT NOT NULL DEFAULT 'active'`)
		},
	},
	{
		Version:     6,
		Description: "keep references inside their tenant",
		Up:          addTenantReferenceGuards,
	},
	{
		Version:     7,
		Description: "fixed-width audit timestamps",
		Up:          normalizeAuditTimestamps,
	},
}

// tenantReference is a child column that must point at a parent row of the
// same tenant.
type tenantReference struct {
	Table, Column, Parent string
}

var tenantReferences = []tenantReference{
	{Table: "floors", Column: "building_id", Parent: "buildings"},
	{Table: "rooms", Column: "floor_id", Parent: "floors"},
	{Table: "assignments", Column: "employee_id", Parent: "employees"},
	{Table: "assignments", Column: "room_id", Parent: "rooms"},
	{Table: "reservations", Column: "room_id", Parent: "rooms"},
	{Table: "hostings", Column: "employee_id", Parent: "employees"},
	{Table: "hostings", Column: "room_id", Parent: "rooms"},
	{Table: "maintenance_requests", Column: "room_id", Parent: "rooms"},
}

const crossTenantMessage = "cross-tenant reference"

// addTenantReferenceGuards refuses images that already hold cross-tenant
// references, then installs insert and update triggers for each reference.
// A missing parent is left to the foreign key.
func addTenantReferenceGuards(tx *sql.Tx) error {
	for _, ref := range tenantReferences {
		var n int
		err := tx.QueryRow(`SELECT COUNT(*) FROM ` + ref.Table + ` c JOIN ` + ref.Parent + ` p ON p.id = c.` + ref.Column +
			` WHERE p.tenant_id <> c.tenant_id`).Scan(&n)
		if err != nil {
			return fmt.Errorf("check %s.%s: %w", ref.Table, ref.Column, err)
		}
		if n > 0 {
			return fmt.Errorf("%d %s rows reference %s of another tenant", n, ref.Table, ref.Parent)
		}

		for _, trigger := range ref.triggers() {
			exists, err := triggerExists(tx, trigger.name)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if _, err := tx.Exec(trigger.stmt); err != nil {
				return fmt.Errorf("create trigger %s: %w", trigger.name, err)
			}
		}
	}
	return nil
}

// normalizeAuditTimestamps rewrites audit_log.created_at values stored in
// the variable-width RFC 3339 form used by older images.
func normalizeAuditTimestamps(tx *sql.Tx) error {
	rows, err := tx.Query(`SELECT id, created_at FROM audit_log`)
	if err != nil {
		return fmt.Errorf("read audit timestamps: %w", err)
	}
	updates := map[string]string{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan audit timestamp: %w", err)
		}
		t, err := parseTime(raw)
		if err != nil {
			_ = rows.Close()
			return err
		}
		if fixed := fmtTime(t); fixed != raw {
			updates[id] = fixed
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("iterate audit timestamps: %w", err)
	}
	_ = rows.Close()

	for id, fixed := range updates {
		if _, err := tx.Exec(`UPDATE audit_log SET created_at = ? WHERE id = ?`, fixed, id); err != nil {
			return fmt.Errorf("rewrite audit timestamp %s: %w", id, err)
		}
	}
	return nil
}

type triggerDef struct {
	name, stmt string
}

func (r tenantReference) triggers() []triggerDef {
	base := "trg_" + r.Table + "_" + r.Column + "_tenant"
	when := `WHEN NEW.` + r.Column + ` IS NOT NULL
		AND EXISTS (SELECT 1 FROM ` + r.Parent + ` WHERE id = NEW.` + r.Column + `)
		AND NOT EXISTS (SELECT 1 FROM ` + r.Parent + ` WHERE id = NEW.` + r.Column + ` AND tenant_id = NEW.tenant_id)
		BEGIN SELECT RAISE(ABORT, '` + crossTenantMessage + `: ` + r.Table + `.` + r.Column + `'); END`
	return []triggerDef{
		{
			name: base + "_insert",
			stmt: `CREATE TRIGGER ` + base + `_insert BEFORE INSERT ON ` + r.Table + ` FOR EACH ROW ` + when,
		},
		{
			name: base + "_update",
			stmt: `CREATE TRIGGER ` + base + `_update BEFORE UPDATE OF ` + r.Column + `, tenant_id ON ` + r.Table + ` FOR EACH ROW ` + when,
		},
	}
}

func DefaultMigrations() []Migration {
	out := make([]Migration, len(defaultMigrations))
	copy(out, defaultMigrations)
	return out
}

func CurrentSchemaVersion() int {
	return maxMigrationVersion(defaultMigrations)
}

// migrate brings the connection to the current schema. It returns the
// version found in the image and the version reached.
func migrate(ctx context.Context, conn *sql.Conn, migrations []Migration) (from, to int, err error) {
	if err := ensureMigrationTables(ctx, conn); err != nil {
		return 0, 0, err
	}

	ordered := make([]Migration, len(migrations))
	copy(ordered, migrations)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	current, err := readSchemaVersion(ctx, conn)
	if err != nil {
		return 0, 0, err
	}
	from = current

	maxVersion := maxMigrationVersion(ordered)
	if current > maxVersion {
		return from, current, &MigrationError{
			Version: current,
			Err:     fmt.Errorf("%w: image=%d code=%d", ErrSchemaTooNew, current, maxVersion),
		}
	}

	for _, stmt := range schemaStatements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return from, current, &MigrationError{Version: current, Description: "apply schema", Err: err}
		}
	}

	for _, migration := range ordered {
		if migration.Version <= current {
			continue
		}
		if err := applyMigration(ctx, conn, migration); err != nil {
			return from, current, &MigrationError{Version: migration.Version, Description: migration.Description, Err: err}
		}
		current = migration.Version
	}
	return from, current, nil
}

func applyMigration(ctx context.Context, conn *sql.Conn, migration Migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := migration.Up(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_migrations(version, applied_at) VALUES (?, ?)`, migration.Version, fmtTime(nowUTC())); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record schema migration: %w", err)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES(?, ?)`, schemaVersionMetaKey, strconv.Itoa(migration.Version)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func ensureMigrationTables(ctx context.Context, conn *sql.Conn) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`,
		`INSERT OR IGNORE INTO meta(key, value) VALUES('` + schemaVersionMetaKey + `', '0')`,
	}
	for _, stmt := range statements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure migration tables: %w", err)
		}
	}
	return nil
}

func readSchemaVersion(ctx context.Context, q Querier) (int, error) {
	var versionStr string
	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, schemaVersionMetaKey).Scan(&versionStr)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	version, err := strconv.Atoi(versionStr)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", versionStr, err)
	}
	return version, nil
}

func maxMigrationVersion(migrations []Migration) int {
	max := 1
	for _, migration := range migrations {
		if migration.Version > max {
			max = migration.Version
		}
	}
	return max
}

func addColumn(tx *sql.Tx, table, column, definition string) error {
	exists, err := columnExists(tx, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := tx.Exec(`ALTER TABLE ` + table + ` ADD COLUMN ` + column + ` ` + definition); err != nil {
		return fmt.Errorf("add %s.%s: %w", table, column, err)
	}
	return nil
}

func columnExists(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(`PRAGMA table_info(` + table + `)`)
	if err != nil {
		return false, fmt.Errorf("query table info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			typeStr string
			notNull int
			dfltVal sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typeStr, &notNull, &dfltVal, &pk); err != nil {
			return false, fmt.Errorf("scan table info %s: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate table info %s: %w", table, err)
	}
	return false, nil
}

func indexExists(tx *sql.Tx, name string) (bool, error) {
	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("query index %s: %w", name, err)
	}
	return n > 0, nil
}

func triggerExists(tx *sql.Tx, name string) (bool, error) {
	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'trigger' AND name = ?`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("query trigger %s: %w", name, err)
	}
	return n > 0, nil
}
