package storage

import (
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound     = errors.New("storage: not found")
	ErrSchemaTooNew = errors.New("storage: schema version newer than code")
	ErrDuplicateKey = errors.New("storage: duplicate key")
	ErrReference    = errors.New("storage: dangling reference")
	ErrValidation   = errors.New("storage: validation failed")
	ErrStorageIO    = errors.New("storage: persistence failed")
	ErrMigration    = errors.New("storage: migration failed")
)

// DuplicateKeyError names the field whose uniqueness was violated, e.g.
// "username", "code" or "national_id".
type DuplicateKeyError struct {
	Field string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate %s", e.Field)
}

func (e *DuplicateKeyError) Is(target error) bool { return target == ErrDuplicateKey }

type ReferenceError struct {
	Table string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s: foreign key reference is dangling or still in use", e.Table)
}

func (e *ReferenceError) Is(target error) bool { return target == ErrReference }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StorageIOError reports that the state image could not be loaded or
// written. The in-memory state stays usable after a failed save.
type StorageIOError struct {
	Op  string
	Err error
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageIOError) Unwrap() error { return e.Err }
func (e *StorageIOError) Is(target error) bool { return target == ErrStorageIO }

type MigrationError struct {
	Version     int
	Description string
	Err         error
}

func (e *MigrationError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("migration v%d: %v", e.Version, e.Err)
	}
	return fmt.Sprintf("migration v%d (%s): %v", e.Version, e.Description, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }
func (e *MigrationError) Is(target error) bool { return target == ErrMigration }

// classify turns engine constraint failures into the typed errors above.
// table is the table the failing statement wrote to.
func classify(err error, table string) error {
	if err == nil {
		return nil
	}

	code := 0
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code = sqliteErr.Code()
	}
	msg := err.Error()

	switch {
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE,
		code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
		strings.Contains(msg, "UNIQUE constraint failed"):
		return &DuplicateKeyError{Field: constraintField(msg)}
	case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
		strings.Contains(msg, "FOREIGN KEY constraint failed"),
		strings.Contains(msg, crossTenantMessage):
		return &ReferenceError{Table: table}
	case code == sqlite3.SQLITE_CONSTRAINT_NOTNULL,
		strings.Contains(msg, "NOT NULL constraint failed"):
		return invalid(constraintField(msg), "is required")
	default:
		return err
	}
}

// constraintField extracts the reported column from messages such as
// "UNIQUE constraint failed: employees.tenant_id, employees.national_id".
// For composite keys the last column other than tenant_id wins.
func constraintField(msg string) string {
	const marker = "constraint failed: "
	idx := strings.LastIndex(msg, marker)
	if idx < 0 {
		return "unknown"
	}
	list := msg[idx+len(marker):]
	if end := strings.IndexAny(list, "()"); end >= 0 {
		list = list[:end]
	}

	field := ""
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if _, column, ok := strings.Cut(part, "."); ok {
			part = column
		}
		if part == "" {
			continue
		}
		if part == "tenant_id" && field != "" {
			continue
		}
		field = part
	}
	if field == "" {
		return "unknown"
	}
	return field
}
