package storage

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Field maps one column to a location inside T. Ref returns a value that is
// both a scan destination and a statement argument: a plain pointer for
// strings, ints and bools, or one of the column adapters below.
type Field[T any] struct {
	Name     string
	Ref      func(*T) any
	ReadOnly bool
}

// Descriptor is the compile-time description of an entity table. Statements
// are built from it; nothing is discovered at run time.
type Descriptor[T any] struct {
	Kind  string
	Table string

	// Scoped tables carry a non-null tenant_id column.
	Scoped bool
	// AllowGlobal permits AllTenants reads and writes.
	AllowGlobal bool

	ID      func(*T) *string
	Tenant  func(*T) *string
	Created func(*T) *time.Time
	Updated func(*T) *time.Time

	Fields  []Field[T]
	OrderBy string

	Validate func(*T) error
	// Protect runs inside the unit of work before an update or delete.
	// fields is nil for deletes.
	Protect func(ctx context.Context, q Querier, ids []string, fields []string) error
}

func (d *Descriptor[T]) columns() []string {
	cols := []string{"id"}
	if d.Scoped {
		cols = append(cols, "tenant_id")
	}
	if d.Created != nil {
		cols = append(cols, "created_at")
	}
	if d.Updated != nil {
		cols = append(cols, "updated_at")
	}
	for _, f := range d.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

func (d *Descriptor[T]) targets(v *T) []any {
	out := []any{d.ID(v)}
	if d.Scoped {
		out = append(out, d.Tenant(v))
	}
	if d.Created != nil {
		out = append(out, timeText{d.Created(v)})
	}
	if d.Updated != nil {
		out = append(out, timeText{d.Updated(v)})
	}
	for _, f := range d.Fields {
		out = append(out, f.Ref(v))
	}
	return out
}

func (d *Descriptor[T]) selectList() string {
	return strings.Join(d.columns(), ", ")
}

func (d *Descriptor[T]) order() string {
	if d.OrderBy == "" {
		return "rowid"
	}
	return d.OrderBy
}

// updatable resolves field names for Update. Identity, tenant and
// timestamp columns are never writable.
func (d *Descriptor[T]) updatable(names []string) ([]Field[T], error) {
	if len(names) == 0 {
		return nil, invalid("fields", "at least one field is required")
	}
	out := make([]Field[T], 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		switch name {
		case "id", "tenant_id", "created_at", "updated_at":
			return nil, invalid(name, "field is immutable")
		}
		if seen[name] {
			continue
		}
		field, ok := d.field(name)
		if !ok {
			return nil, invalid(name, fmt.Sprintf("unknown field for %s", d.Kind))
		}
		if field.ReadOnly {
			return nil, invalid(name, "field is immutable")
		}
		seen[name] = true
		out = append(out, field)
	}
	return out, nil
}

func (d *Descriptor[T]) field(name string) (Field[T], bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field[T]{}, false
}

func (d *Descriptor[T]) filterable(name string) bool {
	if name == "id" || (d.Scoped && name == "tenant_id") {
		return true
	}
	_, ok := d.field(name)
	return ok
}

// timeLayout keeps every stored timestamp the same width so that text
// comparison in SQL orders them chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// timeText stores a time.Time as fixed-width RFC 3339 text. The zero time is
// NULL.
type timeText struct{ t *time.Time }

func (v timeText) Value() (driver.Value, error) {
	if v.t.IsZero() {
		return nil, nil
	}
	return fmtTime(*v.t), nil
}

func (v timeText) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		*v.t = time.Time{}
	case string:
		t, err := parseTime(s)
		if err != nil {
			return err
		}
		*v.t = t
	case []byte:
		t, err := parseTime(string(s))
		if err != nil {
			return err
		}
		*v.t = t
	case time.Time:
		*v.t = s.UTC()
	default:
		return fmt.Errorf("scan time: unsupported type %T", src)
	}
	return nil
}

// nullText stores the empty string as NULL, for optional references.
type nullText struct{ s *string }

func (v nullText) Value() (driver.Value, error) {
	if *v.s == "" {
		return nil, nil
	}
	return *v.s, nil
}

func (v nullText) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		*v.s = ""
	case string:
		*v.s = s
	case []byte:
		*v.s = string(s)
	default:
		return fmt.Errorf("scan text: unsupported type %T", src)
	}
	return nil
}

// jsonList stores an ordered string list as a JSON array.
type jsonList struct{ v *[]string }

func (j jsonList) Value() (driver.Value, error) {
	list := *j.v
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}
	return string(raw), nil
}

func (j jsonList) Scan(src any) error {
	var raw []byte
	switch s := src.(type) {
	case nil:
		*j.v = nil
		return nil
	case string:
		raw = []byte(s)
	case []byte:
		raw = s
	default:
		return fmt.Errorf("scan list: unsupported type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	if len(out) == 0 {
		out = nil
	}
	*j.v = out
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
