package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/amanthanvi/quarters/internal/notify"
	"github.com/google/uuid"
)

// Repository is the tenant-scoped CRUD contract for one entity kind.
type Repository[T any] struct {
	engine  *Engine
	tenants *TenantContext
	desc    *Descriptor[T]
	tx      *Tx
}

func NewRepository[T any](engine *Engine, tenants *TenantContext, desc *Descriptor[T]) *Repository[T] {
	return &Repository[T]{engine: engine, tenants: tenants, desc: desc}
}

// Tx returns a copy of the repository bound to an open unit of work.
func (r *Repository[T]) Tx(tx *Tx) *Repository[T] {
	bound := *r
	bound.tx = tx
	return &bound
}

func (r *Repository[T]) Kind() string { return r.desc.Kind }

func (r *Repository[T]) GetAll(ctx context.Context, scope Scope) ([]T, error) {
	var out []T
	err := r.read(ctx, func(q Querier) error {
		where, args, err := r.scopeWhere(scope)
		if err != nil {
			return err
		}
		out, err = r.selectRows(ctx, q, where, args)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.desc.Kind, err)
	}
	return out, nil
}

// FindBy returns the rows in scope whose column equals value.
func (r *Repository[T]) FindBy(ctx context.Context, scope Scope, column string, value any) ([]T, error) {
	if !r.desc.filterable(column) {
		return nil, invalid(column, fmt.Sprintf("unknown field for %s", r.desc.Kind))
	}
	var out []T
	err := r.read(ctx, func(q Querier) error {
		where, args, err := r.scopeWhere(scope)
		if err != nil {
			return err
		}
		where = append(where, column+" = ?")
		args = append(args, value)
		out, err = r.selectRows(ctx, q, where, args)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find %s by %s: %w", r.desc.Kind, column, err)
	}
	return out, nil
}

// GetByID returns ErrNotFound when the row does not exist in scope.
func (r *Repository[T]) GetByID(ctx context.Context, scope Scope, id string) (*T, error) {
	var out *T
	err := r.read(ctx, func(q Querier) error {
		where, args, err := r.scopeWhere(scope)
		if err != nil {
			return err
		}
		where = append(where, "id = ?")
		args = append(args, id)
		rows, err := r.selectRows(ctx, q, where, args)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return ErrNotFound
		}
		out = &rows[0]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", r.desc.Kind, id, err)
	}
	return out, nil
}

func (r *Repository[T]) Count(ctx context.Context, scope Scope) (int, error) {
	var n int
	err := r.read(ctx, func(q Querier) error {
		where, args, err := r.scopeWhere(scope)
		if err != nil {
			return err
		}
		query := `SELECT COUNT(*) FROM ` + r.desc.Table + whereClause(where)
		return q.QueryRowContext(ctx, query, args...).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.desc.Kind, err)
	}
	return n, nil
}

// Create inserts a copy of v under a freshly assigned id and returns it. Any
// id on v is ignored. The tenant comes from v when set, otherwise from scope.
func (r *Repository[T]) Create(ctx context.Context, scope Scope, v *T) (*T, error) {
	if v == nil {
		return nil, invalid(r.desc.Kind, "value is nil")
	}
	row := *v
	*r.desc.ID(&row) = uuid.NewString()

	if r.desc.Scoped {
		tenant := r.desc.Tenant(&row)
		*tenant = strings.TrimSpace(*tenant)
		if *tenant == "" {
			id, all, err := r.tenants.resolve(scope)
			if err != nil {
				return nil, fmt.Errorf("create %s: %w", r.desc.Kind, err)
			}
			if all {
				return nil, fmt.Errorf("create %s: %w", r.desc.Kind, invalid("tenant_id", "is required"))
			}
			*tenant = id
		}
	}
	if r.desc.Validate != nil {
		if err := r.desc.Validate(&row); err != nil {
			return nil, fmt.Errorf("create %s: %w", r.desc.Kind, err)
		}
	}

	now := nowUTC()
	if r.desc.Created != nil && r.desc.Created(&row).IsZero() {
		*r.desc.Created(&row) = now
	}
	if r.desc.Updated != nil {
		*r.desc.Updated(&row) = now
	}

	cols := r.desc.columns()
	query := `INSERT INTO ` + r.desc.Table + `(` + strings.Join(cols, ", ") + `) VALUES(` + placeholders(len(cols)) + `)`
	err := r.write(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, query, r.desc.targets(&row)...); err != nil {
			return classify(err, r.desc.Table)
		}
		tx.Publish(notify.Data(r.desc.Kind))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", r.desc.Kind, err)
	}
	return &row, nil
}

// Update writes only the named fields of from to the row id in scope.
func (r *Repository[T]) Update(ctx context.Context, scope Scope, id string, from *T, fields ...string) error {
	n, err := r.update(ctx, scope, []string{id}, from, fields)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", r.desc.Kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("update %s %s: %w", r.desc.Kind, id, ErrNotFound)
	}
	return nil
}

// UpdateMany applies the same field values to every id in scope. Ids that do
// not exist in scope are skipped. An empty id list is a no-op.
func (r *Repository[T]) UpdateMany(ctx context.Context, scope Scope, ids []string, from *T, fields ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := r.update(ctx, scope, ids, from, fields)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", r.desc.Kind, err)
	}
	return n, nil
}

func (r *Repository[T]) Delete(ctx context.Context, scope Scope, id string) error {
	n, err := r.delete(ctx, scope, []string{id})
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", r.desc.Kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s %s: %w", r.desc.Kind, id, ErrNotFound)
	}
	return nil
}

// DeleteMany removes every id in scope. An empty id list is a no-op.
func (r *Repository[T]) DeleteMany(ctx context.Context, scope Scope, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := r.delete(ctx, scope, ids)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", r.desc.Kind, err)
	}
	return n, nil
}

func (r *Repository[T]) update(ctx context.Context, scope Scope, ids []string, from *T, names []string) (int, error) {
	if from == nil {
		return 0, invalid(r.desc.Kind, "value is nil")
	}
	fields, err := r.desc.updatable(names)
	if err != nil {
		return 0, err
	}
	where, args, err := r.scopeWhere(scope)
	if err != nil {
		return 0, err
	}

	sets := make([]string, 0, len(fields)+1)
	setArgs := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		sets = append(sets, f.Name+" = ?")
		setArgs = append(setArgs, f.Ref(from))
	}
	if r.desc.Updated != nil {
		sets = append(sets, "updated_at = ?")
		setArgs = append(setArgs, fmtTime(nowUTC()))
	}
	where = append(where, "id IN ("+placeholders(len(ids))+")")
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE ` + r.desc.Table + ` SET ` + strings.Join(sets, ", ") + whereClause(where)

	var affected int
	err = r.write(ctx, func(tx *Tx) error {
		if r.desc.Protect != nil {
			if err := r.desc.Protect(ctx, tx, ids, names); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, query, append(setArgs, args...)...)
		if err != nil {
			return classify(err, r.desc.Table)
		}
		affected, err = rowsAffected(res)
		if err != nil {
			return err
		}
		if affected == 0 {
			return errNoRows
		}
		tx.Publish(notify.Data(r.desc.Kind))
		return nil
	})
	if errors.Is(err, errNoRows) {
		return 0, nil
	}
	return affected, err
}

func (r *Repository[T]) delete(ctx context.Context, scope Scope, ids []string) (int, error) {
	where, args, err := r.scopeWhere(scope)
	if err != nil {
		return 0, err
	}
	where = append(where, "id IN ("+placeholders(len(ids))+")")
	for _, id := range ids {
		args = append(args, id)
	}
	query := `DELETE FROM ` + r.desc.Table + whereClause(where)

	var affected int
	err = r.write(ctx, func(tx *Tx) error {
		if r.desc.Protect != nil {
			if err := r.desc.Protect(ctx, tx, ids, nil); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return classify(err, r.desc.Table)
		}
		affected, err = rowsAffected(res)
		if err != nil {
			return err
		}
		if affected == 0 {
			return errNoRows
		}
		tx.Publish(notify.Data(r.desc.Kind))
		return nil
	})
	if errors.Is(err, errNoRows) {
		return 0, nil
	}
	return affected, err
}

// errNoRows rolls back a unit of work that matched nothing, so it is neither
// persisted nor counted as a mutation.
var errNoRows = errors.New("no rows matched")

func (r *Repository[T]) scopeWhere(scope Scope) ([]string, []any, error) {
	if !r.desc.Scoped {
		return nil, nil, nil
	}
	id, all, err := r.tenants.resolve(scope)
	if err != nil {
		return nil, nil, err
	}
	if all {
		if !r.desc.AllowGlobal {
			return nil, nil, invalid("tenant_id", fmt.Sprintf("cross-tenant access is not permitted for %s", r.desc.Kind))
		}
		return nil, nil, nil
	}
	return []string{"tenant_id = ?"}, []any{id}, nil
}

func (r *Repository[T]) selectRows(ctx context.Context, q Querier, where []string, args []any) ([]T, error) {
	query := `SELECT ` + r.desc.selectList() + ` FROM ` + r.desc.Table + whereClause(where) + ` ORDER BY ` + r.desc.order()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var v T
		if err := rows.Scan(r.desc.targets(&v)...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func (r *Repository[T]) read(ctx context.Context, fn func(q Querier) error) error {
	return readWith(ctx, r.engine, r.tx, fn)
}

func (r *Repository[T]) write(ctx context.Context, fn func(tx *Tx) error) error {
	return writeWith(ctx, r.engine, r.tx, fn)
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return ` WHERE ` + strings.Join(conditions, " AND ")
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}
