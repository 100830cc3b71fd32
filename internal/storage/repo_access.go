package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/amanthanvi/quarters/internal/notify"
)

// OverrideRepository stores per-user, per-tenant permission exceptions. A
// user's override set is only ever replaced as a whole.
type OverrideRepository struct {
	engine *Engine
	tx     *Tx
}

func (r *OverrideRepository) Tx(tx *Tx) *OverrideRepository {
	return &OverrideRepository{engine: r.engine, tx: tx}
}

func (r *OverrideRepository) ListForUser(ctx context.Context, userID string) ([]Override, error) {
	return r.list(ctx, `WHERE user_id = ?`, userID)
}

func (r *OverrideRepository) ListForUserTenant(ctx context.Context, userID, tenantID string) ([]Override, error) {
	return r.list(ctx, `WHERE user_id = ? AND tenant_id = ?`, userID, tenantID)
}

func (r *OverrideRepository) list(ctx context.Context, where string, args ...any) ([]Override, error) {
	var out []Override
	err := readWith(ctx, r.engine, r.tx, func(q Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT user_id, tenant_id, permission_key, is_allowed
			FROM permission_overrides
			`+where+`
			ORDER BY tenant_id, permission_key
		`, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = []Override{}
		for rows.Next() {
			var o Override
			if err := rows.Scan(&o.UserID, &o.TenantID, &o.PermissionKey, &o.IsAllowed); err != nil {
				return fmt.Errorf("scan row: %w", err)
			}
			out = append(out, o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list permission overrides: %w", err)
	}
	return out, nil
}

// ReplaceForUser deletes every override the user has, in every tenant, and
// inserts overrides in the same unit of work. An empty set clears them all.
func (r *OverrideRepository) ReplaceForUser(ctx context.Context, userID string, overrides []Override) error {
	if err := required("user_id", userID); err != nil {
		return fmt.Errorf("replace permission overrides: %w", err)
	}
	rows := make([]Override, len(overrides))
	for i, o := range overrides {
		if o.UserID == "" {
			o.UserID = userID
		}
		if o.UserID != userID {
			return fmt.Errorf("replace permission overrides: %w", invalid("user_id", "override belongs to a different user"))
		}
		if err := required("tenant_id", o.TenantID); err != nil {
			return fmt.Errorf("replace permission overrides: %w", err)
		}
		o.PermissionKey = strings.TrimSpace(o.PermissionKey)
		if err := required("permission_key", o.PermissionKey); err != nil {
			return fmt.Errorf("replace permission overrides: %w", err)
		}
		rows[i] = o
	}

	err := writeWith(ctx, r.engine, r.tx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM permission_overrides WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("delete previous set: %w", err)
		}
		for _, o := range rows {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO permission_overrides(user_id, tenant_id, permission_key, is_allowed)
				VALUES(?, ?, ?, ?)
			`, o.UserID, o.TenantID, o.PermissionKey, o.IsAllowed)
			if err != nil {
				return classify(err, "permission_overrides")
			}
		}
		tx.Publish(notify.Data(KindOverride))
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace permission overrides: %w", err)
	}
	return nil
}

// TenantAccessRepository stores which tenants a user may reach.
type TenantAccessRepository struct {
	engine *Engine
	tx     *Tx
}

func (r *TenantAccessRepository) Tx(tx *Tx) *TenantAccessRepository {
	return &TenantAccessRepository{engine: r.engine, tx: tx}
}

func (r *TenantAccessRepository) ListForUser(ctx context.Context, userID string) ([]Membership, error) {
	return r.list(ctx, `WHERE user_id = ?`, userID)
}

func (r *TenantAccessRepository) ListForTenant(ctx context.Context, tenantID string) ([]Membership, error) {
	return r.list(ctx, `WHERE tenant_id = ?`, tenantID)
}

func (r *TenantAccessRepository) list(ctx context.Context, where string, args ...any) ([]Membership, error) {
	var out []Membership
	err := readWith(ctx, r.engine, r.tx, func(q Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT user_id, tenant_id, is_default
			FROM user_tenant_access
			`+where+`
			ORDER BY is_default DESC, tenant_id
		`, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = []Membership{}
		for rows.Next() {
			var m Membership
			if err := rows.Scan(&m.UserID, &m.TenantID, &m.IsDefault); err != nil {
				return fmt.Errorf("scan row: %w", err)
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list tenant access: %w", err)
	}
	return out, nil
}

// ReplaceForUser sets the user's tenant memberships to exactly memberships.
// At most one membership may be the default.
func (r *TenantAccessRepository) ReplaceForUser(ctx context.Context, userID string, memberships []Membership) error {
	if err := required("user_id", userID); err != nil {
		return fmt.Errorf("replace tenant access: %w", err)
	}
	defaults := 0
	rows := make([]Membership, len(memberships))
	for i, m := range memberships {
		if m.UserID == "" {
			m.UserID = userID
		}
		if m.UserID != userID {
			return fmt.Errorf("replace tenant access: %w", invalid("user_id", "membership belongs to a different user"))
		}
		if err := required("tenant_id", m.TenantID); err != nil {
			return fmt.Errorf("replace tenant access: %w", err)
		}
		if m.IsDefault {
			defaults++
		}
		rows[i] = m
	}
	if defaults > 1 {
		return fmt.Errorf("replace tenant access: %w", invalid("is_default", "only one default tenant is allowed"))
	}

	err := writeWith(ctx, r.engine, r.tx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_tenant_access WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("delete previous set: %w", err)
		}
		for _, m := range rows {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO user_tenant_access(user_id, tenant_id, is_default)
				VALUES(?, ?, ?)
			`, m.UserID, m.TenantID, m.IsDefault)
			if err != nil {
				return classify(err, "user_tenant_access")
			}
		}
		tx.Publish(notify.Data(KindMembership))
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace tenant access: %w", err)
	}
	return nil
}

func readWith(ctx context.Context, engine *Engine, tx *Tx, fn func(q Querier) error) error {
	if tx != nil {
		return fn(tx)
	}
	return engine.Read(ctx, fn)
}

func writeWith(ctx context.Context, engine *Engine, tx *Tx, fn func(tx *Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	return engine.Write(ctx, fn)
}
