package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type AuditFilter struct {
	Action   string
	TargetID string
	ActorID  string
	Since    *time.Time
	Until    *time.Time
	Limit    int
}

// AuditLogRepository adds chain and filter queries to the generic audit log
// repository. Entries are append-only.
type AuditLogRepository struct {
	*Repository[AuditLogEntry]
}

func (r *AuditLogRepository) Tx(tx *Tx) *AuditLogRepository {
	return &AuditLogRepository{Repository: r.Repository.Tx(tx)}
}

// ChainTip returns the event hash of the tenant's most recent entry, or ""
// for an empty chain.
func (r *AuditLogRepository) ChainTip(ctx context.Context, tenantID string) (string, error) {
	var tip string
	err := r.read(ctx, func(q Querier) error {
		return q.QueryRowContext(ctx, `
			SELECT event_hash FROM audit_log WHERE tenant_id = ? ORDER BY rowid DESC LIMIT 1
		`, tenantID).Scan(&tip)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read audit chain tip: %w", err)
	}
	return tip, nil
}

// Walk calls fn for every entry of the tenant's chain in append order,
// reading pageSize entries at a time. A non-nil error from fn stops the walk
// and is returned as is.
func (r *AuditLogRepository) Walk(ctx context.Context, tenantID string, pageSize int, fn func(AuditLogEntry) error) error {
	if pageSize <= 0 {
		pageSize = 1000
	}
	query := `SELECT rowid, ` + r.desc.selectList() + ` FROM audit_log WHERE tenant_id = ? AND rowid > ? ORDER BY rowid ASC LIMIT ?`

	var after int64
	for {
		var page []AuditLogEntry
		err := r.read(ctx, func(q Querier) error {
			rows, err := q.QueryContext(ctx, query, tenantID, after, pageSize)
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				var entry AuditLogEntry
				if err := rows.Scan(append([]any{&after}, r.desc.targets(&entry)...)...); err != nil {
					return fmt.Errorf("scan row: %w", err)
				}
				page = append(page, entry)
			}
			return rows.Err()
		})
		if err != nil {
			return fmt.Errorf("walk audit log: %w", err)
		}
		for _, entry := range page {
			if err := fn(entry); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
	}
}

// List returns entries in append order.
func (r *AuditLogRepository) List(ctx context.Context, scope Scope, filter AuditFilter) ([]AuditLogEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}

	var out []AuditLogEntry
	err := r.read(ctx, func(q Querier) error {
		where, args, err := r.scopeWhere(scope)
		if err != nil {
			return err
		}
		if filter.Action != "" {
			where = append(where, "action = ?")
			args = append(args, filter.Action)
		}
		if filter.TargetID != "" {
			where = append(where, "target_id = ?")
			args = append(args, filter.TargetID)
		}
		if filter.ActorID != "" {
			where = append(where, "actor_id = ?")
			args = append(args, filter.ActorID)
		}
		if filter.Since != nil {
			where = append(where, "created_at >= ?")
			args = append(args, fmtTime(*filter.Since))
		}
		if filter.Until != nil {
			where = append(where, "created_at <= ?")
			args = append(args, fmtTime(*filter.Until))
		}

		query := `SELECT ` + r.desc.selectList() + ` FROM audit_log` + whereClause(where) + ` ORDER BY rowid ASC LIMIT ?`
		rows, err := q.QueryContext(ctx, query, append(args, limit)...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = []AuditLogEntry{}
		for rows.Next() {
			var entry AuditLogEntry
			if err := rows.Scan(r.desc.targets(&entry)...); err != nil {
				return fmt.Errorf("scan row: %w", err)
			}
			out = append(out, entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return out, nil
}
