package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/amanthanvi/quarters/internal/notify"
)

// GlobalSettings is the tenant id under which process-wide settings live.
const GlobalSettings = ""

type SettingsRepository struct {
	engine *Engine
	tx     *Tx
}

func (r *SettingsRepository) Tx(tx *Tx) *SettingsRepository {
	return &SettingsRepository{engine: r.engine, tx: tx}
}

// Get returns ErrNotFound when the key has never been set.
func (r *SettingsRepository) Get(ctx context.Context, tenantID, key string) (string, error) {
	var value string
	err := readWith(ctx, r.engine, r.tx, func(q Querier) error {
		return q.QueryRowContext(ctx, `SELECT value FROM settings WHERE tenant_id = ? AND key = ?`, tenantID, key).Scan(&value)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("get setting %s: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

func (r *SettingsRepository) Set(ctx context.Context, tenantID, key, value string) error {
	if err := required("key", key); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	err := writeWith(ctx, r.engine, r.tx, func(tx *Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings(tenant_id, key, value, updated_at) VALUES(?, ?, ?, ?)
			ON CONFLICT(tenant_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, tenantID, key, value, fmtTime(nowUTC()))
		if err != nil {
			return classify(err, "settings")
		}
		tx.Publish(notify.Settings(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (r *SettingsRepository) All(ctx context.Context, tenantID string) (map[string]string, error) {
	out := map[string]string{}
	err := readWith(ctx, r.engine, r.tx, func(q Querier) error {
		rows, err := q.QueryContext(ctx, `SELECT key, value FROM settings WHERE tenant_id = ?`, tenantID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var key, value string
			if err := rows.Scan(&key, &value); err != nil {
				return fmt.Errorf("scan row: %w", err)
			}
			out[key] = value
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return out, nil
}
