package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// Get returns the raw value stored under key.
func (r *Repository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, normalizeKey(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set upserts key. Last writer wins.
func (r *Repository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at`,
		normalizeKey(key),
		value,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Remove deletes key; removing a missing key is not an error.
func (r *Repository) Remove(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, normalizeKey(key))
	return err
}

func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}
