package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// Setting resolution order: reader override, then global override (empty
// reader id), then the caller's default. Values are stored as text.

// SetSetting writes a per-reader override. An empty readerID sets the
// global value.
func (d *DB) SetSetting(ctx context.Context, readerID, key, value string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO settings (reader_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (reader_id, key) DO UPDATE SET value = EXCLUDED.value`,
		readerID, key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes an override, falling back to the next tier.
func (d *DB) DeleteSetting(ctx context.Context, readerID, key string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM settings WHERE reader_id = $1 AND key = $2`, readerID, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// Setting resolves one key for a reader.
func (d *DB) Setting(ctx context.Context, readerID, key, fallback string) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `
		SELECT value FROM settings
		WHERE key = $2 AND reader_id IN ($1, '')
		ORDER BY reader_id DESC
		LIMIT 1`, readerID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("failed to resolve setting %s: %w", key, err)
	}
	return value, nil
}

// SettingFloat resolves a numeric setting; an unparsable stored value
// falls back rather than failing the caller.
func (d *DB) SettingFloat(ctx context.Context, readerID, key string, fallback float64) (float64, error) {
	raw, err := d.Setting(ctx, readerID, key, "")
	if err != nil {
		return fallback, err
	}
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback, nil
	}
	return v, nil
}

// SettingInt resolves an integer setting with the same fallback rule.
func (d *DB) SettingInt(ctx context.Context, readerID, key string, fallback int) (int, error) {
	raw, err := d.Setting(ctx, readerID, key, "")
	if err != nil {
		return fallback, err
	}
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, nil
	}
	return v, nil
}
