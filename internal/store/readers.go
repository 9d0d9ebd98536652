package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"curio/internal/core"
)

// CreateReader inserts a reader account.
func (d *DB) CreateReader(ctx context.Context, name string) (*core.Reader, error) {
	reader := &core.Reader{
		ID:        uuid.New().String(),
		Name:      name,
		Active:    true,
		DateAdded: time.Now().UTC(),
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO readers (id, name, active, date_added)
		VALUES ($1, $2, $3, $4)`,
		reader.ID, reader.Name, reader.Active, reader.DateAdded)
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	return reader, nil
}

// GetReader returns a reader by id, or nil when absent.
func (d *DB) GetReader(ctx context.Context, id string) (*core.Reader, error) {
	var r core.Reader
	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, active, date_added FROM readers WHERE id = $1`, id).
		Scan(&r.ID, &r.Name, &r.Active, &r.DateAdded)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reader %s: %w", id, err)
	}
	return &r, nil
}

// ActiveReaders returns every active reader in stable creation order.
func (d *DB) ActiveReaders(ctx context.Context) ([]core.Reader, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, active, date_added
		FROM readers
		WHERE active
		ORDER BY date_added`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active readers: %w", err)
	}
	defer rows.Close()

	var readers []core.Reader
	for rows.Next() {
		var r core.Reader
		if err := rows.Scan(&r.ID, &r.Name, &r.Active, &r.DateAdded); err != nil {
			return nil, fmt.Errorf("failed to scan reader: %w", err)
		}
		readers = append(readers, r)
	}
	return readers, rows.Err()
}
