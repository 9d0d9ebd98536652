package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"curio/internal/core"
)

// CreateSource inserts a feed source. The ID is deterministic on the URL so
// re-adding the same feed is idempotent.
func (d *DB) CreateSource(ctx context.Context, url, title string) (*core.Source, error) {
	source := &core.Source{
		ID:        uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String(),
		URL:       url,
		Title:     title,
		Active:    true,
		DateAdded: time.Now().UTC(),
	}

	query := `
		INSERT INTO sources (id, url, title, active, date_added)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (url) DO UPDATE SET title = EXCLUDED.title, active = TRUE`
	if _, err := d.db.ExecContext(ctx, query,
		source.ID, source.URL, source.Title, source.Active, source.DateAdded); err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}
	return source, nil
}

// ListSources returns every source, active first.
func (d *DB) ListSources(ctx context.Context) ([]core.Source, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, url, title, active, last_error, date_added
		FROM sources
		ORDER BY active DESC, date_added`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()
	return scanSources(rows)
}

// SourcesForReader returns the active sources a reader subscribes to.
func (d *DB) SourcesForReader(ctx context.Context, readerID string) ([]core.Source, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT s.id, s.url, s.title, s.active, s.last_error, s.date_added
		FROM sources s
		INNER JOIN subscriptions sub ON sub.source_id = s.id
		WHERE sub.reader_id = $1 AND s.active
		ORDER BY s.date_added`, readerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources for reader %s: %w", readerID, err)
	}
	defer rows.Close()
	return scanSources(rows)
}

// ActiveSources returns every active source across all subscriptions.
func (d *DB) ActiveSources(ctx context.Context) ([]core.Source, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, url, title, active, last_error, date_added
		FROM sources
		WHERE active
		ORDER BY date_added`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sources: %w", err)
	}
	defer rows.Close()
	return scanSources(rows)
}

// SetSourceError records the last fetch error for a source; pass an empty
// string to clear it after a successful fetch.
func (d *DB) SetSourceError(ctx context.Context, sourceID, lastError string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE sources SET last_error = $2 WHERE id = $1`, sourceID, lastError)
	if err != nil {
		return fmt.Errorf("failed to record source error: %w", err)
	}
	return nil
}

// Subscribe links a reader to a source. Subscribing twice is a no-op.
func (d *DB) Subscribe(ctx context.Context, readerID, sourceID string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO subscriptions (reader_id, source_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, readerID, sourceID)
	if err != nil {
		return fmt.Errorf("failed to subscribe reader %s to source %s: %w", readerID, sourceID, err)
	}
	return nil
}

// SubscriberIDs returns the active readers subscribed to a source.
func (d *DB) SubscriberIDs(ctx context.Context, sourceID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT r.id
		FROM readers r
		INNER JOIN subscriptions sub ON sub.reader_id = r.id
		WHERE sub.source_id = $1 AND r.active`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers for source %s: %w", sourceID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanSources(rows *sql.Rows) ([]core.Source, error) {
	var sources []core.Source
	for rows.Next() {
		var s core.Source
		if err := rows.Scan(&s.ID, &s.URL, &s.Title, &s.Active, &s.LastError, &s.DateAdded); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}
