package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"curio/internal/core"
)

// CreateDigest inserts a digest shell, assigns the given articles to it
// with one set-oriented update and records the final count, all in one
// transaction.
func (d *DB) CreateDigest(ctx context.Context, readerID string, articleIDs []string) (*core.Digest, error) {
	digest := &core.Digest{
		ID:        uuid.New().String(),
		ReaderID:  readerID,
		Generated: time.Now().UTC(),
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin digest creation: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO digests (id, reader_id, generated, article_count)
		VALUES ($1, $2, $3, 0)`,
		digest.ID, digest.ReaderID, digest.Generated)
	if err != nil {
		return nil, fmt.Errorf("failed to create digest: %w", err)
	}

	if len(articleIDs) > 0 {
		result, err := tx.ExecContext(ctx, `
			UPDATE reader_scores SET digest_id = $2
			WHERE reader_id = $1 AND article_id = ANY($3) AND digest_id IS NULL`,
			readerID, digest.ID, pq.Array(articleIDs))
		if err != nil {
			return nil, fmt.Errorf("failed to assign articles to digest: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to count digest assignment: %w", err)
		}
		digest.ArticleCount = int(n)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE digests SET article_count = $2 WHERE id = $1`,
		digest.ID, digest.ArticleCount)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize digest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit digest: %w", err)
	}
	return digest, nil
}

// GetDigest returns one digest by id, or nil when absent.
func (d *DB) GetDigest(ctx context.Context, id string) (*core.Digest, error) {
	var dg core.Digest
	err := d.db.QueryRowContext(ctx, `
		SELECT id, reader_id, generated, article_count FROM digests WHERE id = $1`, id).
		Scan(&dg.ID, &dg.ReaderID, &dg.Generated, &dg.ArticleCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get digest %s: %w", id, err)
	}
	return &dg, nil
}

// LatestDigest returns a reader's most recent digest, or nil when the
// reader has none yet.
func (d *DB) LatestDigest(ctx context.Context, readerID string) (*core.Digest, error) {
	var dg core.Digest
	err := d.db.QueryRowContext(ctx, `
		SELECT id, reader_id, generated, article_count
		FROM digests WHERE reader_id = $1
		ORDER BY generated DESC LIMIT 1`, readerID).
		Scan(&dg.ID, &dg.ReaderID, &dg.Generated, &dg.ArticleCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest digest: %w", err)
	}
	return &dg, nil
}

// ListDigests returns a reader's digests newest first.
func (d *DB) ListDigests(ctx context.Context, readerID string, limit int) ([]core.Digest, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, reader_id, generated, article_count
		FROM digests WHERE reader_id = $1
		ORDER BY generated DESC LIMIT $2`, readerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list digests: %w", err)
	}
	defer rows.Close()

	var digests []core.Digest
	for rows.Next() {
		var dg core.Digest
		if err := rows.Scan(&dg.ID, &dg.ReaderID, &dg.Generated, &dg.ArticleCount); err != nil {
			return nil, fmt.Errorf("failed to scan digest: %w", err)
		}
		digests = append(digests, dg)
	}
	return digests, rows.Err()
}
