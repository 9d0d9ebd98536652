package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"curio/internal/core"
)

// CreateInterest adds a positive preference for a reader and queues its
// embedding.
func (d *DB) CreateInterest(ctx context.Context, readerID, category, description string, weight float64) (*core.Interest, error) {
	if weight == 0 {
		weight = 1.0
	}
	in := &core.Interest{
		ID:          uuid.New().String(),
		ReaderID:    readerID,
		Category:    category,
		Description: description,
		Weight:      weight,
		Active:      true,
		DateAdded:   time.Now().UTC(),
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO interests (id, reader_id, category, description, weight, active, date_added)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		in.ID, in.ReaderID, in.Category, in.Description, in.Weight, in.Active, in.DateAdded)
	if err != nil {
		return nil, fmt.Errorf("failed to create interest: %w", err)
	}

	if err := d.EnqueueEmbeddingJob(ctx, core.RefInterest, in.ID); err != nil {
		return nil, err
	}
	return in, nil
}

// UpdateInterest edits an interest. Changing category or description
// invalidates the stored embedding, so the row is deleted and a re-embed
// job queued; a weight-only change touches neither.
func (d *DB) UpdateInterest(ctx context.Context, id, category, description string, weight float64) error {
	var prevCategory, prevDescription string
	err := d.db.QueryRowContext(ctx,
		`SELECT category, description FROM interests WHERE id = $1`, id).
		Scan(&prevCategory, &prevDescription)
	if err == sql.ErrNoRows {
		return fmt.Errorf("interest %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to load interest %s: %w", id, err)
	}

	textChanged := category != prevCategory || description != prevDescription
	if textChanged {
		// The expansion derives from the old text; drop it with the embedding.
		_, err = d.db.ExecContext(ctx, `
			UPDATE interests SET category = $2, description = $3, weight = $4, expanded = ''
			WHERE id = $1`, id, category, description, weight)
	} else {
		_, err = d.db.ExecContext(ctx, `
			UPDATE interests SET category = $2, description = $3, weight = $4
			WHERE id = $1`, id, category, description, weight)
	}
	if err != nil {
		return fmt.Errorf("failed to update interest %s: %w", id, err)
	}

	if textChanged {
		if err := d.invalidateEmbedding(ctx, core.RefInterest, id); err != nil {
			return err
		}
	}
	return nil
}

// SetInterestExpanded stores the generated expansion for an interest.
// The expansion becomes the canonical embedding text, so the stored
// embedding is invalidated and a re-embed queued.
func (d *DB) SetInterestExpanded(ctx context.Context, id, expanded string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE interests SET expanded = $2 WHERE id = $1`, id, expanded)
	if err != nil {
		return fmt.Errorf("failed to set interest expansion %s: %w", id, err)
	}
	return d.invalidateEmbedding(ctx, core.RefInterest, id)
}

// DeactivateInterest soft-deletes an interest. The embedding row is kept;
// an inactive interest is simply excluded from scoring.
func (d *DB) DeactivateInterest(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE interests SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate interest %s: %w", id, err)
	}
	return nil
}

// GetInterest returns one interest by id, or nil when absent.
func (d *DB) GetInterest(ctx context.Context, id string) (*core.Interest, error) {
	var in core.Interest
	err := d.db.QueryRowContext(ctx, `
		SELECT id, reader_id, category, description, expanded, weight, active, date_added
		FROM interests WHERE id = $1`, id).
		Scan(&in.ID, &in.ReaderID, &in.Category, &in.Description, &in.Expanded,
			&in.Weight, &in.Active, &in.DateAdded)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get interest %s: %w", id, err)
	}
	return &in, nil
}

// ActiveInterests returns a reader's active interests in creation order.
func (d *DB) ActiveInterests(ctx context.Context, readerID string) ([]core.Interest, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, reader_id, category, description, expanded, weight, active, date_added
		FROM interests
		WHERE reader_id = $1 AND active
		ORDER BY date_added, id`, readerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list interests: %w", err)
	}
	defer rows.Close()

	var interests []core.Interest
	for rows.Next() {
		var in core.Interest
		if err := rows.Scan(&in.ID, &in.ReaderID, &in.Category, &in.Description,
			&in.Expanded, &in.Weight, &in.Active, &in.DateAdded); err != nil {
			return nil, fmt.Errorf("failed to scan interest: %w", err)
		}
		interests = append(interests, in)
	}
	return interests, rows.Err()
}

// CreateExclusion adds a negative preference for a reader and queues its
// embedding.
func (d *DB) CreateExclusion(ctx context.Context, readerID, category, description string) (*core.Exclusion, error) {
	ex := &core.Exclusion{
		ID:          uuid.New().String(),
		ReaderID:    readerID,
		Category:    category,
		Description: description,
		Active:      true,
		DateAdded:   time.Now().UTC(),
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO exclusions (id, reader_id, category, description, active, date_added)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ex.ID, ex.ReaderID, ex.Category, ex.Description, ex.Active, ex.DateAdded)
	if err != nil {
		return nil, fmt.Errorf("failed to create exclusion: %w", err)
	}

	if err := d.EnqueueEmbeddingJob(ctx, core.RefExclusion, ex.ID); err != nil {
		return nil, err
	}
	return ex, nil
}

// GetExclusion returns one exclusion by id, or nil when absent.
func (d *DB) GetExclusion(ctx context.Context, id string) (*core.Exclusion, error) {
	var ex core.Exclusion
	err := d.db.QueryRowContext(ctx, `
		SELECT id, reader_id, category, description, expanded, active, date_added
		FROM exclusions WHERE id = $1`, id).
		Scan(&ex.ID, &ex.ReaderID, &ex.Category, &ex.Description, &ex.Expanded,
			&ex.Active, &ex.DateAdded)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exclusion %s: %w", id, err)
	}
	return &ex, nil
}

// DeactivateExclusion soft-deletes an exclusion.
func (d *DB) DeactivateExclusion(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE exclusions SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate exclusion %s: %w", id, err)
	}
	return nil
}

// ActiveExclusions returns a reader's active exclusions in creation order.
func (d *DB) ActiveExclusions(ctx context.Context, readerID string) ([]core.Exclusion, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, reader_id, category, description, expanded, active, date_added
		FROM exclusions
		WHERE reader_id = $1 AND active
		ORDER BY date_added, id`, readerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exclusions: %w", err)
	}
	defer rows.Close()

	var exclusions []core.Exclusion
	for rows.Next() {
		var ex core.Exclusion
		if err := rows.Scan(&ex.ID, &ex.ReaderID, &ex.Category, &ex.Description,
			&ex.Expanded, &ex.Active, &ex.DateAdded); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion: %w", err)
		}
		exclusions = append(exclusions, ex)
	}
	return exclusions, rows.Err()
}

// invalidateEmbedding drops the stale embedding row and queues a recompute.
// Ordering matters: deleting first means a crash between the two steps
// leaves the key unembedded, which scoring treats as skip, never as stale.
func (d *DB) invalidateEmbedding(ctx context.Context, kind core.RefKind, refID string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM embeddings WHERE kind = $1 AND ref_id = $2`, string(kind), refID)
	if err != nil {
		return fmt.Errorf("failed to invalidate embedding %s/%s: %w", kind, refID, err)
	}
	return d.EnqueueEmbeddingJob(ctx, kind, refID)
}
