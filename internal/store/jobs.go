package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"curio/internal/core"
)

// EmbeddingJob is one queued (re-)embedding request. Jobs survive provider
// outages and are drained at the start of each pipeline run.
type EmbeddingJob struct {
	ID       string
	Kind     core.RefKind
	RefID    string
	Attempts int
}

// EnqueueEmbeddingJob queues an embedding computation. Queueing an already
// queued key is a no-op.
func (d *DB) EnqueueEmbeddingJob(ctx context.Context, kind core.RefKind, refID string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO embedding_jobs (id, kind, ref_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, ref_id) DO NOTHING`,
		uuid.New().String(), string(kind), refID)
	if err != nil && !isUniqueViolation(err) {
		return fmt.Errorf("failed to enqueue embedding job %s/%s: %w", kind, refID, err)
	}
	return nil
}

// PendingEmbeddingJobs returns queued jobs oldest first.
func (d *DB) PendingEmbeddingJobs(ctx context.Context, limit int) ([]EmbeddingJob, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, kind, ref_id, attempts
		FROM embedding_jobs
		ORDER BY created_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedding jobs: %w", err)
	}
	defer rows.Close()

	var jobs []EmbeddingJob
	for rows.Next() {
		var j EmbeddingJob
		var kind string
		if err := rows.Scan(&j.ID, &kind, &j.RefID, &j.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan embedding job: %w", err)
		}
		j.Kind = core.RefKind(kind)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// CompleteEmbeddingJob removes a finished job.
func (d *DB) CompleteEmbeddingJob(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM embedding_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to complete embedding job %s: %w", id, err)
	}
	return nil
}

// BumpEmbeddingJob records a failed attempt; the job stays queued for the
// next run.
func (d *DB) BumpEmbeddingJob(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE embedding_jobs SET attempts = attempts + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to bump embedding job %s: %w", id, err)
	}
	return nil
}
