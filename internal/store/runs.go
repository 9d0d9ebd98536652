package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"curio/internal/core"
)

// StartRun opens a run record in the running state.
func (d *DB) StartRun(ctx context.Context) (*core.RunRecord, error) {
	run := &core.RunRecord{
		ID:        uuid.New().String(),
		Status:    core.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, started_at) VALUES ($1, $2, $3)`,
		run.ID, string(run.Status), run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	return run, nil
}

// FinishRun closes a run with its terminal status and summary.
func (d *DB) FinishRun(ctx context.Context, id string, status core.RunStatus, duration time.Duration, summary string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE runs SET status = $2, duration_ms = $3, summary = $4 WHERE id = $1`,
		id, string(status), duration.Milliseconds(), summary)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	return nil
}

// AppendRunEvent persists one phase-level event for a run. The payload
// must go over the wire as text: lib/pq encodes []byte parameters as
// bytea hex, which the jsonb column rejects.
func (d *DB) AppendRunEvent(ctx context.Context, runID, phase, level, message string, data []byte) error {
	payload := sql.NullString{String: string(data), Valid: len(data) > 0}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, phase, level, message, data)
		VALUES ($1, $2, $3, $4, $5)`,
		runID, phase, level, message, payload)
	if err != nil {
		return fmt.Errorf("failed to append run event: %w", err)
	}
	return nil
}

// GetRun returns one run by id, or nil when absent.
func (d *DB) GetRun(ctx context.Context, id string) (*core.RunRecord, error) {
	var run core.RunRecord
	var status string
	var durationMS int64
	err := d.db.QueryRowContext(ctx, `
		SELECT id, status, started_at, duration_ms, summary FROM runs WHERE id = $1`, id).
		Scan(&run.ID, &status, &run.StartedAt, &durationMS, &run.Summary)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	run.Status = core.RunStatus(status)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}

// ListRuns returns recent runs newest first.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]core.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, status, started_at, duration_ms, summary
		FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []core.RunRecord
	for rows.Next() {
		var run core.RunRecord
		var status string
		var durationMS int64
		if err := rows.Scan(&run.ID, &status, &run.StartedAt, &durationMS, &run.Summary); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Status = core.RunStatus(status)
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
