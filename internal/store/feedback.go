package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"curio/internal/core"
)

// RecordFeedback appends one engagement event and, for flag-bearing
// actions, mirrors it onto the score row.
func (d *DB) RecordFeedback(ctx context.Context, readerID, articleID string, action core.FeedbackAction) (*core.FeedbackEvent, error) {
	ev := &core.FeedbackEvent{
		ID:        uuid.New().String(),
		ReaderID:  readerID,
		ArticleID: articleID,
		Action:    action,
		CreatedAt: time.Now().UTC(),
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO feedback_events (id, reader_id, article_id, action, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.ReaderID, ev.ArticleID, string(ev.Action), ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record feedback: %w", err)
	}

	switch action {
	case core.ActionLike:
		err = d.SetEngagement(ctx, readerID, articleID, "liked", true)
	case core.ActionRead:
		err = d.SetEngagement(ctx, readerID, articleID, "read", true)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// MeaningfulFeedbackCount counts a reader's like/skip/read events. Clicks
// are stored but never counted toward the learning trigger.
func (d *DB) MeaningfulFeedbackCount(ctx context.Context, readerID string) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM feedback_events
		WHERE reader_id = $1 AND action IN ('like', 'skip', 'read')`, readerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return n, nil
}

// RecentMeaningfulFeedback returns the reader's newest meaningful events,
// newest first, up to limit.
func (d *DB) RecentMeaningfulFeedback(ctx context.Context, readerID string, limit int) ([]core.FeedbackEvent, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, reader_id, article_id, action, created_at
		FROM feedback_events
		WHERE reader_id = $1 AND action IN ('like', 'skip', 'read')
		ORDER BY created_at DESC, id
		LIMIT $2`, readerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var events []core.FeedbackEvent
	for rows.Next() {
		var ev core.FeedbackEvent
		var action string
		if err := rows.Scan(&ev.ID, &ev.ReaderID, &ev.ArticleID, &action, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		ev.Action = core.FeedbackAction(action)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LearnerState returns the count watermark from the last learning run.
// A reader who never ran reports zero.
func (d *DB) LearnerState(ctx context.Context, readerID string) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT last_feedback_count FROM learner_state WHERE reader_id = $1`, readerID).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get learner state: %w", err)
	}
	return n, nil
}

// ReplacePreferences atomically swaps a reader's learned preference set and
// advances the learner watermark. An empty slice clears the set.
func (d *DB) ReplacePreferences(ctx context.Context, readerID string, prefs []core.LearnedPreference, feedbackCount int) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin preference replace: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM learned_preferences WHERE reader_id = $1`, readerID)
	if err != nil {
		return fmt.Errorf("failed to clear preferences: %w", err)
	}

	for _, p := range prefs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO learned_preferences
				(id, reader_id, preference_text, confidence, derived_from_count, date_learned)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			p.ID, readerID, p.Text, p.Confidence, p.DerivedFrom, p.DateLearned)
		if err != nil {
			return fmt.Errorf("failed to insert preference: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO learner_state (reader_id, last_feedback_count, last_run)
		VALUES ($1, $2, NOW())
		ON CONFLICT (reader_id) DO UPDATE SET
			last_feedback_count = EXCLUDED.last_feedback_count,
			last_run = EXCLUDED.last_run`,
		readerID, feedbackCount)
	if err != nil {
		return fmt.Errorf("failed to advance learner state: %w", err)
	}

	return tx.Commit()
}

// LearnedPreferences returns a reader's current preference set in
// confidence order.
func (d *DB) LearnedPreferences(ctx context.Context, readerID string) ([]core.LearnedPreference, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, reader_id, preference_text, confidence, derived_from_count, date_learned
		FROM learned_preferences
		WHERE reader_id = $1
		ORDER BY confidence DESC, id`, readerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()

	var prefs []core.LearnedPreference
	for rows.Next() {
		var p core.LearnedPreference
		if err := rows.Scan(&p.ID, &p.ReaderID, &p.Text, &p.Confidence,
			&p.DerivedFrom, &p.DateLearned); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}
