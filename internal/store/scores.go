package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"curio/internal/core"
)

// UpsertScores writes a batch of per-reader scores inside one transaction.
// Re-scoring an article overwrites the scoring fields but never the
// engagement flags or digest assignment.
func (d *DB) UpsertScores(ctx context.Context, scores []core.ReaderScore) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin score upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reader_scores
			(reader_id, article_id, embedding_score, best_interest_id,
			 relevance, reason, serendipity, scored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (reader_id, article_id) DO UPDATE SET
			embedding_score = EXCLUDED.embedding_score,
			best_interest_id = EXCLUDED.best_interest_id,
			relevance = EXCLUDED.relevance,
			reason = EXCLUDED.reason,
			serendipity = EXCLUDED.serendipity,
			scored_at = EXCLUDED.scored_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare score upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range scores {
		_, err := stmt.ExecContext(ctx, s.ReaderID, s.ArticleID, s.EmbeddingScore,
			s.BestInterestID, s.Relevance, s.Reason, s.Serendipity, s.ScoredAt)
		if err != nil {
			return fmt.Errorf("failed to upsert score %s/%s: %w", s.ReaderID, s.ArticleID, err)
		}
	}
	return tx.Commit()
}

// UpdateRelevance records the generative judgment for one score row.
func (d *DB) UpdateRelevance(ctx context.Context, readerID, articleID string, relevance float64, reason string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE reader_scores SET relevance = $3, reason = $4
		WHERE reader_id = $1 AND article_id = $2`,
		readerID, articleID, relevance, reason)
	if err != nil {
		return fmt.Errorf("failed to update relevance %s/%s: %w", readerID, articleID, err)
	}
	return nil
}

// UnassignedScores returns a reader's scored-but-undelivered rows.
func (d *DB) UnassignedScores(ctx context.Context, readerID string) ([]core.ReaderScore, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT reader_id, article_id, embedding_score, best_interest_id,
		       relevance, reason, serendipity, COALESCE(digest_id, ''),
		       liked, read, bookmarked, archived, scored_at
		FROM reader_scores
		WHERE reader_id = $1 AND digest_id IS NULL
		ORDER BY scored_at, article_id`, readerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unassigned scores: %w", err)
	}
	defer rows.Close()
	return collectScores(rows)
}

// ScoresForDigest returns a digest's rows ordered by relevance descending,
// ties broken by article id for a stable presentation order.
func (d *DB) ScoresForDigest(ctx context.Context, digestID string) ([]core.ReaderScore, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT reader_id, article_id, embedding_score, best_interest_id,
		       relevance, reason, serendipity, COALESCE(digest_id, ''),
		       liked, read, bookmarked, archived, scored_at
		FROM reader_scores
		WHERE digest_id = $1
		ORDER BY relevance DESC, article_id`, digestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list digest scores: %w", err)
	}
	defer rows.Close()
	return collectScores(rows)
}

// SetEngagement flips one engagement flag on a score row. Allowed flags
// mirror the feedback actions; click has no stored flag.
func (d *DB) SetEngagement(ctx context.Context, readerID, articleID, flag string, value bool) error {
	var column string
	switch flag {
	case "liked", "read", "bookmarked", "archived":
		column = flag
	default:
		return fmt.Errorf("unknown engagement flag %q", flag)
	}
	_, err := d.db.ExecContext(ctx,
		`UPDATE reader_scores SET `+column+` = $3 WHERE reader_id = $1 AND article_id = $2`,
		readerID, articleID, value)
	if err != nil {
		return fmt.Errorf("failed to set %s on %s/%s: %w", column, readerID, articleID, err)
	}
	return nil
}

// ScoredArticleIDs filters ids down to those the reader already has a score
// row for.
func (d *DB) ScoredArticleIDs(ctx context.Context, readerID string, ids []string) (map[string]bool, error) {
	scored := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return scored, nil
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT article_id FROM reader_scores
		WHERE reader_id = $1 AND article_id = ANY($2)`,
		readerID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to check scored articles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan scored id: %w", err)
		}
		scored[id] = true
	}
	return scored, rows.Err()
}

func collectScores(rows *sql.Rows) ([]core.ReaderScore, error) {
	var scores []core.ReaderScore
	for rows.Next() {
		var s core.ReaderScore
		err := rows.Scan(&s.ReaderID, &s.ArticleID, &s.EmbeddingScore, &s.BestInterestID,
			&s.Relevance, &s.Reason, &s.Serendipity, &s.DigestID,
			&s.Liked, &s.Read, &s.Bookmarked, &s.Archived, &s.ScoredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}
