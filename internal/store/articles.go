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

// articleNamespace makes article IDs deterministic per (source, external id),
// so a re-fetched item maps to the same row.
var articleNamespace = uuid.MustParse("7f1c9e52-3a4b-4c8d-9e0f-1a2b3c4d5e6f")

// InsertArticle persists a raw feed item. It returns false without error
// when the article already exists; a concurrent duplicate insert is benign.
func (d *DB) InsertArticle(ctx context.Context, sourceID string, raw core.RawArticle) (*core.Article, bool, error) {
	article := &core.Article{
		ID:         uuid.NewSHA1(articleNamespace, []byte(sourceID+"|"+raw.ExternalID)).String(),
		SourceID:   sourceID,
		ExternalID: raw.ExternalID,
		Title:      raw.Title,
		URL:        raw.URL,
		Content:    raw.Content,
		Published:  raw.Published,
		Ingested:   time.Now().UTC(),
	}

	var published any
	if !raw.Published.IsZero() {
		published = raw.Published
	}

	result, err := d.db.ExecContext(ctx, `
		INSERT INTO articles (id, source_id, external_id, title, url, content, published, ingested)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_id, external_id) DO NOTHING`,
		article.ID, article.SourceID, article.ExternalID, article.Title,
		article.URL, article.Content, published, article.Ingested)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to insert article: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check article insert: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}
	return article, true, nil
}

// GetArticle returns one article by id, or nil when absent.
func (d *DB) GetArticle(ctx context.Context, id string) (*core.Article, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, source_id, external_id, title, url, content, published, ingested, duplicate_of
		FROM articles WHERE id = $1`, id)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article %s: %w", id, err)
	}
	return a, nil
}

// GetArticles returns the requested articles keyed by id. Missing ids are
// simply absent from the map.
func (d *DB) GetArticles(ctx context.Context, ids []string) (map[string]*core.Article, error) {
	out := make(map[string]*core.Article, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, source_id, external_id, title, url, content, published, ingested, duplicate_of
		FROM articles WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get articles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// ArticlesIngestedSince returns non-duplicate articles ingested at or after
// the cutoff, in stable ingestion order.
func (d *DB) ArticlesIngestedSince(ctx context.Context, cutoff time.Time) ([]core.Article, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, source_id, external_id, title, url, content, published, ingested, duplicate_of
		FROM articles
		WHERE ingested >= $1 AND duplicate_of = ''
		ORDER BY ingested, id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent articles: %w", err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

// ArticlesMissingEmbeddings filters the given ids down to those with no
// embedding row, preserving input order.
func (d *DB) ArticlesMissingEmbeddings(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT ref_id FROM embeddings WHERE kind = $1 AND ref_id = ANY($2)`,
		string(core.RefArticle), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to check article embeddings: %w", err)
	}
	defer rows.Close()

	have := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan embedding ref: %w", err)
		}
		have[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, id := range ids {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// MarkDuplicate records that article id collapses onto canonicalID.
func (d *DB) MarkDuplicate(ctx context.Context, id, canonicalID string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE articles SET duplicate_of = $2 WHERE id = $1`, id, canonicalID)
	if err != nil {
		return fmt.Errorf("failed to mark duplicate %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*core.Article, error) {
	var a core.Article
	var published sql.NullTime
	err := row.Scan(&a.ID, &a.SourceID, &a.ExternalID, &a.Title, &a.URL,
		&a.Content, &published, &a.Ingested, &a.DuplicateOf)
	if err != nil {
		return nil, err
	}
	if published.Valid {
		a.Published = published.Time
	}
	return &a, nil
}

func collectArticles(rows *sql.Rows) ([]core.Article, error) {
	var articles []core.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}
