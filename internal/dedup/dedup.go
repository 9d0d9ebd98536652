// Package dedup collapses near-identical articles within one ingestion
// batch using pairwise embedding similarity.
package dedup

import (
	"context"
	"log/slog"

	"curio/internal/core"
	"curio/internal/vectorstore"
)

// Marker persists the duplicate relation.
type Marker interface {
	MarkDuplicate(ctx context.Context, id, canonicalID string) error
}

// Pair records one collapse: Duplicate points at Canonical.
type Pair struct {
	Duplicate string
	Canonical string
}

// Mark compares every unmarked pair in batch order against the threshold.
// On a match the later item collapses onto the earlier one; both keep
// their stored embeddings. Marked articles are removed from the returned
// batch so they never reach per-reader scoring.
func Mark(ctx context.Context, db Marker, articles []core.Article, vectors map[string][]float64, threshold float64, log *slog.Logger) ([]core.Article, []Pair, error) {
	marked := make([]bool, len(articles))
	var pairs []Pair

	for i := 0; i < len(articles); i++ {
		if marked[i] {
			continue
		}
		vi, ok := vectors[articles[i].ID]
		if !ok {
			continue
		}
		for j := i + 1; j < len(articles); j++ {
			if marked[j] {
				continue
			}
			vj, ok := vectors[articles[j].ID]
			if !ok {
				continue
			}
			if vectorstore.Cosine(vi, vj) < threshold {
				continue
			}

			if err := db.MarkDuplicate(ctx, articles[j].ID, articles[i].ID); err != nil {
				return nil, nil, err
			}
			marked[j] = true
			pairs = append(pairs, Pair{Duplicate: articles[j].ID, Canonical: articles[i].ID})
			log.Debug("semantic duplicate",
				"duplicate", articles[j].ID, "canonical", articles[i].ID)
		}
	}

	var kept []core.Article
	for i, a := range articles {
		if !marked[i] {
			kept = append(kept, a)
		}
	}
	return kept, pairs, nil
}
