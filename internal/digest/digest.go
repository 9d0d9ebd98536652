// Package digest turns a reader's scored-but-unassigned articles into a
// bounded, ordered digest.
package digest

import (
	"context"
	"log/slog"
	"sort"

	"curio/internal/core"
)

const (
	serendipityAdmitMax   = 2
	serendipityAdmitScore = 0.4
)

// Options bound the assembled digest.
type Options struct {
	MinRelevance float64 // Relevance at or above which an article qualifies
	MaxArticles  int     // Hard cap on the digest
}

// Store is the persistence surface the assembler needs.
type Store interface {
	UnassignedScores(ctx context.Context, readerID string) ([]core.ReaderScore, error)
	CreateDigest(ctx context.Context, readerID string, articleIDs []string) (*core.Digest, error)
}

// Assemble builds one digest for a reader, or returns nil when nothing
// qualifies — an empty digest is never created.
func Assemble(ctx context.Context, db Store, readerID string, opts Options, log *slog.Logger) (*core.Digest, error) {
	scores, err := db.UnassignedScores(ctx, readerID)
	if err != nil {
		return nil, err
	}

	selected := Pick(scores, opts)
	if len(selected) == 0 {
		log.Info("no digest created", "reader", readerID, "scored", len(scores))
		return nil, nil
	}

	dg, err := db.CreateDigest(ctx, readerID, selected)
	if err != nil {
		return nil, err
	}
	log.Info("digest assembled", "reader", readerID, "digest", dg.ID, "articles", dg.ArticleCount)
	return dg, nil
}

// Pick orders article ids for one digest: everything at or above the
// relevance floor, plus up to 2 serendipity-flagged articles scoring at
// least 0.4 that didn't already qualify, capped at MaxArticles and
// ordered by relevance descending.
func Pick(scores []core.ReaderScore, opts Options) []string {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Relevance != scores[j].Relevance {
			return scores[i].Relevance > scores[j].Relevance
		}
		return scores[i].ArticleID < scores[j].ArticleID
	})

	var ids []string
	taken := make(map[string]bool, len(scores))
	for _, s := range scores {
		if s.Relevance >= opts.MinRelevance {
			ids = append(ids, s.ArticleID)
			taken[s.ArticleID] = true
		}
	}

	admitted := 0
	for _, s := range scores {
		if admitted == serendipityAdmitMax {
			break
		}
		if taken[s.ArticleID] || !s.Serendipity || s.Relevance < serendipityAdmitScore {
			continue
		}
		ids = append(ids, s.ArticleID)
		taken[s.ArticleID] = true
		admitted++
	}

	if opts.MaxArticles > 0 && len(ids) > opts.MaxArticles {
		ids = ids[:opts.MaxArticles]
	}
	return ids
}
