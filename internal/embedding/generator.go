// Package embedding builds canonical input text per entity kind and turns
// it into stored vectors through a batched external provider.
package embedding

import (
	"context"
	"log/slog"

	"curio/internal/core"
	"curio/internal/store"
)

// Vectors is the slice of the vector store the generator writes through.
type Vectors interface {
	Store(ctx context.Context, kind core.RefKind, id, text string, vector []float64) error
	Has(ctx context.Context, kind core.RefKind, ids []string) (map[string]bool, error)
}

// Jobs is the persistence surface for queued re-embeddings.
type Jobs interface {
	PendingEmbeddingJobs(ctx context.Context, limit int) ([]store.EmbeddingJob, error)
	CompleteEmbeddingJob(ctx context.Context, id string) error
	BumpEmbeddingJob(ctx context.Context, id string) error
	GetArticle(ctx context.Context, id string) (*core.Article, error)
	GetInterest(ctx context.Context, id string) (*core.Interest, error)
	GetExclusion(ctx context.Context, id string) (*core.Exclusion, error)
}

type Generator struct {
	provider Provider
	vectors  Vectors
	maxBatch int
	log      *slog.Logger

	tokensUsed int
}

func NewGenerator(provider Provider, vectors Vectors, maxBatch int, log *slog.Logger) *Generator {
	if maxBatch <= 0 {
		maxBatch = 2048
	}
	return &Generator{provider: provider, vectors: vectors, maxBatch: maxBatch, log: log}
}

// TokensUsed reports accumulated estimated token usage across this
// generator's lifetime.
func (g *Generator) TokensUsed() int { return g.tokensUsed }

// EmbedArticles computes and stores vectors for any of the given articles
// not yet embedded, returning the ones embedded in this call (batch order
// preserved). An article is embedded at most once, ever.
func (g *Generator) EmbedArticles(ctx context.Context, articles []core.Article) ([]core.Article, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	have, err := g.vectors.Has(ctx, core.RefArticle, ids)
	if err != nil {
		return nil, err
	}

	var fresh []core.Article
	var texts []string
	for _, a := range articles {
		if have[a.ID] {
			continue
		}
		fresh = append(fresh, a)
		texts = append(texts, ArticleText(a))
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	// Sequential provider batches; no two in flight at once.
	for start := 0; start < len(fresh); start += g.maxBatch {
		end := min(start+g.maxBatch, len(fresh))

		vectors, tokens, err := g.provider.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		g.tokensUsed += tokens

		for i, vec := range vectors {
			a := fresh[start+i]
			if err := g.vectors.Store(ctx, core.RefArticle, a.ID, texts[start+i], vec); err != nil {
				return nil, err
			}
		}
	}

	g.log.Info("articles embedded",
		"requested", len(articles),
		"embedded", len(fresh),
		"tokens_estimated", g.tokensUsed,
	)
	return fresh, nil
}

// EmbedText computes and stores a single vector, used for interests and
// exclusions where batching buys nothing.
func (g *Generator) EmbedText(ctx context.Context, kind core.RefKind, id, text string) error {
	vectors, tokens, err := g.provider.Embed(ctx, []string{text})
	if err != nil {
		return err
	}
	g.tokensUsed += tokens
	return g.vectors.Store(ctx, kind, id, text, vectors[0])
}

// RefreshPending drains queued embedding jobs. A job whose entity has
// vanished completes silently; a provider failure bumps the attempt
// counter and leaves the job for the next run.
func (g *Generator) RefreshPending(ctx context.Context, db Jobs) (int, error) {
	jobs, err := db.PendingEmbeddingJobs(ctx, 0)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, job := range jobs {
		text, ok, err := g.jobText(ctx, db, job)
		if err != nil {
			return done, err
		}
		if !ok {
			if err := db.CompleteEmbeddingJob(ctx, job.ID); err != nil {
				return done, err
			}
			continue
		}

		if err := g.EmbedText(ctx, job.Kind, job.RefID, text); err != nil {
			g.log.Warn("embedding job failed",
				"kind", string(job.Kind), "ref", job.RefID, "error", err.Error())
			if berr := db.BumpEmbeddingJob(ctx, job.ID); berr != nil {
				return done, berr
			}
			continue
		}
		if err := db.CompleteEmbeddingJob(ctx, job.ID); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}

func (g *Generator) jobText(ctx context.Context, db Jobs, job store.EmbeddingJob) (string, bool, error) {
	switch job.Kind {
	case core.RefArticle:
		a, err := db.GetArticle(ctx, job.RefID)
		if err != nil || a == nil {
			return "", false, err
		}
		return ArticleText(*a), true, nil
	case core.RefInterest:
		in, err := db.GetInterest(ctx, job.RefID)
		if err != nil || in == nil {
			return "", false, err
		}
		return InterestText(in.Category, in.Description, in.Expanded), true, nil
	case core.RefExclusion:
		ex, err := db.GetExclusion(ctx, job.RefID)
		if err != nil || ex == nil {
			return "", false, err
		}
		return InterestText(ex.Category, ex.Description, ex.Expanded), true, nil
	}
	return "", false, nil
}
