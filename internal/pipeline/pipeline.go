// Package pipeline orchestrates one ingestion cycle: fetch, prefilter,
// embed, dedup, then per-reader scoring, judgment and digest assembly.
// Readers are processed sequentially and in isolation; a degraded AI
// dependency lowers precision but never blocks digest generation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"curio/internal/config"
	"curio/internal/core"
	"curio/internal/dedup"
	"curio/internal/digest"
	"curio/internal/embedding"
	"curio/internal/fetch"
	"curio/internal/genscore"
	"curio/internal/prefilter"
	"curio/internal/runlog"
	"curio/internal/scoring"
)

// Store is the relational surface the orchestrator touches directly.
// *store.DB satisfies it.
type Store interface {
	runlog.Store
	embedding.Jobs
	ActiveReaders(ctx context.Context) ([]core.Reader, error)
	SourcesForReader(ctx context.Context, readerID string) ([]core.Source, error)
	GetArticles(ctx context.Context, ids []string) (map[string]*core.Article, error)
	ActiveInterests(ctx context.Context, readerID string) ([]core.Interest, error)
	ActiveExclusions(ctx context.Context, readerID string) ([]core.Exclusion, error)
	LearnedPreferences(ctx context.Context, readerID string) ([]core.LearnedPreference, error)
	UpsertScores(ctx context.Context, scores []core.ReaderScore) error
	UpdateRelevance(ctx context.Context, readerID, articleID string, relevance float64, reason string) error
	UnassignedScores(ctx context.Context, readerID string) ([]core.ReaderScore, error)
	CreateDigest(ctx context.Context, readerID string, articleIDs []string) (*core.Digest, error)
	MarkDuplicate(ctx context.Context, id, canonicalID string) error
	SettingFloat(ctx context.Context, readerID, key string, fallback float64) (float64, error)
	SettingInt(ctx context.Context, readerID, key string, fallback int) (int, error)
	ArticlesIngestedSince(ctx context.Context, cutoff time.Time) ([]core.Article, error)
	ArticlesMissingEmbeddings(ctx context.Context, ids []string) ([]string, error)
	ScoredArticleIDs(ctx context.Context, readerID string, ids []string) (map[string]bool, error)
}

// Vectors is the embedding-read surface. *vectorstore.Store satisfies it.
type Vectors interface {
	GetMany(ctx context.Context, kind core.RefKind, ids []string) (map[string][]float64, error)
}

// Fetcher pulls feeds. *fetch.Fetcher satisfies it.
type Fetcher interface {
	FetchAll(ctx context.Context) (*fetch.Result, error)
	FetchForReader(ctx context.Context, readerID string) (*fetch.Result, error)
}

// Embedder computes and stores vectors. *embedding.Generator satisfies it.
type Embedder interface {
	EmbedArticles(ctx context.Context, articles []core.Article) ([]core.Article, error)
	RefreshPending(ctx context.Context, db embedding.Jobs) (int, error)
}

// Judge runs generative relevance scoring. *genscore.Scorer satisfies it.
type Judge interface {
	ScoreAll(ctx context.Context, interests []core.Interest, prefs []core.LearnedPreference, candidates []scoring.Candidate, articles map[string]*core.Article) []genscore.Judgment
}

// Learner runs the feedback side loop. *prefs.Learner satisfies it.
type Learner interface {
	LearnIfDue(ctx context.Context, readerID string) ([]core.LearnedPreference, bool, error)
}

// Summary reports one cycle.
type Summary struct {
	RunID    string              `json:"run_id"`
	Status   core.RunStatus      `json:"status"`
	Fetched  int                 `json:"fetched"`
	Embedded int                 `json:"embedded"`
	Dupes    int                 `json:"duplicates"`
	Degraded bool                `json:"degraded"`
	Readers  []core.ReaderResult `json:"readers"`
}

type Pipeline struct {
	db       Store
	vectors  Vectors
	fetcher  Fetcher
	embedder Embedder
	judge    Judge
	learner  Learner
	cfg      config.Pipeline
	rng      *rand.Rand
	log      *slog.Logger
	now      func() time.Time
}

func New(db Store, vectors Vectors, fetcher Fetcher, embedder Embedder, judge Judge, learner Learner, cfg config.Pipeline, log *slog.Logger) *Pipeline {
	return &Pipeline{
		db:       db,
		vectors:  vectors,
		fetcher:  fetcher,
		embedder: embedder,
		judge:    judge,
		learner:  learner,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		log:      log,
		now:      time.Now,
	}
}

// Run executes one full ingestion cycle across all active readers.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	return p.run(ctx, "")
}

// RunReader executes one cycle scoped to a single reader: only that
// reader's sources are fetched and only their scores and digest advance.
func (p *Pipeline) RunReader(ctx context.Context, readerID string) (*Summary, error) {
	return p.run(ctx, readerID)
}

func (p *Pipeline) run(ctx context.Context, onlyReader string) (*Summary, error) {
	run := runlog.Start(ctx, p.db, p.log)
	summary := &Summary{RunID: run.ID(), Status: core.RunCompleted}

	if n, err := p.embedder.RefreshPending(ctx, p.db); err != nil {
		run.Event(ctx, "refresh", "warn", "embedding job refresh failed", map[string]string{"error": err.Error()})
	} else if n > 0 {
		run.Event(ctx, "refresh", "info", "embedding jobs refreshed", map[string]int{"jobs": n})
	}

	var fetched *fetch.Result
	var err error
	if onlyReader == "" {
		fetched, err = p.fetcher.FetchAll(ctx)
	} else {
		fetched, err = p.fetcher.FetchForReader(ctx, onlyReader)
	}
	if err != nil {
		run.Finish(ctx, core.RunFailed, err.Error())
		summary.Status = core.RunFailed
		return summary, err
	}
	summary.Fetched = len(fetched.Inserted)
	run.Event(ctx, "fetch", "info", "feeds fetched", map[string]int{
		"articles": len(fetched.Inserted),
		"failed":   fetched.Failed,
	})

	// Reader-independent rejects are filtered before embedding; the
	// widest stale window applies so nothing any reader could still
	// want is dropped here. Per-reader windows narrow at scoring time.
	widest := core.Reader{DateAdded: p.now()}
	batch, dropped := prefilter.Filter(fetched.Inserted, widest, p.now(), p.prefilterOptions())
	run.Event(ctx, "prefilter", "info", "batch prefiltered", map[string]int{
		"kept": len(batch), "dropped": len(dropped),
	})

	batch = p.backfillMissing(ctx, run, batch)

	batch, degraded := p.embedStage(ctx, run, batch, summary)
	summary.Degraded = degraded
	if degraded {
		summary.Status = core.RunDegraded
	}

	readers, err := p.db.ActiveReaders(ctx)
	if err != nil {
		run.Finish(ctx, core.RunFailed, err.Error())
		summary.Status = core.RunFailed
		return summary, err
	}
	if onlyReader != "" {
		readers = filterReaders(readers, onlyReader)
		if len(readers) == 0 {
			err := fmt.Errorf("reader %s is not active or does not exist", onlyReader)
			run.Finish(ctx, core.RunFailed, err.Error())
			summary.Status = core.RunFailed
			return summary, err
		}
	}

	for _, reader := range readers {
		result := p.processReader(ctx, run, reader, batch, degraded)
		summary.Readers = append(summary.Readers, result)
	}

	run.Finish(ctx, summary.Status, fmt.Sprintf(
		"fetched=%d embedded=%d dupes=%d readers=%d degraded=%v",
		summary.Fetched, summary.Embedded, summary.Dupes, len(summary.Readers), degraded))
	return summary, nil
}

// backfillMissing re-queues recent articles whose embeddings never
// landed, typically after a degraded cycle or a provider failure
// mid-batch. Backfilled articles flow through the full cycle again and
// replace any zeroed degraded-mode scores.
func (p *Pipeline) backfillMissing(ctx context.Context, run *runlog.Run, batch []core.Article) []core.Article {
	cutoff := p.now().AddDate(0, 0, -p.cfg.NewReaderWindowDays)
	recent, err := p.db.ArticlesIngestedSince(ctx, cutoff)
	if err != nil {
		run.Event(ctx, "backfill", "warn", "backfill sweep failed", map[string]string{"error": err.Error()})
		return batch
	}

	inBatch := make(map[string]bool, len(batch))
	for _, a := range batch {
		inBatch[a.ID] = true
	}
	byID := make(map[string]core.Article, len(recent))
	var ids []string
	for _, a := range recent {
		if inBatch[a.ID] {
			continue
		}
		byID[a.ID] = a
		ids = append(ids, a.ID)
	}

	missing, err := p.db.ArticlesMissingEmbeddings(ctx, ids)
	if err != nil {
		run.Event(ctx, "backfill", "warn", "backfill sweep failed", map[string]string{"error": err.Error()})
		return batch
	}
	if len(missing) == 0 {
		return batch
	}

	for _, id := range missing {
		batch = append(batch, byID[id])
	}
	run.Event(ctx, "backfill", "info", "articles queued for embedding backfill", map[string]int{"articles": len(missing)})
	return batch
}

func filterReaders(readers []core.Reader, id string) []core.Reader {
	for _, r := range readers {
		if r.ID == id {
			return []core.Reader{r}
		}
	}
	return nil
}

// embedStage embeds the batch and collapses semantic duplicates. A
// provider failure degrades the whole cycle to generative-only scoring
// instead of failing the run.
func (p *Pipeline) embedStage(ctx context.Context, run *runlog.Run, batch []core.Article, summary *Summary) ([]core.Article, bool) {
	embedded, err := p.embedder.EmbedArticles(ctx, batch)
	if err != nil {
		run.Event(ctx, "embed", "warn", "embedding provider failed, degrading to generative-only scoring",
			map[string]string{"error": err.Error()})
		return batch, true
	}
	summary.Embedded = len(embedded)
	run.Event(ctx, "embed", "info", "articles embedded", map[string]int{"embedded": len(embedded)})

	if len(embedded) < 2 {
		return batch, false
	}

	ids := make([]string, len(embedded))
	for i, a := range embedded {
		ids[i] = a.ID
	}
	vectors, err := p.vectors.GetMany(ctx, core.RefArticle, ids)
	if err != nil {
		run.Event(ctx, "dedup", "warn", "skipping dedup", map[string]string{"error": err.Error()})
		return batch, false
	}
	// Dedup runs once for the whole batch before the reader loop, so
	// only the global settings row can override its threshold.
	threshold, err := p.db.SettingFloat(ctx, "", "semantic_dedup_threshold", p.cfg.SemanticDedupThreshold)
	if err != nil {
		threshold = p.cfg.SemanticDedupThreshold
	}
	_, pairs, err := dedup.Mark(ctx, p.db, embedded, vectors, threshold, p.log)
	if err != nil {
		run.Event(ctx, "dedup", "warn", "dedup failed", map[string]string{"error": err.Error()})
		return batch, false
	}
	summary.Dupes = len(pairs)
	run.Event(ctx, "dedup", "info", "duplicates collapsed", map[string]int{"pairs": len(pairs)})

	// Duplicates are excluded from per-reader scoring entirely; the
	// canonical article carries the cycle.
	dupIDs := make(map[string]bool, len(pairs))
	for _, pr := range pairs {
		dupIDs[pr.Duplicate] = true
	}
	var out []core.Article
	for _, a := range batch {
		if !dupIDs[a.ID] {
			out = append(out, a)
		}
	}
	return out, false
}

// processReader runs one reader's half of the cycle. Failures are
// isolated: a panic or error yields a zeroed result and the run moves on.
func (p *Pipeline) processReader(ctx context.Context, run *runlog.Run, reader core.Reader, batch []core.Article, degraded bool) (result core.ReaderResult) {
	result.ReaderID = reader.ID

	defer func() {
		if r := recover(); r != nil {
			result = core.ReaderResult{ReaderID: reader.ID, Err: fmt.Sprintf("panic: %v", r)}
			run.Event(ctx, "reader", "error", "reader processing panicked",
				map[string]string{"reader": reader.ID, "panic": fmt.Sprint(r)})
		}
	}()

	if err := p.readerCycle(ctx, run, reader, batch, degraded, &result); err != nil {
		run.Event(ctx, "reader", "error", "reader processing failed",
			map[string]string{"reader": reader.ID, "error": err.Error()})
		return core.ReaderResult{ReaderID: reader.ID, Err: err.Error()}
	}
	return result
}

func (p *Pipeline) readerCycle(ctx context.Context, run *runlog.Run, reader core.Reader, batch []core.Article, degraded bool, result *core.ReaderResult) error {
	sources, err := p.db.SourcesForReader(ctx, reader.ID)
	if err != nil {
		return err
	}
	subscribed := make(map[string]bool, len(sources))
	for _, s := range sources {
		subscribed[s.ID] = true
	}

	var mine []core.Article
	for _, a := range batch {
		if subscribed[a.SourceID] {
			mine = append(mine, a)
		}
	}
	mine, _ = prefilter.Filter(mine, reader, p.now(), p.prefilterOptions())

	tun := p.readerTunables(ctx, reader.ID)

	if degraded {
		if err := p.scoreDegraded(ctx, reader, mine); err != nil {
			return err
		}
	} else {
		if err := p.scoreEmbeddings(ctx, reader, mine, tun, result); err != nil {
			return err
		}
	}

	unassigned, err := p.db.UnassignedScores(ctx, reader.ID)
	if err != nil {
		return err
	}
	candidates := p.selectCandidates(unassigned, degraded, tun)
	if len(candidates) == 0 {
		return p.finishReader(ctx, run, reader, tun, result)
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Score.ArticleID
	}
	articles, err := p.db.GetArticles(ctx, ids)
	if err != nil {
		return err
	}
	interests, err := p.db.ActiveInterests(ctx, reader.ID)
	if err != nil {
		return err
	}
	prefs, err := p.db.LearnedPreferences(ctx, reader.ID)
	if err != nil {
		return err
	}

	// Serendipity tags must be visible to the assembler before judgment.
	var flagged []core.ReaderScore
	for _, c := range candidates {
		if c.Serendipity && !c.Score.Serendipity {
			s := c.Score
			s.Serendipity = true
			flagged = append(flagged, s)
		}
	}
	if len(flagged) > 0 {
		if err := p.db.UpsertScores(ctx, flagged); err != nil {
			return err
		}
	}

	judgments := p.judge.ScoreAll(ctx, interests, prefs, candidates, articles)
	for _, j := range judgments {
		if err := p.db.UpdateRelevance(ctx, reader.ID, j.ArticleID, j.Score, j.Reason); err != nil {
			return err
		}
	}
	result.Judged = len(judgments)
	run.Event(ctx, "judge", "info", "candidates judged",
		map[string]any{"reader": reader.ID, "judged": len(judgments)})

	return p.finishReader(ctx, run, reader, tun, result)
}

// readerTunables resolves per-reader setting overrides for every knob
// that varies by reader; everything else comes from the process config.
// A resolver failure falls back to the config value.
func (p *Pipeline) readerTunables(ctx context.Context, readerID string) config.Pipeline {
	tun := p.cfg
	floats := []struct {
		key  string
		dest *float64
	}{
		{"embedding_llm_threshold", &tun.EmbeddingLLMThreshold},
		{"embedding_serendipity_min", &tun.SerendipityMin},
		{"embedding_serendipity_max", &tun.SerendipityMax},
		{"blended_primary_weight", &tun.BlendedPrimaryWeight},
		{"blended_secondary_weight", &tun.BlendedSecondaryWeight},
		{"exclusion_threshold", &tun.ExclusionThreshold},
		{"min_relevance_score", &tun.MinRelevanceScore},
	}
	for _, f := range floats {
		if v, err := p.db.SettingFloat(ctx, readerID, f.key, *f.dest); err == nil {
			*f.dest = v
		}
	}
	ints := []struct {
		key  string
		dest *int
	}{
		{"serendipity_sample_size", &tun.SerendipitySampleSize},
		{"max_llm_candidates", &tun.MaxLLMCandidates},
		{"max_articles_per_digest", &tun.MaxArticlesPerDigest},
	}
	for _, f := range ints {
		if v, err := p.db.SettingInt(ctx, readerID, f.key, *f.dest); err == nil {
			*f.dest = v
		}
	}
	return tun
}

// prefilterOptions builds the filter bounds from the canonical config
// table; prefilter itself carries no defaults.
func (p *Pipeline) prefilterOptions() prefilter.Options {
	window := time.Duration(p.cfg.NewReaderWindowDays) * 24 * time.Hour
	return prefilter.Options{
		MinContentLen:  p.cfg.MinContentLength,
		StaleCutoff:    time.Duration(p.cfg.StaleCutoffDays) * 24 * time.Hour,
		ExtendedCutoff: window,
		NewReaderAge:   window,
	}
}

// selectCandidates partitions the reader's unassigned scores. In a
// degraded cycle there is no embedding signal, so every unassigned row
// competes up to the usual candidate budget.
func (p *Pipeline) selectCandidates(unassigned []core.ReaderScore, degraded bool, tun config.Pipeline) []scoring.Candidate {
	if !degraded {
		return scoring.Select(unassigned, scoring.SelectorOptions{
			Threshold:      tun.EmbeddingLLMThreshold,
			SerendipityMin: tun.SerendipityMin,
			SerendipityMax: tun.SerendipityMax,
			SampleSize:     tun.SerendipitySampleSize,
			MaxCandidates:  tun.MaxLLMCandidates,
		}, p.rng)
	}

	var candidates []scoring.Candidate
	for i, s := range unassigned {
		if i == tun.MaxLLMCandidates {
			break
		}
		candidates = append(candidates, scoring.Candidate{Score: s})
	}
	return candidates
}

// scoreEmbeddings persists fresh embedding scores for the reader's slice
// of the batch, computed from current interest embeddings and weights.
func (p *Pipeline) scoreEmbeddings(ctx context.Context, reader core.Reader, articles []core.Article, tun config.Pipeline, result *core.ReaderResult) error {
	if len(articles) == 0 {
		return nil
	}

	interests, err := p.loadInterestVecs(ctx, reader.ID)
	if err != nil {
		return err
	}
	if len(interests) == 0 {
		return nil
	}
	exclusions, err := p.loadExclusionVecs(ctx, reader.ID)
	if err != nil {
		return err
	}

	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	articleVecs, err := p.vectors.GetMany(ctx, core.RefArticle, ids)
	if err != nil {
		return err
	}

	weights := scoring.Weights{
		Primary:   tun.BlendedPrimaryWeight,
		Secondary: tun.BlendedSecondaryWeight,
		Exclusion: tun.ExclusionThreshold,
	}

	now := p.now()
	var scores []core.ReaderScore
	for _, a := range articles {
		vec, ok := articleVecs[a.ID]
		if !ok {
			continue
		}
		scores = append(scores, scoring.Score(reader.ID, a.ID, vec, interests, exclusions, weights, now))
	}
	if err := p.db.UpsertScores(ctx, scores); err != nil {
		return err
	}
	result.Scored = len(scores)
	return nil
}

// scoreDegraded records zeroed embedding scores so this cycle's articles
// still reach generative judgment. Articles the reader already has a
// score row for are left alone; a degraded cycle must not clobber real
// embedding scores from earlier cycles.
func (p *Pipeline) scoreDegraded(ctx context.Context, reader core.Reader, articles []core.Article) error {
	if len(articles) == 0 {
		return nil
	}
	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	already, err := p.db.ScoredArticleIDs(ctx, reader.ID, ids)
	if err != nil {
		return err
	}

	now := p.now()
	scores := make([]core.ReaderScore, 0, len(articles))
	for _, a := range articles {
		if already[a.ID] {
			continue
		}
		scores = append(scores, core.ReaderScore{
			ReaderID:  reader.ID,
			ArticleID: a.ID,
			ScoredAt:  now,
		})
	}
	if len(scores) == 0 {
		return nil
	}
	return p.db.UpsertScores(ctx, scores)
}

func (p *Pipeline) loadInterestVecs(ctx context.Context, readerID string) ([]scoring.InterestVec, error) {
	interests, err := p.db.ActiveInterests(ctx, readerID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(interests))
	for i, in := range interests {
		ids[i] = in.ID
	}
	vecs, err := p.vectors.GetMany(ctx, core.RefInterest, ids)
	if err != nil {
		return nil, err
	}
	var out []scoring.InterestVec
	for _, in := range interests {
		if v, ok := vecs[in.ID]; ok {
			out = append(out, scoring.InterestVec{Interest: in, Vector: v})
		}
	}
	return out, nil
}

func (p *Pipeline) loadExclusionVecs(ctx context.Context, readerID string) ([]scoring.ExclusionVec, error) {
	exclusions, err := p.db.ActiveExclusions(ctx, readerID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(exclusions))
	for i, ex := range exclusions {
		ids[i] = ex.ID
	}
	vecs, err := p.vectors.GetMany(ctx, core.RefExclusion, ids)
	if err != nil {
		return nil, err
	}
	var out []scoring.ExclusionVec
	for _, ex := range exclusions {
		if v, ok := vecs[ex.ID]; ok {
			out = append(out, scoring.ExclusionVec{Exclusion: ex, Vector: v})
		}
	}
	return out, nil
}

// finishReader assembles the digest and checks the learning trigger.
func (p *Pipeline) finishReader(ctx context.Context, run *runlog.Run, reader core.Reader, tun config.Pipeline, result *core.ReaderResult) error {
	dg, err := digest.Assemble(ctx, p.db, reader.ID, digest.Options{
		MinRelevance: tun.MinRelevanceScore,
		MaxArticles:  tun.MaxArticlesPerDigest,
	}, p.log)
	if err != nil {
		return err
	}
	if dg != nil {
		result.DigestID = dg.ID
		result.Assembled = dg.ArticleCount
		run.Event(ctx, "digest", "info", "digest assembled",
			map[string]any{"reader": reader.ID, "digest": dg.ID, "articles": dg.ArticleCount})
	}

	if _, learned, err := p.learner.LearnIfDue(ctx, reader.ID); err != nil {
		// Learning is best-effort; a failed pass keeps the prior set.
		run.Event(ctx, "learn", "warn", "preference learning failed",
			map[string]string{"reader": reader.ID, "error": err.Error()})
	} else if learned {
		run.Event(ctx, "learn", "info", "preferences relearned",
			map[string]string{"reader": reader.ID})
	}
	return nil
}
