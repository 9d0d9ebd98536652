package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"testing"
	"time"

	"curio/internal/config"
	"curio/internal/core"
	"curio/internal/embedding"
	"curio/internal/fetch"
	"curio/internal/genscore"
	"curio/internal/scoring"
	"curio/internal/store"
)

// fakeDB satisfies Store in memory.
type fakeDB struct {
	readers   []core.Reader
	sources   map[string][]core.Source // readerID -> sources
	articles  map[string]*core.Article
	interests map[string][]core.Interest
	prefs     map[string][]core.LearnedPreference

	scores      map[string]map[string]core.ReaderScore // readerID -> articleID
	digests     []core.Digest
	duplicates  map[string]string
	interestErr map[string]error  // per-reader failure injection
	settings    map[string]string // "readerID/key" -> value
	embedded    map[string]bool   // article ids with stored embeddings
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		sources:     map[string][]core.Source{},
		articles:    map[string]*core.Article{},
		interests:   map[string][]core.Interest{},
		prefs:       map[string][]core.LearnedPreference{},
		scores:      map[string]map[string]core.ReaderScore{},
		duplicates:  map[string]string{},
		interestErr: map[string]error{},
		settings:    map[string]string{},
		embedded:    map[string]bool{},
	}
}

func (f *fakeDB) ArticlesIngestedSince(ctx context.Context, cutoff time.Time) ([]core.Article, error) {
	var out []core.Article
	for _, a := range f.articles {
		if a.DuplicateOf == "" && !a.Ingested.Before(cutoff) && !a.Ingested.IsZero() {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDB) ArticlesMissingEmbeddings(ctx context.Context, ids []string) ([]string, error) {
	var missing []string
	for _, id := range ids {
		if !f.embedded[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (f *fakeDB) ScoredArticleIDs(ctx context.Context, readerID string, ids []string) (map[string]bool, error) {
	scored := map[string]bool{}
	for _, id := range ids {
		if _, ok := f.scores[readerID][id]; ok {
			scored[id] = true
		}
	}
	return scored, nil
}

func (f *fakeDB) SettingFloat(ctx context.Context, readerID, key string, fallback float64) (float64, error) {
	if raw, ok := f.settings[readerID+"/"+key]; ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v, nil
		}
	}
	return fallback, nil
}

func (f *fakeDB) SettingInt(ctx context.Context, readerID, key string, fallback int) (int, error) {
	if raw, ok := f.settings[readerID+"/"+key]; ok {
		if v, err := strconv.Atoi(raw); err == nil {
			return v, nil
		}
	}
	return fallback, nil
}

func (f *fakeDB) StartRun(ctx context.Context) (*core.RunRecord, error) {
	return &core.RunRecord{ID: "run-1", Status: core.RunRunning, StartedAt: time.Now()}, nil
}
func (f *fakeDB) FinishRun(ctx context.Context, id string, status core.RunStatus, d time.Duration, summary string) error {
	return nil
}
func (f *fakeDB) AppendRunEvent(ctx context.Context, runID, phase, level, message string, data []byte) error {
	return nil
}

func (f *fakeDB) PendingEmbeddingJobs(ctx context.Context, limit int) ([]store.EmbeddingJob, error) {
	return nil, nil
}
func (f *fakeDB) CompleteEmbeddingJob(ctx context.Context, id string) error { return nil }
func (f *fakeDB) BumpEmbeddingJob(ctx context.Context, id string) error     { return nil }
func (f *fakeDB) GetArticle(ctx context.Context, id string) (*core.Article, error) {
	return f.articles[id], nil
}
func (f *fakeDB) GetInterest(ctx context.Context, id string) (*core.Interest, error) {
	return nil, nil
}
func (f *fakeDB) GetExclusion(ctx context.Context, id string) (*core.Exclusion, error) {
	return nil, nil
}

func (f *fakeDB) ActiveReaders(ctx context.Context) ([]core.Reader, error) { return f.readers, nil }
func (f *fakeDB) SourcesForReader(ctx context.Context, readerID string) ([]core.Source, error) {
	return f.sources[readerID], nil
}
func (f *fakeDB) GetArticles(ctx context.Context, ids []string) (map[string]*core.Article, error) {
	out := map[string]*core.Article{}
	for _, id := range ids {
		if a, ok := f.articles[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}
func (f *fakeDB) ActiveInterests(ctx context.Context, readerID string) ([]core.Interest, error) {
	if err := f.interestErr[readerID]; err != nil {
		return nil, err
	}
	return f.interests[readerID], nil
}
func (f *fakeDB) ActiveExclusions(ctx context.Context, readerID string) ([]core.Exclusion, error) {
	return nil, nil
}
func (f *fakeDB) LearnedPreferences(ctx context.Context, readerID string) ([]core.LearnedPreference, error) {
	return f.prefs[readerID], nil
}

func (f *fakeDB) UpsertScores(ctx context.Context, scores []core.ReaderScore) error {
	for _, s := range scores {
		m := f.scores[s.ReaderID]
		if m == nil {
			m = map[string]core.ReaderScore{}
			f.scores[s.ReaderID] = m
		}
		if prev, ok := m[s.ArticleID]; ok {
			s.Relevance = prev.Relevance
			s.Reason = prev.Reason
			s.DigestID = prev.DigestID
		}
		m[s.ArticleID] = s
	}
	return nil
}

func (f *fakeDB) UpdateRelevance(ctx context.Context, readerID, articleID string, relevance float64, reason string) error {
	s := f.scores[readerID][articleID]
	s.Relevance = relevance
	s.Reason = reason
	f.scores[readerID][articleID] = s
	return nil
}

func (f *fakeDB) UnassignedScores(ctx context.Context, readerID string) ([]core.ReaderScore, error) {
	var out []core.ReaderScore
	for _, s := range f.scores[readerID] {
		if s.DigestID == "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeDB) CreateDigest(ctx context.Context, readerID string, articleIDs []string) (*core.Digest, error) {
	dg := core.Digest{ID: "digest-" + readerID, ReaderID: readerID, ArticleCount: len(articleIDs)}
	for _, id := range articleIDs {
		s := f.scores[readerID][id]
		s.DigestID = dg.ID
		f.scores[readerID][id] = s
	}
	f.digests = append(f.digests, dg)
	return &dg, nil
}

func (f *fakeDB) MarkDuplicate(ctx context.Context, id, canonicalID string) error {
	f.duplicates[id] = canonicalID
	return nil
}

type fakeVectors struct {
	byKind map[core.RefKind]map[string][]float64
}

func (f *fakeVectors) GetMany(ctx context.Context, kind core.RefKind, ids []string) (map[string][]float64, error) {
	out := map[string][]float64{}
	for _, id := range ids {
		if v, ok := f.byKind[kind][id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

type fakeFetcher struct {
	inserted  []core.Article
	forReader string // Last reader id passed to FetchForReader
}

func (f *fakeFetcher) FetchAll(ctx context.Context) (*fetch.Result, error) {
	return &fetch.Result{Inserted: f.inserted}, nil
}

func (f *fakeFetcher) FetchForReader(ctx context.Context, readerID string) (*fetch.Result, error) {
	f.forReader = readerID
	return &fetch.Result{Inserted: f.inserted}, nil
}

type fakeEmbedder struct {
	fail    bool
	batches [][]string
}

func (f *fakeEmbedder) EmbedArticles(ctx context.Context, articles []core.Article) ([]core.Article, error) {
	if f.fail {
		return nil, errors.New("embedding provider unavailable")
	}
	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	f.batches = append(f.batches, ids)
	return articles, nil
}

func (f *fakeEmbedder) RefreshPending(ctx context.Context, db embedding.Jobs) (int, error) {
	return 0, nil
}

// fakeJudge scores every candidate 0.9.
type fakeJudge struct {
	judged int
}

func (f *fakeJudge) ScoreAll(ctx context.Context, interests []core.Interest, prefs []core.LearnedPreference, candidates []scoring.Candidate, articles map[string]*core.Article) []genscore.Judgment {
	var out []genscore.Judgment
	for _, c := range candidates {
		f.judged++
		out = append(out, genscore.Judgment{
			ArticleID: c.Score.ArticleID,
			Score:     0.9,
			Reason:    "Matches: AI",
		})
	}
	return out
}

type fakeLearner struct{}

func (fakeLearner) LearnIfDue(ctx context.Context, readerID string) ([]core.LearnedPreference, bool, error) {
	return nil, false, nil
}

func testConfig() config.Pipeline {
	return config.Pipeline{
		EmbeddingLLMThreshold:  0.35,
		SerendipityMin:         0.20,
		SerendipityMax:         0.35,
		SerendipitySampleSize:  5,
		MaxLLMCandidates:       40,
		BlendedPrimaryWeight:   0.7,
		BlendedSecondaryWeight: 0.3,
		SemanticDedupThreshold: 0.85,
		ExclusionThreshold:     0.75,
		MinRelevanceScore:      0.6,
		MaxArticlesPerDigest:   10,
		MinContentLength:       80,
		StaleCutoffDays:        7,
		NewReaderWindowDays:    30,
	}
}

func testArticle(id, sourceID string) core.Article {
	return core.Article{
		ID:        id,
		SourceID:  sourceID,
		Title:     "Title " + id,
		Content:   "Long enough body text for the prefilter to keep this article in the batch without rejecting it as thin content.",
		Published: time.Now().Add(-time.Hour),
	}
}

func setupHappyPath() (*fakeDB, *fakeVectors, *fakeFetcher) {
	db := newFakeDB()
	db.readers = []core.Reader{{ID: "r1", Active: true, DateAdded: time.Now().Add(-60 * 24 * time.Hour)}}
	db.sources["r1"] = []core.Source{{ID: "s1"}}
	db.interests["r1"] = []core.Interest{{ID: "i1", ReaderID: "r1", Category: "AI", Weight: 1.0, Active: true}}

	a1 := testArticle("a1", "s1")
	a2 := testArticle("a2", "s2") // Not subscribed; must not be scored for r1
	db.articles["a1"] = &a1
	db.articles["a2"] = &a2

	vectors := &fakeVectors{byKind: map[core.RefKind]map[string][]float64{
		core.RefArticle:  {"a1": {1, 0}, "a2": {0, 1}},
		core.RefInterest: {"i1": {1, 0}},
	}}
	fetcher := &fakeFetcher{inserted: []core.Article{a1, a2}}
	return db, vectors, fetcher
}

func testPipeline(db *fakeDB, vectors *fakeVectors, fetcher *fakeFetcher, embedder *fakeEmbedder, judge *fakeJudge) *Pipeline {
	return New(db, vectors, fetcher, embedder, judge, fakeLearner{}, testConfig(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunHappyPath(t *testing.T) {
	db, vectors, fetcher := setupHappyPath()
	judge := &fakeJudge{}

	summary, err := testPipeline(db, vectors, fetcher, &fakeEmbedder{}, judge).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Status != core.RunCompleted {
		t.Errorf("status = %s, want completed", summary.Status)
	}
	if len(summary.Readers) != 1 {
		t.Fatalf("readers = %d, want 1", len(summary.Readers))
	}
	r := summary.Readers[0]
	if r.Scored != 1 {
		t.Errorf("scored = %d, want only the subscribed article", r.Scored)
	}
	if r.Judged != 1 {
		t.Errorf("judged = %d, want 1", r.Judged)
	}
	if r.DigestID == "" || r.Assembled != 1 {
		t.Errorf("digest = %q assembled = %d, want one-article digest", r.DigestID, r.Assembled)
	}
	if _, scored := db.scores["r1"]["a2"]; scored {
		t.Error("unsubscribed article a2 must not be scored for r1")
	}
}

func TestRunHonorsReaderSettingOverrides(t *testing.T) {
	db, vectors, fetcher := setupHappyPath()
	// The judge scores 0.9; a per-reader floor above that keeps the
	// digest empty without touching the global config.
	db.settings["r1/min_relevance_score"] = "0.95"

	summary, err := testPipeline(db, vectors, fetcher, &fakeEmbedder{}, &fakeJudge{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	r := summary.Readers[0]
	if r.Judged != 1 {
		t.Fatalf("judged = %d, want scoring to still happen", r.Judged)
	}
	if r.DigestID != "" || r.Assembled != 0 {
		t.Errorf("digest = %q assembled = %d, want none under raised floor", r.DigestID, r.Assembled)
	}
}

func TestReaderTunablesResolvesAllKnobs(t *testing.T) {
	db, vectors, fetcher := setupHappyPath()
	db.settings["r1/embedding_llm_threshold"] = "0.50"
	db.settings["r1/embedding_serendipity_min"] = "0.10"
	db.settings["r1/embedding_serendipity_max"] = "0.45"
	db.settings["r1/blended_primary_weight"] = "0.60"
	db.settings["r1/blended_secondary_weight"] = "0.40"
	db.settings["r1/exclusion_threshold"] = "0.50"
	db.settings["r1/min_relevance_score"] = "0.80"
	db.settings["r1/serendipity_sample_size"] = "3"
	db.settings["r1/max_llm_candidates"] = "7"
	db.settings["r1/max_articles_per_digest"] = "4"

	p := testPipeline(db, vectors, fetcher, &fakeEmbedder{}, &fakeJudge{})
	tun := p.readerTunables(context.Background(), "r1")

	want := testConfig()
	want.EmbeddingLLMThreshold = 0.50
	want.SerendipityMin = 0.10
	want.SerendipityMax = 0.45
	want.BlendedPrimaryWeight = 0.60
	want.BlendedSecondaryWeight = 0.40
	want.ExclusionThreshold = 0.50
	want.MinRelevanceScore = 0.80
	want.SerendipitySampleSize = 3
	want.MaxLLMCandidates = 7
	want.MaxArticlesPerDigest = 4
	if tun != want {
		t.Errorf("tunables = %+v, want %+v", tun, want)
	}

	// An unknown reader resolves everything to the config table.
	if tun := p.readerTunables(context.Background(), "r9"); tun != testConfig() {
		t.Errorf("unknown reader tunables = %+v, want config defaults", tun)
	}
}

func TestRunDegradedEmbeddingProvider(t *testing.T) {
	db, vectors, fetcher := setupHappyPath()
	judge := &fakeJudge{}

	summary, err := testPipeline(db, vectors, fetcher, &fakeEmbedder{fail: true}, judge).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Status != core.RunDegraded || !summary.Degraded {
		t.Errorf("status = %s degraded = %v, want a degraded run", summary.Status, summary.Degraded)
	}
	// The reader's subscribed article still reaches judgment and a digest
	// is still produced: fail open, not fail closed.
	r := summary.Readers[0]
	if r.Judged != 1 {
		t.Errorf("judged = %d, want the article judged without embedding signal", r.Judged)
	}
	if r.DigestID == "" {
		t.Error("degraded run must still assemble a digest")
	}
	if s := db.scores["r1"]["a1"]; s.EmbeddingScore != 0 {
		t.Errorf("embedding score = %f, want 0 in a degraded cycle", s.EmbeddingScore)
	}
}

func TestRunIsolatesReaderFailures(t *testing.T) {
	db, vectors, fetcher := setupHappyPath()
	db.readers = append(db.readers, core.Reader{ID: "r2", Active: true, DateAdded: time.Now()})
	db.sources["r2"] = []core.Source{{ID: "s1"}}
	db.interestErr["r2"] = errors.New("connection reset")

	summary, err := testPipeline(db, vectors, fetcher, &fakeEmbedder{}, &fakeJudge{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(summary.Readers) != 2 {
		t.Fatalf("readers = %d, want both processed", len(summary.Readers))
	}
	healthy, broken := summary.Readers[0], summary.Readers[1]
	if healthy.Err != "" || healthy.DigestID == "" {
		t.Errorf("healthy reader result = %+v", healthy)
	}
	if broken.Err == "" || broken.Scored != 0 || broken.DigestID != "" {
		t.Errorf("broken reader result = %+v, want zeroed with error", broken)
	}
}

func TestRunReaderScopesToOneReader(t *testing.T) {
	db, vectors, fetcher := setupHappyPath()
	db.readers = append(db.readers, core.Reader{ID: "r2", Active: true, DateAdded: time.Now()})
	db.sources["r2"] = []core.Source{{ID: "s1"}}

	summary, err := testPipeline(db, vectors, fetcher, &fakeEmbedder{}, &fakeJudge{}).
		RunReader(context.Background(), "r1")
	if err != nil {
		t.Fatalf("RunReader: %v", err)
	}

	if fetcher.forReader != "r1" {
		t.Errorf("fetch scoped to %q, want r1", fetcher.forReader)
	}
	if len(summary.Readers) != 1 || summary.Readers[0].ReaderID != "r1" {
		t.Errorf("readers = %+v, want only r1", summary.Readers)
	}
}

func TestRunReaderUnknownReaderFails(t *testing.T) {
	db, vectors, fetcher := setupHappyPath()

	summary, err := testPipeline(db, vectors, fetcher, &fakeEmbedder{}, &fakeJudge{}).
		RunReader(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error for unknown reader")
	}
	if summary.Status != core.RunFailed {
		t.Errorf("status = %s, want failed", summary.Status)
	}
}

func TestRunBackfillsMissingEmbeddings(t *testing.T) {
	db, vectors, fetcher := setupHappyPath()
	// a9 landed in an earlier cycle that never embedded it; nothing
	// fetches it this time, but the sweep must pick it up.
	a9 := testArticle("a9", "s1")
	a9.Ingested = time.Now().Add(-24 * time.Hour)
	db.articles["a9"] = &a9
	vectors.byKind[core.RefArticle]["a9"] = []float64{0, 1}

	summary, err := testPipeline(db, vectors, fetcher, &fakeEmbedder{}, &fakeJudge{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, scored := db.scores["r1"]["a9"]; !scored {
		t.Error("backfilled article a9 must be scored for r1")
	}
	if summary.Readers[0].Scored != 2 {
		t.Errorf("scored = %d, want fetched a1 plus backfilled a9", summary.Readers[0].Scored)
	}
}

func TestDegradedCycleKeepsExistingScores(t *testing.T) {
	db, vectors, fetcher := setupHappyPath()
	db.scores["r1"] = map[string]core.ReaderScore{
		"a1": {ReaderID: "r1", ArticleID: "a1", EmbeddingScore: 0.8, BestInterestID: "i1"},
	}

	_, err := testPipeline(db, vectors, fetcher, &fakeEmbedder{fail: true}, &fakeJudge{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := db.scores["r1"]["a1"].EmbeddingScore; got != 0.8 {
		t.Errorf("embedding score = %v, degraded cycle must not zero an existing row", got)
	}
}

func TestRunCollapsesDuplicates(t *testing.T) {
	db, vectors, fetcher := setupHappyPath()
	// a3 shares a1's vector and source; it must collapse onto a1.
	a3 := testArticle("a3", "s1")
	db.articles["a3"] = &a3
	fetcher.inserted = append(fetcher.inserted, a3)
	vectors.byKind[core.RefArticle]["a3"] = []float64{1, 0}

	summary, err := testPipeline(db, vectors, fetcher, &fakeEmbedder{}, &fakeJudge{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Dupes != 1 {
		t.Errorf("dupes = %d, want 1", summary.Dupes)
	}
	if db.duplicates["a3"] != "a1" {
		t.Errorf("duplicates = %v, want a3 -> a1", db.duplicates)
	}
	if _, scored := db.scores["r1"]["a3"]; scored {
		t.Error("duplicate a3 must be excluded from per-reader scoring")
	}
}

func TestRunPrefilterUsesConfiguredWindows(t *testing.T) {
	db, vectors, fetcher := setupHappyPath()
	// 10 days old: survives the widest (30-day) global window, but r1
	// was added 60 days ago so the 7-day cutoff rejects it at scoring.
	aged := testArticle("aged", "s1")
	aged.Published = time.Now().Add(-10 * 24 * time.Hour)
	db.articles["aged"] = &aged
	fetcher.inserted = append(fetcher.inserted, aged)
	vectors.byKind[core.RefArticle]["aged"] = []float64{1, 0}

	// 40 days old: past every window, dropped before embedding.
	ancient := testArticle("ancient", "s1")
	ancient.Published = time.Now().Add(-40 * 24 * time.Hour)
	db.articles["ancient"] = &ancient
	fetcher.inserted = append(fetcher.inserted, ancient)

	embedder := &fakeEmbedder{}
	if _, err := testPipeline(db, vectors, fetcher, embedder, &fakeJudge{}).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, a := range embedder.batches {
		for _, id := range a {
			if id == "ancient" {
				t.Error("ancient article must be prefiltered before embedding")
			}
		}
	}
	if _, scored := db.scores["r1"]["aged"]; scored {
		t.Error("article outside the reader's stale window must not be scored")
	}
	if _, scored := db.scores["r1"]["a1"]; !scored {
		t.Error("fresh article must still be scored")
	}
}

func TestRunDedupThresholdGlobalOverride(t *testing.T) {
	db, vectors, fetcher := setupHappyPath()
	a3 := testArticle("a3", "s1")
	db.articles["a3"] = &a3
	fetcher.inserted = append(fetcher.inserted, a3)
	vectors.byKind[core.RefArticle]["a3"] = []float64{1, 0}
	// Identical vectors sit at similarity 1.0; a global override above
	// that keeps both articles.
	db.settings["/semantic_dedup_threshold"] = "1.01"

	summary, err := testPipeline(db, vectors, fetcher, &fakeEmbedder{}, &fakeJudge{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Dupes != 0 || len(db.duplicates) != 0 {
		t.Errorf("dupes = %d %v, want none above the raised threshold", summary.Dupes, db.duplicates)
	}
}
