// Package genscore batches judgment candidates into prompts, calls the
// text-generation provider with retry and backoff, and recovers structured
// scores from imperfect responses. Exhausted retries fail open to neutral
// defaults so a provider outage degrades digest quality instead of
// emptying it.
package genscore

import (
	"context"
	"log/slog"
	"time"

	"curio/internal/core"
	"curio/internal/scoring"
	"curio/internal/textgen"
)

const (
	neutralScore     = 0.5
	defaultMaxTokens = 4096
	defaultBatchSize = 10
)

var defaultBackoff = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}

// Judgment is the generative verdict for one article.
type Judgment struct {
	ArticleID   string  `json:"article_id"`
	Score       float64 `json:"score"`
	Reason      string  `json:"reason"`
	Serendipity bool    `json:"is_serendipity"`
}

type Scorer struct {
	provider  textgen.Provider
	batchSize int
	maxTokens int
	backoff   []time.Duration
	sleep     func(time.Duration)
	log       *slog.Logger
}

func New(provider textgen.Provider, batchSize, maxTokens int, log *slog.Logger) *Scorer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Scorer{
		provider:  provider,
		batchSize: batchSize,
		maxTokens: maxTokens,
		backoff:   defaultBackoff,
		sleep:     time.Sleep,
		log:       log,
	}
}

// ScoreAll judges all candidates for one reader in sequential batches and
// returns one Judgment per candidate. It never returns an error: a failed
// batch degrades to neutral defaults.
func (s *Scorer) ScoreAll(ctx context.Context, interests []core.Interest, prefs []core.LearnedPreference, candidates []scoring.Candidate, articles map[string]*core.Article) []Judgment {
	var out []Judgment
	for start := 0; start < len(candidates); start += s.batchSize {
		end := min(start+s.batchSize, len(candidates))
		out = append(out, s.scoreBatch(ctx, interests, prefs, candidates[start:end], articles)...)
	}
	return out
}

func (s *Scorer) scoreBatch(ctx context.Context, interests []core.Interest, prefs []core.LearnedPreference, batch []scoring.Candidate, articles map[string]*core.Article) []Judgment {
	prompt := buildPrompt(interests, prefs,
		toPromptArticles(batch, articles, false),
		toPromptArticles(batch, articles, true))

	raw, err := s.generateWithRetry(ctx, prompt)
	if err != nil {
		s.log.Warn("generative scoring failed, using neutral defaults",
			"batch_size", len(batch), "error", err.Error())
		return defaults(batch, "Default score (provider error)")
	}

	var judged []Judgment
	stage, err := Recover(raw, &judged)
	if err != nil {
		s.log.Warn("response unrecoverable, using neutral defaults",
			"batch_size", len(batch), "error", err.Error())
		return defaults(batch, "Default score (unparseable response)")
	}
	s.log.Debug("batch judged", "size", len(batch), "recovery", stage)

	// Align to the batch: an article the model skipped gets a neutral
	// default rather than disappearing.
	byID := make(map[string]Judgment, len(judged))
	for _, j := range judged {
		byID[j.ArticleID] = j
	}
	out := make([]Judgment, 0, len(batch))
	for _, c := range batch {
		if j, ok := byID[c.Score.ArticleID]; ok {
			out = append(out, clamp(j))
			continue
		}
		out = append(out, Judgment{
			ArticleID: c.Score.ArticleID,
			Score:     neutralScore,
			Reason:    "Default score (missing from response)",
		})
	}
	return out
}

func (s *Scorer) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= len(s.backoff); attempt++ {
		if attempt > 0 {
			s.sleep(s.backoff[attempt-1])
		}
		raw, err := s.provider.Generate(ctx, prompt, s.maxTokens)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !textgen.IsRetryable(err) {
			return "", err
		}
		s.log.Warn("generative call failed, retrying",
			"attempt", attempt+1, "error", err.Error())
	}
	return "", lastErr
}

func defaults(batch []scoring.Candidate, reason string) []Judgment {
	out := make([]Judgment, 0, len(batch))
	for _, c := range batch {
		out = append(out, Judgment{
			ArticleID: c.Score.ArticleID,
			Score:     neutralScore,
			Reason:    reason,
		})
	}
	return out
}

func clamp(j Judgment) Judgment {
	if j.Score < 0 {
		j.Score = 0
	}
	if j.Score > 1 {
		j.Score = 1
	}
	return j
}
