// Package prefs distills a reader's feedback history into natural-language
// preference statements the generative scorer can reuse.
package prefs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"curio/internal/core"
	"curio/internal/genscore"
	"curio/internal/textgen"
)

// Options tunes the learning trigger and sampling.
type Options struct {
	MinFeedback     int // Never learn below this total
	RelearnDelta    int // New meaningful events required since the last run
	Window          int // Recent events pulled per run
	MaxSample       int // Cap on events sent to the model
	MaxOutputTokens int
}

func (o Options) withDefaults() Options {
	if o.MinFeedback <= 0 {
		o.MinFeedback = 10
	}
	if o.RelearnDelta <= 0 {
		o.RelearnDelta = 50
	}
	if o.Window <= 0 {
		o.Window = 300
	}
	if o.MaxSample <= 0 {
		o.MaxSample = 100
	}
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = 2048
	}
	return o
}

// Store is the persistence surface the learner needs.
type Store interface {
	MeaningfulFeedbackCount(ctx context.Context, readerID string) (int, error)
	LearnerState(ctx context.Context, readerID string) (int, error)
	RecentMeaningfulFeedback(ctx context.Context, readerID string, limit int) ([]core.FeedbackEvent, error)
	GetArticles(ctx context.Context, ids []string) (map[string]*core.Article, error)
	ReplacePreferences(ctx context.Context, readerID string, prefs []core.LearnedPreference, feedbackCount int) error
}

type Learner struct {
	db       Store
	provider textgen.Provider
	opts     Options
	log      *slog.Logger
}

func New(db Store, provider textgen.Provider, opts Options, log *slog.Logger) *Learner {
	return &Learner{db: db, provider: provider, opts: opts.withDefaults(), log: log}
}

// ShouldLearn reports whether the reader has accumulated enough new
// feedback: total at or above the minimum and delta since the last run at
// or above the relearn interval.
func (l *Learner) ShouldLearn(ctx context.Context, readerID string) (bool, error) {
	total, err := l.db.MeaningfulFeedbackCount(ctx, readerID)
	if err != nil {
		return false, err
	}
	if total < l.opts.MinFeedback {
		return false, nil
	}
	last, err := l.db.LearnerState(ctx, readerID)
	if err != nil {
		return false, err
	}
	return total-last >= l.opts.RelearnDelta, nil
}

// Learn runs one learning pass unconditionally: samples recent feedback,
// asks the model for preference statements, and atomically replaces the
// reader's set. A model failure leaves the prior set untouched.
func (l *Learner) Learn(ctx context.Context, readerID string) ([]core.LearnedPreference, error) {
	total, err := l.db.MeaningfulFeedbackCount(ctx, readerID)
	if err != nil {
		return nil, err
	}

	events, err := l.db.RecentMeaningfulFeedback(ctx, readerID, l.opts.Window)
	if err != nil {
		return nil, err
	}

	sample := Sample(events, l.opts.MaxSample)
	if len(sample) == 0 {
		return nil, nil
	}

	ids := make([]string, len(sample))
	for i, ev := range sample {
		ids[i] = ev.ArticleID
	}
	articles, err := l.db.GetArticles(ctx, ids)
	if err != nil {
		return nil, err
	}

	raw, err := l.provider.Generate(ctx, buildLearnPrompt(sample, articles), l.opts.MaxOutputTokens)
	if err != nil {
		return nil, fmt.Errorf("preference learning call failed: %w", err)
	}

	var parsed []struct {
		PreferenceText string  `json:"preference_text"`
		Confidence     float64 `json:"confidence"`
		DerivedFrom    int     `json:"derived_from_count"`
	}
	stage, err := genscore.Recover(raw, &parsed)
	if err != nil {
		return nil, fmt.Errorf("unrecoverable learner response: %w", err)
	}
	l.log.Debug("preferences learned", "reader", readerID, "count", len(parsed), "recovery", stage)

	now := time.Now().UTC()
	prefs := make([]core.LearnedPreference, 0, len(parsed))
	for _, p := range parsed {
		if strings.TrimSpace(p.PreferenceText) == "" {
			continue
		}
		derived := p.DerivedFrom
		if derived <= 0 {
			derived = len(sample)
		}
		prefs = append(prefs, core.LearnedPreference{
			ID:          uuid.New().String(),
			ReaderID:    readerID,
			Text:        p.PreferenceText,
			Confidence:  clamp01(p.Confidence),
			DerivedFrom: derived,
			DateLearned: now,
		})
	}

	if err := l.db.ReplacePreferences(ctx, readerID, prefs, total); err != nil {
		return nil, err
	}
	return prefs, nil
}

// LearnIfDue combines the trigger check and the pass.
func (l *Learner) LearnIfDue(ctx context.Context, readerID string) ([]core.LearnedPreference, bool, error) {
	due, err := l.ShouldLearn(ctx, readerID)
	if err != nil || !due {
		return nil, false, err
	}
	prefs, err := l.Learn(ctx, readerID)
	return prefs, err == nil, err
}

// Sample deduplicates events to the most recent action per article, then
// caps the result preferring strong signals (like/read) over weak ones.
// Events arrive newest first and the output preserves that order within
// each priority class.
func Sample(events []core.FeedbackEvent, maxSample int) []core.FeedbackEvent {
	seen := make(map[string]bool, len(events))
	var strong, weak []core.FeedbackEvent
	for _, ev := range events {
		if !ev.Action.Meaningful() || seen[ev.ArticleID] {
			continue
		}
		seen[ev.ArticleID] = true
		if ev.Action.Strong() {
			strong = append(strong, ev)
		} else {
			weak = append(weak, ev)
		}
	}

	out := append(strong, weak...)
	if len(out) > maxSample {
		out = out[:maxSample]
	}
	return out
}

func buildLearnPrompt(events []core.FeedbackEvent, articles map[string]*core.Article) string {
	var b strings.Builder
	b.WriteString("A reader gave the following feedback on digest articles. ")
	b.WriteString("Distill their reading preferences into short statements.\n\nFEEDBACK:\n")

	for _, ev := range events {
		title := ev.ArticleID
		if a := articles[ev.ArticleID]; a != nil {
			title = a.Title
		}
		fmt.Fprintf(&b, "- %s: %q\n", ev.Action, title)
	}

	fmt.Fprintf(&b, `
Respond with ONLY a JSON array:
[{"preference_text": "<one preference statement>", "confidence": <0.0-1.0>, "derived_from_count": %d}]
List at most 8 preferences, strongest evidence first.
`, len(events))
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
