package prefs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"curio/internal/core"
)

type fakeStore struct {
	total    int
	lastRun  int
	events   []core.FeedbackEvent
	articles map[string]*core.Article

	replaced      []core.LearnedPreference
	replacedCount int
	replaceCalled bool
}

func (f *fakeStore) MeaningfulFeedbackCount(ctx context.Context, readerID string) (int, error) {
	return f.total, nil
}

func (f *fakeStore) LearnerState(ctx context.Context, readerID string) (int, error) {
	return f.lastRun, nil
}

func (f *fakeStore) RecentMeaningfulFeedback(ctx context.Context, readerID string, limit int) ([]core.FeedbackEvent, error) {
	if len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeStore) GetArticles(ctx context.Context, ids []string) (map[string]*core.Article, error) {
	return f.articles, nil
}

func (f *fakeStore) ReplacePreferences(ctx context.Context, readerID string, prefs []core.LearnedPreference, feedbackCount int) error {
	f.replaceCalled = true
	f.replaced = prefs
	f.replacedCount = feedbackCount
	return nil
}

type fakeGen struct {
	response string
	err      error
}

func (f *fakeGen) Name() string { return "fake" }

func (f *fakeGen) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f.response, f.err
}

func testLearner(db *fakeStore, gen *fakeGen) *Learner {
	return New(db, gen, Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestShouldLearnTrigger(t *testing.T) {
	tests := []struct {
		name        string
		total, last int
		want        bool
	}{
		{"below minimum", 9, 0, false},
		{"at minimum, no prior run", 10, 0, false}, // delta 10 < 50
		{"delta met", 60, 10, true},
		{"delta just short", 59, 10, false},
		{"first run at volume", 50, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeStore{total: tt.total, lastRun: tt.last}
			got, err := testLearner(db, &fakeGen{}).ShouldLearn(context.Background(), "r1")
			if err != nil {
				t.Fatalf("ShouldLearn: %v", err)
			}
			if got != tt.want {
				t.Errorf("ShouldLearn(total=%d, last=%d) = %v, want %v", tt.total, tt.last, got, tt.want)
			}
		})
	}
}

func event(article string, action core.FeedbackAction, age time.Duration) core.FeedbackEvent {
	return core.FeedbackEvent{
		ID:        article + "-" + string(action),
		ReaderID:  "r1",
		ArticleID: article,
		Action:    action,
		CreatedAt: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC).Add(-age),
	}
}

func TestSampleDeduplicatesToMostRecent(t *testing.T) {
	// Newest first: the reader skipped a1 after liking it earlier.
	events := []core.FeedbackEvent{
		event("a1", core.ActionSkip, 0),
		event("a1", core.ActionLike, time.Hour),
		event("a2", core.ActionRead, 2*time.Hour),
	}

	sample := Sample(events, 100)
	if len(sample) != 2 {
		t.Fatalf("sample = %d events, want 2 after dedup", len(sample))
	}
	for _, ev := range sample {
		if ev.ArticleID == "a1" && ev.Action != core.ActionSkip {
			t.Errorf("a1 action = %s, want the most recent (skip)", ev.Action)
		}
	}
}

func TestSamplePrioritizesStrongSignals(t *testing.T) {
	events := []core.FeedbackEvent{
		event("w1", core.ActionSkip, 0),
		event("s1", core.ActionLike, time.Hour),
		event("w2", core.ActionSkip, 2*time.Hour),
		event("s2", core.ActionRead, 3*time.Hour),
	}

	sample := Sample(events, 2)
	if len(sample) != 2 {
		t.Fatalf("sample = %d, want capped at 2", len(sample))
	}
	for _, ev := range sample {
		if !ev.Action.Strong() {
			t.Errorf("capped sample kept weak signal %s on %s", ev.Action, ev.ArticleID)
		}
	}
}

func TestLearnReplacesPreferenceSet(t *testing.T) {
	db := &fakeStore{
		total: 60,
		events: []core.FeedbackEvent{
			event("a1", core.ActionLike, 0),
			event("a2", core.ActionSkip, time.Hour),
		},
		articles: map[string]*core.Article{
			"a1": {ID: "a1", Title: "Go generics deep dive"},
			"a2": {ID: "a2", Title: "Celebrity gossip roundup"},
		},
	}
	gen := &fakeGen{response: `[
		{"preference_text": "Prefers deep technical Go content", "confidence": 0.9, "derived_from_count": 2},
		{"preference_text": "Avoids celebrity news", "confidence": 0.7, "derived_from_count": 2}
	]`}

	prefs, err := testLearner(db, gen).Learn(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if len(prefs) != 2 {
		t.Fatalf("prefs = %d, want 2", len(prefs))
	}
	if !db.replaceCalled || db.replacedCount != 60 {
		t.Errorf("ReplacePreferences called=%v watermark=%d, want watermark 60",
			db.replaceCalled, db.replacedCount)
	}
	if prefs[0].Confidence != 0.9 || prefs[0].ReaderID != "r1" {
		t.Errorf("prefs[0] = %+v", prefs[0])
	}
}

func TestLearnKeepsPriorSetOnProviderFailure(t *testing.T) {
	db := &fakeStore{
		total:  60,
		events: []core.FeedbackEvent{event("a1", core.ActionLike, 0)},
	}
	gen := &fakeGen{err: context.DeadlineExceeded}

	if _, err := testLearner(db, gen).Learn(context.Background(), "r1"); err == nil {
		t.Fatal("expected an error from a failed provider call")
	}
	if db.replaceCalled {
		t.Error("a failed run must not touch the stored preference set")
	}
}

func TestLearnRecoversFencedResponse(t *testing.T) {
	db := &fakeStore{
		total:  60,
		events: []core.FeedbackEvent{event("a1", core.ActionLike, 0)},
	}
	gen := &fakeGen{response: "```json\n[{\"preference_text\": \"Likes Go\", \"confidence\": 0.8, \"derived_from_count\": 1}]\n```"}

	prefs, err := testLearner(db, gen).Learn(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Learn: %v", err)
	}
	if len(prefs) != 1 || prefs[0].Text != "Likes Go" {
		t.Errorf("prefs = %+v", prefs)
	}
}
