package core

import (
	"testing"
	"time"
)

func TestArticleIsDuplicate(t *testing.T) {
	article := Article{ID: "a1"}
	if article.IsDuplicate() {
		t.Error("Expected article without duplicate_of to not be a duplicate")
	}

	article.DuplicateOf = "a0"
	if !article.IsDuplicate() {
		t.Error("Expected article with duplicate_of to be a duplicate")
	}
}

func TestFeedbackActionMeaningful(t *testing.T) {
	tests := []struct {
		action     FeedbackAction
		meaningful bool
		strong     bool
	}{
		{ActionLike, true, true},
		{ActionRead, true, true},
		{ActionSkip, true, false},
		{ActionClick, false, false},
	}

	for _, tt := range tests {
		if got := tt.action.Meaningful(); got != tt.meaningful {
			t.Errorf("%s.Meaningful() = %v, want %v", tt.action, got, tt.meaningful)
		}
		if got := tt.action.Strong(); got != tt.strong {
			t.Errorf("%s.Strong() = %v, want %v", tt.action, got, tt.strong)
		}
	}
}

func TestReaderScoreCreation(t *testing.T) {
	now := time.Now().UTC()
	score := ReaderScore{
		ReaderID:       "reader-1",
		ArticleID:      "article-1",
		EmbeddingScore: 0.42,
		Relevance:      0.8,
		Reason:         "Matches: Distributed Systems",
		Serendipity:    false,
		ScoredAt:       now,
	}

	if score.EmbeddingScore != 0.42 {
		t.Errorf("Expected EmbeddingScore 0.42, got %f", score.EmbeddingScore)
	}
	if score.DigestID != "" {
		t.Errorf("Expected unassigned score to have empty DigestID, got %s", score.DigestID)
	}
}
