package prefilter

import (
	"strings"
	"testing"
	"time"

	"curio/internal/core"
)

var (
	testNow  = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	longBody = strings.Repeat("word ", 50)
)

func article(id, title string, published time.Time) core.Article {
	return core.Article{ID: id, Title: title, Content: longBody, Published: published}
}

func oldReader() core.Reader {
	return core.Reader{ID: "r1", DateAdded: testNow.Add(-90 * 24 * time.Hour)}
}

func testOptions() Options {
	return Options{
		MinContentLen:  80,
		StaleCutoff:    7 * 24 * time.Hour,
		ExtendedCutoff: 30 * 24 * time.Hour,
		NewReaderAge:   30 * 24 * time.Hour,
	}
}

func TestFilterDropsStaleArticles(t *testing.T) {
	articles := []core.Article{
		article("fresh", "Fresh News", testNow.Add(-24*time.Hour)),
		article("stale", "Old News", testNow.Add(-10*24*time.Hour)),
	}

	kept, dropped := Filter(articles, oldReader(), testNow, testOptions())

	if len(kept) != 1 || kept[0].ID != "fresh" {
		t.Fatalf("kept = %v, want only the fresh article", ids(kept))
	}
	if len(dropped) != 1 || dropped[0].Reason != "stale" {
		t.Fatalf("dropped = %+v, want one stale rejection", dropped)
	}
}

func TestFilterExtendedWindowForNewReaders(t *testing.T) {
	// 10 days old: past the default 7-day cutoff, inside the 30-day
	// extended window a new account gets.
	articles := []core.Article{
		article("a", "Somewhat Old", testNow.Add(-10*24*time.Hour)),
	}
	newReader := core.Reader{ID: "r2", DateAdded: testNow.Add(-2 * 24 * time.Hour)}

	kept, _ := Filter(articles, newReader, testNow, testOptions())
	if len(kept) != 1 {
		t.Error("new reader should keep a 10-day-old article")
	}

	kept, _ = Filter(articles, oldReader(), testNow, testOptions())
	if len(kept) != 0 {
		t.Error("long-tenured reader should reject a 10-day-old article")
	}
}

func TestFilterCollapsesRepeatedTitles(t *testing.T) {
	articles := []core.Article{
		article("first", "Big Announcement", testNow),
		article("second", "  big announcement ", testNow),
		article("third", "Different", testNow),
	}

	kept, dropped := Filter(articles, oldReader(), testNow, testOptions())

	if len(kept) != 2 || kept[0].ID != "first" || kept[1].ID != "third" {
		t.Fatalf("kept = %v, want first occurrence kept", ids(kept))
	}
	if len(dropped) != 1 || dropped[0].ArticleID != "second" {
		t.Fatalf("dropped = %+v, want the repeated title", dropped)
	}
}

func TestFilterDropsSpamAndShortContent(t *testing.T) {
	articles := []core.Article{
		{ID: "spam", Title: "[Sponsored] Buy Now", Content: longBody, Published: testNow},
		{ID: "short", Title: "Thin", Content: "tiny", Published: testNow},
		{ID: "bare", Title: "No Body", Content: "", Published: testNow}, // title-only is fine
	}

	kept, _ := Filter(articles, oldReader(), testNow, testOptions())

	if len(kept) != 1 || kept[0].ID != "bare" {
		t.Fatalf("kept = %v, want only the title-only article", ids(kept))
	}
}

func TestFilterKeepsUndatedArticles(t *testing.T) {
	articles := []core.Article{
		{ID: "undated", Title: "No Date", Content: longBody},
	}
	kept, _ := Filter(articles, oldReader(), testNow, testOptions())
	if len(kept) != 1 {
		t.Error("articles without a published time should survive the stale check")
	}
}

func ids(articles []core.Article) []string {
	out := make([]string, len(articles))
	for i, a := range articles {
		out[i] = a.ID
	}
	return out
}
