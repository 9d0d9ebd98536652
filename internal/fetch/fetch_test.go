package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"curio/internal/core"
)

type fakeStore struct {
	mu       sync.Mutex
	sources  []core.Source
	inserted []core.Article
	errors   map[string]string
}

func (f *fakeStore) ActiveSources(ctx context.Context) ([]core.Source, error) {
	return f.sources, nil
}

func (f *fakeStore) SourcesForReader(ctx context.Context, readerID string) ([]core.Source, error) {
	return f.sources, nil
}

func (f *fakeStore) InsertArticle(ctx context.Context, sourceID string, raw core.RawArticle) (*core.Article, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := core.Article{ID: raw.ExternalID, SourceID: sourceID, Title: raw.Title, URL: raw.URL}
	f.inserted = append(f.inserted, a)
	return &a, true, nil
}

func (f *fakeStore) SetSourceError(ctx context.Context, sourceID, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errors == nil {
		f.errors = map[string]string{}
	}
	f.errors[sourceID] = lastError
	return nil
}

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Feed</title>
<item><title>One</title><link>https://example.com/1</link><guid>g1</guid></item>
<item><title>Two</title><link>https://example.com/2</link><guid>g2</guid></item>
</channel></rss>`

func TestFetchAllIsolatesSourceFailures(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleRSS)
	}))
	defer healthy.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	db := &fakeStore{sources: []core.Source{
		{ID: "ok", URL: healthy.URL},
		{ID: "bad", URL: broken.URL},
	}}

	f := New(db, 5*time.Second, 50, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))
	result, err := f.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	if result.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Failed)
	}
	if len(result.Inserted) != 2 {
		t.Errorf("Inserted = %d articles, want 2 from the healthy source", len(result.Inserted))
	}
	if db.errors["bad"] == "" {
		t.Error("expected the broken source's error to be recorded")
	}
}

func TestConvertItem(t *testing.T) {
	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		item   gofeed.Item
		wantOK bool
		wantID string
	}{
		{
			name: "guid preferred as external id",
			item: gofeed.Item{
				Title:           "Hello",
				Link:            "https://example.com/a",
				GUID:            "guid-1",
				PublishedParsed: &published,
			},
			wantOK: true,
			wantID: "guid-1",
		},
		{
			name: "link fallback when guid absent",
			item: gofeed.Item{
				Title: "Hello",
				Link:  "https://example.com/a",
			},
			wantOK: true,
			wantID: "https://example.com/a",
		},
		{
			name:   "no title dropped",
			item:   gofeed.Item{Link: "https://example.com/a"},
			wantOK: false,
		},
		{
			name:   "no link dropped",
			item:   gofeed.Item{Title: "Hello"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, ok := convertItem(&tt.item)
			if ok != tt.wantOK {
				t.Fatalf("convertItem ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if raw.ExternalID != tt.wantID {
				t.Errorf("ExternalID = %q, want %q", raw.ExternalID, tt.wantID)
			}
		})
	}
}

func TestConvertItemContentFallback(t *testing.T) {
	item := &gofeed.Item{
		Title:       "T",
		Link:        "https://example.com",
		Description: "summary only",
	}
	raw, ok := convertItem(item)
	if !ok {
		t.Fatal("expected item to convert")
	}
	if raw.Content != "summary only" {
		t.Errorf("Content = %q, want description fallback", raw.Content)
	}

	item.Content = "full content"
	raw, _ = convertItem(item)
	if raw.Content != "full content" {
		t.Errorf("Content = %q, want content preferred over description", raw.Content)
	}
}

func TestConvertItemPublishedFallsBackToUpdated(t *testing.T) {
	updated := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	item := &gofeed.Item{
		Title:         "T",
		Link:          "https://example.com",
		UpdatedParsed: &updated,
	}
	raw, ok := convertItem(item)
	if !ok {
		t.Fatal("expected item to convert")
	}
	if !raw.Published.Equal(updated) {
		t.Errorf("Published = %v, want %v", raw.Published, updated)
	}
}
