// Package fetch retrieves raw items from syndicated feeds. Each source is
// fetched independently so one slow or broken feed never aborts a run.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"curio/internal/core"
)

// Store is the slice of persistence the fetcher needs.
type Store interface {
	ActiveSources(ctx context.Context) ([]core.Source, error)
	SourcesForReader(ctx context.Context, readerID string) ([]core.Source, error)
	InsertArticle(ctx context.Context, sourceID string, raw core.RawArticle) (*core.Article, bool, error)
	SetSourceError(ctx context.Context, sourceID, lastError string) error
}

// SourceResult reports one source's share of a fetch pass.
type SourceResult struct {
	SourceID string
	Fetched  int
	Inserted int
	Err      error
}

// Result aggregates a fetch pass across all sources.
type Result struct {
	Sources  []SourceResult
	Inserted []core.Article // New articles across all sources, insertion order
	Failed   int
}

type Fetcher struct {
	db             Store
	parser         *gofeed.Parser
	timeout        time.Duration
	maxItems       int
	maxConcurrency int
	log            *slog.Logger
}

func New(db Store, timeout time.Duration, maxItems, maxConcurrency int, log *slog.Logger) *Fetcher {
	if maxItems <= 0 {
		maxItems = 50
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Fetcher{
		db:             db,
		parser:         gofeed.NewParser(),
		timeout:        timeout,
		maxItems:       maxItems,
		maxConcurrency: maxConcurrency,
		log:            log,
	}
}

// FetchAll pulls every active source concurrently and persists new
// articles. Per-source failures are recorded on the source row and in the
// result, never returned as an error.
func (f *Fetcher) FetchAll(ctx context.Context) (*Result, error) {
	sources, err := f.db.ActiveSources(ctx)
	if err != nil {
		return nil, err
	}
	return f.fetchSources(ctx, sources), nil
}

// FetchForReader pulls only the sources one reader subscribes to.
func (f *Fetcher) FetchForReader(ctx context.Context, readerID string) (*Result, error) {
	sources, err := f.db.SourcesForReader(ctx, readerID)
	if err != nil {
		return nil, err
	}
	return f.fetchSources(ctx, sources), nil
}

func (f *Fetcher) fetchSources(ctx context.Context, sources []core.Source) *Result {
	result := &Result{}
	sem := make(chan struct{}, f.maxConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, src := range sources {
		select {
		case <-ctx.Done():
			f.log.Warn("fetch cancelled", "reason", ctx.Err())
			return result
		default:
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(s core.Source) {
			defer wg.Done()
			defer func() { <-sem }()

			sr := f.fetchSource(ctx, s)

			mu.Lock()
			result.Sources = append(result.Sources, sr.result)
			result.Inserted = append(result.Inserted, sr.inserted...)
			if sr.result.Err != nil {
				result.Failed++
			}
			mu.Unlock()
		}(src)
	}

	wg.Wait()

	f.log.Info("fetch completed",
		"sources", len(sources),
		"failed", result.Failed,
		"new_articles", len(result.Inserted),
	)
	return result
}

type sourceFetch struct {
	result   SourceResult
	inserted []core.Article
}

func (f *Fetcher) fetchSource(ctx context.Context, src core.Source) sourceFetch {
	fctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	out := sourceFetch{result: SourceResult{SourceID: src.ID}}

	feed, err := f.parser.ParseURLWithContext(src.URL, fctx)
	if err != nil {
		out.result.Err = fmt.Errorf("parsing feed %s: %w", src.URL, err)
		f.log.Warn("feed fetch failed", "source", src.URL, "error", err.Error())
		if serr := f.db.SetSourceError(ctx, src.ID, err.Error()); serr != nil {
			f.log.Warn("failed to record source error", "source", src.ID, "error", serr.Error())
		}
		return out
	}

	items := feed.Items
	if len(items) > f.maxItems {
		items = items[:f.maxItems]
	}

	// Inserts are sequential per source; the unique constraint makes
	// re-ingesting the same item a no-op.
	for _, item := range items {
		raw, ok := convertItem(item)
		if !ok {
			continue
		}
		out.result.Fetched++

		article, created, err := f.db.InsertArticle(ctx, src.ID, raw)
		if err != nil {
			out.result.Err = err
			return out
		}
		if created {
			out.result.Inserted++
			out.inserted = append(out.inserted, *article)
		}
	}

	if src.LastError != "" {
		if err := f.db.SetSourceError(ctx, src.ID, ""); err != nil {
			f.log.Warn("failed to clear source error", "source", src.ID, "error", err.Error())
		}
	}
	return out
}

// convertItem maps a parsed feed item onto a RawArticle. Items without a
// title or link carry nothing to score and are dropped.
func convertItem(item *gofeed.Item) (core.RawArticle, bool) {
	if item.Title == "" || item.Link == "" {
		return core.RawArticle{}, false
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}

	externalID := item.GUID
	if externalID == "" {
		externalID = item.Link
	}

	var published time.Time
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = *item.UpdatedParsed
	}

	return core.RawArticle{
		Title:      item.Title,
		URL:        item.Link,
		Content:    content,
		ExternalID: externalID,
		Published:  published,
	}, true
}
