// Package prefilter rejects worthless items before they cost embedding or
// generation tokens: spammy titles, near-empty bodies, stale publish dates
// and repeated titles within one batch.
package prefilter

import (
	"strings"
	"time"

	"curio/internal/core"
)

// Options tunes the filter. Callers build it from the canonical config
// table; a non-positive StaleCutoff disables the stale check.
type Options struct {
	MinContentLen  int           // Articles with less trimmed content are dropped
	StaleCutoff    time.Duration // Published before now-cutoff is dropped
	ExtendedCutoff time.Duration // Used instead for readers younger than NewReaderAge
	NewReaderAge   time.Duration // Account age below which the extended window applies
}

// Title fragments that mark promotional filler rather than articles.
var spamMarkers = []string{
	"[sponsored]",
	"(sponsored)",
	"sponsored post",
	"advertisement",
	"[ad]",
	"webinar:",
	"[promo]",
}

// Dropped explains each rejection for run logging.
type Dropped struct {
	ArticleID string
	Reason    string
}

// Filter returns the articles worth processing, in input order, plus the
// rejects. The stale window widens for readers newer than NewReaderAge so
// a fresh account's first digest is not empty.
func Filter(articles []core.Article, reader core.Reader, now time.Time, opts Options) ([]core.Article, []Dropped) {
	cutoff := opts.StaleCutoff
	if opts.NewReaderAge > 0 && now.Sub(reader.DateAdded) < opts.NewReaderAge {
		cutoff = opts.ExtendedCutoff
	}
	staleBefore := now.Add(-cutoff)

	var kept []core.Article
	var dropped []Dropped
	seenTitles := make(map[string]bool, len(articles))

	for _, a := range articles {
		title := strings.ToLower(strings.TrimSpace(a.Title))

		switch {
		case title == "":
			dropped = append(dropped, Dropped{a.ID, "empty title"})
		case isSpamTitle(title):
			dropped = append(dropped, Dropped{a.ID, "spam title"})
		case len(strings.TrimSpace(a.Content)) < opts.MinContentLen && a.Content != "":
			dropped = append(dropped, Dropped{a.ID, "content too short"})
		case opts.StaleCutoff > 0 && !a.Published.IsZero() && a.Published.Before(staleBefore):
			dropped = append(dropped, Dropped{a.ID, "stale"})
		case seenTitles[title]:
			dropped = append(dropped, Dropped{a.ID, "repeated title"})
		default:
			seenTitles[title] = true
			kept = append(kept, a)
		}
	}
	return kept, dropped
}

func isSpamTitle(lowerTitle string) bool {
	for _, marker := range spamMarkers {
		if strings.Contains(lowerTitle, marker) {
			return true
		}
	}
	return false
}
