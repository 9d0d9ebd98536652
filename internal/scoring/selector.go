package scoring

import (
	"math/rand"
	"sort"

	"curio/internal/core"
)

// SelectorOptions bounds which scored articles earn a generative call.
type SelectorOptions struct {
	Threshold      float64 // Blended score at or above which an article is judged
	SerendipityMin float64 // Lower edge of the serendipity band [min, max)
	SerendipityMax float64 // Upper edge of the band; <= 0 means Threshold
	SampleSize     int     // Uniform sample drawn from the band
	MaxCandidates  int     // Cap on the above-threshold set
}

// Candidate is one article forwarded to generative judgment.
type Candidate struct {
	Score       core.ReaderScore
	Serendipity bool
}

// Select partitions embedding-scored articles: the above-threshold set
// (score descending, capped), a uniform sample without replacement from
// the serendipity band, and everything else skipped at zero cost. The
// rand source is injected so selection is reproducible under test.
func Select(scores []core.ReaderScore, opts SelectorOptions, rng *rand.Rand) []Candidate {
	bandMax := opts.SerendipityMax
	if bandMax <= 0 {
		bandMax = opts.Threshold
	}

	var above []core.ReaderScore
	var band []core.ReaderScore
	for _, s := range scores {
		switch {
		case s.EmbeddingScore >= opts.Threshold:
			above = append(above, s)
		case s.EmbeddingScore >= opts.SerendipityMin && s.EmbeddingScore < bandMax:
			band = append(band, s)
		}
	}

	sort.SliceStable(above, func(i, j int) bool {
		return above[i].EmbeddingScore > above[j].EmbeddingScore
	})
	if opts.MaxCandidates > 0 && len(above) > opts.MaxCandidates {
		above = above[:opts.MaxCandidates]
	}

	sample := band
	if opts.SampleSize > 0 && len(band) > opts.SampleSize {
		rng.Shuffle(len(band), func(i, j int) {
			band[i], band[j] = band[j], band[i]
		})
		sample = band[:opts.SampleSize]
	}

	candidates := make([]Candidate, 0, len(above)+len(sample))
	for _, s := range above {
		candidates = append(candidates, Candidate{Score: s})
	}
	for _, s := range sample {
		s.Serendipity = true
		candidates = append(candidates, Candidate{Score: s, Serendipity: true})
	}
	return candidates
}
