// Package scoring computes per-reader embedding scores and partitions the
// scored set into judgment candidates, serendipity samples and skips.
package scoring

import (
	"sort"
	"time"

	"curio/internal/core"
	"curio/internal/vectorstore"
)

// Weights tunes the blend of best and runner-up interest similarities.
type Weights struct {
	Primary   float64 // Coefficient on the best weighted similarity
	Secondary float64 // Coefficient on the mean of the top 3
	Exclusion float64 // Similarity at or above which an exclusion vetoes
}

// InterestVec pairs an interest with its stored embedding, in the
// reader's stored creation order. Interests without a stored vector are
// omitted by the caller.
type InterestVec struct {
	Interest core.Interest
	Vector   []float64
}

// ExclusionVec pairs an exclusion with its stored embedding.
type ExclusionVec struct {
	Exclusion core.Exclusion
	Vector    []float64
}

// Score computes one reader's embedding score for one article. The score
// is always computed fresh from current interest embeddings and weights.
//
// Ties for the best interest resolve to the earliest interest in stored
// order. An article vetoed by an exclusion scores zero with the vetoing
// exclusion recorded in the reason.
func Score(readerID string, articleID string, articleVec []float64, interests []InterestVec, exclusions []ExclusionVec, w Weights, now time.Time) core.ReaderScore {
	score := core.ReaderScore{
		ReaderID:  readerID,
		ArticleID: articleID,
		ScoredAt:  now,
	}

	for _, ex := range exclusions {
		if vectorstore.Cosine(articleVec, ex.Vector) >= w.Exclusion {
			score.Reason = "Excluded: " + ex.Exclusion.Category
			return score
		}
	}

	var weighted []float64
	var bestVal float64
	for _, iv := range interests {
		if iv.Interest.Weight <= 0 {
			continue
		}
		v := vectorstore.Cosine(articleVec, iv.Vector) * iv.Interest.Weight
		weighted = append(weighted, v)
		// Strict > keeps the first maximum in stored order.
		if len(weighted) == 1 || v > bestVal {
			bestVal = v
			score.BestInterestID = iv.Interest.ID
		}
	}
	if len(weighted) == 0 {
		return score
	}

	primary := bestVal
	secondary := meanTopN(weighted, 3)
	score.EmbeddingScore = w.Primary*primary + w.Secondary*secondary
	return score
}

// meanTopN averages the n largest values, or all of them when fewer.
func meanTopN(values []float64, n int) float64 {
	sorted := append([]float64(nil), values...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}
