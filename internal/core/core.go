// Package core defines the domain types shared across the relevance pipeline.
package core

import "time"

// RefKind identifies what an embedding record points at.
type RefKind string

const (
	RefArticle   RefKind = "article"
	RefInterest  RefKind = "interest"
	RefExclusion RefKind = "exclusion"
)

// Source is a syndicated feed a reader can subscribe to.
type Source struct {
	ID        string    `json:"id"`         // Unique identifier for the source
	URL       string    `json:"url"`        // Feed URL
	Title     string    `json:"title"`      // Feed title
	Active    bool      `json:"active"`     // Whether the source is polled
	LastError string    `json:"last_error"` // Last fetch error, if any
	DateAdded time.Time `json:"date_added"` // When the source was added
}

// RawArticle is an item as it comes off a feed, before persistence.
type RawArticle struct {
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	Content    string    `json:"content"`     // Optional; may contain HTML
	ExternalID string    `json:"external_id"` // GUID when present, else link
	Published  time.Time `json:"published"`   // Zero when the feed omits it
}

// Article is shared across readers. One row per unique (source, external id);
// its embedding is computed once and reused by every reader.
type Article struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	ExternalID  string    `json:"external_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Content     string    `json:"content"`
	Published   time.Time `json:"published"`
	Ingested    time.Time `json:"ingested"`
	DuplicateOf string    `json:"duplicate_of"` // Canonical article ID when flagged as semantic duplicate
}

// IsDuplicate reports whether the article was collapsed onto a canonical one.
func (a Article) IsDuplicate() bool { return a.DuplicateOf != "" }

// Interest is a per-reader positive preference. Mutating category or
// description invalidates the stored embedding; mutating weight does not.
type Interest struct {
	ID          string    `json:"id"`
	ReaderID    string    `json:"reader_id"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Expanded    string    `json:"expanded"` // Optional LLM-expanded description
	Weight      float64   `json:"weight"`   // Default 1.0; applied at scoring time
	Active      bool      `json:"active"`
	DateAdded   time.Time `json:"date_added"`
}

// Exclusion is a per-reader negative interest with the same
// embedding-invalidation rule as Interest.
type Exclusion struct {
	ID          string    `json:"id"`
	ReaderID    string    `json:"reader_id"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Expanded    string    `json:"expanded"`
	Active      bool      `json:"active"`
	DateAdded   time.Time `json:"date_added"`
}

// Reader owns interests, subscriptions and digests.
type Reader struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	DateAdded time.Time `json:"date_added"` // Account age drives the extended stale window
}

// EmbeddingRecord stores the canonical input text and vector for one
// (kind, id) key. Exactly one row per key.
type EmbeddingRecord struct {
	Kind      RefKind   `json:"kind"`
	RefID     string    `json:"ref_id"`
	InputText string    `json:"input_text"` // Kept for audit/recompute
	Vector    []float64 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

// ReaderScore is the per-(reader, article) scoring state: the join point
// between the two scoring stages and the engagement surface.
type ReaderScore struct {
	ReaderID       string    `json:"reader_id"`
	ArticleID      string    `json:"article_id"`
	EmbeddingScore float64   `json:"embedding_score"`
	BestInterestID string    `json:"best_interest_id"`
	Relevance      float64   `json:"relevance"` // Generative relevance score in [0,1]
	Reason         string    `json:"reason"`    // "Matches: <InterestName>" or "Serendipity"
	Serendipity    bool      `json:"serendipity"`
	DigestID       string    `json:"digest_id"` // Empty until assigned
	Liked          bool      `json:"liked"`
	Read           bool      `json:"read"`
	Bookmarked     bool      `json:"bookmarked"`
	Archived       bool      `json:"archived"`
	ScoredAt       time.Time `json:"scored_at"`
}

// Digest is per-reader and immutable once created except for count updates.
type Digest struct {
	ID           string    `json:"id"`
	ReaderID     string    `json:"reader_id"`
	Generated    time.Time `json:"generated"`
	ArticleCount int       `json:"article_count"`
}

// LearnedPreference is one distilled preference statement. The entire
// per-reader set is atomically replaced on each learning run.
type LearnedPreference struct {
	ID          string    `json:"id"`
	ReaderID    string    `json:"reader_id"`
	Text        string    `json:"preference_text"`
	Confidence  float64   `json:"confidence"`
	DerivedFrom int       `json:"derived_from_count"`
	DateLearned time.Time `json:"date_learned"`
}

// FeedbackAction enumerates engagement events the learner consumes.
type FeedbackAction string

const (
	ActionLike  FeedbackAction = "like"
	ActionSkip  FeedbackAction = "skip"
	ActionRead  FeedbackAction = "read"
	ActionClick FeedbackAction = "click" // Recorded but carries no learning signal
)

// Meaningful reports whether the action carries signal for preference learning.
func (a FeedbackAction) Meaningful() bool {
	return a == ActionLike || a == ActionSkip || a == ActionRead
}

// Strong reports whether the action is prioritized when capping the
// learning sample.
func (a FeedbackAction) Strong() bool {
	return a == ActionLike || a == ActionRead
}

// FeedbackEvent is one engagement event from a reader.
type FeedbackEvent struct {
	ID        string         `json:"id"`
	ReaderID  string         `json:"reader_id"`
	ArticleID string         `json:"article_id"`
	Action    FeedbackAction `json:"action"`
	CreatedAt time.Time      `json:"created_at"`
}

// RunStatus enumerates terminal states of an ingestion run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunDegraded  RunStatus = "degraded"
	RunFailed    RunStatus = "failed"
)

// RunRecord is the run-level audit row.
type RunRecord struct {
	ID        string        `json:"id"`
	Status    RunStatus     `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Summary   string        `json:"summary"`
}

// ReaderResult summarizes one reader's share of a run. A failed reader
// reports a zeroed result; it never aborts the run.
type ReaderResult struct {
	ReaderID  string `json:"reader_id"`
	Scored    int    `json:"scored"`
	Judged    int    `json:"judged"`
	DigestID  string `json:"digest_id"`
	Assembled int    `json:"assembled"`
	Err       string `json:"error,omitempty"`
}
