package model

import (
	"strings"
	"time"
)

// PostRecord is an atomic unit of source content. The ID encodes
// provenance: "web_search_*" IDs come from the web-search fallback,
// "sample_*" and "generated_*" IDs mark synthetic content from a
// removed legacy fallback, and any other well-formed ID came from the
// primary structured API.
type PostRecord struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Link string `json:"link"`
	Date string `json:"date"`
}

// IsSynthetic reports whether the record was fabricated rather than
// fetched from a real upstream.
func (p PostRecord) IsSynthetic() bool {
	return strings.HasPrefix(p.ID, "sample_") || strings.HasPrefix(p.ID, "generated_")
}

// IsWebSearch reports whether the record came from the web-search
// fallback channel.
func (p PostRecord) IsWebSearch() bool {
	return strings.HasPrefix(p.ID, "web_search_")
}

// PersonaSchemaVersion is the current Persona schema version.
const PersonaSchemaVersion = 2

// Persona is the profile derived from an account's posts.
// QualityScore is nil until quality evaluation has run; Provisional
// marks scores derived from discovery-time confidence instead of real
// upstream metrics.
type Persona struct {
	Name           string   `json:"name"`
	Background     string   `json:"background"`
	Tendencies     []string `json:"tendencies"`
	Tone           string   `json:"tone"`
	Personality    string   `json:"personality"`
	QualityScore   *float64 `json:"quality_score,omitempty"`
	QualityReasons []string `json:"quality_reasons,omitempty"`
	Provisional    bool     `json:"provisional,omitempty"`
	SchemaVersion  int      `json:"schema_version"`
}

// FetchStatus describes how a fetch resolved.
type FetchStatus string

const (
	StatusSuccess FetchStatus = "success"
	StatusCached  FetchStatus = "cached"
	StatusFailed  FetchStatus = "failed"
)

// Source identifies which acquisition strategy produced a result.
type Source string

const (
	SourcePrimaryAPI Source = "primary_api"
	SourceWebSearch  Source = "web_search"
	SourceUnknown    Source = "unknown"
)

// FetchResult is the outcome of fetching one identity.
// Invariant: Status == StatusFailed implies Posts is empty and
// Persona is nil.
type FetchResult struct {
	Posts   []PostRecord `json:"posts"`
	Persona *Persona     `json:"persona,omitempty"`
	Status  FetchStatus  `json:"status"`
	Source  Source       `json:"source"`
}

// CacheEntry is the durable cache record for one identity. Owned by
// the cache store; mutated only through its put/invalidate operations.
type CacheEntry struct {
	Identity  string       `json:"identity"`
	Posts     []PostRecord `json:"posts"`
	Persona   *Persona     `json:"persona"`
	FetchedAt time.Time    `json:"fetched_at"`
	Source    Source       `json:"source"`
}

// Contaminated reports whether the entry's lead post carries a
// synthetic-provenance marker. Such entries are untrustworthy
// regardless of age.
func (e *CacheEntry) Contaminated() bool {
	return len(e.Posts) > 0 && e.Posts[0].IsSynthetic()
}

// AccountCandidate is a discovered-but-not-yet-fully-fetched account.
// The metric and attribute fields are filled in by enrichment, which
// is additive and idempotent.
type AccountCandidate struct {
	Handle      string  `json:"handle"`
	DisplayName string  `json:"display_name"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
	ProfileURL  string  `json:"profile_url,omitempty"`
	Source      string  `json:"source"`

	FollowersCount   int    `json:"followers_count,omitempty"`
	TweetCount       int    `json:"tweet_count,omitempty"`
	LastTweetAt      string `json:"last_tweet_at,omitempty"`
	AccountCreatedAt string `json:"account_created_at,omitempty"`
	MetricsKnown     bool   `json:"metrics_known,omitempty"`

	Region            string `json:"region,omitempty"`
	Language          string `json:"language,omitempty"`
	DominantSentiment string `json:"dominant_sentiment,omitempty"`

	DiversityScore     float64 `json:"diversity_score,omitempty"`
	QualityScore       float64 `json:"quality_score,omitempty"`
	QualityProvisional bool    `json:"quality_provisional,omitempty"`
}

// NormalizeHandle strips the leading sigil and surrounding whitespace
// from a handle. Case is preserved; deduplication is case-insensitive.
func NormalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// HandleKey returns the case-insensitive deduplication key for a handle.
func HandleKey(handle string) string {
	return strings.ToLower(NormalizeHandle(handle))
}
