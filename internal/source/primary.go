package source

import (
	"context"

	"github.com/terisuke/cohort/internal/model"
)

// AccountMetrics are the observable activity metrics for one account,
// used by the quality gate and candidate enrichment.
type AccountMetrics struct {
	FollowersCount   int    `json:"followers_count"`
	TweetCount       int    `json:"tweet_count"`
	LastTweetAt      string `json:"last_tweet_at,omitempty"`
	AccountCreatedAt string `json:"account_created_at,omitempty"`
}

// PrimaryAPI is the rate-limited structured upstream. Implementations
// must observe rate-limit headers into the shared tracker on every
// response.
type PrimaryAPI interface {
	// UserTimeline returns the account's recent posts, excluding
	// reposts and replies.
	UserTimeline(ctx context.Context, handle string, limit int) ([]model.PostRecord, error)

	// SearchRecent returns posts matching a search query.
	SearchRecent(ctx context.Context, query string, limit int) ([]model.PostRecord, error)

	// UserMetrics returns activity metrics for one account.
	UserMetrics(ctx context.Context, handle string) (*AccountMetrics, error)

	// LookupUser resolves a handle to a discovery candidate.
	LookupUser(ctx context.Context, handle string) (*model.AccountCandidate, error)
}

// DiscoverySource is the generative fallback channel used for both
// post acquisition and account discovery. It must return only
// claimed-real content; there is no synthetic generation path.
type DiscoverySource interface {
	// FetchPosts searches the live web for the account's real posts.
	// An empty slice means nothing was found; it is not an error.
	FetchPosts(ctx context.Context, handle string, limit int) ([]model.PostRecord, error)

	// DiscoverAccounts finds candidate accounts for a keyword.
	DiscoverAccounts(ctx context.Context, keyword string, max int) ([]model.AccountCandidate, error)
}

// PersonaGenerator derives a persona profile from an account's posts.
type PersonaGenerator interface {
	GeneratePersona(ctx context.Context, handle string, posts []model.PostRecord) (*model.Persona, error)
}
