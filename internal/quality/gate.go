package quality

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/terisuke/cohort/internal/model"
)

// ErrSyntheticContent marks content that was fabricated rather than
// fetched from a real upstream. It is a policy rejection, not a score.
var ErrSyntheticContent = errors.New("synthetic content")

// Sub-score weights. The follower signal dominates, recency second,
// raw activity volume last.
const (
	weightFollowers = 0.5
	weightRecency   = 0.3
	weightActivity  = 0.2
)

const (
	followerSaturation = 10000
	followerMidpoint   = 1000
	maxHandleLength    = 50
)

// Result is the outcome of evaluating one account.
type Result struct {
	Score       float64  `json:"score"`
	Passed      bool     `json:"passed"`
	Provisional bool     `json:"provisional"`
	Reasons     []string `json:"reasons,omitempty"`
}

// Gate enforces the real-data-only policy and scores genuine accounts
// against externally tunable thresholds.
type Gate struct {
	cfg model.QualityConfig
	now func() time.Time
}

// NewGate creates a gate with the given thresholds.
func NewGate(cfg model.QualityConfig) *Gate {
	return &Gate{cfg: cfg, now: time.Now}
}

// NewGateAt creates a gate with an injected time source for tests.
func NewGateAt(cfg model.QualityConfig, now func() time.Time) *Gate {
	return &Gate{cfg: cfg, now: now}
}

// CheckPosts rejects post sets containing synthetic-provenance records.
func (g *Gate) CheckPosts(posts []model.PostRecord) error {
	for _, p := range posts {
		if p.IsSynthetic() {
			return fmt.Errorf("post %s: %w", p.ID, ErrSyntheticContent)
		}
	}
	return nil
}

// Evaluate computes the quality result for a candidate. When upstream
// metrics are unavailable the result is a provisional score derived
// from discovery-time confidence, flagged so downstream consumers do
// not treat it as authoritative.
func (g *Gate) Evaluate(c model.AccountCandidate) Result {
	var reasons []string

	handle := model.NormalizeHandle(c.Handle)
	if len(handle) == 0 || len(handle) > maxHandleLength {
		return Result{
			Score:   0,
			Passed:  false,
			Reasons: []string{fmt.Sprintf("malformed handle %q", c.Handle)},
		}
	}

	if !c.MetricsKnown {
		score := clamp01(c.Confidence)
		reasons = append(reasons, "upstream metrics unavailable, score derived from discovery confidence")
		return Result{
			Score:       score,
			Passed:      score >= g.cfg.MinQualityScore,
			Provisional: true,
			Reasons:     reasons,
		}
	}

	inactiveDays := g.inactiveDays(c.LastTweetAt)

	fScore := followerScore(c.FollowersCount)
	rScore := recencyScore(inactiveDays, g.cfg.MaxInactiveDays)
	aScore := activityScore(c.TweetCount, g.cfg.MinPostCount)

	score := clamp01(weightFollowers*fScore + weightRecency*rScore + weightActivity*aScore)

	passed := true
	if c.FollowersCount < g.cfg.MinFollowers {
		passed = false
		reasons = append(reasons, fmt.Sprintf("followers %d below minimum %d", c.FollowersCount, g.cfg.MinFollowers))
	}
	if c.TweetCount < g.cfg.MinPostCount {
		passed = false
		reasons = append(reasons, fmt.Sprintf("post count %d below minimum %d", c.TweetCount, g.cfg.MinPostCount))
	}
	if inactiveDays > g.cfg.MaxInactiveDays {
		passed = false
		reasons = append(reasons, fmt.Sprintf("inactive for %d days, maximum %d", inactiveDays, g.cfg.MaxInactiveDays))
	}
	if score < g.cfg.MinQualityScore {
		passed = false
		reasons = append(reasons, fmt.Sprintf("score %.2f below floor %.2f", score, g.cfg.MinQualityScore))
	}

	return Result{Score: score, Passed: passed, Reasons: reasons}
}

// ScoreEntry computes a backfill score for a cached entry that was
// written before scoring existed. Follower metrics are not part of the
// durable record, so the score is built from the posts alone and
// flagged provisional.
func (g *Gate) ScoreEntry(entry *model.CacheEntry) (float64, bool, []string) {
	lastActivity := ""
	if len(entry.Posts) > 0 {
		lastActivity = entry.Posts[0].Date
	}

	inactiveDays := g.inactiveDays(lastActivity)
	rScore := recencyScore(inactiveDays, g.cfg.MaxInactiveDays)
	aScore := activityScore(len(entry.Posts), g.cfg.MinPostCount)

	// Renormalize over the weights we can observe.
	score := clamp01((weightRecency*rScore + weightActivity*aScore) / (weightRecency + weightActivity))
	return score, true, []string{"backfilled from cached posts, follower metrics unavailable"}
}

// inactiveDays returns days since the last activity timestamp, or a
// value past every threshold when the timestamp is missing or
// unparseable.
func (g *Gate) inactiveDays(lastActivity string) int {
	t, ok := parseDate(lastActivity)
	if !ok {
		return g.cfg.MaxInactiveDays + 1
	}
	days := int(g.now().Sub(t).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// followerScore saturates at 1.0 for large accounts, ramps linearly
// through the mid range, and climbs sub-linearly below it.
func followerScore(followers int) float64 {
	f := float64(followers)
	switch {
	case followers >= followerSaturation:
		return 1.0
	case followers >= followerMidpoint:
		return 0.5 + 0.5*(f-followerMidpoint)/(followerSaturation-followerMidpoint)
	default:
		return 0.5 * math.Sqrt(f/followerMidpoint)
	}
}

func recencyScore(inactiveDays, maxInactiveDays int) float64 {
	switch {
	case inactiveDays <= 30:
		return 1.0
	case inactiveDays <= 90:
		return 0.7
	case inactiveDays <= maxInactiveDays:
		return 0.3
	default:
		return 0.0
	}
}

// activityScore mirrors followerScore's saturating shape over total
// post count, anchored at the minimum-posts threshold.
func activityScore(postCount, minPosts int) float64 {
	if minPosts <= 0 {
		minPosts = 1
	}
	n := float64(postCount)
	saturation := float64(minPosts * 10)
	mid := float64(minPosts)
	switch {
	case n >= saturation:
		return 1.0
	case n >= mid:
		return 0.5 + 0.5*(n-mid)/(saturation-mid)
	default:
		return 0.5 * math.Sqrt(n/mid)
	}
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
