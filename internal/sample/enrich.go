package sample

import (
	"context"
	"strings"

	"github.com/terisuke/cohort/internal/model"
	"github.com/terisuke/cohort/internal/ratelimit"
	"github.com/terisuke/cohort/internal/source"
)

// Enricher fills in the metric and inferred attribute fields of
// discovered candidates. Metric lookups go through the primary API and
// are skipped entirely once the rate budget runs low; inference runs
// on whatever profile text is already present.
type Enricher struct {
	primary       source.PrimaryAPI
	tracker       *ratelimit.Tracker
	waitThreshold int
	sentiment     SentimentFunc
}

// NewEnricher creates an enricher. primary may be nil, in which case
// only attribute inference runs.
func NewEnricher(primary source.PrimaryAPI, tracker *ratelimit.Tracker, waitThreshold int, sentiment SentimentFunc) *Enricher {
	if sentiment == nil {
		sentiment = LexiconSentiment
	}
	return &Enricher{primary: primary, tracker: tracker, waitThreshold: waitThreshold, sentiment: sentiment}
}

// Enrich returns a copy of the candidates with metrics and inferred
// attributes populated. Already-known fields are never overwritten, so
// repeated enrichment is idempotent. Lookup failures degrade the
// individual candidate, never the batch.
func (e *Enricher) Enrich(ctx context.Context, candidates []model.AccountCandidate) []model.AccountCandidate {
	out := make([]model.AccountCandidate, len(candidates))
	copy(out, candidates)

	budgetExhausted := e.primary == nil
	for i := range out {
		c := &out[i]

		if !budgetExhausted && !c.MetricsKnown {
			if e.tracker != nil && e.tracker.ShouldWait(e.waitThreshold) {
				budgetExhausted = true
			} else if metrics, err := e.primary.UserMetrics(ctx, c.Handle); err != nil {
				if _, ok := source.IsRateLimited(err); ok {
					budgetExhausted = true
				}
			} else {
				c.FollowersCount = metrics.FollowersCount
				c.TweetCount = metrics.TweetCount
				c.LastTweetAt = metrics.LastTweetAt
				c.AccountCreatedAt = metrics.AccountCreatedAt
				c.MetricsKnown = true
			}
		}

		text := c.DisplayName + " " + c.Description
		if c.Region == "" {
			c.Region = InferRegion(text, c.Handle)
		}
		if c.Language == "" {
			c.Language = InferLanguage(text)
		}
		if c.DominantSentiment == "" {
			c.DominantSentiment = e.sentiment(text)
		}
	}
	return out
}

// InferLanguage guesses the dominant language of profile text from
// Unicode script ranges. Latin-only text defaults to English.
func InferLanguage(text string) string {
	for _, r := range text {
		switch {
		case r >= 0x3040 && r <= 0x30FF: // hiragana, katakana
			return "ja"
		case r >= 0xAC00 && r <= 0xD7AF: // hangul
			return "ko"
		case r >= 0x4E00 && r <= 0x9FFF: // CJK ideographs, ambiguous alone
			continue
		}
	}
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			return "zh"
		}
	}
	return "en"
}

// regionKeywords maps lowercase location hints to region codes.
var regionKeywords = map[string]string{
	"japan": "JP", "tokyo": "JP", "osaka": "JP", "日本": "JP", "東京": "JP",
	"usa": "US", "america": "US", "new york": "US", "california": "US", "san francisco": "US",
	"uk": "GB", "london": "GB", "britain": "GB",
	"korea": "KR", "seoul": "KR", "한국": "KR",
}

// InferRegion guesses a region code from profile text and handle.
// Script-based language evidence is used when no keyword matches.
func InferRegion(text, handle string) string {
	lower := strings.ToLower(text + " " + handle)
	for keyword, region := range regionKeywords {
		if strings.Contains(lower, keyword) {
			return region
		}
	}
	switch InferLanguage(text) {
	case "ja":
		return "JP"
	case "ko":
		return "KR"
	case "zh":
		return "CN"
	}
	return "unknown"
}

var positiveWords = []string{
	"love", "great", "happy", "excited", "amazing", "wonderful", "best",
	"楽しい", "嬉しい", "最高", "好き",
}

var negativeWords = []string{
	"hate", "angry", "terrible", "worst", "awful", "sad", "disappointed",
	"嫌い", "最悪", "辛い", "悲しい",
}

// LexiconSentiment is the default sentiment scorer: a small keyword
// lexicon with a neutral fallback. It exists so sampling works without
// an external model; callers with a real scorer inject their own
// SentimentFunc.
func LexiconSentiment(text string) string {
	lower := strings.ToLower(text)
	pos, neg := 0, 0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	switch {
	case pos > neg:
		return "positive"
	case neg > pos:
		return "negative"
	default:
		return "neutral"
	}
}
