package sample

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/terisuke/cohort/internal/model"
)

// Attribute names accepted by the sampling and metrics functions.
const (
	AttrFollowers = "followers"
	AttrRegion    = "region"
	AttrLanguage  = "language"
	AttrSentiment = "sentiment"
)

// DefaultAttributes is the standard attribute set for stratification
// and diversity metrics.
var DefaultAttributes = []string{AttrFollowers, AttrRegion, AttrLanguage, AttrSentiment}

// followerStratum is one follower-count bucket.
type followerStratum struct {
	low   int
	high  int // exclusive; -1 means unbounded
	label string
}

var followerStrata = []followerStratum{
	{0, 100, "micro"},
	{100, 1000, "small"},
	{1000, 10000, "medium"},
	{10000, 100000, "large"},
	{100000, 1000000, "macro"},
	{1000000, -1, "mega"},
}

// FollowerStratum buckets a follower count into its stratum label.
func FollowerStratum(followers int) string {
	for _, s := range followerStrata {
		if followers >= s.low && (s.high < 0 || followers < s.high) {
			return s.label
		}
	}
	return "unknown"
}

// SentimentFunc scores profile text into a dominant sentiment label.
// The real scoring model is an external collaborator; the sampler only
// consumes its categorical output.
type SentimentFunc func(text string) string

// Sampler reduces large candidate pools to bounded, diversity-balanced
// cohorts. The random source is injectable so tests are deterministic.
type Sampler struct {
	rng       *rand.Rand
	sentiment SentimentFunc
	log       logrus.FieldLogger
}

// NewSampler creates a sampler. A nil rng falls back to a
// time-seeded source; a nil sentiment function falls back to the
// built-in lexicon heuristic.
func NewSampler(rng *rand.Rand, sentiment SentimentFunc, log logrus.FieldLogger) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if sentiment == nil {
		sentiment = LexiconSentiment
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sampler{rng: rng, sentiment: sentiment, log: log}
}

// Dedupe removes duplicate candidates by case-insensitive,
// sigil-stripped handle; the first occurrence wins.
func Dedupe(candidates []model.AccountCandidate) []model.AccountCandidate {
	seen := make(map[string]bool, len(candidates))
	unique := make([]model.AccountCandidate, 0, len(candidates))
	for _, c := range candidates {
		key := model.HandleKey(c.Handle)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, c)
	}
	return unique
}

// attributeValue maps a candidate to its bucketed value for an
// attribute. Missing attributes bucket to a sentinel rather than
// being dropped.
func attributeValue(c model.AccountCandidate, attr string) string {
	switch attr {
	case AttrFollowers:
		return FollowerStratum(c.FollowersCount)
	case AttrRegion:
		if c.Region == "" {
			return "unknown"
		}
		return c.Region
	case AttrLanguage:
		if c.Language == "" {
			return "unknown"
		}
		return c.Language
	case AttrSentiment:
		if c.DominantSentiment == "" {
			return "neutral"
		}
		return c.DominantSentiment
	default:
		return "unknown"
	}
}

// stratumKey builds the composite grouping key over the chosen
// attributes. The key has no meaning beyond grouping.
func stratumKey(c model.AccountCandidate, attrs []string) string {
	key := ""
	for _, attr := range attrs {
		if key != "" {
			key += "_"
		}
		key += attr + ":" + attributeValue(c, attr)
	}
	return key
}

// Stratified draws a proportional probability sample: candidates are
// partitioned by composite stratum key, each stratum contributes
// round(n × size/total) slots with a minimum of one, and an oversized
// union is down-sampled uniformly to exactly n.
func (s *Sampler) Stratified(pool []model.AccountCandidate, n int, attrs []string) []model.AccountCandidate {
	if len(pool) == 0 || n <= 0 {
		return []model.AccountCandidate{}
	}
	if len(attrs) == 0 {
		attrs = DefaultAttributes
	}

	strata := make(map[string][]model.AccountCandidate)
	var order []string // deterministic iteration under a seeded rng
	for _, c := range pool {
		key := stratumKey(c, attrs)
		if _, ok := strata[key]; !ok {
			order = append(order, key)
		}
		strata[key] = append(strata[key], c)
	}

	total := len(pool)
	var sampled []model.AccountCandidate
	for _, key := range order {
		members := strata[key]
		size := int(math.Round(float64(n) * float64(len(members)) / float64(total)))
		if size < 1 {
			size = 1
		}
		if size > len(members) {
			size = len(members)
		}
		sampled = append(sampled, s.drawWithoutReplacement(members, size)...)
	}

	if len(sampled) > n {
		sampled = s.drawWithoutReplacement(sampled, n)
	}
	return sampled
}

// Quotas maps attribute name → bucket value → admission cap.
type Quotas map[string]map[string]int

// DefaultQuotas splits a target total across follower strata, regions
// and sentiment buckets.
func DefaultQuotas(maxTotal int) Quotas {
	return Quotas{
		AttrFollowers: {
			"micro":  maxTotal / 6,
			"small":  maxTotal / 6,
			"medium": maxTotal / 3,
			"large":  maxTotal / 4,
			"macro":  maxTotal / 12,
			"mega":   maxTotal / 12,
		},
		AttrRegion: {
			"JP": maxTotal / 2,
			"US": maxTotal / 4,
			"GB": maxTotal / 8,
			"KR": maxTotal / 8,
		},
		AttrSentiment: {
			"positive": maxTotal / 3,
			"neutral":  maxTotal / 3,
			"negative": maxTotal / 3,
		},
	}
}

// Quota draws a non-probability convenience sample: the pool is
// shuffled once and walked in order, admitting a candidate only if no
// per-attribute quota would be exceeded. Which candidates are admitted
// under contested quotas depends on the shuffle order by design.
func (s *Sampler) Quota(pool []model.AccountCandidate, quotas Quotas, maxTotal int) []model.AccountCandidate {
	if len(pool) == 0 || maxTotal <= 0 {
		return []model.AccountCandidate{}
	}

	shuffled := make([]model.AccountCandidate, len(pool))
	copy(shuffled, pool)
	s.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	counts := make(map[string]map[string]int, len(quotas))
	for attr := range quotas {
		counts[attr] = make(map[string]int)
	}

	var sampled []model.AccountCandidate
	for _, c := range shuffled {
		if len(sampled) >= maxTotal {
			break
		}

		fits := true
		for attr, caps := range quotas {
			value := attributeValue(c, attr)
			if counts[attr][value] >= caps[value] {
				fits = false
				break
			}
		}
		if !fits {
			continue
		}

		sampled = append(sampled, c)
		for attr := range quotas {
			counts[attr][attributeValue(c, attr)]++
		}
	}
	return sampled
}

// Random draws a uniform sample without replacement, bounded by the
// pool size.
func (s *Sampler) Random(pool []model.AccountCandidate, n int) []model.AccountCandidate {
	if len(pool) == 0 || n <= 0 {
		return []model.AccountCandidate{}
	}
	if n > len(pool) {
		n = len(pool)
	}
	return s.drawWithoutReplacement(pool, n)
}

func (s *Sampler) drawWithoutReplacement(pool []model.AccountCandidate, n int) []model.AccountCandidate {
	idx := s.rng.Perm(len(pool))[:n]
	out := make([]model.AccountCandidate, 0, n)
	for _, i := range idx {
		out = append(out, pool[i])
	}
	return out
}

// Metrics reports per-attribute normalized Shannon entropy plus the
// arithmetic-mean overall diversity. The score is descriptive; it
// never feeds back into the sampling decision.
func Metrics(set []model.AccountCandidate, attrs []string) map[string]float64 {
	if len(attrs) == 0 {
		attrs = DefaultAttributes
	}

	metrics := make(map[string]float64, len(attrs)+1)
	sum := 0.0
	for _, attr := range attrs {
		values := make([]string, 0, len(set))
		for _, c := range set {
			values = append(values, attributeValue(c, attr))
		}
		e := NormalizedEntropy(values)
		metrics[attr+"_entropy"] = e
		sum += e
	}
	if len(attrs) > 0 {
		metrics["overall_diversity"] = sum / float64(len(attrs))
	}
	return metrics
}

// NormalizedEntropy computes the Shannon entropy of a categorical
// distribution divided by log2 of the distinct value count. An empty
// or single-valued distribution is 0 by convention.
func NormalizedEntropy(values []string) float64 {
	if len(values) == 0 {
		return 0.0
	}

	counts := make(map[string]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	if len(counts) <= 1 {
		return 0.0
	}

	total := float64(len(values))
	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy / math.Log2(float64(len(counts)))
}
