package sample

import (
	"math"
	"math/rand"
	"testing"

	"github.com/terisuke/cohort/internal/model"
)

func seededSampler() *Sampler {
	return NewSampler(rand.New(rand.NewSource(42)), nil, nil)
}

func candidatesWithFollowers(counts map[string]int) []model.AccountCandidate {
	var out []model.AccountCandidate
	for stratum, n := range counts {
		var followers int
		switch stratum {
		case "micro":
			followers = 50
		case "small":
			followers = 500
		case "medium":
			followers = 5000
		case "large":
			followers = 50000
		}
		for i := 0; i < n; i++ {
			out = append(out, model.AccountCandidate{
				Handle:         stratum + "_" + string(rune('a'+i%26)) + string(rune('a'+i/26)),
				FollowersCount: followers,
				MetricsKnown:   true,
			})
		}
	}
	return out
}

func TestFollowerStratum(t *testing.T) {
	tests := []struct {
		followers int
		want      string
	}{
		{0, "micro"},
		{99, "micro"},
		{100, "small"},
		{999, "small"},
		{1000, "medium"},
		{9999, "medium"},
		{10000, "large"},
		{99999, "large"},
		{100000, "macro"},
		{999999, "macro"},
		{1000000, "mega"},
		{50000000, "mega"},
	}
	for _, tt := range tests {
		if got := FollowerStratum(tt.followers); got != tt.want {
			t.Errorf("FollowerStratum(%d) = %q, want %q", tt.followers, got, tt.want)
		}
	}
}

func TestDedupe(t *testing.T) {
	in := []model.AccountCandidate{
		{Handle: "user1", Source: "x_api"},
		{Handle: "@user1", Source: "web_search"},
		{Handle: "USER1"},
		{Handle: " user1 "},
		{Handle: "user2"},
		{Handle: ""},
	}
	out := Dedupe(in)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(out), out)
	}
	// First occurrence wins, original spelling preserved.
	if out[0].Handle != "user1" || out[0].Source != "x_api" {
		t.Errorf("first winner = %+v, want the x_api user1", out[0])
	}
	if out[1].Handle != "user2" {
		t.Errorf("second = %+v, want user2", out[1])
	}
}

func TestStratified_Proportionality(t *testing.T) {
	s := seededSampler()
	pool := candidatesWithFollowers(map[string]int{"micro": 60, "medium": 30, "large": 10})

	sampled := s.Stratified(pool, 20, []string{AttrFollowers})
	if len(sampled) != 20 {
		t.Fatalf("len = %d, want exactly 20", len(sampled))
	}

	counts := map[string]int{}
	for _, c := range sampled {
		counts[FollowerStratum(c.FollowersCount)]++
	}
	// 60/30/10 of 100 into 20 slots is roughly 12/6/2; allow the
	// down-sample one slot of drift per stratum, but every stratum
	// must be represented.
	if counts["micro"] < 10 || counts["micro"] > 13 {
		t.Errorf("micro = %d, want about 12", counts["micro"])
	}
	if counts["medium"] < 4 || counts["medium"] > 7 {
		t.Errorf("medium = %d, want about 6", counts["medium"])
	}
	if counts["large"] < 1 || counts["large"] > 3 {
		t.Errorf("large = %d, want about 2", counts["large"])
	}
}

func TestStratified_SmallStrataKeepOneSlot(t *testing.T) {
	s := seededSampler()
	// The large stratum's proportional share rounds to a single slot,
	// which the minimum guarantees; the union lands exactly on n so no
	// down-sample can take it away.
	pool := candidatesWithFollowers(map[string]int{"micro": 18, "large": 2})

	sampled := s.Stratified(pool, 10, []string{AttrFollowers})
	found := false
	for _, c := range sampled {
		if FollowerStratum(c.FollowersCount) == "large" {
			found = true
		}
	}
	if !found {
		t.Error("single-member stratum lost its guaranteed slot")
	}
}

func TestStratified_EdgeCases(t *testing.T) {
	s := seededSampler()

	if got := s.Stratified(nil, 10, nil); len(got) != 0 {
		t.Errorf("empty pool: len = %d, want 0", len(got))
	}

	pool := candidatesWithFollowers(map[string]int{"micro": 5})
	if got := s.Stratified(pool, 50, []string{AttrFollowers}); len(got) != 5 {
		t.Errorf("n > pool: len = %d, want the whole pool 5", len(got))
	}
}

func TestQuota_RespectsCaps(t *testing.T) {
	s := seededSampler()
	pool := candidatesWithFollowers(map[string]int{"micro": 50, "medium": 50})

	quotas := Quotas{AttrFollowers: {"micro": 3, "medium": 5}}
	sampled := s.Quota(pool, quotas, 100)

	counts := map[string]int{}
	for _, c := range sampled {
		counts[FollowerStratum(c.FollowersCount)]++
	}
	if counts["micro"] != 3 {
		t.Errorf("micro = %d, want capped at 3", counts["micro"])
	}
	if counts["medium"] != 5 {
		t.Errorf("medium = %d, want capped at 5", counts["medium"])
	}
}

func TestQuota_MaxTotal(t *testing.T) {
	s := seededSampler()
	pool := candidatesWithFollowers(map[string]int{"micro": 50})

	sampled := s.Quota(pool, Quotas{AttrFollowers: {"micro": 100}}, 7)
	if len(sampled) != 7 {
		t.Errorf("len = %d, want maxTotal 7", len(sampled))
	}
}

func TestRandom(t *testing.T) {
	s := seededSampler()
	pool := candidatesWithFollowers(map[string]int{"micro": 30})

	sampled := s.Random(pool, 10)
	if len(sampled) != 10 {
		t.Fatalf("len = %d, want 10", len(sampled))
	}

	seen := map[string]bool{}
	for _, c := range sampled {
		if seen[c.Handle] {
			t.Errorf("handle %s drawn twice", c.Handle)
		}
		seen[c.Handle] = true
	}

	if got := s.Random(pool, 100); len(got) != 30 {
		t.Errorf("n > pool: len = %d, want 30", len(got))
	}
}

func TestNormalizedEntropy(t *testing.T) {
	if got := NormalizedEntropy(nil); got != 0 {
		t.Errorf("empty: %v, want 0", got)
	}
	if got := NormalizedEntropy([]string{"a", "a", "a"}); got != 0 {
		t.Errorf("single value: %v, want 0", got)
	}
	if got := NormalizedEntropy([]string{"a", "b"}); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("uniform two values: %v, want 1.0", got)
	}
	if got := NormalizedEntropy([]string{"a", "b", "c", "d"}); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("uniform four values: %v, want 1.0", got)
	}

	skewed := NormalizedEntropy([]string{"a", "a", "a", "a", "a", "a", "a", "b"})
	if skewed <= 0 || skewed >= 1 {
		t.Errorf("skewed: %v, want within (0, 1)", skewed)
	}
}

func TestMetrics(t *testing.T) {
	set := []model.AccountCandidate{
		{Handle: "a", FollowersCount: 50, Region: "JP", Language: "ja", DominantSentiment: "positive", MetricsKnown: true},
		{Handle: "b", FollowersCount: 5000, Region: "US", Language: "en", DominantSentiment: "negative", MetricsKnown: true},
	}

	metrics := Metrics(set, nil)
	for _, attr := range DefaultAttributes {
		name := attr + "_entropy"
		e, ok := metrics[name]
		if !ok {
			t.Fatalf("missing %s", name)
		}
		if math.Abs(e-1.0) > 1e-9 {
			t.Errorf("%s = %v, want 1.0 for two distinct values", name, e)
		}
	}
	if math.Abs(metrics["overall_diversity"]-1.0) > 1e-9 {
		t.Errorf("overall = %v, want 1.0", metrics["overall_diversity"])
	}
}

func TestInferLanguage(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"hello world", "en"},
		{"こんにちは、元気です", "ja"},
		{"カタカナ", "ja"},
		{"안녕하세요", "ko"},
		{"中文内容", "zh"},
		{"", "en"},
	}
	for _, tt := range tests {
		if got := InferLanguage(tt.text); got != tt.want {
			t.Errorf("InferLanguage(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestInferRegion(t *testing.T) {
	tests := []struct {
		text   string
		handle string
		want   string
	}{
		{"Software engineer in Tokyo", "dev", "JP"},
		{"Based in New York", "dev", "US"},
		{"London tech scene", "dev", "GB"},
		{"日本のエンジニア", "dev", "JP"},
		{"뉴스와 기술", "dev", "KR"},
		{"nothing to go on", "dev", "unknown"},
	}
	for _, tt := range tests {
		if got := InferRegion(tt.text, tt.handle); got != tt.want {
			t.Errorf("InferRegion(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestLexiconSentiment(t *testing.T) {
	if got := LexiconSentiment("I love this amazing project"); got != "positive" {
		t.Errorf("positive text scored %q", got)
	}
	if got := LexiconSentiment("worst experience, terrible support"); got != "negative" {
		t.Errorf("negative text scored %q", got)
	}
	if got := LexiconSentiment("the sky is blue"); got != "neutral" {
		t.Errorf("neutral text scored %q", got)
	}
}
