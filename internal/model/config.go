package model

import "time"

// Config holds the complete pipeline configuration
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Quality   QualityConfig   `yaml:"quality"`
	Sampling  SamplingConfig  `yaml:"sampling"`
	Batch     BatchConfig     `yaml:"batch"`
	WebSearch WebSearchConfig `yaml:"web_search"`
	Primary   PrimaryConfig   `yaml:"primary"`
}

// HTTPConfig configures outbound HTTP behavior
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	UserAgent  string        `yaml:"user_agent"`
	HTTPProxy  string        `yaml:"http_proxy,omitempty"`
	HTTPSProxy string        `yaml:"https_proxy,omitempty"`
	NoProxy    string        `yaml:"no_proxy,omitempty"`
}

// CacheConfig configures the two-tier cache store
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Dir        string        `yaml:"dir"`
	OverlayTTL time.Duration `yaml:"overlay_ttl"`
}

// RateLimitConfig configures the primary-upstream rate budget
type RateLimitConfig struct {
	Budget           int           `yaml:"budget"`            // initial call budget per window
	WaitThreshold    int           `yaml:"wait_threshold"`    // wait when remaining <= threshold
	ResetMargin      time.Duration `yaml:"reset_margin"`      // added on top of the reset delta
	ConservativeWait time.Duration `yaml:"conservative_wait"` // fallback when reset time unknown
	MaxWait          time.Duration `yaml:"max_wait"`          // default wait ceiling for batch runs
}

// QualityConfig holds the externally tunable quality thresholds
type QualityConfig struct {
	MinFollowers    int     `yaml:"min_followers"`
	MinPostCount    int     `yaml:"min_post_count"`
	MaxInactiveDays int     `yaml:"max_inactive_days"`
	MinQualityScore float64 `yaml:"min_quality_score"`
}

// SamplingConfig configures diversity sampling and hybrid discovery
type SamplingConfig struct {
	Method     string `yaml:"method"`      // stratified, quota, random
	MaxResults int    `yaml:"max_results"` // target cohort size
	MinUseful  int    `yaml:"min_useful"`  // below this, web search supplements a query
	PerQuery   int    `yaml:"per_query"`   // candidates requested per discovery query
}

// BatchConfig configures batch runs
type BatchConfig struct {
	Size              int           `yaml:"size"`  // identities per batch before pausing
	Pause             time.Duration `yaml:"pause"` // inter-batch pause
	MaxFallbackRatio  float64       `yaml:"max_fallback_ratio"`
	PersonaEnrichment bool          `yaml:"persona_enrichment"`
}

// WebSearchConfig configures the generative web-search fallback channel
type WebSearchConfig struct {
	APIKey            string  `yaml:"api_key,omitempty"`
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url"`
	Timeout           int     `yaml:"timeout"` // seconds
	MaxTokens         int     `yaml:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// PrimaryConfig configures the primary structured API
type PrimaryConfig struct {
	BearerToken string        `yaml:"bearer_token,omitempty"`
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	PostLimit   int           `yaml:"post_limit"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "cohort/0.2 (+https://github.com/terisuke/cohort)",
		},
		Cache: CacheConfig{
			Enabled:    true,
			Dir:        ".cache",
			OverlayTTL: 0, // session lifetime
		},
		RateLimit: RateLimitConfig{
			Budget:           15,
			WaitThreshold:    3,
			ResetMargin:      5 * time.Second,
			ConservativeWait: 15 * time.Minute,
			MaxWait:          20 * time.Minute,
		},
		Quality: QualityConfig{
			MinFollowers:    100,
			MinPostCount:    10,
			MaxInactiveDays: 180,
			MinQualityScore: 0.6,
		},
		Sampling: SamplingConfig{
			Method:     "stratified",
			MaxResults: 50,
			MinUseful:  5,
			PerQuery:   20,
		},
		Batch: BatchConfig{
			Size:              5,
			Pause:             2 * time.Second,
			MaxFallbackRatio:  0.05,
			PersonaEnrichment: true,
		},
		WebSearch: WebSearchConfig{
			Model:             "grok-4-fast-reasoning",
			BaseURL:           "https://api.x.ai/v1",
			Timeout:           30,
			MaxTokens:         2500,
			RequestsPerSecond: 1,
			Burst:             2,
		},
		Primary: PrimaryConfig{
			BaseURL:   "https://api.twitter.com/2",
			Timeout:   15 * time.Second,
			PostLimit: 20,
		},
	}
}
