package cli

import (
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/terisuke/cohort/internal/cache"
	"github.com/terisuke/cohort/internal/model"
	"github.com/terisuke/cohort/internal/pipeline"
	"github.com/terisuke/cohort/internal/quality"
	"github.com/terisuke/cohort/internal/ratelimit"
	"github.com/terisuke/cohort/internal/source"
)

// app bundles the wired pipeline components for one command run.
type app struct {
	cfg     *model.Config
	log     *logrus.Logger
	store   *cache.Store
	tracker *ratelimit.Tracker
	gate    *quality.Gate
	primary *source.XAPIClient
	web     *source.WebSearch
	orch    *pipeline.Orchestrator
}

// loadConfig layers the config file and COHORT_* environment values
// viper has read over the built-in defaults. The defaults are seeded
// into viper first so environment-only keys resolve during unmarshal.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal default config: %w", err)
	}
	defaults := map[string]interface{}{}
	if err := yaml.Unmarshal(raw, &defaults); err != nil {
		return nil, fmt.Errorf("seed default config: %w", err)
	}
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}

	if err := viper.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	return cfg, nil
}

// loadCredentials pulls API credentials from the environment. The
// primary token is optional; without it the pipeline runs on the
// web-search channel alone.
func loadCredentials(cfg *model.Config) {
	if cfg.Primary.BearerToken == "" {
		cfg.Primary.BearerToken = os.Getenv("X_BEARER_TOKEN")
	}
	if cfg.WebSearch.APIKey == "" {
		cfg.WebSearch.APIKey = os.Getenv("XAI_API_KEY")
	}
}

// newApp wires the full pipeline from configuration.
func newApp(cfg *model.Config) (*app, error) {
	loadCredentials(cfg)

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if cfg.WebSearch.APIKey == "" {
		return nil, fmt.Errorf("XAI_API_KEY environment variable not set")
	}

	var store *cache.Store
	if cfg.Cache.Enabled {
		store = cache.NewDefaultStore(cfg.Cache.Dir, log)
	}

	clock := ratelimit.NewClock()
	tracker := ratelimit.NewTracker(cfg.RateLimit.Budget, cfg.RateLimit.ResetMargin, cfg.RateLimit.ConservativeWait, clock, log)
	gate := quality.NewGate(cfg.Quality)

	web, err := source.NewWebSearch(cfg.WebSearch, log)
	if err != nil {
		return nil, fmt.Errorf("web search client: %w", err)
	}

	var primary *source.XAPIClient
	deps := pipeline.Deps{
		Web:     web,
		Persona: web,
		Store:   store,
		Tracker: tracker,
		Gate:    gate,
		Clock:   clock,
		Log:     log,
	}
	if cfg.Primary.BearerToken != "" {
		primary = source.NewXAPIClient(cfg.Primary, cfg.HTTP, tracker, log)
		deps.Primary = primary
	} else {
		log.Warn("no primary API token, running on web search only")
	}

	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		tracker: tracker,
		gate:    gate,
		primary: primary,
		web:     web,
		orch:    pipeline.New(deps, cfg),
	}, nil
}
