package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/terisuke/cohort/internal/model"
	"github.com/terisuke/cohort/internal/pipeline"
	"github.com/terisuke/cohort/internal/ratelimit"
)

// Fetcher fetches one identity's posts.
type Fetcher interface {
	Fetch(ctx context.Context, identity string, opts pipeline.Options) (*model.FetchResult, error)
}

// Stats summarizes one batch run.
type Stats struct {
	RunID      string        `json:"run_id"`
	Total      int           `json:"total"`
	Succeeded  int           `json:"succeeded"`
	Cached     int           `json:"cached"`
	Failed     int           `json:"failed"`
	PrimaryAPI int           `json:"primary_api"`
	WebSearch  int           `json:"web_search"`
	Aborted    bool          `json:"aborted"`
	Elapsed    time.Duration `json:"elapsed"`

	FailedIdentities []string `json:"failed_identities,omitempty"`
}

// RealDataRatio is the share of resolved identities served by the
// primary channel or the cache.
func (s *Stats) RealDataRatio() float64 {
	resolved := s.Succeeded + s.Cached
	if resolved == 0 {
		return 0.0
	}
	return float64(resolved-s.WebSearch) / float64(resolved)
}

// FallbackRatio is the share of resolved identities that fell through
// to web search. This is the non-authoritative share: provenance is
// what makes a result authoritative, so primary-sourced results count
// as real data even when their persona carries a provisional quality
// score (the flag marks score confidence, not content origin).
func (s *Stats) FallbackRatio() float64 {
	resolved := s.Succeeded + s.Cached
	if resolved == 0 {
		return 0.0
	}
	return float64(s.WebSearch) / float64(resolved)
}

// BatchRunner fetches identities strictly one at a time. The primary
// upstream is a shared rate budget, so there is no concurrency here;
// pacing comes from the per-batch pause.
type BatchRunner struct {
	fetcher Fetcher
	clock   ratelimit.Clock
	cfg     model.BatchConfig
	log     logrus.FieldLogger
}

// NewBatchRunner creates a batch runner. A nil clock gets the real one.
func NewBatchRunner(fetcher Fetcher, clock ratelimit.Clock, cfg model.BatchConfig, log logrus.FieldLogger) *BatchRunner {
	if clock == nil {
		clock = ratelimit.NewClock()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Size <= 0 {
		cfg.Size = 5
	}
	return &BatchRunner{fetcher: fetcher, clock: clock, cfg: cfg, log: log}
}

// Run processes the identities sequentially, pausing after each full
// batch. Cancellation is honored between identities: completed work
// stays cached and the stats mark the run aborted.
func (r *BatchRunner) Run(ctx context.Context, identities []string, opts pipeline.Options) *Stats {
	stats := &Stats{
		RunID: uuid.New().String(),
		Total: len(identities),
	}
	start := r.clock.Now()
	log := r.log.WithField("run_id", stats.RunID)
	log.WithField("identities", len(identities)).Info("batch run started")

	for i, identity := range identities {
		if ctx.Err() != nil {
			stats.Aborted = true
			log.WithField("processed", i).Warn("batch run aborted")
			break
		}

		result, err := r.fetcher.Fetch(ctx, identity, opts)
		switch {
		case err != nil || result == nil || result.Status == model.StatusFailed:
			stats.Failed++
			stats.FailedIdentities = append(stats.FailedIdentities, identity)
			log.WithField("handle", identity).WithError(err).Warn("fetch failed")
		case result.Status == model.StatusCached:
			stats.Cached++
			r.countSource(stats, result.Source)
		default:
			stats.Succeeded++
			r.countSource(stats, result.Source)
		}

		// Pause between full batches, never after the final identity.
		if r.cfg.Pause > 0 && (i+1)%r.cfg.Size == 0 && i+1 < len(identities) {
			if err := r.clock.Sleep(ctx, r.cfg.Pause); err != nil {
				stats.Aborted = true
				log.WithField("processed", i+1).Warn("batch run aborted")
				break
			}
		}
	}

	stats.Elapsed = r.clock.Now().Sub(start)
	log.WithFields(logrus.Fields{
		"succeeded": stats.Succeeded,
		"cached":    stats.Cached,
		"failed":    stats.Failed,
		"fallback":  stats.FallbackRatio(),
		"elapsed":   stats.Elapsed,
	}).Info("batch run finished")
	return stats
}

func (r *BatchRunner) countSource(stats *Stats, src model.Source) {
	switch src {
	case model.SourcePrimaryAPI:
		stats.PrimaryAPI++
	case model.SourceWebSearch:
		stats.WebSearch++
	}
}
