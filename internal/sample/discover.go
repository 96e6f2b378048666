package sample

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/terisuke/cohort/internal/model"
	"github.com/terisuke/cohort/internal/quality"
	"github.com/terisuke/cohort/internal/source"
)

// AuthorSearcher is the primary-channel discovery capability: find
// accounts by keyword through the structured API.
type AuthorSearcher interface {
	SearchAuthors(ctx context.Context, keyword string, max int) ([]model.AccountCandidate, error)
}

// CandidateGate scores candidates against the quality thresholds.
// Implemented by the quality gate.
type CandidateGate interface {
	Evaluate(c model.AccountCandidate) quality.Result
}

// Method selects the sampling strategy for discovery output.
type Method string

const (
	MethodStratified Method = "stratified"
	MethodQuota      Method = "quota"
	MethodRandom     Method = "random"
)

// DiscoverOptions tunes one hybrid discovery run.
type DiscoverOptions struct {
	Max        int      // target cohort size
	MinUseful  int      // primary yield below this triggers the web supplement
	PerQuery   int      // per-query fetch cap
	Method     Method   // sampling strategy applied to the merged pool
	Attributes []string // stratification attributes; empty means DefaultAttributes
}

// Discoverer merges primary-API and web-search account discovery into
// one diversity-sampled cohort.
type Discoverer struct {
	primary  AuthorSearcher
	web      source.DiscoverySource
	enricher *Enricher
	sampler  *Sampler
	gate     CandidateGate
	log      logrus.FieldLogger
}

// NewDiscoverer creates a hybrid discoverer. primary may be nil; the
// web channel then carries discovery alone. A nil gate disables
// quality classification.
func NewDiscoverer(primary AuthorSearcher, web source.DiscoverySource, enricher *Enricher, sampler *Sampler, gate CandidateGate, log logrus.FieldLogger) *Discoverer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Discoverer{primary: primary, web: web, enricher: enricher, sampler: sampler, gate: gate, log: log}
}

// DiscoverHybrid collects candidates per query from the primary channel
// first, supplements from web search only when the primary yield falls
// short, then dedupes, enriches, classifies through the quality gate,
// samples, and stamps each selected candidate with the cohort's overall
// diversity score. Collection stops once the raw pool reaches twice the
// target size.
func (d *Discoverer) DiscoverHybrid(ctx context.Context, queries []string, opts DiscoverOptions) ([]model.AccountCandidate, map[string]float64, error) {
	if opts.Max <= 0 {
		opts.Max = 50
	}
	if opts.PerQuery <= 0 {
		opts.PerQuery = 20
	}
	if opts.MinUseful <= 0 {
		opts.MinUseful = 5
	}
	if opts.Method == "" {
		opts.Method = MethodStratified
	}

	poolCap := opts.Max * 2
	var pool []model.AccountCandidate
	for _, query := range queries {
		if len(pool) >= poolCap {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		found := 0
		if d.primary != nil {
			candidates, err := d.primary.SearchAuthors(ctx, query, opts.PerQuery)
			if err != nil {
				d.log.WithError(err).WithField("query", query).Warn("primary discovery failed")
			} else {
				pool = append(pool, candidates...)
				found = len(candidates)
			}
		}

		if found < opts.MinUseful && d.web != nil {
			candidates, err := d.web.DiscoverAccounts(ctx, query, opts.PerQuery)
			if err != nil {
				d.log.WithError(err).WithField("query", query).Warn("web discovery failed")
			} else {
				pool = append(pool, candidates...)
			}
		}
	}

	pool = Dedupe(pool)
	if len(pool) == 0 {
		return []model.AccountCandidate{}, map[string]float64{}, nil
	}
	if d.enricher != nil {
		pool = d.enricher.Enrich(ctx, pool)
	}
	pool = d.classify(pool)
	if len(pool) == 0 {
		return []model.AccountCandidate{}, map[string]float64{}, nil
	}

	var sampled []model.AccountCandidate
	switch opts.Method {
	case MethodQuota:
		sampled = d.sampler.Quota(pool, DefaultQuotas(opts.Max), opts.Max)
	case MethodRandom:
		sampled = d.sampler.Random(pool, opts.Max)
	default:
		sampled = d.sampler.Stratified(pool, opts.Max, opts.Attributes)
	}

	metrics := Metrics(sampled, opts.Attributes)
	overall := metrics["overall_diversity"]
	for i := range sampled {
		sampled[i].DiversityScore = overall
		if sampled[i].Source == "" {
			sampled[i].Source = "hybrid"
		}
	}

	d.log.WithFields(logrus.Fields{
		"pool":      len(pool),
		"sampled":   len(sampled),
		"diversity": overall,
	}).Info("hybrid discovery complete")
	return sampled, metrics, nil
}

// classify stamps each candidate with its quality score and drops the
// ones that fail the gate before sampling sees them. Candidates
// without upstream metrics carry a provisional score so consumers can
// tell it apart from an authoritative one.
func (d *Discoverer) classify(pool []model.AccountCandidate) []model.AccountCandidate {
	if d.gate == nil {
		return pool
	}

	kept := pool[:0]
	dropped := 0
	for _, c := range pool {
		res := d.gate.Evaluate(c)
		c.QualityScore = res.Score
		c.QualityProvisional = res.Provisional
		if !res.Passed {
			dropped++
			d.log.WithFields(logrus.Fields{
				"handle":  c.Handle,
				"score":   res.Score,
				"reasons": res.Reasons,
			}).Debug("candidate failed quality gate")
			continue
		}
		kept = append(kept, c)
	}
	if dropped > 0 {
		d.log.WithFields(logrus.Fields{"dropped": dropped, "kept": len(kept)}).Info("quality gate filtered candidates")
	}
	return kept
}
