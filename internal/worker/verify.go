package worker

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/terisuke/cohort/internal/cache"
)

// VerifyOutcome classifies one cache entry after verification.
type VerifyOutcome string

const (
	VerifyHealthy     VerifyOutcome = "healthy"
	VerifyBackfilled  VerifyOutcome = "backfilled"
	VerifyInvalidated VerifyOutcome = "invalidated"
	VerifyError       VerifyOutcome = "error"
)

// VerifyJob checks one cached identity: contaminated or unreadable
// entries are invalidated, healthy entries optionally get a quality
// backfill.
type VerifyJob struct {
	Identity string
	Store    *cache.Store
	Scorer   cache.QualityScorer
}

// VerifyResult is the outcome of verifying one identity.
type VerifyResult struct {
	Identity string
	Outcome  VerifyOutcome
	Err      error
}

// GetError returns the verification error, if any.
func (r *VerifyResult) GetError() error {
	return r.Err
}

// Execute verifies the identity. The store's Get already invalidates
// contaminated and malformed entries, so a miss here for a listed
// identity means the entry was purged.
func (j *VerifyJob) Execute(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return &VerifyResult{Identity: j.Identity, Outcome: VerifyError, Err: err}
	}

	if _, ok := j.Store.Get(j.Identity); !ok {
		return &VerifyResult{Identity: j.Identity, Outcome: VerifyInvalidated}
	}

	if j.Scorer != nil {
		updated, err := j.Store.BackfillQuality(j.Identity, j.Scorer)
		if err != nil {
			return &VerifyResult{Identity: j.Identity, Outcome: VerifyError, Err: err}
		}
		if updated {
			return &VerifyResult{Identity: j.Identity, Outcome: VerifyBackfilled}
		}
	}
	return &VerifyResult{Identity: j.Identity, Outcome: VerifyHealthy}
}

// VerifySummary aggregates a verification sweep.
type VerifySummary struct {
	Total       int
	Healthy     int
	Backfilled  int
	Invalidated int
	Errors      int
}

// VerifyStore sweeps every cached identity through a worker pool and
// aggregates the outcomes.
func VerifyStore(ctx context.Context, store *cache.Store, scorer cache.QualityScorer, workers int, log logrus.FieldLogger) *VerifySummary {
	if log == nil {
		log = logrus.StandardLogger()
	}

	identities := store.Identities()
	summary := &VerifySummary{Total: len(identities)}
	if len(identities) == 0 {
		return summary
	}

	pool := NewPool(workers)
	pool.Start()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			pool.cancel()
		case <-done:
		}
	}()

	go func() {
		for _, identity := range identities {
			pool.Submit(&VerifyJob{Identity: identity, Store: store, Scorer: scorer})
		}
		pool.Finish()
	}()

	for result := range pool.Results() {
		vr := result.(*VerifyResult)
		switch vr.Outcome {
		case VerifyHealthy:
			summary.Healthy++
		case VerifyBackfilled:
			summary.Backfilled++
		case VerifyInvalidated:
			summary.Invalidated++
			log.WithField("handle", vr.Identity).Warn("cache entry invalidated")
		default:
			summary.Errors++
			log.WithField("handle", vr.Identity).WithError(vr.Err).Warn("verification error")
		}
	}

	// Entries dropped by a cancelled sweep count as errors.
	processed := summary.Healthy + summary.Backfilled + summary.Invalidated + summary.Errors
	if processed < summary.Total {
		summary.Errors += summary.Total - processed
	}
	return summary
}
