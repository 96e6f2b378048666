package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/terisuke/cohort/internal/cache"
	"github.com/terisuke/cohort/internal/model"
	"github.com/terisuke/cohort/internal/quality"
	"github.com/terisuke/cohort/internal/ratelimit"
	"github.com/terisuke/cohort/internal/source"
)

// Orchestrator produces a FetchResult for one identity by trying
// ordered acquisition strategies with bounded retries, falling through
// on failure. It never fabricates content: a result is either
// attributable to a real strategy or it is a failure.
type Orchestrator struct {
	primary source.PrimaryAPI       // nil when the primary upstream is unconfigured
	web     source.DiscoverySource  // required fallback channel
	persona source.PersonaGenerator // nil disables persona enrichment
	store   *cache.Store
	tracker *ratelimit.Tracker
	gate    *quality.Gate
	clock   ratelimit.Clock
	log     logrus.FieldLogger

	postLimit     int
	waitThreshold int
	retryDelay    time.Duration
}

// Options control one fetch.
type Options struct {
	// ForceRefresh bypasses the cache read (the write still happens).
	ForceRefresh bool
	// MaxWait caps any rate-limit sleep. Zero means a required wait
	// surfaces immediately as a rate-limited failure.
	MaxWait time.Duration
	// Persona enables persona generation for fetched posts.
	Persona bool
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Primary source.PrimaryAPI
	Web     source.DiscoverySource
	Persona source.PersonaGenerator
	Store   *cache.Store
	Tracker *ratelimit.Tracker
	Gate    *quality.Gate
	Clock   ratelimit.Clock
	Log     logrus.FieldLogger
}

// New creates an orchestrator.
func New(deps Deps, cfg *model.Config) *Orchestrator {
	clock := deps.Clock
	if clock == nil {
		clock = ratelimit.NewClock()
	}
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	postLimit := cfg.Primary.PostLimit
	if postLimit <= 0 {
		postLimit = 20
	}
	return &Orchestrator{
		primary:       deps.Primary,
		web:           deps.Web,
		persona:       deps.Persona,
		store:         deps.Store,
		tracker:       deps.Tracker,
		gate:          deps.Gate,
		clock:         clock,
		log:           log,
		postLimit:     postLimit,
		waitThreshold: cfg.RateLimit.WaitThreshold,
		retryDelay:    2 * time.Second,
	}
}

type strategy struct {
	name   string
	source model.Source
	run    func(ctx context.Context, handle string) ([]model.PostRecord, error)
}

func (o *Orchestrator) strategies() []strategy {
	var chain []strategy
	if o.primary != nil {
		chain = append(chain,
			strategy{
				name:   "primary timeline",
				source: model.SourcePrimaryAPI,
				run: func(ctx context.Context, handle string) ([]model.PostRecord, error) {
					return o.primary.UserTimeline(ctx, handle, o.postLimit)
				},
			},
			strategy{
				name:   "primary search",
				source: model.SourcePrimaryAPI,
				run: func(ctx context.Context, handle string) ([]model.PostRecord, error) {
					query := fmt.Sprintf("from:%s -is:retweet -is:reply", handle)
					return o.primary.SearchRecent(ctx, query, o.postLimit)
				},
			},
		)
	}
	if o.web != nil {
		chain = append(chain, strategy{
			name:   "web search",
			source: model.SourceWebSearch,
			run: func(ctx context.Context, handle string) ([]model.PostRecord, error) {
				return o.web.FetchPosts(ctx, handle, o.postLimit)
			},
		})
	}
	return chain
}

// Fetch resolves one identity to a FetchResult. All per-strategy
// failures are absorbed into the fallthrough chain; the returned error
// is non-nil only for rate-limit waits the caller disallowed and for
// context cancellation.
func (o *Orchestrator) Fetch(ctx context.Context, identity string, opts Options) (*model.FetchResult, error) {
	handle := model.NormalizeHandle(identity)
	log := o.log.WithField("handle", handle)

	if !opts.ForceRefresh && o.store != nil {
		if entry, ok := o.store.Get(handle); ok {
			log.Debug("cache hit")
			return &model.FetchResult{
				Posts:   entry.Posts,
				Persona: entry.Persona,
				Status:  model.StatusCached,
				Source:  entry.Source,
			}, nil
		}
	}

	if o.primary != nil && o.tracker != nil {
		if err := o.tracker.WaitIfNeeded(ctx, o.waitThreshold, opts.MaxWait); err != nil {
			if errors.Is(err, ratelimit.ErrCannotWait) {
				log.Warn("rate limit budget exhausted and waiting disallowed")
				return failedResult(), err
			}
			return failedResult(), err
		}
	}

	for _, strat := range o.strategies() {
		posts, err := o.runStrategy(ctx, strat, handle, opts)
		if err != nil {
			if ctx.Err() != nil {
				return failedResult(), ctx.Err()
			}
			log.WithField("strategy", strat.name).WithError(err).Warn("strategy failed")
			continue
		}
		if len(posts) == 0 {
			log.WithField("strategy", strat.name).Debug("strategy returned nothing")
			continue
		}
		if err := o.gate.CheckPosts(posts); err != nil {
			// A strategy handing back synthetic content is treated as
			// a failure of that strategy, never as a result.
			log.WithField("strategy", strat.name).WithError(err).Warn("strategy produced synthetic content, discarding")
			continue
		}

		log.WithFields(logrus.Fields{"strategy": strat.name, "posts": len(posts)}).Info("posts acquired")
		return o.finish(ctx, handle, posts, strat.source, opts)
	}

	log.Warn("all acquisition strategies exhausted")
	return failedResult(), nil
}

// runStrategy executes one strategy with at most one delayed retry for
// retriable errors. Terminal errors abandon the strategy immediately;
// rate-limit rejections route through the backoff-with-jitter wait when
// the caller allows it.
func (o *Orchestrator) runStrategy(ctx context.Context, strat strategy, handle string, opts Options) ([]model.PostRecord, error) {
	var posts []model.PostRecord

	// Retries are capped at one per strategy, so the rate-limit attempt
	// counter only ever reaches 1 here and the backoff term stays at its
	// first step.
	attempt := 0
	operation := func() error {
		var err error
		posts, err = strat.run(ctx, handle)
		if err == nil {
			return nil
		}

		if reset, ok := source.IsRateLimited(err); ok && strat.source == model.SourcePrimaryAPI {
			attempt++
			if attempt > 1 {
				return backoff.Permanent(err)
			}
			wait := ratelimit.RetryWait(attempt, reset, nil)
			if wait > opts.MaxWait {
				return backoff.Permanent(fmt.Errorf("%w: %s", ratelimit.ErrCannotWait, err))
			}
			if sleepErr := o.clock.Sleep(ctx, wait); sleepErr != nil {
				return backoff.Permanent(sleepErr)
			}
			return err // retry the strategy after the capped wait
		}

		if source.IsTerminal(err) || !source.IsRetriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(o.retryDelay), 1),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return posts, nil
}

// finish runs persona enrichment and quality scoring, persists the
// entry, and builds the success result.
func (o *Orchestrator) finish(ctx context.Context, handle string, posts []model.PostRecord, src model.Source, opts Options) (*model.FetchResult, error) {
	var persona *model.Persona
	if opts.Persona && o.persona != nil {
		p, err := o.persona.GeneratePersona(ctx, handle, posts)
		if err != nil {
			o.log.WithField("handle", handle).WithError(err).Warn("persona generation failed")
		} else {
			persona = p
		}
	}

	entry := &model.CacheEntry{
		Identity:  handle,
		Posts:     posts,
		Persona:   persona,
		FetchedAt: o.clock.Now().UTC(),
		Source:    src,
	}

	if persona != nil && o.gate != nil {
		score, provisional, reasons := o.gate.ScoreEntry(entry)
		persona.QualityScore = &score
		persona.Provisional = provisional
		persona.QualityReasons = reasons
	}

	if o.store != nil {
		if err := o.store.Put(handle, entry); err != nil {
			o.log.WithField("handle", handle).WithError(err).Warn("cache write failed")
		}
	}

	return &model.FetchResult{
		Posts:   posts,
		Persona: persona,
		Status:  model.StatusSuccess,
		Source:  src,
	}, nil
}

func failedResult() *model.FetchResult {
	return &model.FetchResult{
		Posts:  []model.PostRecord{},
		Status: model.StatusFailed,
		Source: model.SourceUnknown,
	}
}
