package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/terisuke/cohort/internal/model"
	"github.com/terisuke/cohort/internal/pipeline"
)

// fakeClock records pauses instead of sleeping.
type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

// fakeFetcher scripts per-identity outcomes and can cancel mid-run.
type fakeFetcher struct {
	results     map[string]*model.FetchResult
	errs        map[string]error
	processed   []string
	cancelAfter int
	cancel      context.CancelFunc
}

func (f *fakeFetcher) Fetch(ctx context.Context, identity string, opts pipeline.Options) (*model.FetchResult, error) {
	f.processed = append(f.processed, identity)
	if f.cancel != nil && len(f.processed) == f.cancelAfter {
		f.cancel()
	}
	if err, ok := f.errs[identity]; ok {
		return &model.FetchResult{Posts: []model.PostRecord{}, Status: model.StatusFailed, Source: model.SourceUnknown}, err
	}
	if r, ok := f.results[identity]; ok {
		return r, nil
	}
	return &model.FetchResult{
		Posts:  []model.PostRecord{{ID: "1801"}},
		Status: model.StatusSuccess,
		Source: model.SourcePrimaryAPI,
	}, nil
}

func testRunner(f *fakeFetcher, clock *fakeClock, cfg model.BatchConfig) *BatchRunner {
	return NewBatchRunner(f, clock, cfg, nil)
}

func TestBatchRunner_SequentialRun(t *testing.T) {
	f := &fakeFetcher{
		results: map[string]*model.FetchResult{
			"cached1": {Posts: []model.PostRecord{{ID: "1"}}, Status: model.StatusCached, Source: model.SourcePrimaryAPI},
			"webby":   {Posts: []model.PostRecord{{ID: "web_search_webby_0"}}, Status: model.StatusSuccess, Source: model.SourceWebSearch},
		},
		errs: map[string]error{"broken": errors.New("nothing found")},
	}
	clock := newFakeClock()
	runner := testRunner(f, clock, model.BatchConfig{Size: 5, Pause: 2 * time.Second})

	ids := []string{"a", "b", "cached1", "webby", "broken"}
	stats := runner.Run(context.Background(), ids, pipeline.Options{})

	if stats.Total != 5 || stats.Succeeded != 3 || stats.Cached != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.PrimaryAPI != 3 || stats.WebSearch != 1 {
		t.Errorf("source counts = primary %d web %d, want 3/1", stats.PrimaryAPI, stats.WebSearch)
	}
	if len(stats.FailedIdentities) != 1 || stats.FailedIdentities[0] != "broken" {
		t.Errorf("failed identities = %v", stats.FailedIdentities)
	}
	if stats.RunID == "" {
		t.Error("run id missing")
	}
	// Identities are processed strictly in order, one at a time.
	for i, id := range ids {
		if f.processed[i] != id {
			t.Fatalf("processed = %v, want input order", f.processed)
		}
	}
}

func TestBatchRunner_PausesBetweenBatches(t *testing.T) {
	f := &fakeFetcher{}
	clock := newFakeClock()
	runner := testRunner(f, clock, model.BatchConfig{Size: 2, Pause: 2 * time.Second})

	runner.Run(context.Background(), []string{"a", "b", "c", "d", "e"}, pipeline.Options{})

	// Pauses after identities 2 and 4, never after the final one.
	if len(clock.slept) != 2 {
		t.Fatalf("pauses = %v, want exactly 2", clock.slept)
	}
	for _, d := range clock.slept {
		if d != 2*time.Second {
			t.Errorf("pause = %v, want 2s", d)
		}
	}
}

func TestBatchRunner_AbortBetweenIdentities(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeFetcher{cancelAfter: 3, cancel: cancel}
	runner := testRunner(f, newFakeClock(), model.BatchConfig{Size: 10})

	stats := runner.Run(ctx, []string{"a", "b", "c", "d", "e"}, pipeline.Options{})

	// The cancellation lands during the third fetch; that fetch
	// completes and nothing after it starts.
	if len(f.processed) != 3 {
		t.Errorf("processed %v, want exactly the first 3", f.processed)
	}
	if !stats.Aborted {
		t.Error("aborted flag not set")
	}
	if stats.Succeeded != 3 {
		t.Errorf("succeeded = %d, want 3 completed before the abort", stats.Succeeded)
	}
}

func TestStats_Ratios(t *testing.T) {
	s := &Stats{Succeeded: 18, Cached: 2, WebSearch: 1}
	if got := s.FallbackRatio(); got != 0.05 {
		t.Errorf("fallback ratio = %v, want 0.05", got)
	}
	if got := s.RealDataRatio(); got != 0.95 {
		t.Errorf("real data ratio = %v, want 0.95", got)
	}

	empty := &Stats{}
	if empty.FallbackRatio() != 0 || empty.RealDataRatio() != 0 {
		t.Error("empty stats should yield zero ratios")
	}
}

func TestBatchRunner_ProvisionalPrimaryResultsAreAuthoritative(t *testing.T) {
	// A provisional quality score on a primary-sourced persona marks
	// the score, not the provenance; only fallback results count
	// against the non-authoritative budget.
	provisionalScore := 0.5
	f := &fakeFetcher{
		results: map[string]*model.FetchResult{
			"a": {
				Posts: []model.PostRecord{{ID: "1801"}},
				Persona: &model.Persona{
					Name: "a", QualityScore: &provisionalScore, Provisional: true,
					SchemaVersion: model.PersonaSchemaVersion,
				},
				Status: model.StatusSuccess,
				Source: model.SourcePrimaryAPI,
			},
			"b": {
				Posts: []model.PostRecord{{ID: "web_search_b_0"}},
				Persona: &model.Persona{
					Name: "b", QualityScore: &provisionalScore, Provisional: true,
					SchemaVersion: model.PersonaSchemaVersion,
				},
				Status: model.StatusSuccess,
				Source: model.SourceWebSearch,
			},
		},
	}
	runner := testRunner(f, newFakeClock(), model.BatchConfig{Size: 5})

	stats := runner.Run(context.Background(), []string{"a", "b"}, pipeline.Options{})

	if got := stats.FallbackRatio(); got != 0.5 {
		t.Errorf("fallback ratio = %v, want 0.5 (the web-sourced half)", got)
	}
	if got := stats.RealDataRatio(); got != 0.5 {
		t.Errorf("real data ratio = %v, want 0.5", got)
	}
}
