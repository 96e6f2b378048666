package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/terisuke/cohort/internal/ingest"
	"github.com/terisuke/cohort/internal/pipeline"
	"github.com/terisuke/cohort/internal/worker"
)

var (
	batchTimeout     time.Duration
	batchSize        int
	batchPause       time.Duration
	batchForce       bool
	batchNoPersona   bool
	batchNoCache     bool
	batchCacheDir    string
	batchMaxFallback float64
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:     "batch <file>",
	Aliases: []string{"ingest"},
	Short:   "Fetch multiple accounts from an identity file",
	Long: `Batch fetches accounts sequentially from an identity file:
- Accepts CSV (account/username/name/handle column) or one handle per line
- Fetches one account at a time against the shared rate budget
- Pauses between batches to pace the upstream
- Ctrl-C aborts cleanly between accounts; completed work stays cached

The command exits non-zero when any account failed or when too large a
share of accounts fell through to web search.

Example:
  cohort batch accounts.csv
  cohort batch handles.txt --batch-size 10 --pause 5s
  cohort batch accounts.csv --force-refresh`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 2*time.Hour, "total timeout for the batch run")
	batchCmd.Flags().IntVar(&batchSize, "batch-size", 0, "accounts per batch before pausing (default 5)")
	batchCmd.Flags().DurationVar(&batchPause, "pause", 0, "inter-batch pause (default 2s)")
	batchCmd.Flags().BoolVar(&batchForce, "force-refresh", false, "bypass cache reads for every account")
	batchCmd.Flags().BoolVar(&batchNoPersona, "no-persona", false, "skip persona generation")
	batchCmd.Flags().BoolVar(&batchNoCache, "no-cache", false, "disable the cache entirely")
	batchCmd.Flags().StringVar(&batchCacheDir, "cache-dir", "", "cache directory (default .cache)")
	batchCmd.Flags().Float64Var(&batchMaxFallback, "max-fallback-ratio", 0, "failure threshold for the web-search share (default 0.05)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Cache.Enabled = !batchNoCache
	if batchCacheDir != "" {
		cfg.Cache.Dir = batchCacheDir
	}
	if batchSize > 0 {
		cfg.Batch.Size = batchSize
	}
	if batchPause > 0 {
		cfg.Batch.Pause = batchPause
	}
	if batchMaxFallback > 0 {
		cfg.Batch.MaxFallbackRatio = batchMaxFallback
	}
	if batchNoPersona {
		cfg.Batch.PersonaEnrichment = false
	}

	identities, err := ingest.ReadIdentities(file)
	if err != nil {
		return err
	}
	if len(identities) == 0 {
		return fmt.Errorf("no identities in %s", file)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "⚙️  Fetching %d accounts (batch size %d, pause %v)...\n",
		len(identities), cfg.Batch.Size, cfg.Batch.Pause)

	runner := worker.NewBatchRunner(a.orch, nil, cfg.Batch, a.log)
	stats := runner.Run(ctx, identities, pipeline.Options{
		ForceRefresh: batchForce,
		MaxWait:      cfg.RateLimit.MaxWait,
		Persona:      cfg.Batch.PersonaEnrichment,
	})

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Run:        %s\n", stats.RunID)
	fmt.Fprintf(os.Stderr, "  Total:      %d accounts\n", stats.Total)
	fmt.Fprintf(os.Stderr, "  Fetched:    %d\n", stats.Succeeded)
	fmt.Fprintf(os.Stderr, "  Cached:     %d\n", stats.Cached)
	fmt.Fprintf(os.Stderr, "  Failed:     %d\n", stats.Failed)
	fmt.Fprintf(os.Stderr, "  Real data:  %.1f%%\n", stats.RealDataRatio()*100)
	fmt.Fprintf(os.Stderr, "  Elapsed:    %v\n", stats.Elapsed)
	for _, identity := range stats.FailedIdentities {
		fmt.Fprintf(os.Stderr, "  ✗ %s\n", identity)
	}

	if stats.Aborted {
		return fmt.Errorf("batch run aborted after %d accounts", stats.Succeeded+stats.Cached+stats.Failed)
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%d of %d accounts failed", stats.Failed, stats.Total)
	}
	if ratio := stats.FallbackRatio(); ratio > cfg.Batch.MaxFallbackRatio {
		return fmt.Errorf("web-search fallback ratio %.1f%% exceeds %.1f%%",
			ratio*100, cfg.Batch.MaxFallbackRatio*100)
	}
	return nil
}
