package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/terisuke/cohort/internal/cache"
	"github.com/terisuke/cohort/internal/quality"
	"github.com/terisuke/cohort/internal/worker"
)

var (
	verifyTimeout  time.Duration
	verifyCacheDir string
	verifyWorkers  int
	verifyNoScore  bool
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify [handle]",
	Short: "Verify cached entries and backfill quality scores",
	Long: `Verify checks cached entries, the whole cache in parallel or a
single handle:
- Contaminated or unreadable entries are invalidated
- Entries whose persona has no quality score get one backfilled
- Healthy entries are left untouched

Example:
  cohort verify
  cohort verify jack
  cohort verify --cache-dir ./prod-cache --workers 8`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", 5*time.Minute, "verification timeout")
	verifyCmd.Flags().StringVar(&verifyCacheDir, "cache-dir", "", "cache directory (default .cache)")
	verifyCmd.Flags().IntVar(&verifyWorkers, "workers", runtime.NumCPU(), "number of verification workers")
	verifyCmd.Flags().BoolVar(&verifyNoScore, "no-score", false, "skip quality backfill")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if verifyCacheDir != "" {
		cfg.Cache.Dir = verifyCacheDir
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	store := cache.NewDefaultStore(cfg.Cache.Dir, log)

	var scorer cache.QualityScorer
	if !verifyNoScore {
		scorer = quality.NewGate(cfg.Quality)
	}

	if len(args) == 1 {
		job := &worker.VerifyJob{Identity: args[0], Store: store, Scorer: scorer}
		result := job.Execute(ctx).(*worker.VerifyResult)
		if result.Err != nil {
			return fmt.Errorf("verify %s: %w", args[0], result.Err)
		}
		fmt.Fprintf(os.Stderr, "  %s: %s\n", args[0], result.Outcome)
		if result.Outcome == worker.VerifyInvalidated {
			return fmt.Errorf("%s had no healthy cache entry", args[0])
		}
		return nil
	}

	summary := worker.VerifyStore(ctx, store, scorer, verifyWorkers, log)

	fmt.Fprintf(os.Stderr, "  Entries:      %d\n", summary.Total)
	fmt.Fprintf(os.Stderr, "  Healthy:      %d\n", summary.Healthy)
	fmt.Fprintf(os.Stderr, "  Backfilled:   %d\n", summary.Backfilled)
	fmt.Fprintf(os.Stderr, "  Invalidated:  %d\n", summary.Invalidated)
	fmt.Fprintf(os.Stderr, "  Errors:       %d\n", summary.Errors)

	if summary.Errors > 0 {
		return fmt.Errorf("%d entries could not be verified", summary.Errors)
	}
	return nil
}
