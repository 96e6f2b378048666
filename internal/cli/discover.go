package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/terisuke/cohort/internal/ingest"
	"github.com/terisuke/cohort/internal/sample"
)

var (
	discoverTimeout time.Duration
	discoverMax     int
	discoverMethod  string
	discoverOutDir  string
	discoverRunID   string
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover <query>...",
	Short: "Discover accounts by keyword and sample a diverse cohort",
	Long: `Discover finds candidate accounts for one or more keyword queries:
- Primary API author search first, web search supplements thin results
- Candidates are deduplicated and enriched with metrics and attributes
- The pool is reduced by stratified, quota, or random sampling
- The cohort is exported as CSV plus a plain handle list

Example:
  cohort discover "machine learning"
  cohort discover ai robotics --max 30 --method quota
  cohort discover "生成AI" --out ./discovered`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 10*time.Minute, "overall discovery timeout")
	discoverCmd.Flags().IntVar(&discoverMax, "max", 0, "target cohort size (default 50)")
	discoverCmd.Flags().StringVar(&discoverMethod, "method", "", "sampling method: stratified, quota, random (default stratified)")
	discoverCmd.Flags().StringVar(&discoverOutDir, "out", "./discovered", "export directory")
	discoverCmd.Flags().StringVar(&discoverRunID, "run-id", "", "export file suffix (default a timestamp)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), discoverTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if discoverMax > 0 {
		cfg.Sampling.MaxResults = discoverMax
	}
	if discoverMethod != "" {
		cfg.Sampling.Method = discoverMethod
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	var searcher sample.AuthorSearcher
	enricher := sample.NewEnricher(nil, nil, 0, nil)
	if a.primary != nil {
		searcher = a.primary
		enricher = sample.NewEnricher(a.primary, a.tracker, cfg.RateLimit.WaitThreshold, nil)
	}
	sampler := sample.NewSampler(nil, nil, a.log)
	discoverer := sample.NewDiscoverer(searcher, a.web, enricher, sampler, a.gate, a.log)

	cohort, metrics, err := discoverer.DiscoverHybrid(ctx, args, sample.DiscoverOptions{
		Max:       cfg.Sampling.MaxResults,
		MinUseful: cfg.Sampling.MinUseful,
		PerQuery:  cfg.Sampling.PerQuery,
		Method:    sample.Method(cfg.Sampling.Method),
	})
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	if len(cohort) == 0 {
		return fmt.Errorf("no candidates found for %v", args)
	}

	runID := discoverRunID
	if runID == "" {
		runID = time.Now().UTC().Format("20060102_150405")
	}
	path, err := ingest.WriteDiscovery(discoverOutDir, runID, cohort)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "✓ %d accounts sampled (diversity %.3f)\n", len(cohort), metrics["overall_diversity"])
	for name, value := range metrics {
		if name != "overall_diversity" {
			fmt.Fprintf(os.Stderr, "    %s: %.3f\n", name, value)
		}
	}
	fmt.Fprintf(os.Stderr, "✓ wrote %s\n", path)
	return nil
}
