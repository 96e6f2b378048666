package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/terisuke/cohort/internal/model"
	"github.com/terisuke/cohort/internal/pipeline"
)

var (
	fetchTimeout   time.Duration
	fetchForce     bool
	fetchNoWait    bool
	fetchNoPersona bool
	fetchNoCache   bool
	fetchCacheDir  string
	fetchPostLimit int
	fetchOutJSON   string
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch <handle>",
	Short: "Fetch real posts for a single account",
	Long: `Fetch acquires an account's recent posts:
- Cache first, unless --force-refresh
- Primary API timeline, then primary keyword search
- Live web search as the final fallback
- Persona enrichment and quality scoring on success

Example:
  cohort fetch jack
  cohort fetch @jack --force-refresh --json result.json
  cohort fetch jack --no-wait`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 5*time.Minute, "overall fetch timeout")
	fetchCmd.Flags().BoolVar(&fetchForce, "force-refresh", false, "bypass the cache read (the write still happens)")
	fetchCmd.Flags().BoolVar(&fetchNoWait, "no-wait", false, "fail immediately instead of waiting out a rate limit")
	fetchCmd.Flags().BoolVar(&fetchNoPersona, "no-persona", false, "skip persona generation")
	fetchCmd.Flags().BoolVar(&fetchNoCache, "no-cache", false, "disable the cache entirely")
	fetchCmd.Flags().StringVar(&fetchCacheDir, "cache-dir", "", "cache directory (default .cache)")
	fetchCmd.Flags().IntVar(&fetchPostLimit, "posts", 0, "posts to request per account (default 20)")
	fetchCmd.Flags().StringVar(&fetchOutJSON, "json", "", "write the fetch result to a JSON file")
}

func runFetch(cmd *cobra.Command, args []string) error {
	handle := model.NormalizeHandle(args[0])
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Cache.Enabled = !fetchNoCache
	if fetchCacheDir != "" {
		cfg.Cache.Dir = fetchCacheDir
	}
	if fetchPostLimit > 0 {
		cfg.Primary.PostLimit = fetchPostLimit
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		ForceRefresh: fetchForce,
		Persona:      !fetchNoPersona,
	}
	if !fetchNoWait {
		opts.MaxWait = cfg.RateLimit.MaxWait
	}

	result, err := a.orch.Fetch(ctx, handle, opts)
	if err != nil {
		return fmt.Errorf("fetch @%s: %w", handle, err)
	}
	if result.Status == model.StatusFailed {
		return fmt.Errorf("fetch @%s: no real posts found on any channel", handle)
	}

	fmt.Fprintf(os.Stderr, "✓ @%s: %d posts (%s, %s)\n", handle, len(result.Posts), result.Status, result.Source)
	if result.Persona != nil {
		fmt.Fprintf(os.Stderr, "✓ persona: %s\n", result.Persona.Name)
		if result.Persona.QualityScore != nil {
			fmt.Fprintf(os.Stderr, "✓ quality: %.2f (provisional: %v)\n", *result.Persona.QualityScore, result.Persona.Provisional)
		}
	}

	if fetchOutJSON != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		if err := os.WriteFile(fetchOutJSON, data, 0o644); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ wrote %s\n", fetchOutJSON)
	} else {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Println(string(data))
	}

	return nil
}
