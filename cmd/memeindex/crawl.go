package main

import (
	"fmt"

	"github.com/helixml/memeindex/internal/config"
	"github.com/spf13/cobra"
)

func crawlCmd() *cobra.Command {
	var (
		startURL string
		maxPages int
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a listing and publish posts to the queue",
		Long: `Walk a paginated old-reddit listing and publish every post found to the queue.

A post that cannot be published is logged and skipped.

Environment variables:
  CRAWLER_START_URL            First page (default: https://old.reddit.com/r/MemeEconomy/)
  CRAWLER_MAX_PAGES            Page cap, 0 follows pagination to the end (default: 0)
  CRAWLER_REQUESTS_PER_SECOND  Fetch rate limit (default: 1)
  CRAWLER_USER_AGENT           HTTP User-Agent`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, startURL, maxPages)
		},
	}

	cmd.Flags().StringVar(&startURL, "start-url", "", "First listing page (overrides CRAWLER_START_URL)")
	cmd.Flags().IntVar(&maxPages, "max-pages", -1, "Page cap, 0 for no limit (overrides CRAWLER_MAX_PAGES)")

	return cmd
}

func runCrawl(cmd *cobra.Command, startURL string, maxPages int) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg = cfg.Apply(config.WithCrawlerConfig(cfg.Crawler().WithStartURL(startURL).WithMaxPages(maxPages)))

	client, logger, err := newClient(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	ctx, stop := signalContext()
	defer stop()

	stats, err := client.Crawl(ctx, "")
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "pages: %d\nfound: %d\nsent: %d\nsend failures: %d\n",
		stats.Pages, stats.Found, stats.Sent, stats.SendFailures)
	return err
}
