package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/helixml/memeindex/infrastructure/api"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func indexCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Consume the queue and index posts",
		Long: `Consume candidate posts from the queue, embed their titles and store them.

Messages are deleted only after the post is stored. Poison messages, and
messages that fail after INDEXER_MAX_RECEIVES deliveries, are moved to the
dead-letter queue when QUEUE_DEAD_LETTER is set.

Environment variables:
  INDEXER_BATCH_SIZE           Messages per receive (default: 10)
  INDEXER_WAIT_SECONDS         Long-poll wait (default: 20)
  INDEXER_CONCURRENCY          Messages processed at once (default: 1)
  INDEXER_MAX_RECEIVES         Deliveries before dead-lettering, 0 disables (default: 5)
  INDEXER_MESSAGE_TIMEOUT      Per-message deadline in seconds (default: 60)
  INDEXER_BACKOFF_INITIAL      First retry delay after a receive failure (default: 1s)
  INDEXER_BACKOFF_MAX          Retry delay cap (default: 60s)
  INDEXER_PERSISTENT_FAILURES  Failures before the loop logs at error (default: 5)`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

func runIndex(cmd *cobra.Command, metricsAddr string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	client, logger, err := newClient(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	ctx, stop := signalContext()
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if metricsAddr != "" {
		handler := client.MetricsHandler()
		if handler == nil {
			return fmt.Errorf("metrics are disabled")
		}
		server := api.NewServer(metricsAddr, logger)
		server.Router().Method(http.MethodGet, "/metrics", handler)
		g.Go(server.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
		logger.Info("serving metrics", slog.String("addr", metricsAddr))
	}

	g.Go(func() error {
		return client.RunIndexer(ctx)
	})
	return g.Wait()
}
