package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/helixml/memeindex/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var (
		host          string
		port          int
		withIndexer   bool
		crawlInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  HOST                         Server host to bind to (default: 0.0.0.0)
  PORT                         Server port to listen on (default: 8080)
  DATA_DIR                     Data directory (default: ~/.memeindex)
  DB_URL                       Database URL (default: sqlite:///{data_dir}/memeindex.db)
                               postgres:// URLs use pgvector
  LOG_LEVEL                    Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   Log format: pretty, json (default: pretty)
  CORS_ALLOWED_ORIGINS         Comma-separated frontend origins (default: http://localhost:5173)

  EMBEDDING_ENDPOINT_*         Remote OpenAI-compatible embedder
    BASE_URL                   Base URL (e.g., https://api.openai.com/v1)
    MODEL                      Model identifier (e.g., text-embedding-3-small)
    API_KEY                    API key for authentication
    TIMEOUT                    Request timeout in seconds (default: 60)
    MAX_RETRIES                Retry attempts (default: 5)
  EMBEDDING_MODEL              Built-in model (default: sentence-transformers/all-MiniLM-L6-v2)
  EMBEDDING_MODEL_DIR          Built-in model directory (default: {data_dir}/models)

  QUEUE_BACKEND                database, sqs or nats (default: database)
  QUEUE_URL                    SQS queue URL or NATS server URL
  QUEUE_NAME                   Queue or stream name (default: memes)
  QUEUE_DEAD_LETTER            Dead-letter queue URL or name (default: disabled)

  CRAWLER_INTERVAL_SECONDS     Re-crawl period, 0 disables (default: 0)
  CRAWLER_*                    See 'memeindex crawl --help'
  INDEXER_*                    See 'memeindex index --help'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, host, port, withIndexer, crawlInterval)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")
	cmd.Flags().BoolVar(&withIndexer, "with-indexer", false, "Also consume the queue in this process")
	cmd.Flags().DurationVar(&crawlInterval, "crawl-interval", -1, "Re-crawl period, 0 disables (overrides CRAWLER_INTERVAL_SECONDS)")

	return cmd
}

func runServe(cmd *cobra.Command, host string, port int, withIndexer bool, crawlInterval time.Duration) error {
	var overrides []config.AppConfigOption
	if host != "" {
		overrides = append(overrides, config.WithHost(host))
	}
	if port != 0 {
		overrides = append(overrides, config.WithPort(port))
	}

	cfg, err := loadConfig(cmd, overrides...)
	if err != nil {
		return err
	}
	cfg = cfg.Apply(config.WithCrawlerConfig(cfg.Crawler().WithInterval(crawlInterval)))
	addr := cfg.Addr()

	client, logger, err := newClient(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	ctx, stop := signalContext()
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	apiServer := client.APIServer()
	g.Go(func() error {
		return apiServer.ListenAndServe(addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return apiServer.Shutdown(shutdownCtx)
	})
	if withIndexer {
		g.Go(func() error {
			return client.RunIndexer(ctx)
		})
	}
	client.StartPeriodicCrawl(ctx)

	logger.Info("serving", slog.String("addr", addr), slog.Bool("indexer", withIndexer))
	return g.Wait()
}
