// Package memeindex crawls meme listings into a durable queue, indexes each
// post with a title embedding and a hype score, and answers hype-ranked
// listing and semantic search queries.
//
// Basic usage:
//
//	client, err := memeindex.New(
//	    memeindex.WithSQLite(".memeindex/memeindex.db"),
//	    memeindex.WithHugot(".memeindex/models", ""),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Publish a listing to the queue
//	stats, err := client.Crawl(ctx, "")
//
//	// Index until ctx is cancelled
//	err = client.RunIndexer(ctx)
//
//	// Query
//	top, err := client.Posts.List(ctx, 0, 10)
//	similar, err := client.Posts.Search(ctx, "diamond hands")
package memeindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync/atomic"

	"github.com/helixml/memeindex/application/service"
	"github.com/helixml/memeindex/domain/queue"
	"github.com/helixml/memeindex/domain/search"
	domainservice "github.com/helixml/memeindex/domain/service"
	"github.com/helixml/memeindex/infrastructure/api"
	"github.com/helixml/memeindex/infrastructure/crawler"
	"github.com/helixml/memeindex/infrastructure/metrics"
	"github.com/helixml/memeindex/infrastructure/persistence"
	"github.com/helixml/memeindex/infrastructure/provider"
	queueinfra "github.com/helixml/memeindex/infrastructure/queue"
	"github.com/helixml/memeindex/internal/config"
	"github.com/helixml/memeindex/internal/database"
	"github.com/helixml/memeindex/internal/mcp"
)

var (
	// ErrNoEmbedder is returned when no remote embedder is configured and no
	// local model is available.
	ErrNoEmbedder = errors.New("no embedding model available")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("client is closed")
)

// Client wires the crawler, queue, indexer, store and query service.
//
// Access the query service via the Posts field:
//
//	client.Posts.List(ctx, 0, 100)
//	client.Posts.Search(ctx, "query")
type Client struct {
	Posts     *service.Posts
	Embedding *domainservice.EmbeddingService

	indexer  *service.Indexer
	crawler  *service.Crawler
	periodic *service.PeriodicCrawl
	metrics  *metrics.Prometheus

	db         database.Database
	queue      queue.Queue
	deadLetter queue.Queue
	embedder   search.Embedder
	closers    []io.Closer

	crawlerConfig config.CrawlerConfig
	corsOrigins   []string
	version       string
	logger        *slog.Logger
	closed        atomic.Bool
}

// New creates a Client with the given options. The schema is migrated, the
// embedder is probed for its dimension and the queues are connected.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx := context.Background()

	dbURL := cfg.dbURL
	if dbURL == "" {
		dataDir, err := config.PrepareDataDir(cfg.dataDir)
		if err != nil {
			return nil, err
		}
		dbURL = "sqlite:///" + filepath.ToSlash(filepath.Join(dataDir, config.DefaultDBFile))
	}

	embedder, err := buildEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}
	dimension, err := provider.Dimension(ctx, embedder)
	if err != nil {
		return nil, errors.Join(err, closeEmbedder(embedder))
	}
	logger.Info("embedder ready",
		slog.String("model", embedder.Model()),
		slog.Int("dimension", dimension),
	)

	db, err := database.NewDatabase(ctx, dbURL)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open database: %w", err), closeEmbedder(embedder))
	}
	client := &Client{
		db:            db,
		embedder:      embedder,
		crawlerConfig: cfg.crawlerConfig,
		corsOrigins:   cfg.corsOrigins,
		version:       cfg.version,
		logger:        logger,
	}
	if err := client.build(ctx, cfg, dimension); err != nil {
		return nil, errors.Join(err, client.Close())
	}

	logger.Info("memeindex client ready",
		slog.String("queue_backend", string(cfg.queueConfig.Backend())),
		slog.Bool("dead_letter", client.deadLetter != nil),
	)
	return client, nil
}

func (c *Client) build(ctx context.Context, cfg *clientConfig, dimension int) error {
	if err := persistence.AutoMigrate(c.db); err != nil {
		return err
	}
	store, err := persistence.NewPostStore(ctx, c.db, dimension, persistence.WithLogger(c.logger))
	if err != nil {
		return fmt.Errorf("create post store: %w", err)
	}
	if err := persistence.ValidateSchema(c.db); err != nil {
		return fmt.Errorf("validate schema: %w", err)
	}

	c.Embedding, err = domainservice.NewEmbedding(store, c.embedder)
	if err != nil {
		return fmt.Errorf("create embedding service: %w", err)
	}
	c.Posts, err = service.NewPosts(store, c.Embedding)
	if err != nil {
		return fmt.Errorf("create posts service: %w", err)
	}

	if cfg.queue != nil {
		c.queue, c.deadLetter = cfg.queue, cfg.deadLetter
	} else {
		c.queue, c.deadLetter, err = buildQueues(ctx, c.db, cfg.queueConfig, c.logger)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, c.queue)
		if c.deadLetter != nil {
			c.closers = append(c.closers, c.deadLetter)
		}
	}

	indexerOpts := []service.IndexerOption{service.WithIndexerLogger(c.logger)}
	if !cfg.disableMetrics {
		c.metrics = metrics.NewPrometheus()
		indexerOpts = append(indexerOpts, service.WithIndexerMetrics(c.metrics))
	}
	if c.deadLetter != nil {
		indexerOpts = append(indexerOpts, service.WithDeadLetter(c.deadLetter))
	}
	c.indexer, err = service.NewIndexer(c.queue, c.Embedding, cfg.indexerConfig, indexerOpts...)
	if err != nil {
		return fmt.Errorf("create indexer: %w", err)
	}

	fetcher := crawler.NewHTTPFetcher(
		crawler.WithRequestsPerSecond(cfg.crawlerConfig.RequestsPerSecond()),
		crawler.WithUserAgent(cfg.crawlerConfig.UserAgent()),
		crawler.WithFetcherLogger(c.logger),
	)
	c.crawler, err = service.NewCrawler(fetcher, crawler.NewRedditExtractor(), c.queue,
		service.WithMaxPages(cfg.crawlerConfig.MaxPages()),
		service.WithCrawlerLogger(c.logger),
	)
	if err != nil {
		return fmt.Errorf("create crawler: %w", err)
	}
	c.periodic = service.NewPeriodicCrawl(c.crawler, cfg.crawlerConfig.StartURL(), cfg.crawlerConfig.Interval(), c.logger)
	return nil
}

func buildEmbedder(cfg *clientConfig, logger *slog.Logger) (search.Embedder, error) {
	if cfg.embedder != nil {
		return cfg.embedder, nil
	}
	modelDir := cfg.modelDir
	if modelDir == "" {
		modelDir = filepath.Join(cfg.dataDir, config.DefaultModelSubdir)
	}
	hugot := provider.NewHugotEmbedding(modelDir, cfg.model)
	if !hugot.Available() {
		return nil, fmt.Errorf("%w in %s: run 'download-model' or configure EMBEDDING_ENDPOINT_MODEL", ErrNoEmbedder, modelDir)
	}
	logger.Info("built-in embedding provider enabled", slog.String("model_dir", modelDir))
	return hugot, nil
}

// buildQueues connects the source queue and, when configured, the
// dead-letter queue on the same backend.
func buildQueues(ctx context.Context, db database.Database, cfg config.QueueConfig, logger *slog.Logger) (queue.Queue, queue.Queue, error) {
	visibility := cfg.VisibilityTimeout()

	switch cfg.Backend() {
	case config.QueueBackendDatabase:
		source, err := queueinfra.NewDatabase(db, cfg.Name(), visibility, queueinfra.WithDatabaseLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("create database queue: %w", err)
		}
		if cfg.DeadLetter() == "" {
			return source, nil, nil
		}
		dlq, err := queueinfra.NewDatabase(db, cfg.DeadLetter(), visibility, queueinfra.WithDatabaseLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("create dead-letter queue: %w", err)
		}
		return source, dlq, nil

	case config.QueueBackendSQS:
		client, err := queueinfra.NewSQSClient(ctx, cfg.Region(), "")
		if err != nil {
			return nil, nil, err
		}
		source, err := queueinfra.NewSQS(client, cfg.URL(), visibility, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.DeadLetter() == "" {
			return source, nil, nil
		}
		dlq, err := queueinfra.NewSQS(client, cfg.DeadLetter(), visibility, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create dead-letter queue: %w", err)
		}
		return source, dlq, nil

	case config.QueueBackendNATS:
		source, err := queueinfra.ConnectJetStream(ctx, cfg.URL(), cfg.Name(), visibility, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.DeadLetter() == "" {
			return source, nil, nil
		}
		dlq, err := queueinfra.ConnectJetStream(ctx, cfg.URL(), cfg.DeadLetter(), visibility, logger)
		if err != nil {
			return nil, nil, errors.Join(fmt.Errorf("create dead-letter queue: %w", err), source.Close())
		}
		return source, dlq, nil

	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", cfg.Backend())
	}
}

// Crawl walks the listing at startURL and publishes every post to the
// queue. An empty startURL uses the configured start URL.
func (c *Client) Crawl(ctx context.Context, startURL string) (service.CrawlStats, error) {
	if c.closed.Load() {
		return service.CrawlStats{}, ErrClosed
	}
	if startURL == "" {
		startURL = c.crawlerConfig.StartURL()
	}
	return c.crawler.Crawl(ctx, startURL)
}

// RunIndexer consumes the queue until ctx is cancelled.
func (c *Client) RunIndexer(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.indexer.Run(ctx)
}

// StartPeriodicCrawl crawls the configured start URL now and then once per
// crawler interval until Close. It does nothing when the interval is zero.
func (c *Client) StartPeriodicCrawl(ctx context.Context) {
	if c.closed.Load() {
		return
	}
	c.periodic.Start(ctx)
}

// Indexer returns the queue consumer.
func (c *Client) Indexer() *service.Indexer { return c.indexer }

// Queue returns the source queue.
func (c *Client) Queue() queue.Queue { return c.queue }

// MetricsHandler serves the Prometheus registry, or nil when metrics are
// disabled.
func (c *Client) MetricsHandler() http.Handler {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Handler()
}

// MCPServer returns an MCP server exposing the query tools.
func (c *Client) MCPServer() *mcp.Server {
	return mcp.NewServer(c.Posts, c.version, c.logger)
}

// APIServer returns the HTTP API with CORS, metrics, docs and MCP mounted.
func (c *Client) APIServer() *api.APIServer {
	opts := []api.APIServerOption{
		api.WithAPILogger(c.logger),
		api.WithCORSOrigins(c.corsOrigins),
		api.WithMCPServer(c.MCPServer().MCPServer()),
		api.WithDocs(),
	}
	if h := c.MetricsHandler(); h != nil {
		opts = append(opts, api.WithMetricsHandler(h))
	}
	return api.NewAPIServer(c.Posts, opts...)
}

// Close stops the indexer and releases queues, the embedder and the
// database. Close is idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.periodic != nil {
		c.periodic.Stop()
	}
	if c.indexer != nil {
		c.indexer.Stop()
	}

	var errs []error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, closeEmbedder(c.embedder))
	if err := c.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}

func closeEmbedder(e search.Embedder) error {
	closer, ok := e.(provider.Closer)
	if !ok {
		return nil
	}
	if err := closer.Close(); err != nil {
		return fmt.Errorf("close embedder: %w", err)
	}
	return nil
}
