package memeindex

import (
	"log/slog"
	"path/filepath"

	"github.com/helixml/memeindex/domain/queue"
	"github.com/helixml/memeindex/domain/search"
	"github.com/helixml/memeindex/infrastructure/provider"
	"github.com/helixml/memeindex/internal/config"
)

// clientConfig holds configuration for Client construction.
type clientConfig struct {
	dbURL          string
	dataDir        string
	modelDir       string
	model          string
	embedder       search.Embedder
	queue          queue.Queue
	deadLetter     queue.Queue
	queueConfig    config.QueueConfig
	indexerConfig  config.IndexerConfig
	crawlerConfig  config.CrawlerConfig
	corsOrigins    []string
	version        string
	disableMetrics bool
	logger         *slog.Logger
}

func newClientConfig() *clientConfig {
	return &clientConfig{
		dataDir:       config.DefaultDataDir(),
		model:         config.DefaultEmbeddingModel,
		queueConfig:   config.NewQueueConfig(),
		indexerConfig: config.NewIndexerConfig(),
		crawlerConfig: config.NewCrawlerConfig(),
		corsOrigins:   []string{config.DefaultCORSAllowedOrigins},
		version:       "dev",
	}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithSQLite stores posts in the SQLite file at path. Vector distances are
// computed in process.
func WithSQLite(path string) Option {
	return func(c *clientConfig) {
		c.dbURL = "sqlite:///" + filepath.ToSlash(path)
	}
}

// WithPostgres stores posts in PostgreSQL with the pgvector extension.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.dbURL = dsn
	}
}

// WithDatabaseURL sets the database URL directly. sqlite:/// and
// postgres:// URLs are accepted.
func WithDatabaseURL(url string) Option {
	return func(c *clientConfig) {
		c.dbURL = url
	}
}

// WithDataDir sets the directory for the default SQLite file and models.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		if dir != "" {
			c.dataDir = dir
		}
	}
}

// WithOpenAI embeds titles through an OpenAI-compatible endpoint.
func WithOpenAI(cfg provider.OpenAIConfig) Option {
	return func(c *clientConfig) {
		c.embedder = provider.NewOpenAIProvider(cfg)
	}
}

// WithEndpoint embeds titles through the configured remote endpoint.
func WithEndpoint(e config.Endpoint) Option {
	return WithOpenAI(provider.OpenAIConfig{
		APIKey:        e.APIKey(),
		BaseURL:       e.BaseURL(),
		Model:         e.Model(),
		Timeout:       e.Timeout(),
		MaxRetries:    e.MaxRetries(),
		InitialDelay:  e.InitialDelay(),
		BackoffFactor: e.BackoffFactor(),
	})
}

// WithHugot selects the built-in embedder with model files under dir.
// Empty values keep the defaults.
func WithHugot(dir, model string) Option {
	return func(c *clientConfig) {
		if dir != "" {
			c.modelDir = dir
		}
		if model != "" {
			c.model = model
		}
	}
}

// WithEmbedder sets a custom embedder.
func WithEmbedder(e search.Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithQueueConfig selects and configures the queue backend.
func WithQueueConfig(q config.QueueConfig) Option {
	return func(c *clientConfig) {
		c.queueConfig = q
	}
}

// WithQueue uses q instead of building one from the queue config.
// deadLetter may be nil.
func WithQueue(q, deadLetter queue.Queue) Option {
	return func(c *clientConfig) {
		c.queue = q
		c.deadLetter = deadLetter
	}
}

// WithIndexerConfig configures the indexer loop.
func WithIndexerConfig(cfg config.IndexerConfig) Option {
	return func(c *clientConfig) {
		c.indexerConfig = cfg
	}
}

// WithCrawlerConfig configures the crawler.
func WithCrawlerConfig(cfg config.CrawlerConfig) Option {
	return func(c *clientConfig) {
		c.crawlerConfig = cfg
	}
}

// WithCORSOrigins sets the origins the HTTP API accepts.
func WithCORSOrigins(origins []string) Option {
	return func(c *clientConfig) {
		c.corsOrigins = origins
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(c *clientConfig) {
		if v != "" {
			c.version = v
		}
	}
}

// WithoutMetrics disables Prometheus collection.
func WithoutMetrics() Option {
	return func(c *clientConfig) {
		c.disableMetrics = true
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithAppConfig applies every setting from an AppConfig.
func WithAppConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) {
		c.dataDir = cfg.DataDir()
		c.dbURL = cfg.DBURL()
		c.modelDir = cfg.EmbeddingModelDir()
		c.model = cfg.EmbeddingModel()
		if e := cfg.EmbeddingEndpoint(); e != nil && e.IsConfigured() {
			WithEndpoint(*e)(c)
		}
		c.queueConfig = cfg.Queue()
		c.indexerConfig = cfg.Indexer()
		c.crawlerConfig = cfg.Crawler()
		c.corsOrigins = cfg.CORSAllowedOrigins()
	}
}
