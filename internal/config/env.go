package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Nested structs use underscore delimiter (e.g., EMBEDDING_ENDPOINT_BASE_URL).
type EnvConfig struct {
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DataDir is the data directory path.
	// Env: DATA_DIR
	// Default: ~/.memeindex
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the database connection URL. postgres:// URLs select the pgvector store.
	// Env: DB_URL
	// Default: sqlite:///{data_dir}/memeindex.db
	DBURL string `envconfig:"DB_URL"`

	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// CORSAllowedOrigins is a comma-separated list of frontend origins.
	// Env: CORS_ALLOWED_ORIGINS (default: http://localhost:5173)
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`

	// EmbeddingEndpoint configures a remote OpenAI-compatible embedder.
	EmbeddingEndpoint EndpointEnv `envconfig:"EMBEDDING_ENDPOINT"`

	// EmbeddingModel is the built-in embedder's model.
	// Env: EMBEDDING_MODEL (default: sentence-transformers/all-MiniLM-L6-v2)
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"sentence-transformers/all-MiniLM-L6-v2"`

	// EmbeddingModelDir is where built-in models are stored.
	// Env: EMBEDDING_MODEL_DIR
	// Default: {data_dir}/models
	EmbeddingModelDir string `envconfig:"EMBEDDING_MODEL_DIR"`

	Queue QueueEnv `envconfig:"QUEUE"`

	Indexer IndexerEnv `envconfig:"INDEXER"`

	Crawler CrawlerEnv `envconfig:"CRAWLER"`
}

// EndpointEnv holds environment configuration for an AI endpoint.
type EndpointEnv struct {
	// Env: *_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the model identifier (e.g., text-embedding-3-small).
	// Env: *_MODEL
	Model string `envconfig:"MODEL"`

	// Env: *_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Timeout is the request timeout in seconds.
	// Env: *_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// Env: *_MAX_RETRIES (default: 5)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"5"`

	// InitialDelay is the initial retry delay in seconds.
	// Env: *_INITIAL_DELAY (default: 2.0)
	InitialDelay float64 `envconfig:"INITIAL_DELAY" default:"2.0"`

	// Env: *_BACKOFF_FACTOR (default: 2.0)
	BackoffFactor float64 `envconfig:"BACKOFF_FACTOR" default:"2.0"`
}

// QueueEnv holds environment configuration for the queue.
type QueueEnv struct {
	// Backend is database, sqs, or nats.
	// Env: QUEUE_BACKEND (default: database)
	Backend string `envconfig:"BACKEND" default:"database"`

	// URL is the SQS queue URL or the NATS server URL.
	// Env: QUEUE_URL
	URL string `envconfig:"URL"`

	// Env: QUEUE_NAME (default: memes)
	Name string `envconfig:"NAME" default:"memes"`

	// Env: QUEUE_REGION
	Region string `envconfig:"REGION"`

	// DeadLetter is the dead-letter SQS URL, NATS stream, or database queue name.
	// Env: QUEUE_DEAD_LETTER
	DeadLetter string `envconfig:"DEAD_LETTER"`

	// VisibilityTimeout is in seconds.
	// Env: QUEUE_VISIBILITY_TIMEOUT (default: 30)
	VisibilityTimeout float64 `envconfig:"VISIBILITY_TIMEOUT" default:"30"`
}

// IndexerEnv holds environment configuration for the indexer loop.
type IndexerEnv struct {
	// Env: INDEXER_BATCH_SIZE (default: 10)
	BatchSize int `envconfig:"BATCH_SIZE" default:"10"`

	// Env: INDEXER_WAIT_SECONDS (default: 20)
	WaitSeconds float64 `envconfig:"WAIT_SECONDS" default:"20"`

	// Env: INDEXER_CONCURRENCY (default: 1)
	Concurrency int `envconfig:"CONCURRENCY" default:"1"`

	// MaxReceives is the delivery threshold for dead-lettering. 0 disables it.
	// Env: INDEXER_MAX_RECEIVES (default: 5)
	MaxReceives int `envconfig:"MAX_RECEIVES" default:"5"`

	// MessageTimeout is in seconds.
	// Env: INDEXER_MESSAGE_TIMEOUT (default: 60)
	MessageTimeout float64 `envconfig:"MESSAGE_TIMEOUT" default:"60"`

	// Env: INDEXER_BACKOFF_INITIAL (default: 1s)
	BackoffInitial time.Duration `envconfig:"BACKOFF_INITIAL" default:"1s"`

	// Env: INDEXER_BACKOFF_MAX (default: 60s)
	BackoffMax time.Duration `envconfig:"BACKOFF_MAX" default:"60s"`

	// Env: INDEXER_PERSISTENT_FAILURES (default: 5)
	PersistentFailures int `envconfig:"PERSISTENT_FAILURES" default:"5"`
}

// CrawlerEnv holds environment configuration for the crawler.
type CrawlerEnv struct {
	// Env: CRAWLER_START_URL (default: https://old.reddit.com/r/MemeEconomy/)
	StartURL string `envconfig:"START_URL" default:"https://old.reddit.com/r/MemeEconomy/"`

	// Env: CRAWLER_MAX_PAGES (default: 0, no cap)
	MaxPages int `envconfig:"MAX_PAGES" default:"0"`

	// Env: CRAWLER_REQUESTS_PER_SECOND (default: 1)
	RequestsPerSecond float64 `envconfig:"REQUESTS_PER_SECOND" default:"1"`

	// Env: CRAWLER_USER_AGENT
	UserAgent string `envconfig:"USER_AGENT"`

	// Interval between crawls started by serve, in seconds. 0 disables.
	// Env: CRAWLER_INTERVAL_SECONDS (default: 0)
	IntervalSeconds float64 `envconfig:"INTERVAL_SECONDS" default:"0"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	return LoadFromEnvWithPrefix("")
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
// For example, prefix "MEMEINDEX" would require MEMEINDEX_DATA_DIR instead of DATA_DIR.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	opts := []AppConfigOption{
		WithEmbeddingModel(e.EmbeddingModel),
		WithCORSAllowedOrigins(ParseList(e.CORSAllowedOrigins)),
		WithQueueConfig(e.Queue.ToQueueConfig()),
		WithIndexerConfig(e.Indexer.ToIndexerConfig()),
		WithCrawlerConfig(e.Crawler.ToCrawlerConfig()),
	}

	if e.Host != "" {
		opts = append(opts, WithHost(e.Host))
	}
	if e.Port != 0 {
		opts = append(opts, WithPort(e.Port))
	}
	if e.DataDir != "" {
		opts = append(opts, WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		opts = append(opts, WithDBURL(e.DBURL))
	}
	if e.LogLevel != "" {
		opts = append(opts, WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		opts = append(opts, WithLogFormat(parseLogFormat(e.LogFormat)))
	}
	if e.EmbeddingEndpoint.IsConfigured() {
		opts = append(opts, WithEmbeddingEndpoint(e.EmbeddingEndpoint.ToEndpoint()))
	}
	if e.EmbeddingModelDir != "" {
		opts = append(opts, WithEmbeddingModelDir(e.EmbeddingModelDir))
	}

	return NewAppConfigWithOptions(opts...)
}

// IsConfigured returns true if the endpoint has a model configured.
func (e EndpointEnv) IsConfigured() bool {
	return e.Model != ""
}

// ToEndpoint converts EndpointEnv to Endpoint.
func (e EndpointEnv) ToEndpoint() Endpoint {
	opts := []EndpointOption{
		WithModel(e.Model),
		WithTimeout(seconds(e.Timeout)),
		WithMaxRetries(e.MaxRetries),
		WithInitialDelay(seconds(e.InitialDelay)),
		WithBackoffFactor(e.BackoffFactor),
	}
	if e.BaseURL != "" {
		opts = append(opts, WithBaseURL(e.BaseURL))
	}
	if e.APIKey != "" {
		opts = append(opts, WithAPIKey(e.APIKey))
	}
	return NewEndpointWithOptions(opts...)
}

// ToQueueConfig converts QueueEnv to QueueConfig.
func (q QueueEnv) ToQueueConfig() QueueConfig {
	return NewQueueConfig().
		WithBackend(parseQueueBackend(q.Backend)).
		WithURL(q.URL).
		WithName(q.Name).
		WithRegion(q.Region).
		WithDeadLetter(q.DeadLetter).
		WithVisibilityTimeout(seconds(q.VisibilityTimeout))
}

// ToIndexerConfig converts IndexerEnv to IndexerConfig.
func (i IndexerEnv) ToIndexerConfig() IndexerConfig {
	return NewIndexerConfigWithOptions(
		WithBatchSize(i.BatchSize),
		WithWait(seconds(i.WaitSeconds)),
		WithConcurrency(i.Concurrency),
		WithMaxReceives(i.MaxReceives),
		WithMessageTimeout(seconds(i.MessageTimeout)),
		WithBackoff(i.BackoffInitial, i.BackoffMax),
		WithPersistentFailures(i.PersistentFailures),
	)
}

// ToCrawlerConfig converts CrawlerEnv to CrawlerConfig.
func (c CrawlerEnv) ToCrawlerConfig() CrawlerConfig {
	return NewCrawlerConfig().
		WithStartURL(c.StartURL).
		WithMaxPages(c.MaxPages).
		WithRequestsPerSecond(c.RequestsPerSecond).
		WithUserAgent(c.UserAgent).
		WithInterval(seconds(c.IntervalSeconds))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}

func parseQueueBackend(s string) QueueBackend {
	switch QueueBackend(strings.ToLower(strings.TrimSpace(s))) {
	case QueueBackendSQS:
		return QueueBackendSQS
	case QueueBackendNATS:
		return QueueBackendNATS
	default:
		return QueueBackendDatabase
	}
}
