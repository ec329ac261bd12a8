// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost               = "0.0.0.0"
	DefaultPort               = 8080
	DefaultLogLevel           = "INFO"
	DefaultCORSAllowedOrigins = "http://localhost:5173"
	DefaultDBFile             = "memeindex.db"
	DefaultModelSubdir        = "models"
	DefaultEmbeddingModel     = "sentence-transformers/all-MiniLM-L6-v2"

	DefaultEndpointTimeout       = 60 * time.Second
	DefaultEndpointMaxRetries    = 5
	DefaultEndpointInitialDelay  = 2 * time.Second
	DefaultEndpointBackoffFactor = 2.0

	DefaultQueueBackend           = QueueBackendDatabase
	DefaultQueueName              = "memes"
	DefaultQueueVisibilityTimeout = 30 * time.Second

	DefaultIndexerBatchSize          = 10
	DefaultIndexerWait               = 20 * time.Second
	DefaultIndexerConcurrency        = 1
	DefaultIndexerMaxReceives        = 5
	DefaultIndexerMessageTimeout     = 60 * time.Second
	DefaultIndexerBackoffInitial     = time.Second
	DefaultIndexerBackoffMax         = 60 * time.Second
	DefaultIndexerPersistentFailures = 5

	DefaultCrawlerStartURL          = "https://old.reddit.com/r/MemeEconomy/"
	DefaultCrawlerRequestsPerSecond = 1.0
	DefaultCrawlerUserAgent         = "memeindex-crawler/1.0 (+https://github.com/helixml/memeindex)"
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// QueueBackend selects the queue implementation.
type QueueBackend string

// QueueBackend values.
const (
	QueueBackendDatabase QueueBackend = "database"
	QueueBackendSQS      QueueBackend = "sqs"
	QueueBackendNATS     QueueBackend = "nats"
)

// Endpoint configures a remote OpenAI-compatible embedding service.
type Endpoint struct {
	baseURL       string
	model         string
	apiKey        string
	timeout       time.Duration
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
}

// NewEndpoint creates a new Endpoint with defaults.
func NewEndpoint() Endpoint {
	return Endpoint{
		timeout:       DefaultEndpointTimeout,
		maxRetries:    DefaultEndpointMaxRetries,
		initialDelay:  DefaultEndpointInitialDelay,
		backoffFactor: DefaultEndpointBackoffFactor,
	}
}

// BaseURL returns the base URL for the endpoint.
func (e Endpoint) BaseURL() string { return e.baseURL }

// Model returns the model identifier.
func (e Endpoint) Model() string { return e.model }

// APIKey returns the API key.
func (e Endpoint) APIKey() string { return e.apiKey }

// Timeout returns the request timeout.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the maximum retry count.
func (e Endpoint) MaxRetries() int { return e.maxRetries }

// InitialDelay returns the initial retry delay.
func (e Endpoint) InitialDelay() time.Duration { return e.initialDelay }

// BackoffFactor returns the retry backoff multiplier.
func (e Endpoint) BackoffFactor() float64 { return e.backoffFactor }

// IsConfigured returns true if the endpoint has a model.
func (e Endpoint) IsConfigured() bool {
	return e.model != ""
}

// EndpointOption is a functional option for Endpoint.
type EndpointOption func(*Endpoint)

// WithBaseURL sets the base URL.
func WithBaseURL(url string) EndpointOption {
	return func(e *Endpoint) { e.baseURL = url }
}

// WithModel sets the model.
func WithModel(model string) EndpointOption {
	return func(e *Endpoint) { e.model = model }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) EndpointOption {
	return func(e *Endpoint) { e.apiKey = key }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.timeout = d }
}

// WithMaxRetries sets the maximum retry count.
func WithMaxRetries(n int) EndpointOption {
	return func(e *Endpoint) { e.maxRetries = n }
}

// WithInitialDelay sets the initial retry delay.
func WithInitialDelay(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.initialDelay = d }
}

// WithBackoffFactor sets the retry backoff multiplier.
func WithBackoffFactor(f float64) EndpointOption {
	return func(e *Endpoint) { e.backoffFactor = f }
}

// NewEndpointWithOptions creates an Endpoint with functional options.
func NewEndpointWithOptions(opts ...EndpointOption) Endpoint {
	e := NewEndpoint()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// QueueConfig configures the queue between crawler and indexer.
type QueueConfig struct {
	backend           QueueBackend
	url               string
	name              string
	region            string
	deadLetter        string
	visibilityTimeout time.Duration
}

// NewQueueConfig creates a QueueConfig with defaults.
func NewQueueConfig() QueueConfig {
	return QueueConfig{
		backend:           DefaultQueueBackend,
		name:              DefaultQueueName,
		visibilityTimeout: DefaultQueueVisibilityTimeout,
	}
}

// Backend returns the queue backend.
func (q QueueConfig) Backend() QueueBackend { return q.backend }

// URL returns the SQS queue URL or NATS server URL.
func (q QueueConfig) URL() string { return q.url }

// Name returns the queue name (stream name for NATS, queue name for the database backend).
func (q QueueConfig) Name() string { return q.name }

// Region returns the AWS region.
func (q QueueConfig) Region() string { return q.region }

// DeadLetter returns the dead-letter destination. Empty disables dead-letter routing.
func (q QueueConfig) DeadLetter() string { return q.deadLetter }

// VisibilityTimeout returns how long a received message stays hidden.
func (q QueueConfig) VisibilityTimeout() time.Duration { return q.visibilityTimeout }

// WithBackend returns a copy with the backend set.
func (q QueueConfig) WithBackend(b QueueBackend) QueueConfig {
	q.backend = b
	return q
}

// WithURL returns a copy with the URL set.
func (q QueueConfig) WithURL(url string) QueueConfig {
	q.url = url
	return q
}

// WithName returns a copy with the name set.
func (q QueueConfig) WithName(name string) QueueConfig {
	if name != "" {
		q.name = name
	}
	return q
}

// WithRegion returns a copy with the region set.
func (q QueueConfig) WithRegion(region string) QueueConfig {
	q.region = region
	return q
}

// WithDeadLetter returns a copy with the dead-letter destination set.
func (q QueueConfig) WithDeadLetter(dlq string) QueueConfig {
	q.deadLetter = dlq
	return q
}

// WithVisibilityTimeout returns a copy with the visibility timeout set.
func (q QueueConfig) WithVisibilityTimeout(d time.Duration) QueueConfig {
	if d > 0 {
		q.visibilityTimeout = d
	}
	return q
}

// IndexerConfig configures the consumer loop.
type IndexerConfig struct {
	batchSize          int
	wait               time.Duration
	concurrency        int
	maxReceives        int
	messageTimeout     time.Duration
	backoffInitial     time.Duration
	backoffMax         time.Duration
	persistentFailures int
}

// NewIndexerConfig creates an IndexerConfig with defaults.
func NewIndexerConfig() IndexerConfig {
	return IndexerConfig{
		batchSize:          DefaultIndexerBatchSize,
		wait:               DefaultIndexerWait,
		concurrency:        DefaultIndexerConcurrency,
		maxReceives:        DefaultIndexerMaxReceives,
		messageTimeout:     DefaultIndexerMessageTimeout,
		backoffInitial:     DefaultIndexerBackoffInitial,
		backoffMax:         DefaultIndexerBackoffMax,
		persistentFailures: DefaultIndexerPersistentFailures,
	}
}

// BatchSize returns the maximum messages per receive.
func (c IndexerConfig) BatchSize() int { return c.batchSize }

// Wait returns the long-poll wait.
func (c IndexerConfig) Wait() time.Duration { return c.wait }

// Concurrency returns the number of messages processed in parallel, never more than the batch size.
func (c IndexerConfig) Concurrency() int { return min(c.concurrency, c.batchSize) }

// MaxReceives returns the delivery threshold for dead-lettering. 0 disables it.
func (c IndexerConfig) MaxReceives() int { return c.maxReceives }

// MessageTimeout returns the per-message processing deadline.
func (c IndexerConfig) MessageTimeout() time.Duration { return c.messageTimeout }

// BackoffInitial returns the first backoff delay after a receive failure.
func (c IndexerConfig) BackoffInitial() time.Duration { return c.backoffInitial }

// BackoffMax returns the backoff delay cap.
func (c IndexerConfig) BackoffMax() time.Duration { return c.backoffMax }

// PersistentFailures returns the consecutive failure count at which receive errors escalate.
func (c IndexerConfig) PersistentFailures() int { return c.persistentFailures }

// IndexerOption is a functional option for IndexerConfig.
type IndexerOption func(*IndexerConfig)

// WithBatchSize sets the batch size.
func WithBatchSize(n int) IndexerOption {
	return func(c *IndexerConfig) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithWait sets the long-poll wait.
func WithWait(d time.Duration) IndexerOption {
	return func(c *IndexerConfig) {
		if d >= 0 {
			c.wait = d
		}
	}
}

// WithConcurrency sets the per-batch concurrency.
func WithConcurrency(n int) IndexerOption {
	return func(c *IndexerConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithMaxReceives sets the delivery threshold.
func WithMaxReceives(n int) IndexerOption {
	return func(c *IndexerConfig) {
		if n >= 0 {
			c.maxReceives = n
		}
	}
}

// WithMessageTimeout sets the per-message deadline.
func WithMessageTimeout(d time.Duration) IndexerOption {
	return func(c *IndexerConfig) {
		if d > 0 {
			c.messageTimeout = d
		}
	}
}

// WithBackoff sets the initial and maximum backoff delays.
func WithBackoff(initial, maximum time.Duration) IndexerOption {
	return func(c *IndexerConfig) {
		if initial > 0 {
			c.backoffInitial = initial
		}
		if maximum > 0 {
			c.backoffMax = maximum
		}
	}
}

// WithPersistentFailures sets the escalation threshold.
func WithPersistentFailures(n int) IndexerOption {
	return func(c *IndexerConfig) {
		if n > 0 {
			c.persistentFailures = n
		}
	}
}

// NewIndexerConfigWithOptions creates an IndexerConfig with functional options.
func NewIndexerConfigWithOptions(opts ...IndexerOption) IndexerConfig {
	c := NewIndexerConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// CrawlerConfig configures the producer.
type CrawlerConfig struct {
	startURL          string
	maxPages          int
	requestsPerSecond float64
	userAgent         string
	interval          time.Duration
}

// NewCrawlerConfig creates a CrawlerConfig with defaults.
func NewCrawlerConfig() CrawlerConfig {
	return CrawlerConfig{
		startURL:          DefaultCrawlerStartURL,
		requestsPerSecond: DefaultCrawlerRequestsPerSecond,
		userAgent:         DefaultCrawlerUserAgent,
	}
}

// StartURL returns the first listing page.
func (c CrawlerConfig) StartURL() string { return c.startURL }

// MaxPages returns the page cap. 0 crawls until pagination is exhausted.
func (c CrawlerConfig) MaxPages() int { return c.maxPages }

// RequestsPerSecond returns the page fetch rate limit.
func (c CrawlerConfig) RequestsPerSecond() float64 { return c.requestsPerSecond }

// UserAgent returns the HTTP User-Agent header.
func (c CrawlerConfig) UserAgent() string { return c.userAgent }

// Interval returns how often serve re-crawls. 0 disables periodic crawls.
func (c CrawlerConfig) Interval() time.Duration { return c.interval }

// WithStartURL returns a copy with the start URL set.
func (c CrawlerConfig) WithStartURL(url string) CrawlerConfig {
	if url != "" {
		c.startURL = url
	}
	return c
}

// WithMaxPages returns a copy with the page cap set.
func (c CrawlerConfig) WithMaxPages(n int) CrawlerConfig {
	if n >= 0 {
		c.maxPages = n
	}
	return c
}

// WithRequestsPerSecond returns a copy with the rate limit set.
func (c CrawlerConfig) WithRequestsPerSecond(rps float64) CrawlerConfig {
	if rps > 0 {
		c.requestsPerSecond = rps
	}
	return c
}

// WithUserAgent returns a copy with the user agent set.
func (c CrawlerConfig) WithUserAgent(ua string) CrawlerConfig {
	if ua != "" {
		c.userAgent = ua
	}
	return c
}

// WithInterval returns a copy with the periodic crawl interval set.
func (c CrawlerConfig) WithInterval(d time.Duration) CrawlerConfig {
	if d >= 0 {
		c.interval = d
	}
	return c
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host               string
	port               int
	dataDir            string
	dbURL              string
	logLevel           string
	logFormat          LogFormat
	corsAllowedOrigins []string
	embeddingEndpoint  *Endpoint
	embeddingModel     string
	embeddingModelDir  string
	queue              QueueConfig
	indexer            IndexerConfig
	crawler            CrawlerConfig
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memeindex"
	}
	return filepath.Join(home, ".memeindex")
}

// PrepareDataDir creates the data directory if it does not exist and returns it.
func PrepareDataDir(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dataDir, nil
}

func defaultDBURL(dataDir string) string {
	return "sqlite:///" + filepath.Join(dataDir, DefaultDBFile)
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		host:               DefaultHost,
		port:               DefaultPort,
		dataDir:            dataDir,
		dbURL:              defaultDBURL(dataDir),
		logLevel:           DefaultLogLevel,
		logFormat:          LogFormatPretty,
		corsAllowedOrigins: []string{DefaultCORSAllowedOrigins},
		embeddingModel:     DefaultEmbeddingModel,
		queue:              NewQueueConfig(),
		indexer:            NewIndexerConfig(),
		crawler:            NewCrawlerConfig(),
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// CORSAllowedOrigins returns the origins allowed to call the HTTP API.
func (c AppConfig) CORSAllowedOrigins() []string {
	origins := make([]string, len(c.corsAllowedOrigins))
	copy(origins, c.corsAllowedOrigins)
	return origins
}

// EmbeddingEndpoint returns the remote embedding endpoint, or nil for the built-in embedder.
func (c AppConfig) EmbeddingEndpoint() *Endpoint { return c.embeddingEndpoint }

// EmbeddingModel returns the built-in embedder's model name.
func (c AppConfig) EmbeddingModel() string { return c.embeddingModel }

// EmbeddingModelDir returns where built-in models are stored.
func (c AppConfig) EmbeddingModelDir() string {
	if c.embeddingModelDir != "" {
		return c.embeddingModelDir
	}
	return filepath.Join(c.dataDir, DefaultModelSubdir)
}

// Queue returns the queue config.
func (c AppConfig) Queue() QueueConfig { return c.queue }

// Indexer returns the indexer config.
func (c AppConfig) Indexer() IndexerConfig { return c.indexer }

// Crawler returns the crawler config.
func (c AppConfig) Crawler() CrawlerConfig { return c.crawler }

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory. A default SQLite URL follows the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		if c.dbURL == "" || c.dbURL == defaultDBURL(c.dataDir) {
			c.dbURL = defaultDBURL(dir)
		}
		c.dataDir = dir
	}
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithCORSAllowedOrigins sets the allowed CORS origins.
func WithCORSAllowedOrigins(origins []string) AppConfigOption {
	return func(c *AppConfig) {
		c.corsAllowedOrigins = make([]string, len(origins))
		copy(c.corsAllowedOrigins, origins)
	}
}

// WithEmbeddingEndpoint sets the remote embedding endpoint.
func WithEmbeddingEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.embeddingEndpoint = &e }
}

// WithEmbeddingModel sets the built-in embedder's model name.
func WithEmbeddingModel(model string) AppConfigOption {
	return func(c *AppConfig) {
		if model != "" {
			c.embeddingModel = model
		}
	}
}

// WithEmbeddingModelDir sets the built-in model directory.
func WithEmbeddingModelDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.embeddingModelDir = dir }
}

// WithQueueConfig sets the queue config.
func WithQueueConfig(q QueueConfig) AppConfigOption {
	return func(c *AppConfig) { c.queue = q }
}

// WithIndexerConfig sets the indexer config.
func WithIndexerConfig(i IndexerConfig) AppConfigOption {
	return func(c *AppConfig) { c.indexer = i }
}

// WithCrawlerConfig sets the crawler config.
func WithCrawlerConfig(cr CrawlerConfig) AppConfigOption {
	return func(c *AppConfig) { c.crawler = cr }
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	return NewAppConfig().Apply(opts...)
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// Credentials are masked.
func (c AppConfig) LogAttrs() []slog.Attr {
	embedder := "hugot:" + c.embeddingModel
	if c.embeddingEndpoint != nil {
		embedder = "openai:" + c.embeddingEndpoint.Model()
	}
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("embedder", embedder),
		slog.String("queue_backend", string(c.queue.Backend())),
		slog.String("queue_name", c.queue.Name()),
		slog.Bool("dead_letter", c.queue.DeadLetter() != ""),
		slog.Int("indexer_batch_size", c.indexer.BatchSize()),
		slog.Int("indexer_concurrency", c.indexer.Concurrency()),
	}
}

func (c AppConfig) maskedDBURL() string {
	if c.dbURL == "" {
		return "(default)"
	}
	if strings.HasPrefix(c.dbURL, "sqlite:") {
		return c.dbURL
	}
	return "postgres://***@***"
}

// ParseList parses a comma-separated list, dropping blank entries.
func ParseList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
