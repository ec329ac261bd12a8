package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/helixml/memeindex/domain/search"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultBatchSize is the number of texts per embeddings API call.
const DefaultBatchSize = 10

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// errUpstreamProviderFailure marks an HTTP 200 response that carried no
// data, no model, and no usage. Routing proxies answer this way when every
// upstream is down.
var errUpstreamProviderFailure = errors.New("upstream provider failure")

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	Timeout       time.Duration
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
	BatchSize     int
	Logger        *slog.Logger
}

// OpenAIProvider embeds text through an OpenAI-compatible API.
type OpenAIProvider struct {
	client        *openai.Client
	model         string
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
	batchSize     int
	logger        *slog.Logger
}

// NewOpenAIProvider creates a provider from configuration, filling defaults
// for zero values.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	p := &OpenAIProvider{
		client:        openai.NewClientWithConfig(config),
		model:         cfg.Model,
		maxRetries:    cfg.MaxRetries,
		initialDelay:  cfg.InitialDelay,
		backoffFactor: cfg.BackoffFactor,
		batchSize:     cfg.BatchSize,
		logger:        cfg.Logger,
	}
	if p.model == "" {
		p.model = DefaultOpenAIModel
	}
	if p.maxRetries < 0 {
		p.maxRetries = 0
	}
	if p.initialDelay <= 0 {
		p.initialDelay = 2 * time.Second
	}
	if p.backoffFactor < 1 {
		p.backoffFactor = 2.0
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Model returns the embedding model name.
func (p *OpenAIProvider) Model() string { return p.model }

// Embed returns one vector per text, calling the API in batches.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for _, batch := range batches(texts, p.batchSize) {
		vectors, err := p.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (p *OpenAIProvider) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.model),
		Input: texts,
	}

	var resp openai.EmbeddingResponse
	operation := func() error {
		var err error
		resp, err = p.client.CreateEmbeddings(ctx, req)
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if len(resp.Data) == 0 && string(resp.Model) == "" && resp.Usage.TotalTokens == 0 {
			return backoff.Permanent(fmt.Errorf("%w: HTTP 200 with no embedding data", errUpstreamProviderFailure))
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingCount, len(resp.Data), len(texts))
		}
		return nil
	}

	notify := func(err error, next time.Duration) {
		p.logger.Warn("embedding request failed, retrying",
			slog.String("model", p.model),
			slog.String("error", err.Error()),
			slog.Duration("next_delay", next),
		)
	}

	if err := backoff.RetryNotify(operation, p.policy(ctx), notify); err != nil {
		return nil, wrapError("embedding", err)
	}

	vectors := make([][]float64, len(resp.Data))
	for _, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(vectors) {
			return nil, wrapError("embedding", fmt.Errorf("%w: index %d out of range", ErrEmbeddingCount, idx))
		}
		vec := make([]float64, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float64(v)
		}
		vectors[idx] = vec
	}
	return vectors, nil
}

func (p *OpenAIProvider) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialDelay
	b.Multiplier = p.backoffFactor
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.maxRetries)), ctx)
}

// Close is a no-op.
func (p *OpenAIProvider) Close() error { return nil }

func isRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var reqErr *openai.RequestError
	return errors.As(err, &reqErr)
}

func wrapError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError(operation, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(operation, reqErr.HTTPStatusCode, reqErr.Error(), err)
	}

	return NewProviderError(operation, 0, err.Error(), err)
}

var _ search.Embedder = (*OpenAIProvider)(nil)
