package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingHandler mimics the OpenAI embeddings endpoint. Each vector
// encodes the length of its text so ordering can be checked.
func embeddingHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	data := make([]map[string]any, len(body.Input))
	for i := range body.Input {
		data[i] = map[string]any{
			"object":    "embedding",
			"index":     i,
			"embedding": []float64{float64(len(body.Input[i])), 0.5, 0.25},
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   data,
		"model":  body.Model,
		"usage":  map[string]int{"prompt_tokens": len(body.Input), "total_tokens": len(body.Input)},
	})
}

func fakeEmbeddingServer(t *testing.T, counter *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.Add(1)
		embeddingHandler(w, r)
	}))
}

func newTestProvider(url string, retries int) *OpenAIProvider {
	return NewOpenAIProvider(OpenAIConfig{
		APIKey:       "test-key",
		BaseURL:      url,
		Model:        "test-model",
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
	})
}

func TestNewOpenAIProvider_Defaults(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{})
	assert.Equal(t, DefaultOpenAIModel, p.Model())
	assert.Equal(t, DefaultBatchSize, p.batchSize)
	assert.Equal(t, 2*time.Second, p.initialDelay)
	assert.Equal(t, 2.0, p.backoffFactor)
	assert.NoError(t, p.Close())
}

func TestOpenAIProvider_EmbedEmpty(t *testing.T) {
	var counter atomic.Int64
	srv := fakeEmbeddingServer(t, &counter)
	defer srv.Close()

	vectors, err := newTestProvider(srv.URL, 0).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Equal(t, int64(0), counter.Load())
}

func TestOpenAIProvider_EmbedSingle(t *testing.T) {
	var counter atomic.Int64
	srv := fakeEmbeddingServer(t, &counter)
	defer srv.Close()

	vectors, err := newTestProvider(srv.URL, 0).Embed(context.Background(), []string{"doge"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, []float64{4, 0.5, 0.25}, vectors[0])
	assert.Equal(t, int64(1), counter.Load())
}

func TestOpenAIProvider_EmbedSplitsBatches(t *testing.T) {
	var counter atomic.Int64
	srv := fakeEmbeddingServer(t, &counter)
	defer srv.Close()

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = string(make([]byte, i+1))
	}

	vectors, err := newTestProvider(srv.URL, 0).Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 25)
	assert.Equal(t, int64(3), counter.Load())
	for i, v := range vectors {
		assert.Equal(t, float64(i+1), v[0], "vector %d out of order", i)
	}
}

func TestOpenAIProvider_EmbedCancelledContext(t *testing.T) {
	var counter atomic.Int64
	srv := fakeEmbeddingServer(t, &counter)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestProvider(srv.URL, 3).Embed(ctx, []string{"hello"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpenAIProvider_EmbedEmptyResponseIsPermanent(t *testing.T) {
	var counter atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		counter.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[],"model":"","usage":{"prompt_tokens":0,"total_tokens":0}}`))
	}))
	defer srv.Close()

	_, err := newTestProvider(srv.URL, 3).Embed(context.Background(), []string{"hello"})
	require.Error(t, err)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "embedding", perr.Operation)
	assert.Equal(t, int64(1), counter.Load(), "upstream failure must not be retried")
}

func TestOpenAIProvider_EmbedRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		embeddingHandler(w, r)
	}))
	defer srv.Close()

	vectors, err := newTestProvider(srv.URL, 5).Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, int64(3), calls.Load())
}

func TestOpenAIProvider_EmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestProvider(srv.URL, 5).Embed(context.Background(), []string{"hello"})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
	assert.Equal(t, int64(1), calls.Load())
}

type fixedEmbedder struct {
	vectors [][]float64
}

func (f fixedEmbedder) Embed(context.Context, []string) ([][]float64, error) { return f.vectors, nil }
func (f fixedEmbedder) Model() string                                         { return "fixed" }

func TestDimension(t *testing.T) {
	dim, err := Dimension(context.Background(), fixedEmbedder{vectors: [][]float64{{1, 2, 3}}})
	require.NoError(t, err)
	assert.Equal(t, 3, dim)

	_, err = Dimension(context.Background(), fixedEmbedder{})
	assert.ErrorIs(t, err, ErrEmbeddingCount)
}

func TestBatches(t *testing.T) {
	assert.Empty(t, batches(nil, 10))
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, batches([]string{"a", "b", "c"}, 2))
	assert.Equal(t, [][]string{{"a", "b", "c"}}, batches([]string{"a", "b", "c"}, 0))
}
