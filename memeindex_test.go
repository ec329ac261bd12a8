package memeindex_test

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/helixml/memeindex"
	"github.com/helixml/memeindex/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wordEmbedder struct{}

func (wordEmbedder) Model() string { return "word-hash" }

func (wordEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		v := make([]float64, 64)
		v[0] = 0.01
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(word))
			v[h.Sum32()%64]++
		}
		vectors[i] = v
	}
	return vectors, nil
}

const listingPage = `<html><body>
<div class="thing" data-url="https://i.redd.it/moon.png">
  <p class="title"><a class="title" href="/r/MemeEconomy/comments/1">Rocket to the moon</a></p>
  <div class="score unvoted" title="120">120</div>
  <a class="comments" href="/r/MemeEconomy/comments/1">40 comments</a>
</div>
<div class="thing" data-url="https://i.redd.it/bear.png">
  <p class="title"><a class="title" href="/r/MemeEconomy/comments/2">Bear market tears</a></p>
  <div class="score unvoted" title="10">10</div>
  <a class="comments" href="/r/MemeEconomy/comments/2">1 comment</a>
</div>
</body></html>`

func newClient(t *testing.T, opts ...memeindex.Option) *memeindex.Client {
	t.Helper()
	base := []memeindex.Option{
		memeindex.WithSQLite(filepath.Join(t.TempDir(), "memeindex.db")),
		memeindex.WithEmbedder(wordEmbedder{}),
		memeindex.WithQueueConfig(config.NewQueueConfig().WithDeadLetter("memes-dlq")),
		memeindex.WithIndexerConfig(config.NewIndexerConfigWithOptions(
			config.WithWait(100*time.Millisecond),
			config.WithMaxReceives(1),
		)),
		memeindex.WithCrawlerConfig(config.NewCrawlerConfig().WithRequestsPerSecond(100)),
	}
	client, err := memeindex.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNew_RequiresEmbedder(t *testing.T) {
	dir := t.TempDir()
	_, err := memeindex.New(
		memeindex.WithSQLite(filepath.Join(dir, "memeindex.db")),
		memeindex.WithHugot(filepath.Join(dir, "models"), ""),
	)
	assert.ErrorIs(t, err, memeindex.ErrNoEmbedder)
}

func TestNew_UnknownQueueBackend(t *testing.T) {
	_, err := memeindex.New(
		memeindex.WithSQLite(filepath.Join(t.TempDir(), "memeindex.db")),
		memeindex.WithEmbedder(wordEmbedder{}),
		memeindex.WithQueueConfig(config.NewQueueConfig().WithBackend("kafka")),
	)
	assert.ErrorContains(t, err, "unknown queue backend")
}

func TestClient_CrawlIndexQuery(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, listingPage)
	}))
	defer site.Close()

	client := newClient(t)
	ctx := context.Background()

	stats, err := client.Crawl(ctx, site.URL+"/r/MemeEconomy/")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pages)
	assert.Equal(t, 2, stats.Sent)

	// A redelivered duplicate and a poison payload.
	body, err := json.Marshal(map[string]any{
		"title": "Rocket to the moon", "image_url": "https://i.redd.it/moon.png",
		"post_url": site.URL + "/r/MemeEconomy/comments/1", "score": 120, "num_comments": 40,
	})
	require.NoError(t, err)
	require.NoError(t, client.Queue().Send(ctx, body))
	require.NoError(t, client.Queue().Send(ctx, []byte(`not json`)))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- client.RunIndexer(runCtx) }()

	require.Eventually(t, func() bool {
		n, err := client.Posts.Count(ctx)
		return err == nil && n == 2
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	top, err := client.Posts.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Rocket to the moon", top[0].Title())
	assert.InDelta(t, 320, top[0].HypeScore(), 1e-9)
	assert.InDelta(t, 15, top[1].HypeScore(), 1e-9)

	ranked, err := client.Posts.Search(ctx, "bear tears")
	require.NoError(t, err)
	require.NotEmpty(t, ranked)
	assert.Equal(t, "Bear market tears", ranked[0].Post().Title())
}

func TestClient_APIServer(t *testing.T) {
	client := newClient(t)
	h := client.APIServer().Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/memes", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "memeindex_messages_received_total")
}

func TestClient_WithoutMetrics(t *testing.T) {
	client := newClient(t, memeindex.WithoutMetrics())
	assert.Nil(t, client.MetricsHandler())
}

func TestClient_Close(t *testing.T) {
	client, err := memeindex.New(
		memeindex.WithSQLite(filepath.Join(t.TempDir(), "memeindex.db")),
		memeindex.WithEmbedder(wordEmbedder{}),
	)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err = client.Crawl(context.Background(), "http://localhost/")
	assert.ErrorIs(t, err, memeindex.ErrClosed)
	assert.ErrorIs(t, client.RunIndexer(context.Background()), memeindex.ErrClosed)
}
