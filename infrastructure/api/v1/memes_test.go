package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/helixml/memeindex/domain/post"
	domainservice "github.com/helixml/memeindex/domain/service"
	"github.com/helixml/memeindex/infrastructure/api/middleware"
	v1 "github.com/helixml/memeindex/infrastructure/api/v1"
	"github.com/helixml/memeindex/infrastructure/api/v1/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePosts struct {
	posts    []post.Post
	err      error
	gotSkip  int
	gotLimit int
	gotQuery string
}

func (f *fakePosts) List(_ context.Context, skip, limit int) ([]post.Post, error) {
	f.gotSkip, f.gotLimit = skip, limit
	return f.posts, f.err
}

func (f *fakePosts) Search(_ context.Context, query string) ([]post.Ranked, error) {
	f.gotQuery = query
	if strings.TrimSpace(query) == "" {
		return nil, domainservice.ErrEmptyQuery
	}
	if f.err != nil {
		return nil, f.err
	}
	ranked := make([]post.Ranked, len(f.posts))
	for i, p := range f.posts {
		ranked[i] = post.NewRanked(p, float64(i)/10)
	}
	return ranked, nil
}

func samplePosts() []post.Post {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []post.Post{
		post.ReconstructPost(2, "k2", "Doge to the moon", "https://i.redd.it/doge.png", "https://old.reddit.com/p/2", 120, 40, 320, []float64{1, 0}, "m", now),
		post.ReconstructPost(1, "k1", "Stonks", "https://i.redd.it/stonks.png", "https://old.reddit.com/p/1", 10, 1, 15, []float64{0, 1}, "m", now),
	}
}

func newRouter(posts *fakePosts) http.Handler {
	memes := v1.NewMemesRouter(posts, nil)
	r := chi.NewRouter()
	r.Mount("/memes", memes.ListRoutes())
	r.Mount("/search", memes.SearchRoutes())
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestMemes_List(t *testing.T) {
	posts := &fakePosts{posts: samplePosts()}
	w := do(t, newRouter(posts), http.MethodGet, "/memes?skip=5&limit=2", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, posts.gotSkip)
	assert.Equal(t, 2, posts.gotLimit)

	var got []dto.MemeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, dto.MemeResponse{
		ID:          2,
		Title:       "Doge to the moon",
		ImageURL:    "https://i.redd.it/doge.png",
		PostURL:     "https://old.reddit.com/p/2",
		Score:       120,
		NumComments: 40,
		HypeScore:   320,
	}, got[0])
	assert.NotContains(t, w.Body.String(), "embedding")
}

func TestMemes_ListDefaults(t *testing.T) {
	posts := &fakePosts{}
	w := do(t, newRouter(posts), http.MethodGet, "/memes", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, posts.gotSkip)
	assert.Equal(t, post.MaxPageSize, posts.gotLimit)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestMemes_ListInvalidParams(t *testing.T) {
	for _, target := range []string{"/memes?skip=abc", "/memes?limit=1.5", "/memes?skip=-1"} {
		t.Run(target, func(t *testing.T) {
			w := do(t, newRouter(&fakePosts{}), http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var body middleware.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Detail)
		})
	}
}

func TestMemes_ListStoreFailure(t *testing.T) {
	w := do(t, newRouter(&fakePosts{err: errors.New("database is locked")}), http.MethodGet, "/memes", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMemes_Search(t *testing.T) {
	posts := &fakePosts{posts: samplePosts()}
	w := do(t, newRouter(posts), http.MethodPost, "/search", `{"query":"doge"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "doge", posts.gotQuery)

	var got []dto.MemeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
}

func TestMemes_SearchBadRequests(t *testing.T) {
	tests := map[string]string{
		"empty body":  "",
		"bad json":    `{"query":`,
		"empty query": `{"query":"   "}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(body))
			w := httptest.NewRecorder()
			newRouter(&fakePosts{}).ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestMemes_SearchEmbedderFailure(t *testing.T) {
	w := do(t, newRouter(&fakePosts{err: errors.New("embedder unavailable")}), http.MethodPost, "/search", `{"query":"doge"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
