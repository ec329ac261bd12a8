package v1

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/helixml/memeindex/domain/post"
	"github.com/helixml/memeindex/infrastructure/api/middleware"
	"github.com/helixml/memeindex/infrastructure/api/v1/dto"
)

// Posts is the query service behind the routes.
type Posts interface {
	List(ctx context.Context, skip, limit int) ([]post.Post, error)
	Search(ctx context.Context, query string) ([]post.Ranked, error)
}

// maxBodyBytes bounds a search request body.
const maxBodyBytes = 64 << 10

// MemesRouter serves listing and search.
type MemesRouter struct {
	posts  Posts
	logger *slog.Logger
}

// NewMemesRouter creates a MemesRouter.
func NewMemesRouter(posts Posts, logger *slog.Logger) *MemesRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemesRouter{posts: posts, logger: logger}
}

// ListRoutes returns the router for GET /memes.
func (m *MemesRouter) ListRoutes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", m.List)
	return router
}

// SearchRoutes returns the router for POST /search.
func (m *MemesRouter) SearchRoutes() chi.Router {
	router := chi.NewRouter()
	router.Post("/", m.Search)
	return router
}

// List handles GET /memes?skip=&limit=.
func (m *MemesRouter) List(w http.ResponseWriter, req *http.Request) {
	skip, limit, err := ParsePagination(req)
	if err != nil {
		middleware.WriteError(w, req, err, m.logger)
		return
	}

	posts, err := m.posts.List(req.Context(), skip, limit)
	if err != nil {
		middleware.WriteError(w, req, err, m.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, dto.NewMemeList(posts))
}

// Search handles POST /search with {"query": "..."}.
func (m *MemesRouter) Search(w http.ResponseWriter, req *http.Request) {
	var body dto.SearchRequest
	if err := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes)).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			err = middleware.BadRequest("request body is required", nil)
		} else {
			err = middleware.BadRequest("invalid JSON body", err)
		}
		middleware.WriteError(w, req, err, m.logger)
		return
	}

	ranked, err := m.posts.Search(req.Context(), body.Query)
	if err != nil {
		middleware.WriteError(w, req, err, m.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, dto.NewRankedList(ranked))
}
