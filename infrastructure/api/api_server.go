package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/helixml/memeindex/infrastructure/api/middleware"
	v1 "github.com/helixml/memeindex/infrastructure/api/v1"
	"github.com/mark3labs/mcp-go/server"
)

// WelcomeMessage is returned by GET /.
const WelcomeMessage = "Welcome to the Meme Stock Analyzer API!"

// requestTimeout bounds the query routes. MCP streams and is exempt.
const requestTimeout = 60 * time.Second

// APIServerOption configures an APIServer.
type APIServerOption func(*APIServer)

// WithCORSOrigins allows cross-origin requests from origins.
func WithCORSOrigins(origins []string) APIServerOption {
	return func(a *APIServer) { a.corsOrigins = origins }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) APIServerOption {
	return func(a *APIServer) { a.metrics = h }
}

// WithMCPServer serves the MCP server over streamable HTTP on /mcp.
func WithMCPServer(s *server.MCPServer) APIServerOption {
	return func(a *APIServer) { a.mcp = s }
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) APIServerOption {
	return func(a *APIServer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithDocs serves Swagger UI and the OpenAPI document under /docs.
func WithDocs() APIServerOption {
	return func(a *APIServer) { a.docs = true }
}

// APIServer mounts the meme routes on a Server.
type APIServer struct {
	posts       v1.Posts
	corsOrigins []string
	metrics     http.Handler
	mcp         *server.MCPServer
	docs        bool
	server      *Server
	router      chi.Router
	logger      *slog.Logger
}

// NewAPIServer creates an APIServer answering from posts.
func NewAPIServer(posts v1.Posts, opts ...APIServerOption) *APIServer {
	a := &APIServer{posts: posts, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// mountRoutes wires every route onto router.
func (a *APIServer) mountRoutes(router chi.Router) {
	if len(a.corsOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   a.corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{middleware.CorrelationIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": WelcomeMessage})
	})
	health := func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
	router.Get("/health", health)
	router.Get("/healthz", health)

	if a.metrics != nil {
		router.Method(http.MethodGet, "/metrics", a.metrics)
	}

	memes := v1.NewMemesRouter(a.posts, a.logger)

	// Legacy paths used by the web frontend.
	router.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))
		r.Mount("/memes", memes.ListRoutes())
		r.Mount("/search", memes.SearchRoutes())
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(requestTimeout))
		r.Mount("/memes", memes.ListRoutes())
		r.Mount("/search", memes.SearchRoutes())
	})

	if a.docs {
		router.Mount("/docs", NewDocsRouter("/docs/openapi.json").Routes())
	}

	if a.mcp != nil {
		router.Mount("/mcp", server.NewStreamableHTTPServer(a.mcp))
	}
}

// Handler returns the routes as an http.Handler, for tests or custom servers.
func (a *APIServer) Handler() http.Handler {
	if a.router == nil {
		a.router = chi.NewRouter()
		a.mountRoutes(a.router)
	}
	return a.router
}

// ListenAndServe starts the HTTP server on addr and blocks until it stops.
func (a *APIServer) ListenAndServe(addr string) error {
	srv := NewServer(addr, a.logger)
	a.server = &srv
	a.mountRoutes(srv.Router())
	return srv.Start()
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}
