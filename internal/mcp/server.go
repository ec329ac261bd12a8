// Package mcp exposes the meme queries as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/helixml/memeindex/domain/post"
	domainservice "github.com/helixml/memeindex/domain/service"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Posts provides the read queries behind the tools.
type Posts interface {
	List(ctx context.Context, skip, limit int) ([]post.Post, error)
	Search(ctx context.Context, query string) ([]post.Ranked, error)
}

// Server wraps the MCP server with the meme tools.
type Server struct {
	mcpServer *server.MCPServer
	posts     Posts
	version   string
	logger    *slog.Logger
}

// NewServer creates an MCP server answering from posts.
func NewServer(posts Posts, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		posts:   posts,
		version: version,
		logger:  logger,
	}

	mcpServer := server.NewMCPServer(
		"memeindex",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	listTool := mcp.NewTool("list_memes",
		mcp.WithDescription("List indexed memes by hype score (score + 5 x comments), highest first"),
		mcp.WithNumber("skip",
			mcp.Description("Number of memes to skip (default: 0)"),
			mcp.Min(0),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of memes to return (default and maximum: 100)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(listTool, s.handleList)

	searchTool := mcp.NewTool("search_memes",
		mcp.WithDescription("Find the 20 memes whose titles are semantically closest to a query"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Free text describing the meme"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	mcpServer.AddTool(searchTool, s.handleSearch)

	versionTool := mcp.NewTool("get_version",
		mcp.WithDescription("Get the memeindex server version"),
	)
	mcpServer.AddTool(versionTool, s.handleVersion)
}

type memeResult struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	ImageURL    string   `json:"image_url"`
	PostURL     string   `json:"post_url"`
	Score       int      `json:"score"`
	NumComments int      `json:"num_comments"`
	HypeScore   float64  `json:"hype_score"`
	Distance    *float64 `json:"distance,omitempty"`
}

func newMemeResult(p post.Post) memeResult {
	return memeResult{
		ID:          p.ID(),
		Title:       p.Title(),
		ImageURL:    p.ImageURL(),
		PostURL:     p.PostURL(),
		Score:       p.Score(),
		NumComments: p.NumComments(),
		HypeScore:   p.HypeScore(),
	}
}

func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	skip := request.GetInt("skip", 0)
	limit := request.GetInt("limit", post.MaxPageSize)
	if skip < 0 {
		return mcp.NewToolResultError("skip must be greater than or equal to 0"), nil
	}

	posts, err := s.posts.List(ctx, skip, limit)
	if err != nil {
		s.logger.Error("list memes failed", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}

	results := make([]memeResult, len(posts))
	for i, p := range posts {
		results[i] = newMemeResult(p)
	}
	return jsonResult(results)
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}

	ranked, err := s.posts.Search(ctx, query)
	if errors.Is(err, domainservice.ErrEmptyQuery) {
		return mcp.NewToolResultError("query is required"), nil
	}
	if err != nil {
		s.logger.Error("search memes failed", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	results := make([]memeResult, len(ranked))
	for i, r := range ranked {
		results[i] = newMemeResult(r.Post())
		distance := r.Distance()
		results[i].Distance = &distance
	}
	return jsonResult(results)
}

func (s *Server) handleVersion(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.version), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
