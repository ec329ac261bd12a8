// Package service holds domain logic that combines the embedder with the post store.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/helixml/memeindex/domain/post"
	"github.com/helixml/memeindex/domain/repository"
	"github.com/helixml/memeindex/domain/search"
)

// ErrEmptyQuery indicates a search query that is empty after trimming.
var ErrEmptyQuery = errors.New("search query cannot be empty")

// ErrEmptyEmbedding indicates the embedder returned no usable vector.
var ErrEmptyEmbedding = errors.New("embedder returned no vector")

// Embedding provides domain logic for embedding posts and queries.
type Embedding interface {
	// Index embeds the candidate's title and persists it idempotently.
	Index(ctx context.Context, candidate post.Candidate) (post.Post, bool, error)

	// Find embeds the query text and ranks stored posts against it.
	Find(ctx context.Context, query string, options ...repository.Option) ([]post.Ranked, error)
}

// EmbeddingService implements Embedding.
type EmbeddingService struct {
	store    post.Store
	embedder search.Embedder
}

// NewEmbedding creates a new embedding service.
func NewEmbedding(store post.Store, embedder search.Embedder) (*EmbeddingService, error) {
	if store == nil {
		return nil, fmt.Errorf("NewEmbedding: nil store")
	}
	if embedder == nil {
		return nil, fmt.Errorf("NewEmbedding: nil embedder")
	}
	return &EmbeddingService{store: store, embedder: embedder}, nil
}

// Model returns the embedder version used for new records and queries.
func (s *EmbeddingService) Model() string {
	return s.embedder.Model()
}

// Vector embeds a single text.
func (s *EmbeddingService) Vector(ctx context.Context, text string) ([]float64, error) {
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for 1 text", ErrEmptyEmbedding, len(vectors))
	}
	if len(vectors[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vectors[0], nil
}

// Index embeds the title, builds the post, and saves it.
// If a post with the same key exists, the existing post is returned and created is false.
func (s *EmbeddingService) Index(ctx context.Context, candidate post.Candidate) (post.Post, bool, error) {
	vector, err := s.Vector(ctx, candidate.Title())
	if err != nil {
		return post.Post{}, false, fmt.Errorf("embed title: %w", err)
	}

	saved, created, err := s.store.Save(ctx, post.NewPost(candidate, vector, s.embedder.Model()))
	if err != nil {
		return post.Post{}, false, fmt.Errorf("save post: %w", err)
	}
	return saved, created, nil
}

// Find embeds the query and searches posts produced by the same embedder model.
func (s *EmbeddingService) Find(ctx context.Context, query string, options ...repository.Option) ([]post.Ranked, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	vector, err := s.Vector(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	combined := make([]repository.Option, 0, len(options)+2)
	combined = append(combined, search.WithEmbedding(vector), search.WithEmbeddingModel(s.embedder.Model()))
	combined = append(combined, options...)

	return s.store.Search(ctx, combined...)
}
