package service

import (
	"context"
	"fmt"

	"github.com/helixml/memeindex/domain/post"
	"github.com/helixml/memeindex/domain/repository"
	domainservice "github.com/helixml/memeindex/domain/service"
)

// Posts answers read queries over indexed posts.
type Posts struct {
	store     post.Store
	embedding domainservice.Embedding
}

// NewPosts creates a Posts query service.
func NewPosts(store post.Store, embedding domainservice.Embedding) (*Posts, error) {
	if store == nil {
		return nil, fmt.Errorf("NewPosts: nil store")
	}
	if embedding == nil {
		return nil, fmt.Errorf("NewPosts: nil embedding service")
	}
	return &Posts{store: store, embedding: embedding}, nil
}

// List returns posts by hype, highest first. skip and limit are clamped.
func (s *Posts) List(ctx context.Context, skip, limit int) ([]post.Post, error) {
	skip, limit = post.ClampPage(skip, limit)
	options := append([]repository.Option{post.WithHypeOrder()}, repository.WithPagination(limit, skip)...)
	posts, err := s.store.Find(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// Search returns the posts whose titles are semantically closest to query.
// An empty query returns domainservice.ErrEmptyQuery.
func (s *Posts) Search(ctx context.Context, query string) ([]post.Ranked, error) {
	return s.embedding.Find(ctx, query, repository.WithLimit(post.DefaultSearchLimit))
}

// Count returns the number of indexed posts.
func (s *Posts) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}
