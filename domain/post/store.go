package post

import (
	"context"

	"github.com/helixml/memeindex/domain/repository"
	"github.com/helixml/memeindex/domain/search"
)

// Store persists indexed posts.
type Store interface {
	// Save inserts the post unless one with the same key exists. It returns
	// the stored post and whether this call created it.
	Save(ctx context.Context, p Post) (Post, bool, error)
	// Find returns posts matching the options.
	Find(ctx context.Context, options ...repository.Option) ([]Post, error)
	// Search ranks posts against the query vector carried by
	// search.WithEmbedding, nearest first.
	Search(ctx context.Context, options ...repository.Option) ([]Ranked, error)
	// Count returns the number of posts matching the options.
	Count(ctx context.Context, options ...repository.Option) (int64, error)
}

// ErrDimensionMismatch indicates an embedding whose dimension differs from the store's column.
var ErrDimensionMismatch = search.ErrDimensionMismatch
