package persistence

import (
	"context"
	"fmt"

	"github.com/helixml/memeindex/domain/post"
	"github.com/helixml/memeindex/internal/database"
)

// NewPostStore picks the store for the database dialect: pgvector on
// PostgreSQL, in-process ranking on SQLite.
func NewPostStore(ctx context.Context, db database.Database, dimension int, opts ...StoreOption) (post.Store, error) {
	cfg := newStoreConfig(opts...)
	if db.IsPostgres() {
		return NewPgvectorPostStore(ctx, db, dimension, cfg.logger)
	}
	return NewSQLitePostStore(db, dimension, cfg.logger)
}

func saveIdempotent[E any](ctx context.Context, repo database.Repository[post.Post, E], p post.Post) (post.Post, bool, error) {
	saved, created, err := repo.CreateIfAbsent(ctx, p, "post_key")
	if err != nil {
		return post.Post{}, false, err
	}
	if created {
		return saved, true, nil
	}

	existing, err := repo.FindOne(ctx, post.WithKey(p.Key()))
	if err != nil {
		return post.Post{}, false, fmt.Errorf("load existing post: %w", err)
	}
	return existing, false, nil
}

func checkDimension(p post.Post, dimension int) error {
	if dimension > 0 && p.Dimension() != dimension {
		return fmt.Errorf("%w: store has %d, post has %d", post.ErrDimensionMismatch, dimension, p.Dimension())
	}
	if p.Dimension() == 0 {
		return fmt.Errorf("%w: empty embedding", post.ErrDimensionMismatch)
	}
	return nil
}
