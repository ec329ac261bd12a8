package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/helixml/memeindex/domain/post"
	"github.com/helixml/memeindex/domain/repository"
	"github.com/helixml/memeindex/domain/search"
	"github.com/helixml/memeindex/internal/database"
)

// SQLitePostStore implements post.Store on SQLite. Vectors are stored as
// JSON and similarity is computed in process.
type SQLitePostStore struct {
	repo      database.Repository[post.Post, SQLitePostModel]
	dimension int
	logger    *slog.Logger
}

// NewSQLitePostStore creates the posts table if needed. A dimension of 0
// disables the dimension check on save.
func NewSQLitePostStore(db database.Database, dimension int, logger *slog.Logger) (*SQLitePostStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.GORM().AutoMigrate(&SQLitePostModel{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", PostsTable, err)
	}
	return &SQLitePostStore{
		repo:      database.NewRepository[post.Post, SQLitePostModel](db, sqlitePostMapper{}, "post"),
		dimension: dimension,
		logger:    logger,
	}, nil
}

// Save inserts the post unless its key already exists.
func (s *SQLitePostStore) Save(ctx context.Context, p post.Post) (post.Post, bool, error) {
	if err := checkDimension(p, s.dimension); err != nil {
		return post.Post{}, false, err
	}
	return saveIdempotent(ctx, s.repo, p)
}

// Find returns posts matching the options.
func (s *SQLitePostStore) Find(ctx context.Context, options ...repository.Option) ([]post.Post, error) {
	return s.repo.Find(ctx, options...)
}

// Count returns the number of posts matching the options.
func (s *SQLitePostStore) Count(ctx context.Context, options ...repository.Option) (int64, error) {
	return s.repo.Count(ctx, options...)
}

// Search loads every candidate row matching the conditions and ranks by
// cosine distance, then hype score, then id.
func (s *SQLitePostStore) Search(ctx context.Context, options ...repository.Option) ([]post.Ranked, error) {
	q := repository.Build(options...)
	query, ok := search.EmbeddingFrom(q)
	if !ok || len(query) == 0 {
		return []post.Ranked{}, nil
	}

	var rows []SQLitePostModel
	db := database.ApplyConditions(s.repo.DB(ctx).Model(&SQLitePostModel{}), options...)
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}

	mapper := s.repo.Mapper()
	ranked := make([]post.Ranked, 0, len(rows))
	for _, row := range rows {
		d, err := search.CosineDistance(query, row.Embedding)
		if errors.Is(err, search.ErrDimensionMismatch) {
			s.logger.Warn("skipping post with mismatched embedding", "id", row.ID, "dimension", len(row.Embedding), "query_dimension", len(query))
			continue
		}
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, post.NewRanked(mapper.ToDomain(row), d))
	}

	sortRanked(ranked)
	return page(ranked, q.OffsetValue(), q.LimitValue()), nil
}

func sortRanked(ranked []post.Ranked) {
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Distance() != b.Distance() {
			return a.Distance() < b.Distance()
		}
		if a.Post().HypeScore() != b.Post().HypeScore() {
			return a.Post().HypeScore() > b.Post().HypeScore()
		}
		return a.Post().ID() < b.Post().ID()
	})
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
