package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/helixml/memeindex/domain/post"
	"github.com/helixml/memeindex/domain/repository"
	"github.com/helixml/memeindex/domain/search"
	"github.com/helixml/memeindex/internal/database"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

const (
	pgvCreateExtension = `CREATE EXTENSION IF NOT EXISTS vector`

	pgvCreateTableTemplate = `
CREATE TABLE IF NOT EXISTS %s (
    id BIGSERIAL PRIMARY KEY,
    post_key VARCHAR(64) NOT NULL,
    title TEXT NOT NULL,
    image_url TEXT NOT NULL DEFAULT '',
    post_url TEXT NOT NULL DEFAULT '',
    score INTEGER NOT NULL DEFAULT 0,
    num_comments INTEGER NOT NULL DEFAULT 0,
    hype_score DOUBLE PRECISION NOT NULL,
    embedding_model TEXT NOT NULL,
    embedding VECTOR(%d) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	pgvCreateVectorIndex = `
CREATE INDEX IF NOT EXISTS idx_memes_embedding
ON memes
USING ivfflat (embedding vector_cosine_ops)
WITH (lists = 100)`

	pgvCheckDimension = `
SELECT a.atttypmod AS dimension
FROM pg_attribute a
JOIN pg_class c ON a.attrelid = c.oid
WHERE c.relname = ?
AND a.attname = 'embedding'`
)

var pgvCreateIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_memes_post_key ON memes (post_key)`,
	`CREATE INDEX IF NOT EXISTS idx_memes_hype_score ON memes (hype_score DESC, id ASC)`,
	`CREATE INDEX IF NOT EXISTS idx_memes_embedding_model ON memes (embedding_model)`,
	`CREATE INDEX IF NOT EXISTS idx_memes_post_url ON memes (post_url)`,
}

// ErrPgvectorInitializationFailed indicates pgvector initialization failed.
var ErrPgvectorInitializationFailed = errors.New("failed to initialize pgvector store")

// PgvectorPostStore implements post.Store on PostgreSQL with a pgvector column.
type PgvectorPostStore struct {
	repo      database.Repository[post.Post, PgPostModel]
	dimension int
	logger    *slog.Logger
}

// NewPgvectorPostStore creates the extension, table, and indexes, then
// verifies the column dimension matches the embedder.
func NewPgvectorPostStore(ctx context.Context, db database.Database, dimension int, logger *slog.Logger) (*PgvectorPostStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dimension <= 0 {
		return nil, errors.Join(ErrPgvectorInitializationFailed, fmt.Errorf("invalid dimension %d", dimension))
	}

	raw := db.Session(ctx)
	if err := raw.Exec(pgvCreateExtension).Error; err != nil {
		return nil, errors.Join(ErrPgvectorInitializationFailed, fmt.Errorf("create extension: %w", err))
	}
	if err := raw.Exec(fmt.Sprintf(pgvCreateTableTemplate, PostsTable, dimension)).Error; err != nil {
		return nil, errors.Join(ErrPgvectorInitializationFailed, fmt.Errorf("create table: %w", err))
	}
	for _, stmt := range pgvCreateIndexes {
		if err := raw.Exec(stmt).Error; err != nil {
			return nil, errors.Join(ErrPgvectorInitializationFailed, fmt.Errorf("create index: %w", err))
		}
	}
	if err := raw.Exec(pgvCreateVectorIndex).Error; err != nil {
		logger.Warn("failed to create vector index (may already exist)", "error", err)
	}

	var existing int
	result := raw.Raw(pgvCheckDimension, PostsTable).Scan(&existing)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, errors.Join(ErrPgvectorInitializationFailed, fmt.Errorf("check dimension: %w", result.Error))
	}
	if result.RowsAffected > 0 && existing != dimension {
		return nil, fmt.Errorf("%w: database has %d, embedder has %d", post.ErrDimensionMismatch, existing, dimension)
	}

	return &PgvectorPostStore{
		repo:      database.NewRepository[post.Post, PgPostModel](db, pgPostMapper{}, "post"),
		dimension: dimension,
		logger:    logger,
	}, nil
}

// Save inserts the post unless its key already exists.
func (s *PgvectorPostStore) Save(ctx context.Context, p post.Post) (post.Post, bool, error) {
	if err := checkDimension(p, s.dimension); err != nil {
		return post.Post{}, false, err
	}
	return saveIdempotent(ctx, s.repo, p)
}

// Find returns posts matching the options.
func (s *PgvectorPostStore) Find(ctx context.Context, options ...repository.Option) ([]post.Post, error) {
	return s.repo.Find(ctx, options...)
}

// Count returns the number of posts matching the options.
func (s *PgvectorPostStore) Count(ctx context.Context, options ...repository.Option) (int64, error) {
	return s.repo.Count(ctx, options...)
}

type pgRankedRow struct {
	PgPostModel `gorm:"embedded"`
	Distance    float64 `gorm:"column:distance"`
}

// Search orders by cosine distance (<=>), then hype score, then id.
func (s *PgvectorPostStore) Search(ctx context.Context, options ...repository.Option) ([]post.Ranked, error) {
	q := repository.Build(options...)
	query, ok := search.EmbeddingFrom(q)
	if !ok || len(query) == 0 {
		return []post.Ranked{}, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: store has %d, query has %d", post.ErrDimensionMismatch, s.dimension, len(query))
	}

	tx := s.repo.DB(ctx).Table(PostsTable).
		Select("*, embedding <=> ? AS distance", pgvector.NewVector(toFloat32(query)))
	tx = database.ApplyConditions(tx, options...)
	tx = tx.Order("distance ASC").Order("hype_score DESC").Order("id ASC")
	if q.LimitValue() > 0 {
		tx = tx.Limit(q.LimitValue())
	}
	if q.OffsetValue() > 0 {
		tx = tx.Offset(q.OffsetValue())
	}

	var rows []pgRankedRow
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	mapper := s.repo.Mapper()
	ranked := make([]post.Ranked, len(rows))
	for i, row := range rows {
		ranked[i] = post.NewRanked(mapper.ToDomain(row.PgPostModel), row.Distance)
	}
	return ranked, nil
}
