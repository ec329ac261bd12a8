// Package persistence provides database storage implementations.
package persistence

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/helixml/memeindex/domain/post"
	"github.com/pgvector/pgvector-go"
)

// PostsTable is the table holding indexed posts.
const PostsTable = "memes"

// PostColumns holds the columns shared by both post store backends.
type PostColumns struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PostKey        string    `gorm:"column:post_key;size:64;not null;uniqueIndex:idx_memes_post_key"`
	Title          string    `gorm:"column:title;not null"`
	ImageURL       string    `gorm:"column:image_url"`
	PostURL        string    `gorm:"column:post_url;index:idx_memes_post_url"`
	Score          int       `gorm:"column:score;not null;default:0"`
	NumComments    int       `gorm:"column:num_comments;not null;default:0"`
	HypeScore      float64   `gorm:"column:hype_score;not null;index:idx_memes_hype_score"`
	EmbeddingModel string    `gorm:"column:embedding_model;not null;index:idx_memes_embedding_model"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func columnsFromPost(p post.Post) PostColumns {
	return PostColumns{
		ID:             p.ID(),
		PostKey:        p.Key(),
		Title:          p.Title(),
		ImageURL:       p.ImageURL(),
		PostURL:        p.PostURL(),
		Score:          p.Score(),
		NumComments:    p.NumComments(),
		HypeScore:      p.HypeScore(),
		EmbeddingModel: p.EmbeddingModel(),
		CreatedAt:      p.CreatedAt(),
	}
}

func (c PostColumns) toPost(embedding []float64) post.Post {
	return post.ReconstructPost(
		c.ID, c.PostKey, c.Title, c.ImageURL, c.PostURL,
		c.Score, c.NumComments, c.HypeScore,
		embedding, c.EmbeddingModel, c.CreatedAt,
	)
}

// Float64Slice stores a vector as JSON text in SQLite.
type Float64Slice []float64

// Scan implements sql.Scanner.
func (f *Float64Slice) Scan(value any) error {
	if value == nil {
		*f = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Float64Slice", value)
	}
	return json.Unmarshal(data, f)
}

// Value implements driver.Valuer.
func (f Float64Slice) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal([]float64(f))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// SQLitePostModel is the SQLite row for a post.
type SQLitePostModel struct {
	PostColumns `gorm:"embedded"`
	Embedding   Float64Slice `gorm:"column:embedding;type:text;not null"`
}

// TableName returns the posts table.
func (SQLitePostModel) TableName() string { return PostsTable }

type sqlitePostMapper struct{}

func (sqlitePostMapper) ToDomain(e SQLitePostModel) post.Post {
	return e.toPost([]float64(e.Embedding))
}

func (sqlitePostMapper) ToModel(p post.Post) SQLitePostModel {
	return SQLitePostModel{PostColumns: columnsFromPost(p), Embedding: Float64Slice(p.Embedding())}
}

// PgPostModel is the PostgreSQL row for a post with a pgvector column.
type PgPostModel struct {
	PostColumns `gorm:"embedded"`
	Embedding   pgvector.Vector `gorm:"column:embedding;type:vector;not null"`
}

// TableName returns the posts table.
func (PgPostModel) TableName() string { return PostsTable }

type pgPostMapper struct{}

func (pgPostMapper) ToDomain(e PgPostModel) post.Post {
	return e.toPost(toFloat64(e.Embedding.Slice()))
}

func (pgPostMapper) ToModel(p post.Post) PgPostModel {
	return PgPostModel{PostColumns: columnsFromPost(p), Embedding: pgvector.NewVector(toFloat32(p.Embedding()))}
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
