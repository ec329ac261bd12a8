// Package search defines the embedding and vector similarity primitives used to rank posts.
package search

import "context"

// Embedder converts text into fixed-dimension embedding vectors.
//
// Model identifies the embedder version. Vectors produced by different
// models are not comparable, so it is persisted alongside every record.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Model() string
}
