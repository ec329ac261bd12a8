// Package provider implements search.Embedder with a local hugot model or a
// remote OpenAI-compatible embeddings endpoint.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/helixml/memeindex/domain/search"
)

var (
	// ErrModelNotFound indicates no local model files could be located.
	ErrModelNotFound = errors.New("embedding model not found")

	// ErrEmbeddingCount indicates the provider returned a different number
	// of vectors than texts.
	ErrEmbeddingCount = errors.New("embedding count mismatch")
)

// ProviderError describes a failed provider call.
type ProviderError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

// NewProviderError creates a ProviderError.
func NewProviderError(operation string, statusCode int, message string, err error) *ProviderError {
	return &ProviderError{Operation: operation, StatusCode: statusCode, Message: message, Err: err}
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed (status %d): %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Closer is implemented by embedders holding resources.
type Closer interface {
	Close() error
}

// Dimension embeds a probe text and returns the vector length.
func Dimension(ctx context.Context, e search.Embedder) (int, error) {
	vectors, err := e.Embed(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimension: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return 0, fmt.Errorf("%w: probe returned %d vectors", ErrEmbeddingCount, len(vectors))
	}
	return len(vectors[0]), nil
}

func batches(texts []string, size int) [][]string {
	if size <= 0 {
		size = len(texts)
	}
	var out [][]string
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		out = append(out, texts[start:end])
	}
	return out
}
