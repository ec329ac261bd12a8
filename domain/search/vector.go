package search

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch indicates two vectors (or a vector and a store column) disagree on dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// CosineDistance returns 1 - cosine similarity, in the range [0, 2].
// A zero-magnitude vector is treated as maximally distant from everything
// except another zero vector.
func CosineDistance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}

	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}

	if magA == 0 || magB == 0 {
		if magA == magB {
			return 0, nil
		}
		return 1, nil
	}

	similarity := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	// Clamp rounding drift so identical vectors give exactly 0.
	if similarity > 1 {
		similarity = 1
	} else if similarity < -1 {
		similarity = -1
	}
	return 1 - similarity, nil
}
