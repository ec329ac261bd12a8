package search

import (
	"testing"

	"github.com/helixml/memeindex/domain/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        []float64
		b        []float64
		expected float64
	}{
		{name: "identical", a: []float64{1, 0, 0}, b: []float64{1, 0, 0}, expected: 0},
		{name: "scaled identical", a: []float64{1, 2, 3}, b: []float64{2, 4, 6}, expected: 0},
		{name: "orthogonal", a: []float64{1, 0, 0}, b: []float64{0, 1, 0}, expected: 1},
		{name: "opposite", a: []float64{1, 0, 0}, b: []float64{-1, 0, 0}, expected: 2},
		{name: "zero against non-zero", a: []float64{0, 0, 0}, b: []float64{1, 0, 0}, expected: 1},
		{name: "both zero", a: []float64{0, 0}, b: []float64{0, 0}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineDistance(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestCosineDistance_DimensionMismatch(t *testing.T) {
	_, err := CosineDistance([]float64{1, 0}, []float64{1, 0, 0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = CosineDistance(nil, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestEmbeddingFrom(t *testing.T) {
	q := repository.Build(WithEmbedding([]float64{0.1, 0.2}))
	emb, ok := EmbeddingFrom(q)
	require.True(t, ok)
	assert.Equal(t, []float64{0.1, 0.2}, emb)

	_, ok = EmbeddingFrom(repository.Build())
	assert.False(t, ok)
}

func TestWithEmbeddingModel(t *testing.T) {
	q := repository.Build(WithEmbeddingModel("all-MiniLM-L6-v2"))
	conds := q.Conditions()
	require.Len(t, conds, 1)
	assert.Equal(t, "embedding_model", conds[0].Field())
	assert.Equal(t, "all-MiniLM-L6-v2", conds[0].Value())
}
