package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHugotEmbedding_Embed(t *testing.T) {
	if !hasEmbeddedModel {
		t.Skip("skipping: requires -tags embed_model")
	}

	emb := NewHugotEmbedding(t.TempDir(), "")
	vectors, err := emb.Embed(context.Background(), []string{"wen lambo", "stonks only go up"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	require.Len(t, vectors[0], 384, "all-MiniLM-L6-v2 produces 384 dimensions")

	dim, err := Dimension(context.Background(), emb)
	require.NoError(t, err)
	assert.Equal(t, 384, dim)
}

func TestHugotEmbedding_EmbedBatches(t *testing.T) {
	if !hasEmbeddedModel {
		t.Skip("skipping: requires -tags embed_model")
	}

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = "buy the dip"
	}

	vectors, err := NewHugotEmbedding(t.TempDir(), "").Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 25)
}

func TestHugotEmbedding_EmbedEmpty(t *testing.T) {
	emb := NewHugotEmbedding(t.TempDir(), "")
	vectors, err := emb.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestHugotEmbedding_Model(t *testing.T) {
	assert.Equal(t, DefaultHugotModel, NewHugotEmbedding(t.TempDir(), "").Model())
	assert.Equal(t, "custom/model", NewHugotEmbedding(t.TempDir(), "custom/model").Model())
}

func TestHugotEmbedding_Close(t *testing.T) {
	emb := NewHugotEmbedding(t.TempDir(), "")
	require.NoError(t, emb.Close())
	require.NoError(t, emb.Close())
}

func TestHugotEmbedding_MissingModel(t *testing.T) {
	if hasEmbeddedModel {
		t.Skip("embedded model is always available")
	}

	emb := NewHugotEmbedding(t.TempDir(), "")
	_, err := emb.Embed(context.Background(), []string{"hello"})
	require.ErrorIs(t, err, ErrModelNotFound)
}

func TestHugotEmbedding_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHugotEmbedding(t.TempDir(), "").Embed(ctx, []string{"hello"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtractEmbeddedModel(t *testing.T) {
	fakeFS := fstest.MapFS{
		"models/all-MiniLM-L6-v2/tokenizer.json":  {Data: []byte(`{"test": true}`)},
		"models/all-MiniLM-L6-v2/config.json":     {Data: []byte(`{"hidden_size": 384}`)},
		"models/all-MiniLM-L6-v2/onnx/model.onnx": {Data: []byte("fake-onnx-data")},
	}

	targetDir := t.TempDir()
	modelPath, err := extractEmbeddedModel(fakeFS, targetDir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(targetDir, "all-MiniLM-L6-v2"), modelPath)

	data, err := os.ReadFile(filepath.Join(modelPath, "onnx", "model.onnx"))
	require.NoError(t, err)
	require.Equal(t, "fake-onnx-data", string(data))

	// Already extracted.
	again, err := extractEmbeddedModel(fakeFS, targetDir)
	require.NoError(t, err)
	require.Equal(t, modelPath, again)
}

func TestExtractEmbeddedModel_NoModelDir(t *testing.T) {
	_, err := extractEmbeddedModel(fstest.MapFS{"models/.gitkeep": {Data: []byte("")}}, t.TempDir())
	require.ErrorContains(t, err, "no model directory found")
}

func TestHugotEmbedding_DiskModelPath(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
		found string
	}{
		{
			name:  "empty directory",
			setup: func(*testing.T, string) {},
		},
		{
			name: "plain file is skipped",
			setup: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("readme"), 0o644))
			},
		},
		{
			name: "directory without tokenizer is skipped",
			setup: func(t *testing.T, dir string) {
				require.NoError(t, os.MkdirAll(filepath.Join(dir, "partial"), 0o755))
			},
		},
		{
			name: "model directory",
			setup: func(t *testing.T, dir string) {
				sub := filepath.Join(dir, "minilm")
				require.NoError(t, os.MkdirAll(sub, 0o755))
				require.NoError(t, os.WriteFile(filepath.Join(sub, "tokenizer.json"), []byte(`{}`), 0o644))
			},
			found: "minilm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, dir)

			emb := NewHugotEmbedding(dir, "")
			got, err := emb.diskModelPath()
			if tt.found == "" {
				require.ErrorIs(t, err, ErrModelNotFound)
				if !hasEmbeddedModel {
					assert.False(t, emb.Available())
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.found), got)
			assert.True(t, emb.Available())
		})
	}
}
