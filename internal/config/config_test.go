package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileIsAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Nil(t, cfg)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "./chroma_db", cfg.IndexDir)
	assert.Equal(t, 1000, cfg.Chunker.Size)
	assert.Equal(t, 200, cfg.Chunker.Overlap)
	assert.Equal(t, 2, cfg.Retrieval.TopK)
	assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", cfg.Embedder.Model)
	assert.Equal(t, "google/flan-t5-base", cfg.Generator.Model)
	assert.Equal(t, 200, cfg.Generator.MaxNewTokens)
	assert.Equal(t, "sqlite", cfg.VectorStore.Type)
}

func TestLoad_AppliesBackendDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
embedder:
  type: ollama
generator:
  type: ollama
  model: mistral
vector_store:
  type: qdrant
  qdrant: {}
retrieval:
  top_k: 4
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434", cfg.Embedder.BaseURL)
	assert.Equal(t, "all-minilm", cfg.Embedder.Model)
	assert.Equal(t, "mistral", cfg.Generator.Model)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	require.NotNil(t, cfg.VectorStore.Qdrant)
	assert.Equal(t, "documind", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, "http://localhost:6333", cfg.VectorStore.Qdrant.URL)
}

func TestLoad_RejectsOverlapNotSmallerThanSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker:\n  size: 100\n  overlap: 100\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "chunker.overlap")
}

func TestLoad_RejectsQdrantWithoutSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vector_store:\n  type: qdrant\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "qdrant")
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: [oops"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Embedder = EmbedderConfig{Type: "hashing"}
	applyConfigDefaults(cfg)

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, 384, loaded.Embedder.Dimension)
}

func TestLoadDefault_WritesDefaultsWhenNothingExists(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "documind", "config.yaml"), path)
	assert.Equal(t, 1000, cfg.Chunker.Size)
	assert.FileExists(t, path)
}
