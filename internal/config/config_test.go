package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docchat/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Chunker.MaxChars)
	require.NotNil(t, cfg.Chunker.OverlapChars)
	assert.Equal(t, 150, *cfg.Chunker.OverlapChars)
	assert.Equal(t, "openai", cfg.Embedder.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.Model)
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 3, cfg.Query.TopK)
	assert.Nil(t, cfg.Query.MinScore) // absent key means no threshold
	assert.Equal(t, 4, cfg.Ingest.Concurrency)
}

func TestLoad_OverridesMergeWithDefaults(t *testing.T) {
	path := writeConfig(t, `
chunker:
  max_chars: 500
embedder:
  provider: hash
  dimension: 64
index:
  backend: qdrant
  host: qdrant.internal
store:
  backend: sqlite
  path: /var/lib/docchat/docchat.db
query:
  top_k: 5
  min_score: 0.2
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Chunker.MaxChars)
	require.NotNil(t, cfg.Chunker.OverlapChars)
	assert.Equal(t, 150, *cfg.Chunker.OverlapChars) // default survives
	assert.Equal(t, "hash", cfg.Embedder.Provider)
	assert.Equal(t, 64, cfg.Embedder.Dimension)
	assert.Equal(t, "qdrant", cfg.Index.Backend)
	assert.Equal(t, "qdrant.internal", cfg.Index.Host)
	assert.Equal(t, 6334, cfg.Index.Port)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/var/lib/docchat/docchat.db", cfg.Store.Path)
	assert.Equal(t, 5, cfg.Query.TopK)
	require.NotNil(t, cfg.Query.MinScore)
	assert.InDelta(t, 0.2, float64(*cfg.Query.MinScore), 1e-6)
}

func TestLoad_ExplicitZeroesSurvive(t *testing.T) {
	// Zero is a legal overlap and a legal threshold; neither may be
	// silently replaced by a default.
	path := writeConfig(t, `
chunker:
  overlap_chars: 0
query:
  min_score: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.Chunker.OverlapChars)
	assert.Equal(t, 0, *cfg.Chunker.OverlapChars)
	require.NotNil(t, cfg.Query.MinScore)
	assert.Zero(t, *cfg.Query.MinScore)
}

func TestLoad_RejectsUnknownBackends(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"embedder", "embedder:\n  provider: cohere\n"},
		{"index", "index:\n  backend: pinecone\n"},
		{"store", "store:\n  backend: postgres\n"},
		{"negative top_k", "query:\n  top_k: -2\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "chunker: [not a map"))
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
