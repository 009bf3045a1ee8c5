// Package config loads the application configuration from YAML, filling in
// defaults for anything left unset. API keys never appear here; they arrive
// through the environment at startup.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bull/docchat/internal/domain"
)

// ChunkerConfig sets the chunk window in characters. OverlapChars is a
// pointer because zero is a legal overlap, distinct from leaving the key
// out; Load fills it in, so it is never nil afterwards.
type ChunkerConfig struct {
	MaxChars     int  `yaml:"max_chars"`
	OverlapChars *int `yaml:"overlap_chars"`
}

// EmbedderConfig selects the embedding provider. The hash provider is
// deterministic and offline, for development and tests.
type EmbedderConfig struct {
	Provider  string `yaml:"provider"` // openai | hash
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
	Dimension int    `yaml:"dimension"` // hash provider only
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend    string `yaml:"backend"` // memory | qdrant
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory | sqlite
	Path    string `yaml:"path"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	CommitBatch int `yaml:"commit_batch"`
	Concurrency int `yaml:"concurrency"`
}

// QueryConfig tunes retrieval. MinScore stays nil when the key is absent:
// no threshold applies, and an explicit zero is honored as a threshold.
type QueryConfig struct {
	TopK     int      `yaml:"top_k"`
	MinScore *float32 `yaml:"min_score"`
}

// Config is the root application configuration.
type Config struct {
	Chunker  ChunkerConfig  `yaml:"chunker"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Index    IndexConfig    `yaml:"index"`
	Store    StoreConfig    `yaml:"store"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Query    QueryConfig    `yaml:"query"`
}

// Load reads the config at path. A missing file is not an error: defaults
// apply, so the tool works out of the box.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := &Config{}
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidConfig, path, err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Chunker.MaxChars == 0 {
		cfg.Chunker.MaxChars = 1000
	}
	if cfg.Chunker.OverlapChars == nil {
		overlap := 150
		cfg.Chunker.OverlapChars = &overlap
	}
	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = "openai"
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = "text-embedding-3-small"
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 500
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 256
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "memory"
	}
	if cfg.Index.Host == "" {
		cfg.Index.Host = "localhost"
	}
	if cfg.Index.Port == 0 {
		cfg.Index.Port = 6334
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "docchat"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "docchat.db"
	}
	if cfg.Ingest.CommitBatch == 0 {
		cfg.Ingest.CommitBatch = 32
	}
	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 4
	}
	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 3
	}
}

func validate(cfg *Config) error {
	switch cfg.Embedder.Provider {
	case "openai", "hash":
	default:
		return fmt.Errorf("%w: unknown embedder provider %q", domain.ErrInvalidConfig, cfg.Embedder.Provider)
	}
	switch cfg.Index.Backend {
	case "memory", "qdrant":
	default:
		return fmt.Errorf("%w: unknown index backend %q", domain.ErrInvalidConfig, cfg.Index.Backend)
	}
	switch cfg.Store.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("%w: unknown store backend %q", domain.ErrInvalidConfig, cfg.Store.Backend)
	}
	if cfg.Query.TopK < 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrInvalidConfig, cfg.Query.TopK)
	}
	return nil
}
