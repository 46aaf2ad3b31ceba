// Package config loads and validates the travelcs configuration from
// travelcs.yaml, with defaults for everything and environment overrides
// for secrets and endpoints.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/angeless/travelcs/internal/chunk"
	kberrors "github.com/angeless/travelcs/internal/errors"
)

// Config is the complete travelcs configuration.
type Config struct {
	// Paths.
	DataDir      string `yaml:"data_dir"`
	DocumentsDir string `yaml:"documents_dir"`

	Logging   LoggingConfig   `yaml:"logging"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  chunk.Config    `yaml:"chunking"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`

	// File is an optional log file path; empty logs to stderr.
	File string `yaml:"file"`
}

// EmbeddingConfig configures the embedding gateway.
type EmbeddingConfig struct {
	// Provider is ollama, openai, or static.
	Provider string `yaml:"provider"`

	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	OllamaHost string        `yaml:"ollama_host"`
	Timeout    time.Duration `yaml:"timeout"`

	// CacheSize is the query embedding LRU capacity; negative disables
	// caching.
	CacheSize int `yaml:"cache_size"`
}

// CanaryConfig configures pre-promotion validation queries.
type CanaryConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Queries    []string `yaml:"queries"`
	TopK       int      `yaml:"top_k"`
	MinOverlap float64  `yaml:"min_overlap"`
}

// IndexConfig configures the incremental indexer and sweeper.
type IndexConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	Canary        CanaryConfig  `yaml:"canary"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RerankConfig configures the cross-encoder reranker.
type RerankConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	TopK            int          `yaml:"top_k"`
	SemanticWeight  float64      `yaml:"semantic_weight"`
	KeywordWeight   float64      `yaml:"keyword_weight"`
	SimilarityFloor float64      `yaml:"similarity_floor"`
	RerankPoolSize  int          `yaml:"rerank_pool_size"`
	MaxVariants     int          `yaml:"max_variants"`
	Rerank          RerankConfig `yaml:"rerank"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataDir:      ".travelcs",
		DocumentsDir: "documents",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			CacheSize: 0, // library default
			Timeout:   60 * time.Second,
		},
		Chunking: chunk.DefaultConfig(),
		Index: IndexConfig{
			BatchSize: 32,
			Canary: CanaryConfig{
				Enabled:    true,
				Queries:    []string{"巴厘岛价格", "退款政策", "改期手续费", "签证材料"},
				TopK:       5,
				MinOverlap: 0.4,
			},
			Retention:     30 * 24 * time.Hour,
			SweepInterval: 24 * time.Hour,
		},
		Search: SearchConfig{
			TopK:            5,
			SemanticWeight:  0.7,
			KeywordWeight:   0.3,
			SimilarityFloor: 0.75,
			RerankPoolSize:  10,
			MaxVariants:     4,
			Rerank: RerankConfig{
				Enabled:  false,
				Endpoint: "http://localhost:9659",
				Model:    "bge-reranker-base",
				Timeout:  30 * time.Second,
			},
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Load reads travelcs.yaml (or .yml) from dir, merged over defaults and
// validated. A missing file is fine; the defaults stand.
func Load(dir string) (*Config, error) {
	cfg := Default()

	for _, name := range []string{"travelcs.yaml", "travelcs.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
		break
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return kberrors.New(kberrors.CodeConfigNotFound, fmt.Sprintf("read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return kberrors.ConfigError(fmt.Sprintf("parse config file %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies environment variables over file values.
// Secrets never belong in travelcs.yaml.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TRAVELCS_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("TRAVELCS_DOCUMENTS_DIR"); v != "" {
		c.DocumentsDir = v
	}
	if v := os.Getenv("TRAVELCS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TRAVELCS_EMBEDDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("TRAVELCS_OLLAMA_HOST"); v != "" {
		c.Embedding.OllamaHost = v
	}
	if v := os.Getenv("TRAVELCS_RERANKER_ENDPOINT"); v != "" {
		c.Search.Rerank.Endpoint = v
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return kberrors.ConfigError("data_dir must not be empty", nil)
	}

	sum := c.Search.SemanticWeight + c.Search.KeywordWeight
	if sum < 0.999 || sum > 1.001 {
		return kberrors.ConfigError(
			fmt.Sprintf("search weights must sum to 1, got %.3f", sum), nil)
	}
	if c.Search.SimilarityFloor < 0 || c.Search.SimilarityFloor > 1 {
		return kberrors.ConfigError(
			fmt.Sprintf("similarity_floor must be in [0, 1], got %.3f", c.Search.SimilarityFloor), nil)
	}
	if c.Search.RerankPoolSize <= 0 {
		return kberrors.ConfigError("rerank_pool_size must be positive", nil)
	}

	if c.Index.BatchSize <= 0 {
		return kberrors.ConfigError("index batch_size must be positive", nil)
	}
	if c.Index.Retention <= 0 {
		return kberrors.ConfigError("index retention must be positive", nil)
	}
	if c.Index.Canary.Enabled {
		if len(c.Index.Canary.Queries) == 0 {
			return kberrors.ConfigError("canary validation enabled but no canary queries configured", nil)
		}
		if c.Index.Canary.MinOverlap < 0 || c.Index.Canary.MinOverlap > 1 {
			return kberrors.ConfigError(
				fmt.Sprintf("canary min_overlap must be in [0, 1], got %.3f", c.Index.Canary.MinOverlap), nil)
		}
	}

	if err := c.Chunking.Validate(); err != nil {
		return kberrors.ConfigError("chunking configuration invalid", err)
	}

	return nil
}
