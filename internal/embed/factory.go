package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	kberrors "github.com/angeless/travelcs/internal/errors"
)

// ProviderType identifies an embedding backend.
type ProviderType string

const (
	// ProviderOllama uses a local Ollama server (default).
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses the OpenAI embeddings API.
	ProviderOpenAI ProviderType = "openai"

	// ProviderStatic uses deterministic hash-based embeddings. No external
	// service required; useful for tests and keyword-dominant setups.
	ProviderStatic ProviderType = "static"
)

// FactoryConfig selects and configures an embedding backend.
type FactoryConfig struct {
	Provider   ProviderType
	Model      string
	Dimensions int

	// Ollama settings.
	OllamaHost    string
	OllamaTimeout time.Duration

	// OpenAI settings.
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// CacheSize is the query embedding cache capacity. 0 uses the default,
	// negative disables caching.
	CacheSize int
}

// NewEmbedder creates an embedder for the configured provider.
//
// Environment variables override the config:
//   - TRAVELCS_EMBEDDER: provider override ("ollama", "openai", "static")
//   - TRAVELCS_OLLAMA_HOST: Ollama endpoint
//   - TRAVELCS_EMBED_MODEL: model name
//   - OPENAI_API_KEY: OpenAI credential (when unset in config)
//
// The result is wrapped with an LRU cache unless CacheSize is negative.
func NewEmbedder(ctx context.Context, cfg FactoryConfig) (Embedder, error) {
	provider := cfg.Provider
	if env := os.Getenv("TRAVELCS_EMBEDDER"); env != "" {
		provider = ParseProvider(env)
	}
	if env := os.Getenv("TRAVELCS_OLLAMA_HOST"); env != "" {
		cfg.OllamaHost = env
	}
	if env := os.Getenv("TRAVELCS_EMBED_MODEL"); env != "" {
		cfg.Model = env
	}
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	var (
		embedder Embedder
		err      error
	)
	switch provider {
	case ProviderOllama:
		embedder, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.OllamaTimeout,
		})
		if err != nil {
			err = kberrors.EmbeddingError(
				"ollama unavailable; start it with `ollama serve` or switch to provider \"static\"", err)
		}
	case ProviderOpenAI:
		embedder, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case ProviderStatic:
		embedder = NewStaticEmbedder()
	default:
		return nil, kberrors.ConfigError(fmt.Sprintf("unknown embedding provider %q", provider), nil)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize >= 0 {
		embedder = NewCachedEmbedder(embedder, cfg.CacheSize)
	}

	return embedder, nil
}

// ParseProvider converts a string to a ProviderType, defaulting to Ollama.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return ProviderOpenAI
	case "static", "hash":
		return ProviderStatic
	case "ollama":
		return ProviderOllama
	default:
		return ProviderOllama
	}
}

// ValidProviders returns all recognized provider names.
func ValidProviders() []string {
	return []string{string(ProviderOllama), string(ProviderOpenAI), string(ProviderStatic)}
}
