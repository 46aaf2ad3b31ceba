package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/angeless/travelcs/internal/chunk"
	"github.com/angeless/travelcs/internal/embed"
	kberrors "github.com/angeless/travelcs/internal/errors"
	"github.com/angeless/travelcs/internal/index"
	"github.com/angeless/travelcs/internal/search"
	"github.com/angeless/travelcs/internal/store"
)

const (
	keywordIndexName = "keyword.bleve"
	manifestName     = "manifest.db"
	storeStateName   = "versions.gob"
)

// components bundles the wired knowledge base for one command invocation.
type components struct {
	Embedder embed.Embedder
	Store    *store.VersionedStore
	Manifest *store.Manifest
}

// Close releases all held resources.
func (c *components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Manifest != nil {
		_ = c.Manifest.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// openComponents wires the embedder, stores, and manifest. With create
// set it builds the data directory from scratch; otherwise it requires
// an existing index on disk.
func openComponents(ctx context.Context, create bool) (*components, error) {
	dir := dataDir()

	statePath := filepath.Join(dir, storeStateName)
	_, stateErr := os.Stat(statePath)
	haveState := stateErr == nil
	if !create && !haveState {
		return nil, kberrors.New(kberrors.CodeConfigNotFound,
			fmt.Sprintf("no index found in %s. Run 'travelcs index' first", dir), nil)
	}
	if create {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, kberrors.ConfigError("create data directory", err)
		}
	}

	embedder, err := buildEmbedder(ctx)
	if err != nil {
		return nil, err
	}

	vectors, err := store.NewHNSWStore(store.VectorStoreConfig{
		Dimensions: embedder.Dimensions(),
	})
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}
	keywords, err := store.NewBleveKeywordIndex(filepath.Join(dir, keywordIndexName))
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}
	vs := store.NewVersionedStore(vectors, keywords)

	if haveState {
		if err := vs.Load(dir); err != nil {
			_ = vs.Close()
			_ = embedder.Close()
			return nil, kberrors.New(kberrors.CodeStoreCorrupt, "load index state", err)
		}
	}

	manifest, err := store.NewManifest(filepath.Join(dir, manifestName))
	if err != nil {
		_ = vs.Close()
		_ = embedder.Close()
		return nil, err
	}

	c := &components{Embedder: embedder, Store: vs, Manifest: manifest}
	if err := checkIndexCompat(ctx, c); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// buildEmbedder creates the configured embedding backend.
func buildEmbedder(ctx context.Context) (embed.Embedder, error) {
	return embed.NewEmbedder(ctx, embed.FactoryConfig{
		Provider:      embed.ParseProvider(cfg.Embedding.Provider),
		Model:         cfg.Embedding.Model,
		Dimensions:    cfg.Embedding.Dimensions,
		OllamaHost:    cfg.Embedding.OllamaHost,
		OllamaTimeout: cfg.Embedding.Timeout,
		CacheSize:     cfg.Embedding.CacheSize,
	})
}

// checkIndexCompat rejects an embedder whose dimension does not match
// the index on disk.
func checkIndexCompat(ctx context.Context, c *components) error {
	stored, err := c.Manifest.GetState(ctx, store.StateKeyIndexDimension)
	if err != nil || stored == "" {
		return nil
	}
	storedDims, err := strconv.Atoi(stored)
	if err != nil {
		return nil
	}
	if storedDims != c.Embedder.Dimensions() {
		return kberrors.ConfigError(fmt.Sprintf(
			"index was built with %d-dimensional embeddings but provider %q produces %d; rebuild from scratch or restore the original provider",
			storedDims, cfg.Embedding.Provider, c.Embedder.Dimensions()), nil)
	}
	return nil
}

// buildChunker creates the document chunker. OpenAI deployments count
// tokens with the real BPE encoding; everything else uses the fast
// CJK-aware heuristic.
func buildChunker() (*chunk.Chunker, error) {
	var counter chunk.TokenCounter = chunk.HeuristicCounter{}
	if embed.ParseProvider(cfg.Embedding.Provider) == embed.ProviderOpenAI {
		if tc, err := chunk.NewTiktokenCounter("cl100k_base"); err == nil {
			counter = tc
		}
	}
	return chunk.New(cfg.Chunking, counter)
}

// buildIndexer wires the incremental indexer from config.
func buildIndexer(c *components) (*index.Indexer, error) {
	chunker, err := buildChunker()
	if err != nil {
		return nil, err
	}

	canary := index.CanaryConfig{}
	if cfg.Index.Canary.Enabled {
		canary = index.CanaryConfig{
			Queries:    cfg.Index.Canary.Queries,
			TopK:       cfg.Index.Canary.TopK,
			MinOverlap: cfg.Index.Canary.MinOverlap,
		}
	}

	return index.NewIndexer(c.Store, c.Manifest, chunker, c.Embedder, index.IndexerConfig{
		BatchSize: cfg.Index.BatchSize,
		DataDir:   dataDir(),
		Canary:    canary,
	})
}

// buildRetriever wires the hybrid retriever, including the optional
// cross-encoder reranker.
func buildRetriever(ctx context.Context, c *components, withRerank bool) (*search.Retriever, error) {
	var reranker search.Reranker
	if withRerank && cfg.Search.Rerank.Enabled {
		r, err := search.NewHTTPReranker(ctx, search.HTTPRerankerConfig{
			Endpoint:        cfg.Search.Rerank.Endpoint,
			Model:           cfg.Search.Rerank.Model,
			Timeout:         cfg.Search.Rerank.Timeout,
			SkipHealthCheck: true, // Available() probes per query
		})
		if err != nil {
			return nil, err
		}
		reranker = r
	}

	return search.NewRetriever(c.Store, c.Embedder, reranker, search.RetrieverConfig{
		DefaultTopK: cfg.Search.TopK,
		Weights: search.Weights{
			Semantic: cfg.Search.SemanticWeight,
			Keyword:  cfg.Search.KeywordWeight,
		},
		SimilarityFloor: cfg.Search.SimilarityFloor,
		RerankPoolSize:  cfg.Search.RerankPoolSize,
		MaxVariants:     cfg.Search.MaxVariants,
	})
}
