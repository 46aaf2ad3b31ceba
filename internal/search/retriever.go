package search

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angeless/travelcs/internal/embed"
	kberrors "github.com/angeless/travelcs/internal/errors"
	"github.com/angeless/travelcs/internal/store"
)

// Retriever runs hybrid retrieval against the active index version.
//
// The semantic channel embeds every synonym-expanded query variant and
// pools the hits, keeping each chunk's best similarity. The keyword channel
// searches the original query through the CJK bigram index. Both channels
// run in parallel; a single failed channel degrades to the other, both
// failing is RetrievalUnavailable.
type Retriever struct {
	store    *store.VersionedStore
	embedder embed.Embedder
	expander *QueryExpander
	reranker Reranker
	config   RetrieverConfig
}

// NewRetriever creates a retriever. reranker may be nil, in which case
// results keep the combined-score ordering.
func NewRetriever(vs *store.VersionedStore, embedder embed.Embedder, reranker Reranker, cfg RetrieverConfig) (*Retriever, error) {
	if vs == nil {
		return nil, kberrors.ConfigError("retriever requires a store", nil)
	}
	if embedder == nil {
		return nil, kberrors.ConfigError("retriever requires an embedder", nil)
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.SemanticK <= 0 {
		cfg.SemanticK = 20
	}
	if cfg.KeywordK <= 0 {
		cfg.KeywordK = 20
	}
	if cfg.Weights.Semantic == 0 && cfg.Weights.Keyword == 0 {
		cfg.Weights = DefaultWeights()
	}
	if cfg.SimilarityFloor <= 0 {
		cfg.SimilarityFloor = 0.75
	}
	if cfg.RerankPoolSize <= 0 {
		cfg.RerankPoolSize = 10
	}
	expanderOpts := []QueryExpanderOption{}
	if cfg.MaxVariants > 0 {
		expanderOpts = append(expanderOpts, WithMaxVariants(cfg.MaxVariants))
	}
	return &Retriever{
		store:    vs,
		embedder: embedder,
		expander: NewQueryExpander(expanderOpts...),
		reranker: reranker,
		config:   cfg,
	}, nil
}

// Retrieve returns the topK most relevant chunks for the query, best first.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]*ScoredChunk, error) {
	start := time.Now()

	if topK <= 0 {
		topK = r.config.DefaultTopK
	}

	variants := r.expander.Expand(query)
	if len(variants) == 0 {
		return nil, nil
	}

	semantic, keyword, err := r.parallelSearch(ctx, query, variants)
	if err != nil {
		return nil, err
	}

	merged := r.merge(semantic, keyword)
	if len(merged) > r.config.RerankPoolSize {
		merged = merged[:r.config.RerankPoolSize]
	}

	results := r.rerank(ctx, query, merged)
	if len(results) > topK {
		results = results[:topK]
	}

	slog.Debug("retrieve_complete",
		slog.String("query", query),
		slog.Int("variants", len(variants)),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}

// semanticHit is a pooled semantic result: the best similarity a chunk
// reached across all query variants.
type semanticHit struct {
	id    string
	score float64
}

// parallelSearch runs both channels concurrently. The keyword channel uses
// the original query only; the bigram index already matches sub-phrases, so
// synonym variants would just add noise there.
func (r *Retriever) parallelSearch(ctx context.Context, query string, variants []string) (map[string]float64, []*store.KeywordResult, error) {
	g, gctx := errgroup.WithContext(ctx)

	var semErr, kwErr error
	semantic := make(map[string]float64)
	var keyword []*store.KeywordResult

	g.Go(func() error {
		for _, variant := range variants {
			vec, err := r.embedder.Embed(gctx, variant)
			if err != nil {
				semErr = err
				return nil
			}
			hits, err := r.store.SearchVector(gctx, vec, r.config.SemanticK)
			if err != nil {
				semErr = err
				return nil
			}
			for _, h := range hits {
				if float64(h.Score) > semantic[h.ID] {
					semantic[h.ID] = float64(h.Score)
				}
			}
		}
		return nil
	})

	g.Go(func() error {
		var err error
		keyword, err = r.store.SearchKeyword(gctx, query, r.config.KeywordK)
		if err != nil {
			kwErr = err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if semErr != nil && kwErr != nil {
		return nil, nil, kberrors.RetrievalUnavailable("both retrieval channels failed", semErr).
			WithDetail("keyword_error", kwErr.Error())
	}
	if semErr != nil {
		slog.Warn("semantic_channel_failed", slog.String("error", semErr.Error()))
		semantic = nil
	}
	if kwErr != nil {
		slog.Warn("keyword_channel_failed", slog.String("error", kwErr.Error()))
		keyword = nil
	}

	return semantic, keyword, nil
}

// merge combines both channels into weighted-scored candidates, applies the
// similarity floor, and sorts by combined score. A chunk found by only one
// channel is scored on that channel alone.
func (r *Retriever) merge(semantic map[string]float64, keyword []*store.KeywordResult) []*ScoredChunk {
	var maxKw float64
	for _, k := range keyword {
		if k.Score > maxKw {
			maxKw = k.Score
		}
	}

	candidates := make(map[string]*ScoredChunk)

	for id, score := range semantic {
		candidates[id] = &ScoredChunk{SemanticScore: score}
	}
	for _, k := range keyword {
		norm := 0.0
		if maxKw > 0 {
			norm = k.Score / maxKw
		}
		if c, ok := candidates[k.ChunkID]; ok {
			c.KeywordScore = norm
			c.MatchedTerms = k.MatchedTerms
			c.InBothChannels = true
		} else {
			candidates[k.ChunkID] = &ScoredChunk{
				KeywordScore: norm,
				MatchedTerms: k.MatchedTerms,
			}
		}
	}

	merged := make([]*ScoredChunk, 0, len(candidates))
	for id, c := range candidates {
		// Below the similarity floor with no keyword evidence is noise.
		if c.SemanticScore < r.config.SimilarityFloor && c.KeywordScore == 0 {
			continue
		}

		ch, ok := r.store.GetChunk(id)
		if !ok {
			continue
		}
		c.Chunk = ch
		c.CombinedScore = r.config.Weights.Semantic*c.SemanticScore + r.config.Weights.Keyword*c.KeywordScore
		c.Score = c.CombinedScore
		merged = append(merged, c)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].CombinedScore != merged[j].CombinedScore {
			return merged[i].CombinedScore > merged[j].CombinedScore
		}
		return merged[i].Chunk.ID < merged[j].Chunk.ID
	})
	return merged
}

// rerank reorders candidates with the cross-encoder. An unavailable or
// failing reranker keeps the combined-score ordering.
func (r *Retriever) rerank(ctx context.Context, query string, candidates []*ScoredChunk) []*ScoredChunk {
	if r.reranker == nil || len(candidates) == 0 || !r.reranker.Available(ctx) {
		return candidates
	}

	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Chunk.Text
	}

	scores, err := r.reranker.Rerank(ctx, query, documents)
	if err != nil {
		slog.Warn("rerank_failed", slog.String("error", err.Error()))
		return candidates
	}

	for _, s := range scores {
		if s.Index < 0 || s.Index >= len(candidates) {
			continue
		}
		candidates[s.Index].Score = s.Score
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].CombinedScore != candidates[j].CombinedScore {
			return candidates[i].CombinedScore > candidates[j].CombinedScore
		}
		return candidates[i].Chunk.ID < candidates[j].Chunk.ID
	})
	return candidates
}

// Close releases the reranker, if any. The store and embedder belong to
// the caller.
func (r *Retriever) Close() error {
	if r.reranker != nil {
		return r.reranker.Close()
	}
	return nil
}
