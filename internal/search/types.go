// Package search provides hybrid retrieval over the versioned store:
// synonym-expanded semantic search and CJK keyword search run in parallel,
// their scores merged by weight, and the merged set reordered by a
// cross-encoder reranker.
package search

import (
	"context"

	"github.com/angeless/travelcs/internal/chunk"
)

// Weights configures the relative importance of the semantic and keyword
// channels. They must sum to 1.
type Weights struct {
	// Semantic is the weight for vector similarity (default: 0.7).
	Semantic float64 `yaml:"semantic"`

	// Keyword is the weight for keyword match score (default: 0.3).
	Keyword float64 `yaml:"keyword"`
}

// DefaultWeights returns the default channel weights.
func DefaultWeights() Weights {
	return Weights{
		Semantic: 0.7,
		Keyword:  0.3,
	}
}

// RetrieverConfig configures the hybrid retriever.
type RetrieverConfig struct {
	// DefaultTopK is the number of results returned when the caller asks
	// for zero or fewer (default: 5).
	DefaultTopK int

	// SemanticK is how many candidates each semantic search variant
	// fetches (default: 20).
	SemanticK int

	// KeywordK is how many candidates the keyword channel fetches
	// (default: 20).
	KeywordK int

	// Weights are the channel merge weights.
	Weights Weights

	// SimilarityFloor drops chunks whose semantic score is below it and
	// whose keyword score is zero (default: 0.75).
	SimilarityFloor float64

	// RerankPoolSize caps how many merged candidates reach the reranker
	// (default: 10).
	RerankPoolSize int

	// MaxVariants caps how many query variants synonym expansion
	// produces, the original included (default: 4).
	MaxVariants int
}

// DefaultRetrieverConfig returns the default retriever configuration.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		DefaultTopK:     5,
		SemanticK:       20,
		KeywordK:        20,
		Weights:         DefaultWeights(),
		SimilarityFloor: 0.75,
		RerankPoolSize:  10,
		MaxVariants:     4,
	}
}

// ScoredChunk is a retrieval result with its per-channel scores.
type ScoredChunk struct {
	// Chunk is the retrieved chunk.
	Chunk chunk.Chunk

	// Score is the weighted combined score, or the reranker score once
	// reranking has run.
	Score float64

	// SemanticScore is the best vector similarity across query variants
	// (0 when the chunk only matched keywords).
	SemanticScore float64

	// KeywordScore is the normalized keyword match score (0 when the
	// chunk only matched semantically).
	KeywordScore float64

	// CombinedScore is the pre-rerank weighted score, kept for tie
	// breaking after reranking.
	CombinedScore float64

	// MatchedTerms are the keyword query terms that matched.
	MatchedTerms []string

	// InBothChannels reports whether both channels found the chunk.
	InBothChannels bool
}

// RerankResult is one scored (query, document) pair from a reranker.
type RerankResult struct {
	// Index is the position of the document in the input slice.
	Index int

	// Score is the relevance score, higher is better.
	Score float64
}

// Reranker scores (query, document) pairs with a cross-encoder. Each pair
// is scored independently of the others.
type Reranker interface {
	// Rerank scores documents against the query. The result order is
	// unspecified; callers sort by score.
	Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error)

	// Available reports whether the reranker can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}
