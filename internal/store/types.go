// Package store provides the persistence layer: HNSW vector search, a
// bleve keyword index with CJK-aware analysis, versioned chunk sets with
// soft-delete tombstones, and a SQLite manifest.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/angeless/travelcs/internal/chunk"
)

// State keys for the manifest state table.
const (
	// StateKeyIndexDimension stores the embedding dimension used for the index.
	StateKeyIndexDimension = "index_embedding_dimension"

	// StateKeyIndexModel stores the embedding model name used for the index.
	StateKeyIndexModel = "index_embedding_model"

	// StateKeyActiveVersion stores the currently active index version ID.
	StateKeyActiveVersion = "active_version"

	// StateKeyLastSweep stores the timestamp of the last tombstone sweep.
	StateKeyLastSweep = "last_sweep"
)

// DefaultRetention is how long soft-deleted entries stay recoverable
// before the sweeper removes them physically.
const DefaultRetention = 30 * 24 * time.Hour

// VersionStatus is the lifecycle state of an index version.
type VersionStatus string

const (
	// VersionBuilding marks a staging version not yet visible to queries.
	VersionBuilding VersionStatus = "building"

	// VersionActive marks the version queries are served from.
	VersionActive VersionStatus = "active"

	// VersionRetired marks a previously active version kept for rollback.
	VersionRetired VersionStatus = "retired"

	// VersionRolledBack marks a staging version that failed validation.
	VersionRolledBack VersionStatus = "rolled_back"
)

// IndexVersion identifies an immutable chunk set built by one reindex run.
type IndexVersion struct {
	ID         string
	ParentID   string // version this one was branched from, "" for the first
	Status     VersionStatus
	CreatedAt  time.Time
	PromotedAt time.Time
	ChunkCount int
}

// IndexEntry is a stored chunk with its vector and tombstone state.
type IndexEntry struct {
	Chunk     chunk.Chunk
	Vector    []float32
	DeletedAt time.Time // zero while live
}

// Deleted reports whether the entry carries a tombstone.
func (e *IndexEntry) Deleted() bool { return !e.DeletedAt.IsZero() }

// VectorResult is a single vector search result.
type VectorResult struct {
	ID       string  // chunk ID
	Distance float32 // lower is more similar (0-2 for cosine)
	Score    float32 // normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension (1024 for bge-large class models,
	// 256 for the static embedder).
	Dimensions int

	// Metric is the distance metric: "cos" (cosine) or "l2" (euclidean).
	Metric string

	// M is HNSW max connections per layer.
	M int

	// EfSearch is HNSW query-time search width.
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for the vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// VectorStore provides approximate nearest neighbor search.
type VectorStore interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// Contains checks if an ID exists.
	Contains(id string) bool

	// Count returns the number of vectors.
	Count() int

	// Persistence.
	Save(path string) error
	Load(path string) error
	Close() error
}

// KeywordDocument is a unit of text for keyword indexing.
type KeywordDocument struct {
	ID      string // chunk ID
	Content string
}

// KeywordResult is a single keyword search result.
type KeywordResult struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
}

// KeywordIndex provides full-text search over chunk text.
type KeywordIndex interface {
	// Index adds documents to the index, replacing existing IDs.
	Index(ctx context.Context, docs []*KeywordDocument) error

	// Search returns documents matching the query, highest score first.
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)

	// Delete removes documents by ID.
	Delete(ctx context.Context, ids []string) error

	// DocCount returns the number of indexed documents.
	DocCount() (uint64, error)

	Close() error
}

// ErrDimensionMismatch indicates a vector dimension mismatch, usually from
// switching embedding models without a full rebuild.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (rebuild the index after changing embedding models)", e.Expected, e.Got)
}
