package index

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angeless/travelcs/internal/chunk"
	"github.com/angeless/travelcs/internal/embed"
	kberrors "github.com/angeless/travelcs/internal/errors"
	"github.com/angeless/travelcs/internal/store"
)

// CanaryConfig configures staged-version validation before promotion.
type CanaryConfig struct {
	// Queries are probe queries run against both the staged and the active
	// version. Empty disables validation.
	Queries []string `yaml:"queries"`

	// TopK is how many results each probe compares.
	TopK int `yaml:"top_k"`

	// MinOverlap is the minimum mean result overlap ratio between staged
	// and active versions across all probes.
	MinOverlap float64 `yaml:"min_overlap"`
}

// DefaultCanaryConfig returns probes covering the main query intents.
func DefaultCanaryConfig() CanaryConfig {
	return CanaryConfig{
		Queries: []string{
			"巴厘岛价格",
			"退款政策",
			"改期手续费",
			"签证材料",
		},
		TopK:       5,
		MinOverlap: 0.4,
	}
}

// IndexerConfig configures a reindex run.
type IndexerConfig struct {
	// BatchSize is the embedding batch size.
	BatchSize int

	// DataDir is where index state is persisted after promotion.
	// Empty disables persistence (testing).
	DataDir string

	// Canary configures pre-promotion validation.
	Canary CanaryConfig

	// Retry configures embedding retry behavior.
	Retry embed.RetryConfig
}

// DefaultIndexerConfig returns the default indexer configuration.
func DefaultIndexerConfig() IndexerConfig {
	return IndexerConfig{
		BatchSize: embed.DefaultBatchSize,
		Canary:    DefaultCanaryConfig(),
		Retry:     embed.DefaultRetryConfig(),
	}
}

// Result summarizes a reindex run.
type Result struct {
	VersionID    string
	Added        int
	Modified     int
	Deleted      int
	ChunksStaged int
	FailedDocs   []string
	NoChanges    bool
	Duration     time.Duration

	stagedDocs []stagedDoc
}

// Indexer drives the incremental pipeline: detect changes, chunk, embed,
// stage into a new version, validate with canary probes, then promote.
// A failed run rolls the staged version back and leaves the active version
// serving untouched.
type Indexer struct {
	store    *store.VersionedStore
	manifest *store.Manifest
	chunker  *chunk.Chunker
	embedder embed.Embedder
	config   IndexerConfig
}

// NewIndexer creates an indexer.
func NewIndexer(vs *store.VersionedStore, manifest *store.Manifest, chunker *chunk.Chunker, embedder embed.Embedder, cfg IndexerConfig) (*Indexer, error) {
	if vs == nil || manifest == nil || chunker == nil || embedder == nil {
		return nil, fmt.Errorf("all indexer dependencies are required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = embed.DefaultBatchSize
	}
	if cfg.BatchSize > embed.MaxBatchSize {
		cfg.BatchSize = embed.MaxBatchSize
	}
	if cfg.Retry == (embed.RetryConfig{}) {
		cfg.Retry = embed.DefaultRetryConfig()
	}
	return &Indexer{
		store:    vs,
		manifest: manifest,
		chunker:  chunker,
		embedder: embedder,
		config:   cfg,
	}, nil
}

// stagedDoc is one document's chunking output waiting to be embedded.
type stagedDoc struct {
	doc    *chunk.Document
	chunks []*chunk.Chunk
}

// Reindex runs one incremental pass over the given source documents.
// Unchanged documents are untouched; a document that fails to chunk is
// skipped (its previous chunks stay live) while the rest proceed.
func (ix *Indexer) Reindex(ctx context.Context, docs []*chunk.Document) (*Result, error) {
	start := time.Now()

	if err := ix.checkDimensions(ctx); err != nil {
		return nil, err
	}

	snapshot, err := ix.manifest.Snapshot(ctx)
	if err != nil {
		return nil, kberrors.IndexBuildError("read manifest snapshot", err)
	}

	changes := Detect(docs, snapshot)
	if changes.Empty() {
		slog.Info("reindex_no_changes", slog.Int("documents", len(docs)))
		return &Result{NoChanges: true, Duration: time.Since(start)}, nil
	}

	slog.Info("reindex_started",
		slog.Int("added", len(changes.Added)),
		slog.Int("modified", len(changes.Modified)),
		slog.Int("deleted", len(changes.Deleted)))

	version, err := ix.store.Begin(ctx)
	if err != nil {
		return nil, kberrors.IndexBuildError("open staging version", err)
	}

	result, err := ix.stageChanges(ctx, version.ID, changes)
	if err != nil {
		if rbErr := ix.store.Rollback(ctx, version.ID); rbErr != nil {
			slog.Error("rollback_failed",
				slog.String("version", version.ID),
				slog.String("error", rbErr.Error()))
		}
		ix.recordVersion(ctx, version.ID)
		return nil, err
	}

	if err := ix.validateCanary(ctx, version.ID); err != nil {
		if rbErr := ix.store.Rollback(ctx, version.ID); rbErr != nil {
			slog.Error("rollback_failed",
				slog.String("version", version.ID),
				slog.String("error", rbErr.Error()))
		}
		ix.recordVersion(ctx, version.ID)
		return nil, err
	}

	if err := ix.store.Promote(ctx, version.ID); err != nil {
		return nil, kberrors.IndexBuildError("promote version", err)
	}

	ix.updateManifest(ctx, version.ID, changes, result)
	ix.persist()

	result.VersionID = version.ID
	result.Duration = time.Since(start)

	slog.Info("reindex_complete",
		slog.String("version", version.ID),
		slog.Int("chunks_staged", result.ChunksStaged),
		slog.Int("failed_docs", len(result.FailedDocs)),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// checkDimensions refuses to mix embedding models of different dimensions
// in one index.
func (ix *Indexer) checkDimensions(ctx context.Context) error {
	stored, err := ix.manifest.GetState(ctx, store.StateKeyIndexDimension)
	if err != nil {
		return err
	}
	if stored == "" {
		return nil
	}
	dims, err := strconv.Atoi(stored)
	if err != nil {
		return nil
	}
	if dims != ix.embedder.Dimensions() {
		return kberrors.ConfigError(
			fmt.Sprintf("index was built with %d-dimensional embeddings, current embedder produces %d; rebuild from scratch", dims, ix.embedder.Dimensions()), nil)
	}
	return nil
}

// stageChanges chunks, embeds, and stages everything the change set names.
func (ix *Indexer) stageChanges(ctx context.Context, versionID string, changes *ChangeSet) (*Result, error) {
	result := &Result{
		Added:    len(changes.Added),
		Modified: len(changes.Modified),
		Deleted:  len(changes.Deleted),
	}

	// Deleted documents: drop their chunks from the staged set.
	for _, docID := range changes.Deleted {
		if err := ix.unstageDocument(ctx, versionID, docID); err != nil {
			return nil, err
		}
	}

	// Chunk added and modified documents. A malformed document is logged
	// and skipped; for a modified one that means its previous chunks stay.
	var staged []stagedDoc
	for _, doc := range append(append([]*chunk.Document{}, changes.Added...), changes.Modified...) {
		chunks, err := ix.chunker.Chunk(doc)
		if err != nil {
			slog.Warn("document_chunking_failed",
				slog.String("document", doc.ID),
				slog.String("error", err.Error()))
			result.FailedDocs = append(result.FailedDocs, doc.ID)
			continue
		}
		staged = append(staged, stagedDoc{doc: doc, chunks: chunks})
	}

	// Modified documents replace their chunk set; unstage the old one
	// only once the new chunks exist. A modified document that failed to
	// chunk is absent from staged, so its old chunks stay live.
	modified := make(map[string]struct{}, len(changes.Modified))
	for _, doc := range changes.Modified {
		modified[doc.ID] = struct{}{}
	}
	for _, sd := range staged {
		if _, ok := modified[sd.doc.ID]; ok {
			if err := ix.unstageDocument(ctx, versionID, sd.doc.ID); err != nil {
				return nil, err
			}
		}
	}

	// Embed all new chunks in batches. Embedding trouble is infrastructure
	// trouble, so unlike chunking it fails the whole run.
	var allChunks []chunk.Chunk
	var texts []string
	for _, sd := range staged {
		for _, c := range sd.chunks {
			allChunks = append(allChunks, *c)
			texts = append(texts, c.EmbeddingText())
		}
	}

	vectors, err := ix.embedBatches(ctx, texts)
	if err != nil {
		return nil, err
	}

	if err := ix.store.Stage(ctx, versionID, allChunks, vectors); err != nil {
		return nil, err
	}
	result.ChunksStaged = len(allChunks)
	result.stagedDocs = staged
	return result, nil
}

// unstageDocument removes a document's manifest-known chunks from the
// staged version.
func (ix *Indexer) unstageDocument(ctx context.Context, versionID, docID string) error {
	records, err := ix.manifest.ChunksByDocument(ctx, docID)
	if err != nil {
		return kberrors.IndexBuildError("read document chunks", err)
	}
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ChunkID
	}
	return ix.store.Unstage(ctx, versionID, ids)
}

// embedWorkers bounds how many embedding batches run at once.
const embedWorkers = 4

// embedBatches embeds texts in BatchSize batches with per-batch retry,
// at most embedWorkers batches in flight. Results land at their original
// offsets so chunk order is preserved. Cancellation surfaces as an index
// build error so the caller rolls back the staged version.
func (ix *Indexer) embedBatches(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, kberrors.IndexBuildError("reindex canceled", err)
	}

	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkers)

	for offset := 0; offset < len(texts); offset += ix.config.BatchSize {
		start := offset
		end := start + ix.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		g.Go(func() error {
			var batchVectors [][]float32
			err := embed.WithRetry(gctx, ix.config.Retry, func() error {
				var embedErr error
				batchVectors, embedErr = ix.embedder.EmbedBatch(gctx, batch)
				return embedErr
			})
			if err != nil {
				return err
			}
			copy(vectors[start:end], batchVectors)

			slog.Debug("embedding_batch_complete",
				slog.Int("offset", start),
				slog.Int("size", len(batch)),
				slog.Int("total", len(texts)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, kberrors.IndexBuildError("reindex canceled", ctx.Err())
		}
		return nil, err
	}
	return vectors, nil
}

// validateCanary compares staged and active versions on probe queries.
// On the first build there is no active version and validation passes as
// long as every probe returns something from the staged set when it should.
func (ix *Indexer) validateCanary(ctx context.Context, stagedID string) error {
	cfg := ix.config.Canary
	if len(cfg.Queries) == 0 || cfg.TopK <= 0 {
		return nil
	}

	active, hasActive := ix.store.Active()

	var totalOverlap float64
	for _, query := range cfg.Queries {
		vec, err := ix.embedder.Embed(ctx, query)
		if err != nil {
			return kberrors.ValidationError("embed canary query", err).WithDetail("query", query)
		}

		stagedResults, err := ix.store.SearchVectorIn(ctx, stagedID, vec, cfg.TopK)
		if err != nil {
			return kberrors.ValidationError("canary search on staged version", err)
		}

		if !hasActive {
			continue
		}

		activeResults, err := ix.store.SearchVectorIn(ctx, active.ID, vec, cfg.TopK)
		if err != nil {
			return kberrors.ValidationError("canary search on active version", err)
		}
		if len(activeResults) == 0 {
			// active has nothing for this probe, nothing to compare
			totalOverlap += 1.0
			continue
		}

		totalOverlap += overlapRatio(stagedResults, activeResults)
	}

	if !hasActive {
		return nil
	}

	mean := totalOverlap / float64(len(cfg.Queries))
	if mean < cfg.MinOverlap {
		return kberrors.ValidationError(
			fmt.Sprintf("canary overlap %.2f below threshold %.2f", mean, cfg.MinOverlap), nil).
			WithDetail("staged_version", stagedID)
	}

	slog.Debug("canary_validation_passed",
		slog.String("staged_version", stagedID),
		slog.Float64("mean_overlap", mean))
	return nil
}

// overlapRatio returns |staged ∩ active| / |active| by chunk ID.
func overlapRatio(staged, active []*store.VectorResult) float64 {
	stagedIDs := make(map[string]struct{}, len(staged))
	for _, r := range staged {
		stagedIDs[r.ID] = struct{}{}
	}
	matched := 0
	for _, r := range active {
		if _, ok := stagedIDs[r.ID]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(active))
}

// updateManifest records the promoted state. Manifest trouble after a
// successful promotion is logged, not fatal; the next run re-detects.
func (ix *Indexer) updateManifest(ctx context.Context, versionID string, changes *ChangeSet, result *Result) {
	now := time.Now().UTC()

	failed := make(map[string]struct{}, len(result.FailedDocs))
	for _, id := range result.FailedDocs {
		failed[id] = struct{}{}
	}

	for _, sd := range result.stagedDocs {
		records := make([]store.ChunkRecord, len(sd.chunks))
		for i, c := range sd.chunks {
			records[i] = store.ChunkRecord{
				ChunkID:      c.ID,
				DocID:        c.DocumentID,
				Index:        c.Index,
				TokenCount:   c.TokenCount,
				SectionTitle: c.SectionTitle,
			}
		}
		rec := store.DocumentRecord{
			DocID:      sd.doc.ID,
			DocType:    sd.doc.Type,
			SourceHash: sd.doc.SourceHash,
			IndexedAt:  now,
		}
		if err := ix.manifest.UpsertDocument(ctx, rec, records); err != nil {
			slog.Warn("manifest_upsert_failed",
				slog.String("document", sd.doc.ID),
				slog.String("error", err.Error()))
		}
	}

	for _, docID := range changes.Deleted {
		if err := ix.manifest.DeleteDocument(ctx, docID); err != nil {
			slog.Warn("manifest_delete_failed",
				slog.String("document", docID),
				slog.String("error", err.Error()))
		}
	}

	ix.recordVersion(ctx, versionID)

	if err := ix.manifest.SetState(ctx, store.StateKeyActiveVersion, versionID); err != nil {
		slog.Warn("manifest_state_failed", slog.String("error", err.Error()))
	}
	if err := ix.manifest.SetState(ctx, store.StateKeyIndexDimension, strconv.Itoa(ix.embedder.Dimensions())); err != nil {
		slog.Warn("manifest_state_failed", slog.String("error", err.Error()))
	}
	if err := ix.manifest.SetState(ctx, store.StateKeyIndexModel, ix.embedder.ModelName()); err != nil {
		slog.Warn("manifest_state_failed", slog.String("error", err.Error()))
	}
}

// recordVersion mirrors a version's current state into the manifest.
func (ix *Indexer) recordVersion(ctx context.Context, versionID string) {
	v, ok := ix.store.Version(versionID)
	if !ok {
		return
	}
	if err := ix.manifest.SaveVersion(ctx, v); err != nil {
		slog.Warn("manifest_version_failed",
			slog.String("version", versionID),
			slog.String("error", err.Error()))
	}
}

// persist saves index state to disk after a successful promotion.
func (ix *Indexer) persist() {
	if ix.config.DataDir == "" {
		return
	}
	if err := ix.store.Save(ix.config.DataDir); err != nil {
		slog.Warn("index_persist_failed",
			slog.String("dir", ix.config.DataDir),
			slog.String("error", err.Error()))
	}
}
