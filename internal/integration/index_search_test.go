package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angeless/travelcs/internal/chunk"
	"github.com/angeless/travelcs/internal/embed"
	"github.com/angeless/travelcs/internal/index"
	"github.com/angeless/travelcs/internal/search"
	"github.com/angeless/travelcs/internal/source"
	"github.com/angeless/travelcs/internal/store"
)

// These tests exercise the full flow from source files through indexing
// to hybrid search, to verify the components work together.

const productsYAML = `- id: P001
  name: 巴厘岛7日尊享游
  price: 8999
  duration: 7
  destination: [巴厘岛]
  highlights: [私人泳池别墅, 乌布梯田徒步]
  cancellation: 出发前7天以上取消全额退款
- id: P002
  name: 日本东京5日深度游
  price: 6599
  duration: 5
  destination: [东京]
`

const faqsYAML = `- id: F002
  question: 退改政策是怎样的？
  answer: 出发前7天以上取消全额退款，7天内收取20%手续费。
  category: 退改
`

const policyMD = `# 退改政策

第一条 出发前7日以上取消订单的，全额退款。

第二条 出发前3日至7日取消的，收取团费20%作为手续费。
`

// pipeline bundles everything a test needs to index and search.
type pipeline struct {
	docsDir   string
	embedder  embed.Embedder
	store     *store.VersionedStore
	manifest  *store.Manifest
	indexer   *index.Indexer
	loader    *source.DirLoader
	retriever *search.Retriever
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	docsDir := filepath.Join(t.TempDir(), "documents")
	require.NoError(t, os.MkdirAll(docsDir, 0o755))
	writeDoc(t, docsDir, "products.yaml", productsYAML)
	writeDoc(t, docsDir, "faqs.yaml", faqsYAML)
	writeDoc(t, docsDir, "refund-policy.md", policyMD)

	embedder := embed.NewStaticEmbedder()

	vectors, err := store.NewHNSWStore(store.VectorStoreConfig{Dimensions: embedder.Dimensions()})
	require.NoError(t, err)
	keywords, err := store.NewBleveKeywordIndex("")
	require.NoError(t, err)
	vs := store.NewVersionedStore(vectors, keywords)
	t.Cleanup(func() { _ = vs.Close() })

	manifest, err := store.NewManifest("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = manifest.Close() })

	chunker, err := chunk.New(chunk.DefaultConfig(), chunk.HeuristicCounter{})
	require.NoError(t, err)

	indexer, err := index.NewIndexer(vs, manifest, chunker, embedder, index.IndexerConfig{
		BatchSize: 16,
	})
	require.NoError(t, err)

	loader, err := source.NewDirLoader(docsDir)
	require.NoError(t, err)

	retriever, err := search.NewRetriever(vs, embedder, nil, search.RetrieverConfig{
		SimilarityFloor: 0.01,
	})
	require.NoError(t, err)

	return &pipeline{
		docsDir:   docsDir,
		embedder:  embedder,
		store:     vs,
		manifest:  manifest,
		indexer:   indexer,
		loader:    loader,
		retriever: retriever,
	}
}

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func (p *pipeline) reindex(t *testing.T) *index.Result {
	t.Helper()
	ctx := context.Background()
	docs, err := p.loader.Load(ctx)
	require.NoError(t, err)
	result, err := p.indexer.Reindex(ctx, docs)
	require.NoError(t, err)
	return result
}

func topDocumentIDs(results []*search.ScoredChunk) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Chunk.DocumentID)
	}
	return ids
}

// rankOf returns the position of the first chunk from the given document,
// or -1 when the document is absent from the results.
func rankOf(ids []string, documentID string) int {
	for i, id := range ids {
		if id == documentID {
			return i
		}
	}
	return -1
}

func TestIndexAndSearchFindsResults(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	p := newPipeline(t)
	ctx := context.Background()

	result := p.reindex(t)
	assert.Equal(t, 4, result.Added)
	assert.False(t, result.NoChanges)

	// A price question about one destination must rank that product above
	// the refund FAQ and the policy document, not merely surface it.
	results, err := p.retriever.Retrieve(ctx, "巴厘岛价格", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	ids := topDocumentIDs(results)
	assert.Equal(t, "P001", ids[0], "price query should rank the matching product first, got %v", ids)
	for _, other := range []string{"F002", "refund-policy"} {
		if r := rankOf(ids, other); r >= 0 {
			assert.Less(t, rankOf(ids, "P001"), r,
				"price query should rank the product above %s, got %v", other, ids)
		}
	}

	// The refund question surfaces both the FAQ and the policy. Their order
	// relative to P001 is not pinned down because P001's cancellation terms
	// also mention refunds, but both must outrank the unrelated Tokyo tour.
	results, err = p.retriever.Retrieve(ctx, "退款", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	ids = topDocumentIDs(results)
	faqRank := rankOf(ids, "F002")
	policyRank := rankOf(ids, "refund-policy")
	require.GreaterOrEqual(t, faqRank, 0, "refund query should surface the FAQ, got %v", ids)
	require.GreaterOrEqual(t, policyRank, 0, "refund query should surface the policy, got %v", ids)
	if r := rankOf(ids, "P002"); r >= 0 {
		assert.Less(t, faqRank, r, "refund query should rank the FAQ above the Tokyo tour, got %v", ids)
		assert.Less(t, policyRank, r, "refund query should rank the policy above the Tokyo tour, got %v", ids)
	}
}

func TestIncrementalReindexOnlyTouchesChangedDocs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	p := newPipeline(t)
	ctx := context.Background()

	p.reindex(t)
	firstSnapshot, err := p.manifest.Snapshot(ctx)
	require.NoError(t, err)

	// Touch one product, leave the rest alone.
	writeDoc(t, p.docsDir, "products.yaml", `- id: P001
  name: 巴厘岛7日尊享游（特价）
  price: 7999
  duration: 7
  destination: [巴厘岛]
- id: P002
  name: 日本东京5日深度游
  price: 6599
  duration: 5
  destination: [东京]
`)

	result := p.reindex(t)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 1, result.Modified)
	assert.Equal(t, 0, result.Deleted)

	secondSnapshot, err := p.manifest.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, firstSnapshot["P001"].SourceHash, secondSnapshot["P001"].SourceHash)
	assert.Equal(t, firstSnapshot["P002"].SourceHash, secondSnapshot["P002"].SourceHash)

	results, err := p.retriever.Retrieve(ctx, "特价", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, topDocumentIDs(results), "P001")
}

func TestDeletedDocumentDisappearsFromSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	p := newPipeline(t)
	ctx := context.Background()

	p.reindex(t)

	require.NoError(t, os.Remove(filepath.Join(p.docsDir, "faqs.yaml")))
	result := p.reindex(t)
	assert.Equal(t, 1, result.Deleted)

	results, err := p.retriever.Retrieve(ctx, "退改政策", 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "F002", r.Chunk.DocumentID)
	}

	// The old chunks survive as tombstones until swept.
	assert.Greater(t, p.store.TombstoneCount(), 0)
}

func TestIndexStatePersistsAcrossReload(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	p := newPipeline(t)
	ctx := context.Background()

	p.reindex(t)
	stateDir := t.TempDir()
	require.NoError(t, p.store.Save(stateDir))

	vectors, err := store.NewHNSWStore(store.VectorStoreConfig{Dimensions: p.embedder.Dimensions()})
	require.NoError(t, err)
	keywords, err := store.NewBleveKeywordIndex("")
	require.NoError(t, err)
	reloaded := store.NewVersionedStore(vectors, keywords)
	t.Cleanup(func() { _ = reloaded.Close() })
	require.NoError(t, reloaded.Load(stateDir))

	active, ok := reloaded.Active()
	require.True(t, ok)
	originalActive, _ := p.store.Active()
	assert.Equal(t, originalActive.ID, active.ID)
	assert.Equal(t, p.store.LiveCount(), reloaded.LiveCount())

	// Vector search works against the reloaded graph.
	vec, err := p.embedder.Embed(ctx, "巴厘岛")
	require.NoError(t, err)
	hits, err := reloaded.SearchVector(ctx, vec, 3)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}
