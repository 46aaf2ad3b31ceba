package chunk

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/angeless/travelcs/internal/errors"
)

func testDoc(id string, dt DocType, content string) *Document {
	return &Document{
		ID:         id,
		Type:       dt,
		RawContent: content,
		Metadata:   map[string]string{},
		SourceHash: HashContent(content),
		UpdatedAt:  time.Now(),
	}
}

func newTestChunker(t *testing.T, cfg Config) *Chunker {
	t.Helper()
	c, err := New(cfg, HeuristicCounter{})
	require.NoError(t, err)
	return c
}

func TestHeuristicCounter_CJKAndLatin(t *testing.T) {
	counter := HeuristicCounter{}
	assert.Equal(t, 0, counter.Count(""))
	assert.Equal(t, 5, counter.Count("巴厘岛七日"))
	// 8 latin chars ≈ 2 tokens
	assert.Equal(t, 2, counter.Count("balidao1"))
	// whitespace-only still counts as one token
	assert.Equal(t, 1, counter.Count("   "))
}

func TestChunk_EmptyDocumentYieldsEmptySequence(t *testing.T) {
	c := newTestChunker(t, nil)

	for _, dt := range []DocType{DocTypeProduct, DocTypePolicy, DocTypeFAQ} {
		chunks, err := c.Chunk(testDoc("D1", dt, "   \n\t  "))
		require.NoError(t, err, "type %s", dt)
		assert.Empty(t, chunks, "type %s", dt)
	}
}

func TestChunk_Idempotent(t *testing.T) {
	c := newTestChunker(t, nil)
	content := strings.Repeat("巴厘岛7日尊享游，五星酒店私人海滩。\n\n", 120)
	doc := testDoc("P001", DocTypeProduct, content)

	first, err := c.Chunk(doc)
	require.NoError(t, err)
	second, err := c.Chunk(doc)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestChunk_ContentVersionChangesIDs(t *testing.T) {
	c := newTestChunker(t, nil)
	doc1 := testDoc("P001", DocTypeProduct, "巴厘岛7日游 8999元")
	doc2 := testDoc("P001", DocTypeProduct, "巴厘岛7日游 9999元")

	chunks1, err := c.Chunk(doc1)
	require.NoError(t, err)
	chunks2, err := c.Chunk(doc2)
	require.NoError(t, err)

	require.Len(t, chunks1, 1)
	require.Len(t, chunks2, 1)
	assert.NotEqual(t, chunks1[0].ID, chunks2[0].ID)
}

func TestChunk_CoversAllContentAndRespectsBudget(t *testing.T) {
	cfg := DefaultConfig()
	pc := cfg[DocTypeProduct]
	pc.TargetTokens = 60
	pc.OverlapTokens = 10
	pc.MinTokens = 8
	cfg[DocTypeProduct] = pc

	c := newTestChunker(t, cfg)
	counter := HeuristicCounter{}

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("行程第")
		sb.WriteString(strings.Repeat("天", i%7+1))
		sb.WriteString("：酒店早餐后出发，包含景点门票与导游服务。\n")
	}
	doc := testDoc("P002", DocTypeProduct, sb.String())

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	total := 0
	for i, ch := range chunks {
		total += len(ch.Text)
		// Budget plus overlap bounds every chunk; separators exist throughout
		// this document so hard truncation never applies.
		assert.LessOrEqual(t, counter.Count(ch.Text), pc.TargetTokens+pc.OverlapTokens,
			"chunk %d exceeds budget", i)
		if i > 0 {
			assert.True(t, ch.OverlapWithPrev, "chunk %d should carry overlap", i)
		}
		assert.Equal(t, i, ch.Index)
	}
	// Overlap only adds, never loses content.
	assert.GreaterOrEqual(t, total, len(doc.RawContent))
}

func TestChunk_HardSplitWithoutSeparators(t *testing.T) {
	cfg := DefaultConfig()
	cfg[DocTypeProduct] = TypeConfig{TargetTokens: 20, OverlapTokens: 0, MinTokens: 0, Separators: nil}
	c := newTestChunker(t, cfg)

	doc := testDoc("P003", DocTypeProduct, strings.Repeat("游", 95))
	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 5)

	var rebuilt strings.Builder
	for _, ch := range chunks {
		rebuilt.WriteString(ch.Text)
	}
	assert.Equal(t, doc.RawContent, rebuilt.String())
}

func TestChunk_TrailingFragmentMerged(t *testing.T) {
	cfg := DefaultConfig()
	cfg[DocTypeProduct] = TypeConfig{TargetTokens: 50, OverlapTokens: 0, MinTokens: 20, Separators: []string{"\n"}}
	c := newTestChunker(t, cfg)

	content := strings.Repeat("沙巴五日游含潜水与海岛烧烤晚餐活动安排说明", 2) + "\n" +
		strings.Repeat("第二段介绍酒店与接送服务等详细内容说明文字", 2) + "\n" +
		"尾款说明"
	doc := testDoc("P004", DocTypeProduct, content)

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	// The short trailing fragment folds into the previous chunk.
	assert.Contains(t, chunks[len(chunks)-1].Text, "尾款说明")
	for _, ch := range chunks[:len(chunks)-1] {
		assert.NotContains(t, ch.Text, "尾款说明")
	}
}

func TestChunkFAQ_AtomicWithWeightedEmbeddingText(t *testing.T) {
	c := newTestChunker(t, nil)
	doc := testDoc("F001", DocTypeFAQ, "")
	doc.Metadata["question"] = "退款政策?"
	doc.Metadata["answer"] = "7天前全额退"
	doc.SourceHash = HashContent("退款政策?7天前全额退")

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	ch := chunks[0]
	assert.False(t, ch.OverlapWithPrev)
	assert.Equal(t, "Q: 退款政策?\nA: 7天前全额退", ch.Text)
	// Question appears twice in the embedding input, answer once.
	assert.Equal(t, 2, strings.Count(ch.EmbeddingText(), "退款政策?"))
	assert.Equal(t, 1, strings.Count(ch.EmbeddingText(), "7天前全额退"))
}

func TestChunkFAQ_ParsesRawQAMarkers(t *testing.T) {
	c := newTestChunker(t, nil)
	doc := testDoc("F002", DocTypeFAQ, "问：可以退改吗？\n答：出发前7天可全额退款。\n3-7天扣30%。")

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "可以退改吗？", chunks[0].Metadata["question"])
	assert.Contains(t, chunks[0].Metadata["answer"], "全额退款")
	assert.Contains(t, chunks[0].Metadata["answer"], "扣30%")
}

func TestChunkFAQ_MalformedFailsThatDocumentOnly(t *testing.T) {
	c := newTestChunker(t, nil)
	doc := testDoc("F003", DocTypeFAQ, "这段文字没有任何问答结构标记")

	_, err := c.Chunk(doc)
	require.Error(t, err)
	assert.True(t, kberrors.HasCode(err, kberrors.CodeDocumentFormat))

	// An unrelated document still chunks fine afterwards.
	ok, err := c.Chunk(testDoc("P010", DocTypeProduct, "普吉岛6日自由行 4999元"))
	require.NoError(t, err)
	assert.Len(t, ok, 1)
}

func TestChunkPolicy_AlignsToClauseMarkersWithSectionTitles(t *testing.T) {
	c := newTestChunker(t, nil)
	content := "取消政策\n\n" +
		"第一条 出发前30天可全额退款。\n" +
		"第二条 出发前7-29天扣除定金。\n" +
		"第三条 出发前7天内不予退款，特殊情况另行协商处理。\n"
	doc := testDoc("POL1", DocTypePolicy, content)

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 4) // preamble + three clauses

	// Clause chunks carry their section title.
	var sections []string
	for _, ch := range chunks {
		sections = append(sections, ch.SectionTitle)
	}
	joined := strings.Join(sections, "|")
	assert.Contains(t, joined, "第一条")
	assert.Contains(t, joined, "第三条")
	// The document title prefixes every clause section.
	for _, ch := range chunks[1:] {
		assert.True(t, strings.HasPrefix(ch.SectionTitle, "取消政策"), "section %q", ch.SectionTitle)
	}
}

func TestChunkPolicy_NoClauseMarkersFallsBack(t *testing.T) {
	c := newTestChunker(t, nil)
	doc := testDoc("POL2", DocTypePolicy, "本政策适用于所有线路。具体解释权归本公司所有。")
	doc.Metadata["title"] = "通用条款"

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "通用条款", chunks[0].SectionTitle)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := DefaultConfig()
	tc := bad[DocTypeProduct]
	tc.OverlapTokens = tc.TargetTokens
	bad[DocTypeProduct] = tc
	assert.Error(t, bad.Validate())

	delete(bad, DocTypePolicy)
	assert.Error(t, bad.Validate())
}

func TestChunkID_Deterministic(t *testing.T) {
	a := ChunkID("P001", 0, "hash1")
	b := ChunkID("P001", 0, "hash1")
	c := ChunkID("P001", 1, "hash1")
	d := ChunkID("P001", 0, "hash2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}
