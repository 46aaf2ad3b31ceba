package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeywordIndex(t *testing.T) *BleveKeywordIndex {
	t.Helper()
	idx, err := NewBleveKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveKeywordIndex_ChineseBigramMatch(t *testing.T) {
	idx := newTestKeywordIndex(t)
	ctx := context.Background()

	err := idx.Index(ctx, []*KeywordDocument{
		{ID: "faq1", Content: "行程开始前7天以上取消，退款扣除已产生的机票费用"},
		{ID: "pol1", Content: "签证材料需要提前十五个工作日提交"},
		{ID: "prod1", Content: "巴厘岛7日尊享游，全程五星酒店，价格8999元起"},
	})
	require.NoError(t, err)

	// "退款" never appears as a standalone token; bigram analysis finds it
	// inside the longer sentence.
	results, err := idx.Search(ctx, "退款", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "faq1", results[0].ChunkID)

	results, err = idx.Search(ctx, "巴厘岛价格", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "prod1", results[0].ChunkID)
}

func TestBleveKeywordIndex_ReplaceAndDelete(t *testing.T) {
	idx := newTestKeywordIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*KeywordDocument{{ID: "d1", Content: "改期手续费说明"}}))
	require.NoError(t, idx.Index(ctx, []*KeywordDocument{{ID: "d1", Content: "儿童价说明"}}))

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count, "re-indexing the same ID replaces the document")

	results, err := idx.Search(ctx, "改期", 10)
	require.NoError(t, err)
	assert.Empty(t, results, "old content should be gone after replacement")

	require.NoError(t, idx.Delete(ctx, []string{"d1"}))
	count, err = idx.DocCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestBleveKeywordIndex_EmptyQuery(t *testing.T) {
	idx := newTestKeywordIndex(t)

	results, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBleveKeywordIndex_MatchedTerms(t *testing.T) {
	idx := newTestKeywordIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*KeywordDocument{
		{ID: "d1", Content: "visa application requires passport photos"},
	}))

	results, err := idx.Search(ctx, "passport", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].MatchedTerms, "passport")
}

func TestBleveKeywordIndex_ClosedRejectsCalls(t *testing.T) {
	idx := newTestKeywordIndex(t)
	require.NoError(t, idx.Close())

	_, err := idx.Search(context.Background(), "anything", 1)
	assert.Error(t, err)
	err = idx.Index(context.Background(), []*KeywordDocument{{ID: "x", Content: "y"}})
	assert.Error(t, err)
}
