package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angeless/travelcs/internal/chunk"
	"github.com/angeless/travelcs/internal/store"
)

func testDoc(id string, dt chunk.DocType, content string) *chunk.Document {
	return &chunk.Document{
		ID:         id,
		Type:       dt,
		RawContent: content,
		SourceHash: chunk.HashContent(content),
		UpdatedAt:  time.Now().UTC(),
	}
}

func indexedRecord(doc *chunk.Document) store.DocumentRecord {
	return store.DocumentRecord{
		DocID:      doc.ID,
		DocType:    doc.Type,
		SourceHash: doc.SourceHash,
		IndexedAt:  time.Now().UTC(),
	}
}

func TestDetectFirstBuild(t *testing.T) {
	docs := []*chunk.Document{
		testDoc("P002", chunk.DocTypeProduct, "普吉岛5日游"),
		testDoc("P001", chunk.DocTypeProduct, "巴厘岛7日游"),
	}

	changes := Detect(docs, nil)

	require.Len(t, changes.Added, 2)
	assert.Equal(t, "P001", changes.Added[0].ID)
	assert.Equal(t, "P002", changes.Added[1].ID)
	assert.Empty(t, changes.Modified)
	assert.Empty(t, changes.Deleted)
	assert.False(t, changes.Empty())
	assert.Equal(t, 2, changes.Total())
}

func TestDetectNoChanges(t *testing.T) {
	doc := testDoc("P001", chunk.DocTypeProduct, "巴厘岛7日游")
	indexed := map[string]store.DocumentRecord{
		"P001": indexedRecord(doc),
	}

	changes := Detect([]*chunk.Document{doc}, indexed)

	assert.True(t, changes.Empty())
	assert.Equal(t, 0, changes.Total())
}

func TestDetectClassifiesAllKinds(t *testing.T) {
	unchanged := testDoc("P001", chunk.DocTypeProduct, "巴厘岛7日游")
	modified := testDoc("F001", chunk.DocTypeFAQ, "旧的退款说明")
	added := testDoc("T001", chunk.DocTypePolicy, "退改政策")

	indexed := map[string]store.DocumentRecord{
		"P001": indexedRecord(unchanged),
		"F001": indexedRecord(modified),
		"GONE": {DocID: "GONE", DocType: chunk.DocTypeProduct, SourceHash: "deadbeef"},
	}

	// Modify F001 after recording its indexed hash.
	modified = testDoc("F001", chunk.DocTypeFAQ, "新的退款说明")

	changes := Detect([]*chunk.Document{unchanged, modified, added}, indexed)

	require.Len(t, changes.Added, 1)
	assert.Equal(t, "T001", changes.Added[0].ID)
	require.Len(t, changes.Modified, 1)
	assert.Equal(t, "F001", changes.Modified[0].ID)
	assert.Equal(t, []string{"GONE"}, changes.Deleted)
}

func TestDetectDeletedSorted(t *testing.T) {
	indexed := map[string]store.DocumentRecord{
		"P003": {DocID: "P003"},
		"P001": {DocID: "P001"},
		"P002": {DocID: "P002"},
	}

	changes := Detect(nil, indexed)

	assert.Equal(t, []string{"P001", "P002", "P003"}, changes.Deleted)
}
