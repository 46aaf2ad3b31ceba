package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angeless/travelcs/internal/chunk"
)

const productsYAML = `
- id: P001
  name: 巴厘岛7日尊享游
  price: 8999
  duration: 7
  destination: [巴厘岛, 印度尼西亚]
  highlights: [五星酒店, 私人海滩]
  visa: 落地签
  inclusions: [往返机票, 酒店住宿]
  cancellation: 出发前30天可全额退款
- id: P003
  name: 泰国普吉岛6日自由行
  price: 4999
  duration: 6
  destination: [普吉岛, 泰国]
  visa: 免签
`

const faqsYAML = `
- id: F002
  question: 可以退改吗？
  answer: 出发前7天可全额退款，3-7天扣30%，1-3天扣50%。
  category: 退改
  keywords: [退改, 取消, 退款]
- id: ""
  question: 没有编号的条目
  answer: 应当被跳过
`

const policyMD = `# 退改政策

第一条 出发前7天以上取消，全额退款。
第二条 出发前3-7天取消，扣除团费30%。
`

func writeTestDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.yaml"), []byte(productsYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "faqs.yaml"), []byte(faqsYAML), 0o644))

	policies := filepath.Join(dir, "policies")
	require.NoError(t, os.Mkdir(policies, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(policies, "refund-policy.md"), []byte(policyMD), 0o644))

	return dir
}

func TestLoadDocuments(t *testing.T) {
	loader, err := NewDirLoader(writeTestDocs(t))
	require.NoError(t, err)

	docs, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 4)

	// Sorted by id.
	assert.Equal(t, "F002", docs[0].ID)
	assert.Equal(t, "P001", docs[1].ID)
	assert.Equal(t, "P003", docs[2].ID)
	assert.Equal(t, "refund-policy", docs[3].ID)

	product := docs[1]
	assert.Equal(t, chunk.DocTypeProduct, product.Type)
	assert.Contains(t, product.RawContent, "产品：巴厘岛7日尊享游")
	assert.Contains(t, product.RawContent, "价格：8999元")
	assert.Contains(t, product.RawContent, "退改规则：出发前30天可全额退款")
	assert.Equal(t, "8999", product.Metadata["price"])
	assert.NotEmpty(t, product.SourceHash)

	faq := docs[0]
	assert.Equal(t, chunk.DocTypeFAQ, faq.Type)
	assert.Equal(t, "可以退改吗？", faq.Metadata["question"])
	assert.Contains(t, faq.RawContent, "问：可以退改吗？")
	assert.Contains(t, faq.Metadata["keywords"], "退款")

	policy := docs[3]
	assert.Equal(t, chunk.DocTypePolicy, policy.Type)
	assert.Equal(t, "退改政策", policy.Metadata["title"])
	assert.Contains(t, policy.RawContent, "第一条")
}

func TestLoadStableHashes(t *testing.T) {
	dir := writeTestDocs(t)
	loader, err := NewDirLoader(dir)
	require.NoError(t, err)

	first, err := loader.Load(context.Background())
	require.NoError(t, err)
	second, err := loader.Load(context.Background())
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].SourceHash, second[i].SourceHash)
	}
}

func TestLoadDetectsContentChange(t *testing.T) {
	dir := writeTestDocs(t)
	loader, err := NewDirLoader(dir)
	require.NoError(t, err)

	before, err := loader.Load(context.Background())
	require.NoError(t, err)

	changed := []byte(`
- id: P001
  name: 巴厘岛7日尊享游
  price: 7999
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.yaml"), changed, 0o644))

	after, err := loader.Load(context.Background())
	require.NoError(t, err)

	findHash := func(docs []*chunk.Document, id string) string {
		for _, d := range docs {
			if d.ID == id {
				return d.SourceHash
			}
		}
		return ""
	}
	assert.NotEqual(t, findHash(before, "P001"), findHash(after, "P001"))
}

func TestLoadSkipsIncompleteRecords(t *testing.T) {
	loader, err := NewDirLoader(writeTestDocs(t))
	require.NoError(t, err)

	docs, err := loader.Load(context.Background())
	require.NoError(t, err)

	for _, d := range docs {
		assert.NotEmpty(t, d.ID)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.yaml"), []byte("{not: [valid"), 0o644))

	loader, err := NewDirLoader(dir)
	require.NoError(t, err)

	_, err = loader.Load(context.Background())
	require.Error(t, err)
}

func TestLoadJSONProducts(t *testing.T) {
	dir := t.TempDir()
	data := `[{"id":"P010","name":"冰岛极光8日游","price":25999,"visa":"申根签证"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.json"), []byte(data), 0o644))

	loader, err := NewDirLoader(dir)
	require.NoError(t, err)

	docs, err := loader.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "P010", docs[0].ID)
	assert.Contains(t, docs[0].RawContent, "冰岛极光8日游")
}

func TestNewDirLoaderMissingDir(t *testing.T) {
	_, err := NewDirLoader(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestLoadEmptyPolicyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.md"), []byte("   \n"), 0o644))

	loader, err := NewDirLoader(dir)
	require.NoError(t, err)

	docs, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}
