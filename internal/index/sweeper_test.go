package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angeless/travelcs/internal/chunk"
	"github.com/angeless/travelcs/internal/store"
)

// newStoreWithTombstone promotes two chunks, then promotes a follow-up
// version without one of them, leaving a tombstone behind.
func newStoreWithTombstone(t *testing.T) *store.VersionedStore {
	t.Helper()
	ctx := context.Background()

	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(3))
	require.NoError(t, err)
	keywords, err := store.NewBleveKeywordIndex("")
	require.NoError(t, err)
	vs := store.NewVersionedStore(vectors, keywords)
	t.Cleanup(func() { _ = vs.Close() })

	chunks := []chunk.Chunk{
		{ID: "c1", DocumentID: "P001", DocType: chunk.DocTypeProduct, Text: "巴厘岛7日游"},
		{ID: "c2", DocumentID: "P001", DocType: chunk.DocTypeProduct, Text: "普吉岛5日游"},
	}
	vecs := [][]float32{{1, 0, 0}, {0, 1, 0}}

	v1, err := vs.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, vs.Stage(ctx, v1.ID, chunks, vecs))
	require.NoError(t, vs.Promote(ctx, v1.ID))

	v2, err := vs.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, vs.Unstage(ctx, v2.ID, []string{"c1"}))
	require.NoError(t, vs.Promote(ctx, v2.ID))

	require.Equal(t, 1, vs.TombstoneCount())
	return vs
}

func TestSweepRemovesExpiredTombstones(t *testing.T) {
	vs := newStoreWithTombstone(t)

	manifest, err := store.NewManifest("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = manifest.Close() })

	sweeper := NewSweeper(vs, manifest, SweeperConfig{Retention: time.Nanosecond})

	// Let the tombstone age past the (tiny) retention window.
	time.Sleep(10 * time.Millisecond)

	removed, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, 1)
	assert.Zero(t, vs.TombstoneCount())
	assert.Equal(t, 1, vs.LiveCount())

	last, err := manifest.GetState(context.Background(), store.StateKeyLastSweep)
	require.NoError(t, err)
	assert.NotEmpty(t, last)
}

func TestSweepKeepsFreshTombstones(t *testing.T) {
	vs := newStoreWithTombstone(t)

	sweeper := NewSweeper(vs, nil, SweeperConfig{})

	removed, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, 1, vs.TombstoneCount())
}
