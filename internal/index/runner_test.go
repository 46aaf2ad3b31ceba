package index

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angeless/travelcs/internal/chunk"
	"github.com/angeless/travelcs/internal/embed"
	kberrors "github.com/angeless/travelcs/internal/errors"
)

type staticLoader struct {
	docs  []*chunk.Document
	err   error
	loads atomic.Int32
}

func (l *staticLoader) Load(ctx context.Context) ([]*chunk.Document, error) {
	l.loads.Add(1)
	return l.docs, l.err
}

// blockingLoader parks inside Load until released, so tests can pile up
// triggers behind an in-flight run.
type blockingLoader struct {
	docs    []*chunk.Document
	entered chan struct{}
	release chan struct{}
	loads   atomic.Int32
}

func (l *blockingLoader) Load(ctx context.Context) ([]*chunk.Document, error) {
	l.loads.Add(1)
	l.entered <- struct{}{}
	<-l.release
	return l.docs, nil
}

func TestRunOnce(t *testing.T) {
	ix, vs, _ := newTestIndexer(t, embed.NewStaticEmbedder(), CanaryConfig{})
	loader := &staticLoader{docs: []*chunk.Document{
		testDoc("P001", chunk.DocTypeProduct, "巴厘岛7日游，价格8999元起。"),
	}}

	runner, err := NewRunner(ix, loader, t.TempDir())
	require.NoError(t, err)

	result, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Greater(t, vs.LiveCount(), 0)
	assert.Equal(t, int32(1), loader.loads.Load())
}

func TestRunOnceLoaderError(t *testing.T) {
	ix, _, _ := newTestIndexer(t, embed.NewStaticEmbedder(), CanaryConfig{})
	loader := &staticLoader{err: errors.New("source directory unreadable")}

	runner, err := NewRunner(ix, loader, "")
	require.NoError(t, err)

	_, err = runner.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, kberrors.HasCode(err, kberrors.CodeIndexBuild))
}

func TestRunOnceRefusedWhileLocked(t *testing.T) {
	ix, _, _ := newTestIndexer(t, embed.NewStaticEmbedder(), CanaryConfig{})
	loader := &staticLoader{}
	dataDir := t.TempDir()

	runner, err := NewRunner(ix, loader, dataDir)
	require.NoError(t, err)

	// Simulate another process holding the lock.
	other := flock.New(filepath.Join(dataDir, "index.lock"))
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = other.Unlock() }()

	_, err = runner.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, kberrors.HasCode(err, kberrors.CodeIndexLocked))
	assert.Zero(t, loader.loads.Load())
}

func TestTriggersCoalesce(t *testing.T) {
	ix, _, _ := newTestIndexer(t, embed.NewStaticEmbedder(), CanaryConfig{})
	loader := &blockingLoader{
		docs: []*chunk.Document{
			testDoc("P001", chunk.DocTypeProduct, "巴厘岛7日游，价格8999元起。"),
		},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	runner, err := NewRunner(ix, loader, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(done)
	}()

	runner.Trigger()
	<-loader.entered

	// These all arrive while the first run is in flight and must collapse
	// into a single follow-up run.
	runner.Trigger()
	runner.Trigger()
	runner.Trigger()

	loader.release <- struct{}{}
	<-loader.entered
	loader.release <- struct{}{}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}

	assert.Equal(t, int32(2), loader.loads.Load())
}
