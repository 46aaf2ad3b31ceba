package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/angeless/travelcs/internal/chunk"
	kberrors "github.com/angeless/travelcs/internal/errors"
)

// SourceLoader loads the current document set from the source of truth.
type SourceLoader interface {
	Load(ctx context.Context) ([]*chunk.Document, error)
}

// Runner serializes reindex runs. Concurrent triggers within the process
// coalesce into a single pending run; a file lock keeps a second process
// from building over the same data directory.
type Runner struct {
	indexer *Indexer
	loader  SourceLoader
	lock    *flock.Flock

	mu      sync.Mutex
	trigger chan struct{}
}

// NewRunner creates a runner. dataDir may be empty, in which case no
// cross-process lock is taken.
func NewRunner(indexer *Indexer, loader SourceLoader, dataDir string) (*Runner, error) {
	if indexer == nil {
		return nil, fmt.Errorf("indexer is required")
	}
	if loader == nil {
		return nil, fmt.Errorf("source loader is required")
	}

	r := &Runner{
		indexer: indexer,
		loader:  loader,
		trigger: make(chan struct{}, 1),
	}
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		r.lock = flock.New(filepath.Join(dataDir, "index.lock"))
	}
	return r, nil
}

// RunOnce loads the sources and runs one reindex pass. It fails fast with
// KB_404_INDEX_LOCKED when another process holds the index lock.
func (r *Runner) RunOnce(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lock != nil {
		locked, err := r.lock.TryLock()
		if err != nil {
			return nil, kberrors.New(kberrors.CodeIndexLocked, "acquire index lock", err)
		}
		if !locked {
			return nil, kberrors.New(kberrors.CodeIndexLocked,
				fmt.Sprintf("another process holds %s", r.lock.Path()), nil)
		}
		defer func() {
			if err := r.lock.Unlock(); err != nil {
				slog.Warn("index_lock_release_failed", slog.String("error", err.Error()))
			}
		}()
	}

	docs, err := r.loader.Load(ctx)
	if err != nil {
		return nil, kberrors.IndexBuildError("load source documents", err)
	}

	return r.indexer.Reindex(ctx, docs)
}

// Trigger requests a reindex run. Triggers arriving while a run is in
// flight collapse into one pending run.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Start consumes triggers until the context is canceled. Each trigger
// results in at most one run; failures are logged and the loop continues.
func (r *Runner) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.trigger:
			if _, err := r.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("reindex_run_failed", slog.String("error", err.Error()))
			}
		}
	}
}
