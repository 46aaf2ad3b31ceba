package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/angeless/travelcs/internal/store"
)

// Sweeper hard-deletes tombstoned chunks and retired versions once they
// age past the retention window.
type Sweeper struct {
	store     *store.VersionedStore
	manifest  *store.Manifest
	retention time.Duration
	interval  time.Duration
	dataDir   string
}

// SweeperConfig configures the tombstone sweeper.
type SweeperConfig struct {
	// Retention is how long tombstones and retired versions are kept
	// before hard deletion. Zero uses the store default.
	Retention time.Duration

	// Interval is how often Start sweeps. Zero defaults to daily.
	Interval time.Duration

	// DataDir is where index state is persisted after a sweep that
	// removed anything. Empty disables persistence.
	DataDir string
}

// NewSweeper creates a sweeper.
func NewSweeper(vs *store.VersionedStore, manifest *store.Manifest, cfg SweeperConfig) *Sweeper {
	if cfg.Retention <= 0 {
		cfg.Retention = store.DefaultRetention
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &Sweeper{
		store:     vs,
		manifest:  manifest,
		retention: cfg.Retention,
		interval:  cfg.Interval,
		dataDir:   cfg.DataDir,
	}
}

// RunOnce purges everything older than the retention window and records
// the sweep timestamp in the manifest.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.retention)

	removed, err := s.store.Purge(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if removed > 0 && s.dataDir != "" {
		if err := s.store.Save(s.dataDir); err != nil {
			slog.Warn("sweep_persist_failed",
				slog.String("dir", s.dataDir),
				slog.String("error", err.Error()))
		}
	}

	if s.manifest != nil {
		now := time.Now().UTC().Format(time.RFC3339)
		if err := s.manifest.SetState(ctx, store.StateKeyLastSweep, now); err != nil {
			slog.Warn("sweep_state_failed", slog.String("error", err.Error()))
		}
	}

	slog.Info("sweep_complete",
		slog.Int("removed", removed),
		slog.Time("cutoff", cutoff))
	return removed, nil
}

// Start sweeps on the configured interval until the context is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				slog.Error("sweep_failed", slog.String("error", err.Error()))
			}
		}
	}
}
