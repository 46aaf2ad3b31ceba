package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/angeless/travelcs/internal/index"
	"github.com/angeless/travelcs/internal/source"
	"github.com/angeless/travelcs/internal/ui"
	"github.com/angeless/travelcs/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the documents directory and reindex on change",
		Long: `Watch the documents directory and reindex incrementally whenever
documents are added, modified, or deleted.

File events are debounced so a burst of writes triggers a single
reindex. Expired tombstones are swept in the background. Stop with
Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), cmd)
		},
	}
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command) error {
	out := ui.NewRenderer(cmd.OutOrStdout())

	comps, err := openComponents(ctx, true)
	if err != nil {
		return err
	}
	defer comps.Close()

	loader, err := source.NewDirLoader(documentsDir())
	if err != nil {
		return err
	}
	indexer, err := buildIndexer(comps)
	if err != nil {
		return err
	}
	runner, err := index.NewRunner(indexer, loader, dataDir())
	if err != nil {
		return err
	}

	// Catch up before watching.
	result, err := runner.RunOnce(ctx)
	if err != nil {
		return err
	}
	out.IndexSummary(result)

	w, err := watcher.NewDirWatcher(documentsDir(), watcher.Options{
		DebounceWindow: cfg.Watch.Debounce,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	sweeper := index.NewSweeper(comps.Store, comps.Manifest, index.SweeperConfig{
		Retention: cfg.Index.Retention,
		Interval:  cfg.Index.SweepInterval,
		DataDir:   dataDir(),
	})

	go runner.Start(ctx)
	go sweeper.Start(ctx)
	go w.Run(ctx)

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes...\n", documentsDir())
	slog.Info("watch_started", slog.String("dir", documentsDir()))

	for {
		select {
		case <-ctx.Done():
			slog.Info("watch_stopped")
			return nil
		case batch, ok := <-w.Batches():
			if !ok {
				return nil
			}
			slog.Info("documents_changed", slog.Int("events", len(batch)))
			runner.Trigger()
		}
	}
}
