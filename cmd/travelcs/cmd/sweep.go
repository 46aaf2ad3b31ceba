package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/angeless/travelcs/internal/index"
)

func newSweepCmd() *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Hard-delete expired tombstones from the index",
		Long: `Hard-delete soft-deleted chunks whose retention window has passed.

Deleted and replaced chunks are kept as tombstones so a bad index build
can be rolled back; sweeping reclaims the space once they expire.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd.Context(), cmd, retention)
		},
	}

	cmd.Flags().DurationVar(&retention, "retention", 0, "Override the configured retention window (e.g. 168h)")

	return cmd
}

func runSweep(ctx context.Context, cmd *cobra.Command, retention time.Duration) error {
	comps, err := openComponents(ctx, false)
	if err != nil {
		return err
	}
	defer comps.Close()

	if retention <= 0 {
		retention = cfg.Index.Retention
	}
	sweeper := index.NewSweeper(comps.Store, comps.Manifest, index.SweeperConfig{
		Retention: retention,
		DataDir:   dataDir(),
	})

	removed, err := sweeper.RunOnce(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired entries, %d tombstones remaining\n",
		removed, comps.Store.TombstoneCount())
	return nil
}
