package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/angeless/travelcs/internal/store"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status",
		Long:  `Show the active index version, document and chunk counts, and sweep state.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd)
		},
	}
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	if _, err := os.Stat(filepath.Join(dataDir(), storeStateName)); err != nil {
		fmt.Fprintf(out, "No index found in %s. Run 'travelcs index' first.\n", dataDir())
		return nil
	}

	comps, err := openComponents(ctx, false)
	if err != nil {
		return err
	}
	defer comps.Close()

	docs, err := comps.Manifest.DocumentCount(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Data directory:  %s\n", dataDir())
	if active, ok := comps.Store.Active(); ok {
		fmt.Fprintf(out, "Active version:  %s\n", active.ID)
	} else {
		fmt.Fprintln(out, "Active version:  none")
	}
	fmt.Fprintf(out, "Documents:       %d\n", docs)
	fmt.Fprintf(out, "Live chunks:     %d\n", comps.Store.LiveCount())
	fmt.Fprintf(out, "Tombstones:      %d\n", comps.Store.TombstoneCount())

	if model, err := comps.Manifest.GetState(ctx, store.StateKeyIndexModel); err == nil && model != "" {
		fmt.Fprintf(out, "Embedding model: %s\n", model)
	}
	if dims, err := comps.Manifest.GetState(ctx, store.StateKeyIndexDimension); err == nil && dims != "" {
		fmt.Fprintf(out, "Dimensions:      %s\n", dims)
	}
	if sweep, err := comps.Manifest.GetState(ctx, store.StateKeyLastSweep); err == nil && sweep != "" {
		fmt.Fprintf(out, "Last sweep:      %s\n", sweep)
	}

	return nil
}
