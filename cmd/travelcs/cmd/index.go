package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/angeless/travelcs/internal/index"
	"github.com/angeless/travelcs/internal/source"
	"github.com/angeless/travelcs/internal/ui"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or update the knowledge base index",
		Long: `Build or update the knowledge base index from the documents directory.

Only added, modified, and deleted documents are reprocessed; unchanged
documents keep their existing chunks and embeddings. The new index
version is validated with canary queries before it replaces the old one.

Examples:
  travelcs index
  travelcs index --dir /srv/kb`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd)
		},
	}
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command) error {
	slog.Info("index_started", slog.String("documents", documentsDir()))
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

	result, err := runner.RunOnce(ctx)
	if err != nil {
		return err
	}

	out.IndexSummary(result)
	return nil
}
