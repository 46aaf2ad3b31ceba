package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/angeless/travelcs/internal/ui"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	format   string // "text", "json"
	noRerank bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Search the knowledge base with hybrid retrieval.

Combines semantic (embedding) and keyword search with weighted score
fusion. When a reranker endpoint is configured and reachable, the top
candidates are re-ordered by a cross-encoder.

Examples:
  travelcs search "巴厘岛多少钱"
  travelcs search "退款政策" --limit 3
  travelcs search "签证材料" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (0 uses the configured default)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.noRerank, "no-rerank", false, "Skip cross-encoder reranking")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))

	comps, err := openComponents(ctx, false)
	if err != nil {
		return err
	}
	defer comps.Close()

	retriever, err := buildRetriever(ctx, comps, !opts.noRerank)
	if err != nil {
		return err
	}
	defer func() { _ = retriever.Close() }()

	results, err := retriever.Retrieve(ctx, query, opts.limit)
	if err != nil {
		return err
	}
	slog.Info("search_complete", slog.Int("results", len(results)))

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	ui.NewRenderer(cmd.OutOrStdout()).SearchResults(query, results)
	return nil
}
