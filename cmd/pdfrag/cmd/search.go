package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pdfrag/internal/chunk"
	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
	"github.com/Aman-CERP/pdfrag/internal/mcp"
	"github.com/Aman-CERP/pdfrag/internal/output"
	"github.com/Aman-CERP/pdfrag/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	mode         string
	topK         int
	bm25Weight   float64
	vectorWeight float64
	format       string // "text", "json"
	full         bool
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var so searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Search the index for the current configuration.

Modes: bm25 (keyword), vector (semantic) and hybrid, which fuses both
rankings with weighted reciprocal rank fusion.

Examples:
  pdfrag search "scaled dot-product attention"
  pdfrag search "transformer" --mode bm25 --top-k 10
  pdfrag search "positional encoding" --bm25-weight 0.3 --vector-weight 0.7
  pdfrag search "layer norm" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var weights *search.Weights
			if cmd.Flags().Changed("bm25-weight") || cmd.Flags().Changed("vector-weight") {
				weights = &search.Weights{BM25: so.bm25Weight, Vector: so.vectorWeight}
			}
			return runSearch(cmd.Context(), cmd, opts, strings.Join(args, " "), so, weights)
		},
	}

	def := search.DefaultWeights()
	cmd.Flags().StringVarP(&so.mode, "mode", "m", string(search.ModeHybrid), "Search mode: bm25, vector, hybrid")
	cmd.Flags().IntVarP(&so.topK, "top-k", "n", 0, "Maximum number of results (0 uses search.default_top_k)")
	cmd.Flags().Float64Var(&so.bm25Weight, "bm25-weight", def.BM25, "Keyword weight for hybrid search")
	cmd.Flags().Float64Var(&so.vectorWeight, "vector-weight", def.Vector, "Semantic weight for hybrid search")
	cmd.Flags().StringVarP(&so.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&so.full, "full", false, "Print whole passages instead of snippets")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, opts *globalOptions, query string, so searchOptions, weights *search.Weights) error {
	if so.format != "text" && so.format != "json" {
		return pderrors.ValidationError(fmt.Sprintf("unknown format %q (valid: text, json)", so.format), nil)
	}
	mode, err := search.ParseMode(so.mode)
	if err != nil {
		return err
	}

	a, err := opts.openApp(ctx, openOptions{readOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	a.logger.Info("search_started",
		slog.String("mode", string(mode)),
		slog.Int("top_k", so.topK))

	results, err := a.engine.Search(ctx, search.Query{
		Text:    query,
		Mode:    mode,
		TopK:    so.topK,
		Weights: weights,
	})
	if err != nil {
		return err
	}
	a.logger.Info("search_complete", slog.Int("results", len(results)))

	if so.format == "json" {
		outputs := make([]mcp.SearchResultOutput, 0, len(results))
		for _, r := range results {
			outputs = append(outputs, mcp.ToSearchResultOutput(r))
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(outputs)
	}

	printResults(output.New(cmd.OutOrStdout()), query, results, so.full)
	return nil
}

func printResults(out *output.Writer, query string, results []*search.Result, full bool) {
	if len(results) == 0 {
		out.Infof("No results for %q", query)
		return
	}
	for i, r := range results {
		location := r.Source
		if page := r.Metadata[chunk.MetaPage]; page != "" {
			location = fmt.Sprintf("%s, p. %s", r.Source, page)
		}
		out.Infof("%d. %s  (score %.4f)", i+1, location, r.Score)
		text := r.Snippet
		if full {
			text = r.Content
		}
		out.Block(text)
		if i < len(results)-1 {
			out.Newline()
		}
	}
}
