package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pdfrag/internal/embed"
	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
	"github.com/Aman-CERP/pdfrag/internal/pdf"
	"github.com/Aman-CERP/pdfrag/internal/preflight"
)

func newDoctorCmd(opts *globalOptions) *cobra.Command {
	var verbose, jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements",
		Long: `Check that pdfrag can build and serve an index here.

Checks:
  - Disk space under the data directory (100 MiB minimum)
  - Write permissions in the data directory
  - File descriptor limit (1024 minimum)
  - pdftotext for PDF text extraction
  - The configured embedding endpoint (skipped with --offline)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDoctor(ctx, cmd, opts, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details and suggestions")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, opts *globalOptions, verbose, jsonOutput bool) error {
	root, cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	remote := embed.ParseProvider(cfg.Embeddings.Provider) != embed.ProviderStatic
	checker := preflight.New(
		preflight.WithPDFProbe(pdf.CheckAvailable),
		preflight.WithEmbedderProbe(func(ctx context.Context) error {
			e, err := embed.NewEmbedder(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()
			if !e.Available(ctx) {
				return pderrors.EmbeddingUnavailableError(e.ModelID()+" is not responding", nil)
			}
			return nil
		}, remote),
	)

	report := checker.Run(ctx, cfg.ResolveDataDir(root))

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		report.Print(cmd.OutOrStdout(), verbose)
	}

	if report.Failed() {
		return pderrors.New(pderrors.ErrCodeConfigInvalid, "system check failed", nil).
			WithSuggestion("Run 'pdfrag doctor --verbose' for details")
	}
	return nil
}
