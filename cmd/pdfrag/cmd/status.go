package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pdfrag/internal/config"
	"github.com/Aman-CERP/pdfrag/internal/embed"
	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
	"github.com/Aman-CERP/pdfrag/internal/output"
	"github.com/Aman-CERP/pdfrag/internal/store"
)

// indexStatus is one index file in the data directory.
type indexStatus struct {
	File         string    `json:"file"`
	ModelID      string    `json:"embedding_model"`
	Dimensions   int       `json:"dimensions"`
	ChunkSize    int       `json:"chunk_size"`
	ChunkOverlap int       `json:"chunk_overlap"`
	Fusion       string    `json:"fusion"`
	RRFConstant  int       `json:"rrf_k"`
	Documents    int       `json:"documents"`
	Chunks       int       `json:"chunks"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
	Active       bool      `json:"active"`
	Error        string    `json:"error,omitempty"`
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the indexes in the data directory",
		Long: `List every index in the data directory with the embedding model and
chunking it was built with. The index used by the current configuration
is marked active.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, opts, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, opts *globalOptions, format string) error {
	if format != "text" && format != "json" {
		return pderrors.ValidationError(fmt.Sprintf("unknown format %q (valid: text, json)", format), nil)
	}

	root, cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	dataDir := cfg.ResolveDataDir(root)

	files, err := store.ListIndexFiles(dataDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return pderrors.NotFoundError(fmt.Sprintf("no index found in %s", dataDir)).
			WithSuggestion("Run 'pdfrag index <dir>' first")
	}

	prefix := activeModelPrefix(cfg)

	statuses := make([]indexStatus, 0, len(files))
	for _, f := range files {
		st := indexStatus{File: filepath.Base(f)}
		meta, stats, err := store.ReadMeta(ctx, f)
		if err != nil {
			opts.log().Warn("status_read_failed",
				slog.String("index", f),
				slog.String("error", err.Error()))
			st.Error = err.Error()
			statuses = append(statuses, st)
			continue
		}
		st.ModelID = meta.ModelID
		st.Dimensions = meta.Dimensions
		st.ChunkSize = meta.ChunkSize
		st.ChunkOverlap = meta.ChunkOverlap
		st.Fusion = meta.Fusion
		st.RRFConstant = meta.RRFConstant
		st.CreatedAt = meta.CreatedAt
		st.Documents = stats.Documents
		st.Chunks = stats.Chunks
		st.SizeBytes = stats.SizeBytes
		st.Active = strings.HasPrefix(meta.ModelID, prefix) &&
			meta.ChunkSize == cfg.Chunking.Size &&
			meta.ChunkOverlap == cfg.Chunking.Overlap
		statuses = append(statuses, st)
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	out := output.New(cmd.OutOrStdout())
	out.Infof("Data directory: %s", dataDir)
	for _, st := range statuses {
		out.Newline()
		marker := ""
		if st.Active {
			marker = " (active)"
		}
		out.Infof("%s%s", st.File, marker)
		if st.Error != "" {
			out.Warning(st.Error)
			continue
		}
		out.Block(fmt.Sprintf(
			"model:     %s (%d dims)\nchunking:  %d runes, %d overlap\nfusion:    %s, k=%d\ncontents:  %d documents, %d chunks, %s\ncreated:   %s",
			st.ModelID, st.Dimensions,
			st.ChunkSize, st.ChunkOverlap,
			st.Fusion, st.RRFConstant,
			st.Documents, st.Chunks, humanize.IBytes(uint64(st.SizeBytes)),
			st.CreatedAt.Local().Format(time.DateTime)))
	}
	return nil
}

// activeModelPrefix returns the "provider:model@" prefix of the embedding
// space the configuration selects. Dimensions are left out because Ollama
// reports them only once the model is loaded.
func activeModelPrefix(cfg *config.Config) string {
	if embed.ParseProvider(cfg.Embeddings.Provider) == embed.ProviderStatic {
		return embed.FormatModelID(embed.ProviderStatic, embed.StaticModelName, embed.StaticDimensions)
	}
	model := cfg.Embeddings.Model
	if model == "" {
		model = embed.DefaultOllamaModel
	}
	return fmt.Sprintf("%s:%s@", embed.ProviderOllama, model)
}
