package mcp

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Aman-CERP/pdfrag/internal/chunk"
	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
	"github.com/Aman-CERP/pdfrag/internal/search"
	"github.com/Aman-CERP/pdfrag/internal/telemetry"
)

// FormatSearchResults formats search results as markdown.
func FormatSearchResults(query string, mode search.Mode, results []*search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s Results for \"%s\"\n\n", modeTitle(mode), query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		formatResult(&sb, i+1, mode, r)
	}
	return sb.String()
}

func modeTitle(mode search.Mode) string {
	switch mode {
	case search.ModeBM25:
		return "Keyword"
	case search.ModeVector:
		return "Semantic"
	default:
		return "Hybrid"
	}
}

// formatResult formats a single result.
func formatResult(sb *strings.Builder, num int, mode search.Mode, r *search.Result) {
	source := r.Source
	if source == "" {
		source = r.DocumentID
	}
	fmt.Fprintf(sb, "### %d. %s", num, source)
	if page := r.Metadata[chunk.MetaPage]; page != "" {
		fmt.Fprintf(sb, ", p. %s", page)
	}
	fmt.Fprintf(sb, " (score: %.4f)\n", r.Score)
	fmt.Fprintf(sb, "`%s`", r.ChunkID)
	if reason := matchReason(mode, r); reason != "" {
		fmt.Fprintf(sb, " · %s", reason)
	}
	sb.WriteString("\n\n")

	sb.WriteString(quote(r.Snippet))
	sb.WriteString("\n\n")
}

// matchReason explains which rankings contributed to a hybrid result.
func matchReason(mode search.Mode, r *search.Result) string {
	if mode != search.ModeHybrid {
		return ""
	}
	switch {
	case r.BM25Rank > 0 && r.VecRank > 0:
		return fmt.Sprintf("keyword #%d, semantic #%d", r.BM25Rank, r.VecRank)
	case r.BM25Rank > 0:
		return fmt.Sprintf("keyword #%d only", r.BM25Rank)
	case r.VecRank > 0:
		return fmt.Sprintf("semantic #%d only", r.VecRank)
	}
	return ""
}

// quote renders text as a markdown block quote.
func quote(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

// FormatIndexReport summarizes an index_documents run as markdown.
func FormatIndexReport(out *IndexDocumentsOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Indexed %d document", out.DocumentsIndexed)
	if out.DocumentsIndexed != 1 {
		sb.WriteString("s")
	}
	fmt.Fprintf(&sb, " (%d chunks) in %dms.\n", out.ChunksIndexed, out.DurationMS)

	if len(out.Failures) > 0 {
		fmt.Fprintf(&sb, "\n%d failed:\n", len(out.Failures))
		for _, f := range out.Failures {
			name := f.Source
			if name == "" {
				name = f.DocumentID
			}
			fmt.Fprintf(&sb, "- %s: %s (%s)\n", name, f.Message, f.Kind)
		}
	}
	return sb.String()
}

// FormatDocument renders a document with a short header.
func FormatDocument(out *GetDocumentOutput) string {
	return fmt.Sprintf("## %s\n\nSource: %s · %d chunks · ingested %s\n\n%s\n",
		out.DocumentID, out.Source, out.ChunkCount, out.IngestedAt, out.Text)
}

// FormatIndexStatus renders index statistics.
func FormatIndexStatus(out *IndexStatusOutput) string {
	var sb strings.Builder
	sb.WriteString("## Index Status\n\n")
	fmt.Fprintf(&sb, "- Documents: %d\n", out.Documents)
	fmt.Fprintf(&sb, "- Chunks: %d\n", out.Chunks)
	fmt.Fprintf(&sb, "- Embedding model: %s (%d dimensions)\n", out.ModelID, out.Dimensions)
	fmt.Fprintf(&sb, "- Chunking: %d characters, %d overlap\n", out.ChunkSize, out.ChunkOverlap)
	fmt.Fprintf(&sb, "- Fusion: %s (k=%d)\n", out.Fusion, out.RRFConstant)
	if out.IndexPath != "" {
		fmt.Fprintf(&sb, "- Path: %s (%s)\n", out.IndexPath, humanize.IBytes(uint64(max(out.IndexSizeBytes, 0))))
	}
	if q := out.Queries; q != nil && q.Total > 0 {
		fmt.Fprintf(&sb, "\n### Queries since %s\n\n", q.Since)
		fmt.Fprintf(&sb, "- Total: %d (%d failed, %d with no results)\n", q.Total, q.Failed, q.ZeroResults)
		modes := make([]string, 0, len(q.ByMode))
		for mode, n := range q.ByMode {
			modes = append(modes, fmt.Sprintf("%s %d", mode, n))
		}
		sort.Strings(modes)
		fmt.Fprintf(&sb, "- By mode: %s\n", strings.Join(modes, ", "))
		if len(q.TopTerms) > 0 {
			fmt.Fprintf(&sb, "- Top terms: %s\n", strings.Join(q.TopTerms, ", "))
		}
	}
	return sb.String()
}

// toQueryStatsOutput converts a metrics snapshot to the tool output format.
func toQueryStatsOutput(s *telemetry.Snapshot) *QueryStatsOutput {
	out := &QueryStatsOutput{
		Total:             s.Total,
		Failed:            s.Failed,
		ZeroResults:       s.ZeroResults,
		ByMode:            s.ByMode,
		LatencyBuckets:    make(map[string]int64, len(s.Latency)),
		RecentZeroResults: s.RecentZeroResults,
		Since:             s.Since.UTC().Format(time.RFC3339),
	}
	for bucket, n := range s.Latency {
		out.LatencyBuckets[string(bucket)] = n
	}
	for _, tc := range s.TopTerms {
		out.TopTerms = append(out.TopTerms, tc.Term)
	}
	return out
}

// resolveTopK uses the configured default when top_k is absent. An explicit
// value must lie in [1, MaxTopK]; zero is not read as "absent".
func resolveTopK(topK *int, limits search.EngineConfig) (int, error) {
	if topK == nil {
		return limits.DefaultTopK, nil
	}
	if *topK < 1 || *topK > limits.MaxTopK {
		return 0, pderrors.ValidationError(fmt.Sprintf(
			"top_k must be between 1 and %d, got %d", limits.MaxTopK, *topK), nil)
	}
	return *topK, nil
}

// ToSearchResultOutput converts a search result to the tool output format.
func ToSearchResultOutput(r *search.Result) SearchResultOutput {
	if r == nil {
		return SearchResultOutput{}
	}
	return SearchResultOutput{
		ChunkID:     r.ChunkID,
		DocumentID:  r.DocumentID,
		Source:      r.Source,
		Page:        r.Metadata[chunk.MetaPage],
		Snippet:     r.Snippet,
		Content:     r.Content,
		Score:       r.Score,
		BM25Score:   r.BM25Score,
		BM25Rank:    r.BM25Rank,
		VectorScore: r.VecScore,
		VectorRank:  r.VecRank,
		FusedScore:  r.FusedScore,
	}
}
