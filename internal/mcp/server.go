package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/pdfrag/internal/config"
	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
	"github.com/Aman-CERP/pdfrag/internal/index"
	"github.com/Aman-CERP/pdfrag/internal/search"
	"github.com/Aman-CERP/pdfrag/internal/store"
	"github.com/Aman-CERP/pdfrag/internal/telemetry"
	"github.com/Aman-CERP/pdfrag/pkg/version"
)

// ServerName is the implementation name reported to MCP clients.
const ServerName = "pdfrag"

// Searcher answers search queries. *search.Engine implements it.
type Searcher interface {
	Search(ctx context.Context, q search.Query) ([]*search.Result, error)
}

// DocumentIndexer writes documents into the index. *index.Ingester implements it.
type DocumentIndexer interface {
	IndexFiles(ctx context.Context, paths []string) (*index.Report, error)
	IndexTexts(ctx context.Context, docs []index.TextDocument) (*index.Report, error)
	ChunkSize() int
	Overlap() int
	ModelID() string
}

// Server is the MCP server for pdfrag.
// It exposes keyword, semantic and hybrid search over indexed PDFs and
// an ingest tool to agents.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	indexer  DocumentIndexer
	store    store.IndexStore
	limits   search.EngineConfig
	logger   *slog.Logger

	// rootPath resolves relative paths given to index_documents
	rootPath string
	metrics  *telemetry.QueryMetrics
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRootPath sets the directory relative index_documents paths resolve against.
func WithRootPath(root string) Option {
	return func(s *Server) { s.rootPath = root }
}

// WithMetrics reports m's query statistics from index_status.
func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new MCP server.
func NewServer(searcher Searcher, indexer DocumentIndexer, st store.IndexStore, cfg *config.Config, opts ...Option) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("search engine is required")
	}
	if indexer == nil {
		return nil, errors.New("document indexer is required")
	}
	if st == nil {
		return nil, errors.New("index store is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		searcher: searcher,
		indexer:  indexer,
		store:    st,
		limits:   search.ConfigFromSettings(cfg),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools
	)
	s.registerTools()
	s.registerResources()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

var toolDescriptions = []ToolInfo{
	{
		Name:        ToolSearchBM25,
		Description: "Keyword search over indexed PDF passages, ranked by BM25. Best for exact terms, names, acronyms and numbers.",
	},
	{
		Name:        ToolSearchVector,
		Description: "Semantic search over indexed PDF passages, ranked by embedding cosine similarity. Best for paraphrased or conceptual questions.",
	},
	{
		Name:        ToolSearchHybrid,
		Description: "Hybrid search combining keyword and semantic rankings with weighted reciprocal rank fusion. The default choice when unsure.",
	},
	{
		Name:        ToolIndexDocuments,
		Description: "Index PDF files or directories (paths), or documents given as text. Re-indexing a document replaces its passages.",
	},
	{
		Name:        ToolGetDocument,
		Description: "Return the full extracted text of an indexed document by id.",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Report document and passage counts, the embedding model and the chunking and fusion configuration of the index.",
	},
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(toolDescriptions))
	copy(out, toolDescriptions)
	return out
}

func toolDescription(name string) string {
	for _, t := range toolDescriptions {
		if t.Name == name {
			return t.Description
		}
	}
	return ""
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSearchBM25, Description: toolDescription(ToolSearchBM25)}, s.mcpSearchBM25Handler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSearchVector, Description: toolDescription(ToolSearchVector)}, s.mcpSearchVectorHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSearchHybrid, Description: toolDescription(ToolSearchHybrid)}, s.mcpSearchHybridHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndexDocuments, Description: toolDescription(ToolIndexDocuments)}, s.mcpIndexDocumentsHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolGetDocument, Description: toolDescription(ToolGetDocument)}, s.mcpGetDocumentHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndexStatus, Description: toolDescription(ToolIndexStatus)}, s.mcpIndexStatusHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(toolDescriptions)))
}

// CallTool invokes a tool by name with JSON-style arguments and returns its
// structured output. It runs the same handlers as the MCP transport.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSearchBM25, ToolSearchVector:
		var in SearchInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		out, _, err := s.handleSearch(ctx, name, modeForTool(name), HybridSearchInput{Query: in.Query, TopK: in.TopK})
		return toolOutput(out, err)
	case ToolSearchHybrid:
		var in HybridSearchInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		out, _, err := s.handleSearch(ctx, name, search.ModeHybrid, in)
		return toolOutput(out, err)
	case ToolIndexDocuments:
		var in IndexDocumentsInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		out, err := s.handleIndexDocuments(ctx, in)
		return toolOutput(out, err)
	case ToolGetDocument:
		var in GetDocumentInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		out, err := s.handleGetDocument(ctx, in)
		return toolOutput(out, err)
	case ToolIndexStatus:
		out, err := s.handleIndexStatus(ctx)
		return toolOutput(out, err)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// toolOutput keeps a failed call from returning a typed nil.
func toolOutput[T any](out *T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeArgs converts loosely typed arguments into a tool input struct.
func decodeArgs(args map[string]any, into any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError("arguments are not valid JSON")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

func modeForTool(name string) search.Mode {
	switch name {
	case ToolSearchBM25:
		return search.ModeBM25
	case ToolSearchVector:
		return search.ModeVector
	default:
		return search.ModeHybrid
	}
}

// handleSearch validates and runs one search tool call.
func (s *Server) handleSearch(ctx context.Context, tool string, mode search.Mode, in HybridSearchInput) (*SearchOutput, []*search.Result, error) {
	start := time.Now()
	requestID := generateRequestID()

	topK, err := resolveTopK(in.TopK, s.limits)
	if err != nil {
		return nil, nil, s.fail(tool, requestID, start, err)
	}
	q := search.Query{Text: in.Query, Mode: mode, TopK: topK}
	if in.BM25Weight != nil || in.VectorWeight != nil {
		w := s.limits.DefaultWeights
		if in.BM25Weight != nil {
			w.BM25 = *in.BM25Weight
		}
		if in.VectorWeight != nil {
			w.Vector = *in.VectorWeight
		}
		q.Weights = &w
	}
	if err := q.Validate(s.limits); err != nil {
		return nil, nil, s.fail(tool, requestID, start, err)
	}

	s.logger.Info("tool_started",
		slog.String("request_id", requestID),
		slog.String("tool", tool),
		slog.Int("top_k", q.TopK))

	results, err := s.searcher.Search(ctx, q)
	if err != nil {
		return nil, nil, s.fail(tool, requestID, start, err)
	}

	out := &SearchOutput{
		Query:   q.Text,
		Mode:    string(q.Mode),
		Count:   len(results),
		Results: make([]SearchResultOutput, 0, len(results)),
	}
	for _, r := range results {
		out.Results = append(out.Results, ToSearchResultOutput(r))
	}

	s.logger.Info("tool_complete",
		slog.String("request_id", requestID),
		slog.String("tool", tool),
		slog.Int("result_count", len(results)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return out, results, nil
}

// handleIndexDocuments checks the requested configuration against the
// index and runs an ingest.
func (s *Server) handleIndexDocuments(ctx context.Context, in IndexDocumentsInput) (*IndexDocumentsOutput, error) {
	start := time.Now()
	requestID := generateRequestID()
	tool := ToolIndexDocuments

	if (len(in.Paths) == 0) == (len(in.Documents) == 0) {
		return nil, s.fail(tool, requestID, start,
			pderrors.ValidationError("provide either paths or documents", nil))
	}
	if err := s.checkIndexConfig(in); err != nil {
		return nil, s.fail(tool, requestID, start, err)
	}

	s.logger.Info("tool_started",
		slog.String("request_id", requestID),
		slog.String("tool", tool),
		slog.Int("paths", len(in.Paths)),
		slog.Int("documents", len(in.Documents)))

	var (
		report *index.Report
		err    error
	)
	if len(in.Paths) > 0 {
		report, err = s.indexer.IndexFiles(ctx, s.resolvePaths(in.Paths))
	} else {
		docs := make([]index.TextDocument, len(in.Documents))
		for i, d := range in.Documents {
			docs[i] = index.TextDocument{ID: d.ID, Source: d.Source, Text: d.Text}
		}
		report, err = s.indexer.IndexTexts(ctx, docs)
	}
	if err != nil {
		return nil, s.fail(tool, requestID, start, err)
	}

	out := &IndexDocumentsOutput{
		RunID:            report.RunID,
		DocumentsIndexed: report.Documents,
		ChunksIndexed:    report.Chunks,
		Documents:        report.Indexed,
		Failures:         report.Failures,
		DurationMS:       report.Duration.Milliseconds(),
	}
	if out.Documents == nil {
		out.Documents = []index.IndexedDocument{}
	}
	if out.Failures == nil {
		out.Failures = []index.Failure{}
	}
	sort.SliceStable(out.Failures, func(a, b int) bool { return out.Failures[a].Source < out.Failures[b].Source })

	s.logger.Info("tool_complete",
		slog.String("request_id", requestID),
		slog.String("tool", tool),
		slog.String("run_id", report.RunID),
		slog.Int("documents", report.Documents),
		slog.Int("chunks", report.Chunks),
		slog.Int("failures", len(report.Failures)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return out, nil
}

// checkIndexConfig rejects overrides that would mix configurations in one index.
func (s *Server) checkIndexConfig(in IndexDocumentsInput) error {
	if in.ChunkSize != 0 && in.ChunkSize != s.indexer.ChunkSize() {
		return pderrors.ChunkConfigError(fmt.Sprintf(
			"chunk_size %d differs from the index chunk size %d", in.ChunkSize, s.indexer.ChunkSize()))
	}
	if in.Overlap != 0 && in.Overlap != s.indexer.Overlap() {
		return pderrors.ChunkConfigError(fmt.Sprintf(
			"overlap %d differs from the index overlap %d", in.Overlap, s.indexer.Overlap()))
	}
	if in.EmbeddingModel != "" && in.EmbeddingModel != s.indexer.ModelID() {
		return pderrors.ConfigError(fmt.Sprintf(
			"embedding_model %q differs from the index model %q", in.EmbeddingModel, s.indexer.ModelID()), nil)
	}
	return nil
}

func (s *Server) resolvePaths(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if s.rootPath != "" && !filepath.IsAbs(p) {
			p = filepath.Join(s.rootPath, p)
		}
		out[i] = p
	}
	return out
}

// handleGetDocument returns a document's full text.
func (s *Server) handleGetDocument(ctx context.Context, in GetDocumentInput) (*GetDocumentOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	id := strings.TrimSpace(in.DocumentID)
	if id == "" {
		return nil, s.fail(ToolGetDocument, requestID, start,
			pderrors.ValidationError("document_id is required", nil))
	}

	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, s.fail(ToolGetDocument, requestID, start, err)
	}

	s.logger.Info("tool_complete",
		slog.String("request_id", requestID),
		slog.String("tool", ToolGetDocument),
		slog.String("document_id", id),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return &GetDocumentOutput{
		DocumentID: doc.ID,
		Source:     doc.Source,
		ChunkCount: doc.ChunkCount,
		IngestedAt: doc.IngestedAt.UTC().Format(time.RFC3339),
		Text:       doc.Text,
	}, nil
}

// handleIndexStatus reports index statistics and configuration.
func (s *Server) handleIndexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, s.fail(ToolIndexStatus, requestID, start, err)
	}
	meta := s.store.Meta()

	out := &IndexStatusOutput{
		Documents:      stats.Documents,
		Chunks:         stats.Chunks,
		IndexSizeBytes: stats.SizeBytes,
		IndexPath:      stats.Path,
		ModelID:        meta.ModelID,
		Dimensions:     meta.Dimensions,
		ChunkSize:      meta.ChunkSize,
		ChunkOverlap:   meta.ChunkOverlap,
		Fusion:         meta.Fusion,
		RRFConstant:    meta.RRFConstant,
		SchemaVersion:  meta.SchemaVersion,
	}
	if !meta.CreatedAt.IsZero() {
		out.CreatedAt = meta.CreatedAt.UTC().Format(time.RFC3339)
	}
	if s.metrics != nil {
		out.Queries = toQueryStatsOutput(s.metrics.Snapshot())
	}

	s.logger.Debug("tool_complete",
		slog.String("request_id", requestID),
		slog.String("tool", ToolIndexStatus),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return out, nil
}

// fail logs err with its internal detail and returns the client-facing error.
func (s *Server) fail(tool, requestID string, start time.Time, err error) *MCPError {
	mapped := MapError(err)

	attrs := []any{
		slog.String("request_id", requestID),
		slog.String("tool", tool),
		slog.Int("mcp_code", mapped.Code),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	attrs = append(attrs, pderrors.LogAttrs(err)...)
	s.logger.Warn("tool_failed", attrs...)

	return mapped
}

// mcpSearchBM25Handler is the MCP SDK handler for search_bm25.
func (s *Server) mcpSearchBM25Handler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	return s.searchResult(ctx, ToolSearchBM25, search.ModeBM25, HybridSearchInput{Query: input.Query, TopK: input.TopK})
}

// mcpSearchVectorHandler is the MCP SDK handler for search_vector.
func (s *Server) mcpSearchVectorHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	return s.searchResult(ctx, ToolSearchVector, search.ModeVector, HybridSearchInput{Query: input.Query, TopK: input.TopK})
}

// mcpSearchHybridHandler is the MCP SDK handler for search_hybrid.
func (s *Server) mcpSearchHybridHandler(ctx context.Context, _ *mcp.CallToolRequest, input HybridSearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	return s.searchResult(ctx, ToolSearchHybrid, search.ModeHybrid, input)
}

func (s *Server) searchResult(ctx context.Context, tool string, mode search.Mode, input HybridSearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	out, results, err := s.handleSearch(ctx, tool, mode, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return textResult(FormatSearchResults(out.Query, mode, results)), *out, nil
}

// mcpIndexDocumentsHandler is the MCP SDK handler for index_documents.
func (s *Server) mcpIndexDocumentsHandler(ctx context.Context, _ *mcp.CallToolRequest, input IndexDocumentsInput) (
	*mcp.CallToolResult,
	IndexDocumentsOutput,
	error,
) {
	out, err := s.handleIndexDocuments(ctx, input)
	if err != nil {
		return nil, IndexDocumentsOutput{}, err
	}
	return textResult(FormatIndexReport(out)), *out, nil
}

// mcpGetDocumentHandler is the MCP SDK handler for get_document.
func (s *Server) mcpGetDocumentHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetDocumentInput) (
	*mcp.CallToolResult,
	GetDocumentOutput,
	error,
) {
	out, err := s.handleGetDocument(ctx, input)
	if err != nil {
		return nil, GetDocumentOutput{}, err
	}
	return textResult(FormatDocument(out)), *out, nil
}

// mcpIndexStatusHandler is the MCP SDK handler for index_status.
func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	out, err := s.handleIndexStatus(ctx)
	if err != nil {
		return nil, IndexStatusOutput{}, err
	}
	return textResult(FormatIndexStatus(out)), *out, nil
}

// textResult wraps markdown for clients that do not read structured output.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// Serve runs the server on the given transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped",
				slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return pderrors.ConfigError(fmt.Sprintf("unknown transport: %s (supported: stdio)", transport), nil)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	return uuid.NewString()[:8]
}
