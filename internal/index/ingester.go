// Package index runs the write path: PDF text extraction, cleaning,
// chunking, batched embedding and upsert into the index store.
package index

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/pdfrag/internal/chunk"
	"github.com/Aman-CERP/pdfrag/internal/embed"
	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
	"github.com/Aman-CERP/pdfrag/internal/ignore"
	"github.com/Aman-CERP/pdfrag/internal/pdf"
	"github.com/Aman-CERP/pdfrag/internal/store"
)

// PDFExt is the extension of files picked up from directories.
const PDFExt = ".pdf"

// Extractor returns the page text of a PDF file.
type Extractor interface {
	Extract(ctx context.Context, path string) (*pdf.Result, error)
}

// TextDocument is caller-supplied text indexed without extraction.
type TextDocument struct {
	ID     string
	Source string // Defaults to ID
	Text   string
}

// Failure describes one document that could not be indexed.
type Failure struct {
	DocumentID string        `json:"document_id,omitempty"`
	Source     string        `json:"source"`
	Code       string        `json:"code"`
	Kind       pderrors.Kind `json:"kind"`
	Message    string        `json:"message"`
}

// IndexedDocument is one document written by a run.
type IndexedDocument struct {
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Chunks     int    `json:"chunks"`
}

// Report summarizes an indexing run.
type Report struct {
	RunID     string
	Documents int // Documents indexed successfully
	Chunks    int // Chunks written
	Indexed   []IndexedDocument
	Failures  []Failure
	Duration  time.Duration
}

// Progress is called as each document finishes, successfully or not.
// It may be called from several goroutines.
type Progress func(doc IndexedDocument, err error)

// Ingester indexes documents into one store. Runs are serialized.
type Ingester struct {
	store     store.IndexStore
	embedder  embed.Embedder
	chunker   *chunk.WindowChunker
	extractor Extractor
	lock      *store.FileLock
	lockWait  time.Duration

	ignoreRoot string
	excludes   *ignore.Matcher

	workers   int
	batchSize int
	timeout   time.Duration
	retry     pderrors.RetryConfig
	logger    *slog.Logger
	progress  Progress

	mu sync.Mutex
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithExtractor replaces the pdftotext extractor.
func WithExtractor(e Extractor) Option {
	return func(i *Ingester) { i.extractor = e }
}

// WithLock takes the cross-process write lock for the duration of each run.
func WithLock(l *store.FileLock) Option {
	return func(i *Ingester) { i.lock = l }
}

// WithLockWait lets a run wait up to d for another writer to release the
// lock. The default, zero, fails at once.
func WithLockWait(d time.Duration) Option {
	return func(i *Ingester) { i.lockWait = d }
}

// WithIgnore excludes PDFs matched by m from directory walks. Paths are
// matched relative to root; files outside root are never excluded.
func WithIgnore(root string, m *ignore.Matcher) Option {
	return func(i *Ingester) {
		i.ignoreRoot = root
		i.excludes = m
	}
}

// WithWorkers sets how many documents are processed at once.
func WithWorkers(n int) Option {
	return func(i *Ingester) {
		if n > 0 {
			i.workers = n
		}
	}
}

// WithBatchSize sets the number of chunks per embedding request.
func WithBatchSize(n int) Option {
	return func(i *Ingester) {
		if n > 0 {
			i.batchSize = min(n, embed.MaxBatchSize)
		}
	}
}

// WithTimeout bounds each store call.
func WithTimeout(d time.Duration) Option {
	return func(i *Ingester) { i.timeout = d }
}

// WithRetry sets the retry policy for transient store failures.
func WithRetry(cfg pderrors.RetryConfig) Option {
	return func(i *Ingester) { i.retry = cfg }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(i *Ingester) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithProgress registers a per-document callback.
func WithProgress(p Progress) Option {
	return func(i *Ingester) { i.progress = p }
}

// NewIngester creates an Ingester writing to st.
// The embedder and chunker must match the configuration st was created with.
func NewIngester(st store.IndexStore, embedder embed.Embedder, chunker *chunk.WindowChunker, opts ...Option) (*Ingester, error) {
	if st == nil || embedder == nil || chunker == nil {
		return nil, pderrors.InternalError("ingester needs a store, an embedder and a chunker", nil)
	}

	meta := st.Meta()
	if meta.ModelID != "" && meta.ModelID != embedder.ModelID() {
		return nil, pderrors.EmbeddingSpaceMismatchError(meta.ModelID, embedder.ModelID())
	}
	if meta.ChunkSize > 0 && (meta.ChunkSize != chunker.Size() || meta.ChunkOverlap != chunker.Overlap()) {
		return nil, pderrors.ChunkConfigError(fmt.Sprintf(
			"index was built with chunk size %d and overlap %d, got %d and %d",
			meta.ChunkSize, meta.ChunkOverlap, chunker.Size(), chunker.Overlap()))
	}

	ing := &Ingester{
		store:     st,
		embedder:  embedder,
		chunker:   chunker,
		extractor: pdf.New(),
		workers:   runtime.NumCPU(),
		batchSize: embed.DefaultBatchSize,
		timeout:   embed.DefaultTimeout,
		retry:     pderrors.DefaultRetryConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing, nil
}

// ChunkSize returns the chunk size this ingester writes.
func (i *Ingester) ChunkSize() int { return i.chunker.Size() }

// Overlap returns the chunk overlap this ingester writes.
func (i *Ingester) Overlap() int { return i.chunker.Overlap() }

// ModelID returns the embedding space this ingester writes.
func (i *Ingester) ModelID() string { return i.embedder.ModelID() }

// job is one document waiting to be indexed.
type job struct {
	id     string
	source string
	load   func(ctx context.Context) (text string, pageOffsets []int, err error)
}

// IndexFiles indexes PDF files. Directories are walked recursively for
// *.pdf files, leaving out ignored paths; files named directly are always
// indexed. Each document id is the file name without its extension.
// Unreadable paths and per-document errors are reported as failures; the
// returned error is reserved for run-level problems and cancellation.
func (i *Ingester) IndexFiles(ctx context.Context, paths []string) (*Report, error) {
	files, skipped, failures := collectPDFs(paths, i.ignored)
	if skipped > 0 {
		i.logger.Debug("index_paths_ignored", slog.Int("count", skipped))
	}

	jobs := make([]job, 0, len(files))
	seen := make(map[string]string, len(files))
	for _, path := range files {
		id := DocumentIDFromPath(path)
		source := filepath.Base(path)
		if prev, ok := seen[id]; ok {
			failures = append(failures, failureFor(id, source, pderrors.ValidationError(
				fmt.Sprintf("document id %q is already used by %s", id, prev), nil)))
			continue
		}
		seen[id] = path

		jobs = append(jobs, job{
			id:     id,
			source: source,
			load: func(ctx context.Context) (string, []int, error) {
				res, err := i.extractor.Extract(ctx, path)
				if err != nil {
					return "", nil, err
				}
				text, offsets := chunk.CleanPages(res.Pages)
				return text, offsets, nil
			},
		})
	}

	return i.run(ctx, jobs, failures)
}

// IndexTexts indexes documents whose text is already available.
func (i *Ingester) IndexTexts(ctx context.Context, docs []TextDocument) (*Report, error) {
	var failures []Failure
	jobs := make([]job, 0, len(docs))
	seen := make(map[string]bool, len(docs))

	for _, d := range docs {
		id := strings.TrimSpace(d.ID)
		source := d.Source
		if source == "" {
			source = id
		}
		if id == "" {
			failures = append(failures, failureFor("", source,
				pderrors.ValidationError("document needs an id", nil)))
			continue
		}
		if seen[id] {
			failures = append(failures, failureFor(id, source,
				pderrors.ValidationError(fmt.Sprintf("document id %q appears more than once", id), nil)))
			continue
		}
		seen[id] = true

		text := d.Text
		jobs = append(jobs, job{
			id:     id,
			source: source,
			load: func(context.Context) (string, []int, error) {
				return chunk.CleanText(text), nil, nil
			},
		})
	}

	return i.run(ctx, jobs, failures)
}

func (i *Ingester) run(ctx context.Context, jobs []job, failures []Failure) (*Report, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	start := time.Now()
	report := &Report{RunID: uuid.NewString(), Failures: failures}
	logger := i.logger.With(slog.String("run_id", report.RunID))

	if i.lock != nil {
		if err := i.lock.Acquire(ctx, i.lockWait); err != nil {
			return nil, err
		}
		defer func() { _ = i.lock.Unlock() }()
	}

	logger.Info("ingest_started",
		slog.Int("documents", len(jobs)),
		slog.Int("workers", i.workers),
		slog.String("model", i.embedder.ModelID()))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(i.workers)

	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			n, err := i.ingestOne(ctx, j)
			doc := IndexedDocument{DocumentID: j.id, Source: j.source, Chunks: n}
			if i.progress != nil {
				i.progress(doc, err)
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Documents++
				report.Chunks += n
				report.Indexed = append(report.Indexed, doc)
			case ctx.Err() != nil && stderrors.Is(err, ctx.Err()):
				// The run was cancelled; not a document failure.
			default:
				f := failureFor(j.id, j.source, err)
				report.Failures = append(report.Failures, f)
				logger.Warn("ingest_document_failed",
					slog.String("document_id", j.id),
					slog.String("code", f.Code),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Indexed, func(a, b int) bool {
		return report.Indexed[a].DocumentID < report.Indexed[b].DocumentID
	})
	report.Duration = time.Since(start)

	logger.Info("ingest_complete",
		slog.Int("documents", report.Documents),
		slog.Int("chunks", report.Chunks),
		slog.Int("failures", len(report.Failures)),
		slog.Int64("duration_ms", report.Duration.Milliseconds()))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// ingestOne indexes a single document and returns its chunk count.
func (i *Ingester) ingestOne(ctx context.Context, j job) (int, error) {
	text, offsets, err := j.load(ctx)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, pderrors.New(pderrors.ErrCodeExtractFailed,
			fmt.Sprintf("no text found in %s", j.source), nil).
			WithSuggestion("Scanned PDFs need OCR before they can be indexed")
	}

	chunks, err := i.chunker.Chunk(ctx, &chunk.Document{
		ID:          j.id,
		Source:      j.source,
		Text:        text,
		PageOffsets: offsets,
	})
	if err != nil {
		return 0, err
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += i.batchSize {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		end := min(start+i.batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		// The embedder owns retries for its calls.
		batch, err := i.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, err
		}
		if len(batch) != len(texts) {
			return 0, pderrors.InternalError(fmt.Sprintf(
				"embedder returned %d vectors for %d texts", len(batch), len(texts)), nil)
		}
		vectors = append(vectors, batch...)
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// A shorter new version would leave stale trailing chunks behind.
	if prev, err := i.store.GetDocument(ctx, j.id); err == nil && prev.ChunkCount > len(chunks) {
		if _, err := withRetry(ctx, i, pderrors.StoreUnavailableError, "delete document",
			func(ctx context.Context) (int, error) {
				return i.store.DeleteByDocument(ctx, j.id)
			}); err != nil {
			return 0, err
		}
	}

	rows := make([]*store.Chunk, len(chunks))
	for k, c := range chunks {
		rows[k] = &store.Chunk{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			Ordinal:    c.Index,
			Offset:     c.Offset,
			Content:    c.Content,
			Metadata:   c.Metadata,
			Embedding:  vectors[k],
		}
	}
	if _, err := withRetry(ctx, i, pderrors.StoreUnavailableError, "upsert chunks",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, i.store.UpsertChunks(ctx, rows)
		}); err != nil {
		return 0, err
	}

	doc := &store.Document{
		ID:         j.id,
		Source:     j.source,
		Text:       text,
		ChunkCount: len(chunks),
		IngestedAt: time.Now().UTC(),
	}
	if _, err := withRetry(ctx, i, pderrors.StoreUnavailableError, "upsert document",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, i.store.UpsertDocument(ctx, doc)
		}); err != nil {
		return 0, err
	}

	i.logger.Debug("ingest_document_complete",
		slog.String("document_id", j.id),
		slog.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// withRetry runs fn under the per-call timeout with the ingester's retry
// policy. A per-call timeout becomes the retryable error built by unavailable.
func withRetry[T any](
	ctx context.Context,
	i *Ingester,
	unavailable func(string, error) *pderrors.Error,
	op string,
	fn func(context.Context) (T, error),
) (T, error) {
	onTimeout := func(err error) error {
		return unavailable(fmt.Sprintf("%s timed out after %s", op, i.timeout), err)
	}
	return pderrors.RetryWithTimeout(ctx, i.retry, i.timeout, onTimeout, fn)
}

// DocumentIDFromPath returns the document id for a PDF: its file name
// without extension.
func DocumentIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsPDF reports whether path has a .pdf extension, in any case.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), PDFExt)
}

// ignored reports whether a walked path is excluded by the ignore patterns.
func (i *Ingester) ignored(path string, isDir bool) bool {
	if i.excludes == nil {
		return false
	}
	rel, err := filepath.Rel(i.ignoreRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return i.excludes.Ignored(rel, isDir)
}

// collectPDFs expands paths into a sorted, de-duplicated list of PDF files.
// Hidden directories below a walked root are skipped, as is anything skip
// reports. The second result counts skipped entries.
func collectPDFs(paths []string, skip func(path string, isDir bool) bool) ([]string, int, []Failure) {
	var failures []Failure
	set := make(map[string]struct{})
	skipped := 0

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			failures = append(failures, failureFor("", p, pderrors.New(pderrors.ErrCodeFileNotFound,
				fmt.Sprintf("cannot read %s", p), err)))
			continue
		}

		if !info.IsDir() {
			if !IsPDF(p) {
				failures = append(failures, failureFor("", p, pderrors.New(pderrors.ErrCodeInvalidPath,
					fmt.Sprintf("%s is not a PDF file", p), nil)))
				continue
			}
			set[filepath.Clean(p)] = struct{}{}
			continue
		}

		walkErr := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				failures = append(failures, failureFor("", path, pderrors.New(pderrors.ErrCodeFilePermission,
					fmt.Sprintf("cannot read %s", path), err)))
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path == p {
					return nil
				}
				if strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				if skip != nil && skip(path, true) {
					skipped++
					return filepath.SkipDir
				}
				return nil
			}
			if !IsPDF(path) {
				return nil
			}
			if skip != nil && skip(path, false) {
				skipped++
				return nil
			}
			set[filepath.Clean(path)] = struct{}{}
			return nil
		})
		if walkErr != nil {
			failures = append(failures, failureFor("", p, pderrors.Wrap(pderrors.ErrCodeFilePermission, walkErr)))
		}
	}

	files := make([]string, 0, len(set))
	for f := range set {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, skipped, failures
}

func failureFor(id, source string, err error) Failure {
	code := pderrors.GetCode(err)
	if code == "" {
		code = pderrors.ErrCodeIndexFailed
	}
	msg := err.Error()
	if e, ok := pderrors.As(err); ok {
		msg = e.Message
	}
	return Failure{
		DocumentID: id,
		Source:     source,
		Code:       code,
		Kind:       pderrors.KindOf(err),
		Message:    msg,
	}
}
