package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	text        TEXT NOT NULL,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	ingested_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	ordinal     INTEGER NOT NULL,
	char_offset INTEGER NOT NULL,
	content     TEXT NOT NULL,
	metadata    TEXT NOT NULL,
	embedding   BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

-- chunk_id is stored but not searchable; content holds pre-analyzed tokens
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	chunk_id UNINDEXED,
	content,
	tokenize='unicode61'
);
`

// SQLiteStore is the durable IndexStore: chunk rows, embeddings and an FTS5
// index in one SQLite file. Each upsert is a single transaction, so a chunk
// is never visible with only one of its lexical and vector halves.
//
// Writes go through one connection. Reads use a separate pool of read-only
// connections; under WAL each read statement sees the last committed
// snapshot and never waits for a writer. A private in-memory database has
// no WAL and cannot be shared across connections, so there reads use the
// writer's connection.
type SQLiteStore struct {
	db             *sql.DB // writer, one connection
	read           *sql.DB // readers; db itself when in memory
	path           string
	meta           IndexMeta
	stopWords      map[string]struct{}
	exactThreshold int
	closed         atomic.Bool

	// writeMu orders graph updates with commits. A reader takes it only
	// while building the graph.
	writeMu sync.Mutex
	graphMu sync.Mutex
	graph   *vectorGraph // nil until the first approximate search
}

// Verify interface implementation at compile time
var _ IndexStore = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the index at opts.Path.
func OpenSQLite(ctx context.Context, opts Options) (*SQLiteStore, error) {
	path := opts.Path
	inMemory := path == "" || path == ":memory:"

	dsn := ":memory:"
	if !inMemory {
		if _, err := os.Stat(path); os.IsNotExist(err) && opts.ReadOnly {
			return nil, pderrors.SchemaError(fmt.Sprintf("no index at %s", path), nil).
				WithSuggestion("Build one with 'pdfrag index <dir>'")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, pderrors.New(pderrors.ErrCodeFilePermission,
				fmt.Sprintf("failed to create directory %s", filepath.Dir(path)), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, dbError("open database", err)
	}

	// Single connection: one writer, and required for a shared :memory: db.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	cacheMB := opts.CacheMB
	if cacheMB <= 0 {
		cacheMB = 64
	}
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", cacheMB*1024),
		"PRAGMA temp_store = MEMORY",
	}
	if !inMemory {
		// modernc.org/sqlite ignores DSN journal params; WAL must be a PRAGMA.
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, dbError("set pragma", err)
		}
	}

	threshold := opts.ExactSearchThreshold
	if threshold <= 0 {
		threshold = DefaultExactSearchThreshold
	}

	s := &SQLiteStore{
		db:             db,
		read:           db,
		path:           path,
		stopWords:      BuildStopWordMap(DefaultStopWords),
		exactThreshold: threshold,
	}

	meta, err := s.initMeta(ctx, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.meta = meta

	if !inMemory {
		read, err := openReadPool(ctx, path, cacheMB, opts.ReadConns)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		s.read = read
	}

	slog.Debug("index_opened",
		slog.String("path", path),
		slog.String("model_id", meta.ModelID),
		slog.Int("chunk_size", meta.ChunkSize),
		slog.Int("overlap", meta.ChunkOverlap))

	return s, nil
}

// openReadPool opens query-only connections to an existing WAL database.
// Per-connection pragmas go in the DSN so every pooled connection gets them.
func openReadPool(ctx context.Context, path string, cacheMB, conns int) (*sql.DB, error) {
	if conns <= 0 {
		conns = DefaultReadConns
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=query_only(1)&_pragma=cache_size(-%d)",
		path, cacheMB*1024)
	read, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, dbError("open read pool", err)
	}
	read.SetMaxOpenConns(conns)
	read.SetMaxIdleConns(conns)
	read.SetConnMaxLifetime(0)
	if err := read.PingContext(ctx); err != nil {
		_ = read.Close()
		return nil, dbError("open read pool", err)
	}
	return read, nil
}

func (s *SQLiteStore) checkOpen() error {
	if s.closed.Load() {
		return errClosed
	}
	return nil
}

// initMeta creates the schema for a new index, or validates an existing one.
func (s *SQLiteStore) initMeta(ctx context.Context, opts Options) (IndexMeta, error) {
	var tables int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='index_meta'`).Scan(&tables)
	if err != nil {
		if strings.Contains(err.Error(), "not a database") {
			return IndexMeta{}, pderrors.New(pderrors.ErrCodeCorruptIndex,
				fmt.Sprintf("%s is not a SQLite database", s.path), err)
		}
		return IndexMeta{}, dbError("read schema", err)
	}

	if tables == 0 {
		return s.createIndex(ctx, opts)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return IndexMeta{}, dbError("read index_meta", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return IndexMeta{}, dbError("read index_meta", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return IndexMeta{}, dbError("read index_meta", err)
	}

	stored, err := metaFromMap(values)
	if err != nil {
		return IndexMeta{}, err
	}
	if err := checkMeta(stored, opts.Meta); err != nil {
		return IndexMeta{}, err
	}
	return stored, nil
}

func (s *SQLiteStore) createIndex(ctx context.Context, opts Options) (IndexMeta, error) {
	if opts.ReadOnly {
		return IndexMeta{}, pderrors.SchemaError(fmt.Sprintf("%s is not a pdfrag index", s.path), nil)
	}

	var other int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table'`).Scan(&other); err != nil {
		return IndexMeta{}, dbError("read schema", err)
	}
	if other > 0 {
		return IndexMeta{}, pderrors.SchemaError(
			fmt.Sprintf("%s has tables but no index_meta; refusing to reuse it", s.path), nil)
	}

	meta, err := prepareNewMeta(opts.Meta)
	if err != nil {
		return IndexMeta{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return IndexMeta{}, dbError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, sqliteSchema); err != nil {
		return IndexMeta{}, dbError("create schema", err)
	}
	for k, v := range meta.toMap() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO index_meta(key, value) VALUES (?, ?)`, k, v); err != nil {
			return IndexMeta{}, dbError("write index_meta", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return IndexMeta{}, dbError("commit schema", err)
	}

	slog.Info("index_created",
		slog.String("path", s.path),
		slog.String("model_id", meta.ModelID),
		slog.Int("dimensions", meta.Dimensions))
	return meta, nil
}

// Upsert inserts or replaces one chunk.
func (s *SQLiteStore) Upsert(ctx context.Context, chunk *Chunk) error {
	return s.UpsertChunks(ctx, []*Chunk{chunk})
}

// UpsertChunks inserts or replaces chunks in one transaction. The vector
// graph, when built, is updated after commit.
func (s *SQLiteStore) UpsertChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if err := s.validateChunk(c); err != nil {
			return err
		}
	}

	if err := s.checkOpen(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 virtual tables don't support REPLACE, so delete first.
	deleteFTS, err := tx.PrepareContext(ctx, `DELETE FROM chunks_fts WHERE chunk_id = ?`)
	if err != nil {
		return dbError("prepare fts delete", err)
	}
	defer deleteFTS.Close()

	insertFTS, err := tx.PrepareContext(ctx, `INSERT INTO chunks_fts(chunk_id, content) VALUES (?, ?)`)
	if err != nil {
		return dbError("prepare fts insert", err)
	}
	defer insertFTS.Close()

	upsertChunk, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks(id, document_id, ordinal, char_offset, content, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			ordinal     = excluded.ordinal,
			char_offset = excluded.char_offset,
			content     = excluded.content,
			metadata    = excluded.metadata,
			embedding   = excluded.embedding`)
	if err != nil {
		return dbError("prepare chunk upsert", err)
	}
	defer upsertChunk.Close()

	for _, c := range chunks {
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return pderrors.InternalError("failed to encode chunk metadata", err)
		}
		if _, err := upsertChunk.ExecContext(ctx, c.ID, c.DocumentID, c.Ordinal, c.Offset,
			c.Content, string(metaJSON), encodeVector(c.Embedding)); err != nil {
			return dbError("upsert chunk "+c.ID, err)
		}
		if _, err := deleteFTS.ExecContext(ctx, c.ID); err != nil {
			return dbError("delete fts row "+c.ID, err)
		}
		lexical := strings.Join(analyze(c.Content, s.stopWords), " ")
		if _, err := insertFTS.ExecContext(ctx, c.ID, lexical); err != nil {
			return dbError("insert fts row "+c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError("commit chunks", err)
	}

	if g := s.builtGraph(); g != nil {
		for _, c := range chunks {
			g.Add(c.ID, c.Embedding)
		}
	}
	return nil
}

func (s *SQLiteStore) validateChunk(c *Chunk) error {
	if c == nil || c.ID == "" || c.DocumentID == "" {
		return pderrors.ValidationError("chunk needs an id and a document id", nil)
	}
	if len(c.Embedding) != s.meta.Dimensions {
		return pderrors.New(pderrors.ErrCodeDimensionMismatch, fmt.Sprintf(
			"chunk %s has %d dimensions, index has %d", c.ID, len(c.Embedding), s.meta.Dimensions), nil)
	}
	return nil
}

// UpsertDocument inserts or replaces a document record.
func (s *SQLiteStore) UpsertDocument(ctx context.Context, doc *Document) error {
	if doc == nil || doc.ID == "" {
		return pderrors.ValidationError("document needs an id", nil)
	}
	ingested := doc.IngestedAt
	if ingested.IsZero() {
		ingested = time.Now().UTC()
	}

	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents(id, source, text, chunk_count, ingested_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source      = excluded.source,
			text        = excluded.text,
			chunk_count = excluded.chunk_count,
			ingested_at = excluded.ingested_at`,
		doc.ID, doc.Source, doc.Text, doc.ChunkCount, ingested.UTC().Format(time.RFC3339Nano))
	return dbError("upsert document "+doc.ID, err)
}

// DeleteByDocument removes a document, its chunks and their FTS rows in
// one transaction.
func (s *SQLiteStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, dbError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	ids, err := queryStrings(ctx, tx, `SELECT id FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, dbError("list chunks of "+documentID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks_fts WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)`,
		documentID); err != nil {
		return 0, dbError("delete fts rows", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return 0, dbError("delete chunks", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID); err != nil {
		return 0, dbError("delete document", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, dbError("commit delete", err)
	}

	if g := s.builtGraph(); g != nil && len(ids) > 0 {
		g.Delete(ids...)
	}
	return len(ids), nil
}

// SearchLexical ranks chunks with FTS5 bm25(). The query goes through the
// same analysis as indexed content; a query with no indexable terms
// matches nothing.
func (s *SQLiteStore) SearchLexical(ctx context.Context, query string, topK int) ([]*LexicalResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	tokens := analyze(query, s.stopWords)
	if len(tokens) == 0 || topK <= 0 {
		return []*LexicalResult{}, nil
	}

	// bm25() is lower-is-better; negate it so higher is better.
	rows, err := s.read.QueryContext(ctx, `
		SELECT chunks_fts.chunk_id, c.document_id, bm25(chunks_fts) AS score
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.chunk_id
		WHERE chunks_fts MATCH ?
		ORDER BY score, chunks_fts.chunk_id
		LIMIT ?`, ftsMatchQuery(tokens), topK)
	if err != nil {
		return nil, dbError("lexical search", err)
	}
	defer rows.Close()

	results := make([]*LexicalResult, 0, topK)
	for rows.Next() {
		var r LexicalResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Score); err != nil {
			return nil, dbError("scan lexical result", err)
		}
		r.Score = -r.Score
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("lexical search", err)
	}
	sortByScore(results)
	return results, nil
}

// SearchVector ranks chunks by cosine similarity. Small corpora are scanned
// exactly; larger ones take HNSW candidates and rescore them against the
// committed embeddings.
func (s *SQLiteStore) SearchVector(ctx context.Context, vector []float32, topK int) ([]*VectorResult, error) {
	if len(vector) != s.meta.Dimensions {
		return nil, pderrors.New(pderrors.ErrCodeDimensionMismatch, fmt.Sprintf(
			"query vector has %d dimensions, index has %d", len(vector), s.meta.Dimensions), nil)
	}

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []*VectorResult{}, nil
	}

	var count int
	if err := s.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return nil, dbError("count chunks", err)
	}
	if count == 0 {
		return []*VectorResult{}, nil
	}

	if count <= s.exactThreshold || topK >= count {
		return s.scanVectors(ctx, vector, topK, `SELECT id, document_id, embedding FROM chunks`)
	}

	graph, err := s.loadGraph(ctx)
	if err != nil {
		return nil, err
	}
	candidates := graph.Candidates(vector, topK)
	if len(candidates) == 0 {
		return []*VectorResult{}, nil
	}
	args := make([]any, len(candidates))
	for i, id := range candidates {
		args[i] = id
	}
	return s.scanVectors(ctx, vector, topK,
		`SELECT id, document_id, embedding FROM chunks WHERE id IN (`+placeholders(len(candidates))+`)`,
		args...)
}

// scanVectors scores every row of q exactly and keeps the best topK.
func (s *SQLiteStore) scanVectors(ctx context.Context, vector []float32, topK int, q string, args ...any) ([]*VectorResult, error) {
	rows, err := s.read.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, dbError("vector search", err)
	}
	defer rows.Close()

	var results []*VectorResult
	for rows.Next() {
		var (
			r    VectorResult
			blob []byte
		)
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &blob); err != nil {
			return nil, dbError("scan vector", err)
		}
		emb, err := decodeVector(blob)
		if err != nil {
			return nil, pderrors.New(pderrors.ErrCodeCorruptIndex, "corrupt embedding for "+r.ChunkID, err)
		}
		r.Score = cosine(vector, emb)
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("vector search", err)
	}

	sortByScore(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// builtGraph returns the graph, or nil before the first approximate search.
func (s *SQLiteStore) builtGraph() *vectorGraph {
	s.graphMu.Lock()
	defer s.graphMu.Unlock()
	return s.graph
}

// loadGraph builds the HNSW graph from persisted embeddings on first use.
// Writers are held off while it reads, so no commit lands between the
// snapshot and the graph becoming visible to them.
func (s *SQLiteStore) loadGraph(ctx context.Context) (*vectorGraph, error) {
	if g := s.builtGraph(); g != nil {
		return g, nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.graphMu.Lock()
	defer s.graphMu.Unlock()
	if s.graph != nil {
		return s.graph, nil
	}

	start := time.Now()
	g := newVectorGraph(s.meta.Dimensions)

	rows, err := s.read.QueryContext(ctx, `SELECT id, embedding FROM chunks`)
	if err != nil {
		return nil, dbError("load embeddings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, dbError("load embeddings", err)
		}
		emb, err := decodeVector(blob)
		if err != nil {
			return nil, pderrors.New(pderrors.ErrCodeCorruptIndex, "corrupt embedding for "+id, err)
		}
		g.Add(id, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("load embeddings", err)
	}

	s.graph = g
	slog.Debug("vector_graph_built",
		slog.Int("vectors", g.Len()),
		slog.Duration("duration", time.Since(start)))
	return g, nil
}

// GetChunks returns chunks in request order, skipping unknown ids.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.read.QueryContext(ctx, `
		SELECT id, document_id, ordinal, char_offset, content, metadata, embedding
		FROM chunks WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, dbError("get chunks", err)
	}
	defer rows.Close()

	byID := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		var (
			c        Chunk
			metaJSON string
			blob     []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Offset, &c.Content, &metaJSON, &blob); err != nil {
			return nil, dbError("scan chunk", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
			return nil, pderrors.New(pderrors.ErrCodeCorruptIndex, "corrupt metadata for "+c.ID, err)
		}
		if c.Embedding, err = decodeVector(blob); err != nil {
			return nil, pderrors.New(pderrors.ErrCodeCorruptIndex, "corrupt embedding for "+c.ID, err)
		}
		byID[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("get chunks", err)
	}

	out := make([]*Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetDocument returns a document with its text.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var (
		d        Document
		ingested string
	)
	err := s.read.QueryRowContext(ctx,
		`SELECT id, source, text, chunk_count, ingested_at FROM documents WHERE id = ?`, id).
		Scan(&d.ID, &d.Source, &d.Text, &d.ChunkCount, &ingested)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pderrors.NotFoundError(fmt.Sprintf("document %q is not indexed", id))
	}
	if err != nil {
		return nil, dbError("get document", err)
	}
	d.IngestedAt, _ = time.Parse(time.RFC3339Nano, ingested)
	return &d, nil
}

// ListDocuments returns all documents without their text.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.read.QueryContext(ctx,
		`SELECT id, source, chunk_count, ingested_at FROM documents ORDER BY id`)
	if err != nil {
		return nil, dbError("list documents", err)
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		var (
			d        Document
			ingested string
		)
		if err := rows.Scan(&d.ID, &d.Source, &d.ChunkCount, &ingested); err != nil {
			return nil, dbError("scan document", err)
		}
		d.IngestedAt, _ = time.Parse(time.RFC3339Nano, ingested)
		docs = append(docs, &d)
	}
	return docs, dbError("list documents", rows.Err())
}

// Stats reports document and chunk counts and the file size.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	st := &Stats{Path: s.path}
	if err := s.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&st.Documents); err != nil {
		return nil, dbError("count documents", err)
	}
	if err := s.read.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&st.Chunks); err != nil {
		return nil, dbError("count chunks", err)
	}
	if s.path != "" && s.path != ":memory:" {
		st.SizeBytes = fileSize(s.path)
	}
	return st, nil
}

// Meta returns the configuration recorded at index creation.
func (s *SQLiteStore) Meta() IndexMeta {
	return s.meta
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes both pools. Idempotent. Calls still
// in flight finish first.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var readErr error
	if s.read != s.db {
		readErr = s.read.Close()
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return stderrors.Join(s.db.Close(), readErr)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryStrings(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

var errClosed = pderrors.InternalError("index store is closed", nil)

// dbError classifies a database failure. Lock contention and timeouts are
// transient; cancellation is passed through untouched.
func dbError(op string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return pderrors.StoreUnavailableError(op+": timed out", err)
	}
	if stderrors.Is(err, sql.ErrConnDone) {
		return errClosed
	}
	msg := err.Error()
	if strings.Contains(msg, "database is closed") {
		return errClosed
	}
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") {
		return pderrors.StoreUnavailableError(op+": database is busy", err)
	}
	if strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "unable to open database") {
		return pderrors.StoreUnavailableError(op+": "+msg, err)
	}
	return pderrors.New(pderrors.ErrCodeIndexFailed, op+" failed", err)
}
