package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/pdfrag/internal/chunk"
	"github.com/Aman-CERP/pdfrag/internal/config"
	"github.com/Aman-CERP/pdfrag/internal/embed"
	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
	"github.com/Aman-CERP/pdfrag/internal/ignore"
	"github.com/Aman-CERP/pdfrag/internal/index"
	"github.com/Aman-CERP/pdfrag/internal/search"
	"github.com/Aman-CERP/pdfrag/internal/store"
	"github.com/Aman-CERP/pdfrag/internal/telemetry"
)

// app holds the components one command needs, wired from configuration.
type app struct {
	root      string
	dataDir   string
	indexPath string
	cfg       *config.Config
	logger    *slog.Logger

	embedder embed.Embedder
	store    store.IndexStore
	engine   *search.Engine
	ingester *index.Ingester
	excludes *ignore.Matcher
	metrics  *telemetry.QueryMetrics
}

// openOptions selects what openApp builds.
type openOptions struct {
	// readOnly refuses to create a missing index.
	readOnly bool
	// reset deletes the index for this configuration before opening it.
	reset bool
	// ingest builds an Ingester holding the data directory write lock.
	ingest bool
	// waitForLock lets ingest runs wait up to server.request_timeout for
	// another writer instead of failing at once.
	waitForLock bool
	ingestOpts  []index.Option
}

// loadConfig resolves the project root and loads its configuration.
func (o *globalOptions) loadConfig() (string, *config.Config, error) {
	root, err := config.FindProjectRoot(o.root)
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return "", nil, err
	}
	if o.offline {
		cfg.Embeddings.Provider = string(embed.ProviderStatic)
	}
	o.applyLogLevel(cfg.Server.LogLevel)
	return root, cfg, nil
}

// openApp builds the embedder, the index for the configured embedding space
// and chunking, and the search engine.
func (o *globalOptions) openApp(ctx context.Context, oo openOptions) (*app, error) {
	root, cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := o.log()

	embedder, err := embed.NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	dataDir := cfg.ResolveDataDir(root)
	indexPath := store.IndexPath(dataDir, embedder.ModelID(), cfg.Chunking.Size, cfg.Chunking.Overlap)
	if oo.reset {
		if err := removeIndex(dataDir, indexPath); err != nil {
			_ = embedder.Close()
			return nil, err
		}
		logger.Info("index_reset", slog.String("index", indexPath))
	}
	st, err := store.Open(ctx, store.Options{
		Backend: cfg.Store.Backend,
		Path:    indexPath,
		Meta: store.IndexMeta{
			ModelID:      embedder.ModelID(),
			Dimensions:   embedder.Dimensions(),
			ChunkSize:    cfg.Chunking.Size,
			ChunkOverlap: cfg.Chunking.Overlap,
			Fusion:       store.FusionRRF,
			RRFConstant:  cfg.Search.RRFConstant,
		},
		ReadOnly:             oo.readOnly,
		ExactSearchThreshold: cfg.Store.ExactSearchThreshold,
		CacheMB:              cfg.Store.SQLiteCacheMB,
		ReadConns:            cfg.Store.SQLiteReadConns,
	})
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	a := &app{
		root:      root,
		dataDir:   dataDir,
		indexPath: indexPath,
		cfg:       cfg,
		logger:    logger,
		embedder:  embedder,
		store:     st,
		metrics:   telemetry.NewQueryMetrics(telemetry.DefaultConfig()),
	}

	a.engine, err = search.NewEngine(st, embedder, search.ConfigFromSettings(cfg),
		search.WithLogger(logger),
		search.WithMetrics(a.metrics))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	if oo.ingest {
		chunker, err := chunk.NewWindowChunker(cfg.Chunking.Size, cfg.Chunking.Overlap)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.excludes, err = ignore.Load(root, cfg.Index.Exclude)
		if err != nil {
			_ = a.Close()
			return nil, pderrors.ConfigError(fmt.Sprintf("cannot read %s", ignore.FileName), err)
		}
		opts := append([]index.Option{
			index.WithLock(store.NewFileLock(dataDir)),
			index.WithIgnore(root, a.excludes),
			index.WithWorkers(cfg.Index.Workers),
			index.WithBatchSize(cfg.Embeddings.BatchSize),
			index.WithTimeout(cfg.Server.RequestTimeout),
			index.WithRetry(cfg.RetryPolicy()),
			index.WithLogger(logger),
		}, oo.ingestOpts...)
		if oo.waitForLock {
			opts = append(opts, index.WithLockWait(cfg.Server.RequestTimeout))
		}
		a.ingester, err = index.NewIngester(st, embedder, chunker, opts...)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	logger.Info("app_opened",
		slog.String("root", root),
		slog.String("index", indexPath),
		slog.String("model_id", embedder.ModelID()),
		slog.String("backend", cfg.Store.Backend))
	return a, nil
}

// Close releases the store and the embedder.
func (a *app) Close() error {
	if c, ok := a.embedder.(*embed.CachedEmbedder); ok {
		st := c.Stats()
		a.logger.Debug("embed_cache_stats",
			slog.Int64("hits", st.Hits),
			slog.Int64("misses", st.Misses),
			slog.Int("size", st.Size))
	}
	var firstErr error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			firstErr = err
		}
	}
	if a.embedder != nil {
		if err := a.embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// removeIndex deletes the index file for the current configuration while
// holding the write lock, so a running ingest is never cut off.
func removeIndex(dataDir, indexPath string) error {
	lock := store.NewFileLock(dataDir)
	ok, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return pderrors.StoreUnavailableError(fmt.Sprintf(
			"index %s is being written by another process", filepath.Base(indexPath)), nil)
	}
	defer func() { _ = lock.Unlock() }()

	for _, p := range []string{indexPath, indexPath + "-wal", indexPath + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}
