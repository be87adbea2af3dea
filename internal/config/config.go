package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/pdfrag/internal/errors"
)

const (
	// ProjectConfigName is the per-project configuration file.
	ProjectConfigName = ".pdfrag.yaml"

	// DataDirName is the default index directory inside the project root.
	DataDirName = ".pdfrag"

	// envPrefix prefixes every environment override.
	envPrefix = "PDFRAG_"
)

// Config represents the complete pdfrag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Retry      RetryConfig      `yaml:"retry" json:"retry"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" (default) or "static" (offline hashing embedder).
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	// Endpoint is the Ollama API base URL.
	Endpoint   string `yaml:"endpoint" json:"endpoint"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"` // 0 = detect from the model
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"` // query embedding LRU entries, 0 disables
	// RequestsPerSecond paces calls to the embedding endpoint. 0 disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	// MaxInputChars rejects longer inputs before they reach the endpoint.
	MaxInputChars int `yaml:"max_input_chars" json:"max_input_chars"`
}

// StoreConfig configures the index store.
type StoreConfig struct {
	// Backend is "sqlite" (default, durable) or "memory" (ephemeral).
	Backend string `yaml:"backend" json:"backend"`
	// DataDir holds index files. Empty means <project>/.pdfrag.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// ExactSearchThreshold is the corpus size at or below which vector
	// search scans every embedding instead of using the HNSW graph.
	ExactSearchThreshold int `yaml:"exact_search_threshold" json:"exact_search_threshold"`
	SQLiteCacheMB        int `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
	// SQLiteReadConns sizes the read-only connection pool used by searches.
	SQLiteReadConns int `yaml:"sqlite_read_conns" json:"sqlite_read_conns"`
}

// ChunkingConfig configures passage splitting, in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size" json:"size"`
	Overlap int `yaml:"overlap" json:"overlap"`
}

// SearchConfig configures hybrid search parameters.
// Weights are normalized by the engine and need not sum to 1.
type SearchConfig struct {
	BM25Weight   float64 `yaml:"bm25_weight" json:"bm25_weight"`
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`

	// RRFConstant is the RRF fusion smoothing parameter (k). It is
	// recorded in the index when the index is created.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	DefaultTopK int `yaml:"default_top_k" json:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k" json:"max_top_k"`

	// FetchMultiplier controls hybrid over-fetch: each mode asks for
	// FetchMultiplier * top_k candidates before fusion.
	FetchMultiplier int `yaml:"fetch_multiplier" json:"fetch_multiplier"`
}

// IndexConfig configures the ingestion pipeline.
type IndexConfig struct {
	Workers int `yaml:"workers" json:"workers"`
	// Exclude lists gitignore-style patterns, relative to the project
	// root, for PDFs left out of directory walks. Patterns in
	// .pdfragignore are applied after these.
	Exclude       []string `yaml:"exclude" json:"exclude"`
	Watch         bool     `yaml:"watch" json:"watch"`
	WatchDebounce string   `yaml:"watch_debounce" json:"watch_debounce"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport      string        `yaml:"transport" json:"transport"`
	LogLevel       string        `yaml:"log_level" json:"log_level"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// RetryConfig bounds retries of transient embedding and store failures.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Embeddings: EmbeddingsConfig{
			Provider:          "ollama",
			Model:             "nomic-embed-text",
			Endpoint:          "http://localhost:11434",
			Dimensions:        0,
			BatchSize:         32,
			CacheSize:         1000,
			RequestsPerSecond: 0,
			MaxInputChars:     8192,
		},
		Store: StoreConfig{
			Backend:              "sqlite",
			DataDir:              "",
			ExactSearchThreshold: 5000,
			SQLiteCacheMB:        64,
			SQLiteReadConns:      4,
		},
		Chunking: ChunkingConfig{
			Size:    1500,
			Overlap: 300,
		},
		Search: SearchConfig{
			BM25Weight:      0.5,
			VectorWeight:    0.5,
			RRFConstant:     60, // k=60 as used by OpenSearch and Azure AI Search
			DefaultTopK:     5,
			MaxTopK:         100,
			FetchMultiplier: 2,
		},
		Index: IndexConfig{
			Workers:       runtime.NumCPU(),
			Watch:         false,
			WatchDebounce: "500ms",
		},
		Server: ServerConfig{
			Transport:      "stdio",
			LogLevel:       "info",
			RequestTimeout: 30 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     8 * time.Second,
		},
	}
}

// RetryPolicy converts the retry section into an errors.RetryConfig.
func (c *Config) RetryPolicy() errors.RetryConfig {
	return errors.RetryConfig{
		MaxRetries:   c.Retry.MaxRetries,
		InitialDelay: c.Retry.InitialDelay,
		MaxDelay:     c.Retry.MaxDelay,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// ResolveDataDir returns the index directory for a project root.
func (c *Config) ResolveDataDir(root string) string {
	if c.Store.DataDir == "" {
		return filepath.Join(root, DataDirName)
	}
	if filepath.IsAbs(c.Store.DataDir) {
		return c.Store.DataDir
	}
	return filepath.Join(root, c.Store.DataDir)
}

// WatchDebounceDuration parses Index.WatchDebounce, falling back to 500ms.
func (c *Config) WatchDebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Index.WatchDebounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// UserConfigPath is the per-user settings file,
// $XDG_CONFIG_HOME/pdfrag/config.yaml or ~/.config/pdfrag/config.yaml.
func UserConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "pdfrag", "config.yaml")
}

// layerFiles lists the settings files that exist for a project, lowest
// precedence first. Only the first of .pdfrag.yaml and .pdfrag.yml is used.
func layerFiles(dir string) []string {
	var files []string
	if user := UserConfigPath(); fileExists(user) {
		files = append(files, user)
	}
	for _, name := range []string{ProjectConfigName, ".pdfrag.yml"} {
		if p := filepath.Join(dir, name); fileExists(p) {
			return append(files, p)
		}
	}
	return files
}

// Load builds the configuration for the project rooted at dir. Defaults are
// overlaid by the user file, then the project file, then PDFRAG_*
// environment variables. The result is validated.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()
	for _, path := range layerFiles(dir) {
		layer, err := readLayer(path)
		if err != nil {
			return nil, err
		}
		cfg.mergeWith(layer)
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func readLayer(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.ErrCodeConfigPermission, "cannot read config file "+path, err)
	}
	var layer Config
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return nil, errors.ConfigError("cannot parse config file "+path, err)
	}
	return &layer, nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Endpoint != "" {
		c.Embeddings.Endpoint = other.Embeddings.Endpoint
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.RequestsPerSecond != 0 {
		c.Embeddings.RequestsPerSecond = other.Embeddings.RequestsPerSecond
	}
	if other.Embeddings.MaxInputChars != 0 {
		c.Embeddings.MaxInputChars = other.Embeddings.MaxInputChars
	}

	// Store
	if other.Store.Backend != "" {
		c.Store.Backend = other.Store.Backend
	}
	if other.Store.DataDir != "" {
		c.Store.DataDir = other.Store.DataDir
	}
	if other.Store.ExactSearchThreshold != 0 {
		c.Store.ExactSearchThreshold = other.Store.ExactSearchThreshold
	}
	if other.Store.SQLiteCacheMB != 0 {
		c.Store.SQLiteCacheMB = other.Store.SQLiteCacheMB
	}
	if other.Store.SQLiteReadConns != 0 {
		c.Store.SQLiteReadConns = other.Store.SQLiteReadConns
	}

	// Chunking
	if other.Chunking.Size != 0 {
		c.Chunking.Size = other.Chunking.Size
	}
	if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}

	// Search
	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.DefaultTopK != 0 {
		c.Search.DefaultTopK = other.Search.DefaultTopK
	}
	if other.Search.MaxTopK != 0 {
		c.Search.MaxTopK = other.Search.MaxTopK
	}
	if other.Search.FetchMultiplier != 0 {
		c.Search.FetchMultiplier = other.Search.FetchMultiplier
	}

	// Index
	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}
	if len(other.Index.Exclude) > 0 {
		c.Index.Exclude = other.Index.Exclude
	}
	if other.Index.Watch {
		c.Index.Watch = true
	}
	if other.Index.WatchDebounce != "" {
		c.Index.WatchDebounce = other.Index.WatchDebounce
	}

	// Server
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.RequestTimeout != 0 {
		c.Server.RequestTimeout = other.Server.RequestTimeout
	}

	// Retry
	if other.Retry.MaxRetries != 0 {
		c.Retry.MaxRetries = other.Retry.MaxRetries
	}
	if other.Retry.InitialDelay != 0 {
		c.Retry.InitialDelay = other.Retry.InitialDelay
	}
	if other.Retry.MaxDelay != 0 {
		c.Retry.MaxDelay = other.Retry.MaxDelay
	}
}

// applyEnvOverrides applies PDFRAG_* environment variable overrides.
// Unparseable values are ignored and the previous value is kept.
func (c *Config) applyEnvOverrides() {
	str := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v := os.Getenv(envPrefix + name); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	float := func(name string, dst *float64) {
		if v := os.Getenv(envPrefix + name); v != "" {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				*dst = f
			}
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v := os.Getenv(envPrefix + name); v != "" {
			if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
				*dst = d
			}
		}
	}

	str("EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	str("EMBEDDINGS_MODEL", &c.Embeddings.Model)
	str("EMBEDDINGS_ENDPOINT", &c.Embeddings.Endpoint)
	// PDFRAG_OLLAMA_HOST is an alias for PDFRAG_EMBEDDINGS_ENDPOINT
	str("OLLAMA_HOST", &c.Embeddings.Endpoint)
	integer("EMBEDDINGS_BATCH_SIZE", &c.Embeddings.BatchSize)
	integer("EMBEDDINGS_DIMENSIONS", &c.Embeddings.Dimensions)

	str("STORE_BACKEND", &c.Store.Backend)
	str("DATA_DIR", &c.Store.DataDir)

	integer("CHUNK_SIZE", &c.Chunking.Size)
	integer("CHUNK_OVERLAP", &c.Chunking.Overlap)

	// Explicit zero weights are honored here, unlike in YAML merging.
	float("BM25_WEIGHT", &c.Search.BM25Weight)
	float("VECTOR_WEIGHT", &c.Search.VectorWeight)
	integer("RRF_CONSTANT", &c.Search.RRFConstant)
	integer("DEFAULT_TOP_K", &c.Search.DefaultTopK)

	integer("INDEX_WORKERS", &c.Index.Workers)
	if v := os.Getenv(envPrefix + "WATCH"); v != "" {
		c.Index.Watch = strings.EqualFold(v, "true") || v == "1"
	}

	str("LOG_LEVEL", &c.Server.LogLevel)
	duration("REQUEST_TIMEOUT", &c.Server.RequestTimeout)

	integer("MAX_RETRIES", &c.Retry.MaxRetries)
}

// FindProjectRoot finds the project root directory.
// It walks up from startDir looking for .pdfrag.yaml, a .pdfrag index
// directory, or a .git directory. If none is found, startDir itself is
// returned.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	if !dirExists(absDir) {
		return "", fmt.Errorf("directory does not exist: %s", absDir)
	}

	currentDir := absDir
	for {
		if fileExists(filepath.Join(currentDir, ProjectConfigName)) ||
			dirExists(filepath.Join(currentDir, DataDirName)) ||
			dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		parent := filepath.Dir(currentDir)
		if parent == currentDir {
			return absDir, nil
		}
		currentDir = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
// Chunking and fusion problems are reported as configuration errors so
// they surface at startup.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 || c.Chunking.Overlap <= 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return errors.ChunkConfigError(fmt.Sprintf(
			"chunking.size (%d) and chunking.overlap (%d) must be positive with overlap < size",
			c.Chunking.Size, c.Chunking.Overlap))
	}

	if c.Search.BM25Weight < 0 || c.Search.VectorWeight < 0 {
		return errors.New(errors.ErrCodeFusionConfig, fmt.Sprintf(
			"search weights must be non-negative, got bm25=%g vector=%g",
			c.Search.BM25Weight, c.Search.VectorWeight), nil)
	}
	if c.Search.BM25Weight+c.Search.VectorWeight == 0 {
		return errors.New(errors.ErrCodeFusionConfig, "search weights must not both be zero", nil)
	}
	if c.Search.RRFConstant <= 0 {
		return errors.New(errors.ErrCodeFusionConfig,
			fmt.Sprintf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant), nil)
	}
	if c.Search.DefaultTopK <= 0 || c.Search.MaxTopK < c.Search.DefaultTopK {
		return errors.ConfigError(fmt.Sprintf(
			"search.default_top_k (%d) must be positive and not exceed search.max_top_k (%d)",
			c.Search.DefaultTopK, c.Search.MaxTopK), nil)
	}
	if c.Search.FetchMultiplier < 1 {
		return errors.ConfigError("search.fetch_multiplier must be at least 1", nil)
	}

	validProviders := map[string]bool{"ollama": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return errors.ConfigError(fmt.Sprintf(
			"embeddings.provider must be 'ollama' or 'static', got %q", c.Embeddings.Provider), nil)
	}
	if c.Embeddings.Model == "" {
		return errors.ConfigError("embeddings.model must not be empty", nil)
	}
	if c.Embeddings.BatchSize <= 0 || c.Embeddings.BatchSize > 512 {
		return errors.ConfigError(fmt.Sprintf(
			"embeddings.batch_size must be between 1 and 512, got %d", c.Embeddings.BatchSize), nil)
	}
	if c.Embeddings.Dimensions < 0 || c.Embeddings.CacheSize < 0 || c.Embeddings.RequestsPerSecond < 0 {
		return errors.ConfigError("embeddings dimensions, cache_size and requests_per_second must be non-negative", nil)
	}

	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if !validBackends[strings.ToLower(c.Store.Backend)] {
		return errors.ConfigError(fmt.Sprintf(
			"store.backend must be 'sqlite' or 'memory', got %q", c.Store.Backend), nil)
	}

	if c.Index.Workers <= 0 {
		return errors.ConfigError(fmt.Sprintf("index.workers must be positive, got %d", c.Index.Workers), nil)
	}

	if !strings.EqualFold(c.Server.Transport, "stdio") {
		return errors.ConfigError(fmt.Sprintf("server.transport must be 'stdio', got %q", c.Server.Transport), nil)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return errors.ConfigError(fmt.Sprintf(
			"server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel), nil)
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.ConfigError("server.request_timeout must be positive", nil)
	}

	if c.Retry.MaxRetries < 0 || c.Retry.InitialDelay < 0 || c.Retry.MaxDelay < c.Retry.InitialDelay {
		return errors.ConfigError("retry settings must be non-negative with max_delay >= initial_delay", nil)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
