package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/pdfrag/internal/config"
	"github.com/Aman-CERP/pdfrag/internal/errors"
)

// ProviderType names an embedding backend in configuration and model ids.
type ProviderType string

const (
	ProviderOllama ProviderType = "ollama"
	// ProviderStatic hashes text locally; selected with --offline.
	ProviderStatic ProviderType = "static"
)

var providers = []ProviderType{ProviderOllama, ProviderStatic}

// ParseProvider normalizes a configured provider name. Empty means Ollama.
func ParseProvider(s string) ProviderType {
	p := ProviderType(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return ProviderOllama
	}
	return p
}

func (p ProviderType) String() string { return string(p) }

// NewEmbedder builds the configured provider. An unreachable Ollama is an
// error; nothing falls back to the static embedder on its own. A positive
// embeddings.cache_size wraps the result in an LRU cache.
func NewEmbedder(ctx context.Context, cfg *config.Config) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch p := ParseProvider(cfg.Embeddings.Provider); p {
	case ProviderStatic:
		e = NewStaticEmbedder()
	case ProviderOllama:
		e, err = NewOllamaEmbedder(ctx, ollamaConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("ollama unavailable at %s: %w", endpoint(cfg), err)
		}
	default:
		names := make([]string, len(providers))
		for i, v := range providers {
			names[i] = v.String()
		}
		return nil, errors.ConfigError(fmt.Sprintf("unknown embeddings provider %q (valid: %s)",
			cfg.Embeddings.Provider, strings.Join(names, ", ")), nil)
	}

	slog.Debug("embedder_created",
		slog.String("model_id", e.ModelID()),
		slog.Int("cache_size", cfg.Embeddings.CacheSize))
	if n := cfg.Embeddings.CacheSize; n > 0 {
		return NewCachedEmbedder(e, n), nil
	}
	return e, nil
}

// ollamaConfig overlays the embeddings and server settings on the defaults.
func ollamaConfig(cfg *config.Config) OllamaConfig {
	ec := cfg.Embeddings
	oc := DefaultOllamaConfig()
	oc.Host = endpoint(cfg)
	if ec.Model != "" {
		oc.Model = ec.Model
	}
	oc.Dimensions = ec.Dimensions
	if ec.BatchSize > 0 {
		oc.BatchSize = ec.BatchSize
	}
	if ec.MaxInputChars > 0 {
		oc.MaxInputChars = ec.MaxInputChars
	}
	if cfg.Server.RequestTimeout > 0 {
		oc.Timeout = cfg.Server.RequestTimeout
	}
	oc.RequestsPerSecond = ec.RequestsPerSecond
	oc.Retry = cfg.RetryPolicy()
	return oc
}

func endpoint(cfg *config.Config) string {
	if cfg.Embeddings.Endpoint != "" {
		return cfg.Embeddings.Endpoint
	}
	return DefaultOllamaHost
}
