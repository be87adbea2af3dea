package embed

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Aman-CERP/pdfrag/internal/errors"
)

const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
)

// OllamaConfig configures an OllamaEmbedder. Zero fields take the values
// from DefaultOllamaConfig.
type OllamaConfig struct {
	Host  string
	Model string
	// Dimensions skips detection when set. Zero probes the server once.
	Dimensions int

	BatchSize     int           // texts per /api/embed call, capped at MaxBatchSize
	MaxInputChars int           // longer texts are rejected before sending
	Timeout       time.Duration // per attempt
	ProbeTimeout  time.Duration // for Available
	PoolSize      int           // idle keep-alive connections

	RequestsPerSecond float64 // 0 means unpaced
	Retry             errors.RetryConfig

	// The breaker opens after BreakerFailures transient failures in a row
	// and lets one probe through after BreakerReset.
	BreakerFailures int
	BreakerReset    time.Duration

	// SkipHealthCheck trusts Dimensions instead of probing. Tests use it.
	SkipHealthCheck bool
}

// DefaultOllamaConfig targets a local Ollama running nomic-embed-text.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:            DefaultOllamaHost,
		Model:           DefaultOllamaModel,
		BatchSize:       DefaultBatchSize,
		MaxInputChars:   DefaultMaxInputChars,
		Timeout:         DefaultTimeout,
		ProbeTimeout:    5 * time.Second,
		PoolSize:        4,
		Retry:           errors.DefaultRetryConfig(),
		BreakerFailures: 5,
		BreakerReset:    30 * time.Second,
	}
}

func (c OllamaConfig) withDefaults() OllamaConfig {
	d := DefaultOllamaConfig()
	c.Host = strings.TrimRight(cmp.Or(c.Host, d.Host), "/")
	c.Model = cmp.Or(c.Model, d.Model)
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	c.BatchSize = min(c.BatchSize, MaxBatchSize)
	if c.MaxInputChars <= 0 {
		c.MaxInputChars = d.MaxInputChars
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.PoolSize <= 0 {
		c.PoolSize = d.PoolSize
	}
	if c.Retry == (errors.RetryConfig{}) {
		c.Retry = d.Retry
	}
	return c
}

// Wire types for /api/embed and /api/tags.
type (
	embedRequest struct {
		Model string `json:"model"`
		Input any    `json:"input"` // string, or []string for a batch
	}
	embedResponse struct {
		Model      string      `json:"model"`
		Embeddings [][]float64 `json:"embeddings"`
	}
	tagsResponse struct {
		Models []modelTag `json:"models"`
	}
	modelTag struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
	}
	apiError struct {
		Error string `json:"error"`
	}
)

// OllamaEmbedder calls a local or remote Ollama server. Requests are paced
// by a token bucket, retried with backoff and guarded by a circuit breaker.
type OllamaEmbedder struct {
	cfg       OllamaConfig
	dims      int
	http      *http.Client
	transport *http.Transport

	limiter  *rate.Limiter
	breaker  *errors.Breaker
	requests atomic.Int64

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder connects to cfg.Host. Unless dimensions are given it
// embeds a probe text to learn them, so an unreachable server fails here.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	cfg = cfg.withDefaults()

	// Each attempt carries its own deadline, so the client has none.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     2 * cfg.PoolSize,
		IdleConnTimeout:     10 * time.Second,
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	e := &OllamaEmbedder{
		cfg:       cfg,
		dims:      cfg.Dimensions,
		http:      &http.Client{Transport: transport},
		transport: transport,
		limiter:   rate.NewLimiter(limit, 1),
		breaker:   errors.NewBreaker("ollama", cfg.BreakerFailures, cfg.BreakerReset),
	}

	if e.dims == 0 && !cfg.SkipHealthCheck {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		vecs, err := e.send(probeCtx, []string{"dimension probe"})
		cancel()
		if err != nil {
			transport.CloseIdleConnections()
			return nil, fmt.Errorf("detect embedding dimensions: %w", err)
		}
		e.dims = len(vecs[0])
	}
	if e.dims == 0 {
		transport.CloseIdleConnections()
		return nil, errors.ConfigError(
			"embedding dimensions unknown: set embeddings.dimensions or enable the health check", nil)
	}
	return e, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends texts in groups of BatchSize.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := validate(texts, e.cfg.MaxInputChars); err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += e.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hi := min(lo+e.cfg.BatchSize, len(texts))
		vecs, err := e.send(ctx, texts[lo:hi])
		if err != nil {
			if len(texts) == 1 {
				return nil, err
			}
			return nil, fmt.Errorf("embed texts %d-%d: %w", lo, hi, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// send posts one group with retries. Only transport errors, 429 and 5xx
// count against the breaker; any other answer proves the server is up.
func (e *OllamaEmbedder) send(ctx context.Context, texts []string) ([][]float32, error) {
	attempt := 0
	return errors.RetryWithResult(ctx, e.cfg.Retry, func() ([][]float32, error) {
		attempt++
		if err := e.breaker.Allow(); err != nil {
			return nil, err
		}
		if err := e.limiter.Wait(ctx); err != nil {
			e.breaker.Abandon()
			return nil, err
		}

		actx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
		vecs, err := e.post(actx, texts)
		switch {
		case err == nil:
			e.breaker.Success()
			return vecs, nil
		case ctx.Err() != nil:
			e.breaker.Abandon()
			return nil, ctx.Err()
		case errors.IsRetryable(err):
			e.breaker.Failure()
		default:
			e.breaker.Success()
		}
		slog.Debug("embedding_attempt_failed",
			slog.Int("attempt", attempt),
			slog.Int("texts_count", len(texts)),
			slog.String("error", err.Error()))
		return nil, err
	})
}

func (e *OllamaEmbedder) post(ctx context.Context, texts []string) ([][]float32, error) {
	e.requests.Add(1)

	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	body, err := json.Marshal(embedRequest{Model: e.cfg.Model, Input: input})
	if err != nil {
		return nil, errors.InternalError("encode embed request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid embeddings endpoint %q", e.cfg.Host), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, errors.EmbeddingUnavailableError("ollama request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.EmbeddingUnavailableError("decode ollama response", err)
	}
	if len(decoded.Embeddings) != len(texts) {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("ollama returned %d embeddings for %d texts", len(decoded.Embeddings), len(texts)), nil)
	}

	vecs := make([][]float32, len(decoded.Embeddings))
	for i, raw := range decoded.Embeddings {
		if e.dims > 0 && len(raw) != e.dims {
			return nil, errors.New(errors.ErrCodeDimensionMismatch,
				fmt.Sprintf("ollama returned %d dimensions, expected %d", len(raw), e.dims), nil)
		}
		if len(raw) == 0 {
			return nil, errors.EmbeddingUnavailableError("ollama returned an empty embedding", nil)
		}
		v := make([]float32, len(raw))
		for j, x := range raw {
			v[j] = float32(x)
		}
		vecs[i] = unit(v)
	}
	return vecs, nil
}

// statusError maps a non-200 reply: 429 and 5xx are transient, any other
// status means the input was rejected.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	var ae apiError
	if json.Unmarshal(raw, &ae) == nil && ae.Error != "" {
		msg = ae.Error
	}
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	code := fmt.Sprint(resp.StatusCode)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return errors.EmbeddingUnavailableError("ollama returned an error", cause).WithDetail("status", code)
	}
	return errors.EmbeddingInputError("ollama rejected the input", cause).WithDetail("status", code)
}

func (e *OllamaEmbedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return errors.InternalError("embedder is closed", nil)
	}
	return nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.dims }

// ModelID returns ollama:<model>@<dims>.
func (e *OllamaEmbedder) ModelID() string {
	return FormatModelID(ProviderOllama, e.cfg.Model, e.dims)
}

// Requests counts /api/embed calls, retries included.
func (e *OllamaEmbedder) Requests() int64 {
	return e.requests.Load()
}

// Available reports whether the server lists the configured model. Tags
// are compared without their ":latest" style suffix.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.checkOpen() != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}

	base := func(name string) string {
		name = strings.ToLower(name)
		if i := strings.IndexByte(name, ':'); i >= 0 {
			return name[:i]
		}
		return name
	}
	want := base(e.cfg.Model)
	for _, m := range tags.Models {
		if base(m.Name) == want {
			return true
		}
	}
	return false
}

// Close drops idle connections. It is idempotent.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		e.transport.CloseIdleConnections()
	}
	return nil
}
