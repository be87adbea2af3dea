package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap_PreservesCause(t *testing.T) {
	// Given: a cause from the sqlite driver
	cause := errors.New("database is locked")

	// When: wrapping it as a store error
	err := StoreUnavailableError("upsert chunk", cause)

	// Then: the cause is reachable through the chain
	require.NotNil(t, err)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "chunk config",
			code:     ErrCodeChunkConfig,
			message:  "overlap must be smaller than size",
			expected: "[ERR_104_CHUNK_CONFIG] overlap must be smaller than size",
		},
		{
			name:     "embedding unavailable",
			code:     ErrCodeEmbeddingUnavailable,
			message:  "connection refused",
			expected: "[ERR_304_EMBEDDING_UNAVAILABLE] connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, New(tt.code, tt.message, nil).Error())
		})
	}
}

func TestError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeSchema, "chunks table missing", nil)
	err2 := New(ErrCodeSchema, "schema version 0", nil)
	err3 := New(ErrCodeStoreUnavailable, "locked", nil)

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestError_WithDetailAndSuggestion(t *testing.T) {
	err := New(ErrCodeFileNotFound, "file not found", nil).
		WithDetail("path", "/papers/a.pdf").
		WithSuggestion("check the path")

	assert.Equal(t, "/papers/a.pdf", err.Details["path"])
	assert.Equal(t, "check the path", err.Suggestion)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"chunk config", ChunkConfigError("bad"), KindConfiguration},
		{"config invalid", ConfigError("bad", nil), KindConfiguration},
		{"embedding input", EmbeddingInputError("empty", nil), KindEmbeddingInput},
		{"embedding unavailable", EmbeddingUnavailableError("down", nil), KindEmbeddingUnavailable},
		{"circuit open", ErrCircuitOpen, KindEmbeddingUnavailable},
		{"store unavailable", StoreUnavailableError("locked", nil), KindStoreUnavailable},
		{"schema", SchemaError("missing", nil), KindSchema},
		{"space mismatch", EmbeddingSpaceMismatchError("a", "b"), KindEmbeddingSpaceMismatch},
		{"validation", ValidationError("bad top_k", nil), KindValidation},
		{"empty query", New(ErrCodeQueryEmpty, "empty", nil), KindValidation},
		{"not found", NotFoundError("doc"), KindNotFound},
		{"wrapped", fmt.Errorf("search: %w", SchemaError("x", nil)), KindSchema},
		{"plain error", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestSeverityAndRetryableFromCode(t *testing.T) {
	tests := []struct {
		code          string
		wantSeverity  Severity
		wantRetryable bool
	}{
		{ErrCodeSchema, SeverityFatal, false},
		{ErrCodeEmbeddingSpaceMismatch, SeverityFatal, false},
		{ErrCodeChunkConfig, SeverityFatal, false},
		{ErrCodeEmbeddingUnavailable, SeverityWarning, true},
		{ErrCodeStoreUnavailable, SeverityWarning, true},
		{ErrCodeNetworkTimeout, SeverityWarning, true},
		{ErrCodeCircuitOpen, SeverityError, false},
		{ErrCodeEmbeddingInput, SeverityError, false},
		{ErrCodeInvalidInput, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestCategoryFromCode(t *testing.T) {
	assert.Equal(t, CategoryConfig, New(ErrCodeFusionConfig, "", nil).Category)
	assert.Equal(t, CategoryIO, New(ErrCodeSchema, "", nil).Category)
	assert.Equal(t, CategoryNetwork, New(ErrCodeStoreUnavailable, "", nil).Category)
	assert.Equal(t, CategoryValidation, New(ErrCodeEmbeddingInput, "", nil).Category)
	assert.Equal(t, CategoryInternal, New(ErrCodeIndexFailed, "", nil).Category)
	assert.Equal(t, CategoryInternal, New("bad", "", nil).Category)
	assert.Equal(t, CategoryInternal, New("XYZ_123", "", nil).Category)
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))

	cause := errors.New("something went wrong")
	err := Wrap(ErrCodeInternal, cause)

	require.NotNil(t, err)
	assert.Equal(t, ErrCodeInternal, err.Code)
	assert.Equal(t, "something went wrong", err.Message)
	assert.Equal(t, cause, err.Cause)
}

func TestIsRetryable_FollowsWrappedChain(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"retryable", EmbeddingUnavailableError("down", nil), true},
		{"wrapped retryable", fmt.Errorf("embed batch 3: %w", StoreUnavailableError("busy", nil)), true},
		{"permanent", EmbeddingInputError("too long", nil), false},
		{"standard", errors.New("standard"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(SchemaError("gone", nil)))
	assert.True(t, IsFatal(fmt.Errorf("open: %w", EmbeddingSpaceMismatchError("a", "b"))))
	assert.False(t, IsFatal(StoreUnavailableError("busy", nil)))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestGetCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", ValidationError("bad", nil))

	assert.Equal(t, ErrCodeInvalidInput, GetCode(err))
	assert.Equal(t, "", GetCode(errors.New("plain")))
}

func TestUnlistedCodesTakeCategoryDefaults(t *testing.T) {
	assert.Equal(t, KindValidation, New(ErrCodeInvalidPath, "", nil).Kind())
	assert.Equal(t, KindInternal, New(ErrCodeIndexFailed, "", nil).Kind())
	assert.Equal(t, KindInternal, New(ErrCodeExtractFailed, "", nil).Kind())
	assert.Equal(t, KindEmbeddingUnavailable, New("ERR_399_SOMETHING", "", nil).Kind())
	assert.False(t, New("ERR_399_SOMETHING", "", nil).Retryable)
}

func TestEmbeddingSpaceMismatchError_CarriesModels(t *testing.T) {
	err := EmbeddingSpaceMismatchError("ollama:nomic@768", "static:fnv@256")

	assert.Contains(t, err.Message, "ollama:nomic@768")
	assert.Equal(t, "static:fnv@256", err.Details["embedder_model"])
	assert.NotEmpty(t, err.Suggestion)
}
