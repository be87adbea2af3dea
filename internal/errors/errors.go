package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is a coded pdfrag error. Category, Severity and Retryable follow
// from Code; Details and Suggestion are added where the error is raised.
type Error struct {
	Code       string
	Message    string
	Category   Category
	Severity   Severity
	Retryable  bool
	Details    map[string]string
	Suggestion string
	Cause      error
}

func (e *Error) Error() string {
	return "[" + e.Code + "] " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Kind returns the caller-facing class of the code.
func (e *Error) Kind() Kind {
	return lookup(e.Code).kind
}

// WithDetail records key=value and returns e.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets the hint shown to users and returns e.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates an Error with the attributes implied by code.
func New(code string, message string, cause error) *Error {
	info := lookup(code)
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  info.severity,
		Retryable: info.retryable,
		Cause:     cause,
	}
}

// Wrap turns err into an Error carrying err's message. Nil stays nil.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ChunkConfigError reports invalid chunk size or overlap.
func ChunkConfigError(message string) *Error {
	return New(ErrCodeChunkConfig, message, nil).
		WithSuggestion("chunk size and overlap must be positive with overlap < size")
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *Error {
	return New(ErrCodeInvalidInput, message, cause)
}

// EmbeddingInputError reports input the embedding service will never accept.
func EmbeddingInputError(message string, cause error) *Error {
	return New(ErrCodeEmbeddingInput, message, cause)
}

// EmbeddingUnavailableError reports a transient embedding service failure.
func EmbeddingUnavailableError(message string, cause error) *Error {
	return New(ErrCodeEmbeddingUnavailable, message, cause).
		WithSuggestion("Check that the embedding service is running, or use --offline")
}

// StoreUnavailableError reports a transient index store failure.
func StoreUnavailableError(message string, cause error) *Error {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// SchemaError reports a missing or incompatible index.
func SchemaError(message string, cause error) *Error {
	return New(ErrCodeSchema, message, cause).
		WithSuggestion("Rebuild the index with 'pdfrag index --force'")
}

// EmbeddingSpaceMismatchError reports an index built with a different embedding model.
func EmbeddingSpaceMismatchError(indexModel, queryModel string) *Error {
	return New(ErrCodeEmbeddingSpaceMismatch,
		fmt.Sprintf("index was built with %s but the embedder is %s", indexModel, queryModel), nil).
		WithDetail("index_model", indexModel).
		WithDetail("embedder_model", queryModel).
		WithSuggestion("Use the same embedding model, or rebuild the index")
}

// NotFoundError reports a missing document or chunk.
func NotFoundError(message string) *Error {
	return New(ErrCodeNotFound, message, nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if err == nil || !stderrors.As(err, &e) {
		return nil, false
	}
	return e, true
}

// IsRetryable reports whether the first *Error in err's chain is transient.
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable
}

// IsFatal reports whether retrying err later cannot help, as with a
// schema or embedding space mismatch.
func IsFatal(err error) bool {
	e, ok := As(err)
	return ok && e.Severity == SeverityFatal
}

// GetCode returns the code of the first *Error in err's chain, or "".
func GetCode(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// KindOf returns the caller-facing kind of err. Uncoded errors are
// internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind()
	}
	return KindInternal
}
