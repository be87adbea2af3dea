// Package errors provides structured error handling for pdfrag.
//
// Codes read ERR_<n>_<NAME>. The hundreds digit of n is the category:
// 1 configuration, 2 IO and index storage, 3 remote dependencies,
// 4 validation, 5 internal.
package errors

// Category groups codes by their hundreds digit.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryNetwork    Category = "NETWORK"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity says how far a failure reaches. Fatal errors hold for every
// later attempt too; warnings are transient.
type Severity string

const (
	SeverityFatal   Severity = "FATAL"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Kind is the stable, caller-facing name of an error class. The tool
// server reports kinds; codes are finer grained.
type Kind string

const (
	KindConfiguration          Kind = "ConfigurationError"
	KindEmbeddingInput         Kind = "EmbeddingInputError"
	KindEmbeddingUnavailable   Kind = "EmbeddingUnavailableError"
	KindStoreUnavailable       Kind = "StoreUnavailableError"
	KindSchema                 Kind = "SchemaError"
	KindEmbeddingSpaceMismatch Kind = "EmbeddingSpaceMismatchError"
	KindValidation             Kind = "ValidationError"
	KindNotFound               Kind = "NotFoundError"
	KindInternal               Kind = "InternalError"
)

const (
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"
	ErrCodeConfigPermission = "ERR_103_CONFIG_PERMISSION"
	ErrCodeChunkConfig      = "ERR_104_CHUNK_CONFIG"
	ErrCodeFusionConfig     = "ERR_105_FUSION_CONFIG"

	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeCorruptIndex   = "ERR_205_CORRUPT_INDEX"
	ErrCodeSchema         = "ERR_207_SCHEMA"
	ErrCodeExtractFailed  = "ERR_208_EXTRACT_FAILED"

	ErrCodeNetworkTimeout       = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeEmbeddingUnavailable = "ERR_304_EMBEDDING_UNAVAILABLE"
	ErrCodeStoreUnavailable     = "ERR_305_STORE_UNAVAILABLE"
	ErrCodeCircuitOpen          = "ERR_306_CIRCUIT_OPEN"

	ErrCodeInvalidInput           = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch      = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidQuery           = "ERR_403_INVALID_QUERY"
	ErrCodeQueryEmpty             = "ERR_404_QUERY_EMPTY"
	ErrCodeQueryTooLong           = "ERR_405_QUERY_TOO_LONG"
	ErrCodeInvalidPath            = "ERR_406_INVALID_PATH"
	ErrCodeEmbeddingInput         = "ERR_407_EMBEDDING_INPUT"
	ErrCodeEmbeddingSpaceMismatch = "ERR_408_EMBEDDING_SPACE_MISMATCH"
	ErrCodeNotFound               = "ERR_409_NOT_FOUND"

	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed     = "ERR_505_INDEX_FAILED"
)

// codeInfo is what a code implies beyond its category. Codes missing from
// codeTable get the defaults of their category.
type codeInfo struct {
	kind      Kind
	severity  Severity
	retryable bool
}

var codeTable = map[string]codeInfo{
	ErrCodeConfigInvalid:    {KindConfiguration, SeverityFatal, false},
	ErrCodeConfigPermission: {KindConfiguration, SeverityError, false},
	ErrCodeChunkConfig:      {KindConfiguration, SeverityFatal, false},
	ErrCodeFusionConfig:     {KindConfiguration, SeverityFatal, false},

	ErrCodeFileNotFound: {KindNotFound, SeverityError, false},
	ErrCodeCorruptIndex: {KindSchema, SeverityFatal, false},
	ErrCodeSchema:       {KindSchema, SeverityFatal, false},

	ErrCodeNetworkTimeout:       {KindEmbeddingUnavailable, SeverityWarning, true},
	ErrCodeEmbeddingUnavailable: {KindEmbeddingUnavailable, SeverityWarning, true},
	ErrCodeStoreUnavailable:     {KindStoreUnavailable, SeverityWarning, true},
	// An open breaker fails fast; retrying within the cooldown is pointless.
	ErrCodeCircuitOpen: {KindEmbeddingUnavailable, SeverityError, false},

	ErrCodeDimensionMismatch:      {KindEmbeddingSpaceMismatch, SeverityFatal, false},
	ErrCodeEmbeddingInput:         {KindEmbeddingInput, SeverityError, false},
	ErrCodeEmbeddingSpaceMismatch: {KindEmbeddingSpaceMismatch, SeverityFatal, false},
	ErrCodeNotFound:               {KindNotFound, SeverityError, false},
}

func categoryFromCode(code string) Category {
	if len(code) < 7 || code[:4] != "ERR_" {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	}
	return CategoryInternal
}

func lookup(code string) codeInfo {
	if info, ok := codeTable[code]; ok {
		return info
	}
	switch categoryFromCode(code) {
	case CategoryValidation:
		return codeInfo{KindValidation, SeverityError, false}
	case CategoryNetwork:
		// The embedding service is the only remote dependency.
		return codeInfo{KindEmbeddingUnavailable, SeverityError, false}
	}
	return codeInfo{KindInternal, SeverityError, false}
}
