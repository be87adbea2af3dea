// Package mcp serves pdfrag search and indexing over the Model Context
// Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
)

// JSON-RPC error codes returned to clients. The -320xx range is
// server-defined.
const (
	ErrCodeEmbeddingUnavailable = -32001
	ErrCodeStoreUnavailable     = -32002
	ErrCodeTimeout              = -32003 // deadline exceeded or canceled
	ErrCodeNotFound             = -32004
	ErrCodeConfiguration        = -32005
	ErrCodeIndexIncompatible    = -32006 // schema or embedding space

	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

const internalMessage = "Internal server error."

// rpcCodes maps error kinds whose message is safe to show a client.
// Other kinds surface as ErrCodeInternalError with a fixed message.
var rpcCodes = map[pderrors.Kind]int{
	pderrors.KindValidation:             ErrCodeInvalidParams,
	pderrors.KindEmbeddingInput:         ErrCodeInvalidParams,
	pderrors.KindConfiguration:          ErrCodeConfiguration,
	pderrors.KindEmbeddingUnavailable:   ErrCodeEmbeddingUnavailable,
	pderrors.KindStoreUnavailable:       ErrCodeStoreUnavailable,
	pderrors.KindSchema:                 ErrCodeIndexIncompatible,
	pderrors.KindEmbeddingSpaceMismatch: ErrCodeIndexIncompatible,
	pderrors.KindNotFound:               ErrCodeNotFound,
}

// MCPError is what a tool call returns on failure. Message never carries
// wrapped causes.
type MCPError struct {
	Code    int           `json:"code"`
	Kind    pderrors.Kind `json:"kind"`
	Message string        `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d (%s): %s", e.Code, e.Kind, e.Message)
}

// MapError turns any error into an MCPError. Uncoded errors become internal
// errors so that details do not leak.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}
	var me *MCPError
	if errors.As(err, &me) {
		return me
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &MCPError{Code: ErrCodeTimeout, Kind: pderrors.KindInternal, Message: "Request timed out."}
	}
	if errors.Is(err, context.Canceled) {
		return &MCPError{Code: ErrCodeTimeout, Kind: pderrors.KindInternal, Message: "Request was canceled."}
	}

	pe, ok := pderrors.As(err)
	if !ok {
		return &MCPError{Code: ErrCodeInternalError, Kind: pderrors.KindInternal, Message: internalMessage}
	}
	kind := pe.Kind()
	code, exposed := rpcCodes[kind]
	if !exposed {
		return &MCPError{Code: ErrCodeInternalError, Kind: kind, Message: internalMessage}
	}
	msg := pe.Message
	if pe.Suggestion != "" {
		msg += ". " + pe.Suggestion
	}
	return &MCPError{Code: code, Kind: kind, Message: msg}
}

// NewInvalidParamsError reports bad tool arguments.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Kind: pderrors.KindValidation, Message: msg}
}

// NewMethodNotFoundError reports an unknown tool name.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Kind:    pderrors.KindValidation,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}
