// Package server exposes the search engine to coding agents over the MCP
// stdio transport (line-delimited JSON-RPC).
package server

import (
	"errors"
	"fmt"

	"github.com/coa-dev/codesearch/internal/cserr"
)

// Custom JSON-RPC error codes for codesearch.
const (
	// ErrCodeNoIndex indicates no index exists for the workspace.
	ErrCodeNoIndex = -32001

	// ErrCodeInvalidQuery indicates the query was rejected before search.
	ErrCodeInvalidQuery = -32002

	// ErrCodeLockHeld indicates the index write lock is held elsewhere.
	ErrCodeLockHeld = -32003

	// ErrCodeIndexCorrupt indicates unrecoverable index corruption.
	ErrCodeIndexCorrupt = -32004

	// ErrCodeSymbolStore indicates the symbol store is unavailable.
	ErrCodeSymbolStore = -32005

	// ErrCodeBadPath indicates an invalid or missing workspace path.
	ErrCodeBadPath = -32006

	// ErrCodeEditConflict indicates an edit conflict or range error.
	ErrCodeEditConflict = -32007

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// RPCError represents a protocol error with code and message.
type RPCError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an invalid-params error.
func NewInvalidParamsError(message string) *RPCError {
	return &RPCError{Code: ErrCodeInvalidParams, Message: message}
}

// MapError converts engine errors to protocol errors, carrying the
// suggestion through so the caller can recover.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var ce *cserr.Error
	if !errors.As(err, &ce) {
		return &RPCError{Code: ErrCodeInternalError, Message: err.Error()}
	}

	code := ErrCodeInternalError
	switch ce.Code {
	case cserr.ErrCodeNoIndex:
		code = ErrCodeNoIndex
	case cserr.ErrCodeInvalidQuery, cserr.ErrCodeQueryEmpty, cserr.ErrCodeInvalidInput:
		code = ErrCodeInvalidQuery
	case cserr.ErrCodeLockHeld:
		code = ErrCodeLockHeld
	case cserr.ErrCodeIndexCorrupt:
		code = ErrCodeIndexCorrupt
	case cserr.ErrCodeSymbolStoreUnavailable, cserr.ErrCodeSymbolNotFound:
		code = ErrCodeSymbolStore
	case cserr.ErrCodeBadPath, cserr.ErrCodeNoSuchDirectory:
		code = ErrCodeBadPath
	case cserr.ErrCodeLineOutOfRange, cserr.ErrCodeReadOnlyFile, cserr.ErrCodeConflict:
		code = ErrCodeEditConflict
	}

	return &RPCError{
		Code:       code,
		Message:    ce.Error(),
		Suggestion: ce.Suggestion,
	}
}
