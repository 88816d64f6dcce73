package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/codesearch/engine/internal/engineerr"
)

// Custom MCP error codes, in the reserved-for-application range below
// the standard JSON-RPC ones. Engine codes without a code of their own
// here are reported as ErrCodeInternalError.
const (
	ErrCodeIndexNotFound   = -32001
	ErrCodeModelMismatch   = -32002
	ErrCodeTimeout         = -32003
	ErrCodeFileNotFound    = -32004
	ErrCodeAlreadyIndexing = -32005
	ErrCodeDiskFull        = -32006

	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts an internal engineerr.Error (or any other error)
// into an MCPError, preferring the user-facing message over the
// developer one.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &MCPError{Code: ErrCodeTimeout, Message: "request timed out"}
	}
	if errors.Is(err, context.Canceled) {
		return &MCPError{Code: ErrCodeTimeout, Message: "request was canceled"}
	}

	code, ok := engineerr.CodeOf(err)
	if !ok {
		return &MCPError{Code: ErrCodeInternalError, Message: "internal server error"}
	}

	var e *engineerr.Error
	errors.As(err, &e)
	message := err.Error()
	if e != nil && e.User != "" {
		message = e.User
	}

	switch code {
	case engineerr.IndexNotFound, engineerr.ProjectNotFound:
		return &MCPError{Code: ErrCodeIndexNotFound, Message: message}
	case engineerr.ModelMismatch:
		return &MCPError{Code: ErrCodeModelMismatch, Message: message}
	case engineerr.FileNotFound:
		return &MCPError{Code: ErrCodeFileNotFound, Message: message}
	case engineerr.AlreadyIndexing:
		return &MCPError{Code: ErrCodeAlreadyIndexing, Message: message}
	case engineerr.DiskFull:
		return &MCPError{Code: ErrCodeDiskFull, Message: message}
	case engineerr.InvalidPath, engineerr.InvalidPattern:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
