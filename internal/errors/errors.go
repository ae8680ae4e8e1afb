package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Clawtographer error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound        ErrorCode = "NOT_FOUND"         // 404
	ErrScan            ErrorCode = "SCAN_ERROR"        // 422, per file: skip and log
	ErrEncoding        ErrorCode = "ENCODING_ERROR"    // 422, per file: skip
	ErrCache           ErrorCode = "CACHE_ERROR"       // 500, per entry: treat as miss
	ErrProvider        ErrorCode = "PROVIDER_ERROR"    // 502, per chunk: retry then fail
	ErrOutput          ErrorCode = "OUTPUT_ERROR"      // 500, run-level
	ErrAllChunksFailed ErrorCode = "ALL_CHUNKS_FAILED" // 502, run-level
	ErrInternal        ErrorCode = "INTERNAL"          // 500
)

// CartoError represents a structured error with code, status, and details.
type CartoError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Retryable marks provider failures worth another attempt (timeouts,
	// rate limits, server errors).
	Retryable bool

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *CartoError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CartoError) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *CartoError {
	return &CartoError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing run, entry or path.
func NewNotFound(kind, identifier string) *CartoError {
	return &CartoError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewScan creates an error for a path that could not be read during the scan.
func NewScan(path string, err error) *CartoError {
	return &CartoError{
		Code:    ErrScan,
		Status:  422,
		Message: fmt.Sprintf("cannot read %s: %v", path, err),
		Details: map[string]any{"path": path},
		Err:     err,
	}
}

// NewEncoding creates an error for a binary or non-UTF-8 file.
func NewEncoding(path, reason string) *CartoError {
	return &CartoError{
		Code:    ErrEncoding,
		Status:  422,
		Message: fmt.Sprintf("%s: %s", path, reason),
		Details: map[string]any{"path": path, "reason": reason},
	}
}

// NewCache creates an error for an unreadable or corrupt cache entry.
func NewCache(identity string, err error) *CartoError {
	msg := "cache entry unreadable"
	if err != nil {
		msg = err.Error()
	}
	return &CartoError{
		Code:    ErrCache,
		Status:  500,
		Message: fmt.Sprintf("cache entry %s: %s", identity, msg),
		Details: map[string]any{"identity": identity},
		Err:     err,
	}
}

// NewProvider creates an error for a failed LLM call.
func NewProvider(provider string, retryable bool, err error) *CartoError {
	msg := "provider call failed"
	if err != nil {
		msg = err.Error()
	}
	return &CartoError{
		Code:      ErrProvider,
		Status:    502,
		Message:   fmt.Sprintf("%s: %s", provider, msg),
		Details:   map[string]any{"provider": provider},
		Retryable: retryable,
		Err:       err,
	}
}

// NewOutput creates an error for a missing or unwritable output location.
func NewOutput(path string, err error) *CartoError {
	return &CartoError{
		Code:    ErrOutput,
		Status:  500,
		Message: fmt.Sprintf("cannot write output %s: %v", path, err),
		Details: map[string]any{"path": path},
		Err:     err,
	}
}

// NewAllChunksFailed creates the run-level error raised when no chunk could be analyzed.
func NewAllChunksFailed(failed int) *CartoError {
	return &CartoError{
		Code:    ErrAllChunksFailed,
		Status:  502,
		Message: fmt.Sprintf("all %d chunks failed; cannot create map", failed),
		Details: map[string]any{"failed": failed},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *CartoError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &CartoError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Err:     err,
	}
}

// Is checks if err (or anything it wraps) is a CartoError with the given code.
func Is(err error, code ErrorCode) bool {
	var cErr *CartoError
	if stderrors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}

// IsRetryable reports whether err is a CartoError marked retryable.
func IsRetryable(err error) bool {
	var cErr *CartoError
	if stderrors.As(err, &cErr) {
		return cErr.Retryable
	}
	return false
}

// CodeOf returns the code of the first CartoError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var cErr *CartoError
	if stderrors.As(err, &cErr) {
		return cErr.Code
	}
	return ErrInternal
}
