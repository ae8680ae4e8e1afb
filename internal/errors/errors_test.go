package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
)

func TestCartoError_Error(t *testing.T) {
	err := &CartoError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "run not found: 01ABC",
	}

	expected := "NOT_FOUND: run not found: 01ABC"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("max_tokens_per_chunk must be positive")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "max_tokens_per_chunk must be positive" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("run", "01ABC")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "01ABC" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "01ABC")
	}
	if err.Details["kind"] != "run" {
		t.Errorf("Details[kind] = %v, want %q", err.Details["kind"], "run")
	}
}

func TestNewScan_WrapsCause(t *testing.T) {
	cause := fmt.Errorf("permission denied")
	err := NewScan("secret/key.pem", cause)

	if err.Code != ErrScan {
		t.Errorf("Code = %q, want %q", err.Code, ErrScan)
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if err.Details["path"] != "secret/key.pem" {
		t.Errorf("Details[path] = %v", err.Details["path"])
	}
}

func TestNewEncoding(t *testing.T) {
	err := NewEncoding("logo.png", "binary content")

	if err.Code != ErrEncoding {
		t.Errorf("Code = %q, want %q", err.Code, ErrEncoding)
	}
	if err.Details["reason"] != "binary content" {
		t.Errorf("Details[reason] = %v", err.Details["reason"])
	}
}

func TestNewProvider_Retryable(t *testing.T) {
	err := NewProvider("ollama", true, fmt.Errorf("503 service unavailable"))

	if err.Code != ErrProvider {
		t.Errorf("Code = %q, want %q", err.Code, ErrProvider)
	}
	if !err.Retryable {
		t.Error("Retryable = false, want true")
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable() = false, want true")
	}
	if err.Message != "ollama: 503 service unavailable" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewProvider_NilCause(t *testing.T) {
	err := NewProvider("command", false, nil)

	if err.Message != "command: provider call failed" {
		t.Errorf("Message = %q", err.Message)
	}
	if IsRetryable(err) {
		t.Error("IsRetryable() = true, want false")
	}
}

func TestNewCache(t *testing.T) {
	err := NewCache("abc123", fmt.Errorf("unexpected end of JSON input"))

	if err.Code != ErrCache {
		t.Errorf("Code = %q, want %q", err.Code, ErrCache)
	}
	if err.Details["identity"] != "abc123" {
		t.Errorf("Details[identity] = %v", err.Details["identity"])
	}
}

func TestNewOutput(t *testing.T) {
	err := NewOutput("/readonly/docs", fmt.Errorf("read-only file system"))

	if err.Code != ErrOutput {
		t.Errorf("Code = %q, want %q", err.Code, ErrOutput)
	}
	if err.Status != 500 {
		t.Errorf("Status = %d, want 500", err.Status)
	}
}

func TestNewAllChunksFailed(t *testing.T) {
	err := NewAllChunksFailed(4)

	if err.Code != ErrAllChunksFailed {
		t.Errorf("Code = %q, want %q", err.Code, ErrAllChunksFailed)
	}
	if err.Details["failed"] != 4 {
		t.Errorf("Details[failed] = %v, want 4", err.Details["failed"])
	}
}

func TestNewInternal(t *testing.T) {
	err := NewInternal(fmt.Errorf("disk full"))
	if err.Message != "disk full" {
		t.Errorf("Message = %q, want %q", err.Message, "disk full")
	}

	err = NewInternal(nil)
	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewNotFound("run", "x"), ErrNotFound, true},
		{"different code", NewNotFound("run", "x"), ErrScan, false},
		{"wrapped", fmt.Errorf("outer: %w", NewCache("id", nil)), ErrCache, true},
		{"plain error", fmt.Errorf("boom"), ErrInternal, false},
		{"nil", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NewOutput("x", nil)); got != ErrOutput {
		t.Errorf("CodeOf() = %q, want %q", got, ErrOutput)
	}
	if got := CodeOf(context.Canceled); got != ErrInternal {
		t.Errorf("CodeOf(context.Canceled) = %q, want %q", got, ErrInternal)
	}
}

func TestProviderError_UnwrapsContext(t *testing.T) {
	err := NewProvider("ollama", true, context.DeadlineExceeded)
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is(err, context.DeadlineExceeded) = false, want true")
	}
}
