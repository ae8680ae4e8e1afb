package provider

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"os/exec"

	"github.com/ollama/ollama/api"

	"github.com/JGnft17/clawtographer/internal/errors"
)

// classify wraps err as PROVIDER_ERROR and decides whether another attempt
// could succeed. Rate limits, server errors, timeouts and network failures
// are retryable; auth failures, unknown models and missing binaries are not.
func classify(provider string, err error) error {
	var cErr *errors.CartoError
	if stderrors.As(err, &cErr) {
		return err
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return errors.NewProvider(provider, false, err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewProvider(provider, true, err)
	case stderrors.Is(err, exec.ErrNotFound):
		return errors.NewProvider(provider, false, err)
	}

	var statusErr api.StatusError
	if stderrors.As(err, &statusErr) {
		return errors.NewProvider(provider, retryableStatus(statusErr.StatusCode), err)
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return errors.NewProvider(provider, true, err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return errors.NewProvider(provider, true, err)
	}

	return errors.NewProvider(provider, false, err)
}

func retryableStatus(code int) bool {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
