package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os/exec"

	"github.com/voxtype/voxtype/internal/resilience"
)

var (
	// ErrNoBackend indicates no transcription backend could be resolved
	ErrNoBackend = errors.New("no transcription backend available")

	// ErrMalformedResponse indicates a cloud backend returned an unparseable body
	ErrMalformedResponse = errors.New("malformed transcription response")
)

// APIError is a cloud backend error with an HTTP status
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("transcription api error (status %d): %s", e.Status, e.Message)
}

// ProcessError is a local engine subprocess failure
type ProcessError struct {
	Binary string
	Stderr string
	Err    error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed: %s", e.Binary, e.Stderr)
	}
	return fmt.Sprintf("%s failed: %v", e.Binary, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether a transcription error is worth retrying.
// Network failures, timeouts, rate limits and server-side errors are
// transient; malformed audio, missing models and parse failures are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoBackend) || errors.Is(err, ErrMalformedResponse) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}

	var procErr *ProcessError
	if errors.As(err, &procErr) {
		// A nonzero exit means the engine ran and rejected the input
		// (bad audio, missing model). Anything else is a launch failure
		// (binary momentarily unavailable, fork/resource errors) and is
		// worth another attempt.
		var exitErr *exec.ExitError
		return !errors.As(procErr.Err, &exitErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	return resilience.IsRetryableNetworkError(err)
}
