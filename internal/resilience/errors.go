package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// RemoteJobError reports that a remote job finished in a terminal failure
// state (failed, aborted, timed out). It is never retried.
type RemoteJobError struct {
	JobID  string
	Status string
}

func (e *RemoteJobError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("remote job finished with status %s", e.Status)
	}
	return fmt.Sprintf("remote job %s finished with status %s", e.JobID, e.Status)
}

// FetchExhaustedError is returned once every attempt of FetchWithRetry has
// failed. Its message embeds the last underlying error.
type FetchExhaustedError struct {
	Operation string
	Attempts  int
	LastErr   error
}

func (e *FetchExhaustedError) Error() string {
	op := e.Operation
	if op == "" {
		op = "fetch"
	}
	return fmt.Sprintf("%s: gave up after %d attempts: %v", op, e.Attempts, e.LastErr)
}

func (e *FetchExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsTerminal reports whether err (or any error in its chain) is a RemoteJobError.
func IsTerminal(err error) bool {
	var je *RemoteJobError
	return errors.As(err, &je)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient network failures
// (timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
