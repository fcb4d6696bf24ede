package mirror

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// HTTPError is returned when the mirror responds with a non-2xx status.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("mirror request failed: %s returned status %d", e.URL, e.StatusCode)
}

// TransportError wraps network-level failures (dial, reset, timeout) so
// callers can distinguish them from HTTP status failures.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mirror transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the error is worth retrying: transport
// failures, timeouts, rate limiting, and server-side errors. Permanent 4xx
// responses are still retried by the supervisor per the error policy, but
// callers that need the distinction get it here.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests ||
			httpErr.StatusCode >= http.StatusInternalServerError
	}

	return false
}
