package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	neturl "net/url"
)

var (
	// ErrNotFound is matched by HTTP errors with a 404 status
	ErrNotFound = errors.New("resource not found")
	// ErrRateLimited is matched by HTTP errors with a 429 status
	ErrRateLimited = errors.New("rate limited by upstream")
	// ErrUpstreamDown is matched by HTTP errors with a 5xx status and by open circuit breakers
	ErrUpstreamDown = errors.New("upstream unavailable")
)

// HTTPError represents an HTTP error
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error returns the error message
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// Unwrap maps the status code onto one of the package sentinel errors
func (e *HTTPError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode >= http.StatusInternalServerError:
		return ErrUpstreamDown
	default:
		return nil
	}
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// isRetryable reports whether a failed request should be attempted again.
// Rate limits, server errors and transport failures (dial, DNS, reset) are retried.
func isRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamDown) {
		return true
	}
	var urlErr *neturl.Error
	return errors.As(err, &urlErr)
}
