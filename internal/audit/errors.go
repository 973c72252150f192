package audit

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors forming the failure taxonomy of the service.
var (
	// ErrValidation marks user input problems. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrMissingURL is returned when a submission carries no URL.
	ErrMissingURL = fmt.Errorf("%w: url is required", ErrValidation)
	// ErrInvalidURL is returned when a URL is not an absolute http(s) URL.
	ErrInvalidURL = fmt.Errorf("%w: invalid url", ErrValidation)
	// ErrNavigationTimeout is returned when a page does not load in time.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrFetchFailed is matched by every FetchError.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrJobNotFound is returned for unknown or evicted job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when a job id is stored twice.
	ErrJobExists = errors.New("job already exists")
	// ErrInvalidTransition rejects status changes the job lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrUpstreamUnavailable means the job engine could not accept or report work.
	ErrUpstreamUnavailable = errors.New("job engine unavailable")
	// ErrQueueClosed is returned by queue operations after Close.
	ErrQueueClosed = errors.New("queue closed")
)

// FetchError reports a non-success or missing document response.
type FetchError struct {
	URL        string
	StatusCode int
	Reason     string
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("fetch failed for %s: status %d", e.URL, e.StatusCode)
	case e.Reason != "":
		return fmt.Sprintf("fetch failed for %s: %s", e.URL, e.Reason)
	default:
		return fmt.Sprintf("fetch failed for %s: no response", e.URL)
	}
}

// Unwrap lets errors.Is match ErrFetchFailed.
func (e *FetchError) Unwrap() error {
	return ErrFetchFailed
}

// HTTPStatus maps the upstream status to the one mirrored back to API
// callers. Unknown statuses map to 502.
func (e *FetchError) HTTPStatus() int {
	if e.StatusCode >= http.StatusBadRequest && e.StatusCode <= 599 {
		return e.StatusCode
	}
	return http.StatusBadGateway
}
