package audit

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// NewJob builds a PENDING job.
func NewJob(id, rawURL string, submitted time.Time) Job {
	return Job{
		ID:          id,
		URL:         rawURL,
		Status:      JobStatusPending,
		SubmittedAt: submitted,
	}
}

// Start moves a PENDING job to PROCESSING.
func (j *Job) Start(now time.Time) error {
	if j.Status != JobStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusProcessing)
	}
	started := notBefore(now, j.SubmittedAt)
	j.Status = JobStatusProcessing
	j.StartedAt = &started
	return nil
}

// Complete moves a PROCESSING job to COMPLETED and stores the result.
func (j *Job) Complete(now time.Time, data PageData) error {
	if j.Status != JobStatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusCompleted)
	}
	finished := notBefore(now, j.startedOrSubmitted())
	result := data.Clone()
	j.Status = JobStatusCompleted
	j.CompletedAt = &finished
	j.Result = &result
	j.Error = nil
	return nil
}

// Fail moves a PROCESSING job to FAILED and stores the error message.
func (j *Job) Fail(now time.Time, message string) error {
	if j.Status != JobStatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusFailed)
	}
	if message == "" {
		message = "unknown error"
	}
	finished := notBefore(now, j.startedOrSubmitted())
	j.Status = JobStatusFailed
	j.CompletedAt = &finished
	j.Result = nil
	j.Error = &message
	return nil
}

// Clone returns a deep copy safe to hand out of the store.
func (j Job) Clone() Job {
	cp := j
	if j.StartedAt != nil {
		ts := *j.StartedAt
		cp.StartedAt = &ts
	}
	if j.CompletedAt != nil {
		ts := *j.CompletedAt
		cp.CompletedAt = &ts
	}
	if j.Result != nil {
		res := j.Result.Clone()
		cp.Result = &res
	}
	if j.Error != nil {
		msg := *j.Error
		cp.Error = &msg
	}
	return cp
}

// ErrorText returns the stored error message or "".
func (j Job) ErrorText() string {
	if j.Error == nil {
		return ""
	}
	return *j.Error
}

// Clone copies the heading slice.
func (p PageData) Clone() PageData {
	cp := p
	if p.H1s != nil {
		cp.H1s = append([]string(nil), p.H1s...)
	}
	return cp
}

// ValidateURL checks that rawURL is an absolute http(s) URL with a host.
func ValidateURL(rawURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, ErrMissingURL
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

func (j *Job) startedOrSubmitted() time.Time {
	if j.StartedAt != nil {
		return *j.StartedAt
	}
	return j.SubmittedAt
}

// notBefore keeps lifecycle timestamps monotonic even if the clock steps back.
func notBefore(now, floor time.Time) time.Time {
	if now.Before(floor) {
		return floor
	}
	return now
}
