// Package audit defines core types shared across subsystems.
package audit

import (
	"time"
)

// JobStatus represents the lifecycle state of an audit job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further transition can leave the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job represents the record kept for each submitted crawl request.
type Job struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Status      JobStatus  `json:"status"`
	SubmittedAt time.Time  `json:"submittedAt"`
	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
	Result      *PageData  `json:"result"`
	Error       *string    `json:"error"`
}

// PageData holds the raw signals extracted from one page load. The JSON
// shape is the result payload returned by the job API.
type PageData struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	H1s               []string `json:"h1s"`
	ImgCount          int      `json:"imgCount"`
	MissingAltCount   int      `json:"missingAltCount"`
	LinkCount         int      `json:"linkCount"`
	InternalLinkCount int      `json:"internalLinkCount"`
	WordCount         int      `json:"wordCount"`
	LoadTime          int64    `json:"loadTime"`

	// StatusCode is the HTTP status of the document response. It is not part
	// of the stored payload.
	StatusCode int `json:"-"`
}

// Capabilities describes what an Extractor implementation can observe.
type Capabilities struct {
	Backend          string `json:"backend"`
	Rendered         bool   `json:"rendered"`
	NavigationTiming bool   `json:"navigationTiming"`
	ResourceBlocking bool   `json:"resourceBlocking"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	URL       string
	Submitted int64
}

// JobEvent is published when a job reaches a terminal state.
type JobEvent struct {
	JobID       string    `json:"job_id"`
	URL         string    `json:"url"`
	Status      JobStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
	ArchiveURI  string    `json:"archive_uri,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}
