package audit

import (
	"context"
	"io"
	"time"
)

// JobStore holds job records. Every method is atomic with respect to the
// record it touches.
type JobStore interface {
	Insert(ctx context.Context, job Job) error
	Get(ctx context.Context, jobID string) (Job, error)
	Update(ctx context.Context, jobID string, mutate func(*Job) error) (Job, error)
	Delete(ctx context.Context, jobID string) error
	// Sweep removes terminal jobs that completed before cutoff and returns
	// how many were removed.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// Extractor loads one URL and pulls structural signals out of it.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (PageData, error)
	Capabilities() Capabilities
}

// Queue provides enqueue/dequeue semantics for audit jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Limiter delays work against a host until it is allowed to proceed.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
