// Package memory provides the bounded in-process job queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/seo-auditor/internal/audit"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch     chan audit.QueueItem
	mu     sync.RWMutex
	closed bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan audit.QueueItem, capacity),
	}
}

// Enqueue pushes a job into the queue, blocking while it is full, or returns
// when the context ends.
func (q *Queue) Enqueue(ctx context.Context, item audit.QueueItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return audit.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (audit.QueueItem, error) {
	select {
	case <-ctx.Done():
		return audit.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return audit.QueueItem{}, audit.ErrQueueClosed
		}
		return item, nil
	}
}

// Len reports the number of items waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting work. Items already queued can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
