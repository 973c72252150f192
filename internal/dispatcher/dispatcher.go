// Package dispatcher runs the fixed worker pool over the job queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/seo-auditor/internal/audit"
)

// Runner is one pool member.
type Runner interface {
	Run(ctx context.Context)
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   audit.Queue
	workers []Runner
}

// New creates a Dispatcher.
func New(queue audit.Queue, workers []Runner) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until every one of them has returned.
// Workers return when ctx ends or the queue is closed and drained.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			r.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item audit.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Dequeue proxies to the underlying queue so the dispatcher satisfies
// audit.Queue.
func (d *Dispatcher) Dequeue(ctx context.Context) (audit.QueueItem, error) {
	item, err := d.queue.Dequeue(ctx)
	if err != nil {
		return audit.QueueItem{}, fmt.Errorf("queue dequeue: %w", err)
	}
	return item, nil
}

// Size reports the pool size.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}
