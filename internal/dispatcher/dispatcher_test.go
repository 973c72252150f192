// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JakeFAU/seo-auditor/internal/audit"
)

// TestDispatcherRunStartsWorkers ensures every worker starts and Run returns on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	var started atomic.Int32
	runners := []Runner{
		&blockingRunner{started: &started},
		&blockingRunner{started: &started},
		&blockingRunner{started: &started},
	}
	dispatch := New(&errorQueue{}, runners)
	if dispatch.Size() != 3 {
		t.Fatalf("expected pool size 3, got %d", dispatch.Size())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for started.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d workers started", started.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	dispatch := New(&errorQueue{err: errors.New("boom")}, nil)

	err := dispatch.Enqueue(context.Background(), audit.QueueItem{JobID: "job"})
	if err == nil || err.Error() != "queue enqueue: boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if _, err := dispatch.Dequeue(context.Background()); err == nil || err.Error() != "queue dequeue: boom" {
		t.Fatalf("expected wrapped dequeue error, got %v", err)
	}
}

type blockingRunner struct {
	started *atomic.Int32
}

func (r *blockingRunner) Run(ctx context.Context) {
	r.started.Add(1)
	<-ctx.Done()
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, audit.QueueItem) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (audit.QueueItem, error) {
	if q.err != nil {
		return audit.QueueItem{}, q.err
	}
	return audit.QueueItem{}, fmt.Errorf("empty")
}
