package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/JakeFAU/seo-auditor/internal/audit"
)

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	job := audit.NewJob("job-1", "https://example.com", time.Unix(100, 0))

	if err := store.Insert(ctx, job); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := store.Insert(ctx, job); !errors.Is(err, audit.ErrJobExists) {
		t.Fatalf("expected duplicate job error, got %v", err)
	}
	if _, err := store.Update(ctx, job.ID, func(j *audit.Job) error {
		return j.Start(time.Unix(101, 0))
	}); err != nil {
		t.Fatalf("Update(start) error = %v", err)
	}
	updated, err := store.Update(ctx, job.ID, func(j *audit.Job) error {
		return j.Complete(time.Unix(102, 0), audit.PageData{Title: "Example", H1s: []string{"Example"}})
	})
	if err != nil {
		t.Fatalf("Update(complete) error = %v", err)
	}
	updated.Result.H1s[0] = "modified"

	final, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if final.Status != audit.JobStatusCompleted || final.StartedAt == nil || final.CompletedAt == nil {
		t.Fatalf("expected timestamps set, got %+v", final)
	}
	if final.Result.H1s[0] != "Example" {
		t.Fatal("expected Update to return a copy")
	}
	if store.Len() != 1 {
		t.Fatalf("expected one job, got %d", store.Len())
	}
}

func TestJobStoreUpdateRollsBackOnError(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	job := audit.NewJob("job-1", "https://example.com", time.Unix(100, 0))
	if err := store.Insert(ctx, job); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	_, err := store.Update(ctx, job.ID, func(j *audit.Job) error {
		j.URL = "https://changed.example"
		return j.Complete(time.Unix(101, 0), audit.PageData{})
	})
	if !errors.Is(err, audit.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	got, _ := store.Get(ctx, job.ID)
	if got.URL != "https://example.com" || got.Status != audit.JobStatusPending {
		t.Fatalf("expected untouched record, got %+v", got)
	}
}

func TestJobStoreMissingJob(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	if _, err := store.Get(ctx, "nope"); !errors.Is(err, audit.ErrJobNotFound) {
		t.Fatalf("Get() expected ErrJobNotFound, got %v", err)
	}
	if _, err := store.Update(ctx, "nope", func(*audit.Job) error { return nil }); !errors.Is(err, audit.ErrJobNotFound) {
		t.Fatalf("Update() expected ErrJobNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "nope"); !errors.Is(err, audit.ErrJobNotFound) {
		t.Fatalf("Delete() expected ErrJobNotFound, got %v", err)
	}
}

func TestJobStoreSweepRemovesOnlyExpiredTerminalJobs(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-3 * time.Hour)

	seed := func(id string, finish func(*audit.Job) error) {
		t.Helper()
		if err := store.Insert(ctx, audit.NewJob(id, "https://example.com", old)); err != nil {
			t.Fatalf("Insert(%s) error = %v", id, err)
		}
		if finish == nil {
			return
		}
		if _, err := store.Update(ctx, id, finish); err != nil {
			t.Fatalf("Update(%s) error = %v", id, err)
		}
	}

	seed("completed-old", func(j *audit.Job) error {
		if err := j.Start(old); err != nil {
			return err
		}
		return j.Complete(now.Add(-61*time.Minute), audit.PageData{})
	})
	seed("completed-fresh", func(j *audit.Job) error {
		if err := j.Start(old); err != nil {
			return err
		}
		return j.Complete(now.Add(-59*time.Minute), audit.PageData{})
	})
	seed("failed-old", func(j *audit.Job) error {
		if err := j.Start(old); err != nil {
			return err
		}
		return j.Fail(now.Add(-2*time.Hour), "boom")
	})
	seed("processing-old", func(j *audit.Job) error { return j.Start(old) })
	seed("pending-old", nil)

	removed, err := store.Sweep(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	for _, id := range []string{"completed-fresh", "processing-old", "pending-old"} {
		if _, err := store.Get(ctx, id); err != nil {
			t.Fatalf("expected %s retained, got %v", id, err)
		}
	}
	for _, id := range []string{"completed-old", "failed-old"} {
		if _, err := store.Get(ctx, id); !errors.Is(err, audit.ErrJobNotFound) {
			t.Fatalf("expected %s swept, got %v", id, err)
		}
	}
}

func TestJobStoreConcurrentAccess(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("job-%d", i)
			_ = store.Insert(ctx, audit.NewJob(id, "https://example.com", time.Unix(0, 0)))
			_, _ = store.Get(ctx, id)
			_, _ = store.Sweep(ctx, time.Unix(0, 0))
		}(i)
	}
	wg.Wait()
	if store.Len() != 50 {
		t.Fatalf("expected 50 jobs, got %d", store.Len())
	}
}
