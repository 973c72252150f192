// Package engine accepts crawl jobs, reports their status and expires
// finished ones.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-auditor/internal/audit"
	"github.com/JakeFAU/seo-auditor/internal/metrics"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultRetention      = time.Hour
	DefaultSweepInterval  = time.Hour
	DefaultEnqueueTimeout = 5 * time.Second
)

// Config tunes retention and submission.
type Config struct {
	// Retention is how long a terminal job stays readable after it completes.
	Retention time.Duration
	// SweepInterval is the period of the retention loop.
	SweepInterval time.Duration
	// EnqueueTimeout bounds how long Submit waits on a full queue.
	EnqueueTimeout time.Duration
}

// Engine owns submission and status lookups over the shared job store.
type Engine struct {
	store  audit.JobStore
	queue  audit.Queue
	ids    audit.IDGenerator
	clock  audit.Clock
	cfg    Config
	logger *zap.Logger
}

// New builds an Engine.
func New(
	store audit.JobStore,
	queue audit.Queue,
	ids audit.IDGenerator,
	clock audit.Clock,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  store,
		queue:  queue,
		ids:    ids,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Submit records a PENDING job and schedules it. It returns as soon as the
// job is queued; the URL is only checked for presence here; a malformed URL
// surfaces later as a FAILED job.
func (e *Engine) Submit(ctx context.Context, rawURL string) (audit.Job, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return audit.Job{}, audit.ErrMissingURL
	}
	id, err := e.ids.NewID()
	if err != nil {
		return audit.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := audit.NewJob(id, rawURL, e.clock.Now())
	if err := e.store.Insert(ctx, job); err != nil {
		return audit.Job{}, fmt.Errorf("insert job: %w", err)
	}

	enqueueCtx, cancel := context.WithTimeout(ctx, e.cfg.EnqueueTimeout)
	defer cancel()
	item := audit.QueueItem{JobID: id, URL: rawURL, Submitted: job.SubmittedAt.UnixMilli()}
	if err := e.queue.Enqueue(enqueueCtx, item); err != nil {
		if delErr := e.store.Delete(context.WithoutCancel(ctx), id); delErr != nil {
			e.logger.Error("rollback unqueued job failed", zap.String("job_id", id), zap.Error(delErr))
		}
		return audit.Job{}, fmt.Errorf("%w: %w", audit.ErrUpstreamUnavailable, err)
	}

	metrics.ObserveJobSubmitted()
	e.reportStoreSize()
	e.logger.Info("job submitted", zap.String("job_id", id), zap.String("url", rawURL))
	return job, nil
}

// Status returns a snapshot of the job.
func (e *Engine) Status(ctx context.Context, jobID string) (audit.Job, error) {
	job, err := e.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, audit.ErrJobNotFound) {
			return audit.Job{}, fmt.Errorf("job %s: %w", jobID, audit.ErrJobNotFound)
		}
		return audit.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Sweep removes terminal jobs older than the retention window.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	cutoff := e.clock.Now().Add(-e.cfg.Retention)
	removed, err := e.store.Sweep(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep jobs: %w", err)
	}
	metrics.ObserveSweep(removed)
	e.reportStoreSize()
	if removed > 0 {
		e.logger.Info("retention sweep removed jobs", zap.Int("removed", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

// RunRetention sweeps every SweepInterval until ctx ends.
func (e *Engine) RunRetention(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Sweep(ctx); err != nil {
				e.logger.Error("retention sweep failed", zap.Error(err))
			}
		}
	}
}

func (e *Engine) reportStoreSize() {
	if sized, ok := e.store.(interface{ Len() int }); ok {
		metrics.SetJobsInStore(sized.Len())
	}
}
