// Package worker drives one audit job from PENDING to a terminal state.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-auditor/internal/audit"
	"github.com/JakeFAU/seo-auditor/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	// Topic receives a JobEvent for every terminal transition. Empty disables
	// notifications.
	Topic string
	// ArchivePrefix is prepended to snapshot paths.
	ArchivePrefix string
	// JobTimeout bounds one extraction end to end. Zero disables it.
	JobTimeout time.Duration
}

// Worker consumes queue items and runs the extraction for each.
type Worker struct {
	queue     audit.Queue
	jobStore  audit.JobStore
	extractor audit.Extractor
	limiter   audit.Limiter
	archive   audit.BlobStore
	publisher audit.Publisher
	clock     audit.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. limiter, archive and publisher may be nil.
func New(
	queue audit.Queue,
	jobStore audit.JobStore,
	extractor audit.Extractor,
	limiter audit.Limiter,
	archive audit.BlobStore,
	publisher audit.Publisher,
	clock audit.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		jobStore:  jobStore,
		extractor: extractor,
		limiter:   limiter,
		archive:   archive,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, audit.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item audit.QueueItem) {
	log := w.logger.With(zap.String("job_id", item.JobID), zap.String("url", item.URL))

	// Store writes must land even when shutdown cancels ctx mid-extraction.
	storeCtx := context.WithoutCancel(ctx)
	if _, err := w.jobStore.Update(storeCtx, item.JobID, func(j *audit.Job) error {
		return j.Start(w.clock.Now())
	}); err != nil {
		log.Error("start job failed", zap.Error(err))
		return
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := time.Now()
	data, err := w.extract(ctx, item.URL)
	backend := w.extractor.Capabilities().Backend
	metrics.ObserveExtraction(backend, outcome(err), time.Since(start))

	job, updateErr := w.jobStore.Update(storeCtx, item.JobID, func(j *audit.Job) error {
		if err != nil {
			return j.Fail(w.clock.Now(), err.Error())
		}
		return j.Complete(w.clock.Now(), data)
	})
	if updateErr != nil {
		log.Error("final job status update failed", zap.Error(updateErr))
		return
	}
	metrics.ObserveJob(string(job.Status))

	if err != nil {
		log.Warn("job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
	} else {
		log.Info("job completed",
			zap.Int("word_count", data.WordCount),
			zap.Int64("load_time_ms", data.LoadTime),
			zap.Duration("elapsed", time.Since(start)),
		)
	}

	archiveURI := ""
	if job.Status == audit.JobStatusCompleted {
		archiveURI = w.archiveResult(storeCtx, job, log)
	}
	w.publishEvent(storeCtx, job, archiveURI, log)
}

// extract runs the extractor under the rate limiter and job timeout. Panics
// are converted into errors so the job still reaches FAILED.
func (w *Worker) extract(ctx context.Context, rawURL string) (data audit.PageData, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panic: %v", r)
		}
	}()

	if _, err := audit.ValidateURL(rawURL); err != nil {
		return audit.PageData{}, err
	}
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, rawURL); err != nil {
			return audit.PageData{}, err
		}
	}

	jobCtx := ctx
	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}
	data, err = w.extractor.Extract(jobCtx, rawURL)
	if err != nil && errors.Is(jobCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, audit.ErrNavigationTimeout) {
		return audit.PageData{}, fmt.Errorf("%w: job exceeded %s", audit.ErrNavigationTimeout, w.cfg.JobTimeout)
	}
	return data, err
}

func (w *Worker) archiveResult(ctx context.Context, job audit.Job, log *zap.Logger) string {
	if w.archive == nil || job.Result == nil {
		return ""
	}
	body, err := json.Marshal(job.Result)
	if err != nil {
		log.Error("marshal snapshot failed", zap.Error(err))
		return ""
	}
	uri, err := w.archive.PutObject(ctx, w.archivePath(job.ID), "application/json", bytes.NewReader(body))
	if err != nil {
		log.Warn("archive snapshot failed", zap.Error(err))
		return ""
	}
	log.Debug("snapshot archived", zap.String("uri", uri))
	return uri
}

func (w *Worker) archivePath(jobID string) string {
	prefix := strings.Trim(w.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return jobID + ".json"
	}
	return fmt.Sprintf("%s/%s.json", prefix, jobID)
}

func (w *Worker) publishEvent(ctx context.Context, job audit.Job, archiveURI string, log *zap.Logger) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	event := audit.JobEvent{
		JobID:      job.ID,
		URL:        job.URL,
		Status:     job.Status,
		Error:      job.ErrorText(),
		ArchiveURI: archiveURI,
	}
	if job.CompletedAt != nil {
		event.CompletedAt = *job.CompletedAt
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, event); err != nil {
		log.Warn("publish job event failed", zap.Error(err))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, audit.ErrNavigationTimeout):
		return "timeout"
	case errors.Is(err, audit.ErrFetchFailed):
		return "fetch_failed"
	case errors.Is(err, audit.ErrValidation):
		return "invalid_url"
	default:
		return "error"
	}
}
