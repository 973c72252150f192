// Package assembler drives one audit end to end: submit, poll, score and
// enrich with insights, degrading to a simulated audit when allowed.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/seo-auditor/internal/audit"
	"github.com/JakeFAU/seo-auditor/internal/insight"
	"github.com/JakeFAU/seo-auditor/internal/metrics"
	"github.com/JakeFAU/seo-auditor/internal/scoring"
	"github.com/JakeFAU/seo-auditor/internal/simulate"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultPollInterval   = 2 * time.Second
	DefaultMaxAttempts    = 30
	DefaultFallbackDelay  = 1500 * time.Millisecond
	DefaultInsightTimeout = 20 * time.Second
)

var (
	// ErrTimeout is returned when the job is still running after the last poll.
	ErrTimeout = errors.New("audit timed out waiting for job")
	// ErrJobFailed wraps the error message stored on a FAILED job.
	ErrJobFailed = errors.New("audit job failed")
)

// Fallback reasons recorded in logs and metrics.
const (
	reasonSubmit    = "submit"
	reasonPoll      = "poll"
	reasonJobFailed = "job_failed"
	reasonTimeout   = "timeout"
)

// JobClient is the part of the job API the assembler needs.
type JobClient interface {
	SubmitJob(ctx context.Context, rawURL string) (string, error)
	GetJob(ctx context.Context, jobID string) (audit.Job, error)
}

// AuditIDs generates scored audit identifiers.
type AuditIDs interface {
	NewAuditID() (string, error)
}

// FallbackFunc builds the audit returned when the real one fails.
type FallbackFunc func(id, rawURL string, at time.Time) scoring.ScoredAudit

// Config tunes polling and degradation.
type Config struct {
	PollInterval  time.Duration
	MaxAttempts   int
	FallbackDelay time.Duration
	// DegradeToSimulated returns a simulated audit instead of the error.
	DegradeToSimulated bool
	InsightTimeout     time.Duration
}

// Assembler produces scored audits.
type Assembler struct {
	client   JobClient
	ids      AuditIDs
	clock    audit.Clock
	insights insight.Generator
	fallback FallbackFunc
	cfg      Config
	logger   *zap.Logger
}

// Option customizes an Assembler.
type Option func(*Assembler)

// WithFallback replaces the simulated audit generator.
func WithFallback(fn FallbackFunc) Option {
	return func(a *Assembler) { a.fallback = fn }
}

// New builds an Assembler. A nil generator skips insights entirely.
func New(
	client JobClient,
	ids AuditIDs,
	clock audit.Clock,
	insights insight.Generator,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Assembler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.FallbackDelay < 0 {
		cfg.FallbackDelay = 0
	}
	if cfg.InsightTimeout <= 0 {
		cfg.InsightTimeout = DefaultInsightTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Assembler{
		client:   client,
		ids:      ids,
		clock:    clock,
		insights: insights,
		fallback: simulate.Audit,
		cfg:      cfg,
		logger:   logger.Named("assembler"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunAudit audits rawURL. Input validation errors are always returned as is,
// even when DegradeToSimulated is set; only later failures degrade to the
// fallback audit.
func (a *Assembler) RunAudit(ctx context.Context, rawURL string) (scoring.ScoredAudit, error) {
	if _, err := audit.ValidateURL(rawURL); err != nil {
		return scoring.ScoredAudit{}, err
	}
	id, err := a.ids.NewAuditID()
	if err != nil {
		return scoring.ScoredAudit{}, fmt.Errorf("audit id: %w", err)
	}
	logger := a.logger.With(zap.String("audit_id", id), zap.String("url", rawURL))

	data, reason, err := a.collect(ctx, rawURL)
	if err == nil {
		scored := scoring.Score(id, rawURL, a.clock.Now(), data)
		return a.enrich(ctx, logger, scored), nil
	}
	if !a.cfg.DegradeToSimulated {
		return scoring.ScoredAudit{}, err
	}

	logger.Warn("audit failed, returning simulated audit", zap.String("reason", reason), zap.Error(err))
	metrics.ObserveFallback(reason)
	if err := sleep(ctx, a.cfg.FallbackDelay); err != nil {
		return scoring.ScoredAudit{}, fmt.Errorf("fallback canceled: %w", err)
	}
	simulated := a.fallback(id, rawURL, a.clock.Now())
	return a.enrich(ctx, logger, simulated), nil
}

// collect submits the job and polls until it is terminal or attempts run out.
func (a *Assembler) collect(ctx context.Context, rawURL string) (audit.PageData, string, error) {
	jobID, err := a.client.SubmitJob(ctx, rawURL)
	if err != nil {
		return audit.PageData{}, reasonSubmit, fmt.Errorf("submit audit job: %w", err)
	}
	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		if err := sleep(ctx, a.cfg.PollInterval); err != nil {
			return audit.PageData{}, reasonPoll, fmt.Errorf("poll job %s: %w", jobID, err)
		}
		job, err := a.client.GetJob(ctx, jobID)
		if err != nil {
			return audit.PageData{}, reasonPoll, fmt.Errorf("poll job %s: %w", jobID, err)
		}
		switch job.Status {
		case audit.JobStatusCompleted:
			if job.Result == nil {
				return audit.PageData{}, reasonJobFailed, fmt.Errorf("%w: job %s completed without a result", ErrJobFailed, jobID)
			}
			return *job.Result, "", nil
		case audit.JobStatusFailed:
			return audit.PageData{}, reasonJobFailed, fmt.Errorf("%w: %s", ErrJobFailed, job.ErrorText())
		}
	}
	return audit.PageData{}, reasonTimeout, fmt.Errorf("%w: job %s after %d attempts", ErrTimeout, jobID, a.cfg.MaxAttempts)
}

// enrich attaches insights, using the mock generator when the configured one
// fails.
func (a *Assembler) enrich(ctx context.Context, logger *zap.Logger, scored scoring.ScoredAudit) scoring.ScoredAudit {
	if a.insights == nil {
		return scored
	}
	insightCtx, cancel := context.WithTimeout(ctx, a.cfg.InsightTimeout)
	defer cancel()

	insights, err := a.insights.Generate(insightCtx, scored)
	if err != nil {
		logger.Warn("insight generation failed, using mock insights",
			zap.String("provider", a.insights.Name()), zap.Error(err))
		metrics.ObserveInsight(a.insights.Name(), "error")
		insights = insight.Mock{}.Insights(scored)
	} else {
		metrics.ObserveInsight(a.insights.Name(), "success")
	}
	return scoring.WithInsights(scored, insights)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
