package assembler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-auditor/internal/audit"
	"github.com/JakeFAU/seo-auditor/internal/metrics"
	"github.com/JakeFAU/seo-auditor/internal/scoring"
)

func init() {
	metrics.Init()
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeIDs struct{ err error }

func (f fakeIDs) NewAuditID() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "audit-1", nil
}

// fakeClient returns the scripted statuses in order and repeats the last.
type fakeClient struct {
	mu        sync.Mutex
	submitErr error
	pollErr   error
	jobs      []audit.Job
	polls     int
	submitted []string
}

func (f *fakeClient) SubmitJob(_ context.Context, rawURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, rawURL)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "job-1", nil
}

func (f *fakeClient) GetJob(context.Context, string) (audit.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return audit.Job{}, f.pollErr
	}
	idx := f.polls - 1
	if idx >= len(f.jobs) {
		idx = len(f.jobs) - 1
	}
	return f.jobs[idx], nil
}

type fakeGenerator struct {
	out   scoring.AIInsights
	err   error
	calls atomic.Int32
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(context.Context, scoring.ScoredAudit) (scoring.AIInsights, error) {
	g.calls.Add(1)
	return g.out, g.err
}

var stubData = audit.PageData{
	Title:     "Example Domain",
	H1s:       []string{"Example Domain"},
	LinkCount: 1,
	WordCount: 28,
	LoadTime:  200,
}

func job(status audit.JobStatus) audit.Job {
	j := audit.Job{ID: "job-1", URL: "https://example.com", Status: status}
	switch status {
	case audit.JobStatusCompleted:
		data := stubData
		j.Result = &data
	case audit.JobStatusFailed:
		msg := "navigation timeout: https://example.com after 45s"
		j.Error = &msg
	}
	return j
}

func fastConfig(degrade bool) Config {
	return Config{
		PollInterval:       time.Millisecond,
		MaxAttempts:        3,
		FallbackDelay:      time.Millisecond,
		DegradeToSimulated: degrade,
		InsightTimeout:     time.Second,
	}
}

type fallbackCounter struct {
	calls atomic.Int32
}

func (c *fallbackCounter) fn(id, rawURL string, at time.Time) scoring.ScoredAudit {
	c.calls.Add(1)
	return scoring.ScoredAudit{ID: id, URL: rawURL, Timestamp: at, Scores: scoring.Scores{Overall: 42}}
}

var testNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func TestRunAuditCompleted(t *testing.T) {
	t.Parallel()

	client := &fakeClient{jobs: []audit.Job{
		job(audit.JobStatusPending),
		job(audit.JobStatusProcessing),
		job(audit.JobStatusCompleted),
	}}
	counter := &fallbackCounter{}
	asm := New(client, fakeIDs{}, fakeClock{now: testNow}, nil, fastConfig(true), zap.NewNop(), WithFallback(counter.fn))

	got, err := asm.RunAudit(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, int32(0), counter.calls.Load())
	assert.Equal(t, 3, client.polls)
	assert.Equal(t, "audit-1", got.ID)
	assert.Equal(t, testNow, got.Timestamp)
	assert.Equal(t, 0, got.Technical.MetaTags.Description.Score)
	assert.Equal(t, 100, got.OnPage.Images.Score)
	assert.Equal(t, 1, got.OnPage.Headers.H1Count)
	assert.Equal(t, scoring.Scores{Overall: 68, Technical: 58, OnPage: 91, Content: 75, Performance: 100}, got.Scores)
	assert.Nil(t, got.AI)
}

func TestRunAuditTimeoutFallsBackExactlyOnce(t *testing.T) {
	t.Parallel()

	client := &fakeClient{jobs: []audit.Job{job(audit.JobStatusProcessing)}}
	counter := &fallbackCounter{}
	asm := New(client, fakeIDs{}, fakeClock{now: testNow}, nil, fastConfig(true), zap.NewNop(), WithFallback(counter.fn))

	got, err := asm.RunAudit(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, int32(1), counter.calls.Load())
	assert.Equal(t, 3, client.polls)
	assert.Len(t, client.submitted, 1)
	assert.Equal(t, 42, got.Scores.Overall)
	assert.Equal(t, "audit-1", got.ID)
}

func TestRunAuditTimeoutWithoutDegrade(t *testing.T) {
	t.Parallel()

	client := &fakeClient{jobs: []audit.Job{job(audit.JobStatusPending)}}
	counter := &fallbackCounter{}
	asm := New(client, fakeIDs{}, fakeClock{now: testNow}, nil, fastConfig(false), zap.NewNop(), WithFallback(counter.fn))

	_, err := asm.RunAudit(context.Background(), "https://example.com")
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(0), counter.calls.Load())
}

func TestRunAuditFailedJobCarriesMessage(t *testing.T) {
	t.Parallel()

	client := &fakeClient{jobs: []audit.Job{job(audit.JobStatusFailed)}}
	asm := New(client, fakeIDs{}, fakeClock{now: testNow}, nil, fastConfig(false), zap.NewNop())

	_, err := asm.RunAudit(context.Background(), "https://example.com")
	require.ErrorIs(t, err, ErrJobFailed)
	assert.Contains(t, err.Error(), "navigation timeout")
	assert.Equal(t, 1, client.polls)
}

func TestRunAuditSubmitAndPollFailuresDegrade(t *testing.T) {
	t.Parallel()

	cases := map[string]*fakeClient{
		"submit": {submitErr: audit.ErrUpstreamUnavailable},
		"poll":   {pollErr: errors.New("connection reset")},
		"failed": {jobs: []audit.Job{job(audit.JobStatusFailed)}},
	}
	for name, client := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			counter := &fallbackCounter{}
			asm := New(client, fakeIDs{}, fakeClock{now: testNow}, nil, fastConfig(true), zap.NewNop(), WithFallback(counter.fn))
			got, err := asm.RunAudit(context.Background(), "https://example.com")
			require.NoError(t, err)
			assert.Equal(t, int32(1), counter.calls.Load())
			assert.Equal(t, 42, got.Scores.Overall)
		})
	}
}

func TestRunAuditSimulatedByDefault(t *testing.T) {
	t.Parallel()

	client := &fakeClient{submitErr: audit.ErrUpstreamUnavailable}
	asm := New(client, fakeIDs{}, fakeClock{now: testNow}, nil, fastConfig(true), zap.NewNop())

	first, err := asm.RunAudit(context.Background(), "https://example.com")
	require.NoError(t, err)
	second, err := asm.RunAudit(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "https://example.com", first.URL)
}

func TestRunAuditValidationSkipsFallback(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	counter := &fallbackCounter{}
	asm := New(client, fakeIDs{}, fakeClock{now: testNow}, nil, fastConfig(true), zap.NewNop(), WithFallback(counter.fn))

	_, err := asm.RunAudit(context.Background(), "")
	require.ErrorIs(t, err, audit.ErrMissingURL)
	_, err = asm.RunAudit(context.Background(), "ftp://example.com")
	require.ErrorIs(t, err, audit.ErrInvalidURL)
	assert.Empty(t, client.submitted)
	assert.Equal(t, int32(0), counter.calls.Load())
}

func TestRunAuditMergesInsights(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{out: scoring.AIInsights{
		Industry: scoring.Industry{Primary: "Technology"},
		Summary:  "fine",
	}}
	client := &fakeClient{jobs: []audit.Job{job(audit.JobStatusCompleted)}}
	asm := New(client, fakeIDs{}, fakeClock{now: testNow}, gen, fastConfig(true), zap.NewNop())

	got, err := asm.RunAudit(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.NotNil(t, got.AI)
	assert.Equal(t, "Technology", got.AI.Industry.Primary)
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestRunAuditInsightFailureUsesMock(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: errors.New("model unavailable")}
	client := &fakeClient{jobs: []audit.Job{job(audit.JobStatusCompleted)}}
	asm := New(client, fakeIDs{}, fakeClock{now: testNow}, gen, fastConfig(true), zap.NewNop())

	got, err := asm.RunAudit(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.NotNil(t, got.AI)
	assert.Equal(t, "General Business", got.AI.Industry.Primary)
	assert.Equal(t, 68, got.Scores.Overall)
}

func TestRunAuditCanceledDuringFallbackDelay(t *testing.T) {
	t.Parallel()

	client := &fakeClient{submitErr: audit.ErrUpstreamUnavailable}
	cfg := fastConfig(true)
	cfg.FallbackDelay = time.Hour
	counter := &fallbackCounter{}
	asm := New(client, fakeIDs{}, fakeClock{now: testNow}, nil, cfg, zap.NewNop(), WithFallback(counter.fn))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := asm.RunAudit(ctx, "https://example.com")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(0), counter.calls.Load())
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	asm := New(&fakeClient{}, fakeIDs{}, fakeClock{}, nil, Config{FallbackDelay: -1}, nil)
	assert.Equal(t, DefaultPollInterval, asm.cfg.PollInterval)
	assert.Equal(t, DefaultMaxAttempts, asm.cfg.MaxAttempts)
	assert.Equal(t, time.Duration(0), asm.cfg.FallbackDelay)
	assert.Equal(t, DefaultInsightTimeout, asm.cfg.InsightTimeout)
	assert.False(t, asm.cfg.DegradeToSimulated)
}
