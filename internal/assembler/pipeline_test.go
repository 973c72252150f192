package assembler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-auditor/internal/audit"
	"github.com/JakeFAU/seo-auditor/internal/dispatcher"
	"github.com/JakeFAU/seo-auditor/internal/engine"
	"github.com/JakeFAU/seo-auditor/internal/id/uuid"
	queuememory "github.com/JakeFAU/seo-auditor/internal/queue/memory"
	"github.com/JakeFAU/seo-auditor/internal/storage/memory"
	"github.com/JakeFAU/seo-auditor/internal/worker"
)

// engineClient serves JobClient straight from an in-process engine.
type engineClient struct {
	eng *engine.Engine
}

func (c engineClient) SubmitJob(ctx context.Context, rawURL string) (string, error) {
	job, err := c.eng.Submit(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

func (c engineClient) GetJob(ctx context.Context, jobID string) (audit.Job, error) {
	return c.eng.Status(ctx, jobID)
}

type exampleDomainExtractor struct{}

func (exampleDomainExtractor) Extract(context.Context, string) (audit.PageData, error) {
	return audit.PageData{
		Title:             "Example Domain",
		Description:       "",
		H1s:               []string{"Example Domain"},
		ImgCount:          0,
		MissingAltCount:   0,
		LinkCount:         1,
		InternalLinkCount: 0,
		WordCount:         28,
		LoadTime:          200,
	}, nil
}

func (exampleDomainExtractor) Capabilities() audit.Capabilities {
	return audit.Capabilities{Backend: "stub"}
}

func TestRunAuditThroughEngineScoresStubExtraction(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := fakeClock{now: time.Unix(1_000, 0)}
	queue := queuememory.NewQueue(4)
	store := memory.NewJobStore()
	w := worker.New(queue, store, exampleDomainExtractor{}, nil, nil, nil, clock, worker.Config{}, zap.NewNop())
	pool := dispatcher.New(queue, []dispatcher.Runner{w})
	go pool.Run(ctx)
	eng := engine.New(store, pool, uuid.New(), clock, engine.Config{}, zap.NewNop())

	fallback := &fallbackCounter{}
	a := New(engineClient{eng: eng}, fakeIDs{}, clock, nil, Config{
		PollInterval:       5 * time.Millisecond,
		MaxAttempts:        200,
		DegradeToSimulated: true,
	}, zap.NewNop(), WithFallback(fallback.fn))

	got, err := a.RunAudit(ctx, "https://example.com")
	require.NoError(t, err)
	require.Zero(t, fallback.calls.Load())
	require.Equal(t, "https://example.com", got.URL)
	require.Equal(t, 0, got.Technical.MetaTags.Description.Score)
	require.Equal(t, 100, got.OnPage.Images.Score)
	require.Equal(t, 1, got.OnPage.Headers.H1Count)
	require.Nil(t, got.AI)
}
