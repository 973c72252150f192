package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/seo-auditor/internal/audit"
	"github.com/JakeFAU/seo-auditor/internal/config"
	"github.com/JakeFAU/seo-auditor/internal/logging"
	"github.com/JakeFAU/seo-auditor/internal/policy/ratelimit"
	"github.com/JakeFAU/seo-auditor/internal/storage/local"
)

const samplePage = `<!doctype html><html><head><title>Sample Page</title>
<meta name="description" content="A sample page"></head>
<body><h1>Hello</h1><p>Some words here.</p></body></html>`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Server:  config.ServerConfig{Port: 8080, RequestTimeout: 5 * time.Second, ShutdownTimeout: 5 * time.Second},
		Logging: logging.Config{Level: "error"},
		Engine: config.EngineConfig{
			Concurrency:    2,
			QueueDepth:     4,
			Retention:      time.Hour,
			SweepInterval:  time.Hour,
			JobTimeout:     10 * time.Second,
			EnqueueTimeout: time.Second,
		},
		Extractor: config.ExtractorConfig{
			Backend:     config.BackendColly,
			NavTimeout:  5 * time.Second,
			HTTPTimeout: 5 * time.Second,
		},
		RateLimit: ratelimit.Config{PerHostRPS: 100, Burst: 10},
		Archive: config.ArchiveConfig{
			Backend: "local",
			Prefix:  "snapshots",
			Local:   local.Config{BaseDir: t.TempDir()},
		},
		PubSub: config.PubSubConfig{Topic: "audit-jobs"},
	}
}

func TestBuildExposesCapabilities(t *testing.T) {
	app, err := Build(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status       string             `json:"status"`
		Capabilities audit.Capabilities `json:"capabilities"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "colly", body.Capabilities.Backend)
	assert.False(t, body.Capabilities.Rendered)
}

func TestBuildRejectsBadLogLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Level = "loud"
	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
}

type countingCloser struct{ closes atomic.Int32 }

func (c *countingCloser) Close() error {
	c.closes.Add(1)
	return nil
}

func TestBuildClosesGCSClientWhenArchiveSetupFails(t *testing.T) {
	closer := &countingCloser{}
	orig := openGCS
	openGCS = func(ctx context.Context) (*storage.Client, io.Closer, error) {
		client, err := storage.NewClient(ctx, option.WithoutAuthentication())
		if err != nil {
			return nil, nil, err
		}
		t.Cleanup(func() { _ = client.Close() })
		return client, closer, nil
	}
	t.Cleanup(func() { openGCS = orig })

	cfg := testConfig(t)
	cfg.Archive = config.ArchiveConfig{Backend: "gcs"}
	_, err := Build(context.Background(), cfg)
	require.ErrorContains(t, err, "bucket name is required")
	assert.Equal(t, int32(1), closer.closes.Load())
}

func TestBuildAuthProtectsAPI(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeProcessesJobsAndShutsDown(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, samplePage)
	}))
	t.Cleanup(site.Close)

	app, err := Build(context.Background(), testConfig(t))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	resp, err := http.Post(base+"/api/jobs", "application/json",
		strings.NewReader(fmt.Sprintf(`{"url":%q}`, site.URL)))
	require.NoError(t, err)
	var submitted struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	_ = resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NotEmpty(t, submitted.JobID)

	var job audit.Job
	require.Eventually(t, func() bool {
		r, getErr := http.Get(base + "/api/jobs/" + submitted.JobID)
		if getErr != nil {
			return false
		}
		defer r.Body.Close()
		if decodeErr := json.NewDecoder(r.Body).Decode(&job); decodeErr != nil {
			return false
		}
		return job.Status.Terminal()
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, audit.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, "Sample Page", job.Result.Title)
	assert.Equal(t, []string{"Hello"}, job.Result.H1s)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	assert.ErrorIs(t, app.ready(context.Background()), errShuttingDown)
}
