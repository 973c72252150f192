package assembler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/seo-auditor/internal/audit"
)

// HTTPClient talks to the job API over HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient targets the job API rooted at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type submitResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Error   string `json:"error"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// SubmitJob posts url to /api/jobs and returns the new job id.
func (c *HTTPClient) SubmitJob(ctx context.Context, rawURL string) (string, error) {
	body, err := json.Marshal(map[string]string{"url": rawURL})
	if err != nil {
		return "", fmt.Errorf("marshal submit body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/jobs", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: submit job: %w", audit.ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("%w: submit job: %s", audit.ErrUpstreamUnavailable, describe(resp))
	}
	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("%w: submit response missing jobId", audit.ErrUpstreamUnavailable)
	}
	return out.JobID, nil
}

// GetJob fetches a job snapshot.
func (c *HTTPClient) GetJob(ctx context.Context, jobID string) (audit.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return audit.Job{}, fmt.Errorf("build status request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return audit.Job{}, fmt.Errorf("%w: get job: %w", audit.ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return audit.Job{}, fmt.Errorf("%w: %s", audit.ErrJobNotFound, jobID)
	default:
		return audit.Job{}, fmt.Errorf("%w: get job: %s", audit.ErrUpstreamUnavailable, describe(resp))
	}
	var job audit.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return audit.Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}

func describe(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e errorResponse
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
