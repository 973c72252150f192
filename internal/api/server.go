package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-auditor/internal/audit"
	"github.com/JakeFAU/seo-auditor/internal/metrics"
)

const maxBodyBytes = 1 << 20

// JobService is the job engine as seen by the HTTP layer.
type JobService interface {
	Submit(ctx context.Context, rawURL string) (audit.Job, error)
	Status(ctx context.Context, jobID string) (audit.Job, error)
}

// ReadyFunc reports whether the service can accept work.
type ReadyFunc func(ctx context.Context) error

// Config tunes the HTTP layer.
type Config struct {
	RequestTimeout time.Duration
	// CrawlTimeout bounds the synchronous /api/crawl extraction.
	CrawlTimeout time.Duration
	// APIKey, when set, is required on every /api route.
	APIKey string
}

// Server wires HTTP handlers to the job engine and the plain extractor.
type Server struct {
	router  chi.Router
	jobs    JobService
	crawler audit.Extractor
	caps    audit.Capabilities
	ready   ReadyFunc
	cfg     Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. caps describes
// the extractor used by background jobs.
func NewServer(
	jobs JobService,
	crawler audit.Extractor,
	caps audit.Capabilities,
	ready ReadyFunc,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.CrawlTimeout <= 0 {
		cfg.CrawlTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobs:    jobs,
		crawler: crawler,
		caps:    caps,
		ready:   ready,
		cfg:     cfg,
		logger:  logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Post("/jobs", s.submitJob)
		r.Get("/jobs/{job_id}", s.getJob)
		r.Post("/crawl", s.crawl)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"capabilities": s.caps,
	})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type urlRequest struct {
	URL string `json:"url"`
}

type submitResponse struct {
	Success bool            `json:"success"`
	JobID   string          `json:"jobId"`
	Status  audit.JobStatus `json:"status"`
	Message string          `json:"message"`
}

type crawlResponse struct {
	Success    bool           `json:"success"`
	URL        string         `json:"url"`
	StatusCode int            `json:"statusCode"`
	Data       audit.PageData `json:"data"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeURLRequest(w, r)
	if !ok {
		return
	}
	job, err := s.jobs.Submit(r.Context(), req.URL)
	switch {
	case err == nil:
	case errors.Is(err, audit.ErrMissingURL):
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	case errors.Is(err, audit.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, audit.ErrUpstreamUnavailable):
		writeError(w, http.StatusServiceUnavailable, "audit queue is unavailable, try again later")
		return
	default:
		s.logger.Error("submit job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{
		Success: true,
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Audit job submitted",
	})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, audit.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		s.logger.Error("job status failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeURLRequest(w, r)
	if !ok {
		return
	}
	target, err := audit.ValidateURL(req.URL)
	if err != nil {
		if errors.Is(err, audit.ErrMissingURL) {
			writeError(w, http.StatusBadRequest, "URL is required")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid URL format")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.CrawlTimeout)
	defer cancel()
	data, err := s.crawler.Extract(ctx, target.String())
	if err != nil {
		var fetchErr *audit.FetchError
		if errors.As(err, &fetchErr) && fetchErr.StatusCode > 0 {
			writeError(w, fetchErr.HTTPStatus(), fmt.Sprintf("Failed to fetch URL: %d", fetchErr.StatusCode))
			return
		}
		s.logger.Warn("crawl failed", zap.String("url", req.URL), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to crawl URL",
			"details": err.Error(),
		})
		return
	}
	if data.H1s == nil {
		data.H1s = []string{}
	}
	writeJSON(w, http.StatusOK, crawlResponse{
		Success:    true,
		URL:        req.URL,
		StatusCode: data.StatusCode,
		Data:       data,
	})
}

func decodeURLRequest(w http.ResponseWriter, r *http.Request) (urlRequest, bool) {
	var req urlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return urlRequest{}, false
	}
	return req, true
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
