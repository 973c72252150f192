// Package api hosts the HTTP server, middleware, and REST handlers. Routes:
//   - POST /api/jobs to submit an audit job, GET /api/jobs/{id} to poll it.
//   - POST /api/crawl for a synchronous plain-fetch extraction.
//   - GET /healthz and /readyz for probes, GET /metrics for Prometheus.
package api
