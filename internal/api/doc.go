// Package api hosts the optional status server for a running crawler.
// Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/cache lists response cache entries with their metadata.
//   - GET /v1/progress and /v1/progress/{run_id} report crawl run snapshots.
package api
