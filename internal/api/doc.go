// Package api hosts the operator HTTP surface. Routes:
//   - GET /healthz and /readyz for liveness and readiness checks; readyz pings the store.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/cycles/last for the most recent crawl cycle summary.
package api
