// Package http provides the HTTP observer API implementation.
//
// The HTTP server exposes endpoints for:
//   - Graph listing and inspection
//   - Status, result and event log queries
//   - Control operations (cancel, pause, resume, retry)
//   - Health checks
//   - Prometheus metrics
package http
