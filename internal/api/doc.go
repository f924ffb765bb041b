// Package api hosts the HTTP server, middleware, and handlers for the
// publishing endpoints. Notable routes:
//   - POST /micropub creates a note from a form or JSON Micropub request.
//   - POST /webmention records a remote reaction to one of our notes.
//   - GET /notes and /notes/{slug} read stored notes as JF2.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
