// Package api serves the JSON view of the quality engine next to /metrics.
//
// New returns an http.Handler that serves:
//
//	GET /api/v1/report      last cycle: verdicts, decorations, input errors, history
//	GET /api/v1/alerts      firing alerts plus those resolved in the last hour
//	GET /api/v1/aggregates  names of the fresh aggregates in the store
//
// All endpoints respond with Content-Type: application/json and return 405
// for non-GET methods. /api/v1/report returns 503 until the first cycle ran.
package api
