// Package httpapi serves the analytics repository over HTTP as JSON.
//
// Routes:
//
//	GET  /api/v1/analytics/{period}
//	GET  /api/v1/records
//	GET  /api/v1/weekly?weeks=N
//	GET  /api/v1/compare?current=weekly&comparison=last-week
//	GET  /api/v1/detailed/{period}
//	GET  /api/v1/series/{period}/{metric}?max=200&strategy=adaptive
//	GET  /api/v1/cache/stats
//	POST /api/v1/cache/invalidate
//	GET  /health/live, /health/ready, /metrics
//
// A failing record store answers 503; unknown periods, metrics and
// strategies answer 400.
package httpapi
