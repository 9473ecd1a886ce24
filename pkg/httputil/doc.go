// Package httputil provides HTTP handler utilities: JSON replies with a
// uniform error body, path and query parsing on top of gorilla/mux, and
// request id, logging and panic recovery middleware.
package httputil
