// Package server hosts the optional Fiber status surface that runs next to the
// mounted filesystem. It exposes cache and worker statistics under /-/status,
// Prometheus metrics under /-/metrics and a manual sweep of expired cache
// entries under /-/purge. Every response carries an X-Request-ID header; any
// path outside the /-/ namespace is answered with a JSON 404.
package server
