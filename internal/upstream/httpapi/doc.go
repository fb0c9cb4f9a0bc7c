// Package httpapi implements upstream.Client over a JSON HTTP monitoring API.
//
// Requests are rate limited per account, retried with exponential backoff on
// transport errors, 429 and 5xx responses, traced, and counted in Prometheus.
package httpapi
