/*
Package httpserver hosts API handlers behind a common lifecycle.

Every server exposes:

	GET /livez    always 200 while the process runs
	GET /readyz   200, or 503 after /drain
	GET /drain    mark the server not ready
	GET /undrain  mark the server ready again

Metrics are served from a separate listener (MetricsAddr) and pprof is
mounted under /debug when enabled. Requests are logged with the flashbots
httplogger middleware.
*/
package httpserver
