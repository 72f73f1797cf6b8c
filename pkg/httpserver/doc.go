// Package httpserver runs an http.Handler with graceful shutdown.
//
// Server.Run blocks until the context is cancelled or the process receives
// SIGINT/SIGTERM, then drains in-flight requests within the shutdown timeout
// and runs registered stop hooks. NewFromConfig builds a server from the
// env-tagged Config loaded through pkg/config.
//
// HealthCheckHandler serves liveness (no checks) and readiness (named
// dependency checks such as the Postgres pool and Redis client) as JSON.
package httpserver
