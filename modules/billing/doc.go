// Package billing exposes the subscription billing engine over a JSON HTTP API:
// subscription lifecycle commands, charge outcome reporting, the Paddle
// webhook, revenue split quotes and a health check.
package billing
