// Package observability provides structured logging and Prometheus metrics
// for the session auth service.
//
// Auth operations (login, issue, authenticate, refresh, logout, revoke_all) are
// counted by outcome, where the outcome is "ok" or the domain error code, and
// timed in a latency histogram.
package observability
