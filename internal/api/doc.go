// Package api adapts the task, review and stats services to HTTP. Handlers
// decode and validate requests, call a single service operation and map its
// errors to status codes with messages that never carry internal details.
//
// The acting user is taken from the X-User-ID header; authentication is
// expected to happen in front of the service.
package api
