// Package postgres provides PostgreSQL implementations of the store
// interfaces, the generation job queue and the shared rate limiter.
//
// Every task mutation is a single conditional UPDATE guarded on the observed
// workflow state that also appends the task_events row, so a write either
// applies together with its history entry or not at all.
package postgres
