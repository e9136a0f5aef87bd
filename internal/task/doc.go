// Package task manages background job queuing and processing.
// Jobs are delivered at least once: a leased job that is not acknowledged
// within its visibility timeout is delivered again, so handlers must be
// idempotent.
package task
