package task

import (
	"context"
	"errors"
	"time"
)

// Common errors returned by queue implementations.
var (
	ErrQueueEmpty  = errors.New("no job available")
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
	ErrLeaseLost   = errors.New("job lease expired or already settled")
)

// Queue is an at-least-once job queue with delayed dispatch.
type Queue interface {
	// Enqueue publishes job, visible after delay.
	Enqueue(ctx context.Context, job Job, delay time.Duration) error

	// Dequeue leases the next visible job for visibility. Jobs are handed out
	// highest priority first, then oldest visible time. Returns ErrQueueEmpty
	// when nothing is visible.
	Dequeue(ctx context.Context, visibility time.Duration) (*Delivery, error)

	// Ack removes a leased job.
	Ack(ctx context.Context, d *Delivery) error

	// Nack releases a leased job, visible again after delay.
	Nack(ctx context.Context, d *Delivery, delay time.Duration) error
}
