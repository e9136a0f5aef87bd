package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type queuedJob struct {
	job        Job
	visibleAt  time.Time
	token      uuid.UUID
	deliveries int
	seq        uint64
}

// MemoryQueue is a bounded in-process Queue for tests and single-process
// development.
type MemoryQueue struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*queuedJob
	capacity int
	closed   bool
	seq      uint64
	now      func() time.Time
	logger   *slog.Logger
}

var _ Queue = (*MemoryQueue)(nil)

// MemoryQueueOption configures a MemoryQueue.
type MemoryQueueOption func(*MemoryQueue)

// WithClock replaces the queue's time source.
func WithClock(now func() time.Time) MemoryQueueOption {
	return func(q *MemoryQueue) {
		q.now = now
	}
}

// NewMemoryQueue creates a queue holding at most capacity jobs.
func NewMemoryQueue(capacity int, logger *slog.Logger, opts ...MemoryQueueOption) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &MemoryQueue{
		jobs:     make(map[uuid.UUID]*queuedJob),
		capacity: capacity,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "memory_queue")),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(_ context.Context, job Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if len(q.jobs) >= q.capacity {
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, q.capacity)
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if _, exists := q.jobs[job.ID]; exists {
		return nil
	}

	q.seq++
	q.jobs[job.ID] = &queuedJob{
		job:       job,
		visibleAt: q.now().Add(delay),
		seq:       q.seq,
	}

	q.logger.Debug("job enqueued",
		"job_id", job.ID,
		"task_id", job.TaskID,
		"delay", delay,
		"queue_len", len(q.jobs),
		"queue_cap", q.capacity)
	return nil
}

// Dequeue implements Queue.
func (q *MemoryQueue) Dequeue(_ context.Context, visibility time.Duration) (*Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	now := q.now()
	var next *queuedJob
	for _, candidate := range q.jobs {
		if candidate.visibleAt.After(now) {
			continue
		}
		if next == nil || before(candidate, next) {
			next = candidate
		}
	}
	if next == nil {
		return nil, ErrQueueEmpty
	}

	next.token = uuid.New()
	next.deliveries++
	next.visibleAt = now.Add(visibility)

	return &Delivery{Job: next.job, Token: next.token, Deliveries: next.deliveries}, nil
}

func before(a, b *queuedJob) bool {
	if a.job.Priority != b.job.Priority {
		return a.job.Priority > b.job.Priority
	}
	if !a.visibleAt.Equal(b.visibleAt) {
		return a.visibleAt.Before(b.visibleAt)
	}
	return a.seq < b.seq
}

func (q *MemoryQueue) leased(d *Delivery) (*queuedJob, error) {
	entry, ok := q.jobs[d.ID]
	if !ok || entry.token != d.Token {
		return nil, ErrLeaseLost
	}
	return entry, nil
}

// Ack implements Queue.
func (q *MemoryQueue) Ack(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := q.leased(d); err != nil {
		return err
	}
	delete(q.jobs, d.ID)
	return nil
}

// Nack implements Queue.
func (q *MemoryQueue) Nack(_ context.Context, d *Delivery, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, err := q.leased(d)
	if err != nil {
		return err
	}
	entry.token = uuid.Nil
	entry.visibleAt = q.now().Add(delay)
	return nil
}

// Len returns the number of queued and leased jobs.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Jobs returns a snapshot of every queued or leased job.
func (q *MemoryQueue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]Job, 0, len(q.jobs))
	for _, entry := range q.jobs {
		jobs = append(jobs, entry.job)
	}
	return jobs
}

// Close rejects further enqueues and dequeues.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.logger.Info("task queue closed")
	}
}
