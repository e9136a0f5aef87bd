package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/store"
	"github.com/phrazzld/guideline-api/internal/task"
)

// JobQueue is a task.Queue backed by the generation_jobs table. Leasing uses
// FOR UPDATE SKIP LOCKED so concurrent workers never receive the same row.
type JobQueue struct {
	db     store.DBTX
	logger *slog.Logger
	now    func() time.Time
}

var _ task.Queue = (*JobQueue)(nil)

// NewJobQueue creates a JobQueue.
func NewJobQueue(db store.DBTX, logger *slog.Logger) *JobQueue {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobQueue{
		db:     db,
		logger: logger.With(slog.String("component", "job_queue")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue implements task.Queue.
func (q *JobQueue) Enqueue(ctx context.Context, job task.Job, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = q.now()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO generation_jobs (id, job_type, task_id, attempt, force, priority, enqueued_at, visible_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, string(job.Type), job.TaskID, job.Attempt, job.Force, job.Priority,
		job.EnqueuedAt, q.now().Add(delay),
	)
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, MapError(err))
	}

	q.logger.Debug("job enqueued",
		slog.String("job_id", job.ID.String()),
		slog.String("task_id", job.TaskID.String()),
		slog.Duration("delay", delay))
	return nil
}

// Dequeue implements task.Queue.
func (q *JobQueue) Dequeue(ctx context.Context, visibility time.Duration) (*task.Delivery, error) {
	now := q.now()
	token := uuid.New()

	var (
		d       task.Delivery
		jobType string
	)
	err := q.db.QueryRowContext(ctx, `
		UPDATE generation_jobs SET
			lease_token = $1,
			deliveries = deliveries + 1,
			visible_at = $3
		WHERE id = (
			SELECT id FROM generation_jobs
			WHERE visible_at <= $2
			ORDER BY priority DESC, visible_at ASC, enqueued_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, job_type, task_id, attempt, force, priority, enqueued_at, deliveries`,
		token, now, now.Add(visibility),
	).Scan(&d.ID, &jobType, &d.TaskID, &d.Attempt, &d.Force, &d.Priority, &d.EnqueuedAt, &d.Deliveries)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", MapError(err))
	}

	d.Type = task.JobType(jobType)
	d.EnqueuedAt = d.EnqueuedAt.UTC()
	d.Token = token
	return &d, nil
}

// Ack implements task.Queue.
func (q *JobQueue) Ack(ctx context.Context, d *task.Delivery) error {
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM generation_jobs WHERE id = $1 AND lease_token = $2`, d.ID, d.Token)
	if err != nil {
		return fmt.Errorf("ack job %s: %w", d.ID, MapError(err))
	}
	return leaseHeld(result)
}

// Nack implements task.Queue.
func (q *JobQueue) Nack(ctx context.Context, d *task.Delivery, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	result, err := q.db.ExecContext(ctx, `
		UPDATE generation_jobs SET lease_token = NULL, visible_at = $3
		WHERE id = $1 AND lease_token = $2`,
		d.ID, d.Token, q.now().Add(delay))
	if err != nil {
		return fmt.Errorf("nack job %s: %w", d.ID, MapError(err))
	}
	return leaseHeld(result)
}

func leaseHeld(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return task.ErrLeaseLost
	}
	return nil
}

// Pending returns the number of jobs in the table, leased or not.
func (q *JobQueue) Pending(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generation_jobs`).Scan(&n); err != nil {
		return 0, MapError(err)
	}
	return n, nil
}
