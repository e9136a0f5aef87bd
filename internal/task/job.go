package task

import (
	"time"

	"github.com/google/uuid"
)

// JobType identifies the handler a job is dispatched to.
type JobType string

// Known job types.
const (
	// JobTypeGenerateDraft runs one draft generation attempt for a task.
	JobTypeGenerateDraft JobType = "generate_draft"
)

// Job is a unit of background work.
type Job struct {
	ID     uuid.UUID `json:"id"`
	Type   JobType   `json:"type"`
	TaskID uuid.UUID `json:"task_id"`

	// Attempt is the task's retry_count when the job was published. Retry
	// jobs only start while the task still has this count.
	Attempt int `json:"attempt"`

	// Force bypasses draft reuse.
	Force bool `json:"force"`

	Priority   int       `json:"priority"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewGenerationJob creates a draft generation job for a task.
func NewGenerationJob(taskID uuid.UUID, attempt int, force bool, priority int) Job {
	return Job{
		ID:         uuid.New(),
		Type:       JobTypeGenerateDraft,
		TaskID:     taskID,
		Attempt:    attempt,
		Force:      force,
		Priority:   priority,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Delivery is a leased job. Token identifies the lease; acknowledging with a
// token whose lease expired fails with ErrLeaseLost.
type Delivery struct {
	Job
	Token      uuid.UUID
	Deliveries int
}
