package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskEvent is one entry of a task's audit trail. It is written in the same
// statement as the transition it records.
type TaskEvent struct {
	ID              int64       `json:"id"`
	TaskID          uuid.UUID   `json:"task_id"`
	Event           string      `json:"event"`
	FromStatus      TaskStatus  `json:"from_status,omitempty"`
	FromDraftStatus DraftStatus `json:"from_draft_status,omitempty"`
	ToStatus        TaskStatus  `json:"to_status"`
	ToDraftStatus   DraftStatus `json:"to_draft_status"`
	ActorID         *uuid.UUID  `json:"actor_id,omitempty"`
	Detail          string      `json:"detail,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}
