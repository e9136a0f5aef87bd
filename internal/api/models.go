package api

import (
	"github.com/phrazzld/guideline-api/internal/domain"
)

// CreateTaskRequest is the body of POST /tasks.
type CreateTaskRequest struct {
	TableID   string `json:"table_id"   validate:"required,uuid"`
	ProjectID string `json:"project_id" validate:"required,uuid"`
	Priority  int    `json:"priority"   validate:"gte=0"`
}

// EnqueueDraftRequest is the optional body of POST /tasks/{id}/draft.
type EnqueueDraftRequest struct {
	Force bool `json:"force"`
}

// AssignRequest is the body of PUT /tasks/{id}/assignee. A null assignee
// unassigns the task.
type AssignRequest struct {
	Assignee *string `json:"assignee" validate:"omitempty,uuid"`
}

// RecordEditRequest is the body of POST /drafts/{id}/edits.
type RecordEditRequest struct {
	Text             string `json:"edited_text"        validate:"required"`
	Reason           string `json:"edit_reason"        validate:"max=2000"`
	TimeSpentMinutes int    `json:"time_spent_minutes" validate:"gte=0"`
}

// RecordQARequest is the body of POST /edits/{id}/qa.
type RecordQARequest struct {
	Result            string `json:"qa_result"           validate:"required,oneof=pass fail"`
	Comments          string `json:"qa_comments"         validate:"max=4000"`
	ReviewTimeMinutes int    `json:"review_time_minutes" validate:"gte=0"`
}

// TaskListResponse is a page of tasks.
type TaskListResponse struct {
	Tasks  []*domain.Task `json:"tasks"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// DraftListResponse is a page of draft summaries.
type DraftListResponse struct {
	Drafts []domain.DraftSummary `json:"drafts"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// CreateTaskResponse identifies a new task.
type CreateTaskResponse struct {
	TaskID string       `json:"task_id"`
	Task   *domain.Task `json:"task"`
}

// PurgeResponse reports how many tasks a purge removed.
type PurgeResponse struct {
	Deleted int64 `json:"deleted"`
}
