package postgres

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const taskColumns = `id, table_id, project_id, assigned_to, previous_assignee, status, draft_status,
	priority, allocation_hold, retry_count, retry_baseline, last_error, last_error_at, version,
	created_at, updated_at, assigned_at, started_at, completed_at`

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t                domain.Task
		assignedTo       uuid.NullUUID
		previousAssignee uuid.NullUUID
		lastError        sql.NullString
		lastErrorAt      sql.NullTime
		assignedAt       sql.NullTime
		startedAt        sql.NullTime
		completedAt      sql.NullTime
	)

	err := row.Scan(
		&t.ID, &t.TableID, &t.ProjectID, &assignedTo, &previousAssignee, &t.Status, &t.DraftStatus,
		&t.Priority, &t.AllocationHold, &t.RetryCount, &t.RetryBaseline, &lastError, &lastErrorAt, &t.Version,
		&t.CreatedAt, &t.UpdatedAt, &assignedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	t.AssignedTo = uuidPtr(assignedTo)
	t.PreviousAssignee = uuidPtr(previousAssignee)
	if lastError.Valid {
		t.LastError = &lastError.String
	}
	t.LastErrorAt = timePtr(lastErrorAt)
	t.AssignedAt = timePtr(assignedAt)
	t.StartedAt = timePtr(startedAt)
	t.CompletedAt = timePtr(completedAt)
	return &t, nil
}

const draftColumns = `id, task_id, model_name, prompt_version, prompt_hash, draft_text,
	input_tokens, output_tokens, total_tokens, cost_usd::float8, reused, original_draft_id,
	trace, generation_time_ms, temperature, created_at, superseded_at`

func scanDraft(row rowScanner) (*domain.Draft, error) {
	var (
		d            domain.Draft
		originalID   uuid.NullUUID
		trace        []byte
		supersededAt sql.NullTime
	)

	err := row.Scan(
		&d.ID, &d.TaskID, &d.ModelName, &d.PromptVersion, &d.PromptHash, &d.Text,
		&d.Usage.InputTokens, &d.Usage.OutputTokens, &d.Usage.TotalTokens, &d.Usage.CostUSD,
		&d.Usage.Reused, &originalID, &trace, &d.GenerationTimeMS, &d.Temperature,
		&d.CreatedAt, &supersededAt,
	)
	if err != nil {
		return nil, err
	}

	d.CreatedAt = d.CreatedAt.UTC()
	d.Usage.OriginalDraftID = uuidPtr(originalID)
	if len(trace) > 0 {
		d.Trace = trace
	}
	d.SupersededAt = timePtr(supersededAt)
	return &d, nil
}

func scanDraftSummary(row rowScanner) (domain.DraftSummary, error) {
	var (
		d            domain.DraftSummary
		originalID   uuid.NullUUID
		supersededAt sql.NullTime
	)

	err := row.Scan(
		&d.ID, &d.TaskID, &d.TableID, &d.ModelName, &d.PromptVersion, &d.DraftLength,
		&d.Usage.InputTokens, &d.Usage.OutputTokens, &d.Usage.TotalTokens, &d.Usage.CostUSD,
		&d.Usage.Reused, &originalID, &d.GenerationTimeMS, &d.CreatedAt, &supersededAt,
	)
	if err != nil {
		return domain.DraftSummary{}, err
	}

	d.CreatedAt = d.CreatedAt.UTC()
	d.Usage.OriginalDraftID = uuidPtr(originalID)
	d.SupersededAt = timePtr(supersededAt)
	return d, nil
}

func uuidPtr(v uuid.NullUUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := v.UUID
	return &id
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

// nullUUID converts an optional identifier into a query argument.
func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

// nullJSON converts an optional JSON payload into a query argument.
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
