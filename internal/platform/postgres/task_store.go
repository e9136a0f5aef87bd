package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/platform/logger"
	"github.com/phrazzld/guideline-api/internal/store"
	"github.com/phrazzld/guideline-api/internal/workflow"
)

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		WITH inserted AS (
			INSERT INTO tasks (id, table_id, project_id, status, draft_status, priority,
				allocation_hold, retry_count, retry_baseline, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, status, draft_status, created_at
		)
		INSERT INTO task_events (task_id, event, to_status, to_draft_status, created_at)
		SELECT id, $13, status, draft_status, created_at FROM inserted
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID, task.TableID, task.ProjectID, task.Status, task.DraftStatus, task.Priority,
		task.AllocationHold, task.RetryCount, task.RetryBaseline, task.Version,
		task.CreatedAt, task.UpdatedAt, string(workflow.EventTaskCreated),
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create task",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapNotFound(err, store.ErrTaskNotFound)
	}
	return task, nil
}

// List implements store.TaskStore.List
func (s *PostgresTaskStore) List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(condition string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if filter.ProjectID != nil {
		add("project_id = $%d", *filter.ProjectID)
	}
	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	}
	if filter.DraftStatus != nil {
		add("draft_status = $%d", *filter.DraftStatus)
	}
	if filter.AssignedTo != nil {
		add("assigned_to = $%d", *filter.AssignedTo)
	}
	if filter.Available {
		conditions = append(conditions,
			"allocation_hold = FALSE",
			"status = 'ready_for_annotation'",
			"assigned_to IS NULL")
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + taskColumns + ` FROM tasks`)
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	args = append(args, filter.Limit, filter.Offset)
	fmt.Fprintf(&b, " ORDER BY priority DESC, created_at ASC, id ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return s.queryTasks(ctx, b.String(), args...)
}

func (s *PostgresTaskStore) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []*domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

// ApplyTransition implements store.TaskStore.ApplyTransition
func (s *PostgresTaskStore) ApplyTransition(ctx context.Context, w store.TransitionWrite) (*domain.Task, error) {
	tr := w.Transition
	query := `
		WITH updated AS (
			UPDATE tasks SET
				status = $4,
				draft_status = $5,
				allocation_hold = $6,
				retry_count = retry_count + CASE WHEN $7::boolean THEN 1 ELSE 0 END,
				last_error = CASE WHEN $8::boolean THEN $9::text WHEN $10::boolean THEN NULL ELSE last_error END,
				last_error_at = CASE WHEN $8::boolean THEN $11::timestamptz WHEN $10::boolean THEN NULL ELSE last_error_at END,
				retry_baseline = CASE WHEN $12::boolean THEN retry_count ELSE retry_baseline END,
				started_at = CASE WHEN $13::boolean THEN $11::timestamptz ELSE started_at END,
				completed_at = CASE WHEN $14::boolean THEN $11::timestamptz ELSE completed_at END,
				previous_assignee = CASE WHEN $15::boolean THEN assigned_to ELSE previous_assignee END,
				assigned_to = CASE WHEN $15::boolean THEN NULL ELSE assigned_to END,
				assigned_at = CASE WHEN $15::boolean THEN NULL ELSE assigned_at END,
				version = version + 1,
				updated_at = $11::timestamptz
			WHERE id = $1 AND status = $2 AND draft_status = $3
				AND ($16::integer IS NULL OR retry_count = $16::integer)
				AND ($17::uuid IS NULL OR assigned_to = $17::uuid)
			RETURNING ` + taskColumns + `
		), event AS (
			INSERT INTO task_events (task_id, event, from_status, from_draft_status,
				to_status, to_draft_status, actor_id, detail, created_at)
			SELECT id, $18, $2, $3, status, draft_status, $19::uuid, $20, $11::timestamptz FROM updated
		)
		SELECT ` + taskColumns + ` FROM updated
	`

	var expectedRetry any
	if w.ExpectedRetryCount != nil {
		expectedRetry = *w.ExpectedRetryCount
	}

	row := s.db.QueryRowContext(ctx, query,
		w.TaskID, tr.From.Status, tr.From.DraftStatus,
		tr.To.Status, tr.To.DraftStatus, tr.To.AllocationHold,
		tr.IncrementRetry, tr.SetError, w.LastError, tr.ClearError, s.now(),
		tr.ResetRetryBaseline, tr.StampStarted, tr.StampCompleted, tr.RecordPreviousAssignee,
		expectedRetry, nullUUID(w.ExpectedAssignee),
		string(tr.Event), nullUUID(w.ActorID), w.Detail,
	)

	task, err := scanTask(row)
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to apply transition",
			slog.String("task_id", w.TaskID.String()),
			slog.String("event", string(tr.Event)),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return nil, s.missOrConflict(ctx, "transition", w.TaskID)
}

// missOrConflict tells a missing task apart from a guard that did not hold.
func (s *PostgresTaskStore) missOrConflict(ctx context.Context, operation string, id uuid.UUID) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id).Scan(&exists); err != nil {
		return MapError(err)
	}
	if !exists {
		return store.ErrTaskNotFound
	}
	return store.NewStoreError("task", operation, "task "+id.String()+" no longer matches the observed state", store.ErrConflict)
}

// Assign implements store.TaskStore.Assign
func (s *PostgresTaskStore) Assign(ctx context.Context, w store.AssignmentWrite) (*domain.Task, error) {
	query := `
		WITH updated AS (
			UPDATE tasks SET
				assigned_to = $5::uuid,
				assigned_at = CASE WHEN $5::uuid IS NULL THEN NULL ELSE $7::timestamptz END,
				version = version + 1,
				updated_at = $7::timestamptz
			WHERE id = $1 AND status = $2 AND draft_status = $3
				AND assigned_to IS NOT DISTINCT FROM $4::uuid
				AND (NOT $6::boolean OR allocation_hold = FALSE)
			RETURNING ` + taskColumns + `
		), event AS (
			INSERT INTO task_events (task_id, event, from_status, from_draft_status,
				to_status, to_draft_status, actor_id, detail, created_at)
			SELECT id, $8, status, draft_status, status, draft_status, $9::uuid, $10, $7::timestamptz FROM updated
		)
		SELECT ` + taskColumns + ` FROM updated
	`

	row := s.db.QueryRowContext(ctx, query,
		w.TaskID, w.Expected.Status, w.Expected.DraftStatus,
		nullUUID(w.ObservedAssignee), nullUUID(w.Assignee), w.RequireReleased, s.now(),
		string(w.Event), nullUUID(w.ActorID), w.Detail,
	)

	task, err := scanTask(row)
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, MapError(err)
	}
	return nil, s.missOrConflict(ctx, "assign", w.TaskID)
}

// FindStuckGenerating implements store.TaskStore.FindStuckGenerating
func (s *PostgresTaskStore) FindStuckGenerating(ctx context.Context, before time.Time, limit int) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE draft_status = 'generating' AND updated_at < $1
		ORDER BY updated_at ASC LIMIT $2`
	return s.queryTasks(ctx, query, before, limit)
}

// FindStaleErrors implements store.TaskStore.FindStaleErrors
func (s *PostgresTaskStore) FindStaleErrors(ctx context.Context, before time.Time, limit int) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE last_error IS NOT NULL AND last_error_at < $1
		ORDER BY last_error_at ASC LIMIT $2`
	return s.queryTasks(ctx, query, before, limit)
}

// RedactError implements store.TaskStore.RedactError. updated_at is left
// alone so redaction never makes a task look recently active.
func (s *PostgresTaskStore) RedactError(ctx context.Context, id uuid.UUID, observedAt time.Time) (bool, error) {
	query := `
		WITH updated AS (
			UPDATE tasks SET last_error = NULL, last_error_at = NULL, version = version + 1
			WHERE id = $1 AND last_error IS NOT NULL AND last_error_at = $2
			RETURNING id, status, draft_status
		)
		INSERT INTO task_events (task_id, event, from_status, from_draft_status,
			to_status, to_draft_status, created_at)
		SELECT id, $3, status, draft_status, status, draft_status, $4 FROM updated
	`

	result, err := s.db.ExecContext(ctx, query, id, observedAt, string(workflow.EventErrorRedacted), s.now())
	if err != nil {
		return false, MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// History implements store.TaskStore.History
func (s *PostgresTaskStore) History(ctx context.Context, taskID uuid.UUID) ([]domain.TaskEvent, error) {
	query := `
		SELECT id, task_id, event, from_status, from_draft_status, to_status, to_draft_status,
			actor_id, detail, created_at
		FROM task_events WHERE task_id = $1 ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	events := []domain.TaskEvent{}
	for rows.Next() {
		var (
			e          domain.TaskEvent
			fromStatus sql.NullString
			fromDraft  sql.NullString
			actor      uuid.NullUUID
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Event, &fromStatus, &fromDraft,
			&e.ToStatus, &e.ToDraftStatus, &actor, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task event row: %w", err)
		}
		e.FromStatus = domain.TaskStatus(fromStatus.String)
		e.FromDraftStatus = domain.DraftStatus(fromDraft.String)
		e.ActorID = uuidPtr(actor)
		e.CreatedAt = e.CreatedAt.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task event rows: %w", err)
	}
	return events, nil
}

// DeleteByProject implements store.TaskStore.DeleteByProject. Drafts,
// reviews, history and queued jobs go with the tasks through ON DELETE CASCADE.
func (s *PostgresTaskStore) DeleteByProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("purged project tasks",
		slog.String("project_id", projectID.String()),
		slog.Int64("tasks", affected))
	return affected, nil
}

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger, now: s.now}
}
