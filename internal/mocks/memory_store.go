package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/store"
	"github.com/phrazzld/guideline-api/internal/workflow"
)

type memoryState struct {
	tasks   map[uuid.UUID]*domain.Task
	drafts  map[uuid.UUID]*domain.Draft
	edits   map[uuid.UUID]*domain.HumanEdit
	checks  map[uuid.UUID]*domain.QACheck
	events  []domain.TaskEvent
	eventID int64
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		tasks:   make(map[uuid.UUID]*domain.Task, len(s.tasks)),
		drafts:  make(map[uuid.UUID]*domain.Draft, len(s.drafts)),
		edits:   make(map[uuid.UUID]*domain.HumanEdit, len(s.edits)),
		checks:  make(map[uuid.UUID]*domain.QACheck, len(s.checks)),
		events:  append([]domain.TaskEvent(nil), s.events...),
		eventID: s.eventID,
	}
	for id, t := range s.tasks {
		c.tasks[id] = cloneTask(t)
	}
	for id, d := range s.drafts {
		c.drafts[id] = cloneDraft(d)
	}
	for id, e := range s.edits {
		edit := *e
		c.edits[id] = &edit
	}
	for id, q := range s.checks {
		check := *q
		c.checks[id] = &check
	}
	return c
}

// MemoryStore is an in-memory backing for the task, draft, review and stats
// stores and the table source. Writes inside WithinTx are rolled back when
// the callback fails.
type MemoryStore struct {
	mu     sync.Mutex
	state  *memoryState
	tables map[uuid.UUID]*domain.TableSchema
	faults map[string]error
	now    func() time.Time
}

var (
	_ store.StatsStore  = (*MemoryStore)(nil)
	_ store.TableSource = (*MemoryStore)(nil)
	_ store.Transactor  = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memoryState{
			tasks:  make(map[uuid.UUID]*domain.Task),
			drafts: make(map[uuid.UUID]*domain.Draft),
			edits:  make(map[uuid.UUID]*domain.HumanEdit),
			checks: make(map[uuid.UUID]*domain.QACheck),
		},
		tables: make(map[uuid.UUID]*domain.TableSchema),
		faults: make(map[string]error),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for timestamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailNext makes the next call of op return err. Ops are named
// "<store>.<method>", e.g. "drafts.Create" or "tasks.ApplyTransition".
func (m *MemoryStore) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = err
}

func (m *MemoryStore) fault(op string) error {
	if err, ok := m.faults[op]; ok {
		delete(m.faults, op)
		return err
	}
	return nil
}

// lock acquires the store mutex unless the caller already holds it as part
// of a transaction.
func (m *MemoryStore) lock(inTx bool) func() {
	if inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// Tasks returns the store.TaskStore view.
func (m *MemoryStore) Tasks() store.TaskStore {
	return &memoryTasks{m: m}
}

// Drafts returns the store.DraftStore view.
func (m *MemoryStore) Drafts() store.DraftStore {
	return &memoryDrafts{m: m}
}

// Reviews returns the store.ReviewStore view.
func (m *MemoryStore) Reviews() store.ReviewStore {
	return &memoryReviews{m: m}
}

// WithinTx implements store.Transactor. Other callers block until fn returns.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, s store.Stores) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fault("tx.WithinTx"); err != nil {
		return err
	}

	snapshot := m.state.clone()
	err := fn(ctx, store.Stores{
		Tasks:   &memoryTasks{m: m, inTx: true},
		Drafts:  &memoryDrafts{m: m, inTx: true},
		Reviews: &memoryReviews{m: m, inTx: true},
	})
	if err != nil {
		m.state = snapshot
	}
	return err
}

// PutTable registers a table schema for GetTable.
func (m *MemoryStore) PutTable(schema *domain.TableSchema) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *schema
	m.tables[schema.ID] = &c
}

// GetTable implements store.TableSource.
func (m *MemoryStore) GetTable(_ context.Context, id uuid.UUID) (*domain.TableSchema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fault("tables.GetTable"); err != nil {
		return nil, err
	}
	schema, ok := m.tables[id]
	if !ok {
		return nil, store.ErrTableNotFound
	}
	c := *schema
	return &c, nil
}

// CountByStatus implements store.StatsStore.
func (m *MemoryStore) CountByStatus(_ context.Context, projectID uuid.UUID) (map[domain.TaskStatus]int, map[domain.DraftStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byStatus := make(map[domain.TaskStatus]int)
	byDraft := make(map[domain.DraftStatus]int)
	for _, t := range m.state.tasks {
		if t.ProjectID != projectID {
			continue
		}
		byStatus[t.Status]++
		byDraft[t.DraftStatus]++
	}
	return byStatus, byDraft, nil
}

// CostsByModel implements store.StatsStore.
func (m *MemoryStore) CostsByModel(_ context.Context, projectID uuid.UUID) ([]domain.ModelCost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byModel := make(map[string]*domain.ModelCost)
	for _, d := range m.state.drafts {
		t, ok := m.state.tasks[d.TaskID]
		if !ok || t.ProjectID != projectID {
			continue
		}
		row, ok := byModel[d.ModelName]
		if !ok {
			row = &domain.ModelCost{Model: d.ModelName}
			byModel[d.ModelName] = row
		}
		row.Drafts++
		if d.Usage.Reused {
			row.ReusedDrafts++
		}
		row.InputTokens += int64(d.Usage.InputTokens)
		row.OutputTokens += int64(d.Usage.OutputTokens)
		row.CostUSD += d.Usage.CostUSD
	}

	rows := make([]domain.ModelCost, 0, len(byModel))
	for _, row := range byModel {
		rows = append(rows, *row)
	}
	return rows, nil
}

func (m *MemoryStore) appendEvent(t *domain.Task, event workflow.Event, from domain.TaskState, actor *uuid.UUID, detail string) {
	m.state.eventID++
	m.state.events = append(m.state.events, domain.TaskEvent{
		ID:              m.state.eventID,
		TaskID:          t.ID,
		Event:           string(event),
		FromStatus:      from.Status,
		FromDraftStatus: from.DraftStatus,
		ToStatus:        t.Status,
		ToDraftStatus:   t.DraftStatus,
		ActorID:         cloneUUID(actor),
		Detail:          detail,
		CreatedAt:       m.now(),
	})
}

type memoryTasks struct {
	m    *MemoryStore
	inTx bool
}

var _ store.TaskStore = (*memoryTasks)(nil)

func (s *memoryTasks) Create(_ context.Context, task *domain.Task) error {
	defer s.m.lock(s.inTx)()

	if err := s.m.fault("tasks.Create"); err != nil {
		return err
	}
	if err := task.Validate(); err != nil {
		return err
	}
	if _, exists := s.m.state.tasks[task.ID]; exists {
		return store.ErrDuplicate
	}
	stored := cloneTask(task)
	s.m.state.tasks[task.ID] = stored
	s.m.appendEvent(stored, workflow.EventTaskCreated, domain.TaskState{}, nil, "")
	return nil
}

func (s *memoryTasks) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	defer s.m.lock(s.inTx)()

	if err := s.m.fault("tasks.GetByID"); err != nil {
		return nil, err
	}
	t, ok := s.m.state.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

func (s *memoryTasks) List(_ context.Context, f store.TaskFilter) ([]*domain.Task, error) {
	defer s.m.lock(s.inTx)()

	var matched []*domain.Task
	for _, t := range s.m.state.tasks {
		if f.ProjectID != nil && t.ProjectID != *f.ProjectID {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.DraftStatus != nil && t.DraftStatus != *f.DraftStatus {
			continue
		}
		if f.AssignedTo != nil && !t.IsAssignedTo(*f.AssignedTo) {
			continue
		}
		if f.Available && !t.AvailableForSelfSelection() {
			continue
		}
		matched = append(matched, t)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	if f.Offset >= len(matched) {
		return []*domain.Task{}, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := make([]*domain.Task, len(matched))
	for i, t := range matched {
		out[i] = cloneTask(t)
	}
	return out, nil
}

func (s *memoryTasks) ApplyTransition(_ context.Context, w store.TransitionWrite) (*domain.Task, error) {
	defer s.m.lock(s.inTx)()

	if err := s.m.fault("tasks.ApplyTransition"); err != nil {
		return nil, err
	}
	t, ok := s.m.state.tasks[w.TaskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	tr := w.Transition
	if t.Status != tr.From.Status || t.DraftStatus != tr.From.DraftStatus {
		return nil, store.ErrConflict
	}
	if w.ExpectedRetryCount != nil && t.RetryCount != *w.ExpectedRetryCount {
		return nil, store.ErrConflict
	}
	if w.ExpectedAssignee != nil && !t.IsAssignedTo(*w.ExpectedAssignee) {
		return nil, store.ErrConflict
	}

	now := s.m.now()
	from := t.State()
	t.Status = tr.To.Status
	t.DraftStatus = tr.To.DraftStatus
	t.AllocationHold = tr.To.AllocationHold
	if tr.IncrementRetry {
		t.RetryCount++
	}
	if tr.SetError {
		msg := w.LastError
		t.LastError = &msg
		t.LastErrorAt = &now
	}
	if tr.ClearError {
		t.LastError = nil
		t.LastErrorAt = nil
	}
	if tr.ResetRetryBaseline {
		t.RetryBaseline = t.RetryCount
	}
	if tr.StampStarted {
		t.StartedAt = &now
	}
	if tr.StampCompleted {
		t.CompletedAt = &now
	}
	if tr.RecordPreviousAssignee {
		t.PreviousAssignee = t.AssignedTo
		t.AssignedTo = nil
		t.AssignedAt = nil
	}
	t.Version++
	t.UpdatedAt = now

	s.m.appendEvent(t, tr.Event, from, w.ActorID, w.Detail)
	return cloneTask(t), nil
}

func (s *memoryTasks) Assign(_ context.Context, w store.AssignmentWrite) (*domain.Task, error) {
	defer s.m.lock(s.inTx)()

	if err := s.m.fault("tasks.Assign"); err != nil {
		return nil, err
	}
	t, ok := s.m.state.tasks[w.TaskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	if t.Status != w.Expected.Status || t.DraftStatus != w.Expected.DraftStatus {
		return nil, store.ErrConflict
	}
	if !sameUUID(t.AssignedTo, w.ObservedAssignee) {
		return nil, store.ErrConflict
	}
	if w.RequireReleased && t.AllocationHold {
		return nil, store.ErrConflict
	}

	now := s.m.now()
	t.AssignedTo = cloneUUID(w.Assignee)
	if w.Assignee != nil {
		t.AssignedAt = &now
	} else {
		t.AssignedAt = nil
	}
	t.Version++
	t.UpdatedAt = now

	s.m.appendEvent(t, w.Event, t.State(), w.ActorID, w.Detail)
	return cloneTask(t), nil
}

func (s *memoryTasks) FindStuckGenerating(_ context.Context, before time.Time, limit int) ([]*domain.Task, error) {
	defer s.m.lock(s.inTx)()

	if err := s.m.fault("tasks.FindStuckGenerating"); err != nil {
		return nil, err
	}
	return s.collect(limit, func(t *domain.Task) bool {
		return t.DraftStatus == domain.DraftStatusGenerating && t.UpdatedAt.Before(before)
	}), nil
}

func (s *memoryTasks) FindStaleErrors(_ context.Context, before time.Time, limit int) ([]*domain.Task, error) {
	defer s.m.lock(s.inTx)()

	if err := s.m.fault("tasks.FindStaleErrors"); err != nil {
		return nil, err
	}
	return s.collect(limit, func(t *domain.Task) bool {
		return t.LastError != nil && t.LastErrorAt != nil && t.LastErrorAt.Before(before)
	}), nil
}

func (s *memoryTasks) collect(limit int, match func(*domain.Task) bool) []*domain.Task {
	var out []*domain.Task
	for _, t := range s.m.state.tasks {
		if match(t) {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *memoryTasks) RedactError(_ context.Context, id uuid.UUID, observedAt time.Time) (bool, error) {
	defer s.m.lock(s.inTx)()

	t, ok := s.m.state.tasks[id]
	if !ok || t.LastErrorAt == nil || !t.LastErrorAt.Equal(observedAt) {
		return false, nil
	}
	t.LastError = nil
	t.LastErrorAt = nil
	t.Version++
	s.m.appendEvent(t, workflow.EventErrorRedacted, t.State(), nil, "")
	return true, nil
}

func (s *memoryTasks) History(_ context.Context, taskID uuid.UUID) ([]domain.TaskEvent, error) {
	defer s.m.lock(s.inTx)()

	var out []domain.TaskEvent
	for _, e := range s.m.state.events {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memoryTasks) DeleteByProject(_ context.Context, projectID uuid.UUID) (int64, error) {
	defer s.m.lock(s.inTx)()

	st := s.m.state
	removed := make(map[uuid.UUID]bool)
	for id, t := range st.tasks {
		if t.ProjectID == projectID {
			removed[id] = true
			delete(st.tasks, id)
		}
	}
	for id, d := range st.drafts {
		if !removed[d.TaskID] {
			continue
		}
		delete(st.drafts, id)
		for editID, e := range st.edits {
			if e.DraftID != id {
				continue
			}
			delete(st.edits, editID)
			for checkID, c := range st.checks {
				if c.EditID == editID {
					delete(st.checks, checkID)
				}
			}
		}
	}
	kept := st.events[:0]
	for _, e := range st.events {
		if !removed[e.TaskID] {
			kept = append(kept, e)
		}
	}
	st.events = kept
	return int64(len(removed)), nil
}

func (s *memoryTasks) WithTx(*sql.Tx) store.TaskStore {
	return s
}

type memoryDrafts struct {
	m    *MemoryStore
	inTx bool
}

var _ store.DraftStore = (*memoryDrafts)(nil)

func (s *memoryDrafts) Create(_ context.Context, draft *domain.Draft) error {
	defer s.m.lock(s.inTx)()

	if err := s.m.fault("drafts.Create"); err != nil {
		return err
	}
	if err := draft.Validate(); err != nil {
		return err
	}
	if _, ok := s.m.state.tasks[draft.TaskID]; !ok {
		return store.ErrInvalidEntity
	}
	if draft.IsLive() {
		for _, d := range s.m.state.drafts {
			if d.TaskID == draft.TaskID && d.IsLive() {
				return store.ErrLiveDraftExists
			}
		}
	}
	s.m.state.drafts[draft.ID] = cloneDraft(draft)
	return nil
}

func (s *memoryDrafts) Supersede(_ context.Context, taskID uuid.UUID, at time.Time) (bool, error) {
	defer s.m.lock(s.inTx)()

	if err := s.m.fault("drafts.Supersede"); err != nil {
		return false, err
	}
	for _, d := range s.m.state.drafts {
		if d.TaskID == taskID && d.IsLive() {
			when := at
			d.SupersededAt = &when
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryDrafts) GetByID(_ context.Context, id uuid.UUID) (*domain.Draft, error) {
	defer s.m.lock(s.inTx)()

	d, ok := s.m.state.drafts[id]
	if !ok {
		return nil, store.ErrDraftNotFound
	}
	return cloneDraft(d), nil
}

func (s *memoryDrafts) GetLiveByTask(_ context.Context, taskID uuid.UUID) (*domain.Draft, error) {
	defer s.m.lock(s.inTx)()

	for _, d := range s.m.state.drafts {
		if d.TaskID == taskID && d.IsLive() {
			return cloneDraft(d), nil
		}
	}
	return nil, store.ErrDraftNotFound
}

func (s *memoryDrafts) FindReusable(_ context.Context, promptHash string) (*domain.Draft, error) {
	defer s.m.lock(s.inTx)()

	if err := s.m.fault("drafts.FindReusable"); err != nil {
		return nil, err
	}
	var best *domain.Draft
	for _, d := range s.m.state.drafts {
		if d.PromptHash != promptHash || d.Usage.Reused {
			continue
		}
		if best == nil || d.CreatedAt.Before(best.CreatedAt) {
			best = d
		}
	}
	if best == nil {
		return nil, store.ErrDraftNotFound
	}
	return cloneDraft(best), nil
}

func (s *memoryDrafts) List(_ context.Context, f store.DraftFilter) ([]domain.DraftSummary, error) {
	defer s.m.lock(s.inTx)()

	if err := s.m.fault("drafts.List"); err != nil {
		return nil, err
	}
	var matched []*domain.Draft
	for _, d := range s.m.state.drafts {
		t, ok := s.m.state.tasks[d.TaskID]
		if !ok || t.ProjectID != f.ProjectID {
			continue
		}
		if f.TaskID != nil && d.TaskID != *f.TaskID {
			continue
		}
		matched = append(matched, d)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() > matched[j].ID.String()
	})

	if f.Offset >= len(matched) {
		return []domain.DraftSummary{}, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := make([]domain.DraftSummary, 0, len(matched))
	for _, d := range matched {
		out = append(out, cloneDraft(d).Summarize(s.m.state.tasks[d.TaskID].TableID))
	}
	return out, nil
}

// all returns every draft of a task, callers hold the lock.
func (s *memoryDrafts) all(taskID uuid.UUID) []*domain.Draft {
	var out []*domain.Draft
	for _, d := range s.m.state.drafts {
		if d.TaskID == taskID {
			out = append(out, cloneDraft(d))
		}
	}
	return out
}

func (s *memoryDrafts) WithTx(*sql.Tx) store.DraftStore {
	return s
}

// DraftsOf returns every draft of a task, live and superseded.
func (m *MemoryStore) DraftsOf(taskID uuid.UUID) []*domain.Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryDrafts{m: m, inTx: true}).all(taskID)
}

type memoryReviews struct {
	m    *MemoryStore
	inTx bool
}

var _ store.ReviewStore = (*memoryReviews)(nil)

func (s *memoryReviews) CreateEdit(_ context.Context, edit *domain.HumanEdit) error {
	defer s.m.lock(s.inTx)()

	if err := s.m.fault("reviews.CreateEdit"); err != nil {
		return err
	}
	if err := edit.Validate(); err != nil {
		return err
	}
	if _, ok := s.m.state.drafts[edit.DraftID]; !ok {
		return store.ErrInvalidEntity
	}
	c := *edit
	s.m.state.edits[edit.ID] = &c
	return nil
}

func (s *memoryReviews) GetEdit(_ context.Context, id uuid.UUID) (*domain.HumanEdit, error) {
	defer s.m.lock(s.inTx)()

	e, ok := s.m.state.edits[id]
	if !ok {
		return nil, store.ErrEditNotFound
	}
	c := *e
	return &c, nil
}

func (s *memoryReviews) LatestEdit(_ context.Context, draftID uuid.UUID) (*domain.HumanEdit, error) {
	defer s.m.lock(s.inTx)()

	var latest *domain.HumanEdit
	for _, e := range s.m.state.edits {
		if e.DraftID == draftID && (latest == nil || e.CreatedAt.After(latest.CreatedAt)) {
			latest = e
		}
	}
	if latest == nil {
		return nil, store.ErrEditNotFound
	}
	c := *latest
	return &c, nil
}

func (s *memoryReviews) CreateCheck(_ context.Context, check *domain.QACheck) error {
	defer s.m.lock(s.inTx)()

	if err := s.m.fault("reviews.CreateCheck"); err != nil {
		return err
	}
	if err := check.Validate(); err != nil {
		return err
	}
	if _, ok := s.m.state.edits[check.EditID]; !ok {
		return store.ErrInvalidEntity
	}
	c := *check
	s.m.state.checks[check.ID] = &c
	return nil
}

func (s *memoryReviews) LatestCheck(_ context.Context, editID uuid.UUID) (*domain.QACheck, error) {
	defer s.m.lock(s.inTx)()

	var latest *domain.QACheck
	for _, c := range s.m.state.checks {
		if c.EditID == editID && (latest == nil || c.CreatedAt.After(latest.CreatedAt)) {
			latest = c
		}
	}
	if latest == nil {
		return nil, store.ErrCheckNotFound
	}
	c := *latest
	return &c, nil
}

func (s *memoryReviews) WithTx(*sql.Tx) store.ReviewStore {
	return s
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func sameUUID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	c.AssignedTo = cloneUUID(t.AssignedTo)
	c.PreviousAssignee = cloneUUID(t.PreviousAssignee)
	if t.LastError != nil {
		msg := *t.LastError
		c.LastError = &msg
	}
	c.LastErrorAt = cloneTime(t.LastErrorAt)
	c.AssignedAt = cloneTime(t.AssignedAt)
	c.StartedAt = cloneTime(t.StartedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	return &c
}

func cloneDraft(d *domain.Draft) *domain.Draft {
	c := *d
	c.SupersededAt = cloneTime(d.SupersededAt)
	c.Usage.OriginalDraftID = cloneUUID(d.Usage.OriginalDraftID)
	if d.Trace != nil {
		c.Trace = append([]byte(nil), d.Trace...)
	}
	return &c
}
