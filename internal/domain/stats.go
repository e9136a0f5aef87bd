package domain

import (
	"math"
	"sort"

	"github.com/google/uuid"
)

// Progress summarizes where a project's tasks are in the workflow.
type Progress struct {
	ProjectID            uuid.UUID           `json:"project_id"`
	Total                int                 `json:"total"`
	ByStatus             map[TaskStatus]int  `json:"by_status"`
	ByDraftStatus        map[DraftStatus]int `json:"by_draft_status"`
	PercentComplete      float64             `json:"percent_complete"`
	DraftPercentComplete float64             `json:"draft_percent_complete"`
}

// NewProgress builds a Progress from raw counts. Every status appears in the
// result, with zero when absent from the input.
func NewProgress(projectID uuid.UUID, byStatus map[TaskStatus]int, byDraft map[DraftStatus]int) Progress {
	progress := Progress{
		ProjectID:     projectID,
		ByStatus:      make(map[TaskStatus]int, len(TaskStatuses)),
		ByDraftStatus: make(map[DraftStatus]int, len(DraftStatuses)),
	}

	for _, status := range TaskStatuses {
		progress.ByStatus[status] = byStatus[status]
		progress.Total += byStatus[status]
	}
	for _, status := range DraftStatuses {
		progress.ByDraftStatus[status] = byDraft[status]
	}

	if progress.Total > 0 {
		done := progress.ByStatus[TaskStatusQADone]
		// A FAILED draft status with retries left is still in flight; only
		// tasks parked in DRAFT_FAILED have stopped generating.
		settled := progress.ByDraftStatus[DraftStatusSucceeded] + progress.ByStatus[TaskStatusDraftFailed]
		progress.PercentComplete = percent(done, progress.Total)
		progress.DraftPercentComplete = percent(settled, progress.Total)
	}
	return progress
}

func percent(part, total int) float64 {
	return math.Round(float64(part)/float64(total)*10000) / 100
}

// CostTotals aggregates draft usage.
type CostTotals struct {
	Drafts       int     `json:"drafts"`
	ReusedDrafts int     `json:"reused_drafts"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// ModelCost is the usage attributed to a single model.
type ModelCost struct {
	Model string `json:"model"`
	CostTotals
}

// CostReport is a project's generation spend.
type CostReport struct {
	ProjectID uuid.UUID   `json:"project_id"`
	Totals    CostTotals  `json:"totals"`
	ByModel   []ModelCost `json:"by_model"`
}

// NewCostReport sums per-model rows into a report ordered by model name.
func NewCostReport(projectID uuid.UUID, byModel []ModelCost) CostReport {
	report := CostReport{
		ProjectID: projectID,
		ByModel:   make([]ModelCost, 0, len(byModel)),
	}

	for _, row := range byModel {
		row.CostUSD = roundCost(row.CostUSD)
		report.ByModel = append(report.ByModel, row)
		report.Totals.Drafts += row.Drafts
		report.Totals.ReusedDrafts += row.ReusedDrafts
		report.Totals.InputTokens += row.InputTokens
		report.Totals.OutputTokens += row.OutputTokens
		report.Totals.CostUSD += row.CostUSD
	}
	report.Totals.CostUSD = roundCost(report.Totals.CostUSD)

	sort.Slice(report.ByModel, func(i, j int) bool {
		return report.ByModel[i].Model < report.ByModel[j].Model
	})
	return report
}

func roundCost(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
