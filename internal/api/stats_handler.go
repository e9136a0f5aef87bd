package api

import (
	"net/http"

	"github.com/phrazzld/guideline-api/internal/api/shared"
	"github.com/phrazzld/guideline-api/internal/service"
)

// StatsHandler serves project progress and cost reports.
type StatsHandler struct {
	stats service.StatsService
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(stats service.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// GetProgress handles GET /projects/{id}/progress.
func (h *StatsHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	progress, err := h.stats.GetProgress(r.Context(), projectID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to compute progress")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, progress)
}

// GetCosts handles GET /projects/{id}/costs.
func (h *StatsHandler) GetCosts(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	report, err := h.stats.GetCosts(r.Context(), projectID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to compute costs")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, report)
}
