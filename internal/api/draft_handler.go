package api

import (
	"net/http"

	"github.com/phrazzld/guideline-api/internal/api/shared"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/service"
	"github.com/phrazzld/guideline-api/internal/store"
)

// DraftHandler serves generated drafts.
type DraftHandler struct {
	drafts service.DraftService
}

// NewDraftHandler creates a new DraftHandler
func NewDraftHandler(drafts service.DraftService) *DraftHandler {
	return &DraftHandler{drafts: drafts}
}

// GetDraft handles GET /drafts/{id}.
func (h *DraftHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	draftID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	draft, err := h.drafts.GetDraft(r.Context(), draftID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get draft")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, draft)
}

// ListProjectDrafts handles GET /projects/{id}/drafts. The optional task_id
// query parameter narrows the listing to one task.
func (h *DraftHandler) ListProjectDrafts(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	filter := store.DraftFilter{ProjectID: projectID}
	var err error
	if filter.TaskID, err = queryUUID(r, "task_id"); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if filter.Limit, filter.Offset, err = pagination(r); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	drafts, err := h.drafts.ListDrafts(r.Context(), filter)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list drafts")
		return
	}
	if drafts == nil {
		drafts = []domain.DraftSummary{}
	}
	if filter.Limit == 0 {
		filter.Limit = store.DefaultListLimit
	}
	shared.RespondWithJSON(w, r, http.StatusOK, DraftListResponse{
		Drafts: drafts,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}
