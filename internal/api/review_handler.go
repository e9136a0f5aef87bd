package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/guideline-api/internal/api/shared"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/platform/logger"
	"github.com/phrazzld/guideline-api/internal/service"
)

// ReviewHandler serves human edit and QA requests.
type ReviewHandler struct {
	reviews service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new ReviewHandler
func NewReviewHandler(reviews service.ReviewService, logger *slog.Logger) *ReviewHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ReviewHandler")
	}
	return &ReviewHandler{
		reviews: reviews,
		logger:  logger.With(slog.String("component", "review_handler")),
	}
}

// RecordHumanEdit handles POST /drafts/{id}/edits. The editor is the
// X-User-ID of the request.
func (h *ReviewHandler) RecordHumanEdit(w http.ResponseWriter, r *http.Request) {
	draftID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req RecordEditRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	edit, err := h.reviews.RecordHumanEdit(r.Context(), service.RecordEditParams{
		DraftID:          draftID,
		UserID:           userID,
		Text:             req.Text,
		Reason:           req.Reason,
		TimeSpentMinutes: req.TimeSpentMinutes,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to record edit")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, edit)
}

// RecordQA handles POST /edits/{id}/qa. The reviewer is the X-User-ID of the
// request.
func (h *ReviewHandler) RecordQA(w http.ResponseWriter, r *http.Request) {
	editID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	reviewerID, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req RecordQARequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	outcome, err := h.reviews.RecordQA(r.Context(), service.RecordQAParams{
		EditID:            editID,
		ReviewerID:        reviewerID,
		Result:            domain.QAResult(req.Result),
		Comments:          req.Comments,
		ReviewTimeMinutes: req.ReviewTimeMinutes,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to record QA")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("qa recorded",
		slog.String("task_id", outcome.Task.ID.String()),
		slog.String("result", req.Result))
	shared.RespondWithJSON(w, r, http.StatusCreated, outcome)
}
