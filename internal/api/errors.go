package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/guideline-api/internal/api/shared"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/service"
	"github.com/phrazzld/guideline-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// exposing the error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrNotAssignee):
		return http.StatusForbidden

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Checked before validation: stale draft and edit errors wrap the
	// transition sentinel.
	case errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrDuplicate),
		errors.Is(err, service.ErrAllocationHold),
		errors.Is(err, service.ErrRepeatAssignment):
		return http.StatusConflict

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client facing message for err. Messages never
// include the error text itself, except for the state a rejected transition
// was attempted from.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var transitionErr *domain.TransitionError
	switch {
	case errors.Is(err, service.ErrNotAssignee):
		return "Only the assigned annotator may do this"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrDraftNotFound):
		return "Draft not found"
	case errors.Is(err, store.ErrEditNotFound):
		return "Edit not found"
	case errors.Is(err, store.ErrTableNotFound):
		return "Table not found"
	case errors.Is(err, store.ErrNotFound):
		return "Not found"

	case errors.Is(err, service.ErrStaleDraft):
		return "Draft has been superseded"
	case errors.Is(err, service.ErrStaleEdit):
		return "Edit is not the latest edit of the live draft"
	case errors.Is(err, service.ErrNoEdit):
		return "Task has no edit on its live draft"
	case errors.As(err, &transitionErr):
		return fmt.Sprintf("Cannot %s a task in state %s/%s",
			strings.ReplaceAll(transitionErr.Event, "_", " "), transitionErr.Status, transitionErr.DraftStatus)
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return "Invalid state transition"

	case errors.Is(err, service.ErrAllocationHold):
		return "Task is held until a draft is generated"
	case errors.Is(err, service.ErrRepeatAssignment):
		return "Annotator last failed QA on this task"
	case errors.Is(err, store.ErrConflict):
		return "Task was modified concurrently, retry the request"
	case errors.Is(err, store.ErrDuplicate):
		return "Entity already exists"

	case errors.Is(err, domain.ErrInvalidQAResult):
		return "Invalid QA result"
	case errors.Is(err, domain.ErrEmptyText):
		return "Text cannot be empty"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the status and safe message for err. defaultMsg
// replaces the generic message of server errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		message = defaultMsg
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

// SanitizeValidationError turns validator errors into a message naming the
// first offending field.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "Validation error"
	}

	first := validationErrs[0]
	return fmt.Sprintf("Invalid %s: %s", first.Field(), getValidationTagMessage(first.Tag()))
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "uuid":
		return "must be a UUID"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
