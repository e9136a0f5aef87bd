package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HumanEdit is text an annotator produced against a specific draft.
type HumanEdit struct {
	ID               uuid.UUID `json:"id"`
	DraftID          uuid.UUID `json:"draft_id"`
	UserID           uuid.UUID `json:"user_id"`
	EditedText       string    `json:"edited_text"`
	EditReason       string    `json:"edit_reason,omitempty"`
	TimeSpentMinutes int       `json:"time_spent_minutes"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewHumanEdit creates an edit against draftID.
func NewHumanEdit(draftID, userID uuid.UUID, text, reason string, minutes int) (*HumanEdit, error) {
	edit := &HumanEdit{
		ID:               uuid.New(),
		DraftID:          draftID,
		UserID:           userID,
		EditedText:       text,
		EditReason:       reason,
		TimeSpentMinutes: minutes,
		CreatedAt:        time.Now().UTC(),
	}
	if err := edit.Validate(); err != nil {
		return nil, err
	}
	return edit, nil
}

// Validate checks if the HumanEdit has valid data.
func (e *HumanEdit) Validate() error {
	if e.ID == uuid.Nil || e.DraftID == uuid.Nil || e.UserID == uuid.Nil {
		return fmt.Errorf("%w: human edit", ErrEmptyID)
	}
	if strings.TrimSpace(e.EditedText) == "" {
		return fmt.Errorf("%w: edited text", ErrEmptyText)
	}
	if e.TimeSpentMinutes < 0 {
		return fmt.Errorf("%w: time spent cannot be negative", ErrValidation)
	}
	return nil
}

// QACheck is a reviewer's verdict on a human edit.
type QACheck struct {
	ID                uuid.UUID `json:"id"`
	EditID            uuid.UUID `json:"edit_id"`
	ReviewerID        uuid.UUID `json:"reviewer_id"`
	Result            QAResult  `json:"result"`
	Comments          string    `json:"comments,omitempty"`
	ReviewTimeMinutes int       `json:"review_time_minutes"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewQACheck creates a verdict on editID.
func NewQACheck(editID, reviewerID uuid.UUID, result QAResult, comments string, minutes int) (*QACheck, error) {
	check := &QACheck{
		ID:                uuid.New(),
		EditID:            editID,
		ReviewerID:        reviewerID,
		Result:            result,
		Comments:          comments,
		ReviewTimeMinutes: minutes,
		CreatedAt:         time.Now().UTC(),
	}
	if err := check.Validate(); err != nil {
		return nil, err
	}
	return check, nil
}

// Validate checks if the QACheck has valid data.
func (c *QACheck) Validate() error {
	if c.ID == uuid.Nil || c.EditID == uuid.Nil || c.ReviewerID == uuid.Nil {
		return fmt.Errorf("%w: qa check", ErrEmptyID)
	}
	if !c.Result.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidQAResult, string(c.Result))
	}
	if c.ReviewTimeMinutes < 0 {
		return fmt.Errorf("%w: review time cannot be negative", ErrValidation)
	}
	return nil
}
