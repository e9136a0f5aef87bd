package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/store"
)

// DraftService reads generated drafts, superseded ones included.
type DraftService interface {
	// GetDraft returns a draft with its text, usage and trace.
	GetDraft(ctx context.Context, draftID uuid.UUID) (*domain.Draft, error)

	// ListDrafts returns summaries of a project's drafts, newest first.
	ListDrafts(ctx context.Context, filter store.DraftFilter) ([]domain.DraftSummary, error)
}

type draftServiceImpl struct {
	drafts store.DraftStore
	logger *slog.Logger
}

// NewDraftService creates a new DraftService.
func NewDraftService(drafts store.DraftStore, logger *slog.Logger) (DraftService, error) {
	if drafts == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "draft store cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &draftServiceImpl{
		drafts: drafts,
		logger: logger.With(slog.String("component", "draft_service")),
	}, nil
}

// GetDraft implements DraftService.
func (s *draftServiceImpl) GetDraft(ctx context.Context, draftID uuid.UUID) (*domain.Draft, error) {
	draft, err := s.drafts.GetByID(ctx, draftID)
	if err != nil {
		return nil, NewServiceError("get_draft", "failed to load draft", err)
	}
	return draft, nil
}

// ListDrafts implements DraftService.
func (s *draftServiceImpl) ListDrafts(ctx context.Context, filter store.DraftFilter) ([]domain.DraftSummary, error) {
	if err := filter.Normalize(); err != nil {
		return nil, err
	}
	summaries, err := s.drafts.List(ctx, filter)
	if err != nil {
		return nil, NewServiceError("list_drafts", "failed to list drafts", err)
	}
	return summaries, nil
}
