package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/api/shared"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStatsService struct {
	mock.Mock
}

func (m *MockStatsService) GetProgress(ctx context.Context, projectID uuid.UUID) (*domain.Progress, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Progress), args.Error(1)
}

func (m *MockStatsService) GetCosts(ctx context.Context, projectID uuid.UUID) (*domain.CostReport, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CostReport), args.Error(1)
}

func TestProgressAndCosts(t *testing.T) {
	t.Parallel()
	env := newAPIEnv(t, nil)
	projectID := uuid.New()
	env.readyTask(t, projectID)

	rr := env.do(t, http.MethodGet, "/projects/"+projectID.String()+"/progress", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	progress := decode[domain.Progress](t, rr)
	assert.Equal(t, 1, progress.Total)
	assert.Equal(t, 1, progress.ByStatus[domain.TaskStatusReadyForAnnotation])
	assert.Equal(t, 100.0, progress.DraftPercentComplete)

	rr = env.do(t, http.MethodGet, "/projects/"+projectID.String()+"/costs", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	report := decode[domain.CostReport](t, rr)
	assert.Equal(t, 1, report.Totals.Drafts)
	require.Len(t, report.ByModel, 1)
	assert.Equal(t, "gemini-2.0-flash", report.ByModel[0].Model)
}

func TestStatsErrorsAreSanitized(t *testing.T) {
	t.Parallel()
	stats := new(MockStatsService)
	env := newAPIEnv(t, stats)
	projectID := uuid.New()

	stats.On("GetProgress", mock.Anything, projectID).
		Return(nil, errors.New("pq: password authentication failed for user admin"))
	stats.On("GetCosts", mock.Anything, projectID).
		Return(nil, domain.ErrEmptyID)

	rr := env.do(t, http.MethodGet, "/projects/"+projectID.String()+"/progress", uuid.Nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	resp := decode[shared.ErrorResponse](t, rr)
	assert.Equal(t, "Failed to compute progress", resp.Error)
	assert.NotContains(t, rr.Body.String(), "password")

	rr = env.do(t, http.MethodGet, "/projects/"+projectID.String()+"/costs", uuid.Nil, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	stats.AssertExpectations(t)
}
