package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/guideline-api/internal/api"
	apiMiddleware "github.com/phrazzld/guideline-api/internal/api/middleware"
	"github.com/rs/cors"
)

// setupRouter creates the router with all routes and middleware.
func (app *application) setupRouter() (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", apiMiddleware.UserIDHeader},
		ExposedHeaders: []string{apiMiddleware.TraceHeader, "Retry-After"},
		MaxAge:         300,
	}).Handler)
	r.Use(apiMiddleware.Actor)

	taskHandler := api.NewTaskHandler(app.taskService, app.logger)
	reviewHandler := api.NewReviewHandler(app.reviewService, app.logger)
	statsHandler := api.NewStatsHandler(app.statsService)
	draftHandler := api.NewDraftHandler(app.draftService)

	var limiter *apiMiddleware.RateLimiter
	if app.config.RateLimit.Enabled {
		var err error
		limiter, err = apiMiddleware.NewRateLimiter(app.limiter,
			app.config.RateLimit.Requests, app.config.RateLimit.Window, app.logger)
		if err != nil {
			return nil, err
		}
	}

	r.Route("/api/v1", func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Handler)
		}

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", taskHandler.CreateTask)
			r.Get("/", taskHandler.ListTasks)
			r.Get("/{id}", taskHandler.GetTask)
			r.Post("/{id}/draft", taskHandler.EnqueueGeneration)
			r.Post("/{id}/draft/retry", taskHandler.RetryGeneration)
			r.Put("/{id}/assignee", taskHandler.Assign)
			r.Post("/{id}/claim", taskHandler.Claim)
			r.Post("/{id}/start", taskHandler.StartAnnotation)
			r.Post("/{id}/submit", taskHandler.SubmitAnnotation)
		})

		r.Get("/drafts/{id}", draftHandler.GetDraft)
		r.Post("/drafts/{id}/edits", reviewHandler.RecordHumanEdit)
		r.Post("/edits/{id}/qa", reviewHandler.RecordQA)

		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/progress", statsHandler.GetProgress)
			r.Get("/costs", statsHandler.GetCosts)
			r.Get("/available", taskHandler.ListAvailable)
			r.Get("/drafts", draftHandler.ListProjectDrafts)
			r.Delete("/tasks", taskHandler.PurgeProject)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r, nil
}
