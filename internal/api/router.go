package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/interviewd/internal/api/middleware"
	"github.com/kiranshivaraju/interviewd/internal/api/response"
	"github.com/kiranshivaraju/interviewd/internal/tracing"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	Actors    *mw.ActorAuth
	RateLimit *mw.RateLimit

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	CreateAssignment  http.HandlerFunc
	ListAssignments   http.HandlerFunc
	GetAssignment     http.HandlerFunc
	StartAssignment   http.HandlerFunc
	SubmitAssignment  http.HandlerFunc
	ListAnswers       http.HandlerFunc
	AssignmentHistory http.HandlerFunc
	GradeAnswer       http.HandlerFunc
	RequestEvaluation http.HandlerFunc
	GetEvaluation     http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Recovery)
	r.Use(tracing.Middleware)
	r.Use(mw.Metrics)
	r.Use(mw.Logger)

	// Public
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// Protected routes: service key, then the acting user
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)
		r.Use(deps.Actors.Identify)

		// Employer surface
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(models.RoleEmployer))

			r.Post("/api/v1/interviews/{interviewID}/assignments", orNotImplemented(deps.CreateAssignment))
			r.Get("/api/v1/interviews/{interviewID}/assignments", orNotImplemented(deps.ListAssignments))
			r.Put("/api/v1/answers/{answerID}/grade", orNotImplemented(deps.GradeAnswer))
			r.Post("/api/v1/assignments/{assignmentID}/evaluation", orNotImplemented(deps.RequestEvaluation))
			r.Get("/api/v1/assignments/{assignmentID}/evaluation", orNotImplemented(deps.GetEvaluation))
		})

		// Candidate surface
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(models.RoleCandidate))

			r.Post("/api/v1/assignments/{assignmentID}/start", orNotImplemented(deps.StartAssignment))
			r.Post("/api/v1/assignments/{assignmentID}/submit", orNotImplemented(deps.SubmitAssignment))
		})

		// Either side; handlers check participation
		r.Get("/api/v1/assignments/{assignmentID}", orNotImplemented(deps.GetAssignment))
		r.Get("/api/v1/assignments/{assignmentID}/answers", orNotImplemented(deps.ListAnswers))
		r.Get("/api/v1/assignments/{assignmentID}/history", orNotImplemented(deps.AssignmentHistory))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, response.CodeNotImplemented, "Endpoint not yet implemented", nil)
	}
}
