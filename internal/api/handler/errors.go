// Package handler contains the HTTP handlers of the interviewd API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/interviewd/internal/api/middleware"
	"github.com/kiranshivaraju/interviewd/internal/api/response"
	"github.com/kiranshivaraju/interviewd/internal/queue"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		response.Error(w, http.StatusNotFound, response.CodeNotFound, err.Error(), nil)
	case errors.Is(err, models.ErrForbidden):
		response.Error(w, http.StatusForbidden, response.CodeForbidden, err.Error(), nil)
	case errors.Is(err, models.ErrEvaluationInProgress):
		response.Error(w, http.StatusConflict, response.CodeEvaluationInProgress,
			"An evaluation of this assignment is already running", nil)
	case errors.Is(err, models.ErrConflict):
		response.Error(w, http.StatusConflict, response.CodeConflict, err.Error(), nil)
	case errors.Is(err, models.ErrValidation):
		response.Error(w, http.StatusBadRequest, response.CodeValidationFailed, err.Error(), nil)
	case errors.Is(err, models.ErrTimeoutExpired):
		response.Error(w, http.StatusGone, response.CodeTimeoutExpired, "The interview deadline has passed", nil)
	case errors.Is(err, models.ErrScoringUnavailable):
		response.Error(w, http.StatusBadGateway, response.CodeScoringUnavailable,
			"The AI scorer is not available", nil)
	case errors.Is(err, queue.ErrQueueFull):
		response.Error(w, http.StatusServiceUnavailable, response.CodeQueueFull,
			"Evaluation queue is full, retry later", nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, response.CodeInternal,
			"An unexpected error occurred", nil)
	}
}

func actorFrom(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := mw.GetActor(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, response.CodeInvalidActor, "Missing actor", nil)
	}
	return actor, ok
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, name+" must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid JSON body", nil)
		return false
	}
	return true
}
