package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/interviewd/internal/api/response"
	"github.com/kiranshivaraju/interviewd/internal/queue"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

// Scoring is implemented by scoring.Aggregator.
type Scoring interface {
	GradeAnswer(ctx context.Context, answerID uuid.UUID, grader models.Actor, score int, feedback *string) (*models.Answer, error)
	CheckEvaluable(ctx context.Context, assignmentID uuid.UUID, actor models.Actor) (*models.AiEvaluation, error)
	GetEvaluation(ctx context.Context, assignmentID uuid.UUID, actor models.Actor) (*models.AiEvaluation, error)
}

type Grading struct {
	scoring Scoring
	queue   queue.Enqueuer
}

func NewGrading(scoring Scoring, q queue.Enqueuer) *Grading {
	return &Grading{scoring: scoring, queue: q}
}

type gradeRequest struct {
	Score    *int    `json:"score"`
	Feedback *string `json:"feedback"`
}

// Grade handles PUT /api/v1/answers/{answerID}/grade.
func (h *Grading) Grade(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	answerID, ok := uuidParam(w, r, "answerID")
	if !ok {
		return
	}

	var req gradeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Score == nil {
		response.Error(w, http.StatusBadRequest, response.CodeValidationFailed, "score is required", nil)
		return
	}

	ans, err := h.scoring.GradeAnswer(r.Context(), answerID, actor, *req.Score, req.Feedback)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, ans)
}

// RequestEvaluation handles POST /api/v1/assignments/{assignmentID}/evaluation.
// An existing evaluation is returned with 200; otherwise a job is queued and
// the call answers 202.
func (h *Grading) RequestEvaluation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "assignmentID")
	if !ok {
		return
	}

	existing, err := h.scoring.CheckEvaluable(r.Context(), id, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if existing != nil {
		response.JSON(w, existing)
		return
	}

	if err := h.queue.Enqueue(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	response.Accepted(w, map[string]any{
		"assignment_id": id,
		"status":        "queued",
	})
}

// GetEvaluation handles GET /api/v1/assignments/{assignmentID}/evaluation.
func (h *Grading) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "assignmentID")
	if !ok {
		return
	}

	eval, err := h.scoring.GetEvaluation(r.Context(), id, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, eval)
}
