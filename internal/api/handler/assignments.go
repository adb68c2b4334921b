package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/interviewd/internal/api/response"
	"github.com/kiranshivaraju/interviewd/internal/assignment"
	"github.com/kiranshivaraju/interviewd/internal/store"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// AssignmentService is implemented by assignment.Manager.
type AssignmentService interface {
	CreateAssignment(ctx context.Context, interviewID, candidateID uuid.UUID, src assignment.Source, assignerID uuid.UUID) (*models.Assignment, error)
	Get(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Assignment, error)
	ListForInterview(ctx context.Context, interviewID uuid.UUID, actor models.Actor, filter store.AssignmentFilter) ([]*models.Assignment, int, error)
}

// Lifecycle is implemented by lifecycle.Machine.
type Lifecycle interface {
	Start(ctx context.Context, id uuid.UUID, caller models.Actor) (*models.Assignment, error)
	Submit(ctx context.Context, id uuid.UUID, caller models.Actor, inputs []models.AnswerInput) (*models.Assignment, error)
	History(ctx context.Context, id uuid.UUID) ([]*models.AssignmentEvent, error)
}

// AnswerLister is implemented by answer.Store.
type AnswerLister interface {
	List(ctx context.Context, assignmentID uuid.UUID) ([]*models.Answer, error)
}

type Assignments struct {
	svc       AssignmentService
	lifecycle Lifecycle
	answers   AnswerLister
}

func NewAssignments(svc AssignmentService, lifecycle Lifecycle, answers AnswerLister) *Assignments {
	return &Assignments{svc: svc, lifecycle: lifecycle, answers: answers}
}

type createAssignmentRequest struct {
	CandidateID     uuid.UUID  `json:"candidate_id"`
	ApplicationID   *uuid.UUID `json:"application_id"`
	InvitationEmail string     `json:"invitation_email"`
	CandidateEmail  string     `json:"candidate_email"`
	CandidateName   string     `json:"candidate_name"`
}

// Create handles POST /api/v1/interviews/{interviewID}/assignments.
func (h *Assignments) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	interviewID, ok := uuidParam(w, r, "interviewID")
	if !ok {
		return
	}

	var req createAssignmentRequest
	if !decode(w, r, &req) {
		return
	}
	if req.CandidateID == uuid.Nil {
		response.Error(w, http.StatusBadRequest, response.CodeValidationFailed, "candidate_id is required", nil)
		return
	}

	a, err := h.svc.CreateAssignment(r.Context(), interviewID, req.CandidateID, assignment.Source{
		ApplicationID:   req.ApplicationID,
		InvitationEmail: req.InvitationEmail,
		CandidateEmail:  req.CandidateEmail,
		CandidateName:   req.CandidateName,
	}, actor.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, a)
}

// List handles GET /api/v1/interviews/{interviewID}/assignments.
func (h *Assignments) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	interviewID, ok := uuidParam(w, r, "interviewID")
	if !ok {
		return
	}

	q := r.URL.Query()
	page := queryInt(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	limit := queryInt(q.Get("limit"), defaultPageLimit)
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	items, total, err := h.svc.ListForInterview(r.Context(), interviewID, actor, store.AssignmentFilter{
		Status: models.AssignmentStatus(q.Get("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Collection(w, items, response.Page(page, limit, total))
}

// Get handles GET /api/v1/assignments/{assignmentID}.
func (h *Assignments) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "assignmentID")
	if !ok {
		return
	}

	a, err := h.svc.Get(r.Context(), id, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, a)
}

// Start handles POST /api/v1/assignments/{assignmentID}/start.
func (h *Assignments) Start(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "assignmentID")
	if !ok {
		return
	}

	a, err := h.lifecycle.Start(r.Context(), id, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, a)
}

type submitRequest struct {
	Answers []models.AnswerInput `json:"answers"`
}

// Submit handles POST /api/v1/assignments/{assignmentID}/submit.
func (h *Assignments) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "assignmentID")
	if !ok {
		return
	}

	var req submitRequest
	if !decode(w, r, &req) {
		return
	}

	a, err := h.lifecycle.Submit(r.Context(), id, actor, req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, a)
}

// Answers handles GET /api/v1/assignments/{assignmentID}/answers.
func (h *Assignments) Answers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "assignmentID")
	if !ok {
		return
	}

	if _, err := h.svc.Get(r.Context(), id, actor); err != nil {
		writeError(w, r, err)
		return
	}
	answers, err := h.answers.List(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, answers)
}

// History handles GET /api/v1/assignments/{assignmentID}/history.
func (h *Assignments) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "assignmentID")
	if !ok {
		return
	}

	if _, err := h.svc.Get(r.Context(), id, actor); err != nil {
		writeError(w, r, err)
		return
	}
	events, err := h.lifecycle.History(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, events)
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
