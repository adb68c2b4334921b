package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrStaleStatus is returned by a conditional status update when the row no
// longer has the expected status. The caller lost a race and must re-read.
var ErrStaleStatus = errors.New("assignment status changed concurrently")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	// WithTx runs fn inside a transaction. The Store passed to fn is bound to
	// the transaction; nested calls reuse it.
	WithTx(ctx context.Context, fn func(Store) error) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	GetInterview(ctx context.Context, id uuid.UUID) (*models.Interview, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
	ListQuestions(ctx context.Context, interviewID uuid.UUID) ([]*models.Question, error)

	CreateAssignment(ctx context.Context, a *models.Assignment) error
	GetAssignment(ctx context.Context, id uuid.UUID) (*models.Assignment, error)
	// GetAssignmentForUpdate locks the row until the surrounding transaction ends.
	GetAssignmentForUpdate(ctx context.Context, id uuid.UUID) (*models.Assignment, error)
	ListAssignments(ctx context.Context, filter AssignmentFilter) ([]*models.Assignment, int, error)
	TransitionAssignment(ctx context.Context, id uuid.UUID, from, to models.AssignmentStatus, opts ...TransitionOption) (*models.Assignment, error)
	TimeoutOverdue(ctx context.Context, now time.Time, limit int) ([]*models.Assignment, error)
	ListAssignmentEvents(ctx context.Context, assignmentID uuid.UUID) ([]*models.AssignmentEvent, error)
	UpdateAssignmentScores(ctx context.Context, id uuid.UUID, update ScoreUpdate) error

	UpsertAnswer(ctx context.Context, a *models.Answer) (*models.Answer, error)
	GetAnswer(ctx context.Context, id uuid.UUID) (*models.Answer, error)
	ListAnswers(ctx context.Context, assignmentID uuid.UUID) ([]*models.Answer, error)
	GradeAnswer(ctx context.Context, id uuid.UUID, grade Grade) (*models.Answer, error)
	ManualAggregate(ctx context.Context, assignmentID uuid.UUID) (Aggregate, error)

	// CreateAiEvaluation inserts e unless one already exists for the
	// assignment. It returns the stored row and whether this call created it.
	CreateAiEvaluation(ctx context.Context, e *models.AiEvaluation) (*models.AiEvaluation, bool, error)
	GetAiEvaluation(ctx context.Context, assignmentID uuid.UUID) (*models.AiEvaluation, error)
}

type AssignmentFilter struct {
	InterviewID uuid.UUID
	Status      models.AssignmentStatus
	Page        int
	Limit       int
}

// Grade is the set of fields written when an answer is graded.
type Grade struct {
	Score    int
	Feedback *string
	GraderID uuid.UUID
	GradedAt time.Time
}

// Aggregate is the manual scoring state of one assignment.
type Aggregate struct {
	Sum         int // sum of non-null answer scores
	Graded      int // number of graded answers
	MaxPossible int // sum of max_score over the interview's questions
}

// ScoreUpdate overwrites the scoring columns of an assignment.
type ScoreUpdate struct {
	ManualScore *int
	TotalScore  *int
	Result      models.AssignmentResult
}

// TransitionParams are the resolved options of a status transition.
type TransitionParams struct {
	At      time.Time
	ActorID *uuid.UUID
	Reason  string
}

type TransitionOption func(*TransitionParams)

// ResolveTransition applies opts over the defaults (now, no actor, no reason).
func ResolveTransition(opts ...TransitionOption) TransitionParams {
	p := TransitionParams{At: time.Now().UTC()}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// At overrides the transition timestamp (defaults to now).
func At(t time.Time) TransitionOption {
	return func(p *TransitionParams) {
		p.At = t
	}
}

func ByActor(id uuid.UUID) TransitionOption {
	return func(p *TransitionParams) {
		p.ActorID = &id
	}
}

func WithReason(reason string) TransitionOption {
	return func(p *TransitionParams) {
		p.Reason = reason
	}
}
