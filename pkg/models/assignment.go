package models

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentStatus is the lifecycle state of a candidate's interview instance.
type AssignmentStatus string

const (
	StatusAssigned   AssignmentStatus = "assigned"
	StatusInProgress AssignmentStatus = "in_progress"
	StatusSubmitted  AssignmentStatus = "submitted"
	StatusTimeout    AssignmentStatus = "timeout"
)

// assignmentTransitions is the complete set of legal status changes.
// submitted and timeout are terminal.
var assignmentTransitions = map[AssignmentStatus][]AssignmentStatus{
	StatusAssigned:   {StatusInProgress, StatusTimeout},
	StatusInProgress: {StatusSubmitted, StatusTimeout},
}

// Valid reports whether s is one of the known statuses.
func (s AssignmentStatus) Valid() bool {
	switch s {
	case StatusAssigned, StatusInProgress, StatusSubmitted, StatusTimeout:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave s.
func (s AssignmentStatus) IsTerminal() bool {
	return s == StatusSubmitted || s == StatusTimeout
}

// CanTransition reports whether moving from s to next is allowed.
func (s AssignmentStatus) CanTransition(next AssignmentStatus) bool {
	for _, allowed := range assignmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AssignmentResult classifies the authoritative total score.
type AssignmentResult string

const (
	ResultPending   AssignmentResult = "pending"
	ResultStrongFit AssignmentResult = AssignmentResult(RecommendationStrongFit)
	ResultPotential AssignmentResult = AssignmentResult(RecommendationPotential)
	ResultNotFit    AssignmentResult = AssignmentResult(RecommendationNotFit)
)

// Assignment is one candidate's instance of an interview. Rows are never
// deleted; together with AssignmentEvent they form the audit trail.
type Assignment struct {
	ID              uuid.UUID        `db:"id"               json:"id"`
	InterviewID     uuid.UUID        `db:"interview_id"     json:"interview_id"`
	CandidateID     uuid.UUID        `db:"candidate_id"     json:"candidate_id"`
	ApplicationID   *uuid.UUID       `db:"application_id"   json:"application_id,omitempty"`
	InvitationEmail *string          `db:"invitation_email" json:"invitation_email,omitempty"`
	AssignerID      uuid.UUID        `db:"assigner_id"      json:"assigner_id"`
	AssignedAt      time.Time        `db:"assigned_at"      json:"assigned_at"`
	StartedAt       *time.Time       `db:"started_at"       json:"started_at,omitempty"`
	CompletedAt     *time.Time       `db:"completed_at"     json:"completed_at,omitempty"`
	DeadlineAt      *time.Time       `db:"deadline_at"      json:"deadline_at,omitempty"`
	Status          AssignmentStatus `db:"status"           json:"status"`
	ManualScore     *int             `db:"manual_score"     json:"manual_score,omitempty"`
	TotalScore      *int             `db:"total_score"      json:"total_score,omitempty"`
	Result          AssignmentResult `db:"result"           json:"result"`
	Metadata        map[string]any   `db:"metadata"         json:"metadata,omitempty"`
	CreatedAt       time.Time        `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at"       json:"updated_at"`
}

// Overdue reports whether the assignment is still open and its deadline has passed at now.
func (a *Assignment) Overdue(now time.Time) bool {
	if a.Status.IsTerminal() || a.DeadlineAt == nil {
		return false
	}
	return now.After(*a.DeadlineAt)
}

// AssignmentEvent records a single status transition.
type AssignmentEvent struct {
	ID           uuid.UUID         `db:"id"            json:"id"`
	AssignmentID uuid.UUID         `db:"assignment_id" json:"assignment_id"`
	FromStatus   *AssignmentStatus `db:"from_status"   json:"from_status,omitempty"`
	ToStatus     AssignmentStatus  `db:"to_status"     json:"to_status"`
	ActorID      *uuid.UUID        `db:"actor_id"      json:"actor_id,omitempty"`
	Reason       string            `db:"reason"        json:"reason"`
	OccurredAt   time.Time         `db:"occurred_at"   json:"occurred_at"`
}
