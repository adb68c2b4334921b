package models

import (
	"time"

	"github.com/google/uuid"
)

// Answer holds a candidate's response to one question. There is at most one
// Answer per (assignment, question); writes are upserts.
type Answer struct {
	ID             uuid.UUID  `db:"id"              json:"id"`
	AssignmentID   uuid.UUID  `db:"assignment_id"   json:"assignment_id"`
	QuestionID     uuid.UUID  `db:"question_id"     json:"question_id"`
	Text           *string    `db:"text"            json:"text"`
	ElapsedSeconds int        `db:"elapsed_seconds" json:"elapsed_seconds"`
	Score          *int       `db:"score"           json:"score,omitempty"`
	GraderID       *uuid.UUID `db:"grader_id"       json:"grader_id,omitempty"`
	GradedAt       *time.Time `db:"graded_at"       json:"graded_at,omitempty"`
	Feedback       *string    `db:"feedback"        json:"feedback,omitempty"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}

// AnswerInput is one entry of a submit payload.
type AnswerInput struct {
	QuestionID     uuid.UUID `json:"question_id"`
	Text           string    `json:"text"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
}
