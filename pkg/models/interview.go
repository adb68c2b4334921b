// Package models contains shared data models used across the interviewd codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// InterviewStatus is the publication state of an interview.
type InterviewStatus string

const (
	InterviewDraft    InterviewStatus = "draft"
	InterviewActive   InterviewStatus = "active"
	InterviewInactive InterviewStatus = "inactive"
)

// Interview is an assessment authored by an employer. This service reads
// interviews; authoring them happens elsewhere.
type Interview struct {
	ID               uuid.UUID       `db:"id"                 json:"id"`
	EmployerID       uuid.UUID       `db:"employer_id"        json:"employer_id"`
	JobPostingID     *uuid.UUID      `db:"job_posting_id"     json:"job_posting_id,omitempty"`
	Title            string          `db:"title"              json:"title"`
	Description      string          `db:"description"        json:"description"`
	Status           InterviewStatus `db:"status"             json:"status"`
	TotalTimeMinutes int             `db:"total_time_minutes" json:"total_time_minutes"`
	CutoffAt         *time.Time      `db:"cutoff_at"          json:"cutoff_at,omitempty"`
	CreatedAt        time.Time       `db:"created_at"         json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"         json:"updated_at"`
}

// Question belongs to exactly one interview and is ordered by OrderIndex.
type Question struct {
	ID               uuid.UUID `db:"id"                 json:"id"`
	InterviewID      uuid.UUID `db:"interview_id"       json:"interview_id"`
	Text             string    `db:"text"               json:"text"`
	TimeLimitSeconds *int      `db:"time_limit_seconds" json:"time_limit_seconds,omitempty"`
	OrderIndex       int       `db:"order_index"        json:"order_index"`
	MaxScore         int       `db:"max_score"          json:"max_score"`
}
