package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotifyAssignmentCreated   NotificationType = "assignment_created"
	NotifyAssignmentSubmitted NotificationType = "assignment_submitted"
	NotifyAssignmentTimeout   NotificationType = "assignment_timeout"
	NotifyEvaluationCompleted NotificationType = "evaluation_completed"
)

// Notification is the payload handed to the real-time delivery collaborator.
type Notification struct {
	UserID   uuid.UUID        `json:"user_id"`
	Type     NotificationType `json:"type"`
	Message  string           `json:"message"`
	Metadata map[string]any   `json:"metadata,omitempty"`
	SentAt   time.Time        `json:"sent_at"`
}

const (
	TemplateInterviewAssigned  = "interview_assigned"
	TemplateInterviewSubmitted = "interview_submitted"
)

// Email is a transactional email request; rendering happens downstream.
type Email struct {
	To       string         `json:"to"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data,omitempty"`
}
