// Package assignment creates candidate assignments and serves them to the
// candidate and the employer side.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/interviewd/internal/notify"
	"github.com/kiranshivaraju/interviewd/internal/store"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

// Source says where an assignment came from: an application to a job
// posting, or a direct invitation by email.
type Source struct {
	ApplicationID   *uuid.UUID
	InvitationEmail string
	// Candidate contact details for the notification and email payloads.
	CandidateEmail string
	CandidateName  string
}

// TimeoutChecker applies the lazy deadline check before an assignment is read.
type TimeoutChecker interface {
	CheckAndApplyTimeout(ctx context.Context, id uuid.UUID) (*models.Assignment, error)
}

type Manager struct {
	store    store.Store
	timeouts TimeoutChecker
	sender   notify.Sender
	now      func() time.Time
	logger   *slog.Logger
}

func NewManager(st store.Store, timeouts TimeoutChecker, sender notify.Sender) *Manager {
	return &Manager{
		store:    st,
		timeouts: timeouts,
		sender:   sender,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.With("component", "assignment"),
	}
}

// WithClock replaces time.Now, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// CreateAssignment assigns an active interview to a candidate. The deadline
// is assigned_at plus the interview's time budget; the interview cutoff only
// decides whether new assignments are accepted.
func (m *Manager) CreateAssignment(ctx context.Context, interviewID, candidateID uuid.UUID, src Source, assignerID uuid.UUID) (*models.Assignment, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}

	iv, err := m.store.GetInterview(ctx, interviewID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: interview %s", models.ErrNotFound, interviewID)
	}
	if err != nil {
		return nil, err
	}

	if iv.EmployerID != assignerID {
		return nil, fmt.Errorf("%w: only the interview owner may assign it", models.ErrForbidden)
	}

	now := m.now()
	if iv.Status != models.InterviewActive {
		return nil, fmt.Errorf("%w: interview is %s", models.ErrForbidden, iv.Status)
	}
	if iv.CutoffAt != nil && !now.Before(*iv.CutoffAt) {
		return nil, fmt.Errorf("%w: interview stopped accepting assignments at %s",
			models.ErrForbidden, iv.CutoffAt.Format(time.RFC3339))
	}

	deadline := now.Add(time.Duration(iv.TotalTimeMinutes) * time.Minute)
	a := &models.Assignment{
		ID:            uuid.New(),
		InterviewID:   interviewID,
		CandidateID:   candidateID,
		ApplicationID: src.ApplicationID,
		AssignerID:    assignerID,
		AssignedAt:    now,
		DeadlineAt:    &deadline,
		Status:        models.StatusAssigned,
		Result:        models.ResultPending,
		Metadata:      map[string]any{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if src.ApplicationID == nil {
		email := src.InvitationEmail
		a.InvitationEmail = &email
	}

	if err := m.store.CreateAssignment(ctx, a); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: candidate already has this interview", models.ErrConflict)
		}
		return nil, err
	}

	m.logger.Info("assignment created",
		"assignment_id", a.ID,
		"interview_id", interviewID,
		"deadline_at", deadline,
	)

	m.sender.Notify(ctx, candidateID, models.NotifyAssignmentCreated,
		fmt.Sprintf("You have been assigned the interview %q", iv.Title),
		map[string]any{"assignment_id": a.ID, "interview_id": iv.ID, "deadline_at": deadline})
	m.sender.SendEmail(ctx, src.contactEmail(), models.TemplateInterviewAssigned, map[string]any{
		"name":            src.CandidateName,
		"interview_title": iv.Title,
		"deadline_at":     deadline.Format(time.RFC3339),
		"minutes":         iv.TotalTimeMinutes,
	})

	return a, nil
}

// Get returns the assignment after applying any pending timeout. Only the
// candidate, the assigner or the interview owner may read it.
func (m *Manager) Get(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Assignment, error) {
	a, err := m.timeouts.CheckAndApplyTimeout(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.CandidateID == actor.ID || a.AssignerID == actor.ID {
		return a, nil
	}

	iv, err := m.store.GetInterview(ctx, a.InterviewID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if iv == nil || iv.EmployerID != actor.ID {
		return nil, fmt.Errorf("%w: not a participant of this assignment", models.ErrForbidden)
	}
	return a, nil
}

// ListForInterview pages through an interview's assignments for its owner.
func (m *Manager) ListForInterview(ctx context.Context, interviewID uuid.UUID, actor models.Actor, filter store.AssignmentFilter) ([]*models.Assignment, int, error) {
	iv, err := m.store.GetInterview(ctx, interviewID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, fmt.Errorf("%w: interview %s", models.ErrNotFound, interviewID)
	}
	if err != nil {
		return nil, 0, err
	}
	if iv.EmployerID != actor.ID {
		return nil, 0, fmt.Errorf("%w: only the interview owner may list assignments", models.ErrForbidden)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", models.ErrValidation, filter.Status)
	}

	filter.InterviewID = interviewID
	assignments, total, err := m.store.ListAssignments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	if assignments == nil {
		assignments = []*models.Assignment{}
	}
	return assignments, total, nil
}

func (s Source) validate() error {
	if s.ApplicationID != nil {
		return nil
	}
	if s.InvitationEmail == "" {
		return fmt.Errorf("%w: either application_id or invitation_email is required", models.ErrValidation)
	}
	if _, err := mail.ParseAddress(s.InvitationEmail); err != nil {
		return fmt.Errorf("%w: invalid invitation_email", models.ErrValidation)
	}
	return nil
}

func (s Source) contactEmail() string {
	if s.CandidateEmail != "" {
		return s.CandidateEmail
	}
	return s.InvitationEmail
}
