// Package lifecycle owns assignment status changes: start, submit and the
// deadline timeout, both lazily on access and from a periodic sweep.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/interviewd/internal/answer"
	"github.com/kiranshivaraju/interviewd/internal/metrics"
	"github.com/kiranshivaraju/interviewd/internal/notify"
	"github.com/kiranshivaraju/interviewd/internal/queue"
	"github.com/kiranshivaraju/interviewd/internal/store"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

const (
	reasonStarted       = "started"
	reasonImplicitStart = "implicit start on submit"
	reasonSubmitted     = "submitted"
	reasonDeadlineCheck = "deadline check"
)

type Machine struct {
	store        store.Store
	sender       notify.Sender
	enqueuer     queue.Enqueuer
	autoEvaluate bool
	now          func() time.Time
	logger       *slog.Logger
}

type Option func(*Machine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithEvaluationTrigger enqueues an AI evaluation after every successful submit.
func WithEvaluationTrigger(enq queue.Enqueuer) Option {
	return func(m *Machine) {
		m.enqueuer = enq
		m.autoEvaluate = enq != nil
	}
}

func NewMachine(st store.Store, sender notify.Sender, opts ...Option) *Machine {
	m := &Machine{
		store:  st,
		sender: sender,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.With("component", "lifecycle"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start moves an assigned interview to in_progress. An open assignment whose
// deadline has passed is timed out instead and ErrTimeoutExpired returned;
// starting one that is already in_progress or submitted is ErrForbidden.
func (m *Machine) Start(ctx context.Context, id uuid.UUID, caller models.Actor) (*models.Assignment, error) {
	var (
		out     *models.Assignment
		expired bool
	)
	err := m.store.WithTx(ctx, func(tx store.Store) error {
		a, err := m.lockForCandidate(ctx, tx, id, caller.ID)
		if err != nil {
			return err
		}
		if a.Status == models.StatusTimeout {
			return fmt.Errorf("%w: assignment timed out", models.ErrTimeoutExpired)
		}

		// The deadline guard runs for every open status, so an overdue
		// in_progress assignment converges to timeout here too.
		now := m.now()
		if a.Overdue(now) {
			out, err = tx.TransitionAssignment(ctx, id, a.Status, models.StatusTimeout,
				store.At(now), store.WithReason(reasonDeadlineCheck))
			expired = err == nil
			return err
		}

		if a.Status != models.StatusAssigned {
			return fmt.Errorf("%w: cannot start an assignment that is %s", models.ErrForbidden, a.Status)
		}

		out, err = tx.TransitionAssignment(ctx, id, models.StatusAssigned, models.StatusInProgress,
			store.At(now), store.ByActor(caller.ID), store.WithReason(reasonStarted))
		return err
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	if expired {
		m.timedOut(ctx, out, "lazy")
		return nil, fmt.Errorf("%w: deadline was %s", models.ErrTimeoutExpired, out.DeadlineAt.Format(time.RFC3339))
	}

	metrics.Transitions.WithLabelValues(string(models.StatusAssigned), string(models.StatusInProgress)).Inc()
	m.logger.Info("assignment started", "assignment_id", id)
	return out, nil
}

// Submit stores the answers and closes the assignment. Submitting straight
// from assigned records the implicit in_progress step first, all in one
// transaction.
func (m *Machine) Submit(ctx context.Context, id uuid.UUID, caller models.Actor, inputs []models.AnswerInput) (*models.Assignment, error) {
	var (
		out      *models.Assignment
		expired  bool
		implicit bool
	)
	err := m.store.WithTx(ctx, func(tx store.Store) error {
		a, err := m.lockForCandidate(ctx, tx, id, caller.ID)
		if err != nil {
			return err
		}
		switch a.Status {
		case models.StatusSubmitted:
			return fmt.Errorf("%w: assignment already submitted", models.ErrConflict)
		case models.StatusTimeout:
			return fmt.Errorf("%w: assignment timed out", models.ErrTimeoutExpired)
		}

		now := m.now()
		if a.Overdue(now) {
			out, err = tx.TransitionAssignment(ctx, id, a.Status, models.StatusTimeout,
				store.At(now), store.WithReason(reasonDeadlineCheck))
			expired = err == nil
			return err
		}

		if err := validateAnswers(ctx, tx, a.InterviewID, inputs); err != nil {
			return err
		}

		if a.Status == models.StatusAssigned {
			if _, err := tx.TransitionAssignment(ctx, id, models.StatusAssigned, models.StatusInProgress,
				store.At(now), store.ByActor(caller.ID), store.WithReason(reasonImplicitStart)); err != nil {
				return err
			}
			implicit = true
		}

		answers := answer.NewStore(tx)
		for _, in := range inputs {
			text := in.Text
			if _, err := answers.Upsert(ctx, id, in.QuestionID, &text, in.ElapsedSeconds); err != nil {
				return err
			}
		}

		out, err = tx.TransitionAssignment(ctx, id, models.StatusInProgress, models.StatusSubmitted,
			store.At(now), store.ByActor(caller.ID), store.WithReason(reasonSubmitted))
		return err
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}

	if expired {
		m.timedOut(ctx, out, "lazy")
		return nil, fmt.Errorf("%w: deadline was %s", models.ErrTimeoutExpired, out.DeadlineAt.Format(time.RFC3339))
	}

	if implicit {
		metrics.Transitions.WithLabelValues(string(models.StatusAssigned), string(models.StatusInProgress)).Inc()
	}
	metrics.Transitions.WithLabelValues(string(models.StatusInProgress), string(models.StatusSubmitted)).Inc()
	m.logger.Info("assignment submitted", "assignment_id", id, "answers", len(inputs))

	m.sender.Notify(ctx, out.AssignerID, models.NotifyAssignmentSubmitted,
		"A candidate has submitted their interview",
		map[string]any{"assignment_id": out.ID, "interview_id": out.InterviewID, "candidate_id": out.CandidateID})
	m.sender.SendEmail(ctx, caller.Email, models.TemplateInterviewSubmitted,
		map[string]any{"name": caller.Name, "assignment_id": out.ID})

	if m.autoEvaluate {
		if err := m.enqueuer.Enqueue(ctx, out.ID); err != nil {
			metrics.SideEffectFailures.WithLabelValues("enqueue").Inc()
			m.logger.Warn("failed to enqueue evaluation", "assignment_id", out.ID, "error", err)
		}
	}
	return out, nil
}

// CheckAndApplyTimeout times out an open assignment whose deadline has
// passed. Terminal or not yet due assignments are returned unchanged.
func (m *Machine) CheckAndApplyTimeout(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	a, err := m.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	now := m.now()
	if !a.Overdue(now) {
		return a, nil
	}

	out, err := m.store.TransitionAssignment(ctx, id, a.Status, models.StatusTimeout,
		store.At(now), store.WithReason(reasonDeadlineCheck))
	if errors.Is(err, store.ErrStaleStatus) {
		// Someone else moved it first; report what they left.
		a, err = m.store.GetAssignment(ctx, id)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		return a, nil
	}
	if err != nil {
		return nil, mapStoreErr(err)
	}

	m.timedOut(ctx, out, "lazy")
	return out, nil
}

// History returns every recorded status change of the assignment, oldest first.
func (m *Machine) History(ctx context.Context, id uuid.UUID) ([]*models.AssignmentEvent, error) {
	if _, err := m.store.GetAssignment(ctx, id); err != nil {
		return nil, mapStoreErr(err)
	}
	events, err := m.store.ListAssignmentEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*models.AssignmentEvent{}
	}
	return events, nil
}

func (m *Machine) lockForCandidate(ctx context.Context, tx store.Store, id, callerID uuid.UUID) (*models.Assignment, error) {
	a, err := tx.GetAssignmentForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.CandidateID != callerID {
		return nil, fmt.Errorf("%w: caller is not the assigned candidate", models.ErrForbidden)
	}
	return a, nil
}

// timedOut records a committed timeout and tells the candidate.
func (m *Machine) timedOut(ctx context.Context, a *models.Assignment, source string) {
	metrics.TimedOut.WithLabelValues(source).Inc()
	m.logger.Info("assignment timed out", "assignment_id", a.ID, "source", source)
	m.sender.Notify(ctx, a.CandidateID, models.NotifyAssignmentTimeout,
		"The deadline for your interview has passed",
		map[string]any{"assignment_id": a.ID, "interview_id": a.InterviewID})
}

func validateAnswers(ctx context.Context, tx store.Store, interviewID uuid.UUID, inputs []models.AnswerInput) error {
	questions, err := tx.ListQuestions(ctx, interviewID)
	if err != nil {
		return err
	}
	known := make(map[uuid.UUID]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
	}

	seen := make(map[uuid.UUID]bool, len(inputs))
	for _, in := range inputs {
		if !known[in.QuestionID] {
			return fmt.Errorf("%w: question %s does not belong to this interview", models.ErrValidation, in.QuestionID)
		}
		if seen[in.QuestionID] {
			return fmt.Errorf("%w: question %s answered more than once", models.ErrValidation, in.QuestionID)
		}
		if in.ElapsedSeconds < 0 {
			return fmt.Errorf("%w: elapsed_seconds must not be negative", models.ErrValidation)
		}
		seen[in.QuestionID] = true
	}
	return nil
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: assignment", models.ErrNotFound)
	case errors.Is(err, store.ErrStaleStatus):
		return fmt.Errorf("%w: assignment changed concurrently, retry", models.ErrConflict)
	}
	return err
}
