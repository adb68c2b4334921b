// Package storetest is an in-memory store.Store for unit tests. It follows the
// Postgres store's semantics: compare-and-set transitions with an event per
// change, upserts that keep grading, insert-once evaluations, and
// transactions that roll back on error.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/interviewd/internal/store"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

type state struct {
	txMu sync.Mutex
	mu   sync.Mutex

	apiKeys     map[uuid.UUID]models.APIKey
	interviews  map[uuid.UUID]models.Interview
	questions   map[uuid.UUID]models.Question
	assignments map[uuid.UUID]models.Assignment
	events      []models.AssignmentEvent
	answers     map[uuid.UUID]models.Answer
	evaluations map[uuid.UUID]models.AiEvaluation // keyed by assignment id

	// BeforeTransition, when set, runs before every conditional status
	// update. Tests use it to simulate a concurrent writer.
	beforeTransition func(id uuid.UUID)
	pingErr          error
}

// Store implements store.Store.
type Store struct {
	*state
	inTx bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{state: &state{
		apiKeys:     map[uuid.UUID]models.APIKey{},
		interviews:  map[uuid.UUID]models.Interview{},
		questions:   map[uuid.UUID]models.Question{},
		assignments: map[uuid.UUID]models.Assignment{},
		answers:     map[uuid.UUID]models.Answer{},
		evaluations: map[uuid.UUID]models.AiEvaluation{},
	}}
}

// OnTransition installs a hook run before each TransitionAssignment.
func (s *Store) OnTransition(fn func(id uuid.UUID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeTransition = fn
}

// FailPing makes Ping return err.
func (s *Store) FailPing(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *Store) WithTx(_ context.Context, fn func(store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(&Store{state: s.state, inTx: true}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	assignments map[uuid.UUID]models.Assignment
	events      []models.AssignmentEvent
	answers     map[uuid.UUID]models.Answer
	evaluations map[uuid.UUID]models.AiEvaluation
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		assignments: make(map[uuid.UUID]models.Assignment, len(s.assignments)),
		events:      append([]models.AssignmentEvent(nil), s.events...),
		answers:     make(map[uuid.UUID]models.Answer, len(s.answers)),
		evaluations: make(map[uuid.UUID]models.AiEvaluation, len(s.evaluations)),
	}
	for k, v := range s.assignments {
		snap.assignments[k] = v
	}
	for k, v := range s.answers {
		snap.answers[k] = v
	}
	for k, v := range s.evaluations {
		snap.evaluations[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = snap.assignments
	s.events = snap.events
	s.answers = snap.answers
	s.evaluations = snap.evaluations
}

// --- API Keys ---

func (s *Store) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.APIKey
	for _, k := range s.apiKeys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			cp := k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[id]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	k.LastUsedAt = &now
	s.apiKeys[id] = k
	return nil
}

func (s *Store) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeys[key.ID]; ok {
		return store.ErrDuplicateKey
	}
	s.apiKeys[key.ID] = *key
	return nil
}

func (s *Store) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[id]
	if !ok || k.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	s.apiKeys[id] = k
	return nil
}

// --- Interviews ---

// CreateInterview seeds an interview.
func (s *Store) CreateInterview(_ context.Context, iv *models.Interview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interviews[iv.ID] = *iv
	return nil
}

// CreateQuestion seeds a question.
func (s *Store) CreateQuestion(_ context.Context, q *models.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions[q.ID] = *q
	return nil
}

func (s *Store) GetInterview(_ context.Context, id uuid.UUID) (*models.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv, ok := s.interviews[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &iv, nil
}

func (s *Store) GetQuestion(_ context.Context, id uuid.UUID) (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &q, nil
}

func (s *Store) ListQuestions(_ context.Context, interviewID uuid.UUID) ([]*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questionsOf(interviewID), nil
}

func (s *Store) questionsOf(interviewID uuid.UUID) []*models.Question {
	var out []*models.Question
	for _, q := range s.questions {
		if q.InterviewID == interviewID {
			cp := q
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// --- Assignments ---

func (s *Store) CreateAssignment(_ context.Context, a *models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assignments {
		if existing.InterviewID == a.InterviewID && existing.CandidateID == a.CandidateID {
			return store.ErrDuplicateKey
		}
	}
	s.assignments[a.ID] = *a
	actor := a.AssignerID
	s.events = append(s.events, models.AssignmentEvent{
		ID:           uuid.New(),
		AssignmentID: a.ID,
		ToStatus:     a.Status,
		ActorID:      &actor,
		Reason:       "created",
		OccurredAt:   a.AssignedAt,
	})
	return nil
}

func (s *Store) GetAssignment(_ context.Context, id uuid.UUID) (*models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *Store) GetAssignmentForUpdate(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	if !s.inTx {
		return nil, fmt.Errorf("get assignment for update: not in a transaction")
	}
	return s.GetAssignment(ctx, id)
}

func (s *Store) ListAssignments(_ context.Context, filter store.AssignmentFilter) ([]*models.Assignment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*models.Assignment
	for _, a := range s.assignments {
		if a.InterviewID != filter.InterviewID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		cp := a
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].AssignedAt.After(matched[j].AssignedAt) })

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return []*models.Assignment{}, len(matched), nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

func (s *Store) TransitionAssignment(_ context.Context, id uuid.UUID, from, to models.AssignmentStatus, opts ...store.TransitionOption) (*models.Assignment, error) {
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("invalid assignment status transition: %s -> %s", from, to)
	}
	params := store.ResolveTransition(opts...)

	s.mu.Lock()
	hook := s.beforeTransition
	s.mu.Unlock()
	if hook != nil {
		hook(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if a.Status != from {
		return nil, store.ErrStaleStatus
	}

	at := params.At
	a.Status = to
	a.UpdatedAt = at
	switch to {
	case models.StatusInProgress:
		a.StartedAt = &at
	case models.StatusSubmitted:
		a.CompletedAt = &at
	}
	s.assignments[id] = a

	prev := from
	s.events = append(s.events, models.AssignmentEvent{
		ID:           uuid.New(),
		AssignmentID: id,
		FromStatus:   &prev,
		ToStatus:     to,
		ActorID:      params.ActorID,
		Reason:       params.Reason,
		OccurredAt:   at,
	})
	return &a, nil
}

func (s *Store) TimeoutOverdue(_ context.Context, now time.Time, limit int) ([]*models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var overdue []models.Assignment
	for _, a := range s.assignments {
		if a.Overdue(now) {
			overdue = append(overdue, a)
		}
	}
	sort.Slice(overdue, func(i, j int) bool { return overdue[i].DeadlineAt.Before(*overdue[j].DeadlineAt) })
	if len(overdue) > limit {
		overdue = overdue[:limit]
	}

	out := make([]*models.Assignment, 0, len(overdue))
	for _, a := range overdue {
		prev := a.Status
		a.Status = models.StatusTimeout
		a.UpdatedAt = now
		s.assignments[a.ID] = a
		s.events = append(s.events, models.AssignmentEvent{
			ID:           uuid.New(),
			AssignmentID: a.ID,
			FromStatus:   &prev,
			ToStatus:     models.StatusTimeout,
			Reason:       "deadline sweep",
			OccurredAt:   now,
		})
		cp := a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) ListAssignmentEvents(_ context.Context, assignmentID uuid.UUID) ([]*models.AssignmentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AssignmentEvent
	for _, e := range s.events {
		if e.AssignmentID == assignmentID {
			cp := e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) UpdateAssignmentScores(_ context.Context, id uuid.UUID, update store.ScoreUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return store.ErrNotFound
	}
	a.ManualScore = update.ManualScore
	a.TotalScore = update.TotalScore
	a.Result = update.Result
	a.UpdatedAt = time.Now().UTC()
	s.assignments[id] = a
	return nil
}

// --- Answers ---

func (s *Store) UpsertAnswer(_ context.Context, in *models.Answer) (*models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.answers {
		if existing.AssignmentID == in.AssignmentID && existing.QuestionID == in.QuestionID {
			existing.Text = in.Text
			existing.ElapsedSeconds = in.ElapsedSeconds
			existing.UpdatedAt = in.UpdatedAt
			s.answers[id] = existing
			return &existing, nil
		}
	}
	a := *in
	s.answers[a.ID] = a
	return &a, nil
}

func (s *Store) GetAnswer(_ context.Context, id uuid.UUID) (*models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (s *Store) ListAnswers(_ context.Context, assignmentID uuid.UUID) ([]*models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Answer
	for _, a := range s.answers {
		if a.AssignmentID == assignmentID {
			cp := a
			out = append(out, &cp)
		}
	}
	order := func(a *models.Answer) int { return s.questions[a.QuestionID].OrderIndex }
	sort.Slice(out, func(i, j int) bool { return order(out[i]) < order(out[j]) })
	return out, nil
}

func (s *Store) GradeAnswer(_ context.Context, id uuid.UUID, grade store.Grade) (*models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	score, grader, at := grade.Score, grade.GraderID, grade.GradedAt
	a.Score = &score
	a.Feedback = grade.Feedback
	a.GraderID = &grader
	a.GradedAt = &at
	a.UpdatedAt = at
	s.answers[id] = a
	return &a, nil
}

func (s *Store) ManualAggregate(_ context.Context, assignmentID uuid.UUID) (store.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assignmentID]
	if !ok {
		return store.Aggregate{}, store.ErrNotFound
	}
	var agg store.Aggregate
	for _, an := range s.answers {
		if an.AssignmentID == assignmentID && an.Score != nil {
			agg.Sum += *an.Score
			agg.Graded++
		}
	}
	for _, q := range s.questionsOf(a.InterviewID) {
		agg.MaxPossible += q.MaxScore
	}
	return agg, nil
}

// --- AI Evaluations ---

func (s *Store) CreateAiEvaluation(_ context.Context, e *models.AiEvaluation) (*models.AiEvaluation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.evaluations[e.AssignmentID]; ok {
		return &existing, false, nil
	}
	s.evaluations[e.AssignmentID] = *e
	cp := *e
	return &cp, true, nil
}

func (s *Store) GetAiEvaluation(_ context.Context, assignmentID uuid.UUID) (*models.AiEvaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.evaluations[assignmentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}
