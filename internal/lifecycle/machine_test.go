package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/interviewd/internal/lifecycle"
	"github.com/kiranshivaraju/interviewd/internal/store"
	"github.com/kiranshivaraju/interviewd/internal/store/storetest"
	"github.com/kiranshivaraju/interviewd/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type sent struct {
	userID uuid.UUID
	typ    models.NotificationType
}

type fakeSender struct {
	mu     sync.Mutex
	notes  []sent
	emails []string
}

func (f *fakeSender) Notify(_ context.Context, userID uuid.UUID, typ models.NotificationType, _ string, _ map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, sent{userID, typ})
}

func (f *fakeSender) SendEmail(_ context.Context, to, template string, _ map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, to+":"+template)
}

type fakeEnqueuer struct {
	ids []uuid.UUID
	err error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, id uuid.UUID) error {
	f.ids = append(f.ids, id)
	return f.err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

// --- fixtures ---

type fixture struct {
	store     *storetest.Store
	sender    *fakeSender
	enqueuer  *fakeEnqueuer
	clock     *clock
	machine   *lifecycle.Machine
	candidate models.Actor
	assigner  uuid.UUID
	questions []uuid.UUID
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     storetest.New(),
		sender:    &fakeSender{},
		enqueuer:  &fakeEnqueuer{},
		clock:     &clock{t: t0},
		candidate: models.Actor{ID: uuid.New(), Role: models.RoleCandidate, Email: "ada@example.com", Name: "Ada"},
		assigner:  uuid.New(),
	}
	f.machine = lifecycle.NewMachine(f.store, f.sender,
		lifecycle.WithClock(f.clock.now),
		lifecycle.WithEvaluationTrigger(f.enqueuer),
	)
	return f
}

// assign creates an interview with n questions and an assignment with a
// 30 minute deadline from t0.
func (f *fixture) assign(t *testing.T, n int) *models.Assignment {
	t.Helper()
	ctx := context.Background()
	iv := &models.Interview{ID: uuid.New(), EmployerID: f.assigner, Title: "Backend Engineer",
		Status: models.InterviewActive, TotalTimeMinutes: 30}
	require.NoError(t, f.store.CreateInterview(ctx, iv))
	for i := 0; i < n; i++ {
		q := &models.Question{ID: uuid.New(), InterviewID: iv.ID, Text: "Q", OrderIndex: i, MaxScore: 10}
		require.NoError(t, f.store.CreateQuestion(ctx, q))
		f.questions = append(f.questions, q.ID)
	}
	deadline := t0.Add(30 * time.Minute)
	a := &models.Assignment{ID: uuid.New(), InterviewID: iv.ID, CandidateID: f.candidate.ID, AssignerID: f.assigner,
		AssignedAt: t0, DeadlineAt: &deadline, Status: models.StatusAssigned, Result: models.ResultPending}
	require.NoError(t, f.store.CreateAssignment(ctx, a))
	return a
}

func (f *fixture) answers() []models.AnswerInput {
	out := make([]models.AnswerInput, 0, len(f.questions))
	for _, q := range f.questions {
		out = append(out, models.AnswerInput{QuestionID: q, Text: "answer", ElapsedSeconds: 60})
	}
	return out
}

func statuses(t *testing.T, st *storetest.Store, id uuid.UUID) []models.AssignmentStatus {
	t.Helper()
	events, err := st.ListAssignmentEvents(context.Background(), id)
	require.NoError(t, err)
	out := make([]models.AssignmentStatus, 0, len(events))
	for _, e := range events {
		out = append(out, e.ToStatus)
	}
	return out
}

// --- Start ---

func TestStart_Success(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)
	f.clock.advance(5 * time.Minute)

	out, err := f.machine.Start(context.Background(), a.ID, f.candidate)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, out.Status)
	require.NotNil(t, out.StartedAt)
	assert.Equal(t, t0.Add(5*time.Minute), *out.StartedAt)
}

func TestStart_WrongCaller(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)

	_, err := f.machine.Start(context.Background(), a.ID, models.Actor{ID: uuid.New()})
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestStart_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.machine.Start(context.Background(), uuid.New(), f.candidate)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStart_Twice(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)

	_, err := f.machine.Start(context.Background(), a.ID, f.candidate)
	require.NoError(t, err)
	_, err = f.machine.Start(context.Background(), a.ID, f.candidate)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestStart_AfterSubmitIsForbidden(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)

	_, err := f.machine.Submit(context.Background(), a.ID, f.candidate, f.answers())
	require.NoError(t, err)
	_, err = f.machine.Start(context.Background(), a.ID, f.candidate)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestStart_InProgressAfterDeadlineTimesOut(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)

	_, err := f.machine.Start(context.Background(), a.ID, f.candidate)
	require.NoError(t, err)
	f.clock.advance(31 * time.Minute)

	_, err = f.machine.Start(context.Background(), a.ID, f.candidate)
	assert.ErrorIs(t, err, models.ErrTimeoutExpired)

	got, err := f.store.GetAssignment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTimeout, got.Status)
	assert.Equal(t, []models.AssignmentStatus{
		models.StatusAssigned, models.StatusInProgress, models.StatusTimeout,
	}, statuses(t, f.store, a.ID))
	assert.Equal(t, []sent{{f.candidate.ID, models.NotifyAssignmentTimeout}}, f.sender.notes)
}

func TestStart_AfterDeadlineTimesOut(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)
	f.clock.advance(31 * time.Minute)

	_, err := f.machine.Start(context.Background(), a.ID, f.candidate)
	assert.ErrorIs(t, err, models.ErrTimeoutExpired)

	got, err := f.store.GetAssignment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTimeout, got.Status, "timeout must be committed even though the call failed")
	assert.Equal(t, []sent{{f.candidate.ID, models.NotifyAssignmentTimeout}}, f.sender.notes)
}

func TestStart_ExactlyAtDeadlineIsAllowed(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)
	f.clock.advance(30 * time.Minute)

	out, err := f.machine.Start(context.Background(), a.ID, f.candidate)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, out.Status)
}

// --- Submit ---

func TestSubmit_FromInProgress(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 3)
	ctx := context.Background()

	_, err := f.machine.Start(ctx, a.ID, f.candidate)
	require.NoError(t, err)
	f.clock.advance(20 * time.Minute)

	out, err := f.machine.Submit(ctx, a.ID, f.candidate, f.answers())
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, out.Status)
	require.NotNil(t, out.CompletedAt)
	assert.Equal(t, t0.Add(20*time.Minute), *out.CompletedAt)

	stored, err := f.store.ListAnswers(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	assert.Equal(t, []sent{{f.assigner, models.NotifyAssignmentSubmitted}}, f.sender.notes)
	assert.Equal(t, []string{"ada@example.com:" + models.TemplateInterviewSubmitted}, f.sender.emails)
	assert.Equal(t, []uuid.UUID{a.ID}, f.enqueuer.ids)
}

func TestSubmit_FromAssignedRecordsImplicitStart(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)

	_, err := f.machine.Submit(context.Background(), a.ID, f.candidate, f.answers())
	require.NoError(t, err)

	assert.Equal(t,
		[]models.AssignmentStatus{models.StatusAssigned, models.StatusInProgress, models.StatusSubmitted},
		statuses(t, f.store, a.ID))
}

func TestSubmit_ResubmissionIsConflict(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)
	ctx := context.Background()

	_, err := f.machine.Submit(ctx, a.ID, f.candidate, f.answers())
	require.NoError(t, err)

	changed := []models.AnswerInput{{QuestionID: f.questions[0], Text: "edited", ElapsedSeconds: 1}}
	_, err = f.machine.Submit(ctx, a.ID, f.candidate, changed)
	assert.ErrorIs(t, err, models.ErrConflict)

	stored, err := f.store.ListAnswers(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "answer", *stored[0].Text, "answers must not change after submission")
}

func TestSubmit_AfterDeadline(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 2)
	f.clock.advance(31 * time.Minute)

	_, err := f.machine.Submit(context.Background(), a.ID, f.candidate, f.answers())
	assert.ErrorIs(t, err, models.ErrTimeoutExpired)

	got, err := f.store.GetAssignment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTimeout, got.Status)

	stored, err := f.store.ListAnswers(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Empty(t, f.enqueuer.ids)
}

func TestSubmit_AfterTimeoutCannotResurrect(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)
	f.clock.advance(31 * time.Minute)
	_, err := f.machine.CheckAndApplyTimeout(context.Background(), a.ID)
	require.NoError(t, err)

	_, err = f.machine.Submit(context.Background(), a.ID, f.candidate, f.answers())
	assert.ErrorIs(t, err, models.ErrTimeoutExpired)
}

func TestSubmit_ForeignQuestionRollsBack(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 2)

	inputs := append(f.answers(), models.AnswerInput{QuestionID: uuid.New(), Text: "?"})
	_, err := f.machine.Submit(context.Background(), a.ID, f.candidate, inputs)
	assert.ErrorIs(t, err, models.ErrValidation)

	got, err := f.store.GetAssignment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, got.Status)
	stored, err := f.store.ListAnswers(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSubmit_DuplicateQuestion(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)

	inputs := append(f.answers(), f.answers()...)
	_, err := f.machine.Submit(context.Background(), a.ID, f.candidate, inputs)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSubmit_NegativeElapsed(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)

	inputs := []models.AnswerInput{{QuestionID: f.questions[0], Text: "x", ElapsedSeconds: -5}}
	_, err := f.machine.Submit(context.Background(), a.ID, f.candidate, inputs)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSubmit_WrongCaller(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)

	_, err := f.machine.Submit(context.Background(), a.ID, models.Actor{ID: f.assigner}, f.answers())
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestSubmit_EnqueueFailureDoesNotFailSubmit(t *testing.T) {
	f := newFixture(t)
	f.enqueuer.err = errors.New("queue full")
	a := f.assign(t, 1)

	out, err := f.machine.Submit(context.Background(), a.ID, f.candidate, f.answers())
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, out.Status)
}

func TestSubmit_NoAutoTrigger(t *testing.T) {
	f := newFixture(t)
	f.machine = lifecycle.NewMachine(f.store, f.sender, lifecycle.WithClock(f.clock.now))
	a := f.assign(t, 1)

	_, err := f.machine.Submit(context.Background(), a.ID, f.candidate, f.answers())
	require.NoError(t, err)
	assert.Empty(t, f.enqueuer.ids)
}

// --- CheckAndApplyTimeout ---

func TestCheckAndApplyTimeout_NotDue(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)

	out, err := f.machine.CheckAndApplyTimeout(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, out.Status)
	assert.Empty(t, f.sender.notes)
}

func TestCheckAndApplyTimeout_Overdue(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)
	_, err := f.machine.Start(context.Background(), a.ID, f.candidate)
	require.NoError(t, err)
	f.clock.advance(45 * time.Minute)

	out, err := f.machine.CheckAndApplyTimeout(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTimeout, out.Status)
	assert.Equal(t,
		[]models.AssignmentStatus{models.StatusAssigned, models.StatusInProgress, models.StatusTimeout},
		statuses(t, f.store, a.ID))
}

func TestCheckAndApplyTimeout_TerminalIsNoOp(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)
	_, err := f.machine.Submit(context.Background(), a.ID, f.candidate, f.answers())
	require.NoError(t, err)
	before, err := f.store.GetAssignment(context.Background(), a.ID)
	require.NoError(t, err)
	notes := len(f.sender.notes)
	events := len(statuses(t, f.store, a.ID))

	f.clock.advance(time.Hour)
	for i := 0; i < 2; i++ {
		out, err := f.machine.CheckAndApplyTimeout(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, before, out)
	}
	assert.Len(t, f.sender.notes, notes)
	assert.Len(t, statuses(t, f.store, a.ID), events)
}

func TestCheckAndApplyTimeout_Idempotent(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)
	f.clock.advance(time.Hour)

	_, err := f.machine.CheckAndApplyTimeout(context.Background(), a.ID)
	require.NoError(t, err)
	out, err := f.machine.CheckAndApplyTimeout(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTimeout, out.Status)
	assert.Len(t, f.sender.notes, 1)
}

func TestCheckAndApplyTimeout_LostRaceReturnsWinner(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)
	f.clock.advance(time.Hour)

	// A concurrent sweep times the row out between our read and our update.
	var once sync.Once
	f.store.OnTransition(func(id uuid.UUID) {
		once.Do(func() {
			_, err := f.store.TimeoutOverdue(context.Background(), f.clock.now(), 10)
			require.NoError(t, err)
		})
	})

	out, err := f.machine.CheckAndApplyTimeout(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTimeout, out.Status)
	assert.Empty(t, f.sender.notes, "the sweep that won owns the notification")
}

func TestCheckAndApplyTimeout_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.machine.CheckAndApplyTimeout(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// --- History ---

func TestHistory(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, 1)
	_, err := f.machine.Start(context.Background(), a.ID, f.candidate)
	require.NoError(t, err)

	events, err := f.machine.History(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Nil(t, events[0].FromStatus)
	assert.Equal(t, "created", events[0].Reason)
	assert.Equal(t, models.StatusAssigned, *events[1].FromStatus)
	assert.Equal(t, f.candidate.ID, *events[1].ActorID)

	_, err = f.machine.History(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// Every observed status sequence must be a prefix of one of the allowed chains.
func TestStatusSequencesAreAllowedPrefixes(t *testing.T) {
	allowed := [][]models.AssignmentStatus{
		{models.StatusAssigned, models.StatusInProgress, models.StatusSubmitted},
		{models.StatusAssigned, models.StatusInProgress, models.StatusTimeout},
		{models.StatusAssigned, models.StatusTimeout},
	}
	isPrefix := func(seq []models.AssignmentStatus) bool {
		for _, chain := range allowed {
			if len(seq) <= len(chain) && assert.ObjectsAreEqual(chain[:len(seq)], seq) {
				return true
			}
		}
		return false
	}

	scenarios := map[string]func(f *fixture, a *models.Assignment){
		"start-submit": func(f *fixture, a *models.Assignment) {
			_, _ = f.machine.Start(context.Background(), a.ID, f.candidate)
			_, _ = f.machine.Submit(context.Background(), a.ID, f.candidate, f.answers())
			_, _ = f.machine.Start(context.Background(), a.ID, f.candidate)
		},
		"start-late-submit": func(f *fixture, a *models.Assignment) {
			_, _ = f.machine.Start(context.Background(), a.ID, f.candidate)
			f.clock.advance(time.Hour)
			_, _ = f.machine.Submit(context.Background(), a.ID, f.candidate, f.answers())
			_, _ = f.machine.CheckAndApplyTimeout(context.Background(), a.ID)
		},
		"late-start": func(f *fixture, a *models.Assignment) {
			f.clock.advance(time.Hour)
			_, _ = f.machine.Start(context.Background(), a.ID, f.candidate)
			_, _ = f.machine.Submit(context.Background(), a.ID, f.candidate, f.answers())
		},
		"sweep-then-submit": func(f *fixture, a *models.Assignment) {
			f.clock.advance(time.Hour)
			_, _ = lifecycle.NewSweeper(f.machine, time.Minute, 10).SweepOnce(context.Background())
			_, _ = f.machine.Submit(context.Background(), a.ID, f.candidate, f.answers())
		},
	}
	for name, run := range scenarios {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			a := f.assign(t, 1)
			run(f, a)
			seq := statuses(t, f.store, a.ID)
			assert.True(t, isPrefix(seq), "unexpected sequence %v", seq)
		})
	}
}

var _ store.Store = (*storetest.Store)(nil)
