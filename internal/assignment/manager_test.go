package assignment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/interviewd/internal/assignment"
	"github.com/kiranshivaraju/interviewd/internal/lifecycle"
	"github.com/kiranshivaraju/interviewd/internal/store"
	"github.com/kiranshivaraju/interviewd/internal/store/storetest"
	"github.com/kiranshivaraju/interviewd/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu     sync.Mutex
	types  []models.NotificationType
	emails []string
}

func (f *fakeSender) Notify(_ context.Context, _ uuid.UUID, typ models.NotificationType, _ string, _ map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, typ)
}

func (f *fakeSender) SendEmail(_ context.Context, to, template string, _ map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, to+":"+template)
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store    *storetest.Store
	sender   *fakeSender
	now      time.Time
	manager  *assignment.Manager
	employer uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: storetest.New(), sender: &fakeSender{}, now: t0, employer: uuid.New()}
	clock := func() time.Time { return f.now }
	machine := lifecycle.NewMachine(f.store, f.sender, lifecycle.WithClock(clock))
	f.manager = assignment.NewManager(f.store, machine, f.sender).WithClock(clock)
	return f
}

func (f *fixture) interview(t *testing.T, mutate func(*models.Interview)) *models.Interview {
	t.Helper()
	iv := &models.Interview{ID: uuid.New(), EmployerID: f.employer, Title: "Backend Engineer",
		Status: models.InterviewActive, TotalTimeMinutes: 30, CreatedAt: t0, UpdatedAt: t0}
	if mutate != nil {
		mutate(iv)
	}
	require.NoError(t, f.store.CreateInterview(context.Background(), iv))
	return iv
}

func invite() assignment.Source {
	return assignment.Source{InvitationEmail: "ada@example.com", CandidateName: "Ada"}
}

func TestCreateAssignment_Deadline(t *testing.T) {
	f := newFixture(t)
	iv := f.interview(t, nil)

	a, err := f.manager.CreateAssignment(context.Background(), iv.ID, uuid.New(), invite(), f.employer)
	require.NoError(t, err)

	assert.Equal(t, models.StatusAssigned, a.Status)
	assert.Equal(t, models.ResultPending, a.Result)
	assert.Equal(t, t0, a.AssignedAt)
	require.NotNil(t, a.DeadlineAt)
	assert.Equal(t, t0.Add(30*time.Minute), *a.DeadlineAt)
	require.NotNil(t, a.InvitationEmail)
	assert.Equal(t, "ada@example.com", *a.InvitationEmail)
	assert.Nil(t, a.ApplicationID)

	assert.Equal(t, []models.NotificationType{models.NotifyAssignmentCreated}, f.sender.types)
	assert.Equal(t, []string{"ada@example.com:" + models.TemplateInterviewAssigned}, f.sender.emails)
}

func TestCreateAssignment_CutoffDoesNotShortenDeadline(t *testing.T) {
	f := newFixture(t)
	cutoff := t0.Add(10 * time.Minute)
	iv := f.interview(t, func(iv *models.Interview) { iv.CutoffAt = &cutoff })

	a, err := f.manager.CreateAssignment(context.Background(), iv.ID, uuid.New(), invite(), f.employer)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(30*time.Minute), *a.DeadlineAt)
}

func TestCreateAssignment_FromApplication(t *testing.T) {
	f := newFixture(t)
	iv := f.interview(t, nil)
	appID := uuid.New()

	a, err := f.manager.CreateAssignment(context.Background(), iv.ID, uuid.New(),
		assignment.Source{ApplicationID: &appID, CandidateEmail: "grace@example.com"}, f.employer)
	require.NoError(t, err)
	assert.Equal(t, appID, *a.ApplicationID)
	assert.Nil(t, a.InvitationEmail)
	assert.Equal(t, []string{"grace@example.com:" + models.TemplateInterviewAssigned}, f.sender.emails)
}

func TestCreateAssignment_Rejections(t *testing.T) {
	cutoff := t0.Add(-time.Minute)
	tests := []struct {
		name    string
		mutate  func(*models.Interview)
		source  assignment.Source
		wantErr error
	}{
		{"draft interview", func(iv *models.Interview) { iv.Status = models.InterviewDraft }, invite(), models.ErrForbidden},
		{"inactive interview", func(iv *models.Interview) { iv.Status = models.InterviewInactive }, invite(), models.ErrForbidden},
		{"past cutoff", func(iv *models.Interview) { iv.CutoffAt = &cutoff }, invite(), models.ErrForbidden},
		{"no source", nil, assignment.Source{}, models.ErrValidation},
		{"bad email", nil, assignment.Source{InvitationEmail: "not-an-email"}, models.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			iv := f.interview(t, tt.mutate)

			_, err := f.manager.CreateAssignment(context.Background(), iv.ID, uuid.New(), tt.source, f.employer)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.sender.types)
		})
	}
}

func TestCreateAssignment_CutoffIsExclusive(t *testing.T) {
	f := newFixture(t)
	cutoff := t0
	iv := f.interview(t, func(iv *models.Interview) { iv.CutoffAt = &cutoff })

	_, err := f.manager.CreateAssignment(context.Background(), iv.ID, uuid.New(), invite(), f.employer)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestCreateAssignment_UnknownInterview(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.CreateAssignment(context.Background(), uuid.New(), uuid.New(), invite(), f.employer)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateAssignment_NotOwner(t *testing.T) {
	f := newFixture(t)
	iv := f.interview(t, nil)
	_, err := f.manager.CreateAssignment(context.Background(), iv.ID, uuid.New(), invite(), uuid.New())
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestCreateAssignment_DuplicateIsConflict(t *testing.T) {
	f := newFixture(t)
	iv := f.interview(t, nil)
	candidate := uuid.New()

	_, err := f.manager.CreateAssignment(context.Background(), iv.ID, candidate, invite(), f.employer)
	require.NoError(t, err)
	_, err = f.manager.CreateAssignment(context.Background(), iv.ID, candidate, invite(), f.employer)
	assert.ErrorIs(t, err, models.ErrConflict)

	_, total, err := f.store.ListAssignments(context.Background(), store.AssignmentFilter{InterviewID: iv.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestGet_AppliesLazyTimeout(t *testing.T) {
	f := newFixture(t)
	iv := f.interview(t, nil)
	candidate := models.Actor{ID: uuid.New(), Role: models.RoleCandidate}
	a, err := f.manager.CreateAssignment(context.Background(), iv.ID, candidate.ID, invite(), f.employer)
	require.NoError(t, err)

	f.now = t0.Add(31 * time.Minute)
	got, err := f.manager.Get(context.Background(), a.ID, candidate)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTimeout, got.Status)
}

func TestGet_Authorization(t *testing.T) {
	f := newFixture(t)
	iv := f.interview(t, nil)
	candidate := uuid.New()
	a, err := f.manager.CreateAssignment(context.Background(), iv.ID, candidate, invite(), f.employer)
	require.NoError(t, err)

	_, err = f.manager.Get(context.Background(), a.ID, models.Actor{ID: candidate})
	assert.NoError(t, err)
	_, err = f.manager.Get(context.Background(), a.ID, models.Actor{ID: f.employer})
	assert.NoError(t, err)
	_, err = f.manager.Get(context.Background(), a.ID, models.Actor{ID: uuid.New()})
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = f.manager.Get(context.Background(), uuid.New(), models.Actor{ID: candidate})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListForInterview(t *testing.T) {
	f := newFixture(t)
	iv := f.interview(t, nil)
	for i := 0; i < 3; i++ {
		f.now = t0.Add(time.Duration(i) * time.Minute)
		_, err := f.manager.CreateAssignment(context.Background(), iv.ID, uuid.New(), invite(), f.employer)
		require.NoError(t, err)
	}
	owner := models.Actor{ID: f.employer, Role: models.RoleEmployer}

	page, total, err := f.manager.ListForInterview(context.Background(), iv.ID, owner, store.AssignmentFilter{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 2)
	assert.True(t, page[0].AssignedAt.After(page[1].AssignedAt), "newest first")

	_, _, err = f.manager.ListForInterview(context.Background(), iv.ID, models.Actor{ID: uuid.New()}, store.AssignmentFilter{})
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, _, err = f.manager.ListForInterview(context.Background(), iv.ID, owner, store.AssignmentFilter{Status: "archived"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, _, err = f.manager.ListForInterview(context.Background(), uuid.New(), owner, store.AssignmentFilter{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}
