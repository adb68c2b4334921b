package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/interviewd/internal/lifecycle"
	"github.com/kiranshivaraju/interviewd/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) assignMany(t *testing.T, n int) []*models.Assignment {
	t.Helper()
	ctx := context.Background()
	iv := &models.Interview{ID: uuid.New(), EmployerID: f.assigner, Status: models.InterviewActive, TotalTimeMinutes: 30}
	require.NoError(t, f.store.CreateInterview(ctx, iv))

	out := make([]*models.Assignment, 0, n)
	for i := 0; i < n; i++ {
		deadline := t0.Add(30 * time.Minute)
		a := &models.Assignment{ID: uuid.New(), InterviewID: iv.ID, CandidateID: uuid.New(), AssignerID: f.assigner,
			AssignedAt: t0, DeadlineAt: &deadline, Status: models.StatusAssigned, Result: models.ResultPending}
		require.NoError(t, f.store.CreateAssignment(ctx, a))
		out = append(out, a)
	}
	return out
}

func TestSweepOnce_ConvertsAllOverdueAcrossBatches(t *testing.T) {
	f := newFixture(t)
	assignments := f.assignMany(t, 7)
	f.clock.advance(31 * time.Minute)

	n, err := lifecycle.NewSweeper(f.machine, time.Minute, 3).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	for _, a := range assignments {
		got, err := f.store.GetAssignment(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusTimeout, got.Status)
	}
	assert.Len(t, f.sender.notes, 7)
}

func TestSweepOnce_LeavesOnTimeAndTerminalAlone(t *testing.T) {
	f := newFixture(t)
	submitted := f.assign(t, 1)
	_, err := f.machine.Submit(context.Background(), submitted.ID, f.candidate, f.answers())
	require.NoError(t, err)
	f.assignMany(t, 2)

	n, err := lifecycle.NewSweeper(f.machine, time.Minute, 10).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "nothing is due yet")

	f.clock.advance(time.Hour)
	n, err = lifecycle.NewSweeper(f.machine, time.Minute, 10).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := f.store.GetAssignment(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, got.Status)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.assignMany(t, 1)
	f.clock.advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lifecycle.NewSweeper(f.machine, 10*time.Millisecond, 10).Run(ctx) }()

	assert.Eventually(t, func() bool {
		f.sender.mu.Lock()
		defer f.sender.mu.Unlock()
		return len(f.sender.notes) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
