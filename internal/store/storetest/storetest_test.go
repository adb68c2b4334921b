package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/interviewd/internal/store"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

var _ store.Store = (*Store)(nil)

func newAssignment(t *testing.T, s *Store) *models.Assignment {
	t.Helper()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	a := &models.Assignment{
		ID:          uuid.New(),
		InterviewID: uuid.New(),
		CandidateID: uuid.New(),
		AssignerID:  uuid.New(),
		AssignedAt:  now,
		Status:      models.StatusAssigned,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.CreateAssignment(context.Background(), a))
	return a
}

func TestTransition_StaleFromStatus(t *testing.T) {
	s := New()
	a := newAssignment(t, s)
	ctx := context.Background()

	_, err := s.TransitionAssignment(ctx, a.ID, models.StatusAssigned, models.StatusInProgress, store.At(a.AssignedAt))
	require.NoError(t, err)
	_, err = s.TransitionAssignment(ctx, a.ID, models.StatusAssigned, models.StatusInProgress, store.At(a.AssignedAt))
	assert.ErrorIs(t, err, store.ErrStaleStatus)

	events, err := s.ListAssignmentEvents(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := New()
	a := newAssignment(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.TransitionAssignment(ctx, a.ID, models.StatusAssigned, models.StatusTimeout, store.At(a.AssignedAt)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, got.Status)
	events, err := s.ListAssignmentEvents(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestCreateAssignment_Duplicate(t *testing.T) {
	s := New()
	a := newAssignment(t, s)

	dup := *a
	dup.ID = uuid.New()
	assert.ErrorIs(t, s.CreateAssignment(context.Background(), &dup), store.ErrDuplicateKey)
}
