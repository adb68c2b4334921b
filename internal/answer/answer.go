// Package answer persists candidate answers, one row per (assignment,
// question).
package answer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

// Repository is the slice of store.Store the answer store needs.
type Repository interface {
	UpsertAnswer(ctx context.Context, a *models.Answer) (*models.Answer, error)
	ListAnswers(ctx context.Context, assignmentID uuid.UUID) ([]*models.Answer, error)
}

type Store struct {
	repo Repository
	now  func() time.Time
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Upsert creates or replaces the text and elapsed time of an answer. Score,
// grader and feedback of an already graded answer are kept.
func (s *Store) Upsert(ctx context.Context, assignmentID, questionID uuid.UUID, text *string, elapsedSeconds int) (*models.Answer, error) {
	if elapsedSeconds < 0 {
		return nil, fmt.Errorf("%w: elapsed_seconds must not be negative", models.ErrValidation)
	}

	now := s.now()
	a, err := s.repo.UpsertAnswer(ctx, &models.Answer{
		ID:             uuid.New(),
		AssignmentID:   assignmentID,
		QuestionID:     questionID,
		Text:           text,
		ElapsedSeconds: elapsedSeconds,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// List returns the answers in question order.
func (s *Store) List(ctx context.Context, assignmentID uuid.UUID) ([]*models.Answer, error) {
	answers, err := s.repo.ListAnswers(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if answers == nil {
		answers = []*models.Answer{}
	}
	return answers, nil
}
