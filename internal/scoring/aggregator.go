// Package scoring grades answers, runs the one-off AI evaluation and keeps the
// assignment's authoritative score in line with both.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/interviewd/internal/cache"
	"github.com/kiranshivaraju/interviewd/internal/metrics"
	"github.com/kiranshivaraju/interviewd/internal/notify"
	"github.com/kiranshivaraju/interviewd/internal/store"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

// Locker serializes evaluations of one assignment across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Unlock(ctx context.Context, key, token string) error
}

type Config struct {
	InferenceTimeout time.Duration
	LockTTL          time.Duration
}

type Aggregator struct {
	store  store.Store
	scorer models.Scorer
	locker Locker
	sender notify.Sender
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// NewAggregator wires the aggregator. locker may be nil, in which case the
// unique evaluation row is the only guard against duplicate scorer calls.
func NewAggregator(st store.Store, scorer models.Scorer, locker Locker, sender notify.Sender, cfg Config) *Aggregator {
	if cfg.InferenceTimeout <= 0 {
		cfg.InferenceTimeout = 60 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &Aggregator{
		store:  st,
		scorer: scorer,
		locker: locker,
		sender: sender,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.With("component", "scoring"),
	}
}

// GradeAnswer records a manual grade and recomputes the manual aggregate.
// Only the interview owner or the assigner may grade.
func (g *Aggregator) GradeAnswer(ctx context.Context, answerID uuid.UUID, grader models.Actor, score int, feedback *string) (*models.Answer, error) {
	var graded *models.Answer
	err := g.store.WithTx(ctx, func(tx store.Store) error {
		ans, err := tx.GetAnswer(ctx, answerID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: answer %s", models.ErrNotFound, answerID)
		}
		if err != nil {
			return err
		}

		a, err := tx.GetAssignmentForUpdate(ctx, ans.AssignmentID)
		if err != nil {
			return mapNotFound(err, "assignment")
		}
		if err := authorizeReviewer(ctx, tx, a, grader); err != nil {
			return err
		}

		q, err := tx.GetQuestion(ctx, ans.QuestionID)
		if err != nil {
			return mapNotFound(err, "question")
		}
		if score < 0 || score > q.MaxScore {
			return fmt.Errorf("%w: score must be between 0 and %d", models.ErrValidation, q.MaxScore)
		}

		graded, err = tx.GradeAnswer(ctx, answerID, store.Grade{
			Score:    score,
			Feedback: feedback,
			GraderID: grader.ID,
			GradedAt: g.now(),
		})
		if err != nil {
			return mapNotFound(err, "answer")
		}
		return reconcile(ctx, tx, a.ID)
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("answer graded", "answer_id", answerID, "score", score)
	return graded, nil
}

// RequestAiEvaluation scores a submitted assignment once. An existing
// evaluation is returned unchanged without calling the scorer; created
// reports whether this call produced it.
func (g *Aggregator) RequestAiEvaluation(ctx context.Context, assignmentID uuid.UUID) (eval *models.AiEvaluation, created bool, err error) {
	a, err := g.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, false, mapNotFound(err, "assignment")
	}
	if a.Status != models.StatusSubmitted {
		return nil, false, fmt.Errorf("%w: assignment is %s, not submitted", models.ErrForbidden, a.Status)
	}

	if existing, err := g.existing(ctx, assignmentID); existing != nil || err != nil {
		return existing, false, err
	}

	if g.locker != nil {
		key := cache.EvaluationLockKey(assignmentID)
		token, ok, err := g.locker.TryLock(ctx, key, g.cfg.LockTTL)
		switch {
		case err != nil:
			// Redis down: the unique row still prevents a second stored result.
			g.logger.Warn("evaluation lock unavailable", "assignment_id", assignmentID, "error", err)
		case !ok:
			return nil, false, fmt.Errorf("%w: assignment %s", models.ErrEvaluationInProgress, assignmentID)
		default:
			defer func() {
				if err := g.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
					g.logger.Warn("failed to release evaluation lock", "assignment_id", assignmentID, "error", err)
				}
			}()
			if existing, err := g.existing(ctx, assignmentID); existing != nil || err != nil {
				return existing, false, err
			}
		}
	}

	req, err := g.buildRequest(ctx, a)
	if err != nil {
		return nil, false, err
	}

	scoreCtx, cancel := context.WithTimeout(ctx, g.cfg.InferenceTimeout)
	defer cancel()

	provider := g.scorer.Name()
	result, err := g.scorer.Score(scoreCtx, req)
	if err != nil {
		metrics.Evaluations.WithLabelValues(provider, "unavailable").Inc()
		g.logger.Error("scorer failed", "assignment_id", assignmentID, "provider", provider, "error", err)
		if !errors.Is(err, models.ErrScoringUnavailable) {
			err = fmt.Errorf("%w: %s: %v", models.ErrScoringUnavailable, provider, err)
		}
		return nil, false, err
	}

	now := g.now()
	candidate := &models.AiEvaluation{
		ID:               uuid.New(),
		AssignmentID:     assignmentID,
		TotalScore:       result.TotalScore,
		Recommendation:   result.Recommendation,
		Criteria:         result.Criteria,
		Summary:          result.Summary,
		Provider:         provider,
		Model:            result.Model,
		QuestionFeedback: result.QuestionFeedback,
		Degraded:         result.Degraded,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = g.store.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.GetAssignmentForUpdate(ctx, assignmentID); err != nil {
			return mapNotFound(err, "assignment")
		}
		eval, created, err = tx.CreateAiEvaluation(ctx, candidate)
		if err != nil || !created {
			return err
		}
		return reconcile(ctx, tx, assignmentID)
	})
	if err != nil {
		return nil, false, err
	}
	if !created {
		return eval, false, nil
	}

	outcome := "succeeded"
	if eval.Degraded {
		outcome = "degraded"
	}
	metrics.Evaluations.WithLabelValues(provider, outcome).Inc()
	g.logger.Info("ai evaluation stored",
		"assignment_id", assignmentID,
		"provider", provider,
		"total_score", eval.TotalScore,
		"degraded", eval.Degraded,
	)

	g.sender.Notify(ctx, a.AssignerID, models.NotifyEvaluationCompleted,
		"The AI evaluation of a submitted interview is ready",
		map[string]any{"assignment_id": assignmentID, "total_score": eval.TotalScore, "recommendation": eval.Recommendation})
	return eval, true, nil
}

// CheckEvaluable authorizes actor as a reviewer of a submitted assignment and
// returns its evaluation if one already exists.
func (g *Aggregator) CheckEvaluable(ctx context.Context, assignmentID uuid.UUID, actor models.Actor) (*models.AiEvaluation, error) {
	a, err := g.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, mapNotFound(err, "assignment")
	}
	if err := authorizeReviewer(ctx, g.store, a, actor); err != nil {
		return nil, err
	}
	if a.Status != models.StatusSubmitted {
		return nil, fmt.Errorf("%w: assignment is %s, not submitted", models.ErrForbidden, a.Status)
	}
	return g.existing(ctx, assignmentID)
}

// GetEvaluation returns the stored evaluation to a reviewer.
func (g *Aggregator) GetEvaluation(ctx context.Context, assignmentID uuid.UUID, actor models.Actor) (*models.AiEvaluation, error) {
	a, err := g.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, mapNotFound(err, "assignment")
	}
	if err := authorizeReviewer(ctx, g.store, a, actor); err != nil {
		return nil, err
	}
	eval, err := g.store.GetAiEvaluation(ctx, assignmentID)
	if err != nil {
		return nil, mapNotFound(err, "evaluation")
	}
	return eval, nil
}

func (g *Aggregator) existing(ctx context.Context, assignmentID uuid.UUID) (*models.AiEvaluation, error) {
	eval, err := g.store.GetAiEvaluation(ctx, assignmentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return eval, err
}

// buildRequest pairs every question, in order, with the candidate's answer.
// Unanswered questions are sent with an empty answer.
func (g *Aggregator) buildRequest(ctx context.Context, a *models.Assignment) (models.ScoreRequest, error) {
	iv, err := g.store.GetInterview(ctx, a.InterviewID)
	if err != nil {
		return models.ScoreRequest{}, mapNotFound(err, "interview")
	}
	questions, err := g.store.ListQuestions(ctx, a.InterviewID)
	if err != nil {
		return models.ScoreRequest{}, err
	}
	answers, err := g.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return models.ScoreRequest{}, err
	}

	text := make(map[uuid.UUID]string, len(answers))
	for _, ans := range answers {
		if ans.Text != nil {
			text[ans.QuestionID] = *ans.Text
		}
	}

	req := models.ScoreRequest{PositionTitle: iv.Title, Pairs: make([]models.QAPair, 0, len(questions))}
	for _, q := range questions {
		req.Pairs = append(req.Pairs, models.QAPair{Question: q.Text, Answer: text[q.ID]})
	}
	return req, nil
}

// reconcile recomputes the assignment's scoring columns. A usable AI
// evaluation decides total_score and result; otherwise the manual aggregate
// does, scaled to the 0-50 range for classification. manual_score always
// holds the raw manual sum.
func reconcile(ctx context.Context, tx store.Store, assignmentID uuid.UUID) error {
	agg, err := tx.ManualAggregate(ctx, assignmentID)
	if err != nil {
		return err
	}
	eval, err := tx.GetAiEvaluation(ctx, assignmentID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	update := store.ScoreUpdate{Result: models.ResultPending}
	if agg.Graded > 0 {
		manual := agg.Sum
		update.ManualScore = &manual
	}

	switch {
	case eval != nil && !eval.Degraded:
		total := eval.TotalScore
		update.TotalScore = &total
		update.Result = models.AssignmentResult(models.Classify(total))
	case agg.Graded > 0:
		total := agg.Sum
		update.TotalScore = &total
		update.Result = models.AssignmentResult(models.Classify(ScaleManual(agg.Sum, agg.MaxPossible)))
	}
	return tx.UpdateAssignmentScores(ctx, assignmentID, update)
}

// ScaleManual maps a manual sum onto the 0-50 range used by Classify.
func ScaleManual(sum, maxPossible int) int {
	if maxPossible <= 0 {
		return sum
	}
	scaled := int(math.Round(float64(sum) * float64(models.MaxTotalScore) / float64(maxPossible)))
	if scaled > models.MaxTotalScore {
		return models.MaxTotalScore
	}
	return scaled
}

func authorizeReviewer(ctx context.Context, st store.Store, a *models.Assignment, actor models.Actor) error {
	if actor.ID == a.AssignerID {
		return nil
	}
	iv, err := st.GetInterview(ctx, a.InterviewID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if iv != nil && iv.EmployerID == actor.ID {
		return nil
	}
	return fmt.Errorf("%w: only the interview owner or assigner may review", models.ErrForbidden)
}

func mapNotFound(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", models.ErrNotFound, what)
	}
	return err
}
