package mock

import (
	"context"

	"github.com/kiranshivaraju/interviewd/internal/ai/llm"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

// MockProvider satisfies models.Scorer for testing and for AI_PROVIDER=mock.
type MockProvider struct {
	Name_     string
	ScoreFunc func(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error)
	Calls     int
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Score(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
	m.Calls++
	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, req)
	}
	return models.ScoreResult{}, nil
}

// NewMockProvider returns a MockProvider that grades every interview the same
// way: 42 of 50, STRONG_FIT.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		ScoreFunc: func(_ context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
			criteria := models.Criteria{Technical: 9, Logic: 8, Experience: 8, Clarity: 9, Relevance: 8}
			feedback := make([]models.QuestionFeedback, 0, len(req.Pairs))
			for _, p := range req.Pairs {
				feedback = append(feedback, models.QuestionFeedback{
					Question: p.Question,
					Feedback: "Clear and relevant answer",
				})
			}
			return models.ScoreResult{
				TotalScore:       criteria.Sum(),
				Recommendation:   models.Classify(criteria.Sum()),
				Criteria:         criteria,
				Summary:          "Mock evaluation for " + req.PositionTitle,
				QuestionFeedback: feedback,
				Model:            "mock-v1",
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		ScoreFunc: func(_ context.Context, _ models.ScoreRequest) (models.ScoreResult, error) {
			return models.ScoreResult{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		ScoreFunc: func(ctx context.Context, _ models.ScoreRequest) (models.ScoreResult, error) {
			<-ctx.Done()
			return models.ScoreResult{}, llm.ErrInferenceTimeout
		},
	}
}

// NewDegradedProvider returns a MockProvider that replies with raw and runs it
// through the shared parser, the way a real provider would.
func NewDegradedProvider(raw string) *MockProvider {
	return &MockProvider{
		Name_: "mock-degraded",
		ScoreFunc: func(_ context.Context, _ models.ScoreRequest) (models.ScoreResult, error) {
			result := llm.Parse(raw)
			result.Model = "mock-v1"
			return result, nil
		},
	}
}

// Compile-time check that MockProvider implements Scorer.
var _ models.Scorer = (*MockProvider)(nil)
