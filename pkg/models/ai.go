package models

import "context"

// Scorer is the boundary to an external language-model judge. Never call a
// specific provider directly; inject this interface.
type Scorer interface {
	// Score evaluates a completed interview. Transport failures are returned
	// wrapping ErrScoringUnavailable; unparseable output is not an error and
	// comes back as a degraded result.
	Score(ctx context.Context, req ScoreRequest) (ScoreResult, error)
	// Name returns the provider identifier (e.g., "openai", "gemini").
	Name() string
}

// ScoreRequest is the input to a scoring call.
type ScoreRequest struct {
	PositionTitle string
	Pairs         []QAPair // ordered by question order_index
}

// QAPair is one question and the candidate's answer to it.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ScoreResult is a scorer's verdict before persistence.
type ScoreResult struct {
	TotalScore       int
	Recommendation   Recommendation
	Criteria         Criteria
	Summary          string
	QuestionFeedback []QuestionFeedback
	Model            string
	Degraded         bool
}
