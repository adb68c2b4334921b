package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Recommendation is the hiring signal derived from a 0-50 total score.
type Recommendation string

const (
	RecommendationStrongFit Recommendation = "STRONG_FIT"
	RecommendationPotential Recommendation = "POTENTIAL"
	RecommendationNotFit    Recommendation = "NOT_FIT"
)

const (
	MaxCriterionScore = 10
	MaxTotalScore     = 5 * MaxCriterionScore

	strongFitThreshold = 40
	potentialThreshold = 25
)

// Classify maps a total on the 0-50 scale to a recommendation.
func Classify(total int) Recommendation {
	switch {
	case total >= strongFitThreshold:
		return RecommendationStrongFit
	case total >= potentialThreshold:
		return RecommendationPotential
	default:
		return RecommendationNotFit
	}
}

// ParseRecommendation accepts the enum spelled loosely ("strong fit",
// "Strong-Fit") and reports whether it matched.
func ParseRecommendation(s string) (Recommendation, bool) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch Recommendation(norm) {
	case RecommendationStrongFit, RecommendationPotential, RecommendationNotFit:
		return Recommendation(norm), true
	}
	return "", false
}

// Criteria is the five-dimension rubric, each scored 0-10.
type Criteria struct {
	Technical  int `json:"technical"`
	Logic      int `json:"logic"`
	Experience int `json:"experience"`
	Clarity    int `json:"clarity"`
	Relevance  int `json:"relevance"`
}

// Sum returns the total of all five dimensions.
func (c Criteria) Sum() int {
	return c.Technical + c.Logic + c.Experience + c.Clarity + c.Relevance
}

// QuestionFeedback is optional per-question commentary from the scorer.
type QuestionFeedback struct {
	Question string `json:"question"`
	Feedback string `json:"feedback"`
	Score    *int   `json:"score,omitempty"`
}

// AiEvaluation is the stored, immutable result of scoring one assignment.
// Degraded is set when the scorer's output could not be parsed and only the
// summary carries information.
type AiEvaluation struct {
	ID               uuid.UUID          `db:"id"                json:"id"`
	AssignmentID     uuid.UUID          `db:"assignment_id"     json:"assignment_id"`
	TotalScore       int                `db:"total_score"       json:"total_score"`
	Recommendation   Recommendation     `db:"recommendation"    json:"recommendation,omitempty"`
	Criteria         Criteria           `db:"criteria"          json:"criteria"`
	Summary          string             `db:"summary"           json:"summary"`
	Provider         string             `db:"provider"          json:"provider"`
	Model            string             `db:"model"             json:"model"`
	QuestionFeedback []QuestionFeedback `db:"question_feedback" json:"question_feedback,omitempty"`
	Degraded         bool               `db:"degraded"          json:"degraded"`
	CreatedAt        time.Time          `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time          `db:"updated_at"        json:"updated_at"`
}
