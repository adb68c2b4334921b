package llm

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/kiranshivaraju/interviewd/pkg/models"
)

type rawCriteria struct {
	Technical  *float64 `json:"technical"`
	Logic      *float64 `json:"logic"`
	Experience *float64 `json:"experience"`
	Clarity    *float64 `json:"clarity"`
	Relevance  *float64 `json:"relevance"`
}

type rawFeedback struct {
	Question string   `json:"question"`
	Feedback string   `json:"feedback"`
	Score    *float64 `json:"score"`
}

type rawScore struct {
	TotalScore       *float64      `json:"totalScore"`
	Recommendation   string        `json:"recommendation"`
	Criteria         *rawCriteria  `json:"criteria"`
	Summary          string        `json:"summary"`
	QuestionFeedback []rawFeedback `json:"questionFeedback"`
}

// Parse turns raw model output into a ScoreResult. Output that is not the
// expected JSON yields a degraded result carrying only a summary.
func Parse(raw string) models.ScoreResult {
	body := cleanJSON(raw)
	if body == "" {
		return degraded(raw)
	}

	var r rawScore
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return degraded(raw)
	}
	if r.Criteria == nil && r.TotalScore == nil {
		if r.Summary != "" {
			return degraded(r.Summary)
		}
		return degraded(raw)
	}

	var c rawCriteria
	if r.Criteria != nil {
		c = *r.Criteria
	}
	criteria := models.Criteria{
		Technical:  clampScore(c.Technical, models.MaxCriterionScore),
		Logic:      clampScore(c.Logic, models.MaxCriterionScore),
		Experience: clampScore(c.Experience, models.MaxCriterionScore),
		Clarity:    clampScore(c.Clarity, models.MaxCriterionScore),
		Relevance:  clampScore(c.Relevance, models.MaxCriterionScore),
	}

	total := criteria.Sum()
	if r.TotalScore != nil {
		total = clampScore(r.TotalScore, models.MaxTotalScore)
	}

	rec, ok := models.ParseRecommendation(r.Recommendation)
	if !ok {
		rec = models.Classify(total)
	}

	var feedback []models.QuestionFeedback
	for _, f := range r.QuestionFeedback {
		qf := models.QuestionFeedback{
			Question: truncateString(f.Question, maxAnswerBytes),
			Feedback: truncateString(f.Feedback, maxSummaryBytes),
		}
		if f.Score != nil {
			s := clampScore(f.Score, models.MaxCriterionScore)
			qf.Score = &s
		}
		feedback = append(feedback, qf)
	}

	return models.ScoreResult{
		TotalScore:       total,
		Recommendation:   rec,
		Criteria:         criteria,
		Summary:          truncateString(strings.TrimSpace(r.Summary), maxSummaryBytes),
		QuestionFeedback: feedback,
	}
}

func degraded(text string) models.ScoreResult {
	return models.ScoreResult{
		Summary:  truncateString(strings.TrimSpace(text), maxSummaryBytes),
		Degraded: true,
	}
}

// cleanJSON strips markdown fences and returns the outermost {...} span, or
// "" when there is none.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func clampScore(v *float64, maxScore int) int {
	if v == nil || math.IsNaN(*v) {
		return 0
	}
	n := int(math.Round(*v))
	if n < 0 {
		return 0
	}
	if n > maxScore {
		return maxScore
	}
	return n
}
