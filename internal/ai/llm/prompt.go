package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/interviewd/pkg/models"
)

const (
	maxAnswerBytes  = 4000
	maxSummaryBytes = 2000
)

const responseContract = `Respond with a single JSON object and nothing else, using exactly this shape:
{
  "totalScore": <integer 0-50>,
  "recommendation": "STRONG_FIT" | "POTENTIAL" | "NOT_FIT",
  "criteria": {"technical": <0-10>, "logic": <0-10>, "experience": <0-10>, "clarity": <0-10>, "relevance": <0-10>},
  "summary": "<two or three sentences>",
  "questionFeedback": [{"question": "<question text>", "feedback": "<one sentence>", "score": <0-10>}]
}
totalScore is the sum of the five criteria. Use STRONG_FIT for 40 or more, POTENTIAL for 25 to 39, NOT_FIT below 25.`

// BuildPrompt renders the system and user messages for req.
func BuildPrompt(r Rubric, req models.ScoreRequest) (system, user string) {
	var sb strings.Builder
	sb.WriteString(r.Instructions)
	sb.WriteString("\n\nScore each criterion from 0 to 10:\n")
	for _, name := range CriterionNames {
		fmt.Fprintf(&sb, "- %s: %s\n", name, r.Criteria[name])
	}
	sb.WriteString("\n")
	sb.WriteString(responseContract)
	system = sb.String()

	var ub strings.Builder
	fmt.Fprintf(&ub, "Position: %s\n", req.PositionTitle)
	for i, p := range req.Pairs {
		answer := strings.TrimSpace(p.Answer)
		if answer == "" {
			answer = "(no answer)"
		}
		fmt.Fprintf(&ub, "\nQuestion %d: %s\nAnswer %d: %s\n", i+1, p.Question, i+1, truncateString(answer, maxAnswerBytes))
	}
	user = ub.String()
	return system, user
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
