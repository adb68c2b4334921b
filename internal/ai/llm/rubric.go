package llm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CriterionNames lists the rubric dimensions in prompt order.
var CriterionNames = []string{"technical", "logic", "experience", "clarity", "relevance"}

// Rubric customizes the scorer's instructions. Loaded from YAML:
//
//	instructions: |
//	  You are a senior interviewer...
//	criteria:
//	  technical: depth and correctness of technical content
type Rubric struct {
	Instructions string            `yaml:"instructions"`
	Criteria     map[string]string `yaml:"criteria"`
}

func DefaultRubric() Rubric {
	return Rubric{
		Instructions: "You are an experienced technical interviewer. Evaluate the candidate's written answers " +
			"to an interview for the position below. Be fair, specific and concise.",
		Criteria: map[string]string{
			"technical":  "depth and correctness of technical knowledge",
			"logic":      "quality of reasoning and problem solving",
			"experience": "evidence of relevant practical experience",
			"clarity":    "clarity and structure of communication",
			"relevance":  "how directly the answers address the questions and the role",
		},
	}
}

// LoadRubric reads a YAML rubric from path. Missing fields fall back to the
// defaults; unknown criteria are rejected.
func LoadRubric(path string) (Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rubric{}, fmt.Errorf("read rubric: %w", err)
	}

	var r Rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rubric{}, fmt.Errorf("parse rubric: %w", err)
	}

	def := DefaultRubric()
	if r.Instructions == "" {
		r.Instructions = def.Instructions
	}
	for name := range r.Criteria {
		if _, ok := def.Criteria[name]; !ok {
			return Rubric{}, fmt.Errorf("rubric: unknown criterion %q", name)
		}
	}
	if r.Criteria == nil {
		r.Criteria = map[string]string{}
	}
	for name, desc := range def.Criteria {
		if r.Criteria[name] == "" {
			r.Criteria[name] = desc
		}
	}
	return r, nil
}
