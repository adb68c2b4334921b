// Package ai builds the configured models.Scorer and wraps it with a
// concurrency limit and instrumentation.
package ai

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/interviewd/internal/ai/gemini"
	"github.com/kiranshivaraju/interviewd/internal/ai/llm"
	"github.com/kiranshivaraju/interviewd/internal/ai/mock"
	"github.com/kiranshivaraju/interviewd/internal/ai/openai"
	"github.com/kiranshivaraju/interviewd/internal/config"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

// NewScorer constructs the scorer named by cfg.Provider.
// Called once at server startup.
func NewScorer(ctx context.Context, cfg config.AIConfig) (models.Scorer, error) {
	rubric := llm.DefaultRubric()
	if cfg.RubricFile != "" {
		r, err := llm.LoadRubric(cfg.RubricFile)
		if err != nil {
			return nil, err
		}
		rubric = r
	}

	var scorer models.Scorer
	switch cfg.Provider {
	case "openai":
		scorer = openai.NewProvider(cfg.OpenAI, rubric)
	case "ollama":
		scorer = openai.NewOllamaProvider(cfg.Ollama, rubric)
	case "gemini":
		p, err := gemini.NewProvider(ctx, cfg.Gemini, rubric)
		if err != nil {
			return nil, err
		}
		scorer = p
	case "vertex":
		p, err := gemini.NewVertexProvider(ctx, cfg.Vertex, rubric)
		if err != nil {
			return nil, err
		}
		scorer = p
	case "mock":
		scorer = mock.NewMockProvider()
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of openai, ollama, gemini, vertex, mock", cfg.Provider)
	}

	return Instrument(Limit(scorer, cfg.MaxConcurrent)), nil
}
