// Package gemini scores interviews with Google's genai SDK, against either
// the Gemini API or Vertex AI.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/kiranshivaraju/interviewd/internal/ai/llm"
	"github.com/kiranshivaraju/interviewd/internal/config"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

// Provider implements models.Scorer using a genai client.
type Provider struct {
	client *genai.Client
	model  string
	name   string
	rubric llm.Rubric
}

func NewProvider(ctx context.Context, cfg config.GeminiConfig, rubric llm.Rubric) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Provider{client: client, model: cfg.Model, name: "gemini", rubric: rubric}, nil
}

// NewVertexProvider authenticates with application default credentials.
func NewVertexProvider(ctx context.Context, cfg config.VertexConfig, rubric llm.Rubric) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("vertex client: %w", err)
	}
	return &Provider{client: client, model: cfg.Model, name: "vertex", rubric: rubric}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Score(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
	system, user := llm.BuildPrompt(p.rubric, req)

	temp := float32(0.2)
	resp, err := p.client.Models.GenerateContent(ctx, p.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: user}}}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
			Temperature:       &temp,
			ResponseMIMEType:  "application/json",
		})
	if err != nil {
		return models.ScoreResult{}, llm.ClassifyError(p.name, err)
	}

	text := responseText(resp)
	if text == "" {
		return models.ScoreResult{}, llm.ErrEmptyResponse
	}

	result := llm.Parse(text)
	result.Model = p.model
	return result, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

var _ models.Scorer = (*Provider)(nil)
