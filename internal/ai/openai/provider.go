// Package openai scores interviews through the OpenAI chat completions API
// and any server that speaks it, such as Ollama.
package openai

import (
	"context"
	"errors"
	"strings"

	oa "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/kiranshivaraju/interviewd/internal/ai/llm"
	"github.com/kiranshivaraju/interviewd/internal/config"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

const temperature = 0.2

// Provider implements models.Scorer using the openai-go client.
type Provider struct {
	client oa.Client
	model  string
	name   string
	rubric llm.Rubric
}

func NewProvider(cfg config.OpenAIConfig, rubric llm.Rubric) *Provider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{client: oa.NewClient(opts...), model: cfg.Model, name: "openai", rubric: rubric}
}

// NewOllamaProvider targets Ollama's OpenAI-compatible /v1 endpoint.
func NewOllamaProvider(cfg config.OllamaConfig, rubric llm.Rubric) *Provider {
	client := oa.NewClient(
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/v1/"),
		option.WithAPIKey("ollama"),
		option.WithMaxRetries(0),
	)
	return &Provider{client: client, model: cfg.Model, name: "ollama", rubric: rubric}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Score(ctx context.Context, req models.ScoreRequest) (models.ScoreResult, error) {
	system, user := llm.BuildPrompt(p.rubric, req)

	resp, err := p.client.Chat.Completions.New(ctx, oa.ChatCompletionNewParams{
		Model: oa.ChatModel(p.model),
		Messages: []oa.ChatCompletionMessageParamUnion{
			oa.SystemMessage(system),
			oa.UserMessage(user),
		},
		Temperature: oa.Float(temperature),
		ResponseFormat: oa.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		var apiErr *oa.Error
		if errors.As(err, &apiErr) {
			return models.ScoreResult{}, llm.ClassifyStatus(p.name, apiErr.StatusCode, err)
		}
		return models.ScoreResult{}, llm.ClassifyError(p.name, err)
	}
	if len(resp.Choices) == 0 {
		return models.ScoreResult{}, llm.ErrEmptyResponse
	}

	result := llm.Parse(resp.Choices[0].Message.Content)
	result.Model = resp.Model
	if result.Model == "" {
		result.Model = p.model
	}
	return result, nil
}

var _ models.Scorer = (*Provider)(nil)
