package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/interviewd/internal/ai/llm"
	"github.com/kiranshivaraju/interviewd/internal/config"
	"github.com/kiranshivaraju/interviewd/pkg/models"
)

const verdict = `{"totalScore": 41, "recommendation": "STRONG_FIT",
	"criteria": {"technical": 9, "logic": 8, "experience": 8, "clarity": 8, "relevance": 8},
	"summary": "Clear and specific."}`

func completion(model, content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1772442000,
		"model":   model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

func newServer(t *testing.T, status int, body any, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if captured != nil {
			raw, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			assert.NoError(t, json.Unmarshal(raw, captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func scoreRequest() models.ScoreRequest {
	return models.ScoreRequest{
		PositionTitle: "Backend Engineer",
		Pairs:         []models.QAPair{{Question: "Explain MVCC.", Answer: "Readers see a snapshot."}},
	}
}

func TestScore_RequestsJSONObject(t *testing.T) {
	var req map[string]any
	srv := newServer(t, http.StatusOK, completion("gpt-4o-mini", verdict), &req)

	p := NewProvider(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o-mini"}, llm.DefaultRubric())
	res, err := p.Score(context.Background(), scoreRequest())
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])
	assert.Equal(t, "gpt-4o-mini", req["model"])
	assert.Len(t, req["messages"], 2)

	assert.False(t, res.Degraded)
	assert.Equal(t, 41, res.TotalScore)
	assert.Equal(t, models.RecommendationStrongFit, res.Recommendation)
	assert.Equal(t, "gpt-4o-mini", res.Model)
}

func TestScore_ModelFallsBackToConfigured(t *testing.T) {
	srv := newServer(t, http.StatusOK, completion("", verdict), nil)

	p := NewProvider(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o-mini"}, llm.DefaultRubric())
	res, err := p.Score(context.Background(), scoreRequest())
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", res.Model)
}

func TestScore_RateLimitedIsScoringUnavailable(t *testing.T) {
	srv := newServer(t, http.StatusTooManyRequests,
		map[string]any{"error": map[string]any{"message": "slow down", "type": "rate_limit"}}, nil)

	p := NewProvider(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o-mini"}, llm.DefaultRubric())
	_, err := p.Score(context.Background(), scoreRequest())
	assert.ErrorIs(t, err, llm.ErrRateLimited)
	assert.ErrorIs(t, err, models.ErrScoringUnavailable)
}

func TestScore_NoChoices(t *testing.T) {
	body := completion("gpt-4o-mini", "")
	body["choices"] = []map[string]any{}
	srv := newServer(t, http.StatusOK, body, nil)

	p := NewProvider(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o-mini"}, llm.DefaultRubric())
	_, err := p.Score(context.Background(), scoreRequest())
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}
