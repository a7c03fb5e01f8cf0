package llm

import (
	"context"
	"encoding/json"
	"net/http"

	"ai-assist/internal/domain"
)

const anthropicVersion = "2023-06-01"

// AnthropicAdapter speaks the Anthropic Messages API.
type AnthropicAdapter struct{}

// Name implements ProviderAdapter.
func (AnthropicAdapter) Name() domain.ProviderName { return domain.ProviderAnthropic }

// BuildRequest implements ProviderAdapter.
func (AnthropicAdapter) BuildRequest(ctx context.Context, cfg domain.ProviderConfig, prompt Prompt) (*http.Request, error) {
	payload := anthropicRequest{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		System:      prompt.System,
		Messages:    []chatMessage{{Role: "user", Content: prompt.Question}},
	}
	return newJSONRequest(ctx, cfg.Endpoint, payload, map[string]string{
		"x-api-key":         cfg.APIKey,
		"anthropic-version": anthropicVersion,
	})
}

// ParseResponse implements ProviderAdapter.
func (AnthropicAdapter) ParseResponse(body []byte) (string, error) {
	var resp anthropicResponse
	if err := decodeResponse(domain.ProviderAnthropic, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", invalidResponse(domain.ProviderAnthropic, "Invalid response from Anthropic API")
	}
	text, ok := rawString(resp.Content[0].Text)
	if !ok {
		return "", invalidResponse(domain.ProviderAnthropic, "Invalid response from Anthropic API")
	}
	return text, nil
}

// --- Anthropic API wire types ---

type anthropicRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system"`
	Messages    []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string          `json:"type"`
		Text json.RawMessage `json:"text"`
	} `json:"content"`
}

var _ ProviderAdapter = AnthropicAdapter{}
