package llm

import (
	"context"
	"net/http"

	"ai-assist/internal/domain"
)

// OpenAIAdapter speaks the OpenAI chat completions API.
type OpenAIAdapter struct{}

// Name implements ProviderAdapter.
func (OpenAIAdapter) Name() domain.ProviderName { return domain.ProviderOpenAI }

// BuildRequest implements ProviderAdapter.
func (OpenAIAdapter) BuildRequest(ctx context.Context, cfg domain.ProviderConfig, prompt Prompt) (*http.Request, error) {
	return newJSONRequest(ctx, cfg.Endpoint, newChatRequest(cfg, prompt), map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
	})
}

// ParseResponse implements ProviderAdapter.
func (OpenAIAdapter) ParseResponse(body []byte) (string, error) {
	var resp chatResponse
	if err := decodeResponse(domain.ProviderOpenAI, body, &resp); err != nil {
		return "", err
	}
	text, ok := resp.content()
	if !ok {
		return "", invalidResponse(domain.ProviderOpenAI, "Invalid response from OpenAI API")
	}
	return text, nil
}

var _ ProviderAdapter = OpenAIAdapter{}
