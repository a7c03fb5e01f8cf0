package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"ai-assist/internal/domain"
)

// GeminiAdapter speaks the Gemini generateContent API. The key travels in
// the query string.
type GeminiAdapter struct{}

// Name implements ProviderAdapter.
func (GeminiAdapter) Name() domain.ProviderName { return domain.ProviderGemini }

// BuildRequest implements ProviderAdapter.
func (GeminiAdapter) BuildRequest(ctx context.Context, cfg domain.ProviderConfig, prompt Prompt) (*http.Request, error) {
	target := strings.TrimRight(cfg.Endpoint, "/") + "/" + url.PathEscape(cfg.Model) + ":generateContent?" +
		url.Values{"key": {cfg.APIKey}}.Encode()

	payload := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{{Text: prompt.System + "\n\nUser question: " + prompt.Question}},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxTokens,
		},
	}
	return newJSONRequest(ctx, target, payload, nil)
}

// ParseResponse implements ProviderAdapter.
func (GeminiAdapter) ParseResponse(body []byte) (string, error) {
	var resp geminiResponse
	if err := decodeResponse(domain.ProviderGemini, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", invalidResponse(domain.ProviderGemini, "Invalid response from Gemini API")
	}
	text, ok := rawString(resp.Candidates[0].Content.Parts[0].Text)
	if !ok {
		return "", invalidResponse(domain.ProviderGemini, "Invalid response from Gemini API")
	}
	return text, nil
}

// --- Gemini API wire types ---

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text json.RawMessage `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

var _ ProviderAdapter = GeminiAdapter{}
