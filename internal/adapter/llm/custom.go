package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"ai-assist/internal/domain"
)

// CustomAdapter talks to a self-hosted, OpenAI-compatible endpoint. The key
// is optional and extra headers come from the provider's headers setting.
type CustomAdapter struct {
	logger *slog.Logger
}

// NewCustomAdapter creates a custom adapter that logs unusable header settings.
func NewCustomAdapter(logger *slog.Logger) *CustomAdapter {
	return &CustomAdapter{logger: logger}
}

// Name implements ProviderAdapter.
func (a *CustomAdapter) Name() domain.ProviderName { return domain.ProviderCustom }

// BuildRequest implements ProviderAdapter.
func (a *CustomAdapter) BuildRequest(ctx context.Context, cfg domain.ProviderConfig, prompt Prompt) (*http.Request, error) {
	if cfg.Endpoint == "" {
		return nil, domain.NewDomainError("CustomAdapter.BuildRequest", domain.ErrNotConfigured, "Custom endpoint not configured")
	}

	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	for k, v := range a.extraHeaders(cfg.Headers) {
		headers[k] = v
	}

	return newJSONRequest(ctx, cfg.Endpoint, newChatRequest(cfg, prompt), headers)
}

// extraHeaders parses a JSON object of header names to values. Anything
// else is ignored.
func (a *CustomAdapter) extraHeaders(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || parsed == nil {
		a.logger.Warn("custom provider headers ignored", "error", err)
		return nil
	}

	out := make(map[string]string, len(parsed))
	for k, v := range parsed {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// ParseResponse implements ProviderAdapter. The answer is taken from the
// first of choices[0].message.content, response and text that is present.
func (a *CustomAdapter) ParseResponse(body []byte) (string, error) {
	var resp customResponse
	if err := decodeResponse(domain.ProviderCustom, body, &resp); err != nil {
		return "", err
	}
	if text, ok := resp.content(); ok {
		return text, nil
	}
	if text, ok := rawString(resp.Response); ok {
		return text, nil
	}
	if text, ok := rawString(resp.Text); ok {
		return text, nil
	}
	return "", invalidResponse(domain.ProviderCustom, "Could not parse response from custom API")
}

type customResponse struct {
	chatResponse
	Response json.RawMessage `json:"response"`
	Text     json.RawMessage `json:"text"`
}

var _ ProviderAdapter = (*CustomAdapter)(nil)
