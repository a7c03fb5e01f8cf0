package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"ai-assist/internal/domain"
)

// systemPreamble opens every system prompt.
const systemPreamble = "You are a helpful assistant integrated with a monitoring platform."

// Prompt is the rendered input for a single provider call.
type Prompt struct {
	System   string
	Question string
}

// ProviderAdapter turns a prompt into a provider-specific HTTP request and
// extracts the answer text from the provider's reply.
type ProviderAdapter interface {
	Name() domain.ProviderName
	BuildRequest(ctx context.Context, cfg domain.ProviderConfig, prompt Prompt) (*http.Request, error)
	ParseResponse(body []byte) (string, error)
}

// BuildSystemPrompt renders the system prompt. A non-empty context map is
// appended as compact JSON.
func BuildSystemPrompt(extra map[string]any) string {
	if len(extra) == 0 {
		return systemPreamble
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(extra); err != nil {
		return systemPreamble
	}
	return systemPreamble + "\n\nContext: " + string(bytes.TrimRight(buf.Bytes(), "\n"))
}
