package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"ai-assist/internal/domain"
)

// maxResponseBody is the maximum response body size we read from LLM APIs.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// maxErrorBody bounds how much of a failed response is read before truncation.
const maxErrorBody = 64 * 1024

// newJSONRequest builds a POST request carrying payload as JSON.
func newJSONRequest(ctx context.Context, url string, payload any, headers map[string]string) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewDomainError("llm.newJSONRequest", domain.ErrTransport, err.Error())
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// doRequest executes req and returns the response body. Transport failures
// map to ErrTransport, non-2xx statuses to *domain.UpstreamError.
func doRequest(client *http.Client, req *http.Request) ([]byte, error) {
	httpResp, err := client.Do(req)
	if err != nil {
		return nil, transportError(req.Context(), err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= http.StatusBadRequest {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, domain.NewUpstreamError(httpResp.StatusCode, respBody)
	}

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, domain.NewDomainError("llm.doRequest", domain.ErrTransport, fmt.Sprintf("read response: %v", err))
	}
	return respBody, nil
}

// transportError maps a failed round trip to ErrTransport. The request URL
// is reported without its query or userinfo, which may carry the API key.
// A caller cancellation stays visible to errors.Is.
func transportError(ctx context.Context, err error) error {
	detail := err.Error()
	var ue *url.Error
	if errors.As(err, &ue) {
		detail = fmt.Sprintf("%s %q: %v", ue.Op, redactURL(ue.URL), ue.Err)
	}
	sentinel := domain.ErrTransport
	if errors.Is(ctx.Err(), context.Canceled) {
		sentinel = fmt.Errorf("%w: %w", domain.ErrTransport, context.Canceled)
	}
	return domain.NewDomainError("llm.doRequest", sentinel, detail)
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable url]"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// decodeResponse unmarshals a provider reply, mapping bad JSON to ErrInvalidResponse.
func decodeResponse(provider domain.ProviderName, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return invalidResponse(provider, err.Error())
	}
	return nil
}

func invalidResponse(provider domain.ProviderName, detail string) error {
	return domain.NewDomainError("llm."+string(provider), domain.ErrInvalidResponse, detail)
}

// rawString reports the string held by raw, if raw is a JSON string.
func rawString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// chatMessage is the OpenAI-style message shared by the openai and custom adapters.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func newChatRequest(cfg domain.ProviderConfig, prompt Prompt) chatRequest {
	return chatRequest{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.Question},
		},
	}
}

// content returns choices[0].message.content when present.
func (r chatResponse) content() (string, bool) {
	if len(r.Choices) == 0 {
		return "", false
	}
	return rawString(r.Choices[0].Message.Content)
}
