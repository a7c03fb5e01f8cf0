package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-assist/internal/domain"
	"ai-assist/internal/infra/config"
)

var noBreaker = config.CircuitBreakerConfig{}

func openAIConfig(endpoint string) domain.ProviderConfig {
	cfg := domain.DefaultProviderConfigs()[domain.ProviderOpenAI]
	cfg.Enabled = true
	cfg.Endpoint = endpoint
	cfg.APIKey = "sk-test"
	return cfg
}

func TestBuildSystemPrompt(t *testing.T) {
	assert.Equal(t, systemPreamble, BuildSystemPrompt(nil))
	assert.Equal(t, systemPreamble, BuildSystemPrompt(map[string]any{}))

	got := BuildSystemPrompt(map[string]any{"host": "web<01>", "name": "Zürich"})
	assert.Equal(t, systemPreamble+"\n\nContext: "+`{"host":"web<01>","name":"Zürich"}`, got)
}

func TestDispatchUnknownProvider(t *testing.T) {
	gw := newTestGateway(t, noBreaker)
	_, err := gw.Dispatch(context.Background(), domain.ProviderName("bard"), domain.ProviderConfig{}, "q", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
}

func TestDispatchUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer server.Close()

	gw := newTestGateway(t, noBreaker)
	_, err := gw.Dispatch(context.Background(), domain.ProviderOpenAI, openAIConfig(server.URL), "q", nil)
	require.ErrorIs(t, err, domain.ErrUpstream)

	var upstream *domain.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusUnauthorized, upstream.StatusCode)
	assert.Contains(t, upstream.Body, "invalid api key")
	assert.Equal(t, `HTTP error 401: {"error":"invalid api key"}`, err.Error())
}

func TestDispatchUpstreamBodyTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("x", 10000)))
	}))
	defer server.Close()

	gw := newTestGateway(t, noBreaker)
	_, err := gw.Dispatch(context.Background(), domain.ProviderOpenAI, openAIConfig(server.URL), "q", nil)

	var upstream *domain.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.LessOrEqual(t, len(upstream.Body), 2048+3)
}

func TestDispatchTransportError(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}
	gw := NewGateway(NewDefaultRegistry(newTestLogger()), client, noBreaker, newTestLogger())

	_, err := gw.Dispatch(context.Background(), domain.ProviderOpenAI, openAIConfig("http://llm.invalid/v1"), "q", nil)
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestDispatchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewHTTPClient(config.LLMConfig{Timeout: 50 * time.Millisecond})
	gw := NewGateway(NewDefaultRegistry(newTestLogger()), client, noBreaker, newTestLogger())

	_, err := gw.Dispatch(context.Background(), domain.ProviderOpenAI, openAIConfig(server.URL), "q", nil)
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestDispatchContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"late"}}]}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gw := newTestGateway(t, noBreaker)
	_, err := gw.Dispatch(ctx, domain.ProviderOpenAI, openAIConfig(server.URL), "q", nil)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDispatchTransportErrorRedactsKey(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}
	gw := NewGateway(NewDefaultRegistry(logger), client, noBreaker, logger)

	cfg := domain.DefaultProviderConfigs()[domain.ProviderGemini]
	cfg.Enabled = true
	cfg.Endpoint = "http://user:pw@127.0.0.1:1/v1beta/models"
	cfg.APIKey = "AIzaADMINSECRET"

	_, err := gw.Dispatch(context.Background(), domain.ProviderGemini, cfg, "q", nil)
	require.ErrorIs(t, err, domain.ErrTransport)
	assert.NotContains(t, err.Error(), "AIzaADMINSECRET")
	assert.NotContains(t, err.Error(), "pw@")
	assert.Contains(t, err.Error(), "/v1beta/models/gemini-pro:generateContent")
	assert.Contains(t, err.Error(), "connection refused")
	assert.NotContains(t, logs.String(), "AIzaADMINSECRET")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/v1/x", redactURL("https://u:p@example.com/v1/x?key=secret#frag"))
	assert.Equal(t, "[unparseable url]", redactURL("http://[::1"))
}

func TestDispatchInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	gw := newTestGateway(t, noBreaker)
	_, err := gw.Dispatch(context.Background(), domain.ProviderOpenAI, openAIConfig(server.URL), "q", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidResponse)
}

func TestCircuitBreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	gw := newTestGateway(t, config.CircuitBreakerConfig{Enabled: true, MaxFailures: 2, Timeout: time.Minute})
	cfg := openAIConfig(server.URL)

	for i := 0; i < 2; i++ {
		_, err := gw.Dispatch(context.Background(), domain.ProviderOpenAI, cfg, "q", nil)
		require.ErrorIs(t, err, domain.ErrUpstream)
	}
	assert.Equal(t, gobreaker.StateOpen, gw.breakers.state(domain.ProviderOpenAI))

	_, err := gw.Dispatch(context.Background(), domain.ProviderOpenAI, cfg, "q", nil)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the provider")

	// Other providers keep their own breaker.
	assert.Equal(t, gobreaker.StateClosed, gw.breakers.state(domain.ProviderAnthropic))
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	gw := newTestGateway(t, config.CircuitBreakerConfig{Enabled: true, MaxFailures: 1, Timeout: time.Minute})
	for i := 0; i < 3; i++ {
		_, err := gw.Dispatch(context.Background(), domain.ProviderOpenAI, openAIConfig(server.URL), "q", nil)
		require.ErrorIs(t, err, domain.ErrUpstream)
	}
	assert.Equal(t, gobreaker.StateClosed, gw.breakers.state(domain.ProviderOpenAI))
}

func TestCircuitBreakerIgnoresCallerCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	gw := newTestGateway(t, config.CircuitBreakerConfig{Enabled: true, MaxFailures: 2, Timeout: time.Minute})
	cfg := openAIConfig(server.URL)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		_, err := gw.Dispatch(cancelled, domain.ProviderOpenAI, cfg, "q", nil)
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, gw.breakers.state(domain.ProviderOpenAI))

	got, err := gw.Dispatch(context.Background(), domain.ProviderOpenAI, cfg, "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestTripsBreaker(t *testing.T) {
	assert.False(t, tripsBreaker(nil))
	assert.False(t, tripsBreaker(domain.NewDomainError("x", fmt.Errorf("%w: %w", domain.ErrTransport, context.Canceled), "")))
	assert.True(t, tripsBreaker(domain.NewDomainError("x", domain.ErrTransport, "")))
	assert.True(t, tripsBreaker(domain.NewUpstreamError(500, nil)))
	assert.False(t, tripsBreaker(domain.NewUpstreamError(429, nil)))
	assert.False(t, tripsBreaker(domain.NewDomainError("x", domain.ErrInvalidResponse, "")))
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry(newTestLogger())
	assert.Equal(t, []domain.ProviderName{"anthropic", "custom", "gemini", "openai"}, r.List())
	assert.Error(t, r.Register(OpenAIAdapter{}))

	a, err := r.Get(domain.ProviderGemini)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderGemini, a.Name())
}

func TestNewHTTPClientDefaults(t *testing.T) {
	c := NewHTTPClient(config.LLMConfig{})
	assert.Equal(t, 30*time.Second, c.Timeout)

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, defaultMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
}

func TestNewHTTPClientBlocksPrivateNetworks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"should not arrive"}}]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(config.LLMConfig{Timeout: time.Second, BlockPrivateNetworks: true})
	gw := NewGateway(NewDefaultRegistry(newTestLogger()), client, noBreaker, newTestLogger())

	_, err := gw.Dispatch(context.Background(), domain.ProviderOpenAI, openAIConfig(server.URL), "q", nil)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Contains(t, err.Error(), "private address")
}
