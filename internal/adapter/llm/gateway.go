package llm

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"ai-assist/internal/domain"
	"ai-assist/internal/infra/config"
	"ai-assist/internal/infra/tracer"
)

// Gateway sends a question to one provider and returns its answer. It
// holds no settings of its own: every call carries the provider config.
type Gateway struct {
	registry *Registry
	client   *http.Client
	breakers *breakerSet
	logger   *slog.Logger
}

// NewGateway wires a gateway. The breaker is only active when cb.Enabled.
func NewGateway(registry *Registry, client *http.Client, cb config.CircuitBreakerConfig, logger *slog.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		client:   client,
		breakers: newBreakerSet(cb, logger),
		logger:   logger,
	}
}

// Dispatch performs exactly one HTTP call to the named provider. There are
// no retries.
func (g *Gateway) Dispatch(ctx context.Context, name domain.ProviderName, cfg domain.ProviderConfig, question string, extra map[string]any) (answer string, err error) {
	ctx, span := tracer.StartSpan(ctx, "llm.dispatch",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", string(name)),
			tracer.StringAttr("llm.model", cfg.Model),
		),
	)
	defer func() { tracer.End(span, err) }()

	adapter, err := g.registry.Get(name)
	if err != nil {
		return "", err
	}

	req, err := adapter.BuildRequest(ctx, cfg, Prompt{
		System:   BuildSystemPrompt(extra),
		Question: question,
	})
	if err != nil {
		return "", err
	}

	start := time.Now()
	body, err := g.send(name, req)
	if err != nil {
		g.logger.WarnContext(ctx, "llm dispatch failed",
			"provider", name,
			"model", cfg.Model,
			"duration", time.Since(start),
			"error", err,
		)
		return "", err
	}

	answer, err = adapter.ParseResponse(body)
	if err != nil {
		return "", err
	}

	span.SetAttributes(tracer.IntAttr("llm.response_chars", len(answer)))
	g.logger.DebugContext(ctx, "llm dispatch completed",
		"provider", name,
		"model", cfg.Model,
		"duration", time.Since(start),
	)
	return answer, nil
}

func (g *Gateway) send(name domain.ProviderName, req *http.Request) ([]byte, error) {
	if g.breakers == nil {
		return doRequest(g.client, req)
	}
	return g.breakers.execute(name, func() ([]byte, error) {
		return doRequest(g.client, req)
	})
}

