package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"ai-assist/internal/domain"
	"ai-assist/internal/infra/tracer"
)

// SettingsLoader yields the effective settings for a caller.
type SettingsLoader interface {
	Load(ctx context.Context, caller domain.Caller) (*domain.Settings, error)
}

// Dispatcher sends one question to one provider.
type Dispatcher interface {
	Dispatch(ctx context.Context, name domain.ProviderName, cfg domain.ProviderConfig, question string, extra map[string]any) (string, error)
}

// QueryService answers questions through the configured providers. It
// keeps no state between requests.
type QueryService struct {
	settings SettingsLoader
	gateway  Dispatcher
	audit    auditTrail
	now      func() time.Time
	logger   *slog.Logger
}

// NewQueryService creates a query service.
func NewQueryService(settings SettingsLoader, gateway Dispatcher, logger *slog.Logger) *QueryService {
	return &QueryService{
		settings: settings,
		gateway:  gateway,
		audit:    auditTrail{logger: logger},
		now:      time.Now,
		logger:   logger,
	}
}

// SetAuditLogger records every answered or failed query to l.
func (s *QueryService) SetAuditLogger(l domain.AuditLogger) {
	s.audit.sink = l
}

// Ask validates req, selects a provider from the caller's effective
// settings and dispatches the question. Each failure ends the request.
func (s *QueryService) Ask(ctx context.Context, caller domain.Caller, req domain.QueryRequest) (result *domain.QueryResult, err error) {
	ctx, span := tracer.StartSpan(ctx, "query.ask")
	defer func() { tracer.End(span, err) }()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.NewDomainError("QueryService.Ask", domain.ErrValidation, "Question is required")
	}

	provider := strings.TrimSpace(req.Provider)
	defer func() {
		event := domain.AuditEvent{
			Type:     domain.AuditQuery,
			Actor:    caller.ID,
			Resource: "query",
			Action:   "ask",
			Outcome:  outcomeOf(err),
			Detail:   map[string]string{"provider": provider},
		}
		if err != nil {
			event.Detail["code"] = string(domain.ErrorCodeOf(err))
		}
		s.audit.record(ctx, event)
	}()

	eff, err := s.settings.Load(ctx, caller)
	if err != nil {
		return nil, err
	}
	if len(eff.Providers) == 0 {
		return nil, domain.NewDomainError("QueryService.Ask", domain.ErrNotConfigured, "No AI providers configured")
	}

	if provider == "" {
		provider = string(eff.DefaultProvider)
	}
	name, err := domain.ParseProviderName(provider)
	if err != nil {
		return nil, err
	}

	cfg, ok := eff.Providers[name]
	if !ok {
		return nil, domain.NewDomainError("QueryService.Ask", domain.ErrUnknownProvider, string(name))
	}
	if !cfg.Enabled {
		return nil, domain.NewDomainError("QueryService.Ask", domain.ErrProviderDisabled, string(name))
	}
	if name != domain.ProviderCustom && cfg.APIKey == "" {
		return nil, domain.NewDomainError("QueryService.Ask", domain.ErrMissingCredential, string(name))
	}

	span.SetAttributes(tracer.StringAttr("query.provider", string(name)))
	answer, err := s.gateway.Dispatch(ctx, name, cfg, question, req.Context)
	if err != nil {
		s.logger.WarnContext(ctx, "query failed", "caller", caller.ID, "provider", name, "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "query answered", "caller", caller.ID, "provider", name, "model", cfg.Model)
	return &domain.QueryResult{
		Provider:  name,
		Response:  answer,
		Timestamp: s.now().Unix(),
	}, nil
}

// ListProviders describes the enabled providers without exposing keys.
func (s *QueryService) ListProviders(ctx context.Context, caller domain.Caller) (*domain.ProvidersView, error) {
	eff, err := s.settings.Load(ctx, caller)
	if err != nil {
		return nil, err
	}

	view := &domain.ProvidersView{
		Providers:       []domain.ProviderSummary{},
		DefaultProvider: eff.DefaultProvider,
		QuickActions:    domain.DefaultQuickActions(),
		IsAdmin:         caller.IsAdmin(),
	}
	for _, name := range domain.AllProviders {
		p, ok := eff.Providers[name]
		if !ok || !p.Enabled {
			continue
		}
		view.Providers = append(view.Providers, domain.ProviderSummary{
			Name:      name,
			Model:     p.Model,
			Endpoint:  p.Endpoint,
			HasAPIKey: p.APIKey != "",
		})
	}
	for k, v := range eff.QuickActions {
		view.QuickActions[k] = v
	}
	return view, nil
}
