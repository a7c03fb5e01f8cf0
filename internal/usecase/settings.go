package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"ai-assist/internal/domain"
	"ai-assist/internal/security"
)

const maxTemperature = 2.0

// SettingsService backs the settings pages: masked views of both documents
// and validated saves.
type SettingsService struct {
	resolver *ConfigResolver
	audit    auditTrail
	logger   *slog.Logger
}

// NewSettingsService creates a settings service over resolver.
func NewSettingsService(resolver *ConfigResolver, logger *slog.Logger) *SettingsService {
	return &SettingsService{resolver: resolver, audit: auditTrail{logger: logger}, logger: logger}
}

// SetAuditLogger records settings changes and refused edits to l.
func (s *SettingsService) SetAuditLogger(l domain.AuditLogger) {
	s.audit.sink = l
}

// GlobalView returns the global document with keys masked.
func (s *SettingsService) GlobalView(ctx context.Context) (*domain.Settings, error) {
	doc, err := s.resolver.GetGlobal(ctx)
	if err != nil {
		return nil, err
	}
	return maskKeys(doc), nil
}

// UserView returns the caller's document with keys masked.
func (s *SettingsService) UserView(ctx context.Context, caller domain.Caller) (*domain.Settings, error) {
	doc, err := s.resolver.GetUser(ctx, caller)
	if err != nil {
		return nil, err
	}
	return maskKeys(doc), nil
}

// SaveGlobal replaces the global document. Only administrators may call it.
// Every supported provider is written; one missing from in is stored with
// its defaults, disabled.
func (s *SettingsService) SaveGlobal(ctx context.Context, caller domain.Caller, in domain.GlobalSettingsInput) (*domain.Settings, error) {
	if !caller.IsAdmin() {
		s.audit.record(ctx, domain.AuditEvent{
			Type:     domain.AuditAccessDenied,
			Actor:    caller.ID,
			Resource: "settings/global",
			Action:   "update",
			Outcome:  domain.AuditOutcomeDenied,
		})
		return nil, domain.NewDomainError("SettingsService.SaveGlobal", domain.ErrForbidden, caller.ID)
	}

	doc, err := normalizeGlobal(in)
	if err != nil {
		return nil, err
	}
	err = s.resolver.SaveGlobal(ctx, doc)
	s.audit.record(ctx, domain.AuditEvent{
		Type:     domain.AuditSettingsUpdate,
		Actor:    caller.ID,
		Resource: "settings/global",
		Action:   "update",
		Outcome:  outcomeOf(err),
		Detail: map[string]string{
			"default_provider": string(doc.DefaultProvider),
			"enabled":          enabledProviders(doc),
		},
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "global settings updated", "caller", caller.ID)
	return s.GlobalView(ctx)
}

// SaveUser replaces the caller's own overrides.
func (s *SettingsService) SaveUser(ctx context.Context, caller domain.Caller, in domain.UserSettingsInput) (*domain.Settings, error) {
	doc := &domain.Settings{Providers: make(map[domain.ProviderName]domain.ProviderConfig, len(in.Providers))}
	var clear []domain.ProviderName

	for rawName, p := range in.Providers {
		name, err := domain.ParseProviderName(rawName)
		if err != nil {
			return nil, err
		}
		doc.Providers[name] = domain.ProviderConfig{
			APIKey: strings.TrimSpace(p.APIKey),
			Model:  strings.TrimSpace(p.Model),
		}
		if p.ClearAPIKey {
			clear = append(clear, name)
		}
	}
	if dp := strings.TrimSpace(in.DefaultProvider); dp != "" {
		name, err := domain.ParseProviderName(dp)
		if err != nil {
			return nil, err
		}
		doc.DefaultProvider = name
	}

	err := s.resolver.SaveUser(ctx, caller, doc, clear...)
	event := domain.AuditEvent{
		Type:     domain.AuditSettingsUpdate,
		Actor:    caller.ID,
		Resource: "settings/user",
		Action:   "update",
		Outcome:  outcomeOf(err),
	}
	if len(clear) > 0 {
		names := make([]string, len(clear))
		for i, n := range clear {
			names[i] = string(n)
		}
		event.Detail = map[string]string{"cleared_keys": strings.Join(names, ",")}
	}
	s.audit.record(ctx, event)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user settings updated", "caller", caller.ID)
	return s.UserView(ctx, caller)
}

func normalizeGlobal(in domain.GlobalSettingsInput) (*domain.Settings, error) {
	defaults := domain.DefaultProviderConfigs()
	doc := &domain.Settings{
		Providers:       make(map[domain.ProviderName]domain.ProviderConfig, len(domain.AllProviders)),
		DefaultProvider: domain.DefaultProviderName,
		QuickActions:    domain.DefaultQuickActions(),
	}

	for rawName := range in.Providers {
		if _, err := domain.ParseProviderName(rawName); err != nil {
			return nil, err
		}
	}

	for _, name := range domain.AllProviders {
		p, ok := lookupInput(in.Providers, name)
		if !ok {
			doc.Providers[name] = defaults[name]
			continue
		}
		pc, err := normalizeProvider(name, p, defaults[name])
		if err != nil {
			return nil, err
		}
		doc.Providers[name] = pc
	}

	if dp := strings.TrimSpace(in.DefaultProvider); dp != "" {
		name, err := domain.ParseProviderName(dp)
		if err != nil {
			return nil, err
		}
		doc.DefaultProvider = name
	}
	for k, v := range in.QuickActions {
		doc.QuickActions[k] = v
	}
	return doc, nil
}

// lookupInput finds name in the submitted map, tolerating surrounding spaces.
func lookupInput(in map[string]domain.ProviderInput, name domain.ProviderName) (domain.ProviderInput, bool) {
	for k, v := range in {
		if strings.TrimSpace(k) == string(name) {
			return v, true
		}
	}
	return domain.ProviderInput{}, false
}

func normalizeProvider(name domain.ProviderName, p domain.ProviderInput, def domain.ProviderConfig) (domain.ProviderConfig, error) {
	const op = "SettingsService.SaveGlobal"

	pc := def
	pc.Enabled = p.Enabled
	pc.APIKey = strings.TrimSpace(p.APIKey)
	if m := strings.TrimSpace(p.Model); m != "" || name == domain.ProviderCustom {
		pc.Model = m
	}

	if ep := strings.TrimSpace(p.Endpoint); ep != "" {
		if err := security.ValidateEndpoint(ep); err != nil {
			return pc, domain.NewDomainError(op, domain.ErrValidation, fmt.Sprintf("%s endpoint: %v", name, err))
		}
		pc.Endpoint = ep
	} else if name == domain.ProviderCustom {
		pc.Endpoint = ""
	}

	if p.Temperature != nil {
		if *p.Temperature < 0 || *p.Temperature > maxTemperature {
			return pc, domain.NewDomainError(op, domain.ErrValidation, fmt.Sprintf("%s temperature must be between 0 and 2", name))
		}
		pc.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		if *p.MaxTokens <= 0 {
			return pc, domain.NewDomainError(op, domain.ErrValidation, fmt.Sprintf("%s max_tokens must be > 0", name))
		}
		pc.MaxTokens = *p.MaxTokens
	}

	if name == domain.ProviderCustom {
		h := strings.TrimSpace(p.Headers)
		if h == "" {
			h = "{}"
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(h), &obj); err != nil || obj == nil {
			return pc, domain.NewDomainError(op, domain.ErrValidation, "custom headers must be a JSON object")
		}
		pc.Headers = h
	} else {
		pc.Headers = ""
	}
	return pc, nil
}

// maskKeys replaces every set key with the mask token.
func maskKeys(doc *domain.Settings) *domain.Settings {
	out := doc.Clone()
	for name, p := range out.Providers {
		if p.APIKey != "" {
			p.APIKey = domain.MaskedSecret
		}
		out.Providers[name] = p
	}
	return out
}
