package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-assist/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func newTestSettings(t *testing.T) (*SettingsService, *ConfigResolver) {
	t.Helper()
	r, _ := newTestResolver(t)
	return NewSettingsService(r, noopLogger()), r
}

func TestSaveGlobalRequiresAdmin(t *testing.T) {
	s, _ := newTestSettings(t)
	_, err := s.SaveGlobal(context.Background(), alice, domain.GlobalSettingsInput{})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestSaveGlobalNormalizes(t *testing.T) {
	s, r := newTestSettings(t)
	ctx := context.Background()

	view, err := s.SaveGlobal(ctx, admin, domain.GlobalSettingsInput{
		Providers: map[string]domain.ProviderInput{
			"openai": {Enabled: true, Endpoint: "  ", Model: " gpt-4o ", APIKey: " sk-1 ", Temperature: ptr(0.2)},
			"custom": {Enabled: true, Endpoint: "http://10.0.0.9:8000/v1/chat/completions", Headers: ` {"X-Org":"noc"} `, MaxTokens: ptr(512)},
		},
		DefaultProvider: "custom",
		QuickActions:    map[string]bool{"hosts": false},
	})
	require.NoError(t, err)

	openai := view.Providers[domain.ProviderOpenAI]
	assert.Equal(t, domain.MaskedSecret, openai.APIKey, "views never expose keys")
	assert.Equal(t, "gpt-4o", openai.Model)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", openai.Endpoint)
	assert.Equal(t, 0.2, openai.Temperature)
	assert.Equal(t, 2048, openai.MaxTokens)

	custom := view.Providers[domain.ProviderCustom]
	assert.Equal(t, `{"X-Org":"noc"}`, custom.Headers)
	assert.Equal(t, 512, custom.MaxTokens)
	assert.Empty(t, custom.APIKey)

	assert.Len(t, view.Providers, len(domain.AllProviders))
	assert.False(t, view.Providers[domain.ProviderGemini].Enabled)
	assert.Equal(t, domain.ProviderCustom, view.DefaultProvider)
	assert.False(t, view.QuickActions["hosts"])
	assert.True(t, view.QuickActions["problems"])
	assert.NotEmpty(t, view.UpdatedAt)

	plain, err := r.GetGlobal(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-1", plain.Providers[domain.ProviderOpenAI].APIKey)
}

func TestSaveGlobalMaskedKeyKeepsStored(t *testing.T) {
	s, r := newTestSettings(t)
	ctx := context.Background()

	_, err := s.SaveGlobal(ctx, admin, domain.GlobalSettingsInput{
		Providers: map[string]domain.ProviderInput{"openai": {Enabled: true, APIKey: "sk-1"}},
	})
	require.NoError(t, err)
	_, err = s.SaveGlobal(ctx, admin, domain.GlobalSettingsInput{
		Providers: map[string]domain.ProviderInput{"openai": {Enabled: true, APIKey: domain.MaskedSecret, Model: "gpt-4o"}},
	})
	require.NoError(t, err)

	plain, err := r.GetGlobal(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-1", plain.Providers[domain.ProviderOpenAI].APIKey)
	assert.Equal(t, "gpt-4o", plain.Providers[domain.ProviderOpenAI].Model)
}

func TestSaveGlobalValidation(t *testing.T) {
	tests := []struct {
		name string
		in   domain.GlobalSettingsInput
		want error
	}{
		{"temperature too high", domain.GlobalSettingsInput{Providers: map[string]domain.ProviderInput{"openai": {Temperature: ptr(2.5)}}}, domain.ErrValidation},
		{"negative temperature", domain.GlobalSettingsInput{Providers: map[string]domain.ProviderInput{"openai": {Temperature: ptr(-0.1)}}}, domain.ErrValidation},
		{"zero max tokens", domain.GlobalSettingsInput{Providers: map[string]domain.ProviderInput{"gemini": {MaxTokens: ptr(0)}}}, domain.ErrValidation},
		{"headers not object", domain.GlobalSettingsInput{Providers: map[string]domain.ProviderInput{"custom": {Headers: `["a"]`}}}, domain.ErrValidation},
		{"bad endpoint", domain.GlobalSettingsInput{Providers: map[string]domain.ProviderInput{"anthropic": {Endpoint: "ftp://x"}}}, domain.ErrValidation},
		{"unknown provider", domain.GlobalSettingsInput{Providers: map[string]domain.ProviderInput{"bard": {}}}, domain.ErrUnknownProvider},
		{"unknown default", domain.GlobalSettingsInput{DefaultProvider: "bard"}, domain.ErrUnknownProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSettings(t)
			_, err := s.SaveGlobal(context.Background(), admin, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSaveUserOverridesAndClear(t *testing.T) {
	s, r := newTestSettings(t)
	ctx := context.Background()

	view, err := s.SaveUser(ctx, alice, domain.UserSettingsInput{
		Providers:       map[string]domain.UserProviderInput{"openai": {APIKey: "sk-alice", Model: "gpt-4o"}},
		DefaultProvider: "openai",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MaskedSecret, view.Providers[domain.ProviderOpenAI].APIKey)
	assert.Equal(t, domain.ProviderOpenAI, view.DefaultProvider)

	// A masked key keeps the stored override.
	_, err = s.SaveUser(ctx, alice, domain.UserSettingsInput{
		Providers: map[string]domain.UserProviderInput{"openai": {APIKey: domain.MaskedSecret}},
	})
	require.NoError(t, err)
	doc, err := r.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "sk-alice", doc.Providers[domain.ProviderOpenAI].APIKey)

	_, err = s.SaveUser(ctx, alice, domain.UserSettingsInput{
		Providers: map[string]domain.UserProviderInput{"openai": {ClearAPIKey: true}},
	})
	require.NoError(t, err)
	doc, err = r.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, doc.Providers[domain.ProviderOpenAI].APIKey)
}

func TestSaveUserUnknownProvider(t *testing.T) {
	s, _ := newTestSettings(t)
	_, err := s.SaveUser(context.Background(), alice, domain.UserSettingsInput{
		Providers: map[string]domain.UserProviderInput{"bard": {APIKey: "x"}},
	})
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
}

func TestGlobalViewMasksKeys(t *testing.T) {
	s, r := newTestSettings(t)
	require.NoError(t, r.SaveGlobal(context.Background(), enabledGlobal("sk-secret")))

	view, err := s.GlobalView(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.MaskedSecret, view.Providers[domain.ProviderOpenAI].APIKey)
	assert.Empty(t, view.Providers[domain.ProviderAnthropic].APIKey)
}
