package domain

import (
	"fmt"
	"strings"
)

// ProviderName identifies one of the supported LLM backends.
type ProviderName string

const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderGemini    ProviderName = "gemini"
	ProviderCustom    ProviderName = "custom"
)

// AllProviders lists every supported provider in display order.
var AllProviders = []ProviderName{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderCustom}

// DefaultProviderName is used when neither settings document names one.
const DefaultProviderName = ProviderOpenAI

// MaskedSecret is shown in place of a stored key and means "keep the existing key" on save.
const MaskedSecret = "********"

// ParseProviderName validates s against the supported provider set.
func ParseProviderName(s string) (ProviderName, error) {
	name := ProviderName(strings.TrimSpace(s))
	for _, p := range AllProviders {
		if p == name {
			return p, nil
		}
	}
	return "", NewDomainError("ParseProviderName", ErrUnknownProvider, fmt.Sprintf("%q", s))
}

// IsSecretSet reports whether v carries a real key (not empty and not the mask token).
func IsSecretSet(v string) bool {
	return v != "" && v != MaskedSecret
}

// ProviderConfig holds the per-provider settings.
type ProviderConfig struct {
	Enabled     bool    `json:"enabled"`
	Endpoint    string  `json:"endpoint"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	APIKey      string  `json:"api_key"`
	Headers     string  `json:"headers,omitempty"` // JSON object, custom provider only
}

// Settings is a global or per-user settings document. The merged, decrypted
// form handed to a query is the same shape.
type Settings struct {
	Providers       map[ProviderName]ProviderConfig `json:"providers"`
	DefaultProvider ProviderName                    `json:"default_provider,omitempty"`
	QuickActions    map[string]bool                 `json:"quick_actions,omitempty"`
	UpdatedAt       string                          `json:"updated_at,omitempty"`
}

// Clone returns a deep copy of s.
func (s *Settings) Clone() *Settings {
	out := &Settings{
		Providers:       make(map[ProviderName]ProviderConfig, len(s.Providers)),
		DefaultProvider: s.DefaultProvider,
		UpdatedAt:       s.UpdatedAt,
	}
	for k, v := range s.Providers {
		out.Providers[k] = v
	}
	if s.QuickActions != nil {
		out.QuickActions = make(map[string]bool, len(s.QuickActions))
		for k, v := range s.QuickActions {
			out.QuickActions[k] = v
		}
	}
	return out
}

// DefaultProviderConfigs returns the built-in provider defaults.
func DefaultProviderConfigs() map[ProviderName]ProviderConfig {
	return map[ProviderName]ProviderConfig{
		ProviderOpenAI: {
			Endpoint:    "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   2048,
		},
		ProviderAnthropic: {
			Endpoint:    "https://api.anthropic.com/v1/messages",
			Model:       "claude-3-haiku-20240307",
			Temperature: 0.7,
			MaxTokens:   2048,
		},
		ProviderGemini: {
			Endpoint:    "https://generativelanguage.googleapis.com/v1beta/models",
			Model:       "gemini-pro",
			Temperature: 0.7,
			MaxTokens:   2048,
		},
		ProviderCustom: {
			Temperature: 0.7,
			MaxTokens:   2048,
			Headers:     "{}",
		},
	}
}

// DefaultQuickActions returns the quick action toggles enabled by default.
func DefaultQuickActions() map[string]bool {
	return map[string]bool{
		"problems": true,
		"triggers": true,
		"items":    true,
		"hosts":    true,
	}
}

// DefaultGlobalSettings returns the document used when nothing is stored.
func DefaultGlobalSettings() *Settings {
	return &Settings{
		Providers:       DefaultProviderConfigs(),
		DefaultProvider: DefaultProviderName,
		QuickActions:    DefaultQuickActions(),
	}
}
