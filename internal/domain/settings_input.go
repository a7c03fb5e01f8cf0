package domain

// ProviderInput is one provider as submitted by an administrator. Nil
// numeric fields take the built-in defaults.
type ProviderInput struct {
	Enabled     bool     `json:"enabled"`
	Endpoint    string   `json:"endpoint"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	APIKey      string   `json:"api_key"`
	Headers     string   `json:"headers,omitempty"`
}

// GlobalSettingsInput is an administrator's settings submission.
type GlobalSettingsInput struct {
	Providers       map[string]ProviderInput `json:"providers"`
	DefaultProvider string                   `json:"default_provider"`
	QuickActions    map[string]bool          `json:"quick_actions,omitempty"`
}

// UserProviderInput carries the per-user overrides for one provider.
type UserProviderInput struct {
	APIKey      string `json:"api_key"`
	Model       string `json:"model"`
	ClearAPIKey bool   `json:"clear_api_key,omitempty"`
}

// UserSettingsInput is a caller's own settings submission.
type UserSettingsInput struct {
	Providers       map[string]UserProviderInput `json:"providers"`
	DefaultProvider string                       `json:"default_provider"`
}
