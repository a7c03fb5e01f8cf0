package domain

// QueryRequest is one question from the UI.
type QueryRequest struct {
	Question string         `json:"question"`
	Provider string         `json:"provider,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// QueryResult is the answer of a successful query.
type QueryResult struct {
	Provider  ProviderName `json:"provider"`
	Response  string       `json:"response"`
	Timestamp int64        `json:"timestamp"`
}

// ProviderSummary describes an enabled provider without exposing its key.
type ProviderSummary struct {
	Name      ProviderName `json:"name"`
	Model     string       `json:"model"`
	Endpoint  string       `json:"endpoint"`
	HasAPIKey bool         `json:"has_api_key"`
}

// ProvidersView is what the UI needs to render the assistant entry points.
type ProvidersView struct {
	Providers       []ProviderSummary `json:"providers"`
	DefaultProvider ProviderName      `json:"default_provider"`
	QuickActions    map[string]bool   `json:"quick_actions"`
	IsAdmin         bool              `json:"is_admin"`
}
