package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ai-assist/internal/domain"
)

// ConfigResolver loads, merges and persists the global and per-user
// settings documents. API keys are encrypted at rest and plaintext in
// the documents it returns.
type ConfigResolver struct {
	store  domain.ConfigStore
	cipher domain.SecretCipher
	locks  *ScopeLocker
	now    func() time.Time
	logger *slog.Logger
}

// NewConfigResolver creates a resolver over store.
func NewConfigResolver(store domain.ConfigStore, cipher domain.SecretCipher, logger *slog.Logger) *ConfigResolver {
	return &ConfigResolver{
		store:  store,
		cipher: cipher,
		locks:  NewScopeLocker(),
		now:    time.Now,
		logger: logger,
	}
}

// storedSettings is the on-disk document. Provider entries stay raw so
// that absent fields can fall back to defaults.
type storedSettings struct {
	Providers       map[string]json.RawMessage `json:"providers"`
	DefaultProvider string                     `json:"default_provider"`
	QuickActions    map[string]bool            `json:"quick_actions"`
	UpdatedAt       string                     `json:"updated_at"`
}

// GetGlobal returns the decrypted global document, or the built-in
// defaults when nothing usable is stored.
func (r *ConfigResolver) GetGlobal(ctx context.Context) (*domain.Settings, error) {
	return r.get(ctx, domain.GlobalSettingsKey, true)
}

// GetUser returns the caller's decrypted document. An absent document is
// an empty one.
func (r *ConfigResolver) GetUser(ctx context.Context, caller domain.Caller) (*domain.Settings, error) {
	return r.get(ctx, domain.UserSettingsKey(caller.ID), false)
}

func (r *ConfigResolver) get(ctx context.Context, key string, global bool) (*domain.Settings, error) {
	empty := func() *domain.Settings {
		if global {
			return domain.DefaultGlobalSettings()
		}
		return &domain.Settings{Providers: map[domain.ProviderName]domain.ProviderConfig{}}
	}

	raw, found, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, domain.NewDomainError("ConfigResolver.Load", domain.ErrConfigLoad, err.Error())
	}
	if !found || raw == "" {
		return empty(), nil
	}

	var stored storedSettings
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		r.logger.WarnContext(ctx, "stored settings unreadable, using defaults", "key", key, "error", err)
		return empty(), nil
	}

	doc := empty()
	if stored.Providers != nil {
		doc.Providers = make(map[domain.ProviderName]domain.ProviderConfig, len(stored.Providers))
		defaults := domain.DefaultProviderConfigs()
		for rawName, entry := range stored.Providers {
			name, err := domain.ParseProviderName(rawName)
			if err != nil {
				r.logger.WarnContext(ctx, "dropping unknown provider from settings", "key", key, "provider", rawName)
				continue
			}
			var pc domain.ProviderConfig
			if global {
				pc = defaults[name]
			}
			if err := json.Unmarshal(entry, &pc); err != nil {
				r.logger.WarnContext(ctx, "provider settings unreadable, using defaults", "key", key, "provider", name, "error", err)
				if global {
					doc.Providers[name] = defaults[name]
				}
				continue
			}
			pc.APIKey = r.decryptKey(ctx, key, name, pc.APIKey)
			doc.Providers[name] = pc
		}
	}

	if dp := strings.TrimSpace(stored.DefaultProvider); dp != "" {
		doc.DefaultProvider = domain.ProviderName(dp)
	}
	if stored.QuickActions != nil {
		if doc.QuickActions == nil {
			doc.QuickActions = make(map[string]bool, len(stored.QuickActions))
		}
		for k, v := range stored.QuickActions {
			doc.QuickActions[k] = v
		}
	}
	doc.UpdatedAt = stored.UpdatedAt
	return doc, nil
}

// decryptKey blanks the key when it cannot be decrypted.
func (r *ConfigResolver) decryptKey(ctx context.Context, scope string, name domain.ProviderName, blob string) string {
	if !domain.IsSecretSet(blob) {
		return blob
	}
	plain, err := r.cipher.Decrypt(blob)
	if err != nil {
		r.logger.WarnContext(ctx, "api key unreadable, treating as unset", "key", scope, "provider", name, "error", err)
		return ""
	}
	return plain
}

// Load returns the effective settings for caller: the global document with
// the caller's key and model overrides applied. The result is a private
// copy.
func (r *ConfigResolver) Load(ctx context.Context, caller domain.Caller) (*domain.Settings, error) {
	global, err := r.GetGlobal(ctx)
	if err != nil {
		return nil, err
	}
	user, err := r.GetUser(ctx, caller)
	if err != nil {
		return nil, err
	}
	return MergeSettings(global, user), nil
}

// MergeSettings applies user overrides onto global. Only api_key and model
// may be overridden, and only for providers the global document has.
func MergeSettings(global, user *domain.Settings) *domain.Settings {
	eff := global.Clone()
	for name, u := range user.Providers {
		g, ok := eff.Providers[name]
		if !ok {
			continue
		}
		if domain.IsSecretSet(u.APIKey) {
			g.APIKey = u.APIKey
		}
		if u.Model != "" && u.Model != g.Model {
			g.Model = u.Model
		}
		eff.Providers[name] = g
	}

	switch {
	case user.DefaultProvider != "":
		eff.DefaultProvider = user.DefaultProvider
	case eff.DefaultProvider == "":
		eff.DefaultProvider = domain.DefaultProviderName
	}
	return eff
}

// SaveGlobal overwrites the global document. It does not check privileges.
// Providers listed in clearKeys lose their stored key; any other provider
// sent without a key keeps the one already stored.
func (r *ConfigResolver) SaveGlobal(ctx context.Context, doc *domain.Settings, clearKeys ...domain.ProviderName) error {
	return r.save(ctx, domain.GlobalSettingsKey, doc, clearKeys, r.GetGlobal)
}

// SaveUser overwrites the caller's document with the same key rules as SaveGlobal.
func (r *ConfigResolver) SaveUser(ctx context.Context, caller domain.Caller, doc *domain.Settings, clearKeys ...domain.ProviderName) error {
	return r.save(ctx, domain.UserSettingsKey(caller.ID), doc, clearKeys, func(ctx context.Context) (*domain.Settings, error) {
		return r.GetUser(ctx, caller)
	})
}

func (r *ConfigResolver) save(ctx context.Context, key string, doc *domain.Settings, clearKeys []domain.ProviderName,
	current func(context.Context) (*domain.Settings, error)) error {
	unlock, err := r.locks.Lock(ctx, key)
	if err != nil {
		return domain.NewDomainError("ConfigResolver.Save", domain.ErrConfigSave, err.Error())
	}
	defer unlock()

	prev, err := current(ctx)
	if err != nil {
		return err
	}

	cleared := make(map[domain.ProviderName]bool, len(clearKeys))
	for _, name := range clearKeys {
		cleared[name] = true
	}

	out := doc.Clone()
	for name, pc := range out.Providers {
		switch {
		case cleared[name]:
			pc.APIKey = ""
		case !domain.IsSecretSet(pc.APIKey):
			pc.APIKey = prev.Providers[name].APIKey
		}
		if pc.APIKey != "" {
			enc, err := r.cipher.Encrypt(pc.APIKey)
			if err != nil {
				return domain.NewDomainError("ConfigResolver.Save", domain.ErrEncryption, fmt.Sprintf("provider %s", name))
			}
			pc.APIKey = enc
		}
		out.Providers[name] = pc
	}
	out.UpdatedAt = r.now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(out)
	if err != nil {
		return domain.NewDomainError("ConfigResolver.Save", domain.ErrConfigSave, err.Error())
	}
	if err := r.store.Set(ctx, key, string(data)); err != nil {
		return domain.NewDomainError("ConfigResolver.Save", domain.ErrConfigSave, err.Error())
	}

	r.logger.InfoContext(ctx, "settings saved", "key", key, "providers", len(out.Providers))
	return nil
}

