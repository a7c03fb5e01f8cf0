package domain

import "context"

// Settings document keys in the ConfigStore.
const (
	GlobalSettingsKey     = "global"
	userSettingsKeyPrefix = "user:"
)

// UserSettingsKey returns the store key for a caller's settings document.
func UserSettingsKey(callerID string) string {
	return userSettingsKeyPrefix + callerID
}

// ConfigStore persists opaque settings documents by key.
// Get reports found=false when the key has never been written.
type ConfigStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

// SecretCipher protects API keys at rest. Empty and masked values pass
// through unchanged in both directions.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
}

// MacroSource looks up a global macro in the monitoring platform.
// ok is false when the macro is not defined.
type MacroSource interface {
	LookupMacro(ctx context.Context, name string) (value string, ok bool, err error)
}
