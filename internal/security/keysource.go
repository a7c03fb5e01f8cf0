package security

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"os"

	"ai-assist/internal/domain"
)

// KeySource names where the master key came from.
type KeySource string

const (
	KeySourceEnv      KeySource = "env"
	KeySourceMacro    KeySource = "macro"
	KeySourceFallback KeySource = "fallback"
)

const (
	fallbackSalt   = "ai_assist_fallback"
	defaultDBName  = "ai_assist_default"
	defaultDBUser  = "ai_assist_user"
	DefaultEnvVar  = "AIASSIST_MASTER_KEY"
	DefaultMacroID = "{$AI_MASTER_KEY}"
)

// KeyChainConfig configures master key derivation.
type KeyChainConfig struct {
	EnvVar    string // environment variable holding the master secret
	MacroName string // platform macro holding the master secret
	DBName    string // installation identifiers for the fallback key
	DBUser    string
}

// ResolveMasterKey derives the 32-byte master key. The first available
// source wins: env secret, platform macro, then the installation fallback.
// A nil macros skips the macro step. Macro lookup failures are logged
// and never abort derivation.
func ResolveMasterKey(ctx context.Context, cfg KeyChainConfig, macros domain.MacroSource, logger *slog.Logger) ([]byte, KeySource) {
	envVar := cfg.EnvVar
	if envVar == "" {
		envVar = DefaultEnvVar
	}
	if secret := os.Getenv(envVar); secret != "" {
		return hashKey(secret), KeySourceEnv
	}

	if macros != nil {
		name := cfg.MacroName
		if name == "" {
			name = DefaultMacroID
		}
		value, ok, err := macros.LookupMacro(ctx, name)
		switch {
		case err != nil:
			logger.WarnContext(ctx, "master key macro lookup failed, using fallback", "macro", name, "error", err)
		case ok && value != "":
			return hashKey(value), KeySourceMacro
		default:
			logger.DebugContext(ctx, "master key macro not defined", "macro", name)
		}
	}

	return fallbackKey(cfg.DBName, cfg.DBUser), KeySourceFallback
}

// fallbackKey is stable for a given installation so stored keys survive restarts.
func fallbackKey(dbName, dbUser string) []byte {
	if dbName == "" {
		dbName = defaultDBName
	}
	if dbUser == "" {
		dbUser = defaultDBUser
	}
	return hashKey(fallbackSalt + dbName + dbUser)
}

func hashKey(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}
