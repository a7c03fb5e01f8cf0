// Package store provides domain.ConfigStore backends for settings documents.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ai-assist/internal/domain"
	"ai-assist/internal/infra/config"
)

// New builds the store selected by cfg.Backend. The returned closer
// releases the backend's connections.
func New(ctx context.Context, cfg config.StoreConfig) (domain.ConfigStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "memory", "":
		return NewMemoryStore(), noop, nil
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, nil, fmt.Errorf("create store dir: %w", err)
			}
		}
		s, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "redis":
		s, err := NewRedisStore(ctx, cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}
