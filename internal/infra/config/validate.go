package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateAuth(cfg, ve)
	validateStore(cfg, ve)
	validateSecrets(cfg, ve)
	validateLLM(cfg, ve)
	validateAudit(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr is required")
	} else if _, _, err := net.SplitHostPort(cfg.Server.Addr); err != nil {
		ve.Add("server.addr %q is not a valid host:port", cfg.Server.Addr)
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		ve.Add("server.max_body_bytes must be > 0")
	}
	rl := cfg.Server.RateLimit
	if rl.Enabled {
		if rl.RequestsPerMin <= 0 {
			ve.Add("server.rate_limit.requests_per_min must be > 0 when rate limiting is enabled")
		}
		if rl.Burst <= 0 {
			ve.Add("server.rate_limit.burst must be > 0 when rate limiting is enabled")
		}
	}
}

var validRoles = map[string]bool{"admin": true, "user": true}

func validateAuth(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool)
	for i, t := range cfg.Auth.Tokens {
		if t.Token == "" {
			ve.Add("auth.tokens[%d].token is required", i)
		} else if seen[t.Token] {
			ve.Add("auth.tokens[%d].token is duplicated", i)
		}
		seen[t.Token] = true
		if t.Caller == "" {
			ve.Add("auth.tokens[%d].caller is required", i)
		}
		for _, r := range t.Roles {
			if !validRoles[r] {
				ve.Add("auth.tokens[%d].roles: unknown role %q", i, r)
			}
		}
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	switch cfg.Store.Backend {
	case "memory":
	case "sqlite":
		if cfg.Store.SQLitePath == "" {
			ve.Add("store.sqlite_path is required for the sqlite backend")
		}
	case "redis":
		if cfg.Store.Redis.URL == "" {
			ve.Add("store.redis.url is required for the redis backend")
		}
	default:
		ve.Add("store.backend %q is not supported (memory, sqlite, redis)", cfg.Store.Backend)
	}
}

func validateSecrets(cfg *Config, ve *ValidationError) {
	p := cfg.Secrets.Platform
	if p.URL == "" {
		return
	}
	if u, err := url.Parse(p.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		ve.Add("secrets.platform.url %q must be an absolute http(s) URL", p.URL)
	}
	if p.Timeout <= 0 {
		ve.Add("secrets.platform.timeout must be > 0")
	}
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.Timeout <= 0 {
		ve.Add("llm.timeout must be > 0")
	}
	cb := cfg.LLM.CircuitBreaker
	if cb.Enabled && cb.MaxFailures == 0 {
		ve.Add("llm.circuit_breaker.max_failures must be > 0 when the breaker is enabled")
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	if cfg.Audit.Path == "" {
		return
	}
	if cfg.Audit.MaxAge < 0 {
		ve.Add("audit.max_age must be >= 0")
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is not supported (noop, stdout)", cfg.Tracer.Exporter)
	}
	if r := cfg.Tracer.SampleRatio; r < 0 || r > 1 {
		ve.Add("tracer.sample_ratio must be between 0 and 1")
	}
}
