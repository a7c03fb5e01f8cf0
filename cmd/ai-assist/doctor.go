package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"ai-assist/internal/adapter/store"
	"ai-assist/internal/domain"
	"ai-assist/internal/infra/config"
	"ai-assist/internal/security"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "API tokens", Fn: checkAuthTokens},
		{Name: "Settings store", Fn: checkStore},
		{Name: "Master key", Fn: checkMasterKey},
	}

	fmt.Println("ai-assist doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	pass, warn, fail := runChecks(os.Stdout, cfg, checks)

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn == 0 {
		fmt.Println("\nAll checks passed! ai-assist is ready to run.")
	}
	return nil
}

func runChecks(w io.Writer, cfg *config.Config, checks []Check) (pass, warn, fail int) {
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}
	return pass, warn, fail
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and loaded cleanly.
// A missing file is only a warning because defaults plus env work.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and file permissions (0600)",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults and AIASSIST_* env", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

func checkAuthTokens(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	var admins int
	for _, tok := range cfg.Auth.Tokens {
		for _, r := range tok.Roles {
			if r == string(domain.AuthRoleAdmin) {
				admins++
				break
			}
		}
	}
	switch {
	case len(cfg.Auth.Tokens) == 0:
		return CheckResult{
			Status:  StatusFail,
			Message: "no API tokens configured, every request will be rejected",
			Fix:     "Add auth.tokens to config.yaml or set AIASSIST_AUTH_TOKEN",
		}
	case admins == 0:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%d token(s), none with the admin role; global settings are read-only", len(cfg.Auth.Tokens)),
		}
	default:
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%d token(s), %d admin", len(cfg.Auth.Tokens), admins),
		}
	}
}

// checkStore opens the configured backend and reads the global document.
func checkStore(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, closer, err := store.New(ctx, cfg.Store)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s store unavailable: %v", cfg.Store.Backend, err),
		}
	}
	defer closer()

	_, found, err := st.Get(ctx, domain.GlobalSettingsKey)
	switch {
	case err != nil:
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("read global settings: %v", err),
		}
	case !found:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s store reachable, no global settings saved yet", cfg.Store.Backend),
			Fix:     "PUT /api/v1/settings/global with an admin token",
		}
	default:
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s store reachable, global settings present", cfg.Store.Backend),
		}
	}
}

// checkMasterKey reports which source the master key would come from.
func checkMasterKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, source := security.ResolveMasterKey(ctx, keyChainConfig(cfg), macroSource(cfg, quiet), quiet)
	if source == security.KeySourceFallback {
		return CheckResult{
			Status:  StatusWarn,
			Message: "master key uses the installation fallback",
			Fix:     fmt.Sprintf("Set %s or define %s in the platform", cfg.Secrets.MasterKeyEnv, cfg.Secrets.MacroName),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("master key from %s", source),
	}
}
