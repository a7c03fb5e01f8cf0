package main

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ai-assist/internal/infra/config"
)

func TestCheckConfigFile_NotFound(t *testing.T) {
	result := checkConfigFile("/nonexistent/path/config.yaml", nil)(nil)
	if result.Status != StatusWarn {
		t.Errorf("expected WARN for missing config, got %s", result.Status)
	}
}

func TestCheckConfigFile_LoadError(t *testing.T) {
	fn := checkConfigFile("config.yaml", &config.ValidationError{Errors: []string{"server.addr is required"}})
	result := fn(nil)
	if result.Status != StatusFail {
		t.Errorf("expected FAIL for load error, got %s", result.Status)
	}
	if result.Fix == "" {
		t.Error("expected fix suggestion")
	}
}

func TestCheckConfigFile_Valid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("server:\n  addr: 127.0.0.1:9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	result := checkConfigFile(cfgPath, nil)(nil)
	if result.Status != StatusPass {
		t.Errorf("expected PASS, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckAuthTokens(t *testing.T) {
	tests := []struct {
		name   string
		tokens []config.TokenConfig
		want   CheckStatus
	}{
		{"none", nil, StatusFail},
		{"no admin", []config.TokenConfig{{Token: "t", Caller: "alice", Roles: []string{"user"}}}, StatusWarn},
		{"admin", []config.TokenConfig{{Token: "t", Caller: "root", Roles: []string{"user", "admin"}}}, StatusPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.Auth.Tokens = tt.tokens
			if got := checkAuthTokens(cfg).Status; got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestChecks_NilConfig(t *testing.T) {
	for name, fn := range map[string]func(*config.Config) CheckResult{
		"auth":   checkAuthTokens,
		"store":  checkStore,
		"master": checkMasterKey,
	} {
		if got := fn(nil).Status; got != StatusFail {
			t.Errorf("%s: status = %s, want FAIL", name, got)
		}
	}
}

func TestCheckStore_Memory(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store.Backend = "memory"

	result := checkStore(cfg)
	if result.Status != StatusWarn {
		t.Errorf("expected WARN for empty store, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckStore_UnknownBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store.Backend = "etcd"

	if got := checkStore(cfg).Status; got != StatusFail {
		t.Errorf("status = %s, want FAIL", got)
	}
}

func TestCheckMasterKey(t *testing.T) {
	cfg := config.Defaults()
	cfg.Secrets.MasterKeyEnv = "AIASSIST_DOCTOR_TEST_KEY"
	cfg.Secrets.Platform.URL = ""

	t.Setenv("AIASSIST_DOCTOR_TEST_KEY", "")
	if got := checkMasterKey(cfg).Status; got != StatusWarn {
		t.Errorf("fallback: status = %s, want WARN", got)
	}

	t.Setenv("AIASSIST_DOCTOR_TEST_KEY", "from-env")
	result := checkMasterKey(cfg)
	if result.Status != StatusPass || !strings.Contains(result.Message, "env") {
		t.Errorf("env: %+v", result)
	}
}

func TestStatusIcon(t *testing.T) {
	if statusIcon(StatusPass) != "[PASS]" {
		t.Error("wrong icon for PASS")
	}
	if statusIcon(StatusWarn) != "[WARN]" {
		t.Error("wrong icon for WARN")
	}
	if statusIcon(StatusFail) != "[FAIL]" {
		t.Error("wrong icon for FAIL")
	}
}

func TestRunChecksSummary(t *testing.T) {
	checks := []Check{
		{Name: "ok", Fn: func(*config.Config) CheckResult { return CheckResult{Status: StatusPass, Message: "fine"} }},
		{Name: "meh", Fn: func(*config.Config) CheckResult { return CheckResult{Status: StatusWarn, Message: "hmm"} }},
		{Name: "bad", Fn: checkConfigFile("x", errors.New("boom"))},
	}

	var buf bytes.Buffer
	pass, warn, fail := runChecks(&buf, nil, checks)
	if pass != 1 || warn != 1 || fail != 1 {
		t.Errorf("counts = %d/%d/%d", pass, warn, fail)
	}
	if !strings.Contains(buf.String(), "[FAIL] bad: config error: boom") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRunEncryptValue(t *testing.T) {
	t.Setenv("AIASSIST_CONFIG_KEY", "")
	if err := runEncryptValue([]string{"x"}); err == nil {
		t.Error("expected error without AIASSIST_CONFIG_KEY")
	}

	t.Setenv("AIASSIST_CONFIG_KEY", "passphrase")
	if err := runEncryptValue(nil); err == nil {
		t.Error("expected usage error without plaintext")
	}
	if err := runEncryptValue([]string{"s3cr3t"}); err != nil {
		t.Errorf("encrypt: %v", err)
	}
}

func TestInitAudit(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	audit, err := initAudit(config.AuditConfig{}, log)
	if err != nil || audit != nil {
		t.Fatalf("disabled audit = %v, %v", audit, err)
	}

	if _, err := initAudit(config.AuditConfig{Path: filepath.Join(t.TempDir(), "a.jsonl"), MaxSize: "huge"}, log); err == nil {
		t.Error("expected error for bad max_size")
	}

	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	audit, err = initAudit(config.AuditConfig{Path: path, MaxSize: "10MB"}, log)
	if err != nil {
		t.Fatalf("initAudit: %v", err)
	}
	defer audit.Close()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("audit file not created: %v", err)
	}
}
