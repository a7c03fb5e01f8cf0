package security

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"log/slog"
	"os"
	"testing"

	"ai-assist/internal/domain"
)

type stubMacros struct {
	value string
	ok    bool
	err   error
	calls int
}

func (s *stubMacros) LookupMacro(_ context.Context, _ string) (string, bool, error) {
	s.calls++
	return s.value, s.ok, s.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func sha(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

func TestResolveMasterKeyEnvWins(t *testing.T) {
	t.Setenv("TEST_MASTER_KEY", "from-env")
	macros := &stubMacros{value: "from-macro", ok: true}

	key, src := ResolveMasterKey(context.Background(), KeyChainConfig{EnvVar: "TEST_MASTER_KEY"}, macros, quietLogger())

	if src != KeySourceEnv {
		t.Errorf("source = %q, want %q", src, KeySourceEnv)
	}
	if !bytes.Equal(key, sha("from-env")) {
		t.Error("key should be sha256 of env secret")
	}
	if macros.calls != 0 {
		t.Errorf("macro lookup called %d times, want 0", macros.calls)
	}
}

func TestResolveMasterKeyMacro(t *testing.T) {
	t.Setenv("TEST_MASTER_KEY", "")
	macros := &stubMacros{value: "from-macro", ok: true}

	key, src := ResolveMasterKey(context.Background(), KeyChainConfig{EnvVar: "TEST_MASTER_KEY"}, macros, quietLogger())

	if src != KeySourceMacro {
		t.Errorf("source = %q, want %q", src, KeySourceMacro)
	}
	if !bytes.Equal(key, sha("from-macro")) {
		t.Error("key should be sha256 of macro value")
	}
}

func TestResolveMasterKeyMacroErrorFallsThrough(t *testing.T) {
	t.Setenv("TEST_MASTER_KEY", "")
	macros := &stubMacros{err: errors.New("platform unreachable")}
	cfg := KeyChainConfig{EnvVar: "TEST_MASTER_KEY", DBName: "monitoring", DBUser: "svc"}

	key, src := ResolveMasterKey(context.Background(), cfg, macros, quietLogger())

	if src != KeySourceFallback {
		t.Errorf("source = %q, want %q", src, KeySourceFallback)
	}
	if !bytes.Equal(key, sha(fallbackSalt+"monitoring"+"svc")) {
		t.Error("fallback key mismatch")
	}
}

type requestIDHandler struct{ ids []string }

func (h *requestIDHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *requestIDHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h *requestIDHandler) WithGroup(string) slog.Handler           { return h }
func (h *requestIDHandler) Handle(ctx context.Context, _ slog.Record) error {
	h.ids = append(h.ids, domain.RequestIDFromContext(ctx))
	return nil
}

func TestResolveMasterKeyMacroErrorLogsWithContext(t *testing.T) {
	t.Setenv("TEST_MASTER_KEY", "")
	h := &requestIDHandler{}
	ctx := domain.ContextWithRequestID(context.Background(), "01HSTARTUP")

	ResolveMasterKey(ctx, KeyChainConfig{EnvVar: "TEST_MASTER_KEY"}, &stubMacros{err: errors.New("down")}, slog.New(h))

	if len(h.ids) != 1 || h.ids[0] != "01HSTARTUP" {
		t.Errorf("logged request ids = %v, want [01HSTARTUP]", h.ids)
	}
}

func TestResolveMasterKeyMacroUndefined(t *testing.T) {
	t.Setenv("TEST_MASTER_KEY", "")
	macros := &stubMacros{ok: false}

	_, src := ResolveMasterKey(context.Background(), KeyChainConfig{EnvVar: "TEST_MASTER_KEY"}, macros, quietLogger())
	if src != KeySourceFallback {
		t.Errorf("source = %q, want %q", src, KeySourceFallback)
	}
}

func TestFallbackKeyIsDeterministic(t *testing.T) {
	t.Setenv("TEST_MASTER_KEY", "")
	cfg := KeyChainConfig{EnvVar: "TEST_MASTER_KEY"}

	k1, _ := ResolveMasterKey(context.Background(), cfg, nil, quietLogger())
	k2, _ := ResolveMasterKey(context.Background(), cfg, nil, quietLogger())

	if !bytes.Equal(k1, k2) {
		t.Error("fallback key should be stable across calls")
	}
	if !bytes.Equal(k1, sha(fallbackSalt+defaultDBName+defaultDBUser)) {
		t.Error("fallback should use default installation identifiers")
	}
	if len(k1) != 32 {
		t.Errorf("len(key) = %d, want 32", len(k1))
	}
}
