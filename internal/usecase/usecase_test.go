package usecase

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"ai-assist/internal/adapter/store"
	"ai-assist/internal/domain"
	"ai-assist/internal/security"
)

// --- Mocks ---

type failingStore struct {
	getErr error
	setErr error
}

func (f *failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, f.getErr
}

func (f *failingStore) Set(context.Context, string, string) error {
	return f.setErr
}

type dispatchCall struct {
	name     domain.ProviderName
	cfg      domain.ProviderConfig
	question string
	extra    map[string]any
}

type mockDispatcher struct {
	mu     sync.Mutex
	answer string
	err    error
	calls  []dispatchCall
}

func (m *mockDispatcher) Dispatch(_ context.Context, name domain.ProviderName, cfg domain.ProviderConfig, question string, extra map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, dispatchCall{name: name, cfg: cfg, question: question, extra: extra})
	return m.answer, m.err
}

type recordingAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
}

func (r *recordingAudit) Log(_ context.Context, e domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingAudit) Close() error { return nil }

func (r *recordingAudit) snapshot() []domain.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditEvent(nil), r.events...)
}

type failingCipher struct{}

func (failingCipher) Encrypt(string) (string, error) { return "", errors.New("boom") }
func (failingCipher) Decrypt(string) (string, error) { return "", domain.ErrDecryption }

// --- Helpers ---

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// requestIDHandler keeps the message and request id of every record.
type requestIDHandler struct {
	mu      sync.Mutex
	records []string
}

func (h *requestIDHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *requestIDHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h *requestIDHandler) WithGroup(string) slog.Handler           { return h }

func (h *requestIDHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Message+"|"+domain.RequestIDFromContext(ctx))
	return nil
}

func testCipher(t *testing.T) *security.AESSecretCipher {
	t.Helper()
	c, err := security.NewAESSecretCipher(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("NewAESSecretCipher: %v", err)
	}
	return c
}

func newTestResolver(t *testing.T) (*ConfigResolver, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	r := NewConfigResolver(s, testCipher(t), noopLogger())
	r.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r, s
}

var (
	alice = domain.Caller{ID: "alice", Roles: []domain.AuthRole{domain.AuthRoleUser}}
	admin = domain.Caller{ID: "root", Roles: []domain.AuthRole{domain.AuthRoleAdmin}}
)

// enabledGlobal returns defaults with openai enabled and keyed.
func enabledGlobal(key string) *domain.Settings {
	doc := domain.DefaultGlobalSettings()
	p := doc.Providers[domain.ProviderOpenAI]
	p.Enabled = true
	p.APIKey = key
	doc.Providers[domain.ProviderOpenAI] = p
	return doc
}
