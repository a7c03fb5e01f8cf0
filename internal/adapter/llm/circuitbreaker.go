package llm

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"ai-assist/internal/domain"
	"ai-assist/internal/infra/config"
	"ai-assist/internal/security"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// breakerSet keeps one circuit breaker per provider. Breakers are created
// lazily on first use.
type breakerSet struct {
	mu       sync.Mutex
	cfg      config.CircuitBreakerConfig
	breakers map[domain.ProviderName]*gobreaker.CircuitBreaker[[]byte]
	logger   *slog.Logger
}

// newBreakerSet returns nil when the breaker is disabled.
func newBreakerSet(cfg config.CircuitBreakerConfig, logger *slog.Logger) *breakerSet {
	if !cfg.Enabled {
		return nil
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultCBMaxFailures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultCBTimeout
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultCBInterval
	}
	return &breakerSet{
		cfg:      cfg,
		breakers: make(map[domain.ProviderName]*gobreaker.CircuitBreaker[[]byte]),
		logger:   logger,
	}
}

func (s *breakerSet) get(name domain.ProviderName) *gobreaker.CircuitBreaker[[]byte] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[name]; ok {
		return cb
	}

	maxFailures := s.cfg.MaxFailures
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "llm:" + string(name),
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    s.cfg.Interval,
		Timeout:     s.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		IsSuccessful: func(err error) bool {
			return !tripsBreaker(err)
		},
	})
	s.breakers[name] = cb
	return cb
}

// execute runs fn through the provider's breaker. An open breaker fails
// fast with ErrTransport.
func (s *breakerSet) execute(name domain.ProviderName, fn func() ([]byte, error)) ([]byte, error) {
	body, err := s.get(name).Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.NewDomainError("llm.breaker", domain.ErrTransport,
			"provider "+string(name)+" circuit open: "+err.Error())
	}
	return body, err
}

// state returns the breaker state for name, closed when none exists yet.
func (s *breakerSet) state(name domain.ProviderName) gobreaker.State {
	s.mu.Lock()
	cb, ok := s.breakers[name]
	s.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}

// tripsBreaker reports whether err counts as a provider failure. Client
// errors such as a bad key and caller cancellations do not count.
func tripsBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, domain.ErrTransport) {
		return true
	}
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// --- Connection Pooling ---

// Default connection pool settings for a handful of provider hosts.
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 20
	defaultIdleConnTimeout     = 120 * time.Second
	defaultRequestTimeout      = 30 * time.Second
)

// NewPooledTransport creates an http.Transport with connection pooling
// sized by pool.
func NewPooledTransport(connTimeout time.Duration, pool config.PoolConfig) *http.Transport {
	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}
	maxIdlePerHost := pool.MaxIdleConnsPerHost
	if maxIdlePerHost <= 0 {
		maxIdlePerHost = defaultMaxIdleConnsPerHost
	}
	maxConnsPerHost := pool.MaxConnsPerHost
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = defaultMaxConnsPerHost
	}
	idleTimeout := pool.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleConnTimeout
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        maxIdle,
		MaxIdleConnsPerHost: maxIdlePerHost,
		MaxConnsPerHost:     maxConnsPerHost,
		IdleConnTimeout:     idleTimeout,
		ForceAttemptHTTP2:   true,
	}
}

// NewHTTPClient creates the client shared by all adapters. The whole
// request, body included, is bounded by cfg.Timeout.
func NewHTTPClient(cfg config.LLMConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	transport := NewPooledTransport(timeout, cfg.Pool)
	if cfg.BlockPrivateNetworks {
		transport.DialContext = security.GuardDialContext(transport.DialContext)
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
