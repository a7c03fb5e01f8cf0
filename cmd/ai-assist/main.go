package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"ai-assist/internal/adapter/gateway"
	"ai-assist/internal/adapter/llm"
	"ai-assist/internal/adapter/platform"
	"ai-assist/internal/adapter/store"
	"ai-assist/internal/domain"
	"ai-assist/internal/infra/config"
	"ai-assist/internal/infra/logger"
	"ai-assist/internal/infra/middleware"
	"ai-assist/internal/infra/tracer"
	"ai-assist/internal/security"
	"ai-assist/internal/usecase"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "encrypt-value":
		if err := runEncryptValue(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-value: %v\n", err)
			os.Exit(1)
		}
	case "doctor":
		if err := runDoctor(); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'ai-assist --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`ai-assist - LLM query gateway for the monitoring platform

USAGE:
    ai-assist [COMMAND] [FLAGS]

COMMANDS:
    encrypt-value TEXT   Print an enc: value for config.yaml (needs AIASSIST_CONFIG_KEY)
    doctor               Run health checks on config, store and master key

    (no command) - Run the API server

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml (optional, defaults apply)
    Environment: AIASSIST_* variables override config
    Master key:  AIASSIST_MASTER_KEY, else the {$AI_MASTER_KEY} platform macro

EXAMPLES:
    ai-assist --config /etc/ai-assist/config.yaml
    AIASSIST_CONFIG_KEY=... ai-assist encrypt-value s3cr3t-token
    ai-assist doctor`)
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("AIASSIST_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func runEncryptValue(args []string) error {
	if len(args) != 1 || args[0] == "" {
		return fmt.Errorf("usage: ai-assist encrypt-value <plaintext>")
	}
	passphrase := os.Getenv("AIASSIST_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("AIASSIST_CONFIG_KEY is not set")
	}
	enc, err := config.EncryptValue(args[0], passphrase)
	if err != nil {
		return err
	}
	fmt.Println("enc:" + enc)
	return nil
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. Settings store and master key
	st, storeCloser, err := store.New(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer storeCloser()

	cipher, err := initCipher(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("security: %w", err)
	}
	defer cipher.Zeroize()

	// 4. Services
	resolver := usecase.NewConfigResolver(st, cipher, log)
	llmGateway := llm.NewGateway(llm.NewDefaultRegistry(log), llm.NewHTTPClient(cfg.LLM), cfg.LLM.CircuitBreaker, log)
	queries := usecase.NewQueryService(resolver, llmGateway, log)
	settings := usecase.NewSettingsService(resolver, log)

	audit, err := initAudit(cfg.Audit, log)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if audit != nil {
		defer audit.Close()
		queries.SetAuditLogger(audit)
		settings.SetAuditLogger(audit)
	}

	deps := gateway.HandlerDeps{
		Queries:  queries,
		Settings: settings,
		Logger:   log,
	}

	// 5. HTTP / WebSocket server
	srv := gateway.NewServer(gateway.NewStaticTokenAuth(cfg.Auth.Tokens), cfg.Server.Addr, log,
		gateway.WithAllowedOrigins(cfg.Server.AllowedOrigins...))
	srv.Use(middleware.RequestID, middleware.SecurityHeaders)
	if rl := cfg.Server.RateLimit; rl.Enabled {
		srv.Use(middleware.RateLimitWithConfig(ctx, middleware.RateLimitConfig{
			RequestsPerMin: rl.RequestsPerMin,
			BurstSize:      rl.Burst,
			TrustedProxies: rl.TrustedProxies,
		}))
	}
	srv.Use(middleware.MaxBody(cfg.Server.MaxBodyBytes))

	if err := gateway.RegisterRESTHandlers(srv, deps); err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}
	if err := gateway.RegisterDefaultHandlers(srv, deps); err != nil {
		return fmt.Errorf("register rpc handlers: %w", err)
	}

	log.Info("ai-assist starting", "addr", cfg.Server.Addr, "store", cfg.Store.Backend)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	log.Info("ai-assist stopped")
	return nil
}

// initAudit opens the audit trail and applies retention once. It returns
// nil when no path is configured.
func initAudit(cfg config.AuditConfig, log *slog.Logger) (*security.FileAuditLogger, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	maxSize, err := security.ParseRetentionMaxSize(cfg.MaxSize)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	audit, err := security.NewFileAuditLogger(cfg.Path)
	if err != nil {
		return nil, err
	}
	audit.SetRetention(security.RetentionPolicy{MaxAge: cfg.MaxAge, MaxSize: maxSize})
	removed, err := audit.EnforceRetention()
	if err != nil {
		log.Warn("audit retention failed", "error", err)
	} else if removed > 0 {
		log.Info("audit retention applied", "removed", removed)
	}
	return audit, nil
}

// initCipher derives the master key and builds the secret cipher.
func initCipher(ctx context.Context, cfg *config.Config, log *slog.Logger) (*security.AESSecretCipher, error) {
	key, source := security.ResolveMasterKey(ctx, keyChainConfig(cfg), macroSource(cfg, log), log)
	if source == security.KeySourceFallback {
		log.Warn("master key derived from installation fallback; set " + cfg.Secrets.MasterKeyEnv + " for production")
	} else {
		log.Info("master key resolved", "source", source)
	}
	return security.NewAESSecretCipher(key)
}

func keyChainConfig(cfg *config.Config) security.KeyChainConfig {
	return security.KeyChainConfig{
		EnvVar:    cfg.Secrets.MasterKeyEnv,
		MacroName: cfg.Secrets.MacroName,
		DBName:    cfg.Secrets.Install.DBName,
		DBUser:    cfg.Secrets.Install.DBUser,
	}
}

// macroSource returns nil when no platform API is configured.
func macroSource(cfg *config.Config, log *slog.Logger) domain.MacroSource {
	if c := platform.NewClient(cfg.Secrets.Platform, log); c != nil {
		return c
	}
	return nil
}
