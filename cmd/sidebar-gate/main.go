package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	filecfg "github.com/tjfontaine/sidebar-gate/internal/adapters/config/file"
	"github.com/tjfontaine/sidebar-gate/internal/adapters/events/hub"
	"github.com/tjfontaine/sidebar-gate/internal/adapters/host/missive"
	"github.com/tjfontaine/sidebar-gate/internal/analysis"
	"github.com/tjfontaine/sidebar-gate/internal/api/openai"
	"github.com/tjfontaine/sidebar-gate/internal/audit"
	"github.com/tjfontaine/sidebar-gate/internal/config"
	"github.com/tjfontaine/sidebar-gate/internal/gate"
	"github.com/tjfontaine/sidebar-gate/internal/hostcheck"
	"github.com/tjfontaine/sidebar-gate/internal/pkg/safehttp"
	"github.com/tjfontaine/sidebar-gate/internal/policy"
	"github.com/tjfontaine/sidebar-gate/internal/ratelimit"
	"github.com/tjfontaine/sidebar-gate/internal/server"
	"github.com/tjfontaine/sidebar-gate/internal/storage"
	"github.com/tjfontaine/sidebar-gate/internal/telemetry"
	"github.com/tjfontaine/sidebar-gate/internal/tenant"
)

var version = "dev"

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfgProvider, err := filecfg.NewProvider(*configPath, logger)
	if err != nil {
		log.Fatalf("Failed to create config provider: %v", err)
	}
	cfg, err := cfgProvider.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Tracing {
		shutdown, err := telemetry.InitTracer("sidebar-gate", version, nil, logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	auditLog := audit.New(
		audit.WithCapacity(cfg.Gate.Audit.Capacity),
		audit.WithKey(cfg.Gate.Audit.Key),
		audit.WithStore(store),
		audit.WithLogger(logger),
	)
	// Runs before store.Close so the last snapshot reaches the store.
	defer auditLog.Close()
	if err := auditLog.Load(ctx); err != nil {
		// A corrupt or unreachable log starts empty rather than blocking startup.
		logger.Warn("failed to restore audit log", slog.String("error", err.Error()))
	}

	timeoutPolicy, err := policy.ForTimeout(cfg.Gate.Tenant.TimeoutPolicy)
	if err != nil {
		log.Fatalf("Invalid tenant policy: %v", err)
	}
	verifier, err := tenant.NewVerifier(cfg.Gate.Tenant.AllowHash,
		tenant.WithTimeout(cfg.Gate.Tenant.Timeout),
		tenant.WithRestriction(cfg.Gate.Tenant.Restriction),
		tenant.WithPolicy(timeoutPolicy),
		tenant.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create tenant verifier: %v", err)
	}

	limiter := ratelimit.New(cfg.Gate.RateLimit.MaxRequests, cfg.Gate.RateLimit.Window,
		ratelimit.WithCooldown(cfg.Gate.RateLimit.Cooldown))

	g, err := gate.New(
		gate.WithValidator(hostcheck.New(rulesFromConfig(cfg.Gate.Rules))),
		gate.WithLimiter(limiter),
		gate.WithVerifier(verifier),
		gate.WithAuditLog(auditLog),
		gate.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create gate: %v", err)
	}

	events := hub.New(logger)
	defer events.Close()

	if cfg.Host.APIKey == "" {
		logger.Warn("host API key not set; conversation lookups will fail")
	}
	upstream := otelhttp.NewTransport(safehttp.NewTransport(cfg.Server.AllowPrivateUpstreams))

	hostClient := missive.NewClient(cfg.Host.APIKey,
		missive.WithBaseURL(cfg.Host.BaseURL),
		missive.WithHTTPClient(&http.Client{Transport: upstream, Timeout: cfg.Host.Timeout}))
	integration, err := missive.NewIntegration(events, hostClient)
	if err != nil {
		log.Fatalf("Failed to create host integration: %v", err)
	}

	deps := server.Deps{
		Gate:        g,
		Events:      events,
		Integration: integration,
	}

	if cfg.LLM.APIKey != "" {
		llm := openai.NewClient(cfg.LLM.APIKey,
			openai.WithBaseURL(cfg.LLM.BaseURL),
			openai.WithHTTPClient(&http.Client{Transport: upstream, Timeout: 2 * time.Minute}))
		svc, err := analysis.NewService(g, integration, llm,
			analysis.WithModel(cfg.LLM.Model),
			analysis.WithMaxInputTokens(cfg.LLM.MaxInputTokens),
			analysis.WithLogger(logger))
		if err != nil {
			log.Fatalf("Failed to create analysis service: %v", err)
		}
		deps.Analysis = svc
	} else {
		logger.Warn("LLM API key not set; /v1/analyze disabled")
	}

	srv, err := server.New(cfg.Server.Port, cfg.Server.RequestTimeout, logger, deps)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Rule edits apply without a restart. Limits, tenant and storage settings
	// are read once at startup.
	if err := cfgProvider.Watch(ctx, func(next *config.Config) {
		g.SetValidator(hostcheck.New(rulesFromConfig(next.Gate.Rules)))
		logger.Info("host check rules reloaded")
	}); err != nil {
		logger.Warn("config hot-reload disabled", slog.String("error", err.Error()))
	}
	defer cfgProvider.Close()

	logger.Info("sidebar gate started",
		slog.String("version", version),
		slog.String("storage", cfg.Storage.Type),
		slog.Bool("analysis", deps.Analysis != nil))

	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("sidebar gate shutdown complete")
}

func rulesFromConfig(r config.RulesConfig) hostcheck.Rules {
	return hostcheck.Rules{
		HostDomains: r.HostDomains,
		DevOrigins:  r.DevOrigins,
		ClientAllow: r.ClientAllow,
		ClientDeny:  r.ClientDeny,
	}
}
