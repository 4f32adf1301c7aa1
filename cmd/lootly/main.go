package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lootly/lootly/internal/config"
	"github.com/lootly/lootly/internal/ebay"
	"github.com/lootly/lootly/internal/health"
	"github.com/lootly/lootly/internal/mcp"
	"github.com/lootly/lootly/internal/metrics"
	"github.com/lootly/lootly/internal/oauth"
	"github.com/lootly/lootly/internal/ratelimit"
	"github.com/lootly/lootly/internal/server"
	"github.com/lootly/lootly/internal/tools/account"
	"github.com/lootly/lootly/internal/tools/browse"
	"github.com/lootly/lootly/internal/tools/consent"
	"github.com/lootly/lootly/pkg/tokenstore"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	demoMode := !cfg.CredentialsConfigured()
	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Bool("sandbox", cfg.SandboxMode).
		Str("marketplace", cfg.MarketplaceID).
		Bool("demo_mode", demoMode).
		Msg("starting lootly")

	if demoMode {
		logger.Warn().Msg("EBAY_APP_ID / EBAY_CERT_ID not set — browse tools serve the embedded demo catalog")
	}

	// Prometheus metrics
	prom := metrics.New()

	// Token store
	store, err := tokenstore.NewFileStore(cfg.TokenStorePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.TokenStorePath).Msg("failed to open token store")
	}

	// OAuth manager
	oauthMgr := oauth.NewManager(oauth.Config{
		ClientID:     cfg.AppID,
		ClientSecret: cfg.CertID,
		RedirectURI:  cfg.RedirectURI,
		TokenURL:     cfg.TokenURL(),
		AuthorizeURL: cfg.AuthorizeURL(),
		MaxRetries:   cfg.MaxRetries,
		BaseDelay:    cfg.RetryBaseDelay,
		Timeout:      cfg.RequestTimeout,
	}, store, prom, logger)

	// Daily eBay call budget and REST client
	limiter := ratelimit.NewDailyLimiter(cfg.RateLimitPerDay, logger)
	client := ebay.NewClient(ebay.ClientConfig{
		BaseURL:       cfg.BaseURL(),
		MarketplaceID: cfg.MarketplaceID,
		MaxRetries:    cfg.MaxRetries,
		Timeout:       cfg.RequestTimeout,
	}, oauthMgr, limiter, prom, logger)
	defer client.Close()

	// Tool registry
	registry := mcp.NewRegistry()
	consent.Register(registry, oauthMgr)
	browse.Register(registry, client, demoMode)
	account.Register(registry, client, cfg.MarketplaceID)

	// Health checker
	checker := health.NewChecker(logger)
	checker.Register("credentials", func(ctx context.Context) health.Status {
		if cfg.CredentialsConfigured() {
			return health.StatusOK
		}
		return health.StatusDegraded
	})
	checker.Register("token_store", func(ctx context.Context) health.Status {
		if _, err := store.UserToken(cfg.AppID); err != nil &&
			!errors.Is(err, tokenstore.ErrTokenNotFound) {
			return health.StatusDown
		}
		return health.StatusOK
	})

	// HTTP server
	handlers := server.NewHandlers(registry, oauthMgr, client, checker, prom, logger)
	srv := server.NewServer(server.ServerConfig{
		ListenAddr: cfg.ListenAddr,
		AuthConfig: server.AuthConfig{
			Mode:      cfg.AuthMode,
			APIKey:    cfg.APIKey,
			JWTSecret: cfg.JWTSecret,
		},
		RateLimit: server.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
		CORSOrigins: cfg.CORSOrigins,
	}, handlers, checker, prom, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}

	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	logger.Info().Msg("lootly stopped")
}
