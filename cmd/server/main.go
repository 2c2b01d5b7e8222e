package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/DukeRupert/quotaledger/internal"
	"github.com/DukeRupert/quotaledger/internal/billing"
	"github.com/DukeRupert/quotaledger/internal/cache"
	"github.com/DukeRupert/quotaledger/internal/catalog"
	"github.com/DukeRupert/quotaledger/internal/handler"
	"github.com/DukeRupert/quotaledger/internal/metrics"
	"github.com/DukeRupert/quotaledger/internal/middleware"
	"github.com/DukeRupert/quotaledger/internal/repository"
	"github.com/DukeRupert/quotaledger/internal/service"
	"github.com/DukeRupert/quotaledger/internal/storage"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	store := repository.NewStore(db)

	planCatalog, err := loadCatalog(cfg.PlanCatalogPath)
	if err != nil {
		return fmt.Errorf("plan catalog: %w", err)
	}

	healthChecks := map[string]handler.HealthCheck{
		"database": db.PingContext,
	}

	// Optional Redis plan cache
	var planCache cache.PlanCache = cache.NopPlanCache{}
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cache.RedisConfig{
			URL:            cfg.RedisURL,
			RetryAttempts:  cfg.RedisRetryAttempts,
			RetryInterval:  cfg.RedisRetryInterval,
			ConnectTimeout: cfg.RedisConnectTimeout,
		})
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer closeRedis(client, logger)

		planCache = cache.NewRedisPlanCache(client, cfg.PlanCacheTTL)
		healthChecks["redis"] = cache.Healthcheck(client)
		logger.Info("Plan cache enabled", "ttl", cfg.PlanCacheTTL)
	}

	// Initialize services
	plans := service.NewPlanService(store, planCatalog, planCache, logger)
	if err := plans.EnsureDefaultPlans(ctx); err != nil {
		return fmt.Errorf("seed plans: %w", err)
	}

	var (
		checkout service.CheckoutProvider
		verifier handler.WebhookVerifier
	)
	if cfg.BillingEnabled() {
		stripeService := billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.BaseURL)
		checkout = stripeService
		verifier = stripeService
		logger.Info("Stripe checkout enabled")
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, subscriptions activate without payment")
	}

	users := service.NewUserService(store, logger)
	ledger := service.NewLedgerService(store, plans, logger, nil)
	subscriptions := service.NewSubscriptionService(store, plans, checkout, logger, nil)

	fileStore, err := storage.New(cfg.StorageProvider,
		storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		},
		storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	// Initialize middleware
	isSecure := cfg.Env != "development"
	authFailures := middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow, logger)
	defer authFailures.Stop()

	authMw := middleware.NewAuthMiddleware(users, authFailures, logger)
	requestLogging := middleware.NewRequestLoggingMiddleware(logger)
	securityHeaders := middleware.NewSecurityHeadersMiddleware(isSecure)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	if cfg.MetricsUsername == "" {
		logger.Warn("METRICS_USERNAME not set, /metrics is unprotected")
	}

	meter := handler.NewMeter(ledger, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	if cfg.StorageProvider == storage.ProviderLocal {
		files := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", files))
	}

	requireUser := authMw.Authenticated

	handler.NewHealthHandler(healthChecks, logger).RegisterRoutes(mux)
	handler.NewPlanHandler(plans, logger).RegisterRoutes(mux)
	handler.NewSubscriptionHandler(subscriptions, logger).RegisterRoutes(mux, requireUser)
	handler.NewUsageHandler(ledger, logger).RegisterRoutes(mux, requireUser)
	handler.NewUploadHandler(fileStore, cfg.UploadMaxBytes, logger).RegisterRoutes(mux, requireUser, meter)
	handler.NewWebhookHandler(verifier, subscriptions, logger).RegisterRoutes(mux)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handler.NotFoundResponse(w, r, logger)
	})

	root := middleware.Stack(
		requestLogging.Handler,
		metrics.Middleware,
		securityHeaders.Handler,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-sigChan:
	}
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// loadCatalog reads the plan catalog from path, or the embedded default.
func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func closeRedis(client *redis.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Error("Redis close failed", "error", err)
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
