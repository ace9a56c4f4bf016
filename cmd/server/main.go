package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appaccess "github.com/adamj-ops/everyday-properties/internal/application/access"
	identityapp "github.com/adamj-ops/everyday-properties/internal/application/identity"
	"github.com/adamj-ops/everyday-properties/internal/domain/access"
	"github.com/adamj-ops/everyday-properties/internal/domain/identity"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/auth"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/cache"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/config"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/event"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/logger"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/persistence"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/persistence/session"
	"github.com/adamj-ops/everyday-properties/internal/infrastructure/telemetry"
	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/handler"
	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/middleware"
	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	baseLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	// Telemetry comes first so the logger can be bridged into it
	providers, err := telemetry.Setup(ctx, cfg.Telemetry, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log := providers.Bridge(baseLog, logger.ParseLevel(cfg.Log.Level))
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting Everyday Properties API",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database, retried until ConnectTimeout
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithSQL(cfg.Telemetry.DBLogFullSQL),
	)
	db, err := persistence.NewDatabase(ctx, &cfg.Database,
		persistence.WithGormLogger(gormLog),
		persistence.WithLogger(log),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := telemetry.RegisterDBTracing(db.DB, cfg.Database.DBName, cfg.Telemetry, providers.TracerProvider()); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.Bool("row_security", cfg.Database.RowSecurity))

	// Every tenant table is guarded: statements outside a bound unit of
	// work fail, statements inside one are scoped to its organization.
	catalog := access.DefaultCatalog()
	if err := session.NewGuard(session.CatalogTables(catalog)).Register(db.DB); err != nil {
		log.Fatal("Failed to register tenant guard", zap.Error(err))
	}
	syncer := session.NewSyncer(db.DB, cfg.Database.RowSecurity, log)

	// Repositories
	orgRepo := persistence.NewGormOrganizationRepository(db.DB)
	identityRepo := persistence.NewGormIdentityRepository(db.DB)
	recordStorage := persistence.NewGormRecordStorage(db.DB)

	// Access control
	accessMetrics, err := telemetry.NewAccessMetrics(providers.Meter())
	if err != nil {
		log.Fatal("Failed to create access metrics", zap.Error(err))
	}
	propagator := appaccess.NewPropagator(syncer, log)
	gateway := appaccess.NewGateway(appaccess.GatewayConfig{
		Engine:   access.NewEngine(catalog),
		Storage:  recordStorage,
		Recorder: accessMetrics,
		Logger:   log,
	})

	// Identity bridge; the cache drops entries as membership events arrive and
	// as identity writes through the gateway commit
	bus := event.NewInMemoryEventBus(log)
	identityCache := cache.NewIdentityCache(cfg.Identity.CacheSize, cfg.Identity.CacheTTL)
	bus.Subscribe(identityCache)
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	defaults := identity.DefaultOrganizationSettings()
	defaults.Timezone = cfg.Organization.Timezone
	defaults.Currency = cfg.Organization.Currency
	defaults.LateFeeAmount = cfg.Organization.LateFee()
	defaults.GracePeriodDays = cfg.Organization.GracePeriodDays

	bridge := identityapp.NewBridge(identityapp.BridgeConfig{
		Organizations: orgRepo,
		Identities:    identityRepo,
		Propagator:    propagator,
		Gateway:       gateway,
		Bypass:        syncer,
		Cache:         identityCache,
		Events:        bus,
		Defaults:      defaults,
		Logger:        log,
	})

	// Identity provider integration
	sessionVerifier, err := auth.NewSessionVerifier(cfg.Session)
	if err != nil {
		log.Fatal("Failed to create session verifier", zap.Error(err))
	}
	webhookVerifier, err := auth.NewWebhookVerifier(cfg.Webhook.SigningSecret, cfg.Webhook.Tolerance)
	if err != nil {
		log.Fatal("Failed to create webhook verifier", zap.Error(err))
	}
	idempotency, err := cache.NewIdempotencyStoreFactory(cfg.Redis, cfg.Webhook,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.App.IsProduction()),
	).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create webhook idempotency store", zap.Error(err))
	}
	webhookService := identityapp.NewWebhookService(bridge, idempotency,
		identityapp.WebhookConfig{IdempotencyTTL: cfg.Webhook.IdempotencyTTL}, log)

	// HTTP
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := router.NewEngine(router.EngineConfig{
		HTTP: cfg.HTTP,
		Tracing: middleware.TracingConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			Enabled:        providers.Enabled(),
			TracerProvider: providers.TracerProvider(),
			SkipPaths:      []string{"/health"},
		},
		Logger: log,
	})

	var webhookLimit []gin.HandlerFunc
	if cfg.HTTP.WebhookRateLimit > 0 {
		webhookLimit = append(webhookLimit,
			middleware.RateLimit(middleware.NewRateLimiter(cfg.HTTP.WebhookRateLimit, cfg.HTTP.WebhookRateWindow)))
	}

	r := router.NewRouter(engine, router.WithAPIMiddleware(middleware.SessionAuth(middleware.SessionConfig{
		Verifier:      sessionVerifier,
		Resolver:      bridge,
		Propagator:    propagator,
		Metrics:       accessMetrics,
		OnboardingURL: cfg.HTTP.OnboardingURL,
		Logger:        log,
	})))
	checks := map[string]handler.HealthCheck{"database": db.Ping}
	if pinger, ok := idempotency.(interface{ Ping(context.Context) error }); ok {
		checks["redis"] = pinger.Ping
	}
	r.RegisterPublic(handler.NewHealthHandler(cfg.App.Name, checks))
	r.RegisterPublic(handler.NewWebhookHandler(webhookVerifier, webhookService), webhookLimit...)
	r.Register(handler.NewMeHandler(gateway)).
		Register(handler.NewMemberHandler(bridge)).
		Register(handler.NewRecordHandler(gateway))
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("Shutting down server...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var result *multierror.Error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := idempotency.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if stats, err := db.Stats(); err == nil {
		log.Info("Database pool at shutdown",
			zap.Int("open", stats.OpenConnections),
			zap.Int("in_use", stats.InUse),
			zap.Int64("wait_count", stats.WaitCount),
		)
	}
	if err := db.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		log.Error("Shutdown finished with errors", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("Server exited gracefully")
}
