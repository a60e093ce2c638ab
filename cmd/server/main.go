package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	activityapp "github.com/erp/backoffice/internal/application/activity"
	"github.com/erp/backoffice/internal/application/cachesync"
	"github.com/erp/backoffice/internal/application/dashboard"
	"github.com/erp/backoffice/internal/application/resource"
	transferapp "github.com/erp/backoffice/internal/application/transfer"
	"github.com/erp/backoffice/internal/domain/backoffice"
	"github.com/erp/backoffice/internal/infrastructure/apiclient"
	"github.com/erp/backoffice/internal/infrastructure/auth"
	"github.com/erp/backoffice/internal/infrastructure/cache"
	"github.com/erp/backoffice/internal/infrastructure/config"
	"github.com/erp/backoffice/internal/infrastructure/logger"
	"github.com/erp/backoffice/internal/infrastructure/migration"
	"github.com/erp/backoffice/internal/infrastructure/notify"
	"github.com/erp/backoffice/internal/infrastructure/persistence"
	"github.com/erp/backoffice/internal/infrastructure/telemetry"
	"github.com/erp/backoffice/internal/interfaces/http/handler"
	"github.com/erp/backoffice/internal/interfaces/http/middleware"
	"github.com/erp/backoffice/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting ERP back-office",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("backend", cfg.Backend.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.ConfigFrom(cfg.Telemetry, version), log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.MetricsEnabled {
		metrics = telemetry.NewMetrics(cfg.Telemetry.MetricsNamespace)
	}

	// Activity journal
	db, err := persistence.NewDatabase(&cfg.Database,
		logger.NewGormLogger(log, logger.GormLevel(cfg.Log.Level), 200*time.Millisecond))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := migration.Apply(&cfg.Database, log.Named("migration")); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))
	journal := persistence.NewGormActivityRepository(db.DB)

	// Query cache
	layer, err := cache.NewFactory(cfg.Cache, cfg.Redis,
		cache.WithLogger(log),
		cache.WithFactoryMetrics(metrics),
	).CreateLayer()
	if err != nil {
		log.Fatal("Failed to create cache", zap.Error(err))
	}
	layer.Start(ctx)

	client, err := apiclient.New(cfg.Backend,
		apiclient.WithLogger(log.Named("apiclient")),
		apiclient.WithMetrics(metrics),
	)
	if err != nil {
		log.Fatal("Failed to create backend client", zap.Error(err))
	}

	messages, err := notify.NewCatalog(cfg.Locale.Default)
	if err != nil {
		log.Fatal("Failed to build message catalog", zap.Error(err))
	}

	recorder := activityapp.NewRecorder(journal, log)
	synchronizer := cachesync.NewSynchronizer(layer.Store,
		notify.Multi{notify.NewRequestNotifier(), notify.NewLogNotifier(log)},
		cachesync.WithBroadcaster(layer.Broadcaster),
		cachesync.WithObserver(recorder),
		cachesync.WithMetrics(metrics),
		cachesync.WithLogger(log),
	)

	registry := backoffice.DefaultRegistry()
	resources := resource.NewService(registry, client, layer.Store, synchronizer, messages)
	transfers, err := transferapp.NewService(registry, client, layer.Store, synchronizer, messages)
	if err != nil {
		log.Fatal("Failed to create transfer service", zap.Error(err))
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst, 10*time.Minute)
		defer limiter.Stop()
	}

	jwtCfg := middleware.DefaultJWTConfig(auth.NewVerifier(cfg.JWT), cfg.JWT.Required)
	jwtCfg.Logger = log

	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		logger.GinMiddleware(log),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     tp.IsEnabled(),
		}),
		middleware.HTTPMetrics(metrics),
		middleware.Secure(),
		middleware.CORSWithConfig(corsCfg),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.JWTAuthMiddleware(jwtCfg),
		middleware.TraceAttributes(),
		middleware.RateLimit(limiter),
		middleware.Locale(messages),
		middleware.Notifications(),
	)

	var metricsHandler gin.HandlerFunc
	if metrics != nil {
		metricsHandler = gin.WrapH(metrics.Handler())
	}
	router.Mount(engine, router.Handlers{
		Resources: handler.NewResourceHandler(resources),
		Transfers: handler.NewTransferHandler(transfers),
		Dashboard: handler.NewDashboardHandler(dashboard.NewService(resources)),
		Activity:  handler.NewActivityHandler(activityapp.NewService(journal)),
		System:    handler.NewSystemHandler(cfg.App.Name, version, db, layer.Store),
	}, registry, metricsHandler, log)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	// background refetches started by the last mutations
	layer.Store.Wait()
	if err := layer.Close(); err != nil {
		log.Error("Error closing cache", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	// journal writes of the last settled mutations
	recorder.Wait()
	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}
