package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/internal/seed"
	"github.com/sanukhandev/lms-be-core/internal/server"
	"github.com/sanukhandev/lms-be-core/internal/service"
	"github.com/sanukhandev/lms-be-core/internal/tenancy"
	"github.com/sanukhandev/lms-be-core/pkg/cache"
	"github.com/sanukhandev/lms-be-core/pkg/cms"
	"github.com/sanukhandev/lms-be-core/pkg/config"
	"github.com/sanukhandev/lms-be-core/pkg/database"
	"github.com/sanukhandev/lms-be-core/pkg/jwtutil"
	"github.com/sanukhandev/lms-be-core/pkg/logger"
	"github.com/sanukhandev/lms-be-core/pkg/notify"
	"github.com/sanukhandev/lms-be-core/pkg/tracing"
	"github.com/sanukhandev/lms-be-core/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const serviceName = "lms-api"

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer log.Sync()
	log.Info("Starting LMS API", cfg.LogConfig()...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, log, cfg.ServiceName, cfg.Server.Env, cfg.Tracing.Endpoint)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Initialize database with tenant scoping
	db, err := database.InitDB(&cfg.DB, log, tenancy.Plugin{})
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.MigrateModels(db, model.All()...); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}
	log.Info("Database connection established")

	if cfg.SeedDemo {
		if err := seed.Demo(ctx, db, log); err != nil {
			log.Fatal("Failed to seed demo data", zap.Error(err))
		}
	}

	store := newStore(ctx, cfg, log)

	var content service.ContentSource
	if cfg.CMS.BaseURL != "" {
		content = cms.NewClient(cms.Options{
			BaseURL:  cfg.CMS.BaseURL,
			Token:    cfg.CMS.Token,
			Timeout:  cfg.CMS.Timeout,
			CacheTTL: cfg.Redis.CacheTTL,
			OnLookup: prometheus.RecordCacheLookup,
		}, store, log.Named("cms"))
		log.Info("CMS client initialized", zap.String("base_url", cfg.CMS.BaseURL))
	}

	var notifier notify.Notifier = notify.NewLogNotifier(log.Named("mail"))
	if cfg.Mail.SendGridKey != "" {
		notifier = notify.NewSendGridNotifier(notify.SendGridConfig{
			APIKey:    cfg.Mail.SendGridKey,
			Host:      cfg.Mail.Host,
			FromEmail: cfg.Mail.FromEmail,
			FromName:  cfg.Mail.FromName,
		}, log.Named("mail"))
		log.Info("SendGrid notifier initialized")
	}

	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: cfg.JWT.SigningKey, TTL: cfg.JWT.AccessTTL})
	services := server.NewServices(cfg, db, jwt, store, content, notifier)
	e := server.New(cfg, db, jwt, services)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           otelhttp.NewHandler(e, cfg.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("Tracing shutdown failed", zap.Error(err))
	}
}

// newStore connects Redis when configured and falls back to process memory
// outside production
func newStore(ctx context.Context, cfg *config.Config, log *zap.Logger) cache.Store {
	if !cfg.Redis.Enabled() {
		log.Warn("REDIS_ADDR not set, using in-memory cache")
		return cache.NewMemoryStore()
	}

	store := cache.NewRedisStore(cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB), "lms:")
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		if cfg.Server.Env == "production" {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		log.Warn("Redis unavailable, using in-memory cache", zap.Error(err))
		return cache.NewMemoryStore()
	}
	log.Info("Redis connection established", zap.String("addr", cfg.Redis.Addr))
	return store
}
