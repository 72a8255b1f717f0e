package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sanukhandev/lms-be-core/internal/model"
	"github.com/sanukhandev/lms-be-core/internal/service"
	"github.com/sanukhandev/lms-be-core/internal/tenancy"
	"github.com/sanukhandev/lms-be-core/internal/worker"
	"github.com/sanukhandev/lms-be-core/pkg/config"
	"github.com/sanukhandev/lms-be-core/pkg/database"
	"github.com/sanukhandev/lms-be-core/pkg/logger"
	"github.com/sanukhandev/lms-be-core/pkg/notify"
	"github.com/sanukhandev/lms-be-core/prometheus"
	"go.uber.org/zap"
)

const serviceName = "lms-worker"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer log.Sync()
	log.Info("Starting LMS worker", cfg.LogConfig()...)

	db, err := database.InitDB(&cfg.DB, log, tenancy.Plugin{})
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.MigrateModels(db, model.All()...); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}

	// expiry sends no mail
	enrollments := service.NewEnrollmentService(db, notify.NewLogNotifier(log.Named("mail")), cfg.Enrollment.AccessPeriod)
	scheduler := worker.New(db, enrollments, log.Named("worker"))
	if err := scheduler.Register(cfg.Worker); err != nil {
		log.Fatal("Failed to register jobs", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// metrics only; the worker has no API
	mux := http.NewServeMux()
	mux.Handle("/metrics", prometheus.GetPrometheusHandler())
	metricsSrv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	scheduler.Start()
	log.Info("Worker started", zap.String("metrics_port", cfg.Server.Port))

	<-ctx.Done()
	log.Info("Shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Error("Jobs did not finish in time", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("Metrics server shutdown failed", zap.Error(err))
	}
}
