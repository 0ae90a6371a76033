package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medorbit/televisit/internal/iam"
	"github.com/medorbit/televisit/internal/notification"
	"github.com/medorbit/televisit/pkg/config"
	"github.com/medorbit/televisit/pkg/database"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/monitoring"
	"github.com/medorbit/televisit/pkg/ratelimit"
)

const serviceName = "iam-service"
const serviceVersion = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.WithService(serviceName).Info("Starting IAM service")

	ctx := context.Background()
	db, err := database.NewConnection(ctx, &cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.CreateSchema(ctx); err != nil {
		log.WithError(err).Fatal("Failed to create database schema")
	}

	metrics := monitoring.NewMetricsCollector(serviceName)
	health := monitoring.NewHealthManager(serviceName, serviceVersion)
	health.RegisterChecker("database", monitoring.NewDatabaseChecker(db.DB))

	userRepo := iam.NewUserRepository(db, log)
	notifier := notification.NewEmailNotifier(&cfg.Email, log)
	identity := iam.NewService(userRepo, iam.NewPasswordManager(), notifier, cfg, log, metrics)
	handlers := iam.NewHandlers(identity, log)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.RateLimit.Enabled {
		router.Use(ratelimit.NewLimiter(&cfg.RateLimit, log).Gin())
	}
	if cfg.Monitoring.Enabled {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(metrics.Handler()))
		router.GET(cfg.Monitoring.HealthPath, gin.WrapH(health.Handler()))
	}

	handlers.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.WithField("address", server.Addr).Info("IAM service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down IAM service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("IAM service stopped")
}
