package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/medorbit/televisit/internal/aidoc"
	"github.com/medorbit/televisit/internal/iam"
	"github.com/medorbit/televisit/internal/notification"
	"github.com/medorbit/televisit/internal/payment"
	"github.com/medorbit/televisit/internal/visit"
	"github.com/medorbit/televisit/pkg/config"
	"github.com/medorbit/televisit/pkg/database"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/monitoring"
	"github.com/medorbit/televisit/pkg/ratelimit"
)

const serviceName = "visit-service"
const serviceVersion = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.WithService(serviceName).Info("Starting visit service")

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

	// Repositories
	userRepo := iam.NewUserRepository(db, log)
	visitRepo := visit.NewRepository(db, log)
	sessionRepo := payment.NewSessionRepository(db, log)

	// Collaborators
	notifier := notification.NewEmailNotifier(&cfg.Email, log)
	identity := iam.NewService(userRepo, iam.NewPasswordManager(), notifier, cfg, log, metrics)
	gateway := payment.NewService(&cfg.Payment, sessionRepo, log, metrics)
	documentation := aidoc.NewService(&cfg.AI, log, metrics)

	visitService := visit.NewService(visitRepo, userRepo, gateway, documentation, notifier, log, metrics)

	// HTTP wiring
	middleware := visit.NewMiddleware(identity, log)
	visitHandlers := visit.NewHandlers(visitService, documentation, middleware, log)
	paymentHandlers := payment.NewHandlers(gateway, sessionRepo, log)

	router := mux.NewRouter()
	router.Use(middleware.SecurityHeaders)
	router.Use(middleware.CORS)
	if cfg.RateLimit.Enabled {
		router.Use(ratelimit.NewLimiter(&cfg.RateLimit, log).Handler)
	}
	router.Use(middleware.Logging)
	if cfg.Monitoring.Enabled {
		router.Use(metrics.HTTPMiddleware)
		router.Handle(cfg.Monitoring.MetricsPath, metrics.Handler()).Methods(http.MethodGet)
		router.Handle(cfg.Monitoring.HealthPath, health.Handler()).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Authenticate)
	visitHandlers.RegisterRoutes(api)
	paymentHandlers.RegisterRoutes(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.WithField("address", server.Addr).Info("Visit service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down visit service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Visit service stopped")
}
