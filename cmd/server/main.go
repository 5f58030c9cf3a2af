package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fish-landings/internal/config"
	"fish-landings/internal/handlers"
	"fish-landings/internal/repository"
	"fish-landings/internal/services"
	"fish-landings/pkg/database"
	"fish-landings/pkg/logging"
	"fish-landings/pkg/metrics"
)

const version = "1.0.0"

func main() {
	envFile := flag.String("env-file", "", "Read environment from this file instead of .env")
	flag.Parse()

	// Load configuration
	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.LoadConfig(files...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := logging.NewStructuredLogger("landings-api", version, logging.ParseLevel(cfg.Logging.Level))
	logger.SetFormat(cfg.Logging.Format)

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting fish landings API server", logging.Fields{
		"version":     version,
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_driver":   cfg.Database.Driver,
	})

	// Initialize metrics collector
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsCollector := metrics.NewCollector("fish_landings", registry)

	// Initialize database
	db, err := database.Open(cfg.Database.Connection(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	// Initialize repository
	landingRepo := repository.NewLandingRepository(db, logger, metricsCollector, cfg.Pipeline.BatchSize)
	if err := landingRepo.EnsureSchema(ctx); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to ensure schema", logging.Fields{}, err)
	}

	// Initialize services
	queryService := services.NewQueryService(landingRepo, logger, metricsCollector, cfg.Server.QueryRowLimit, cfg.Server.QueryTimeout)

	// Initialize handlers
	landingHandler := handlers.NewLandingHandler(queryService, logger, metricsCollector)

	// Setup router
	router := mux.NewRouter()

	// Register routes
	landingHandler.RegisterRoutes(router)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
