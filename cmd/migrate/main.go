package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fish-landings/internal/config"
	"fish-landings/internal/repository"
	"fish-landings/pkg/database"
	"fish-landings/pkg/logging"
	"fish-landings/pkg/metrics"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	envFile := flag.String("env-file", "", "Read environment from this file instead of .env")
	flag.Parse()

	if *direction != "up" && *direction != "down" {
		fmt.Fprintf(os.Stderr, "Invalid direction %q: expected up or down\n", *direction)
		os.Exit(2)
	}

	// Load configuration
	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("landings-migrate", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	logger.SetFormat(cfg.Logging.Format)
	metricsCollector := metrics.NewCollector("fish_landings_migrate", prometheus.NewRegistry())

	// Connect to database
	db, err := database.Open(cfg.Database.Connection(), logger, metricsCollector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Println("Connected to database successfully")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	repo := repository.NewLandingRepository(db, logger, metricsCollector, cfg.Pipeline.BatchSize)

	fmt.Printf("Running migration: %s\n", *direction)

	// Execute migration
	if *direction == "up" {
		err = repo.EnsureSchema(ctx)
	} else {
		err = repo.DropSchema(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Migration completed successfully")
}
