package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"fish-landings/internal/config"
	"fish-landings/internal/rules"
	"fish-landings/internal/services"
	"fish-landings/internal/source"
	"fish-landings/internal/standardize"
	"fish-landings/pkg/logging"
	"fish-landings/pkg/metrics"
)

const version = "1.0.0"

// app holds what every subcommand needs
type app struct {
	cfg     *config.Config
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	rules   *rules.RuleSet
}

var (
	envFile    string
	years      []int
	dataDir    string
	workers    int
	dryRun     bool
	lenient    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "ingester",
	Short:         "Standardize UK sea fisheries landings into one queryable table",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load, standardize and persist every source year",
	Long: `Loads each year's source file, maps it onto the canonical landings schema,
removes exact duplicates and replaces the landings table in one transaction.
Missing or malformed years are skipped with a warning.`,
	RunE: runPipeline,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Report how each source year's columns and values would be mapped",
	RunE:  runInspect,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the canonical landings schema",
	RunE:  runSchema,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Read environment from this file instead of .env")
	rootCmd.PersistentFlags().IntSliceVar(&years, "years", nil, "Years to process (default: the configured range)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory holding the yearly source files (overrides PIPELINE_DATA_DIR)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print machine-readable JSON")

	runCmd.Flags().IntVar(&workers, "workers", 0, "Years standardized in parallel (overrides PIPELINE_WORKERS)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Standardize and combine without writing to the store")
	runCmd.Flags().BoolVar(&lenient, "lenient-year", false, "Trust a row's own year when it differs from its file's year")

	rootCmd.AddCommand(runCmd, inspectCmd, schemaCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration, logger, metrics and rule tables
func setup() (*app, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if dataDir != "" {
		cfg.Pipeline.DataDir = dataDir
	}

	logger := logging.NewStructuredLogger("landings-ingester", version, logging.ParseLevel(cfg.Logging.Level))
	logger.SetFormat(cfg.Logging.Format)
	logger.SetOutput(os.Stderr)

	rs, err := rules.Load(cfg.Pipeline.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule tables: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewCollector("fish_landings_ingester", prometheus.NewRegistry()),
		rules:   rs,
	}, nil
}

func (a *app) years() []int {
	if len(years) > 0 {
		return years
	}
	first, last := a.cfg.Pipeline.FirstYear, a.cfg.Pipeline.LastYear
	if first < a.rules.FirstYear() {
		first = a.rules.FirstYear()
	}
	if last > a.rules.LastYear() {
		last = a.rules.LastYear()
	}
	return services.YearRange(first, last)
}

func (a *app) loader() *source.Loader {
	return source.NewLoader(a.cfg.Pipeline.DataDir, a.cfg.Pipeline.FilePattern, a.rules, a.logger)
}

func (a *app) standardizer(strict bool) *standardize.Standardizer {
	return standardize.New(a.rules, standardize.WithStrictYear(strict))
}
