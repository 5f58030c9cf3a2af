package services

import (
	"context"
	"time"

	"fish-landings/internal/models"
	"fish-landings/internal/repository"
	"fish-landings/pkg/logging"
	"fish-landings/pkg/metrics"
)

// QueryService serves read access to the persisted landings dataset
type QueryService struct {
	repo     repository.LandingRepository
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
	rowLimit int
	timeout  time.Duration
}

// NewQueryService creates a new query service. Ad hoc queries return at most
// rowLimit rows and are canceled after timeout.
func NewQueryService(repo repository.LandingRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, rowLimit int, timeout time.Duration) *QueryService {
	return &QueryService{
		repo:     repo,
		logger:   logger,
		metrics:  metricsCollector,
		rowLimit: rowLimit,
		timeout:  timeout,
	}
}

// GetLandings retrieves landings with filtering
func (s *QueryService) GetLandings(ctx context.Context, filter repository.LandingFilter) ([]*models.LandingRecord, int, error) {
	return s.repo.ListLandings(ctx, filter)
}

// GetSummary retrieves dataset-wide totals
func (s *QueryService) GetSummary(ctx context.Context) (*models.DatasetSummary, error) {
	return s.repo.Summary(ctx)
}

// GetYearStats retrieves per-year coverage statistics
func (s *QueryService) GetYearStats(ctx context.Context) ([]*models.YearStats, error) {
	return s.repo.YearStats(ctx)
}

// GetRuns retrieves the most recent pipeline runs
func (s *QueryService) GetRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	return s.repo.ListRuns(ctx, limit)
}

// GetRun retrieves one pipeline run
func (s *QueryService) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	return s.repo.GetRun(ctx, runID)
}

// Schema returns the canonical schema contract
func (s *QueryService) Schema() []models.ColumnSpec {
	return models.Schema
}

// Execute runs a read-only SQL statement produced by an external generator
func (s *QueryService) Execute(ctx context.Context, query string) (*repository.QueryResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.repo.ExecuteReadOnly(ctx, query, s.rowLimit)
}

// HealthCheck checks the backing store
func (s *QueryService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
