package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fish-landings/internal/models"
	"fish-landings/internal/repository"
	"fish-landings/internal/source"
	"fish-landings/internal/standardize"
	"fish-landings/pkg/logging"
	"fish-landings/pkg/metrics"
)

// Year outcomes
const (
	YearLoaded  = "loaded"
	YearSkipped = "skipped"
)

// SourceLoader reads one year's raw record set
type SourceLoader interface {
	Load(ctx context.Context, year int) (*models.RawRecordSet, error)
}

// IngestionService runs the load, standardize and persist pipeline
type IngestionService struct {
	loader       SourceLoader
	standardizer *standardize.Standardizer
	aggregator   Aggregator
	repo         repository.LandingRepository
	logger       *logging.StructuredLogger
	metrics      *metrics.Collector
}

// RunOptions controls a pipeline run
type RunOptions struct {
	Years   []int
	Workers int
	// DryRun loads, standardizes and combines without touching the store.
	DryRun bool
}

// YearOutcome reports what happened to one source year
type YearOutcome struct {
	Year    int                        `json:"year"`
	Status  string                     `json:"status"`
	Rows    int                        `json:"rows"`
	Reason  string                     `json:"reason,omitempty"`
	Mapping *standardize.ColumnMapping `json:"mapping,omitempty"`
}

// RunReport contains the outcome of a pipeline run
type RunReport struct {
	RunID             string                 `json:"run_id"`
	StartedAt         time.Time              `json:"started_at"`
	FinishedAt        time.Time              `json:"finished_at"`
	DryRun            bool                   `json:"dry_run"`
	Years             []YearOutcome          `json:"years"`
	YearsLoaded       []int                  `json:"years_loaded"`
	YearsSkipped      []int                  `json:"years_skipped"`
	Warnings          []standardize.Warning  `json:"warnings"`
	RowsIn            int                    `json:"rows_in"`
	RowsPersisted     int                    `json:"rows_persisted"`
	DuplicatesRemoved int                    `json:"duplicates_removed"`
	Summary           *models.DatasetSummary `json:"summary,omitempty"`
	YearStats         []*models.YearStats    `json:"year_stats,omitempty"`
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(
	loader SourceLoader,
	standardizer *standardize.Standardizer,
	repo repository.LandingRepository,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *IngestionService {
	return &IngestionService{
		loader:       loader,
		standardizer: standardizer,
		repo:         repo,
		logger:       logger,
		metrics:      metricsCollector,
	}
}

// YearRange returns every year from first to last inclusive
func YearRange(first, last int) []int {
	if last < first {
		return nil
	}
	years := make([]int, 0, last-first+1)
	for y := first; y <= last; y++ {
		years = append(years, y)
	}
	return years
}

// ErrNoYearsLoaded is returned when every requested year was skipped. The
// stored dataset is not touched.
var ErrNoYearsLoaded = errors.New("no source years loaded; dataset left unchanged")

type yearResult struct {
	outcome  YearOutcome
	result   *standardize.Result
	warnings []standardize.Warning
}

// Run processes every requested year, then combines and persists the
// standardized rows once. A failed year is skipped with a warning; only a
// persist failure, a run that loads no year at all, or cancellation fails
// the run. The report is returned alongside those errors so callers can
// still show the warnings.
func (s *IngestionService) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	if len(opts.Years) == 0 {
		return nil, errors.New("no years to process")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		DryRun:    opts.DryRun,
	}
	ctx = logging.WithRunID(ctx, report.RunID)

	s.logger.Info(ctx, "[INGEST_START] Starting landings pipeline", logging.Fields{
		"years":   len(opts.Years),
		"workers": workers,
		"dry_run": opts.DryRun,
		"stage":   "INITIALIZATION",
	})

	// Each year is independent; the only join point is the combine below.
	results := make([]yearResult, len(opts.Years))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, year := range opts.Years {
		i, year := i, year
		g.Go(func() error {
			results[i] = s.processYear(gctx, year)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline run canceled: %w", err)
	}

	standardized := make([]*standardize.Result, 0, len(results))
	for _, r := range results {
		report.Years = append(report.Years, r.outcome)
		report.Warnings = append(report.Warnings, r.warnings...)
		if r.result == nil {
			report.YearsSkipped = append(report.YearsSkipped, r.outcome.Year)
			continue
		}
		report.YearsLoaded = append(report.YearsLoaded, r.outcome.Year)
		standardized = append(standardized, r.result)
	}
	standardize.SortWarnings(report.Warnings)

	combined := s.aggregator.Combine(standardized)
	report.RowsIn = combined.RowsIn
	report.DuplicatesRemoved = combined.DuplicatesRemoved
	s.metrics.DuplicateRowsTotal.Add(float64(combined.DuplicatesRemoved))

	s.logger.Info(ctx, "[INGEST_COMBINED] Years combined", logging.Fields{
		"years_loaded":       len(report.YearsLoaded),
		"years_skipped":      len(report.YearsSkipped),
		"rows_in":            combined.RowsIn,
		"duplicates_removed": combined.DuplicatesRemoved,
		"stage":              "AGGREGATION",
	})

	if len(report.YearsLoaded) == 0 {
		report.FinishedAt = time.Now().UTC()
		s.metrics.RecordIngestionError("no_years_loaded")
		s.logger.Error(ctx, "[INGEST_EMPTY] No source year loaded; previous dataset kept", logging.Fields{
			"years_skipped": models.JoinYears(report.YearsSkipped),
			"stage":         "AGGREGATION",
		}, ErrNoYearsLoaded)
		return report, ErrNoYearsLoaded
	}

	if opts.DryRun {
		report.FinishedAt = time.Now().UTC()
		s.logComplete(ctx, report)
		return report, nil
	}

	report.FinishedAt = time.Now().UTC()
	run := &models.RunRecord{
		RunID:             report.RunID,
		StartedAt:         report.StartedAt,
		FinishedAt:        report.FinishedAt,
		YearsLoaded:       models.JoinYears(report.YearsLoaded),
		YearsSkipped:      models.JoinYears(report.YearsSkipped),
		RowsPersisted:     len(combined.Records),
		DuplicatesRemoved: combined.DuplicatesRemoved,
		WarningCount:      len(report.Warnings),
	}

	if err := s.repo.ReplaceLandings(ctx, combined.Records, run); err != nil {
		s.metrics.RecordIngestionError("persist_error")
		s.logger.Error(ctx, "[INGEST_PERSIST_ERROR] Dataset replacement failed; previous dataset kept", logging.Fields{
			"rows":  len(combined.Records),
			"stage": "PERSIST",
		}, err)
		return report, fmt.Errorf("persist landings: %w", err)
	}
	report.RowsPersisted = len(combined.Records)

	if summary, err := s.repo.Summary(ctx); err == nil {
		report.Summary = summary
	} else {
		s.logger.Warn(ctx, "[INGEST_SUMMARY_ERROR] Failed to summarize dataset", logging.Fields{"error": err.Error()})
	}
	if stats, err := s.repo.YearStats(ctx); err == nil {
		report.YearStats = stats
	} else {
		s.logger.Warn(ctx, "[INGEST_SUMMARY_ERROR] Failed to compute year stats", logging.Fields{"error": err.Error()})
	}

	report.FinishedAt = time.Now().UTC()
	s.metrics.IngestionDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	s.logComplete(ctx, report)

	return report, nil
}

// processYear loads and standardizes one year. Failures are folded into the
// outcome and a warning so the run can continue.
func (s *IngestionService) processYear(ctx context.Context, year int) yearResult {
	timer := time.Now()
	res := yearResult{outcome: YearOutcome{Year: year}}

	skip := func(kind standardize.WarningKind, count int, err error) yearResult {
		res.outcome.Status = YearSkipped
		res.outcome.Reason = err.Error()
		res.warnings = append(res.warnings, standardize.Warning{
			Year:   year,
			Kind:   kind,
			Count:  count,
			Detail: err.Error(),
		})
		s.metrics.RecordYearOutcome(string(kind))
		s.metrics.RecordWarnings(string(kind), count)
		s.logger.Warn(ctx, "[INGEST_YEAR_SKIPPED] Source year skipped", logging.Fields{
			"year":  year,
			"kind":  string(kind),
			"error": err.Error(),
			"stage": "YEAR_PROCESSING",
		})
		return res
	}

	set, err := s.loader.Load(ctx, year)
	if err != nil {
		var nf *source.NotFoundError
		if errors.As(err, &nf) {
			return skip(standardize.KindNotFound, 1, err)
		}
		s.metrics.RecordIngestionError("load_error")
		return skip(standardize.KindFormatError, 1, err)
	}

	result, err := s.standardizer.Standardize(set)
	if err != nil {
		var mismatch *standardize.YearMismatchError
		if errors.As(err, &mismatch) {
			return skip(standardize.KindYearMismatch, mismatch.Rows, err)
		}
		s.metrics.RecordIngestionError("standardize_error")
		return skip(standardize.KindFormatError, 1, err)
	}

	res.result = result
	res.warnings = result.Warnings
	res.outcome.Status = YearLoaded
	res.outcome.Rows = len(result.Records)
	res.outcome.Mapping = &result.Mapping

	s.metrics.RecordYearOutcome(YearLoaded)
	s.metrics.StandardizedRows.WithLabelValues(strconv.Itoa(year)).Add(float64(len(result.Records)))
	for _, w := range result.Warnings {
		s.metrics.RecordWarnings(string(w.Kind), w.Count)
	}
	s.metrics.ObserveOperation("standardize_year", timer)

	s.logger.Info(ctx, "[INGEST_YEAR_SUCCESS] Source year standardized", logging.Fields{
		"year":          year,
		"rows":          len(result.Records),
		"warnings":      len(result.Warnings),
		"value_divisor": result.Mapping.ValueDivisor,
		"stage":         "YEAR_PROCESSING",
	})

	return res
}

func (s *IngestionService) logComplete(ctx context.Context, report *RunReport) {
	duration := report.FinishedAt.Sub(report.StartedAt)
	s.logger.Info(ctx, "[INGEST_COMPLETE] Landings pipeline completed", logging.Fields{
		"years_loaded":       models.JoinYears(report.YearsLoaded),
		"years_skipped":      models.JoinYears(report.YearsSkipped),
		"rows_persisted":     report.RowsPersisted,
		"duplicates_removed": report.DuplicatesRemoved,
		"warnings":           len(report.Warnings),
		"dry_run":            report.DryRun,
		"duration_seconds":   duration.Seconds(),
		"stage":              "COMPLETE",
	})
}
