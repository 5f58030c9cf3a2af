package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"fish-landings/internal/models"
	"fish-landings/pkg/database"
	"fish-landings/pkg/logging"
	"fish-landings/pkg/metrics"
)

const (
	stagingTable = "landings_staging"
	runsTable    = "landing_runs"
)

// Secondary indexes on the landings relation, in creation order.
var landingIndexes = []struct {
	Name    string
	Columns string
}{
	{"idx_year", "year"},
	{"idx_month", "month"},
	{"idx_port", "port"},
	{"idx_port_nationality", "port_nationality"},
	{"idx_vessel_nationality", "vessel_nationality"},
	{"idx_species_name", "species_name"},
	{"idx_species_code", "species_code"},
	{"idx_species_group", "species_group"},
	{"idx_gear_category", "gear_category"},
	{"idx_year_month", "year, month"},
}

// LandingRepository provides data access for the landings dataset
type LandingRepository interface {
	// Schema operations
	EnsureSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// Dataset replacement
	ReplaceLandings(ctx context.Context, records []models.LandingRecord, run *models.RunRecord) error

	// Read operations
	ListLandings(ctx context.Context, filter LandingFilter) ([]*models.LandingRecord, int, error)
	Summary(ctx context.Context) (*models.DatasetSummary, error)
	YearStats(ctx context.Context) ([]*models.YearStats, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)
	GetRun(ctx context.Context, runID string) (*models.RunRecord, error)
	ExecuteReadOnly(ctx context.Context, query string, limit int) (*QueryResult, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// LandingFilter defines filters for listing landings
type LandingFilter struct {
	YearFrom          *int
	YearTo            *int
	Month             *int
	Port              *string
	PortNationality   *string
	VesselNationality *string
	LengthGroup       *string
	GearCategory      *string
	SpeciesCode       *string
	SpeciesName       *string
	SpeciesGroup      *string
	Limit             int
	Offset            int
}

// landingRepository implements LandingRepository
type landingRepository struct {
	db        *database.DB
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
	batchSize int
}

// NewLandingRepository creates a new landing repository. Staging inserts are
// committed in batches of batchSize rows.
func NewLandingRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, batchSize int) LandingRepository {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &landingRepository{
		db:        db,
		logger:    logger,
		metrics:   metricsCollector,
		batchSize: batchSize,
	}
}

// landingsDDL returns the CREATE TABLE statement for the canonical schema.
func (r *landingRepository) landingsDDL(table string, ifNotExists bool) string {
	defs := make([]string, 0, len(models.Schema))
	for _, c := range models.Schema {
		var typ string
		switch c.Type {
		case models.TypeInteger:
			typ = "INTEGER"
		case models.TypeReal:
			typ = "REAL"
			if r.db.IsPostgres() {
				typ = "DOUBLE PRECISION"
			}
		default:
			typ = "TEXT"
		}
		def := c.Name + " " + typ
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}

	create := "CREATE TABLE "
	if ifNotExists {
		create += "IF NOT EXISTS "
	}
	return create + table + " (\n\t" + strings.Join(defs, ",\n\t") + "\n)"
}

func (r *landingRepository) runsDDL() string {
	ts := "TIMESTAMP"
	if r.db.IsPostgres() {
		ts = "TIMESTAMPTZ"
	}
	return `
		CREATE TABLE IF NOT EXISTS ` + runsTable + ` (
			run_id TEXT PRIMARY KEY,
			started_at ` + ts + ` NOT NULL,
			finished_at ` + ts + ` NOT NULL,
			years_loaded TEXT NOT NULL,
			years_skipped TEXT NOT NULL,
			rows_persisted INTEGER NOT NULL,
			duplicates_removed INTEGER NOT NULL,
			warning_count INTEGER NOT NULL
		)
	`
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func createIndexes(ctx context.Context, ex execer) error {
	for _, idx := range landingIndexes {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idx.Name, models.LandingsTable, idx.Columns)
		if _, err := ex.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index %s: %w", idx.Name, err)
		}
	}
	return nil
}

// EnsureSchema creates the landings relation, its indexes and the run log if absent
func (r *landingRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "create_landings", r.landingsDDL(models.LandingsTable, true)); err != nil {
		return fmt.Errorf("failed to create landings table: %w", err)
	}
	if err := createIndexes(ctx, r.db.DB()); err != nil {
		return fmt.Errorf("failed to create landings indexes: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, "create_runs", r.runsDDL()); err != nil {
		return fmt.Errorf("failed to create run log: %w", err)
	}

	r.logger.Info(ctx, "[REPO_SCHEMA] Schema ensured", logging.Fields{
		"driver": r.db.DriverName(),
	})
	return nil
}

// DropSchema removes every table this repository owns
func (r *landingRepository) DropSchema(ctx context.Context) error {
	for _, table := range []string{runsTable, stagingTable, models.LandingsTable} {
		if _, err := r.db.ExecContext(ctx, "drop_table", "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return nil
}

// ReplaceLandings swaps the persisted dataset for records. The new rows are
// first written to a staging table; the old relation is then dropped, the
// staging table renamed into place, indexes built and the run recorded, all
// in one transaction. Readers see either the old dataset or the new one.
func (r *landingRepository) ReplaceLandings(ctx context.Context, records []models.LandingRecord, run *models.RunRecord) error {
	timer := time.Now()

	for i := range records {
		if err := records[i].Validate(); err != nil {
			return &PersistError{Stage: "validate", Err: fmt.Errorf("record %d: %w", i, err)}
		}
	}

	if err := r.buildStaging(ctx, records); err != nil {
		r.discardStaging()
		return err
	}

	if err := r.swap(ctx, run); err != nil {
		r.discardStaging()
		return err
	}

	duration := time.Since(timer)
	r.metrics.IngestionRecordsTotal.Add(float64(len(records)))
	r.metrics.ObserveOperation("replace_landings", timer)

	r.logger.Info(ctx, "[REPO_REPLACE] Landings dataset replaced", logging.Fields{
		"rows":        len(records),
		"indexes":     len(landingIndexes),
		"duration_ms": duration.Milliseconds(),
	})

	return nil
}

func (r *landingRepository) buildStaging(ctx context.Context, records []models.LandingRecord) error {
	if _, err := r.db.ExecContext(ctx, "drop_staging", "DROP TABLE IF EXISTS "+stagingTable); err != nil {
		return &PersistError{Stage: "staging", Err: err}
	}
	if _, err := r.db.ExecContext(ctx, "create_staging", r.landingsDDL(stagingTable, false)); err != nil {
		return &PersistError{Stage: "staging", Err: err}
	}

	for start := 0; start < len(records); start += r.batchSize {
		end := start + r.batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := r.insertBatch(ctx, records[start:end]); err != nil {
			return &PersistError{Stage: "load", Err: err}
		}
	}
	return nil
}

// insertBatch writes one batch of rows to the staging table in a single transaction
func (r *landingRepository) insertBatch(ctx context.Context, batch []models.LandingRecord) error {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.IngestionBatchSize.Observe(float64(len(batch)))
		r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Batch insert completed", logging.Fields{
			"count":       len(batch),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	// Begin transaction
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	columns := models.Columns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)", stagingTable, strings.Join(columns, ", "), placeholders,
	)))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range batch {
		if _, err := stmt.ExecContext(ctx, batch[i].Values()...); err != nil {
			return fmt.Errorf("failed to insert landing: %w", err)
		}
	}

	// Commit transaction
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *landingRepository) swap(ctx context.Context, run *models.RunRecord) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return &PersistError{Stage: "swap", Err: err}
	}
	defer tx.Rollback()

	steps := []string{
		"DROP TABLE IF EXISTS " + models.LandingsTable,
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", stagingTable, models.LandingsTable),
	}
	for _, stmt := range steps {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &PersistError{Stage: "swap", Err: err}
		}
	}
	if err := createIndexes(ctx, tx); err != nil {
		return &PersistError{Stage: "index", Err: err}
	}

	if run != nil {
		if _, err := tx.ExecContext(ctx, r.runsDDL()); err != nil {
			return &PersistError{Stage: "run_log", Err: err}
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO `+runsTable+` (
				run_id, started_at, finished_at, years_loaded, years_skipped,
				rows_persisted, duplicates_removed, warning_count
			)
			VALUES (
				:run_id, :started_at, :finished_at, :years_loaded, :years_skipped,
				:rows_persisted, :duplicates_removed, :warning_count
			)
		`, run)
		if err != nil {
			return &PersistError{Stage: "run_log", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &PersistError{Stage: "commit", Err: err}
	}
	return nil
}

// discardStaging drops a half-built staging table. The live relation is untouched.
func (r *landingRepository) discardStaging() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, "drop_staging", "DROP TABLE IF EXISTS "+stagingTable); err != nil {
		r.logger.Warn(ctx, "[REPO_STAGING_CLEANUP] Failed to drop staging table", logging.Fields{
			"table": stagingTable,
			"error": err.Error(),
		})
	}
}

const landingColumns = `year, month, port, port_nuts2, port_nationality, vessel_nationality,
		       length_group, gear_category, species_code, species_name, species_group,
		       live_weight_tonnes, landed_weight_tonnes, value_thousands`

// ListLandings retrieves landings with filtering and pagination
func (r *landingRepository) ListLandings(ctx context.Context, filter LandingFilter) ([]*models.LandingRecord, int, error) {
	// Build query with filters
	query := `
		SELECT ` + landingColumns + `
		FROM landings
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.YearFrom != nil {
		query += " AND year >= ?"
		args = append(args, *filter.YearFrom)
	}
	if filter.YearTo != nil {
		query += " AND year <= ?"
		args = append(args, *filter.YearTo)
	}
	if filter.Month != nil {
		query += " AND month = ?"
		args = append(args, *filter.Month)
	}

	textFilters := []struct {
		column string
		value  *string
	}{
		{"port", filter.Port},
		{"port_nationality", filter.PortNationality},
		{"vessel_nationality", filter.VesselNationality},
		{"length_group", filter.LengthGroup},
		{"gear_category", filter.GearCategory},
		{"species_code", filter.SpeciesCode},
		{"species_name", filter.SpeciesName},
		{"species_group", filter.SpeciesGroup},
	}
	for _, f := range textFilters {
		if f.value != nil {
			query += " AND " + f.column + " = ?"
			args = append(args, *f.value)
		}
	}

	// Get total count
	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	err := r.db.GetContext(ctx, "count_landings", &totalCount, r.db.Rebind(countQuery), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count landings: %w", err)
	}

	// Add ordering and pagination
	query += " ORDER BY year, month, port, species_name"
	query += " LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	var landings []*models.LandingRecord
	err = r.db.SelectContext(ctx, "list_landings", &landings, r.db.Rebind(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list landings: %w", err)
	}

	return landings, totalCount, nil
}

// Summary computes dataset-wide totals
func (r *landingRepository) Summary(ctx context.Context) (*models.DatasetSummary, error) {
	query := `
		SELECT
			COUNT(*) AS total_records,
			MIN(year) AS first_year,
			MAX(year) AS last_year,
			COUNT(DISTINCT port) AS distinct_ports,
			COUNT(DISTINCT species_name) AS distinct_species,
			SUM(value_thousands) / 1000.0 AS total_value_millions,
			SUM(live_weight_tonnes) / 1000.0 AS total_live_weight_kilotonnes
		FROM landings
	`

	var summary models.DatasetSummary
	if err := r.db.GetContext(ctx, "summary", &summary, query); err != nil {
		return nil, fmt.Errorf("failed to summarize landings: %w", err)
	}
	return &summary, nil
}

// YearStats computes per-year coverage and price-per-tonne figures
func (r *landingRepository) YearStats(ctx context.Context) ([]*models.YearStats, error) {
	query := `
		SELECT
			year,
			COUNT(*) AS record_count,
			SUM(CASE WHEN gear_category IS NULL THEN 1 ELSE 0 END) AS null_gear_rows,
			SUM(value_thousands) AS total_value_thousands,
			SUM(live_weight_tonnes) AS total_live_weight_tonnes,
			SUM(value_thousands) * 1000.0 / NULLIF(SUM(live_weight_tonnes), 0) AS price_per_tonne
		FROM landings
		GROUP BY year
		ORDER BY year
	`

	var stats []*models.YearStats
	if err := r.db.SelectContext(ctx, "year_stats", &stats, query); err != nil {
		return nil, fmt.Errorf("failed to compute year stats: %w", err)
	}
	return stats, nil
}

// ListRuns returns the most recent runs first
func (r *landingRepository) ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	query := `
		SELECT run_id, started_at, finished_at, years_loaded, years_skipped,
		       rows_persisted, duplicates_removed, warning_count
		FROM landing_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	var runs []*models.RunRecord
	if err := r.db.SelectContext(ctx, "list_runs", &runs, r.db.Rebind(query), limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetRun retrieves one run by ID
func (r *landingRepository) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	query := `
		SELECT run_id, started_at, finished_at, years_loaded, years_skipped,
		       rows_persisted, duplicates_removed, warning_count
		FROM landing_runs
		WHERE run_id = ?
	`

	var run models.RunRecord
	err := r.db.GetContext(ctx, "get_run", &run, r.db.Rebind(query), runID)

	if err == sql.ErrNoRows {
		return nil, &NotFoundError{
			Resource: "landing_run",
			ID:       runID,
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return &run, nil
}

// HealthCheck performs a repository health check
func (r *landingRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// PersistError reports a failed dataset replacement. The previous dataset
// remains in place.
type PersistError struct {
	Stage string
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist landings (%s): %v", e.Stage, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether retrying the run may succeed
func (e *PersistError) IsTransient() bool {
	return database.IsBusy(e.Err)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
