package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"fish-landings/internal/models"
	"fish-landings/internal/repository"
	"fish-landings/internal/rules"
	"fish-landings/internal/source"
	"fish-landings/internal/standardize"
	"fish-landings/pkg/database"
	"fish-landings/pkg/logging"
	"fish-landings/pkg/metrics"
)

const header2019 = "Year,Month Landed,Port of Landing,Port Nationality,Vessel Nationality,Length Group,Species name,Live weight (tonnes),Value (£)\n"

const header2021 = "Year,Month,Port of Landing,Port Nationality,Vessel Nationality,Length Group,Species name,Live weight (tonnes),Value(£000s)\n"

// fakeRepository records what the pipeline persists
type fakeRepository struct {
	repository.LandingRepository

	mu         sync.Mutex
	replaceErr error
	records    []models.LandingRecord
	run        *models.RunRecord
	replaced   int
}

func (f *fakeRepository) ReplaceLandings(_ context.Context, records []models.LandingRecord, run *models.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.records = records
	f.run = run
	f.replaced++
	return nil
}

func (f *fakeRepository) Summary(context.Context) (*models.DatasetSummary, error) {
	return &models.DatasetSummary{TotalRecords: len(f.records)}, nil
}

func (f *fakeRepository) YearStats(context.Context) ([]*models.YearStats, error) {
	return nil, nil
}

func testLogger() *logging.StructuredLogger {
	logger := logging.NewStructuredLogger("services-test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	return logger
}

func writeSource(t *testing.T, dir string, year int, content string) {
	t.Helper()
	path := filepath.Join(dir, strconv.Itoa(year)+".csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestPipeline(t *testing.T, dir string, repo repository.LandingRepository, opts ...standardize.Option) *IngestionService {
	t.Helper()
	rs := rules.Default()
	logger := testLogger()
	return NewIngestionService(
		source.NewLoader(dir, "{year}.csv", rs, logger),
		standardize.New(rs, opts...),
		repo,
		logger,
		metrics.NewCollector("test", nil),
	)
}

func fixtureDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeSource(t, dir, 2019, header2019+
		"2019,1,Peterhead,UK - Scotland,UK - Scotland,Over10m,Mackerel,100,50\n"+
		"2019,2,Lerwick,UK - Scotland,UK - Scotland,Over10m,Herring,20,10\n")
	writeSource(t, dir, 2021, header2021+
		"2021,January,Newlyn,UK - England,UK - England,10m&Under,Crab,1.5,3.25\n"+
		"2021,February,Brixham,UK - England,France,Over10m,Sole,0.5,6\n")
	return dir
}

func TestIngestionService_MissingYearIsSkipped(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := &fakeRepository{}
	svc := newTestPipeline(t, fixtureDir(t), repo)

	report, err := svc.Run(context.Background(), RunOptions{Years: []int{2019, 2020, 2021}, Workers: 3})
	require.NoError(t, err)

	assert.Equal(t, []int{2019, 2021}, report.YearsLoaded)
	assert.Equal(t, []int{2020}, report.YearsSkipped)
	assert.Equal(t, 4, report.RowsPersisted)
	assert.NotEmpty(t, report.RunID)

	var notFound []standardize.Warning
	for _, w := range report.Warnings {
		if w.Kind == standardize.KindNotFound {
			notFound = append(notFound, w)
		}
	}
	require.Len(t, notFound, 1)
	assert.Equal(t, 2020, notFound[0].Year)

	require.Equal(t, 1, repo.replaced)
	years := map[int]int{}
	for _, r := range repo.records {
		years[r.Year]++
	}
	assert.Equal(t, map[int]int{2019: 2, 2021: 2}, years)

	assert.Equal(t, report.RunID, repo.run.RunID)
	assert.Equal(t, "2019,2021", repo.run.YearsLoaded)
	assert.Equal(t, "2020", repo.run.YearsSkipped)
}

func TestIngestionService_MissingYearDoesNotChangeOtherYears(t *testing.T) {
	dir := fixtureDir(t)

	withAll := &fakeRepository{}
	_, err := newTestPipeline(t, dir, withAll).Run(context.Background(), RunOptions{Years: []int{2019, 2021}})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "2019.csv")))
	without := &fakeRepository{}
	_, err = newTestPipeline(t, dir, without).Run(context.Background(), RunOptions{Years: []int{2019, 2021}})
	require.NoError(t, err)

	var kept []models.LandingRecord
	for _, r := range withAll.records {
		if r.Year == 2021 {
			kept = append(kept, r)
		}
	}
	assert.Equal(t, kept, without.records)
}

func TestIngestionService_StandardizesValues(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestPipeline(t, fixtureDir(t), repo)

	_, err := svc.Run(context.Background(), RunOptions{Years: []int{2019, 2021}, Workers: 2})
	require.NoError(t, err)
	require.Len(t, repo.records, 4)

	first := repo.records[0]
	assert.Equal(t, 2019, first.Year)
	assert.Equal(t, "Scotland", *first.PortNationality)
	assert.InDelta(t, 50.0, *first.ValueThousands, 1e-9)

	last := repo.records[3]
	assert.Equal(t, 2021, last.Year)
	assert.Equal(t, 2, *last.Month)
	assert.Equal(t, "France", *last.VesselNationality)
	assert.InDelta(t, 6.0, *last.ValueThousands, 1e-9)
}

func TestIngestionService_DuplicateRowsRemoved(t *testing.T) {
	dir := t.TempDir()
	row := "2022,3,Hull,UK - England,UK - England,Over10m,Cod,2,4\n"
	writeSource(t, dir, 2022, header2021+row+row+"2022,4,Hull,UK - England,UK - England,Over10m,Cod,2,4\n")

	repo := &fakeRepository{}
	report, err := newTestPipeline(t, dir, repo).Run(context.Background(), RunOptions{Years: []int{2022}})
	require.NoError(t, err)

	assert.Equal(t, 3, report.RowsIn)
	assert.Equal(t, 1, report.DuplicatesRemoved)
	assert.Len(t, repo.records, 2)
	assert.Equal(t, 1, repo.run.DuplicatesRemoved)
}

func TestIngestionService_YearMismatchSkipsYear(t *testing.T) {
	dir := fixtureDir(t)
	writeSource(t, dir, 2023, header2021+"2022,1,Hull,UK - England,UK - England,Over10m,Cod,2,4\n")

	repo := &fakeRepository{}
	report, err := newTestPipeline(t, dir, repo).Run(context.Background(), RunOptions{Years: []int{2021, 2023}})
	require.NoError(t, err)

	assert.Equal(t, []int{2021}, report.YearsLoaded)
	assert.Equal(t, []int{2023}, report.YearsSkipped)
	counts := standardize.CountByKind(report.Warnings)
	assert.Equal(t, 1, counts[standardize.KindYearMismatch])
}

func TestIngestionService_FormatErrorSkipsYear(t *testing.T) {
	dir := fixtureDir(t)
	writeSource(t, dir, 2022, "Year,Year\n2022,2022\n")

	repo := &fakeRepository{}
	report, err := newTestPipeline(t, dir, repo).Run(context.Background(), RunOptions{Years: []int{2021, 2022}})
	require.NoError(t, err)

	assert.Equal(t, []int{2022}, report.YearsSkipped)
	counts := standardize.CountByKind(report.Warnings)
	assert.Equal(t, 1, counts[standardize.KindFormatError])
}

func TestIngestionService_PersistFailureFailsRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := &fakeRepository{replaceErr: &repository.PersistError{Stage: "swap", Err: errors.New("disk full")}}
	report, err := newTestPipeline(t, fixtureDir(t), repo).Run(context.Background(), RunOptions{Years: []int{2019, 2021}, Workers: 2})
	require.Error(t, err)

	var perr *repository.PersistError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "swap", perr.Stage)
	require.NotNil(t, report)
	assert.Equal(t, []int{2019, 2021}, report.YearsLoaded)
	assert.Zero(t, report.RowsPersisted)
}

func TestIngestionService_DryRun(t *testing.T) {
	repo := &fakeRepository{}
	report, err := newTestPipeline(t, fixtureDir(t), repo).Run(context.Background(), RunOptions{Years: []int{2019, 2021}, DryRun: true})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 4, report.RowsIn)
	assert.Zero(t, report.RowsPersisted)
	assert.Zero(t, repo.replaced)
}

func TestIngestionService_NoYears(t *testing.T) {
	_, err := newTestPipeline(t, t.TempDir(), &fakeRepository{}).Run(context.Background(), RunOptions{})
	require.Error(t, err)
}

func TestIngestionService_NothingLoadedKeepsDataset(t *testing.T) {
	defer goleak.VerifyNone(t)

	for _, dryRun := range []bool{false, true} {
		repo := &fakeRepository{}
		report, err := newTestPipeline(t, t.TempDir(), repo).Run(context.Background(), RunOptions{
			Years:   YearRange(2014, 2024),
			Workers: 4,
			DryRun:  dryRun,
		})
		require.ErrorIs(t, err, ErrNoYearsLoaded)

		require.NotNil(t, report)
		assert.Empty(t, report.YearsLoaded)
		assert.Len(t, report.YearsSkipped, 11)
		assert.Equal(t, 11, standardize.CountByKind(report.Warnings)[standardize.KindNotFound])
		assert.Zero(t, repo.replaced, "dry_run=%v", dryRun)
		assert.Zero(t, report.RowsPersisted)
	}
}

func TestIngestionService_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := &fakeRepository{}
	_, err := newTestPipeline(t, fixtureDir(t), repo).Run(ctx, RunOptions{Years: []int{2019, 2021}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, repo.replaced)
}

func TestIngestionService_EndToEndSQLite(t *testing.T) {
	logger := testLogger()
	collector := metrics.NewCollector("test", nil)
	db, err := database.Open(&database.Config{
		Driver:       database.DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "landings.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}, logger, collector)
	require.NoError(t, err)
	defer db.Close()

	repo := repository.NewLandingRepository(db, logger, collector, 2)
	require.NoError(t, repo.EnsureSchema(context.Background()))

	report, err := newTestPipeline(t, fixtureDir(t), repo).Run(context.Background(), RunOptions{Years: YearRange(2019, 2021), Workers: 2})
	require.NoError(t, err)

	require.NotNil(t, report.Summary)
	assert.Equal(t, 4, report.Summary.TotalRecords)
	assert.Equal(t, 2019, *report.Summary.FirstYear)
	assert.Equal(t, 2021, *report.Summary.LastYear)
	require.Len(t, report.YearStats, 2)

	got, total, err := repo.ListLandings(context.Background(), repository.LandingFilter{PortNationality: strPtr("England"), Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, got, 2)

	run, err := repo.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, "2020", run.YearsSkipped)
	assert.Equal(t, 4, run.RowsPersisted)
}

func TestYearRange(t *testing.T) {
	assert.Equal(t, []int{2014, 2015, 2016}, YearRange(2014, 2016))
	assert.Nil(t, YearRange(2016, 2014))
}

func strPtr(s string) *string {
	return &s
}
