package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fish-landings/internal/models"
	"fish-landings/internal/repository"
	"fish-landings/internal/services"
	"fish-landings/pkg/database"
	"fish-landings/pkg/logging"
	"fish-landings/pkg/metrics"
)

func strPtr(s string) *string {
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}

func intPtr(i int) *int {
	return &i
}

func newTestRouter(t *testing.T, rowLimit int) *mux.Router {
	t.Helper()
	logger := logging.NewStructuredLogger("handlers-test", "test", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	collector := metrics.NewCollector("test", nil)

	db, err := database.Open(&database.Config{
		Driver:       database.DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "landings.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}, logger, collector)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := repository.NewLandingRepository(db, logger, collector, 100)
	ctx := context.Background()
	require.NoError(t, repo.EnsureSchema(ctx))

	records := []models.LandingRecord{
		{Year: 2023, Month: intPtr(1), Port: strPtr("Peterhead"), PortNationality: strPtr("Scotland"), SpeciesName: strPtr("Mackerel"), LiveWeightTonnes: floatPtr(100), ValueThousands: floatPtr(90)},
		{Year: 2023, Month: intPtr(2), Port: strPtr("Newlyn"), PortNationality: strPtr("England"), SpeciesName: strPtr("Hake"), LiveWeightTonnes: floatPtr(10), ValueThousands: floatPtr(30)},
		{Year: 2024, Month: intPtr(1), Port: strPtr("Peterhead"), PortNationality: strPtr("Scotland"), SpeciesName: strPtr("Herring"), LiveWeightTonnes: floatPtr(50), ValueThousands: floatPtr(20)},
	}
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.ReplaceLandings(ctx, records, &models.RunRecord{
		RunID: "run-1", StartedAt: now, FinishedAt: now, YearsLoaded: "2023,2024", RowsPersisted: 3,
	}))

	queryService := services.NewQueryService(repo, logger, collector, rowLimit, 5*time.Second)
	router := mux.NewRouter()
	NewLandingHandler(queryService, logger, collector).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLandingHandler_GetLandings(t *testing.T) {
	router := newTestRouter(t, 100)

	rec := serve(router, http.MethodGet, "/api/landings?port=Peterhead&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var resp struct {
		Data       []models.LandingRecord `json:"data"`
		Total      int                    `json:"total"`
		TotalPages int                    `json:"total_pages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 2, resp.TotalPages)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "Mackerel", *resp.Data[0].SpeciesName)
}

func TestLandingHandler_GetLandingsBadParams(t *testing.T) {
	router := newTestRouter(t, 100)

	for _, target := range []string{"/api/landings?month=13", "/api/landings?year_from=abc"} {
		rec := serve(router, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestLandingHandler_SummaryAndYears(t *testing.T) {
	router := newTestRouter(t, 100)

	rec := serve(router, http.MethodGet, "/api/landings/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary models.DatasetSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.TotalRecords)
	assert.Equal(t, 2, summary.DistinctPorts)

	rec = serve(router, http.MethodGet, "/api/landings/years", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var years struct {
		Data []models.YearStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &years))
	require.Len(t, years.Data, 2)
	assert.Equal(t, 2023, years.Data[0].Year)
}

func TestLandingHandler_Schema(t *testing.T) {
	router := newTestRouter(t, 100)

	rec := serve(router, http.MethodGet, "/api/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Table   string              `json:"table"`
		Columns []models.ColumnSpec `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "landings", resp.Table)
	assert.Len(t, resp.Columns, len(models.Schema))
}

func TestLandingHandler_ExecuteQuery(t *testing.T) {
	router := newTestRouter(t, 2)

	rec := serve(router, http.MethodPost, "/api/query", `{"sql": "SELECT year, species_name FROM landings ORDER BY species_name"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result repository.QueryResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, []string{"year", "species_name"}, result.Columns)
	assert.Equal(t, 2, result.RowCount)
	assert.True(t, result.Truncated)
	assert.Equal(t, "Hake", result.Rows[0][1])
}

func TestLandingHandler_ExecuteQueryRejected(t *testing.T) {
	router := newTestRouter(t, 100)

	tests := []struct {
		name string
		body string
	}{
		{"write", `{"sql": "DELETE FROM landings"}`},
		{"stacked", `{"sql": "SELECT 1; DROP TABLE landings"}`},
		{"malformed body", `{"sql": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, http.MethodPost, "/api/query", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := serve(router, http.MethodGet, "/api/landings/summary", "")
	var summary models.DatasetSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.TotalRecords)
}

func TestLandingHandler_Runs(t *testing.T) {
	router := newTestRouter(t, 100)

	rec := serve(router, http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "run-1")

	rec = serve(router, http.MethodGet, "/api/runs/run-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var run models.RunRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, 3, run.RowsPersisted)

	rec = serve(router, http.MethodGet, "/api/runs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLandingHandler_HealthAndDocs(t *testing.T) {
	router := newTestRouter(t, 100)

	rec := serve(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = serve(router, http.MethodGet, "/api/docs/openapi.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var spec map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spec))
	assert.Contains(t, spec["paths"], "/api/query")

	rec = serve(router, http.MethodGet, "/api/docs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "swagger-ui")
}

func TestRequestID_PropagatesHeader(t *testing.T) {
	router := newTestRouter(t, 100)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}
