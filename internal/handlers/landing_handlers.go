package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"fish-landings/internal/repository"
	"fish-landings/internal/services"
	"fish-landings/pkg/logging"
	"fish-landings/pkg/metrics"
)

const maxQueryBodyBytes = 64 << 10

// LandingHandler handles landings API endpoints
type LandingHandler struct {
	queryService *services.QueryService
	logger       *logging.StructuredLogger
	metrics      *metrics.Collector
}

// NewLandingHandler creates a new landing handler
func NewLandingHandler(
	queryService *services.QueryService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *LandingHandler {
	return &LandingHandler{
		queryService: queryService,
		logger:       logger,
		metrics:      metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// QueryRequest is the body of POST /api/query
type QueryRequest struct {
	SQL string `json:"sql"`
}

// GetLandings handles GET /api/landings
func (h *LandingHandler) GetLandings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/api/landings").Observe(duration.Seconds())
	}()

	q := r.URL.Query()
	pageStr := q.Get("page")
	limitStr := q.Get("limit")

	// Default pagination
	page := 1
	limit := 100

	if pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	offset := (page - 1) * limit

	// Build filter
	filter := repository.LandingFilter{
		Limit:  limit,
		Offset: offset,
	}

	intParams := []struct {
		name string
		dest **int
		min  int
		max  int
	}{
		{"year_from", &filter.YearFrom, 1900, 2100},
		{"year_to", &filter.YearTo, 1900, 2100},
		{"month", &filter.Month, 1, 12},
	}
	for _, p := range intParams {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < p.min || v > p.max {
			h.sendError(w, r, "invalid "+p.name+", expected integer between "+strconv.Itoa(p.min)+" and "+strconv.Itoa(p.max), http.StatusBadRequest)
			return
		}
		*p.dest = &v
	}

	textParams := []struct {
		name string
		dest **string
	}{
		{"port", &filter.Port},
		{"port_nationality", &filter.PortNationality},
		{"vessel_nationality", &filter.VesselNationality},
		{"length_group", &filter.LengthGroup},
		{"gear_category", &filter.GearCategory},
		{"species_code", &filter.SpeciesCode},
		{"species_name", &filter.SpeciesName},
		{"species_group", &filter.SpeciesGroup},
	}
	for _, p := range textParams {
		if v := q.Get(p.name); v != "" {
			*p.dest = &v
		}
	}

	// Get landings
	landings, total, err := h.queryService.GetLandings(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_LANDINGS_ERROR] Failed to get landings", logging.Fields{
			"page":  page,
			"limit": limit,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/landings")
		h.sendError(w, r, "failed to retrieve landings", http.StatusInternalServerError)
		return
	}

	totalPages := (total + limit - 1) / limit

	response := PaginatedResponse{
		Data:       landings,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}

	h.metrics.RecordAPIRequest("/api/landings", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// GetSummary handles GET /api/landings/summary
func (h *LandingHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	timer := h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues("/api/landings/summary"))
	defer timer.ObserveDuration()

	summary, err := h.queryService.GetSummary(ctx)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_SUMMARY_ERROR] Failed to summarize landings", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/landings/summary")
		h.sendError(w, r, "failed to summarize landings", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/landings/summary", "GET", "200")
	h.sendJSON(w, summary, http.StatusOK)
}

// GetYearStats handles GET /api/landings/years
func (h *LandingHandler) GetYearStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	timer := h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues("/api/landings/years"))
	defer timer.ObserveDuration()

	stats, err := h.queryService.GetYearStats(ctx)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_YEARS_ERROR] Failed to compute year stats", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/landings/years")
		h.sendError(w, r, "failed to compute year statistics", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/landings/years", "GET", "200")
	h.sendJSON(w, map[string]interface{}{"data": stats}, http.StatusOK)
}

// GetSchema handles GET /api/schema
func (h *LandingHandler) GetSchema(w http.ResponseWriter, r *http.Request) {
	h.metrics.RecordAPIRequest("/api/schema", "GET", "200")
	h.sendJSON(w, map[string]interface{}{
		"table":   "landings",
		"columns": h.queryService.Schema(),
	}, http.StatusOK)
}

// ExecuteQuery handles POST /api/query
func (h *LandingHandler) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	timer := h.metrics.NewTimer(h.metrics.APIRequestDuration.WithLabelValues("/api/query"))
	defer timer.ObserveDuration()

	var req QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)).Decode(&req); err != nil {
		h.sendError(w, r, "invalid request body, expected {\"sql\": \"...\"}", http.StatusBadRequest)
		return
	}

	result, err := h.queryService.Execute(ctx, req.SQL)
	if err != nil {
		var rejected *repository.QueryRejectedError
		if errors.As(err, &rejected) {
			h.metrics.RecordAPIError("query_rejected", "/api/query")
			h.sendError(w, r, rejected.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error(ctx, "[API_QUERY_ERROR] Failed to execute query", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/query")
		h.sendError(w, r, "failed to execute query", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/query", "POST", "200")
	h.sendJSON(w, result, http.StatusOK)
}

// GetRuns handles GET /api/runs
func (h *LandingHandler) GetRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	runs, err := h.queryService.GetRuns(ctx, limit)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_RUNS_ERROR] Failed to list runs", logging.Fields{}, err)
		h.metrics.RecordAPIError("internal_error", "/api/runs")
		h.sendError(w, r, "failed to list runs", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/runs", "GET", "200")
	h.sendJSON(w, map[string]interface{}{"data": runs}, http.StatusOK)
}

// GetRun handles GET /api/runs/{id}
func (h *LandingHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := mux.Vars(r)["id"]

	run, err := h.queryService.GetRun(ctx, runID)
	if err != nil {
		var nf *repository.NotFoundError
		if errors.As(err, &nf) {
			h.sendError(w, r, nf.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "[API_GET_RUN_ERROR] Failed to get run", logging.Fields{
			"run_id": runID,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/runs/{id}")
		h.sendError(w, r, "failed to get run", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/runs/{id}", "GET", "200")
	h.sendJSON(w, run, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *LandingHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.queryService.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Store unavailable", logging.Fields{"error": err.Error()})
		status["status"] = "unhealthy"
		h.sendJSON(w, status, http.StatusServiceUnavailable)
		return
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

// sendJSON sends a JSON response
func (h *LandingHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *LandingHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	route := r.URL.Path
	if cur := mux.CurrentRoute(r); cur != nil {
		if tmpl, err := cur.GetPathTemplate(); err == nil {
			route = tmpl
		}
	}
	h.metrics.RecordAPIRequest(route, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all landings API routes
func (h *LandingHandler) RegisterRoutes(router *mux.Router) {
	router.Use(RequestID(h.logger))

	router.HandleFunc("/api/landings", h.GetLandings).Methods("GET")
	router.HandleFunc("/api/landings/summary", h.GetSummary).Methods("GET")
	router.HandleFunc("/api/landings/years", h.GetYearStats).Methods("GET")
	router.HandleFunc("/api/schema", h.GetSchema).Methods("GET")
	router.HandleFunc("/api/query", h.ExecuteQuery).Methods("POST")
	router.HandleFunc("/api/runs", h.GetRuns).Methods("GET")
	router.HandleFunc("/api/runs/{id}", h.GetRun).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
