package handlers

import (
	"encoding/json"
	"net/http"

	"fish-landings/internal/models"
)

func queryParam(name, description, typ string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      map[string]string{"type": typ},
	}
}

func jsonResponse(description string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": schema,
			},
		},
	}
}

// landingSchema derives the record schema from the canonical column list
func landingSchema() map[string]interface{} {
	props := make(map[string]interface{}, len(models.Schema))
	for _, c := range models.Schema {
		typ := "string"
		switch c.Type {
		case models.TypeInteger:
			typ = "integer"
		case models.TypeReal:
			typ = "number"
		}
		props[c.Name] = map[string]interface{}{
			"type":        typ,
			"nullable":    c.Nullable,
			"description": c.Description,
		}
	}
	return map[string]interface{}{"type": "object", "properties": props}
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the Fish Landings API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	errorResponse := jsonResponse("Error", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"error":   map[string]string{"type": "string"},
			"message": map[string]string{"type": "string"},
			"code":    map[string]string{"type": "integer"},
		},
	})

	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Fish Landings API",
			"description": "Standardized UK sea fisheries landings, one row per port, month, species and fleet segment",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/landings": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List landings",
					"description": "Retrieve landings with filtering and pagination",
					"parameters": []map[string]interface{}{
						queryParam("year_from", "First year, inclusive", "integer"),
						queryParam("year_to", "Last year, inclusive", "integer"),
						queryParam("month", "Month number (1-12)", "integer"),
						queryParam("port", "Port of landing", "string"),
						queryParam("port_nationality", "Nationality of the port", "string"),
						queryParam("vessel_nationality", "Nationality of the vessel", "string"),
						queryParam("length_group", "10m&Under or Over10m", "string"),
						queryParam("gear_category", "Gear category", "string"),
						queryParam("species_code", "Species code", "string"),
						queryParam("species_name", "Species name", "string"),
						queryParam("species_group", "Species group", "string"),
						queryParam("page", "Page number (default: 1)", "integer"),
						queryParam("limit", "Records per page (default: 100, max: 1000)", "integer"),
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"data":        map[string]interface{}{"type": "array", "items": landingSchema()},
								"total":       map[string]string{"type": "integer"},
								"page":        map[string]string{"type": "integer"},
								"limit":       map[string]string{"type": "integer"},
								"total_pages": map[string]string{"type": "integer"},
							},
						}),
						"400": errorResponse,
					},
				},
			},
			"/api/landings/summary": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Dataset summary",
					"description": "Row count, year range, distinct ports and species, total value (£m) and live weight (kt)",
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", map[string]interface{}{"type": "object"}),
					},
				},
			},
			"/api/landings/years": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Per-year statistics",
					"description": "Rows, rows with no gear category, and price per tonne for each year",
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", map[string]interface{}{"type": "object"}),
					},
				},
			},
			"/api/schema": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Canonical schema",
					"description": "Column names, types and descriptions of the landings table",
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", map[string]interface{}{"type": "object"}),
					},
				},
			},
			"/api/query": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Run a read-only query",
					"description": "Execute one SELECT or WITH statement against the landings table. Results are capped at the configured row limit.",
					"requestBody": map[string]interface{}{
						"required": true,
						"content": map[string]interface{}{
							"application/json": map[string]interface{}{
								"schema": map[string]interface{}{
									"type":       "object",
									"properties": map[string]interface{}{"sql": map[string]string{"type": "string"}},
									"required":   []string{"sql"},
								},
							},
						},
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Query result", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"columns":   map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
								"rows":      map[string]interface{}{"type": "array", "items": map[string]string{"type": "array"}},
								"row_count": map[string]string{"type": "integer"},
								"truncated": map[string]string{"type": "boolean"},
							},
						}),
						"400": errorResponse,
					},
				},
			},
			"/api/runs": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":    "Pipeline runs",
					"parameters": []map[string]interface{}{queryParam("limit", "Runs to return (default: 20)", "integer")},
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", map[string]interface{}{"type": "object"}),
					},
				},
			},
			"/api/runs/{id}": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Pipeline run by ID",
					"parameters": []map[string]interface{}{{
						"name":     "id",
						"in":       "path",
						"required": true,
						"schema":   map[string]string{"type": "string"},
					}},
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", map[string]interface{}{"type": "object"}),
						"404": errorResponse,
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Health check",
					"description": "Check if the API and its store are available",
					"responses": map[string]interface{}{
						"200": jsonResponse("API is healthy", map[string]interface{}{
							"type":       "object",
							"properties": map[string]interface{}{"status": map[string]string{"type": "string"}},
						}),
						"503": jsonResponse("Store unavailable", map[string]interface{}{"type": "object"}),
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
