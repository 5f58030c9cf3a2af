package models

import (
	"strconv"
	"strings"
	"time"
)

// RunRecord is the audit row written alongside each dataset replacement.
type RunRecord struct {
	RunID             string    `json:"run_id" db:"run_id"`
	StartedAt         time.Time `json:"started_at" db:"started_at"`
	FinishedAt        time.Time `json:"finished_at" db:"finished_at"`
	YearsLoaded       string    `json:"years_loaded" db:"years_loaded"`
	YearsSkipped      string    `json:"years_skipped" db:"years_skipped"`
	RowsPersisted     int       `json:"rows_persisted" db:"rows_persisted"`
	DuplicatesRemoved int       `json:"duplicates_removed" db:"duplicates_removed"`
	WarningCount      int       `json:"warning_count" db:"warning_count"`
}

// JoinYears renders years as a comma-separated list for storage.
func JoinYears(years []int) string {
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, ",")
}

// DatasetSummary describes the persisted landings relation as a whole.
type DatasetSummary struct {
	TotalRecords              int      `json:"total_records" db:"total_records"`
	FirstYear                 *int     `json:"first_year" db:"first_year"`
	LastYear                  *int     `json:"last_year" db:"last_year"`
	DistinctPorts             int      `json:"distinct_ports" db:"distinct_ports"`
	DistinctSpecies           int      `json:"distinct_species" db:"distinct_species"`
	TotalValueMillions        *float64 `json:"total_value_millions" db:"total_value_millions"`
	TotalLiveWeightKilotonnes *float64 `json:"total_live_weight_kilotonnes" db:"total_live_weight_kilotonnes"`
}

// YearStats is a per-year audit of coverage and unit consistency. A price per
// tonne far off its neighbours usually means a unit correction is wrong.
type YearStats struct {
	Year                  int      `json:"year" db:"year"`
	RecordCount           int      `json:"record_count" db:"record_count"`
	NullGearRows          int      `json:"null_gear_rows" db:"null_gear_rows"`
	TotalValueThousands   *float64 `json:"total_value_thousands" db:"total_value_thousands"`
	TotalLiveWeightTonnes *float64 `json:"total_live_weight_tonnes" db:"total_live_weight_tonnes"`
	PricePerTonne         *float64 `json:"price_per_tonne" db:"price_per_tonne"`
}
