package services

import (
	"sort"

	"fish-landings/internal/models"
	"fish-landings/internal/standardize"
)

// Aggregator combines per-year standardized results into one dataset
type Aggregator struct{}

// CombineResult is the aggregated dataset ready for persistence
type CombineResult struct {
	Records           []models.LandingRecord
	Years             []int
	RowsIn            int
	DuplicatesRemoved int
}

// Combine concatenates results in year order and removes rows that are
// identical across every field. The first occurrence of a row is kept.
// Inputs are not modified.
func (Aggregator) Combine(results []*standardize.Result) *CombineResult {
	ordered := make([]*standardize.Result, 0, len(results))
	total := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		ordered = append(ordered, r)
		total += len(r.Records)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Year < ordered[j].Year
	})

	out := &CombineResult{
		Records: make([]models.LandingRecord, 0, total),
		Years:   make([]int, 0, len(ordered)),
		RowsIn:  total,
	}

	seen := make(map[string]struct{}, total)
	for _, r := range ordered {
		out.Years = append(out.Years, r.Year)
		for i := range r.Records {
			key := r.Records[i].Key()
			if _, dup := seen[key]; dup {
				out.DuplicatesRemoved++
				continue
			}
			seen[key] = struct{}{}
			out.Records = append(out.Records, r.Records[i])
		}
	}

	return out
}
