package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"fish-landings/internal/models"
	"fish-landings/internal/rules"
	"fish-landings/internal/source"
	"fish-landings/internal/standardize"
	"fish-landings/pkg/logging"
)

// Column dispositions reported by an inspection
const (
	ColumnMapped   = "mapped"
	ColumnIgnored  = "ignored"
	ColumnDropped  = "dropped"
	ColumnUnmapped = "unmapped"
)

// InspectionService reports how each source year would be standardized
// without writing anything
type InspectionService struct {
	loader       SourceLoader
	standardizer *standardize.Standardizer
	rules        *rules.RuleSet
	logger       *logging.StructuredLogger
}

// ColumnInventory describes one source column
type ColumnInventory struct {
	Name        string `json:"name"`
	Disposition string `json:"disposition"`
	Field       string `json:"field,omitempty"`
}

// ValueCount is a distinct raw value, its normalized form and frequency
type ValueCount struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"`
	Count      int    `json:"count"`
}

// YearInventory is the inspection of one source year
type YearInventory struct {
	Year           int                        `json:"year"`
	Path           string                     `json:"path,omitempty"`
	Found          bool                       `json:"found"`
	Error          string                     `json:"error,omitempty"`
	Rows           int                        `json:"rows"`
	Columns        []ColumnInventory          `json:"columns,omitempty"`
	Mapping        *standardize.ColumnMapping `json:"mapping,omitempty"`
	Warnings       []standardize.Warning      `json:"warnings,omitempty"`
	Nationalities  []ValueCount               `json:"nationalities,omitempty"`
	GearCategories []ValueCount               `json:"gear_categories,omitempty"`
}

// NewInspectionService creates a new inspection service
func NewInspectionService(loader SourceLoader, standardizer *standardize.Standardizer, rs *rules.RuleSet, logger *logging.StructuredLogger) *InspectionService {
	return &InspectionService{
		loader:       loader,
		standardizer: standardizer,
		rules:        rs,
		logger:       logger,
	}
}

// Inspect builds an inventory for each year. Missing or malformed years are
// reported in the inventory rather than returned as errors.
func (s *InspectionService) Inspect(ctx context.Context, years []int) ([]*YearInventory, error) {
	out := make([]*YearInventory, 0, len(years))
	for _, year := range years {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		inv := &YearInventory{Year: year}
		out = append(out, inv)

		set, err := s.loader.Load(ctx, year)
		if err != nil {
			var nf *source.NotFoundError
			inv.Found = !errors.As(err, &nf)
			inv.Error = err.Error()
			continue
		}
		inv.Found = true
		inv.Path = set.Path
		inv.Rows = len(set.Rows)

		mapping, warnings := s.standardizer.Plan(set)
		inv.Mapping = &mapping
		inv.Warnings = warnings
		inv.Columns = columnInventory(set.Columns, mapping)

		natCols := assignedColumns(mapping, models.FieldPortNationality, models.FieldVesselNationality)
		inv.Nationalities = s.valueCounts(set, natCols, s.rules.NormalizeNationality)
		gearCols := assignedColumns(mapping, models.FieldGearCategory)
		inv.GearCategories = s.valueCounts(set, gearCols, strings.TrimSpace)

		s.logger.Debug(ctx, "[INSPECT_YEAR] Source year inspected", logging.Fields{
			"year":     year,
			"rows":     inv.Rows,
			"columns":  len(inv.Columns),
			"warnings": len(warnings),
		})
	}
	return out, nil
}

func columnInventory(columns []string, mapping standardize.ColumnMapping) []ColumnInventory {
	fieldOf := make(map[string]string, len(mapping.Assigned))
	for field, col := range mapping.Assigned {
		fieldOf[col] = field
	}
	in := func(list []string, col string) bool {
		for _, c := range list {
			if c == col {
				return true
			}
		}
		return false
	}

	out := make([]ColumnInventory, 0, len(columns))
	for _, col := range columns {
		ci := ColumnInventory{Name: col}
		switch {
		case fieldOf[col] != "":
			ci.Disposition = ColumnMapped
			ci.Field = fieldOf[col]
		case in(mapping.Ignored, col):
			ci.Disposition = ColumnIgnored
		case in(mapping.Dropped, col):
			ci.Disposition = ColumnDropped
		default:
			ci.Disposition = ColumnUnmapped
		}
		out = append(out, ci)
	}
	return out
}

func assignedColumns(mapping standardize.ColumnMapping, fields ...string) []string {
	var cols []string
	for _, f := range fields {
		if c, ok := mapping.Assigned[f]; ok {
			cols = append(cols, c)
		}
	}
	return cols
}

// valueCounts tallies the distinct non-empty values of columns, most frequent first.
func (s *InspectionService) valueCounts(set *models.RawRecordSet, columns []string, normalize func(string) string) []ValueCount {
	if len(columns) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, row := range set.Rows {
		for _, c := range columns {
			v := strings.TrimSpace(row[c])
			if v == "" {
				continue
			}
			counts[v]++
		}
	}

	out := make([]ValueCount, 0, len(counts))
	for raw, n := range counts {
		out = append(out, ValueCount{Raw: raw, Normalized: normalize(raw), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Raw < out[j].Raw
	})
	return out
}
