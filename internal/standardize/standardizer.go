// Package standardize maps one year's raw record set onto the canonical
// landings schema.
package standardize

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"fish-landings/internal/models"
	"fish-landings/internal/rules"
)

// YearMismatchError is returned in strict mode when a row's own year
// disagrees with the year of the file it came from.
type YearMismatchError struct {
	Year  int
	Found string
	Rows  int
}

func (e *YearMismatchError) Error() string {
	return fmt.Sprintf("source file for %d contains %d rows with year %q", e.Year, e.Rows, e.Found)
}

// IsTransient returns false as the file content will not change on retry
func (e *YearMismatchError) IsTransient() bool {
	return false
}

// ColumnMapping records how a year's source columns were resolved.
type ColumnMapping struct {
	Year int `json:"year"`
	// Assigned maps canonical field to the source column that feeds it.
	Assigned map[string]string `json:"assigned"`
	// Ignored holds columns that lost a collision to a preferred spelling.
	Ignored  []string `json:"ignored,omitempty"`
	Dropped  []string `json:"dropped,omitempty"`
	Unmapped []string `json:"unmapped,omitempty"`
	// Missing lists canonical fields no source column supplies.
	Missing []string `json:"missing,omitempty"`

	DeclaredUnit rules.Unit            `json:"declared_unit,omitempty"`
	ActualUnit   rules.Unit            `json:"actual_unit,omitempty"`
	Correction   *rules.UnitCorrection `json:"correction,omitempty"`
	// ValueDivisor is applied to raw values to express them in thousands.
	ValueDivisor float64 `json:"value_divisor,omitempty"`
}

// Result is one year's standardized output.
type Result struct {
	Year     int
	Records  []models.LandingRecord
	Mapping  ColumnMapping
	Warnings []Warning
}

// Standardizer applies a rule set to raw record sets. It holds no mutable
// state and is safe for concurrent use.
type Standardizer struct {
	rules      *rules.RuleSet
	strictYear bool
}

// Option configures a Standardizer.
type Option func(*Standardizer)

// WithStrictYear controls whether a row year that differs from the file's
// year fails the year (true) or is trusted with a warning (false).
func WithStrictYear(strict bool) Option {
	return func(s *Standardizer) {
		s.strictYear = strict
	}
}

// New creates a Standardizer. Strict year checking is on by default.
func New(rs *rules.RuleSet, opts ...Option) *Standardizer {
	s := &Standardizer{rules: rs, strictYear: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Plan resolves source columns to canonical fields and the value unit for
// set.Year without touching any rows.
func (s *Standardizer) Plan(set *models.RawRecordSet) (ColumnMapping, []Warning) {
	ws := newWarnings(set.Year)
	mapping := s.plan(set, ws)
	return mapping, ws.list()
}

func (s *Standardizer) plan(set *models.RawRecordSet, ws *warnings) ColumnMapping {
	mapping := ColumnMapping{
		Year:         set.Year,
		Assigned:     make(map[string]string),
		ValueDivisor: 1,
	}
	chosen := make(map[string]rules.ColumnMatch)

	for _, col := range set.Columns {
		if s.rules.Dropped(col) {
			mapping.Dropped = append(mapping.Dropped, col)
			continue
		}
		m, ok := s.rules.Lookup(col)
		if !ok {
			mapping.Unmapped = append(mapping.Unmapped, col)
			continue
		}

		prev, taken := chosen[m.Field]
		if !taken {
			chosen[m.Field] = m
			mapping.Assigned[m.Field] = col
			continue
		}

		winner, loser := mapping.Assigned[m.Field], col
		if m.Precedence < prev.Precedence {
			winner, loser = col, mapping.Assigned[m.Field]
			chosen[m.Field] = m
			mapping.Assigned[m.Field] = col
		}
		mapping.Ignored = append(mapping.Ignored, loser)
		ws.add(KindColumnCollision, m.Field, "columns %q and %q both map to %s; using %q", winner, loser, m.Field, winner)
	}

	for _, col := range models.Schema {
		if _, ok := mapping.Assigned[col.Name]; !ok {
			mapping.Missing = append(mapping.Missing, col.Name)
		}
	}

	if vm, ok := chosen[models.FieldValueThousands]; ok {
		mapping.DeclaredUnit = vm.Unit
		mapping.ActualUnit, mapping.Correction = s.rules.ActualUnit(set.Year, vm)
		if mapping.ActualUnit == rules.UnitWhole {
			mapping.ValueDivisor = 1000
		}
	}

	return mapping
}

// Standardize maps set onto canonical records. Missing fields are filled with
// NULL and reported as warnings; only a strict year mismatch is an error.
func (s *Standardizer) Standardize(set *models.RawRecordSet) (*Result, error) {
	if set == nil {
		return nil, errors.New("standardize: nil record set")
	}

	ws := newWarnings(set.Year)
	mapping := s.plan(set, ws)

	// Step A: resolve columns. Step D: absent fields stay NULL.
	col := func(field string) (string, bool) {
		c, ok := mapping.Assigned[field]
		return c, ok
	}

	required := make(map[string]bool)
	for _, f := range s.rules.RequiredFields() {
		required[f] = true
	}
	for _, f := range mapping.Missing {
		if required[f] {
			ws.add(KindFieldMissing, f, "no source column maps to %s; loaded as NULL", f)
			ws.byKey[warningKey{KindFieldMissing, f}].Count = len(set.Rows)
		}
	}

	records := make([]models.LandingRecord, 0, len(set.Rows))
	yearCol, hasYear := col(models.FieldYear)
	mismatches := make(map[string]int)

	for _, row := range set.Rows {
		rec := models.LandingRecord{Year: set.Year}

		// Step E: year stamping.
		if hasYear {
			if y, ok := s.rowYear(row[yearCol], set.Year, ws, mismatches); ok {
				rec.Year = y
			}
		}

		if c, ok := col(models.FieldMonth); ok {
			m, null, valid := parseMonth(row[c])
			switch {
			case !valid:
				ws.add(KindInvalidValue, models.FieldMonth, "unparsable month %q", row[c])
			case !null:
				rec.Month = &m
			}
		}

		rec.Port = s.textField(row, mapping, models.FieldPort)
		rec.PortNUTS2 = s.textField(row, mapping, models.FieldPortNUTS2)
		rec.GearCategory = s.textField(row, mapping, models.FieldGearCategory)
		rec.SpeciesCode = s.textField(row, mapping, models.FieldSpeciesCode)
		rec.SpeciesName = s.textField(row, mapping, models.FieldSpeciesName)
		rec.SpeciesGroup = s.textField(row, mapping, models.FieldSpeciesGroup)

		// Step C: nationality normalization.
		rec.PortNationality = s.nationality(row, mapping, models.FieldPortNationality)
		rec.VesselNationality = s.nationality(row, mapping, models.FieldVesselNationality)

		if c, ok := col(models.FieldLengthGroup); ok {
			if v := text(row[c]); v != nil {
				g, known := s.rules.NormalizeLengthGroup(*v)
				if !known {
					ws.add(KindInvalidValue, models.FieldLengthGroup, "length group %q is not one of %v", g, s.rules.LengthGroups())
				}
				rec.LengthGroup = &g
			}
		}

		rec.LiveWeightTonnes = s.weight(row, mapping, models.FieldLiveWeightTonnes, ws)
		rec.LandedWeightTonnes = s.weight(row, mapping, models.FieldLandedWeightTonnes, ws)

		// Step B: unit correction.
		if c, ok := col(models.FieldValueThousands); ok {
			v, null, valid := parseNumber(row[c])
			switch {
			case !valid:
				ws.add(KindInvalidValue, models.FieldValueThousands, "unparsable value %q", row[c])
			case !null:
				v /= mapping.ValueDivisor
				rec.ValueThousands = &v
			}
		}

		records = append(records, rec)
	}

	if len(mismatches) > 0 && s.strictYear {
		found := make([]string, 0, len(mismatches))
		for y := range mismatches {
			found = append(found, y)
		}
		sort.Strings(found)
		return nil, &YearMismatchError{Year: set.Year, Found: found[0], Rows: mismatches[found[0]]}
	}

	return &Result{
		Year:     set.Year,
		Records:  records,
		Mapping:  mapping,
		Warnings: ws.list(),
	}, nil
}

// rowYear interprets a row's own year cell. Blank and unparsable cells take
// the file year; only a numeric year that disagrees counts as a mismatch.
// ok is false when the file year should be used.
func (s *Standardizer) rowYear(raw string, fileYear int, ws *warnings, mismatches map[string]int) (int, bool) {
	y, null, valid := parseWhole(raw)
	switch {
	case null:
		return 0, false
	case !valid:
		ws.add(KindInvalidValue, models.FieldYear, "unparsable year %q; stamped %d", raw, fileYear)
		return 0, false
	case y != fileYear:
		if s.strictYear {
			mismatches[strconv.Itoa(y)]++
			return 0, false
		}
		ws.add(KindYearMismatch, models.FieldYear, "row year %d differs from file year %d; row year kept", y, fileYear)
		return y, true
	default:
		return y, true
	}
}

func (s *Standardizer) textField(row map[string]string, mapping ColumnMapping, field string) *string {
	c, ok := mapping.Assigned[field]
	if !ok {
		return nil
	}
	return text(row[c])
}

func (s *Standardizer) nationality(row map[string]string, mapping ColumnMapping, field string) *string {
	v := s.textField(row, mapping, field)
	if v == nil {
		return nil
	}
	n := s.rules.NormalizeNationality(*v)
	if n == "" {
		return nil
	}
	return &n
}

func (s *Standardizer) weight(row map[string]string, mapping ColumnMapping, field string, ws *warnings) *float64 {
	c, ok := mapping.Assigned[field]
	if !ok {
		return nil
	}
	v, null, valid := parseNumber(row[c])
	switch {
	case !valid:
		ws.add(KindInvalidValue, field, "unparsable weight %q", row[c])
		return nil
	case null:
		return nil
	case v < 0:
		ws.add(KindInvalidValue, field, "negative weight %v loaded as NULL", v)
		return nil
	}
	return &v
}
