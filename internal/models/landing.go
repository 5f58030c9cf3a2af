package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// LandingRecord is one row of the standardized landings dataset.
// NULL values are represented as nil pointers; Year is always present.
type LandingRecord struct {
	Year               int      `json:"year" db:"year"`
	Month              *int     `json:"month" db:"month"`
	Port               *string  `json:"port" db:"port"`
	PortNUTS2          *string  `json:"port_nuts2" db:"port_nuts2"`
	PortNationality    *string  `json:"port_nationality" db:"port_nationality"`
	VesselNationality  *string  `json:"vessel_nationality" db:"vessel_nationality"`
	LengthGroup        *string  `json:"length_group" db:"length_group"`
	GearCategory       *string  `json:"gear_category" db:"gear_category"`
	SpeciesCode        *string  `json:"species_code" db:"species_code"`
	SpeciesName        *string  `json:"species_name" db:"species_name"`
	SpeciesGroup       *string  `json:"species_group" db:"species_group"`
	LiveWeightTonnes   *float64 `json:"live_weight_tonnes" db:"live_weight_tonnes"`
	LandedWeightTonnes *float64 `json:"landed_weight_tonnes" db:"landed_weight_tonnes"`
	ValueThousands     *float64 `json:"value_thousands" db:"value_thousands"`
}

// Canonical field names, in canonical column order.
const (
	FieldYear               = "year"
	FieldMonth              = "month"
	FieldPort               = "port"
	FieldPortNUTS2          = "port_nuts2"
	FieldPortNationality    = "port_nationality"
	FieldVesselNationality  = "vessel_nationality"
	FieldLengthGroup        = "length_group"
	FieldGearCategory       = "gear_category"
	FieldSpeciesCode        = "species_code"
	FieldSpeciesName        = "species_name"
	FieldSpeciesGroup       = "species_group"
	FieldLiveWeightTonnes   = "live_weight_tonnes"
	FieldLandedWeightTonnes = "landed_weight_tonnes"
	FieldValueThousands     = "value_thousands"
)

// ColumnType is the semantic type of a canonical column.
type ColumnType string

const (
	TypeInteger ColumnType = "integer"
	TypeText    ColumnType = "text"
	TypeReal    ColumnType = "real"
)

// ColumnSpec documents one canonical column. The schema list is the contract
// handed to SQL-generating clients, so descriptions are written for them.
type ColumnSpec struct {
	Name        string     `json:"name"`
	Type        ColumnType `json:"type"`
	Nullable    bool       `json:"nullable"`
	Description string     `json:"description"`
}

// LandingsTable is the name of the persisted relation.
const LandingsTable = "landings"

// Schema is the canonical landings schema in column order.
var Schema = []ColumnSpec{
	{FieldYear, TypeInteger, false, "Year of landing, taken from the source file the row came from (e.g. 2024)"},
	{FieldMonth, TypeInteger, true, "Month of landing, 1-12"},
	{FieldPort, TypeText, true, "Port where the catch was landed (e.g. 'Peterhead', 'Plymouth', 'Newlyn')"},
	{FieldPortNUTS2, TypeText, true, "NUTS 2 statistical region of the port"},
	{FieldPortNationality, TypeText, true, "Country or UK nation of the port, without any 'UK - ' prefix (e.g. 'Scotland', 'England', 'Norway')"},
	{FieldVesselNationality, TypeText, true, "Nationality of the vessel, same values as port_nationality"},
	{FieldLengthGroup, TypeText, true, "Vessel size class: '10m&Under' or 'Over10m'"},
	{FieldGearCategory, TypeText, true, "Fishing gear category (e.g. 'Trawl', 'Dredges', 'Pots and traps'); NULL for years whose source omits it"},
	{FieldSpeciesCode, TypeText, true, "Short species code (e.g. 'MAC'); NULL for years whose source omits it"},
	{FieldSpeciesName, TypeText, true, "Species name (e.g. 'Mackerel', 'Cod', 'Lobsters')"},
	{FieldSpeciesGroup, TypeText, true, "Species group: 'Pelagic', 'Demersal' or 'Shellfish'"},
	{FieldLiveWeightTonnes, TypeReal, true, "Live weight in tonnes"},
	{FieldLandedWeightTonnes, TypeReal, true, "Landed weight in tonnes"},
	{FieldValueThousands, TypeReal, true, "Value in thousands of pounds sterling for every year"},
}

// Columns returns the canonical column names in order.
func Columns() []string {
	cols := make([]string, len(Schema))
	for i, c := range Schema {
		cols[i] = c.Name
	}
	return cols
}

// IsCanonicalField reports whether name is a canonical column.
func IsCanonicalField(name string) bool {
	for _, c := range Schema {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Values returns the record's fields in canonical column order; NULLs are nil.
func (r *LandingRecord) Values() []interface{} {
	return []interface{}{
		r.Year,
		intOrNil(r.Month),
		strOrNil(r.Port),
		strOrNil(r.PortNUTS2),
		strOrNil(r.PortNationality),
		strOrNil(r.VesselNationality),
		strOrNil(r.LengthGroup),
		strOrNil(r.GearCategory),
		strOrNil(r.SpeciesCode),
		strOrNil(r.SpeciesName),
		strOrNil(r.SpeciesGroup),
		floatOrNil(r.LiveWeightTonnes),
		floatOrNil(r.LandedWeightTonnes),
		floatOrNil(r.ValueThousands),
	}
}

// Key returns a string that is equal for two records exactly when every field,
// including NULL-ness, is identical.
func (r *LandingRecord) Key() string {
	var b strings.Builder
	for i, v := range r.Values() {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		switch x := v.(type) {
		case nil:
			b.WriteByte(0x00)
		case int:
			b.WriteString(strconv.Itoa(x))
		case string:
			b.WriteString(strconv.Quote(x))
		case float64:
			b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		}
	}
	return b.String()
}

func intOrNil(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func strOrNil(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func floatOrNil(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// RawRecordSet is one source year parsed structurally: rows of source column
// name to raw cell text, with no semantic transformation applied.
type RawRecordSet struct {
	Year    int
	Path    string
	Columns []string
	Rows    []map[string]string
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

// Validate checks the record against the canonical schema constraints.
func (r *LandingRecord) Validate() error {
	if r.Year <= 0 {
		return &ValidationError{Field: FieldYear, Value: strconv.Itoa(r.Year), Message: "year is required"}
	}
	if r.Month != nil && (*r.Month < 1 || *r.Month > 12) {
		return &ValidationError{Field: FieldMonth, Value: strconv.Itoa(*r.Month), Message: fmt.Sprintf("month %d outside 1-12", *r.Month)}
	}

	numbers := []struct {
		field    string
		value    *float64
		negative bool
	}{
		{FieldLiveWeightTonnes, r.LiveWeightTonnes, false},
		{FieldLandedWeightTonnes, r.LandedWeightTonnes, false},
		{FieldValueThousands, r.ValueThousands, true},
	}
	for _, n := range numbers {
		if n.value == nil {
			continue
		}
		v := *n.value
		raw := strconv.FormatFloat(v, 'g', -1, 64)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: n.field, Value: raw, Message: n.field + " must be finite"}
		}
		if v < 0 && !n.negative {
			return &ValidationError{Field: n.field, Value: raw, Message: n.field + " must be non-negative"}
		}
	}
	return nil
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
