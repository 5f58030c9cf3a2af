// Package rules holds the declarative standardization tables: header
// spellings, per-year unit corrections, nationality and length-group
// normalization. A RuleSet is immutable once loaded.
package rules

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"fish-landings/internal/models"
)

//go:embed default_rules.yaml
var defaultRules []byte

// Unit is the monetary unit of a value column.
type Unit string

const (
	UnitThousands Unit = "thousands"
	UnitWhole     Unit = "whole"
)

func (u Unit) valid() bool {
	return u == UnitThousands || u == UnitWhole
}

// ValueColumn is one historical spelling of the monetary column and the unit its label declares.
// ActualUnit, when set, is the unit the figures under this spelling are always in,
// whatever the year; per-year corrections do not apply to such a column.
type ValueColumn struct {
	Name       string `yaml:"name"`
	Unit       Unit   `yaml:"unit"`
	ActualUnit Unit   `yaml:"actual_unit,omitempty"`
}

// UnitCorrection overrides one declared unit for one year.
type UnitCorrection struct {
	Year         int    `yaml:"year"`
	DeclaredUnit Unit   `yaml:"declared_unit"`
	ActualUnit   Unit   `yaml:"actual_unit"`
	Note         string `yaml:"note"`
}

type document struct {
	Years struct {
		First int `yaml:"first"`
		Last  int `yaml:"last"`
	} `yaml:"years"`
	DropColumns     []string            `yaml:"drop_columns"`
	Columns         map[string][]string `yaml:"columns"`
	ValueColumns    []ValueColumn       `yaml:"value_columns"`
	UnitCorrections []UnitCorrection    `yaml:"unit_corrections"`
	Nationality     struct {
		StripPrefixes []string          `yaml:"strip_prefixes"`
		Aliases       map[string]string `yaml:"aliases"`
	} `yaml:"nationality"`
	LengthGroups struct {
		Allowed []string          `yaml:"allowed"`
		Aliases map[string]string `yaml:"aliases"`
	} `yaml:"length_groups"`
	RequiredFields []string `yaml:"required_fields"`
}

// ColumnMatch describes how a source header maps onto the canonical schema.
type ColumnMatch struct {
	Field    string
	Spelling string
	// Precedence orders competing spellings of the same field; lower wins.
	Precedence int
	// Unit is set for monetary value columns only.
	Unit Unit
	// Actual is set when the spelling itself identifies the real unit.
	Actual Unit
}

// RuleSet is the loaded, validated rule tables.
type RuleSet struct {
	firstYear     int
	lastYear      int
	drop          []*regexp.Regexp
	spellings     map[string]ColumnMatch
	corrections   map[int]UnitCorrection
	stripPrefixes []string
	nationalities map[string]string
	lengthAllowed []string
	lengthAliases map[string]string
	required      []string
}

// Load reads rules from path, or the embedded defaults when path is empty.
func Load(path string) (*RuleSet, error) {
	if path == "" {
		return Parse(defaultRules)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return rs, nil
}

// Default returns the embedded rule set.
func Default() *RuleSet {
	rs, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded rules are invalid: %v", err))
	}
	return rs
}

// Parse decodes and validates a YAML rules document.
func Parse(data []byte) (*RuleSet, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return build(&doc)
}

func build(doc *document) (*RuleSet, error) {
	var errs []string
	rs := &RuleSet{
		firstYear:     doc.Years.First,
		lastYear:      doc.Years.Last,
		spellings:     make(map[string]ColumnMatch),
		corrections:   make(map[int]UnitCorrection),
		nationalities: make(map[string]string),
		lengthAliases: make(map[string]string),
	}

	if rs.firstYear <= 0 || rs.firstYear > rs.lastYear {
		errs = append(errs, fmt.Sprintf("years: invalid range %d-%d", rs.firstYear, rs.lastYear))
	}

	for _, pattern := range doc.DropColumns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			errs = append(errs, fmt.Sprintf("drop_columns: %q: %v", pattern, err))
			continue
		}
		rs.drop = append(rs.drop, re)
	}

	addSpelling := func(m ColumnMatch) {
		key := FoldKey(m.Spelling)
		if key == "" {
			errs = append(errs, fmt.Sprintf("%s: empty spelling", m.Field))
			return
		}
		if prev, ok := rs.spellings[key]; ok {
			errs = append(errs, fmt.Sprintf("spelling %q is listed for both %s and %s", m.Spelling, prev.Field, m.Field))
			return
		}
		rs.spellings[key] = m
	}

	// Sorted for stable error output.
	fields := make([]string, 0, len(doc.Columns))
	for f := range doc.Columns {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, field := range fields {
		switch {
		case !models.IsCanonicalField(field):
			errs = append(errs, fmt.Sprintf("columns: unknown canonical field %q", field))
			continue
		case field == models.FieldValueThousands:
			errs = append(errs, "columns: value_thousands spellings belong in value_columns")
			continue
		}
		for i, spelling := range doc.Columns[field] {
			addSpelling(ColumnMatch{Field: field, Spelling: spelling, Precedence: i})
		}
	}

	for i, vc := range doc.ValueColumns {
		if !vc.Unit.valid() {
			errs = append(errs, fmt.Sprintf("value_columns: %q has invalid unit %q", vc.Name, vc.Unit))
			continue
		}
		if vc.ActualUnit != "" && !vc.ActualUnit.valid() {
			errs = append(errs, fmt.Sprintf("value_columns: %q has invalid actual unit %q", vc.Name, vc.ActualUnit))
			continue
		}
		addSpelling(ColumnMatch{Field: models.FieldValueThousands, Spelling: vc.Name, Precedence: i, Unit: vc.Unit, Actual: vc.ActualUnit})
	}

	for _, c := range doc.UnitCorrections {
		switch {
		case !c.ActualUnit.valid():
			errs = append(errs, fmt.Sprintf("unit_corrections: year %d has invalid unit %q", c.Year, c.ActualUnit))
		case !c.DeclaredUnit.valid():
			errs = append(errs, fmt.Sprintf("unit_corrections: year %d has invalid declared unit %q", c.Year, c.DeclaredUnit))
		case c.Year < rs.firstYear || c.Year > rs.lastYear:
			errs = append(errs, fmt.Sprintf("unit_corrections: year %d is outside %d-%d", c.Year, rs.firstYear, rs.lastYear))
		default:
			if _, dup := rs.corrections[c.Year]; dup {
				errs = append(errs, fmt.Sprintf("unit_corrections: year %d listed twice", c.Year))
				continue
			}
			rs.corrections[c.Year] = c
		}
	}

	for _, p := range doc.Nationality.StripPrefixes {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, "nationality: empty strip prefix")
			continue
		}
		rs.stripPrefixes = append(rs.stripPrefixes, p)
	}
	for from, to := range doc.Nationality.Aliases {
		rs.nationalities[strings.TrimSpace(from)] = strings.TrimSpace(to)
	}
	for from, to := range rs.nationalities {
		if got := rs.NormalizeNationality(to); got != to {
			errs = append(errs, fmt.Sprintf("nationality: alias %q -> %q is not stable (normalizes to %q)", from, to, got))
		}
	}

	allowed := make(map[string]bool)
	for _, g := range doc.LengthGroups.Allowed {
		rs.lengthAllowed = append(rs.lengthAllowed, g)
		allowed[g] = true
		rs.lengthAliases[FoldKey(g)] = g
	}
	for from, to := range doc.LengthGroups.Aliases {
		if !allowed[to] {
			errs = append(errs, fmt.Sprintf("length_groups: alias %q targets %q, which is not allowed", from, to))
			continue
		}
		rs.lengthAliases[FoldKey(from)] = to
	}

	for _, f := range doc.RequiredFields {
		if !models.IsCanonicalField(f) {
			errs = append(errs, fmt.Sprintf("required_fields: unknown canonical field %q", f))
			continue
		}
		rs.required = append(rs.required, f)
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, fmt.Errorf("invalid rules:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return rs, nil
}

// FoldKey normalizes a header for matching.
func FoldKey(s string) string {
	s = cases.Fold().String(norm.NFC.String(s))
	return strings.Join(strings.Fields(s), " ")
}

// FirstYear returns the first supported year.
func (rs *RuleSet) FirstYear() int { return rs.firstYear }

// LastYear returns the last supported year.
func (rs *RuleSet) LastYear() int { return rs.lastYear }

// InRange reports whether year is within the supported range.
func (rs *RuleSet) InRange(year int) bool {
	return year >= rs.firstYear && year <= rs.lastYear
}

// Dropped reports whether a raw header is explicitly excluded before mapping.
func (rs *RuleSet) Dropped(header string) bool {
	h := strings.TrimSpace(header)
	for _, re := range rs.drop {
		if re.MatchString(h) {
			return true
		}
	}
	return false
}

// Lookup maps a raw header to its canonical field.
func (rs *RuleSet) Lookup(header string) (ColumnMatch, bool) {
	m, ok := rs.spellings[FoldKey(header)]
	return m, ok
}

// ActualUnit returns the unit the figures under value column m are really in
// for year, and the correction applied if any. A spelling that names its own
// actual unit wins over the year table; a year correction only fixes the
// label it was recorded against.
func (rs *RuleSet) ActualUnit(year int, m ColumnMatch) (Unit, *UnitCorrection) {
	if m.Actual != "" {
		return m.Actual, nil
	}
	if c, ok := rs.corrections[year]; ok && c.DeclaredUnit == m.Unit {
		return c.ActualUnit, &c
	}
	return m.Unit, nil
}

// Corrections returns the unit corrections ordered by year.
func (rs *RuleSet) Corrections() []UnitCorrection {
	out := make([]UnitCorrection, 0, len(rs.corrections))
	for _, c := range rs.corrections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// NormalizeNationality strips group prefixes and applies spelling aliases.
// It is idempotent: NormalizeNationality(NormalizeNationality(s)) equals
// NormalizeNationality(s). An empty result means the value carried no name.
func (rs *RuleSet) NormalizeNationality(s string) string {
	s = strings.TrimSpace(s)
	for stripped := true; stripped; {
		stripped = false
		for _, p := range rs.stripPrefixes {
			switch {
			case strings.HasPrefix(s, p):
				s = strings.TrimSpace(s[len(p):])
				stripped = true
			case s != "" && s == strings.TrimSpace(p):
				s = ""
			}
		}
	}
	if alias, ok := rs.nationalities[s]; ok {
		return alias
	}
	return s
}

// NormalizeLengthGroup maps a vessel length group onto the allowed
// enumeration. ok is false when the value is not recognised; the trimmed
// input is returned unchanged in that case.
func (rs *RuleSet) NormalizeLengthGroup(s string) (string, bool) {
	if g, ok := rs.lengthAliases[FoldKey(s)]; ok {
		return g, true
	}
	return strings.TrimSpace(s), false
}

// LengthGroups returns the allowed vessel length groups.
func (rs *RuleSet) LengthGroups() []string {
	return append([]string(nil), rs.lengthAllowed...)
}

// RequiredFields returns the fields whose absence raises a warning.
func (rs *RuleSet) RequiredFields() []string {
	return append([]string(nil), rs.required...)
}
