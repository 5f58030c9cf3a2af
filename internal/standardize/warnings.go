package standardize

import (
	"fmt"
	"sort"
)

// WarningKind classifies a data-quality warning.
type WarningKind string

const (
	KindNotFound        WarningKind = "not_found"
	KindFormatError     WarningKind = "format_error"
	KindFieldMissing    WarningKind = "field_missing"
	KindColumnCollision WarningKind = "column_collision"
	KindInvalidValue    WarningKind = "invalid_value"
	KindYearMismatch    WarningKind = "year_mismatch"
)

// Warning is a non-fatal finding about one year's data, aggregated per
// kind and field. Detail carries the first example seen.
type Warning struct {
	Year   int         `json:"year"`
	Kind   WarningKind `json:"kind"`
	Field  string      `json:"field,omitempty"`
	Count  int         `json:"count"`
	Detail string      `json:"detail"`
}

func (w Warning) String() string {
	if w.Field == "" {
		return fmt.Sprintf("%d %s: %s", w.Year, w.Kind, w.Detail)
	}
	return fmt.Sprintf("%d %s %s (%d rows): %s", w.Year, w.Kind, w.Field, w.Count, w.Detail)
}

type warningKey struct {
	kind  WarningKind
	field string
}

// warnings aggregates findings for one year.
type warnings struct {
	year  int
	byKey map[warningKey]*Warning
	order []warningKey
}

func newWarnings(year int) *warnings {
	return &warnings{year: year, byKey: make(map[warningKey]*Warning)}
}

func (ws *warnings) add(kind WarningKind, field, format string, args ...interface{}) {
	k := warningKey{kind, field}
	if w, ok := ws.byKey[k]; ok {
		w.Count++
		return
	}
	ws.byKey[k] = &Warning{
		Year:   ws.year,
		Kind:   kind,
		Field:  field,
		Count:  1,
		Detail: fmt.Sprintf(format, args...),
	}
	ws.order = append(ws.order, k)
}

func (ws *warnings) list() []Warning {
	out := make([]Warning, 0, len(ws.order))
	for _, k := range ws.order {
		out = append(out, *ws.byKey[k])
	}
	return out
}

// CountByKind totals warning counts per kind.
func CountByKind(ws []Warning) map[WarningKind]int {
	out := make(map[WarningKind]int)
	for _, w := range ws {
		out[w.Kind] += w.Count
	}
	return out
}

// SortWarnings orders warnings by year, then kind, then field.
func SortWarnings(ws []Warning) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].Year != ws[j].Year {
			return ws[i].Year < ws[j].Year
		}
		if ws[i].Kind != ws[j].Kind {
			return ws[i].Kind < ws[j].Kind
		}
		return ws[i].Field < ws[j].Field
	})
}
