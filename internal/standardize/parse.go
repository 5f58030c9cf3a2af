package standardize

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Cell text treated as missing in numeric columns.
var nullTokens = map[string]bool{
	"":    true,
	"-":   true,
	"na":  true,
	"n/a": true,
	"nan": true,
}

var monthNames = func() map[string]int {
	m := make(map[string]int, 24)
	for i := time.January; i <= time.December; i++ {
		name := strings.ToLower(i.String())
		m[name] = int(i)
		m[name[:3]] = int(i)
	}
	m["sept"] = int(time.September)
	return m
}()

// parseNumber parses a numeric cell. null is true for missing values; ok is
// false when the cell holds text that is not a number.
func parseNumber(raw string) (v float64, null bool, ok bool) {
	s := strings.TrimSpace(raw)
	if nullTokens[strings.ToLower(s)] {
		return 0, true, true
	}
	s = strings.TrimPrefix(s, "£")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, false
	}
	return v, false, true
}

// parseWhole parses an integral numeric cell, accepting "3.0".
func parseWhole(raw string) (n int, null bool, ok bool) {
	v, null, ok := parseNumber(raw)
	if null || !ok {
		return 0, null, ok
	}
	if v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
		return 0, false, false
	}
	return int(v), false, true
}

// parseMonth accepts 1-12 or an English month name or abbreviation.
func parseMonth(raw string) (m int, null bool, ok bool) {
	s := strings.TrimSpace(raw)
	if n, ok := monthNames[strings.ToLower(s)]; ok {
		return n, false, true
	}
	n, null, ok := parseWhole(s)
	if null || !ok {
		return 0, null, ok
	}
	if n < 1 || n > 12 {
		return 0, false, false
	}
	return n, false, true
}

// text trims a cell; empty text is NULL.
func text(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	return &s
}
