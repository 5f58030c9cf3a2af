// Package source locates and structurally parses one yearly landings file.
// No semantic transformation happens here: cells stay raw text.
package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"fish-landings/internal/models"
	"fish-landings/internal/rules"
	"fish-landings/pkg/logging"
)

// ErrYearOutOfRange is returned for years outside the rule set's range.
var ErrYearOutOfRange = errors.New("year outside supported range")

// NotFoundError signals that no source file exists for a year.
// Callers skip the year and continue.
type NotFoundError struct {
	Year int
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("source file for %d not found: %s", e.Year, e.Path)
}

// IsTransient returns false as a missing file will not appear on retry
func (e *NotFoundError) IsTransient() bool {
	return false
}

// FormatError signals a source file that cannot be parsed structurally.
// It is fatal for that year only.
type FormatError struct {
	Year   int
	Path   string
	Line   int
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "malformed source file for %d (%s)", e.Year, e.Path)
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// IsTransient returns false as format errors are permanent
func (e *FormatError) IsTransient() bool {
	return false
}

// Loader reads yearly files from a directory.
type Loader struct {
	dir     string
	pattern string
	rules   *rules.RuleSet
	logger  *logging.StructuredLogger
}

// NewLoader creates a loader for files named by pattern, where "{year}" is
// replaced with the four-digit year.
func NewLoader(dir, pattern string, rs *rules.RuleSet, logger *logging.StructuredLogger) *Loader {
	return &Loader{
		dir:     dir,
		pattern: pattern,
		rules:   rs,
		logger:  logger,
	}
}

// Path returns the expected file path for year.
func (l *Loader) Path(year int) string {
	return filepath.Join(l.dir, strings.ReplaceAll(l.pattern, "{year}", strconv.Itoa(year)))
}

// Load reads and parses the source file for year.
func (l *Loader) Load(ctx context.Context, year int) (*models.RawRecordSet, error) {
	if !l.rules.InRange(year) {
		return nil, fmt.Errorf("load %d: %w (%d-%d)", year, ErrYearOutOfRange, l.rules.FirstYear(), l.rules.LastYear())
	}

	path := l.Path(year)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Year: year, Path: path}
		}
		return nil, &FormatError{Year: year, Path: path, Reason: "unreadable", Err: err}
	}

	data, decoded, err := toUTF8(data)
	if err != nil {
		return nil, &FormatError{Year: year, Path: path, Reason: "undecodable text", Err: err}
	}
	if decoded {
		l.logger.Debug(ctx, "[SOURCE_DECODE] Decoded Windows-1252 source", logging.Fields{
			"year": year,
			"path": path,
		})
	}

	set, err := Parse(ctx, bytes.NewReader(data))
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			fe.Year, fe.Path = year, path
			return nil, fe
		}
		return nil, err
	}
	set.Year = year
	set.Path = path

	l.logger.Info(ctx, "[SOURCE_LOADED] Source file parsed", logging.Fields{
		"year":    year,
		"path":    path,
		"rows":    len(set.Rows),
		"columns": len(set.Columns),
	})

	return set, nil
}

// toUTF8 strips a UTF-8 byte order mark, and decodes the bytes as
// Windows-1252 when they are not valid UTF-8. Older exports were saved from
// spreadsheet tools in the legacy code page, which is where "£" breaks.
func toUTF8(data []byte) ([]byte, bool, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return data, false, nil
	}
	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Parse reads CSV text with a header row into a record set. Year and Path
// are left for the caller to fill in.
func Parse(ctx context.Context, r io.Reader) (*models.RawRecordSet, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &FormatError{Reason: "file is empty"}
	}
	if err != nil {
		return nil, &FormatError{Line: lineOf(err), Reason: "unreadable header", Err: err}
	}

	columns := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = "Unnamed: " + strconv.Itoa(i)
		}
		if j, dup := seen[h]; dup {
			return nil, &FormatError{Line: 1, Reason: fmt.Sprintf("duplicate column %q at positions %d and %d", h, j+1, i+1)}
		}
		seen[h] = i
		columns[i] = h
	}

	set := &models.RawRecordSet{Columns: columns}
	for {
		if len(set.Rows)%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &FormatError{Line: lineOf(err), Reason: "unparsable row", Err: err}
		}
		if blank(record) {
			continue
		}
		if len(record) > len(columns) && !blank(record[len(columns):]) {
			line, _ := cr.FieldPos(0)
			return nil, &FormatError{Line: line, Reason: fmt.Sprintf("row has %d fields, header has %d", len(record), len(columns))}
		}

		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = ""
			}
		}
		set.Rows = append(set.Rows, row)
	}

	return set, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func lineOf(err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	return 0
}
