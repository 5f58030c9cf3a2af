package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestStructuredLogger_JSONEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("landings-test", "0.0.1", DebugLevel)
	logger.SetOutput(&buf)

	ctx := WithRunID(context.Background(), "run-123")
	logger.Error(ctx, "[PERSIST_ERROR] Swap failed", Fields{"year": 2019, "stage": "SWAP"}, errors.New("database is locked"))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]

	if e["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", e["level"])
	}
	if e["message"] != "[PERSIST_ERROR] Swap failed" {
		t.Errorf("message = %v", e["message"])
	}
	if e["service"] != "landings-test" || e["version"] != "0.0.1" {
		t.Errorf("service/version = %v/%v", e["service"], e["version"])
	}
	if e["run_id"] != "run-123" {
		t.Errorf("run_id = %v, want run-123", e["run_id"])
	}
	if e["error"] != "database is locked" {
		t.Errorf("error = %v", e["error"])
	}

	fields, ok := e["fields"].(map[string]interface{})
	if !ok {
		t.Fatalf("fields missing: %v", e)
	}
	if fields["year"] != float64(2019) || fields["stage"] != "SWAP" {
		t.Errorf("fields = %v", fields)
	}
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("landings-test", "0.0.1", WarnLevel)
	logger.SetOutput(&buf)

	ctx := context.Background()
	logger.Debug(ctx, "debug", nil)
	logger.Info(ctx, "info", nil)
	logger.Warn(ctx, "warn", nil)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["message"] != "warn" {
		t.Fatalf("entries = %v, want only the warn entry", entries)
	}

	buf.Reset()
	logger.SetLevel(DebugLevel)
	logger.Debug(ctx, "debug", nil)
	if got := len(decodeLines(t, &buf)); got != 1 {
		t.Errorf("after SetLevel(Debug) got %d entries, want 1", got)
	}
}

func TestContextLogger_MergeFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("landings-test", "0.0.1", InfoLevel)
	logger.SetOutput(&buf)

	yearLogger := logger.WithFields(Fields{"year": 2017, "stage": "LOAD"})
	yearLogger.Info(context.Background(), "[YEAR] standardized", Fields{"stage": "STANDARDIZE", "rows": 10})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0]["fields"].(map[string]interface{})
	if fields["year"] != float64(2017) {
		t.Errorf("year = %v, want 2017", fields["year"])
	}
	if fields["stage"] != "STANDARDIZE" {
		t.Errorf("stage = %v, call-site field should win", fields["stage"])
	}
	if fields["rows"] != float64(10) {
		t.Errorf("rows = %v", fields["rows"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		"warn":    WarnLevel,
		"error":   ErrorLevel,
		"bogus":   InfoLevel,
		"":        InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestStructuredLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("landings-test", "0.0.1", InfoLevel)
	logger.SetOutput(&buf)
	logger.SetFormat("text")

	logger.Info(context.Background(), "[INGEST_START] starting", Fields{"years": 11})

	out := buf.String()
	if !strings.Contains(out, "INFO") || !strings.Contains(out, "[INGEST_START] starting") {
		t.Errorf("console output = %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("text format produced JSON: %q", out)
	}
}
