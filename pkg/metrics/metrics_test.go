package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("test", nil)

	c.RecordYearOutcome("loaded")
	c.RecordYearOutcome("loaded")
	c.RecordYearOutcome("not_found")
	c.RecordWarnings("field_missing", 120)
	c.RecordAPIRequest("/api/landings", "GET", "200")
	c.RecordDBError("query_error")

	if got := testutil.ToFloat64(c.YearsProcessedTotal.WithLabelValues("loaded")); got != 2 {
		t.Errorf("years loaded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.YearsProcessedTotal.WithLabelValues("not_found")); got != 1 {
		t.Errorf("years not found = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.WarningsTotal.WithLabelValues("field_missing")); got != 120 {
		t.Errorf("field_missing warnings = %v, want 120", got)
	}
	if got := testutil.ToFloat64(c.APIRequestsTotal.WithLabelValues("/api/landings", "GET", "200")); got != 1 {
		t.Errorf("api requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.DBErrorsTotal.WithLabelValues("query_error")); got != 1 {
		t.Errorf("db errors = %v, want 1", got)
	}
}

func TestCollector_ConnectionPool(t *testing.T) {
	c := NewCollector("test", nil)
	c.UpdateDBConnectionPool(3, 2, 5)

	if got := testutil.ToFloat64(c.DBConnectionPool.WithLabelValues("in_use")); got != 3 {
		t.Errorf("in_use = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.DBConnectionPool.WithLabelValues("total")); got != 5 {
		t.Errorf("total = %v, want 5", got)
	}
}

func TestCollector_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("fish_landings", reg)
	c.DuplicateRowsTotal.Add(4)
	c.ObserveOperation("standardize_year", time.Now())

	if n := testutil.CollectAndCount(c.DuplicateRowsTotal); n != 1 {
		t.Errorf("CollectAndCount = %d, want 1", n)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Error("expected registered metric families")
	}
}

func TestTimer_ObserveDuration(t *testing.T) {
	c := NewCollector("test", nil)
	timer := c.NewTimer(c.IngestionDuration)
	if d := timer.ObserveDuration(); d < 0 {
		t.Errorf("ObserveDuration() = %v", d)
	}
	if n := testutil.CollectAndCount(c.IngestionDuration); n != 1 {
		t.Errorf("CollectAndCount = %d, want 1", n)
	}
}
