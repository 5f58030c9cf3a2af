package services

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"fish-landings/internal/models"
	"fish-landings/internal/standardize"
)

func floatPtr(f float64) *float64 {
	return &f
}

func record(year int, port string, value *float64) models.LandingRecord {
	return models.LandingRecord{Year: year, Port: strPtr(port), ValueThousands: value}
}

func TestAggregator_Combine(t *testing.T) {
	y2015 := &standardize.Result{Year: 2015, Records: []models.LandingRecord{
		record(2015, "Hull", floatPtr(1)),
		record(2015, "Hull", floatPtr(1)),
		record(2015, "Hull", nil),
	}}
	y2014 := &standardize.Result{Year: 2014, Records: []models.LandingRecord{
		record(2014, "Hull", floatPtr(1)),
	}}

	got := Aggregator{}.Combine([]*standardize.Result{y2015, nil, y2014})

	want := []models.LandingRecord{
		record(2014, "Hull", floatPtr(1)),
		record(2015, "Hull", floatPtr(1)),
		record(2015, "Hull", nil),
	}
	if diff := cmp.Diff(want, got.Records); diff != "" {
		t.Errorf("Combine() records mismatch (-want +got):\n%s", diff)
	}
	if got.DuplicatesRemoved != 1 {
		t.Errorf("DuplicatesRemoved = %d, want 1", got.DuplicatesRemoved)
	}
	if got.RowsIn != 4 {
		t.Errorf("RowsIn = %d, want 4", got.RowsIn)
	}
	if diff := cmp.Diff([]int{2014, 2015}, got.Years); diff != "" {
		t.Errorf("Years mismatch (-want +got):\n%s", diff)
	}
	if len(y2015.Records) != 3 {
		t.Errorf("input was modified: %d records", len(y2015.Records))
	}
}

func TestAggregator_DuplicatedYearLoadsOnce(t *testing.T) {
	year := &standardize.Result{Year: 2016, Records: []models.LandingRecord{
		record(2016, "Newlyn", floatPtr(2.5)),
		record(2016, "Brixham", floatPtr(3)),
	}}

	once := Aggregator{}.Combine([]*standardize.Result{year})
	twice := Aggregator{}.Combine([]*standardize.Result{year, year})

	if diff := cmp.Diff(once.Records, twice.Records); diff != "" {
		t.Errorf("duplicated year changed output (-once +twice):\n%s", diff)
	}
	if twice.DuplicatesRemoved != 2 {
		t.Errorf("DuplicatesRemoved = %d, want 2", twice.DuplicatesRemoved)
	}
}

func TestAggregator_NullDiffersFromValue(t *testing.T) {
	zero := 0.0
	got := Aggregator{}.Combine([]*standardize.Result{{Year: 2020, Records: []models.LandingRecord{
		record(2020, "Hull", nil),
		record(2020, "Hull", &zero),
	}}})

	if len(got.Records) != 2 {
		t.Errorf("len(Records) = %d, want 2", len(got.Records))
	}
}

func TestAggregator_Empty(t *testing.T) {
	got := Aggregator{}.Combine(nil)
	if len(got.Records) != 0 || got.DuplicatesRemoved != 0 {
		t.Errorf("Combine(nil) = %+v, want empty", got)
	}
}
