package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fish-landings/internal/rules"
	"fish-landings/internal/source"
	"fish-landings/internal/standardize"
)

func TestInspectionService_Inspect(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, 2024, "Year,Port of Landing,Port Nationality,Vessel Nationality,Species,Species name,Gear category,Change in value,Notes\n"+
		"2024,Peterhead,UK - Scotland,Faeroe Islands,Cod,Cod,Demersal trawl,1,\n"+
		"2024,Lerwick,UK - Scotland,UK - England,Ling,Ling, Demersal trawl ,2,x\n")

	rs := rules.Default()
	logger := testLogger()
	svc := NewInspectionService(source.NewLoader(dir, "{year}.csv", rs, logger), standardize.New(rs), rs, logger)

	inv, err := svc.Inspect(context.Background(), []int{2023, 2024})
	require.NoError(t, err)
	require.Len(t, inv, 2)

	missing := inv[0]
	assert.Equal(t, 2023, missing.Year)
	assert.False(t, missing.Found)
	assert.Contains(t, missing.Error, "not found")

	y := inv[1]
	assert.True(t, y.Found)
	assert.Equal(t, 2, y.Rows)

	dispositions := map[string]string{}
	for _, c := range y.Columns {
		dispositions[c.Name] = c.Disposition
	}
	assert.Equal(t, map[string]string{
		"Year":               ColumnMapped,
		"Port of Landing":    ColumnMapped,
		"Port Nationality":   ColumnMapped,
		"Vessel Nationality": ColumnMapped,
		"Species":            ColumnIgnored,
		"Species name":       ColumnMapped,
		"Gear category":      ColumnMapped,
		"Change in value":    ColumnDropped,
		"Notes":              ColumnUnmapped,
	}, dispositions)

	assert.Equal(t, []ValueCount{
		{Raw: "UK - Scotland", Normalized: "Scotland", Count: 2},
		{Raw: "Faeroe Islands", Normalized: "Faroe Islands", Count: 1},
		{Raw: "UK - England", Normalized: "England", Count: 1},
	}, y.Nationalities)
	assert.Equal(t, []ValueCount{
		{Raw: "Demersal trawl", Normalized: "Demersal trawl", Count: 2},
	}, y.GearCategories)

	counts := standardize.CountByKind(y.Warnings)
	assert.Equal(t, 1, counts[standardize.KindColumnCollision])
	assert.Contains(t, y.Mapping.Missing, "value_thousands")
}

func TestInspectionService_Canceled(t *testing.T) {
	rs := rules.Default()
	logger := testLogger()
	svc := NewInspectionService(source.NewLoader(t.TempDir(), "{year}.csv", rs, logger), standardize.New(rs), rs, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Inspect(ctx, []int{2020})
	require.ErrorIs(t, err, context.Canceled)
}
