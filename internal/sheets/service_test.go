package sheets

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"balloon/pkg/models"
)

func TestExtractSpreadsheetID(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0", want: "1AbC-d_9"},
		{url: "https://docs.google.com/spreadsheets/d/xyz", want: "xyz"},
		{url: "https://example.com/sheet", wantErr: true},
	}
	for _, tt := range tests {
		got, err := extractSpreadsheetID(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("extractSpreadsheetID(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("extractSpreadsheetID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestFeatureValues(t *testing.T) {
	view := models.FeatureView{
		ID:       5,
		Page:     2,
		Region:   models.BoundingRegion{XMin: 100, YMin: 200, XMax: 150, YMax: 220},
		RawValue: "⌀.500±.005",
		Specification: &models.DimensionalSpecification{
			Nominal:           models.Float(0.5),
			PlusTolerance:     models.Float(0.005),
			MinusTolerance:    models.Float(0.005),
			Units:             models.UnitsInch,
			ToleranceKind:     models.ToleranceBilateral,
			Subtype:           models.SubtypeDiameter,
			FullSpecification: "⌀.500 ±.005",
		},
		Actual: models.Float(0.503),
		Status: models.StatusPass,
	}

	got := featureValues(view, "2026-01-01 00:00:00")
	want := []interface{}{
		5, 2, "100,200,150,220", "⌀.500±.005", "⌀.500 ±.005", 0.5,
		0.005, 0.005, 0.495, 0.505, "inch", 0.503, "", "PASS", "2026-01-01 00:00:00",
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("featureValues() mismatch (-want +got):\n%s", diff)
	}
	if len(got) != len(featureHeaders) {
		t.Errorf("row has %d cells, headers have %d", len(got), len(featureHeaders))
	}
}

func TestFeatureValues_Unparsed(t *testing.T) {
	got := featureValues(models.FeatureView{ID: 1, Page: 1, RawValue: "SEE NOTE 4", Status: models.StatusUnknown}, "t")
	if got[4] != "" || got[8] != "" || got[13] != "UNKNOWN" {
		t.Errorf("unexpected unparsed row: %v", got)
	}
}

func TestStringRows(t *testing.T) {
	values := [][]interface{}{
		{"Feature", "Nominal", "Actual"},
		{" 5 ", 0.5, nil},
		{},
	}
	want := [][]string{
		{"Feature", "Nominal", "Actual"},
		{"5", "0.5", ""},
		{},
	}
	if diff := cmp.Diff(want, stringRows(values)); diff != "" {
		t.Errorf("stringRows() mismatch (-want +got):\n%s", diff)
	}
}
