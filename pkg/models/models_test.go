package models

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeRegion(t *testing.T) {
	tests := []struct {
		name               string
		x, y, w, h, pw, ph float64
		want               BoundingRegion
	}{
		{
			name: "letter page flips y",
			x:    61.2, y: 712.8, w: 61.2, h: 15.84, pw: 612, ph: 792,
			want: BoundingRegion{XMin: 100, YMin: 80, XMax: 200, YMax: 100},
		},
		{
			name: "overhang clamps",
			x:    600, y: -10, w: 50, h: 20, pw: 612, ph: 792,
			want: BoundingRegion{XMin: 980.3921568627451, YMin: 987.3737373737374, XMax: 1000, YMax: 1000},
		},
		{
			name: "unknown page size",
			x:    1, y: 1, w: 1, h: 1,
			want: FullPage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeRegion(tt.x, tt.y, tt.w, tt.h, tt.pw, tt.ph)
			if diff := cmp.Diff(tt.want, got, cmp.Comparer(approx)); diff != "" {
				t.Errorf("NormalizeRegion mismatch (-want +got):\n%s", diff)
			}
			if !got.Valid() {
				t.Errorf("region %+v not valid", got)
			}
		})
	}
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-6 && d > -1e-6
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    DimensionalSpecification
		wantErr bool
	}{
		{"limit ok", DimensionalSpecification{ToleranceKind: ToleranceLimit, LowerLimit: Float(1), UpperLimit: Float(2)}, false},
		{"limit missing", DimensionalSpecification{ToleranceKind: ToleranceLimit, UpperLimit: Float(2)}, true},
		{"limit inverted", DimensionalSpecification{ToleranceKind: ToleranceLimit, LowerLimit: Float(3), UpperLimit: Float(2)}, true},
		{"bilateral ok", DimensionalSpecification{ToleranceKind: ToleranceBilateral, Nominal: Float(1), PlusTolerance: Float(.1), MinusTolerance: Float(.1)}, false},
		{"bilateral missing minus", DimensionalSpecification{ToleranceKind: ToleranceBilateral, Nominal: Float(1), PlusTolerance: Float(.1)}, true},
		{"gdt subtype", DimensionalSpecification{ToleranceKind: ToleranceNone, IsGDT: true, Subtype: SubtypeDiameter}, true},
		{"none", DimensionalSpecification{ToleranceKind: ToleranceNone}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSpecification) {
				t.Errorf("error %v does not wrap ErrInvalidSpecification", err)
			}
		})
	}
}

func TestLimits(t *testing.T) {
	bilateral := &DimensionalSpecification{Nominal: Float(0.5), PlusTolerance: Float(0.005), MinusTolerance: Float(0.003)}
	lo, hi, ok := bilateral.Limits()
	if !ok || !approx(lo, 0.497) || !approx(hi, 0.505) {
		t.Errorf("bilateral Limits() = %v, %v, %v", lo, hi, ok)
	}
	var nilSpec *DimensionalSpecification
	if _, _, ok := nilSpec.Limits(); ok {
		t.Error("nil spec reported limits")
	}
}

func TestFeatureViewDefaultsUnknown(t *testing.T) {
	f := Feature{ID: 3, Page: 1, RawValue: "R.25"}
	if got := f.View().Status; got != StatusUnknown {
		t.Errorf("View().Status = %q, want UNKNOWN", got)
	}
}
