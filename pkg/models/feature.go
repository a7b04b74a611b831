package models

import "time"

// ConformanceStatus is the PASS/FAIL/UNKNOWN classification of a measurement.
type ConformanceStatus string

const (
	StatusUnknown ConformanceStatus = "UNKNOWN"
	StatusPass    ConformanceStatus = "PASS"
	StatusFail    ConformanceStatus = "FAIL"
)

// FeatureSource records how a feature entered the registry.
type FeatureSource string

const (
	SourceNative FeatureSource = "native" // vector text from the content stream
	SourceRaster FeatureSource = "raster" // recognized from the page image
	SourceManual FeatureSource = "manual" // added by a user
)

// Feature is one numbered drawing characteristic ("balloon").
type Feature struct {
	// Identity and location
	ID     int            `json:"id"`
	Page   int            `json:"page"` // 1-based
	Region BoundingRegion `json:"region"`

	// Extraction
	RawValue   string                    `json:"raw_value"`
	Confidence float64                   `json:"confidence"` // 0.0 to 1.0
	Source     FeatureSource             `json:"source"`
	Spec       *DimensionalSpecification `json:"specification"` // nil when unparsed

	// Measurement results, populated when an import commits a match
	Actual          *float64          `json:"actual,omitempty"`
	Deviation       *float64          `json:"deviation,omitempty"`
	Status          ConformanceStatus `json:"status,omitempty"`
	MatchConfidence *int              `json:"match_confidence,omitempty"` // 0-100
	ReportLabel     string            `json:"report_label,omitempty"`
	ImportID        string            `json:"import_id,omitempty"`
	MeasuredAt      *time.Time        `json:"measured_at,omitempty"`
}

// Unparsed reports whether structuring failed for this feature.
func (f *Feature) Unparsed() bool {
	return f.Spec == nil
}

// Clone returns a deep copy so callers never share mutable state with the registry.
func (f Feature) Clone() Feature {
	c := f
	c.Spec = f.Spec.Clone()
	c.Actual = CopyFloat(f.Actual)
	c.Deviation = CopyFloat(f.Deviation)
	if f.MatchConfidence != nil {
		v := *f.MatchConfidence
		c.MatchConfidence = &v
	}
	if f.MeasuredAt != nil {
		t := *f.MeasuredAt
		c.MeasuredAt = &t
	}
	return c
}

// FeatureView is the consumer-facing surface read by export and rendering layers.
type FeatureView struct {
	ID            int                       `json:"id"`
	Page          int                       `json:"page"`
	Region        BoundingRegion            `json:"region"`
	RawValue      string                    `json:"raw_value"`
	Specification *DimensionalSpecification `json:"specification"`
	Actual        *float64                  `json:"actual"`
	Deviation     *float64                  `json:"deviation"`
	Status        ConformanceStatus         `json:"status"`
}

// View projects a feature onto the consumer surface.
func (f Feature) View() FeatureView {
	status := f.Status
	if status == "" {
		status = StatusUnknown
	}
	return FeatureView{
		ID:            f.ID,
		Page:          f.Page,
		Region:        f.Region,
		RawValue:      f.RawValue,
		Specification: f.Spec.Clone(),
		Actual:        CopyFloat(f.Actual),
		Deviation:     CopyFloat(f.Deviation),
		Status:        status,
	}
}
