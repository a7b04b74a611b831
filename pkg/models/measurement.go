package models

// ReportFormat tags the source format of a measurement report.
type ReportFormat string

const (
	FormatAxisReport  ReportFormat = "vendor-a" // column-oriented axis/nominal/actual/tolerance blocks
	FormatTabular     ReportFormat = "vendor-b" // feature/nominal/upper/lower/actual table
	FormatDelimited   ReportFormat = "csv"      // delimited text
	FormatSpreadsheet ReportFormat = "xlsx"     // spreadsheet export
	FormatSheet       ReportFormat = "sheets"   // Google Sheets range
	FormatGeneric     ReportFormat = "generic"  // permissive numeric-line fallback
	FormatUnsupported ReportFormat = "unsupported"
)

// MeasuredFeatureRecord is one normalized row of a CMM report.
type MeasuredFeatureRecord struct {
	Label string `json:"label"`          // report-local identifier, format dependent
	Axis  string `json:"axis,omitempty"` // axis code for axis reports (X, Y, D, ...)
	Row   int    `json:"row"`            // 1-based source line or row

	Nominal        *float64 `json:"nominal,omitempty"`
	Actual         *float64 `json:"actual,omitempty"`
	Deviation      *float64 `json:"deviation,omitempty"`
	PlusTolerance  *float64 `json:"plus_tolerance,omitempty"`
	MinusTolerance *float64 `json:"minus_tolerance,omitempty"` // magnitude
	UpperLimit     *float64 `json:"upper_limit,omitempty"`
	LowerLimit     *float64 `json:"lower_limit,omitempty"`

	Status       ConformanceStatus `json:"status"`
	StatusSource string            `json:"status_source,omitempty"` // "report", "computed" or ""
	Units        Units             `json:"units,omitempty"`
	Format       ReportFormat      `json:"format"`
}

// MatchAssignment links one measured record to at most one feature.
type MatchAssignment struct {
	RecordIndex int    `json:"record_index"`
	FeatureID   int    `json:"feature_id"` // 0 when unmatched
	Score       int    `json:"score"`      // 0-100
	Override    bool   `json:"override"`   // set by a manual decision
	Reason      string `json:"reason,omitempty"`
}

// Matched reports whether the assignment targets a feature.
func (a MatchAssignment) Matched() bool {
	return a.FeatureID > 0
}
