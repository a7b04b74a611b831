package services

import (
	"context"
	"io"

	"balloon/pkg/models"
)

// InspectionService extracts drawing features and imports measurement reports
// into one inspection session.
type InspectionService interface {
	// ExtractDrawing harvests, recognizes and structures every page of a PDF
	// drawing into the session's feature registry.
	ExtractDrawing(ctx context.Context, path string) (*ExtractResult, error)

	// ImportReport parses a CMM report file and matches it against the session.
	ImportReport(ctx context.Context, r io.Reader, filename string, req ImportRequest) (*ImportResult, error)

	// ImportSheet reads a report laid out on a Google Sheets range and matches it.
	ImportSheet(ctx context.Context, rangeSpec string, req ImportRequest) (*ImportResult, error)

	// Features returns the consumer-facing view of every feature.
	Features() []models.FeatureView
}

// PageResult summarizes one extracted page.
type PageResult struct {
	Page             int     `json:"page"`
	NativeTokens     int     `json:"native_tokens"`
	RasterUsed       bool    `json:"raster_used"`
	RasterConfidence float64 `json:"raster_confidence,omitempty"`
	Features         int     `json:"features"`
	Unparsed         int     `json:"unparsed"`
	Error            string  `json:"error,omitempty"`
}

// ExtractResult summarizes one drawing extraction.
type ExtractResult struct {
	Drawing  string       `json:"drawing"`
	Pages    []PageResult `json:"pages"`
	Features int          `json:"features"`
	Unparsed int          `json:"unparsed"`
}

// ImportRequest carries the manual decisions for one import. Record numbers
// are 1-based positions in the parsed report.
type ImportRequest struct {
	ImportID string `json:"import_id,omitempty"`

	// Assign maps record number to feature id.
	Assign map[int]int `json:"assign,omitempty"`

	// Skip lists record numbers to leave unmatched.
	Skip []int `json:"skip,omitempty"`

	// SkipRemaining leaves every record without a decision unmatched.
	SkipRemaining bool `json:"skip_remaining,omitempty"`

	// DryRun scores and resolves without writing to the registry.
	DryRun bool `json:"dry_run,omitempty"`
}

// ImportResult reports the outcome of one import operation.
type ImportResult struct {
	ImportID    string                         `json:"import_id"`
	State       string                         `json:"state"`
	Format      models.ReportFormat            `json:"format"`
	Encoding    string                         `json:"encoding,omitempty"`
	Diagnostic  string                         `json:"diagnostic,omitempty"`
	Records     []models.MeasuredFeatureRecord `json:"records"`
	Assignments []models.MatchAssignment       `json:"assignments,omitempty"`
	Pending     []int                          `json:"pending,omitempty"` // 1-based record numbers
	Updated     []int                          `json:"updated,omitempty"` // feature ids
	Pass        int                            `json:"pass"`
	Fail        int                            `json:"fail"`
}
