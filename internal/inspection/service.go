// Package inspection holds one inspection session: a drawing's feature
// registry plus the pipeline, report parser and matcher that write to it.
package inspection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog"

	"balloon/internal/cmm"
	"balloon/internal/extraction"
	"balloon/internal/harvest"
	"balloon/internal/logger"
	"balloon/internal/matching"
	"balloon/internal/ocr"
	"balloon/internal/registry"
	"balloon/internal/structure"
	"balloon/pkg/models"
	"balloon/pkg/services"
)

// SheetsClient is the Google Sheets surface the session uses.
type SheetsClient interface {
	ReadReportRows(ctx context.Context, rangeSpec string) ([][]string, error)
	WriteFeatures(ctx context.Context, views []models.FeatureView, sheetName string) error
}

// Deps wires the collaborators. Nil Recognizer disables raster fallback and
// a nil Structurer uses heuristics only.
type Deps struct {
	Recognizer ocr.Recognizer
	Structurer *structure.Structurer
	Extraction extraction.Config
	Match      matching.Config
	Sheets     SheetsClient
}

// Service is an inspection session. It owns the registry and hands it to
// each stage explicitly.
type Service struct {
	drawing  string
	registry *registry.Registry
	pipeline *extraction.Pipeline
	parser   *cmm.Parser
	matcher  *matching.Matcher
	sheets   SheetsClient
	log      zerolog.Logger
}

var _ services.InspectionService = (*Service)(nil)

// New creates an empty session.
func New(deps Deps) *Service {
	return newService(registry.New(), "", deps)
}

// Resume continues a persisted session.
func Resume(session registry.Session, deps Deps) (*Service, error) {
	const op = "Resume"

	reg, err := registry.Restore(session)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return newService(reg, session.Drawing, deps), nil
}

func newService(reg *registry.Registry, drawing string, deps Deps) *Service {
	match := deps.Match
	if len(match.Rules) == 0 {
		match = matching.NewConfig(matching.DefaultNominalTolerance, match.Floor)
		if deps.Match.Floor == 0 {
			match.Floor = matching.DefaultFloor
		}
	}
	return &Service{
		drawing:  drawing,
		registry: reg,
		pipeline: extraction.New(deps.Recognizer, deps.Structurer, deps.Extraction),
		parser:   cmm.NewParser(),
		matcher:  matching.New(match),
		sheets:   deps.Sheets,
		log:      logger.WithComponent("inspection"),
	}
}

// Registry returns the session's feature registry.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// Session returns the persistable state.
func (s *Service) Session() registry.Session {
	snap := s.registry.Snapshot()
	snap.Drawing = s.drawing
	return snap
}

// Features returns the consumer-facing view of every feature.
func (s *Service) Features() []models.FeatureView {
	return s.registry.Views()
}

// ExtractDrawing runs the extraction pipeline over a PDF drawing.
func (s *Service) ExtractDrawing(ctx context.Context, path string) (*services.ExtractResult, error) {
	const op = "ExtractDrawing"

	doc, err := harvest.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if closeErr := doc.Close(); closeErr != nil {
			s.log.Warn().Err(closeErr).Str("drawing", path).Msg("Failed to close drawing")
		}
	}()

	return s.Extract(ctx, doc, path)
}

// Extract runs the pipeline over any page source.
func (s *Service) Extract(ctx context.Context, src extraction.Source, name string) (*services.ExtractResult, error) {
	const op = "Extract"

	s.drawing = name
	log := logger.WithDrawing(name)
	log.Info().Msg("Extracting drawing")

	summary, err := s.pipeline.Run(ctx, src, s.registry)
	result := extractResult(name, summary)
	if err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}
	if result.Features == 0 {
		log.Warn().Int("pages", len(result.Pages)).Msg("No dimensions detected on any page")
	}
	return result, nil
}

func extractResult(name string, summary *extraction.Summary) *services.ExtractResult {
	result := &services.ExtractResult{Drawing: name}
	if summary == nil {
		return result
	}
	result.Features = summary.Features
	result.Unparsed = summary.Unparsed
	for _, p := range summary.Pages {
		result.Pages = append(result.Pages, services.PageResult{
			Page:             p.Page,
			NativeTokens:     p.NativeTokens,
			RasterUsed:       p.RasterUsed,
			RasterConfidence: p.RasterConfidence,
			Features:         p.Features,
			Unparsed:         p.Unparsed,
			Error:            p.Err,
		})
	}
	return result
}

// ParseReport parses a report without matching it.
func (s *Service) ParseReport(r io.Reader, filename string) (*cmm.ParseResult, error) {
	return s.parser.Parse(r, filename)
}

// ImportReport parses a report file and runs one import operation.
func (s *Service) ImportReport(ctx context.Context, r io.Reader, filename string, req services.ImportRequest) (*services.ImportResult, error) {
	const op = "ImportReport"

	parsed, err := s.parser.Parse(r, filename)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.runImport(ctx, parsed, req)
}

// ImportSheet reads report rows from Google Sheets and runs one import operation.
func (s *Service) ImportSheet(ctx context.Context, rangeSpec string, req services.ImportRequest) (*services.ImportResult, error) {
	const op = "ImportSheet"

	if s.sheets == nil {
		return nil, fmt.Errorf("%s: no Google Sheets client configured", op)
	}
	rows, err := s.sheets.ReadReportRows(ctx, rangeSpec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	parsed := s.parser.ParseRows(rows, rangeSpec, models.FormatSheet)
	return s.runImport(ctx, parsed, req)
}

// Publish writes the feature table to a Google Sheets worksheet.
func (s *Service) Publish(ctx context.Context, sheetName string) error {
	const op = "Publish"

	if s.sheets == nil {
		return fmt.Errorf("%s: no Google Sheets client configured", op)
	}
	if err := s.sheets.WriteFeatures(ctx, s.Features(), sheetName); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// runImport drives PARSED → SCORED → RESOLVED → COMMITTED. A report without
// records ends at PARSED without error. Records still pending after the
// request's decisions end the run at SCORED, also without error; the result
// lists them in Pending.
func (s *Service) runImport(ctx context.Context, parsed *cmm.ParseResult, req services.ImportRequest) (*services.ImportResult, error) {
	const op = "runImport"

	imp := matching.NewImport(req.ImportID, s.matcher)
	result := &services.ImportResult{ImportID: imp.ID}
	defer func() { fillImportResult(result, imp) }()

	if err := imp.Load(parsed); err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}
	if err := imp.Score(ctx, s.registry); err != nil {
		if errors.Is(err, matching.ErrNoRecords) {
			s.log.Warn().Str("import_id", imp.ID).Str("diagnostic", parsed.Diagnostic).Msg("Report has no measurement rows")
			return result, nil
		}
		return result, fmt.Errorf("%s: %w", op, err)
	}

	if err := applyDecisions(imp, req); err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}
	if pending := imp.Pending(); len(pending) > 0 {
		s.log.Info().Str("import_id", imp.ID).Int("pending", len(pending)).Msg("Import waiting for decisions")
		return result, nil
	}
	if err := imp.Resolve(); err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}
	if req.DryRun {
		return result, nil
	}

	summary, err := imp.Commit(s.registry)
	if err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}
	result.Updated = summary.Updated
	result.Pass = summary.Pass
	result.Fail = summary.Fail
	return result, nil
}

func applyDecisions(imp *matching.ImportOperation, req services.ImportRequest) error {
	records := make([]int, 0, len(req.Assign))
	for n := range req.Assign {
		records = append(records, n)
	}
	sort.Ints(records)
	for _, n := range records {
		if err := imp.Override(n-1, req.Assign[n]); err != nil {
			return fmt.Errorf("assign record %d: %w", n, err)
		}
	}
	for _, n := range req.Skip {
		if err := imp.LeaveUnmatched(n - 1); err != nil {
			return fmt.Errorf("skip record %d: %w", n, err)
		}
	}
	if req.SkipRemaining {
		for _, i := range imp.Pending() {
			if err := imp.LeaveUnmatched(i); err != nil {
				return err
			}
		}
	}
	return nil
}

func fillImportResult(result *services.ImportResult, imp *matching.ImportOperation) {
	result.State = string(imp.State())
	if parsed := imp.Result(); parsed != nil {
		result.Format = parsed.Format
		result.Encoding = parsed.Encoding
		result.Diagnostic = parsed.Diagnostic
		result.Records = parsed.Records
	}
	result.Assignments = imp.Assignments()
	result.Pending = nil
	for _, i := range imp.Pending() {
		result.Pending = append(result.Pending, i+1)
	}
}
