// Package cmm parses coordinate measuring machine reports into measured
// feature records. Format detection is an ordered chain of strategies:
// spreadsheet and filename hints first, then header keywords, then the
// structure of the first line, then a permissive numeric line reader.
package cmm

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"balloon/internal/logger"
	"balloon/pkg/models"
)

// Input is a report prepared for the strategies. Text and Lines are empty
// until the bytes have been decoded.
type Input struct {
	Filename string
	Ext      string
	Data     []byte

	Text        string
	Encoding    string
	Lines       []string // non-blank lines
	LineNumbers []int    // 1-based source line of each entry in Lines
}

// Strategy pairs a detection predicate with a parser. Binary strategies run
// on raw bytes before decoding; a Binary parse error is returned to the caller.
type Strategy struct {
	Name   string
	Format models.ReportFormat
	Binary bool
	Detect func(in *Input) bool
	Parse  func(in *Input) ([]models.MeasuredFeatureRecord, error)
}

// DefaultStrategies returns the detection chain in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "extension:xlsx", Format: models.FormatSpreadsheet, Binary: true, Detect: isSpreadsheet, Parse: parseSpreadsheet},
		{Name: "extension:csv", Format: models.FormatDelimited, Detect: func(in *Input) bool { return in.Ext == ".csv" }, Parse: parseDelimited},
		{Name: "keyword:axis", Format: models.FormatAxisReport, Detect: hasAxisHeader, Parse: parseAxis},
		{Name: "keyword:tabular", Format: models.FormatTabular, Detect: hasTabularHeader, Parse: parseTabular},
		{Name: "structural:delimited", Format: models.FormatDelimited, Detect: firstLineDelimited, Parse: parseDelimited},
		{Name: "generic", Format: models.FormatGeneric, Detect: func(*Input) bool { return true }, Parse: parseGeneric},
	}
}

// SupportedExtensions lists the report file extensions the parser expects.
var SupportedExtensions = []string{".csv", ".txt", ".rpt", ".xlsx"}

// ParseResult is the normalized output of one report.
type ParseResult struct {
	Filename   string                         `json:"filename"`
	Format     models.ReportFormat            `json:"format"`
	Strategy   string                         `json:"strategy,omitempty"`
	Encoding   string                         `json:"encoding,omitempty"`
	Records    []models.MeasuredFeatureRecord `json:"records"`
	Diagnostic string                         `json:"diagnostic,omitempty"`
}

// Empty reports whether no rows were extracted.
func (r *ParseResult) Empty() bool {
	return len(r.Records) == 0
}

// Parser runs the strategy chain.
type Parser struct {
	strategies []Strategy
	log        zerolog.Logger
}

// NewParser creates a parser with the default chain.
func NewParser() *Parser {
	return NewParserWithStrategies(DefaultStrategies())
}

// NewParserWithStrategies creates a parser with a custom chain.
func NewParserWithStrategies(strategies []Strategy) *Parser {
	return &Parser{
		strategies: strategies,
		log:        logger.WithComponent("cmm"),
	}
}

// Parse reads and parses a report. Read failures and undecodable bytes are
// returned as errors; a readable report without rows yields an empty result
// with a diagnostic.
func (p *Parser) Parse(r io.Reader, filename string) (*ParseResult, error) {
	const op = "Parse"

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, WrapReportError(op, err, "failed to read report")
	}
	return p.ParseBytes(data, filename)
}

// ParseBytes parses an in-memory report.
func (p *Parser) ParseBytes(data []byte, filename string) (*ParseResult, error) {
	const op = "ParseBytes"

	in := &Input{
		Filename: filename,
		Ext:      strings.ToLower(filepath.Ext(filename)),
		Data:     data,
	}
	result := &ParseResult{Filename: filename, Format: models.FormatUnsupported}
	log := p.log.With().Str("report", filename).Logger()

	if !supportedExtension(in.Ext) {
		log.Debug().Str("ext", in.Ext).Msg("Unexpected report extension, detecting from content")
	}

	decoded := false
	var tried []string
	for _, s := range p.strategies {
		if !s.Binary && !decoded {
			if err := decodeInput(in); err != nil {
				return nil, WrapReportError(op, err, filename)
			}
			decoded = true
			result.Encoding = in.Encoding
		}
		if !s.Detect(in) {
			continue
		}
		tried = append(tried, s.Name)

		records, err := s.Parse(in)
		if err != nil {
			if s.Binary {
				return nil, WrapReportError(op, err, filename)
			}
			log.Debug().Err(err).Str("strategy", s.Name).Msg("Strategy produced no rows")
			continue
		}
		if len(records) == 0 {
			log.Debug().Str("strategy", s.Name).Msg("Strategy produced no rows")
			continue
		}

		for i := range records {
			records[i].Format = s.Format
			ComputeStatus(&records[i])
		}
		result.Records = records
		result.Format = s.Format
		result.Strategy = s.Name

		log.Info().
			Str("format", string(s.Format)).
			Str("strategy", s.Name).
			Str("encoding", result.Encoding).
			Int("records", len(records)).
			Msg("Report parsed")
		return result, nil
	}

	if len(in.Lines) == 0 && len(data) == 0 {
		result.Diagnostic = "report is empty"
	} else {
		result.Diagnostic = fmt.Sprintf("%v: no measurement rows found (tried %s)", ErrUnsupportedFormat, strings.Join(tried, ", "))
	}
	log.Warn().Str("diagnostic", result.Diagnostic).Msg("No rows extracted from report")
	return result, nil
}

// ParseRows parses rows already split into cells, such as a Google Sheets
// range, with the same post-processing as file reports.
func (p *Parser) ParseRows(rows [][]string, source string, format models.ReportFormat) *ParseResult {
	result := &ParseResult{Filename: source, Format: models.FormatUnsupported, Strategy: "rows"}
	records, err := ParseRows(rows, format)
	if err != nil || len(records) == 0 {
		result.Diagnostic = fmt.Sprintf("%v: no measurement rows found", ErrUnsupportedFormat)
		if err != nil {
			result.Diagnostic += ": " + err.Error()
		}
		p.log.Warn().Str("source", source).Str("diagnostic", result.Diagnostic).Msg("No rows extracted")
		return result
	}
	for i := range records {
		ComputeStatus(&records[i])
	}
	result.Records = records
	result.Format = format
	p.log.Info().Str("source", source).Int("records", len(records)).Msg("Rows parsed")
	return result
}

func decodeInput(in *Input) error {
	text, enc, err := Decode(in.Data)
	if err != nil {
		return err
	}
	in.Text = text
	in.Encoding = enc
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		in.Lines = append(in.Lines, line)
		in.LineNumbers = append(in.LineNumbers, i+1)
	}
	return nil
}

func supportedExtension(ext string) bool {
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}
