package cmm

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"balloon/pkg/models"
)

const axisReport = `PART NAME  : BRACKET-100
DIM 5= DIAMETER OF CIRCLE CIR1  UNITS=IN
AX    NOMINAL    +TOL     -TOL     MEAS     DEV      OUTTOL
D      0.5000   0.0050   0.0050   0.5030   0.0030   0.0000
DIM 6= LOCATION OF CIRCLE CIR1  UNITS=IN
AX    NOMINAL    +TOL     -TOL     MEAS     DEV      OUTTOL
X      1.0000   0.0050   0.0050   1.0080   0.0080   0.0030
Y      2.0000   0.0050   0.0050   1.9990  -0.0010   0.0000
`

const tabularReport = `CMM INSPECTION REPORT
Part: BRACKET-100    Rev: C
Feature          Nominal    Upper Tol    Lower Tol    Actual    Deviation    Status
Diameter 1       12.000     0.050        -0.050       12.012    0.012        OK
Slot Width       6.000      0.020        -0.020       6.031     0.031        NOK
Depth            4.500      0.100        -0.100       4.480     -0.020
`

const semicolonReport = `Part;Bracket
Feature;Nominal;Actual;Tol
1;12,000;12,010;0,050
2;8,500;8,600;0,050
`

const genericReport = `Inspection summary
Hole A  0.2500  0.2512
Hole B  0.2500  0.2561  FAIL
Page 1 of 2
`

type recordSummary struct {
	Label  string
	Axis   string
	Status models.ConformanceStatus
	Source string
}

func summarize(records []models.MeasuredFeatureRecord) []recordSummary {
	var out []recordSummary
	for _, r := range records {
		out = append(out, recordSummary{Label: r.Label, Axis: r.Axis, Status: r.Status, Source: r.StatusSource})
	}
	return out
}

func TestParseBytes_Formats(t *testing.T) {
	tests := []struct {
		name         string
		filename     string
		content      string
		wantFormat   models.ReportFormat
		wantStrategy string
		want         []recordSummary
	}{
		{
			name:         "key value csv",
			filename:     "report.csv",
			content:      "Feature=5,Nominal=0.500,Actual=0.505,Deviation=0.005,Status=FAIL\n",
			wantFormat:   models.FormatDelimited,
			wantStrategy: "extension:csv",
			want:         []recordSummary{{Label: "5", Status: models.StatusFail, Source: "report"}},
		},
		{
			name:         "semicolon csv with preamble",
			filename:     "report.csv",
			content:      semicolonReport,
			wantFormat:   models.FormatDelimited,
			wantStrategy: "extension:csv",
			want: []recordSummary{
				{Label: "1", Status: models.StatusPass, Source: "computed"},
				{Label: "2", Status: models.StatusFail, Source: "computed"},
			},
		},
		{
			name:         "delimited content without csv extension",
			filename:     "export.txt",
			content:      "Char No,Nominal,Plus Tol,Minus Tol,Actual\n7,0.250,0.005,0.005,0.254\n",
			wantFormat:   models.FormatDelimited,
			wantStrategy: "structural:delimited",
			want:         []recordSummary{{Label: "7", Status: models.StatusPass, Source: "computed"}},
		},
		{
			name:         "axis report",
			filename:     "part.rpt",
			content:      axisReport,
			wantFormat:   models.FormatAxisReport,
			wantStrategy: "keyword:axis",
			want: []recordSummary{
				{Label: "5", Axis: "D", Status: models.StatusPass, Source: "report"},
				{Label: "6", Axis: "X", Status: models.StatusFail, Source: "report"},
				{Label: "6", Axis: "Y", Status: models.StatusPass, Source: "report"},
			},
		},
		{
			name:         "tabular report",
			filename:     "report.txt",
			content:      tabularReport,
			wantFormat:   models.FormatTabular,
			wantStrategy: "keyword:tabular",
			want: []recordSummary{
				{Label: "Diameter 1", Status: models.StatusPass, Source: "report"},
				{Label: "Slot Width", Status: models.StatusFail, Source: "report"},
				{Label: "Depth", Status: models.StatusPass, Source: "computed"},
			},
		},
		{
			name:         "generic numeric lines",
			filename:     "points.txt",
			content:      genericReport,
			wantFormat:   models.FormatGeneric,
			wantStrategy: "generic",
			want: []recordSummary{
				{Label: "Hole A", Status: models.StatusUnknown},
				{Label: "Hole B", Status: models.StatusFail, Source: "report"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewParser().ParseBytes([]byte(tt.content), tt.filename)
			if err != nil {
				t.Fatalf("ParseBytes() error = %v", err)
			}
			if result.Format != tt.wantFormat {
				t.Errorf("Format = %q, want %q", result.Format, tt.wantFormat)
			}
			if result.Strategy != tt.wantStrategy {
				t.Errorf("Strategy = %q, want %q", result.Strategy, tt.wantStrategy)
			}
			if diff := cmp.Diff(tt.want, summarize(result.Records)); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
			for _, r := range result.Records {
				if r.Format != tt.wantFormat {
					t.Errorf("record %q format = %q, want %q", r.Label, r.Format, tt.wantFormat)
				}
			}
		})
	}
}

func TestParseBytes_KeyValueFields(t *testing.T) {
	result, err := NewParser().ParseBytes([]byte("Feature=5,Nominal=0.500,Actual=0.505,Deviation=0.005,Status=FAIL"), "r.csv")
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	want := []models.MeasuredFeatureRecord{{
		Label:        "5",
		Row:          1,
		Nominal:      models.Float(0.5),
		Actual:       models.Float(0.505),
		Deviation:    models.Float(0.005),
		Status:       models.StatusFail,
		StatusSource: "report",
		Format:       models.FormatDelimited,
	}}
	if diff := cmp.Diff(want, result.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBytes_AxisFields(t *testing.T) {
	result, err := NewParser().ParseBytes([]byte(axisReport), "part.rpt")
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	got := result.Records[0]
	want := models.MeasuredFeatureRecord{
		Label:          "5",
		Axis:           "D",
		Row:            4,
		Nominal:        models.Float(0.5),
		Actual:         models.Float(0.503),
		Deviation:      models.Float(0.003),
		PlusTolerance:  models.Float(0.005),
		MinusTolerance: models.Float(0.005),
		Status:         models.StatusPass,
		StatusSource:   "report",
		Units:          models.UnitsInch,
		Format:         models.FormatAxisReport,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBytes_Unsupported(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "prose", content: "Thank you for your order.\nNo measurements here.\n", want: "unsupported report format"},
		{name: "empty", content: "", want: "report is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewParser().ParseBytes([]byte(tt.content), "notes.txt")
			if err != nil {
				t.Fatalf("ParseBytes() error = %v, want a diagnostic result", err)
			}
			if !result.Empty() || result.Format != models.FormatUnsupported {
				t.Errorf("got %d records in format %q, want none", len(result.Records), result.Format)
			}
			if !strings.Contains(result.Diagnostic, tt.want) {
				t.Errorf("Diagnostic = %q, want it to contain %q", result.Diagnostic, tt.want)
			}
		})
	}
}

func TestParse_Undecodable(t *testing.T) {
	_, err := NewParser().Parse(strings.NewReader("\x00\x01\x02binary\x00"), "report.rpt")
	if !errors.Is(err, ErrUndecodable) {
		t.Fatalf("Parse() error = %v, want ErrUndecodable", err)
	}
}

func TestParseBytes_TrailingEOFMarker(t *testing.T) {
	result, err := NewParser().ParseBytes([]byte(semicolonReport+"\x1a"), "report.csv")
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	if len(result.Records) != 2 || result.Encoding != EncodingUTF8 {
		t.Errorf("got %d records in %s, want 2 in utf-8", len(result.Records), result.Encoding)
	}
}

func TestDecode(t *testing.T) {
	utf16 := []byte{0xFF, 0xFE}
	for _, r := range "Nominal,0.5" {
		utf16 = append(utf16, byte(r), 0)
	}

	tests := []struct {
		name     string
		data     []byte
		wantText string
		wantEnc  string
		wantErr  error
	}{
		{name: "utf-8", data: []byte("⌀ 0.500"), wantText: "⌀ 0.500", wantEnc: EncodingUTF8},
		{name: "utf-8 bom", data: append([]byte{0xEF, 0xBB, 0xBF}, "Feature"...), wantText: "Feature", wantEnc: EncodingUTF8},
		{name: "utf-16 le bom", data: utf16, wantText: "Nominal,0.5", wantEnc: EncodingUTF16},
		{name: "windows-1252", data: []byte("Nominal \xB1 0,005 \xD8"), wantText: "Nominal ± 0,005 Ø", wantEnc: EncodingWindows1252},
		{name: "crlf normalized", data: []byte("a\r\nb"), wantText: "a\nb", wantEnc: EncodingUTF8},
		{name: "dos eof marker", data: []byte("Feature,Actual\r\n5,0.503\r\n\x1a"), wantText: "Feature,Actual\n5,0.503\n", wantEnc: EncodingUTF8},
		{name: "nul padding", data: []byte("a\n\x00\x00\x00"), wantText: "a\n", wantEnc: EncodingUTF8},
		{name: "windows-1252 with eof marker", data: []byte("Nominal \xB1 0,005\x1a\x00"), wantText: "Nominal ± 0,005", wantEnc: EncodingWindows1252},
		{name: "embedded nul", data: []byte("a\x00b\n"), wantErr: ErrUndecodable},
		{name: "binary", data: []byte{0x00, 0x01, 0x02, 'a'}, wantErr: ErrUndecodable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, enc, err := Decode(tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if text != tt.wantText || enc != tt.wantEnc {
				t.Errorf("Decode() = %q, %q, want %q, %q", text, enc, tt.wantText, tt.wantEnc)
			}
		})
	}
}

func TestParseBytes_Spreadsheet(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Balloon", "Nominal", "+Tol", "-Tol", "Actual"},
		{3, 1.25, 0.01, 0.01, 1.262},
		{4, 0.75, 0.005, 0.005, 0.751},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	result, err := NewParser().ParseBytes(buf.Bytes(), "cmm.xlsx")
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	if result.Format != models.FormatSpreadsheet {
		t.Errorf("Format = %q, want %q", result.Format, models.FormatSpreadsheet)
	}
	want := []recordSummary{
		{Label: "3", Status: models.StatusFail, Source: "computed"},
		{Label: "4", Status: models.StatusPass, Source: "computed"},
	}
	if diff := cmp.Diff(want, summarize(result.Records)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBytes_CorruptSpreadsheet(t *testing.T) {
	_, err := NewParser().ParseBytes([]byte("PK\x03\x04not really a zip"), "cmm.xlsx")
	if !errors.Is(err, ErrUnreadableSpreadsheet) {
		t.Fatalf("ParseBytes() error = %v, want ErrUnreadableSpreadsheet", err)
	}
}

func TestParseRows(t *testing.T) {
	rows := [][]string{
		{"Inspection", ""},
		{"Feature", "Nominal", "USL", "LSL", "Actual", "Units"},
		{"F1", "10.0", "10.1", "9.9", "10.05", "mm"},
		{"", "", "", "", "", ""},
		{"F2", "5.0", "5.05", "4.95", "4.9", "mm"},
		{"F3", "n/a", "", "", "", ""},
	}
	records, err := ParseRows(rows, models.FormatSheet)
	if err != nil {
		t.Fatalf("ParseRows() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Row != 3 || records[1].Row != 5 {
		t.Errorf("rows = %d, %d, want 3, 5", records[0].Row, records[1].Row)
	}
	if records[0].Units != models.UnitsMillimeter || *records[0].UpperLimit != 10.1 {
		t.Errorf("first record = %+v", records[0])
	}

	if _, err := ParseRows([][]string{{"a", "b"}, {"1", "2"}}, models.FormatSheet); !errors.Is(err, ErrNoHeader) {
		t.Errorf("ParseRows() without header error = %v, want ErrNoHeader", err)
	}
}

func TestSniffDelimiter(t *testing.T) {
	tests := map[string]rune{
		"a,b,c":             ',',
		"a;b;c":             ';',
		"a\tb\tc":           '\t',
		`"x;y",b,c`:         ',',
		"Feature;Nom;0,500": ';',
		"no delimiter":      ',',
	}
	for line, want := range tests {
		if got := sniffDelimiter(line); got != want {
			t.Errorf("sniffDelimiter(%q) = %q, want %q", line, got, want)
		}
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    *float64
		wantErr bool
	}{
		{in: "0.500", want: models.Float(0.5)},
		{in: "-0.050", want: models.Float(-0.05)},
		{in: "−0.050", want: models.Float(-0.05)},
		{in: "±0.005", want: models.Float(0.005)},
		{in: "12,5", want: models.Float(12.5)},
		{in: "1,234.5", want: models.Float(1234.5)},
		{in: "12.7mm", want: models.Float(12.7)},
		{in: "", want: nil},
		{in: "N/A", want: nil},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseNumber(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseNumber(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("parseNumber(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
