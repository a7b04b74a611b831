package cmm

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"balloon/pkg/models"
)

// ParseRows normalizes table rows into records. Rows are either key=value
// cells ("Feature=5,Nominal=0.500,...") or positional cells under a header
// row; lines before the first header are treated as report preamble. It is
// shared by the delimited, spreadsheet and Google Sheets sources.
func ParseRows(rows [][]string, format models.ReportFormat) ([]models.MeasuredFeatureRecord, error) {
	var (
		cols    []column
		records []models.MeasuredFeatureRecord
		sawKV   bool
	)

	for i, row := range rows {
		if blankRow(row) {
			continue
		}

		var b recordBuilder
		switch {
		case isKeyValueRow(row):
			sawKV = true
			for _, cell := range row {
				if k, v, ok := strings.Cut(cell, "="); ok {
					b.set(lookupColumn(k), v)
				}
			}
		case cols == nil:
			if c, ok := headerColumns(row); ok {
				cols = c
			}
			continue
		default:
			for j, cell := range row {
				if j < len(cols) {
					b.set(cols[j], cell)
				}
			}
		}

		rec, ok := b.record()
		if !ok {
			continue
		}
		rec.Row = i + 1
		rec.Format = format
		records = append(records, rec)
	}

	if cols == nil && !sawKV {
		return nil, ErrNoHeader
	}
	return records, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// isKeyValueRow reports whether most non-empty cells are key=value pairs with
// a known key.
func isKeyValueRow(row []string) bool {
	cells, kv := 0, 0
	for _, c := range row {
		if strings.TrimSpace(c) == "" {
			continue
		}
		cells++
		if k, _, ok := strings.Cut(c, "="); ok && lookupColumn(k) != colUnknown {
			kv++
		}
	}
	return kv > 0 && kv*2 > cells
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab outside
// quotes on a line, defaulting to comma.
func sniffDelimiter(line string) rune {
	counts := map[rune]int{}
	quoted := false
	for _, r := range line {
		switch r {
		case '"':
			quoted = !quoted
		case ',', ';', '\t':
			if !quoted {
				counts[r]++
			}
		}
	}
	best, n := ',', 0
	for _, r := range []rune{',', ';', '\t'} {
		if counts[r] > n {
			best, n = r, counts[r]
		}
	}
	return best
}

// readDelimited reads every record it can. Malformed lines are skipped.
func readDelimited(text string, delim rune) [][]string {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			continue
		}
		if err != nil {
			break
		}
		rows = append(rows, row)
	}
	return rows
}

func parseDelimited(in *Input) ([]models.MeasuredFeatureRecord, error) {
	if len(in.Lines) == 0 {
		return nil, nil
	}
	rows := readDelimited(in.Text, sniffDelimiter(in.Lines[0]))
	return ParseRows(rows, models.FormatDelimited)
}

func firstLineDelimited(in *Input) bool {
	return len(in.Lines) > 0 && strings.ContainsAny(in.Lines[0], ",;\t")
}
