package cmm

import (
	"regexp"
	"strings"

	"balloon/pkg/models"
)

// Tabular reports are whitespace-aligned tables with a header line naming
// feature, nominal, upper and lower bounds and actual columns. Cells are
// separated by a tab or two or more spaces so labels may contain single spaces.
var cellSeparator = regexp.MustCompile(`\t|\s{2,}`)

func splitCells(line string) []string {
	return cellSeparator.Split(strings.TrimSpace(line), -1)
}

func tabularHeader(line string) ([]column, bool) {
	cells := splitCells(line)
	cols, ok := headerColumns(cells)
	if !ok {
		return nil, false
	}
	var upper, lower, actual bool
	for _, c := range cols {
		switch c {
		case colPlusTol, colUpperLimit:
			upper = true
		case colMinusTol, colLowerLimit:
			lower = true
		case colActual:
			actual = true
		}
	}
	return cols, upper && lower && actual
}

func hasTabularHeader(in *Input) bool {
	for _, line := range in.Lines {
		if _, ok := tabularHeader(line); ok {
			return true
		}
	}
	return false
}

func parseTabular(in *Input) ([]models.MeasuredFeatureRecord, error) {
	header := -1
	var width int
	for i, line := range in.Lines {
		if cols, ok := tabularHeader(line); ok {
			header, width = i, len(cols)
			break
		}
	}
	if header < 0 {
		return nil, ErrNoHeader
	}

	rows := [][]string{splitCells(in.Lines[header])}
	lineNumbers := []int{in.LineNumbers[header]}
	for i := header + 1; i < len(in.Lines); i++ {
		cells := splitCells(in.Lines[i])
		if len(cells) > width {
			// the label absorbed a column break
			extra := len(cells) - width
			cells = append([]string{strings.Join(cells[:extra+1], " ")}, cells[extra+1:]...)
		}
		rows = append(rows, cells)
		lineNumbers = append(lineNumbers, in.LineNumbers[i])
	}

	records, err := ParseRows(rows, models.FormatTabular)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Row = lineNumbers[records[i].Row-1]
	}
	return records, nil
}
