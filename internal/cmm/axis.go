package cmm

import (
	"regexp"
	"strings"
	"unicode"

	"balloon/pkg/models"
)

// Axis reports list one block per dimension:
//
//	DIM 5= DIAMETER OF CIRCLE CIR1  UNITS=IN
//	AX    NOMINAL    +TOL     -TOL     MEAS     DEV      OUTTOL
//	D      0.5000   0.0050   0.0050   0.5030   0.0030   0.0000
//
// Every axis row becomes one record labeled with the block's dimension id.
var (
	dimLinePattern = regexp.MustCompile(`(?i)^\s*DIM\s+([^\s=]+)\s*=`)
	unitsPattern   = regexp.MustCompile(`(?i)UNITS\s*=\s*(MM|IN|INCH|DEG)`)
)

func hasAxisHeader(in *Input) bool {
	for _, line := range in.Lines {
		if isAxisHeader(line) {
			return true
		}
	}
	return false
}

func isAxisHeader(line string) bool {
	fields := strings.Fields(strings.ToUpper(line))
	if len(fields) < 3 || (fields[0] != "AX" && fields[0] != "AXIS") {
		return false
	}
	upper := strings.Join(fields, " ")
	return strings.Contains(upper, "NOMINAL") && strings.Contains(upper, "MEAS")
}

func parseAxis(in *Input) ([]models.MeasuredFeatureRecord, error) {
	var (
		records []models.MeasuredFeatureRecord
		label   string
		units   models.Units
		cols    []column
	)

	for i, line := range in.Lines {
		if m := dimLinePattern.FindStringSubmatch(line); m != nil {
			label = m[1]
			units = ""
			if u := unitsPattern.FindStringSubmatch(line); u != nil {
				units = parseUnits(u[1])
			}
			cols = nil
			continue
		}
		if isAxisHeader(line) {
			fields := strings.Fields(line)
			cols = make([]column, len(fields))
			for j, f := range fields {
				cols[j] = lookupColumn(f)
			}
			continue
		}
		if cols == nil {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 || !isAxisCode(fields[0]) {
			continue
		}
		var b recordBuilder
		b.rec.Label = label
		b.rec.Units = units
		for j, f := range fields {
			if j < len(cols) {
				b.set(cols[j], f)
			}
		}
		rec, ok := b.record()
		if !ok {
			continue
		}
		rec.Row = in.LineNumbers[i]
		records = append(records, rec)
	}
	return records, nil
}

// isAxisCode accepts short alphabetic axis names such as X, D, TP or PA.
func isAxisCode(s string) bool {
	if len(s) == 0 || len(s) > 4 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
