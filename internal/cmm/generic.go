package cmm

import (
	"regexp"
	"strings"

	"balloon/pkg/models"
)

var dateLike = regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}|\d{1,2}[./]\d{1,2}[./]\d{2,4}\b|\d{1,2}:\d{2}`)

// parseGeneric is the permissive fallback: every line with at least two
// numbers becomes a record. Values are read positionally as
//
//	2 numbers: nominal actual
//	3 numbers: nominal actual deviation
//	4+ numbers: nominal +tol -tol actual [deviation]
//
// after an optional label made of the leading words, plus a leading integer
// when at least two more numbers follow it.
func parseGeneric(in *Input) ([]models.MeasuredFeatureRecord, error) {
	var records []models.MeasuredFeatureRecord
	for i, line := range in.Lines {
		rec, ok := genericRecord(line)
		if !ok {
			continue
		}
		rec.Row = in.LineNumbers[i]
		records = append(records, rec)
	}
	return records, nil
}

func genericRecord(line string) (models.MeasuredFeatureRecord, bool) {
	var rec models.MeasuredFeatureRecord
	if dateLike.MatchString(line) {
		return rec, false
	}

	fields := strings.Fields(line)
	i := 0
	var label []string
	for i < len(fields) && !isNumeric(fields[i]) {
		label = append(label, fields[i])
		i++
	}
	if i < len(fields) && isInteger(fields[i]) && countNumeric(fields[i:]) >= 3 {
		label = append(label, fields[i])
		i++
	}
	rec.Label = strings.TrimRight(strings.Join(label, " "), ":=")

	var nums []float64
	for _, tok := range fields[i:] {
		if st, ok := lineStatus(tok); ok {
			rec.Status = st
			rec.StatusSource = "report"
			continue
		}
		if u := parseUnits(tok); u != "" {
			rec.Units = u
			continue
		}
		v, err := parseNumber(tok)
		if err != nil || v == nil {
			if len(nums) > 0 {
				// words between values: prose, not a measurement row
				return rec, false
			}
			continue
		}
		if strings.HasSuffix(strings.ToLower(tok), "mm") {
			rec.Units = models.UnitsMillimeter
		}
		nums = append(nums, *v)
	}
	if len(nums) < 2 {
		return rec, false
	}

	ptr := func(v float64) *float64 { return &v }
	switch {
	case len(nums) == 2:
		rec.Nominal, rec.Actual = ptr(nums[0]), ptr(nums[1])
	case len(nums) == 3:
		rec.Nominal, rec.Actual, rec.Deviation = ptr(nums[0]), ptr(nums[1]), ptr(nums[2])
	default:
		rec.Nominal = ptr(nums[0])
		rec.PlusTolerance = abs(ptr(nums[1]))
		rec.MinusTolerance = abs(ptr(nums[2]))
		rec.Actual = ptr(nums[3])
		if len(nums) > 4 {
			rec.Deviation = ptr(nums[4])
		}
	}
	return rec, true
}

func isNumeric(tok string) bool {
	v, err := parseNumber(tok)
	return err == nil && v != nil
}

func isInteger(tok string) bool {
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return tok != ""
}

func countNumeric(tokens []string) int {
	n := 0
	for _, t := range tokens {
		if isNumeric(t) {
			n++
		}
	}
	return n
}

// lineStatus accepts only unambiguous pass/fail words inside free text.
func lineStatus(tok string) (models.ConformanceStatus, bool) {
	switch strings.ToUpper(tok) {
	case "PASS", "PASSED", "OK", "FAIL", "FAILED", "NOK", "OOT":
		return parseStatus(tok)
	}
	return "", false
}
