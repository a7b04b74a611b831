package cmm

import (
	"strings"
	"unicode"

	"balloon/pkg/models"
)

type column int

const (
	colUnknown column = iota
	colLabel
	colAxis
	colNominal
	colActual
	colDeviation
	colPlusTol
	colMinusTol
	colTolerance
	colUpperLimit
	colLowerLimit
	colStatus
	colOutTol
	colUnits
)

// columnAliases maps normalized header text to a column. Normalization
// lowercases, spells out + and - and drops everything else non-alphanumeric.
var columnAliases = map[string]column{
	"feature": colLabel, "featureid": colLabel, "featurename": colLabel, "feat": colLabel,
	"characteristic": colLabel, "char": colLabel, "charno": colLabel, "label": colLabel,
	"name": colLabel, "id": colLabel, "balloon": colLabel, "balloonno": colLabel,
	"dim": colLabel, "dimension": colLabel, "item": colLabel, "no": colLabel, "number": colLabel,

	"axis": colAxis, "ax": colAxis,

	"nominal": colNominal, "nom": colNominal, "target": colNominal, "setpoint": colNominal,

	"actual": colActual, "meas": colActual, "measured": colActual, "measurement": colActual,
	"value": colActual, "actualvalue": colActual,

	"deviation": colDeviation, "dev": colDeviation, "error": colDeviation,

	"plustol": colPlusTol, "tolplus": colPlusTol, "uppertol": colPlusTol, "uptol": colPlusTol,
	"uppertolerance": colPlusTol, "plustolerance": colPlusTol, "utol": colPlusTol,

	"minustol": colMinusTol, "tolminus": colMinusTol, "lowertol": colMinusTol, "lowtol": colMinusTol,
	"lowertolerance": colMinusTol, "minustolerance": colMinusTol, "ltol": colMinusTol,

	"tol": colTolerance, "tolerance": colTolerance, "plusminustol": colTolerance,

	"upperlimit": colUpperLimit, "usl": colUpperLimit, "max": colUpperLimit, "upper": colUpperLimit,
	"maximum": colUpperLimit, "high": colUpperLimit,

	"lowerlimit": colLowerLimit, "lsl": colLowerLimit, "min": colLowerLimit, "lower": colLowerLimit,
	"minimum": colLowerLimit, "low": colLowerLimit,

	"status": colStatus, "passfail": colStatus, "result": colStatus, "judgement": colStatus,
	"evaluation": colStatus, "ok": colStatus,

	"outtol": colOutTol, "outoftol": colOutTol, "outoftolerance": colOutTol, "exceed": colOutTol,

	"units": colUnits, "unit": colUnits,
}

func normalizeHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r == '+':
			b.WriteString("plus")
		case r == '-' || r == '−':
			b.WriteString("minus")
		case r == '±':
			b.WriteString("plusminus")
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lookupColumn(header string) column {
	return columnAliases[normalizeHeader(header)]
}

// headerColumns maps a candidate header row. ok requires at least two known
// columns, one of which carries a measured or nominal value.
func headerColumns(cells []string) ([]column, bool) {
	cols := make([]column, len(cells))
	known, values := 0, 0
	for i, c := range cells {
		cols[i] = lookupColumn(c)
		if cols[i] == colUnknown {
			continue
		}
		known++
		if cols[i] == colActual || cols[i] == colNominal || cols[i] == colDeviation {
			values++
		}
	}
	return cols, known >= 2 && values >= 1
}

// recordBuilder accumulates cells into a record. Unparseable numeric cells are
// counted but do not reject the row.
type recordBuilder struct {
	rec     models.MeasuredFeatureRecord
	values  int
	invalid int
}

func (b *recordBuilder) set(col column, cell string) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return
	}
	switch col {
	case colLabel:
		if b.rec.Label == "" {
			b.rec.Label = cell
		}
	case colAxis:
		b.rec.Axis = strings.ToUpper(cell)
	case colStatus:
		if st, ok := parseStatus(cell); ok {
			b.rec.Status = st
			b.rec.StatusSource = "report"
		}
	case colUnits:
		b.rec.Units = parseUnits(cell)
	case colOutTol:
		v := b.number(cell)
		if v != nil && b.rec.StatusSource != "report" {
			b.rec.Status = models.StatusPass
			if *v > StatusEpsilon || *v < -StatusEpsilon {
				b.rec.Status = models.StatusFail
			}
			b.rec.StatusSource = "report"
		}
	case colNominal:
		b.rec.Nominal = b.value(cell)
	case colActual:
		b.rec.Actual = b.value(cell)
	case colDeviation:
		b.rec.Deviation = b.value(cell)
	case colPlusTol:
		b.rec.PlusTolerance = abs(b.value(cell))
	case colMinusTol:
		b.rec.MinusTolerance = abs(b.value(cell))
	case colTolerance:
		v := abs(b.value(cell))
		b.rec.PlusTolerance, b.rec.MinusTolerance = v, models.CopyFloat(v)
	case colUpperLimit:
		b.rec.UpperLimit = b.value(cell)
	case colLowerLimit:
		b.rec.LowerLimit = b.value(cell)
	}
}

func (b *recordBuilder) number(cell string) *float64 {
	v, err := parseNumber(cell)
	if err != nil {
		b.invalid++
		return nil
	}
	return v
}

func (b *recordBuilder) value(cell string) *float64 {
	v := b.number(cell)
	if v != nil {
		b.values++
	}
	return v
}

// record returns the built record, ok only when it carries a measured value
// or a nominal to match on.
func (b *recordBuilder) record() (models.MeasuredFeatureRecord, bool) {
	r := b.rec
	return r, r.Actual != nil || r.Nominal != nil || r.Deviation != nil
}
