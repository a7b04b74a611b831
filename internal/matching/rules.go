package matching

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"balloon/pkg/models"
)

// Default rule weights and thresholds.
const (
	DefaultNominalWeight    = 50
	DefaultIdentifierWeight = 30
	DefaultToleranceWeight  = 20

	DefaultNominalTolerance = 0.002
	DefaultFloor            = 40

	// valueEpsilon absorbs float noise in equality and threshold checks.
	valueEpsilon = 1e-9
)

// DefaultLabelPrefixes are stripped from report labels before comparing
// them with feature ids, longest first.
var DefaultLabelPrefixes = []string{"BALLOON", "FEATURE", "CHAR", "FEAT", "ITEM", "DIM", "NO", "C", "F", "B"}

// Rule is one independently evaluated scoring signal. Score must be a pure
// function of its arguments.
type Rule interface {
	Name() string
	Score(rec *models.MeasuredFeatureRecord, f *models.Feature) int
}

// NominalProximityRule awards Weight when both nominals are present and differ
// by no more than Tolerance, in the feature's units.
type NominalProximityRule struct {
	Weight    int
	Tolerance float64
}

func (r NominalProximityRule) Name() string { return "nominal" }

func (r NominalProximityRule) Score(rec *models.MeasuredFeatureRecord, f *models.Feature) int {
	if rec.Nominal == nil || f.Spec == nil || f.Spec.Nominal == nil {
		return 0
	}
	nominal := convertUnits(*rec.Nominal, rec.Units, f.Spec.Units)
	if math.Abs(nominal-*f.Spec.Nominal) <= r.Tolerance+valueEpsilon {
		return r.Weight
	}
	return 0
}

// IdentifierRule awards Weight when the report label, reduced to its
// alphanumerics and stripped of a known prefix, equals the feature id.
type IdentifierRule struct {
	Weight   int
	Prefixes []string
}

func (r IdentifierRule) Name() string { return "identifier" }

func (r IdentifierRule) Score(rec *models.MeasuredFeatureRecord, f *models.Feature) int {
	if id, ok := LabelID(rec.Label, r.Prefixes); ok && id == f.ID {
		return r.Weight
	}
	return 0
}

// LabelID extracts a feature id from a report label such as "5", "#05",
// "DIM_5" or "Balloon 12".
func LabelID(label string, prefixes []string) (int, bool) {
	var b strings.Builder
	for _, r := range strings.ToUpper(label) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	key := b.String()
	if id, ok := digits(key); ok {
		return id, true
	}
	for _, p := range prefixes {
		if rest, found := strings.CutPrefix(key, p); found {
			if id, ok := digits(rest); ok {
				return id, true
			}
		}
	}
	return 0, false
}

func digits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(s)
	return id, err == nil
}

// TolerancePairRule awards Weight when the record's tolerance information
// agrees with the feature's. A record stating no tolerances or limits
// scores nothing. A lone tolerance is read as symmetric, and record limits
// are compared with the feature's limits.
type TolerancePairRule struct {
	Weight int
}

func (r TolerancePairRule) Name() string { return "tolerance" }

func (r TolerancePairRule) Score(rec *models.MeasuredFeatureRecord, f *models.Feature) int {
	if f.Spec == nil {
		return 0
	}
	spec := f.Spec

	switch {
	case rec.PlusTolerance != nil || rec.MinusTolerance != nil:
		if spec.PlusTolerance == nil || spec.MinusTolerance == nil {
			return 0
		}
		plus, minus := rec.PlusTolerance, rec.MinusTolerance
		if plus == nil {
			plus = minus
		}
		if minus == nil {
			minus = plus
		}
		if equal(*plus, *spec.PlusTolerance) && equal(math.Abs(*minus), *spec.MinusTolerance) {
			return r.Weight
		}
		return 0

	case rec.UpperLimit != nil && rec.LowerLimit != nil:
		lower, upper, ok := spec.Limits()
		if ok && equal(*rec.LowerLimit, lower) && equal(*rec.UpperLimit, upper) {
			return r.Weight
		}
		return 0
	}
	return 0
}

func equal(a, b float64) bool {
	return math.Abs(a-b) <= valueEpsilon
}

// convertUnits converts v between inch and millimeter; other pairs pass through.
func convertUnits(v float64, from, to models.Units) float64 {
	switch {
	case from == models.UnitsMillimeter && to == models.UnitsInch:
		return v / 25.4
	case from == models.UnitsInch && to == models.UnitsMillimeter:
		return v * 25.4
	}
	return v
}
