package structure

import (
	"strconv"
	"strings"

	"balloon/pkg/models"
)

// FormatFullSpecification renders the canonical text of a specification.
// The output re-parses with ParseHeuristic to the same numeric fields.
func FormatFullSpecification(spec *models.DimensionalSpecification) string {
	if spec == nil {
		return ""
	}

	var b strings.Builder
	if spec.Quantity > 1 {
		b.WriteString(strconv.Itoa(spec.Quantity))
		b.WriteString("X ")
	}

	if spec.IsGDT {
		b.WriteString(formatFrame(spec))
		return b.String()
	}
	if spec.Subtype == models.SubtypeThread && spec.ThreadSpec != "" {
		b.WriteString(spec.ThreadSpec)
		return b.String()
	}

	switch spec.Subtype {
	case models.SubtypeDiameter:
		b.WriteString("⌀")
	case models.SubtypeRadius:
		b.WriteString("R")
	}

	n := func(p *float64) string { return formatNumber(*p, spec.Units) }
	body := ""
	switch spec.ToleranceKind {
	case models.ToleranceBilateral:
		if spec.Nominal == nil || spec.PlusTolerance == nil || spec.MinusTolerance == nil {
			return spec.FullSpecification
		}
		if *spec.PlusTolerance == *spec.MinusTolerance {
			body = n(spec.Nominal) + " ±" + n(spec.PlusTolerance)
		} else {
			body = n(spec.Nominal) + " +" + n(spec.PlusTolerance) + "/-" + n(spec.MinusTolerance)
		}
	case models.ToleranceLimit:
		if spec.LowerLimit == nil || spec.UpperLimit == nil {
			return spec.FullSpecification
		}
		body = n(spec.LowerLimit) + "-" + n(spec.UpperLimit)
	case models.ToleranceBasic:
		if spec.Nominal == nil {
			return spec.FullSpecification
		}
		body = "[" + n(spec.Nominal) + "]"
	case models.ToleranceFit:
		if spec.Nominal == nil {
			return spec.FullSpecification
		}
		body = n(spec.Nominal) + " " + spec.FitClass
	default:
		switch {
		case spec.Nominal != nil:
			body = n(spec.Nominal)
			if spec.LowerLimit != nil && spec.UpperLimit == nil {
				body += " MIN"
			} else if spec.UpperLimit != nil && spec.LowerLimit == nil {
				body += " MAX"
			}
		case spec.LowerLimit != nil:
			body = n(spec.LowerLimit) + " MIN"
		case spec.UpperLimit != nil:
			body = n(spec.UpperLimit) + " MAX"
		case spec.PlusTolerance != nil && spec.MinusTolerance != nil:
			if *spec.PlusTolerance == *spec.MinusTolerance {
				body = "±" + n(spec.PlusTolerance)
			} else {
				body = "+" + n(spec.PlusTolerance) + "/-" + n(spec.MinusTolerance)
			}
		default:
			return spec.FullSpecification
		}
	}
	b.WriteString(body)
	if spec.Units == models.UnitsMillimeter {
		b.WriteString(" mm")
	}
	return b.String()
}

// formatFrame renders a feature control frame as "|⌖|.010|A|B|".
func formatFrame(spec *models.DimensionalSpecification) string {
	var b strings.Builder
	b.WriteString("|")
	if r, ok := gdtGlyph[spec.GDTSymbol]; ok {
		b.WriteRune(r)
	} else {
		b.WriteString(spec.GDTSymbol)
	}
	b.WriteString("|")
	if spec.ToleranceZone != nil {
		b.WriteString(formatNumber(*spec.ToleranceZone, spec.Units))
		b.WriteString("|")
	}
	for _, d := range spec.Datums {
		b.WriteString(d)
		b.WriteString("|")
	}
	if spec.Units == models.UnitsMillimeter {
		b.WriteString(" mm")
	}
	return b.String()
}

// formatNumber pads decimals to drawing precision: three places for inch,
// two for millimeter. Inch values below one drop the leading zero.
func formatNumber(v float64, units models.Units) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	minDecimals := 0
	switch units {
	case models.UnitsInch, models.UnitsUnspecified:
		minDecimals = 3
	case models.UnitsMillimeter:
		minDecimals = 2
	}
	if minDecimals > 0 {
		dot := strings.IndexByte(s, '.')
		if dot < 0 {
			s += "."
			dot = len(s) - 1
		}
		for len(s)-dot-1 < minDecimals {
			s += "0"
		}
	}
	if units == models.UnitsInch && strings.HasPrefix(s, "0.") {
		s = s[1:]
	}
	if units == models.UnitsDegree {
		s += "°"
	}
	return s
}
