package structure

import (
	"regexp"
	"strconv"
	"strings"

	"balloon/pkg/models"
)

const num = `(\d+(?:\.\d*)?|\.\d+)`

var (
	dashReplacer = strings.NewReplacer("−", "-", "–", "-", "—", "-", "‐", "-", "+/-", "±", "+-", "±", "×", "X")

	spaceRe      = regexp.MustCompile(`\s+`)
	quantityRe   = regexp.MustCompile(`^(\d+)\s*[Xx](?:\s+|$)`)
	quantityGlue = regexp.MustCompile(`^(\d+)\s*[Xx]([⌀Ø∅ø])`)
	placesRe     = regexp.MustCompile(`(?i)\b(\d+)\s*(?:PLACES|PLCS|PL)\b\.?`)
	mmRe         = regexp.MustCompile(`(?i)(^|[\d\s.\]\)])mm\b`)
	inchRe       = regexp.MustCompile(`(?i)(\d)\s*(?:"|IN\b|INCH(?:ES)?\b)`)
	degWordRe    = regexp.MustCompile(`(?i)(\d)\s*DEG\b`)
	degMinRe     = regexp.MustCompile(`(\d+(?:\.\d*)?)\s*°\s*(\d+(?:\.\d*)?)\s*['′]`)
	minutesRe    = regexp.MustCompile(num + `\s*['′]`)
	diaWordRe    = regexp.MustCompile(`(?i)\bDIA\b\.?`)
	radiusRe     = regexp.MustCompile(`^(?:S|C)?R\s*([\d.])`)
	commaDecRe   = regexp.MustCompile(`(\d),(\d)`)
	keywordRe    = regexp.MustCompile(`(?i)\b(BSC|BASIC|REF|MIN|MAX|TYP|THRU(?:\s+ALL)?|EQ\s*SP)\b\.?`)

	unifiedThreadRe = regexp.MustCompile(`(?i)^(#\d+|\d+/\d+|\d*\.\d+|\d+)\s*-\s*(\d+)\s*(UNJ[CF]|UNEF|UNC|UNF|UNS|UN|NPTF|NPT|NPS)(?:\s*-\s*([123][AB]))?`)
	metricThreadRe  = regexp.MustCompile(`(?i)^M(\d+(?:\.\d+)?)(?:\s*X\s*(\d+(?:\.\d+)?))?(?:\s*-\s*(\d[EFGH]{1,2}(?:\d[EFGH]{1,2})?))?`)

	bilateralRe = regexp.MustCompile(`^` + num + `±` + num + `$`)
	plusFirstRe = regexp.MustCompile(`^` + num + `\+` + num + `/?-` + num + `$`)
	minusFirst  = regexp.MustCompile(`^` + num + `-` + num + `/?\+` + num + `$`)
	rangeRe     = regexp.MustCompile(`^` + num + `-` + num + `$`)
	bareTolRe   = regexp.MustCompile(`^±` + num + `$`)
	barePlusRe  = regexp.MustCompile(`^\+` + num + `/?-` + num + `$`)
	fitRe       = regexp.MustCompile(`^` + num + `([A-Z]{1,2}\d{1,2}(?:/[a-z]{1,2}\d{1,2})?|[a-z]{1,2}\d{1,2})$`)
	plainRe     = regexp.MustCompile(`^` + num + `$`)
	datumRe     = regexp.MustCompile(`^([A-Z](?:-[A-Z])?)`)
)

// ParseHeuristic parses a callout without the semantic collaborator. ok is
// false when no numeric structure could be recognized; the returned
// specification then carries the raw text as its full specification and the
// Note subtype.
func ParseHeuristic(text string) (*models.DimensionalSpecification, bool) {
	raw := strings.TrimSpace(text)
	unparsed := &models.DimensionalSpecification{
		Units:             models.UnitsUnspecified,
		ToleranceKind:     models.ToleranceNone,
		Subtype:           models.SubtypeNote,
		FullSpecification: raw,
	}
	if raw == "" || !PassesPrefilter(raw) {
		return unparsed, false
	}

	s := spaceRe.ReplaceAllString(dashReplacer.Replace(raw), " ")
	spec := &models.DimensionalSpecification{
		Units:         models.UnitsInch,
		ToleranceKind: models.ToleranceNone,
		Subtype:       models.SubtypeLinear,
	}

	s = takeQuantity(s, spec)

	if mmRe.MatchString(s) {
		spec.Units = models.UnitsMillimeter
		s = mmRe.ReplaceAllString(s, "$1")
		s = commaDecRe.ReplaceAllString(s, "$1.$2")
	}
	inchMarked := inchRe.MatchString(s)
	s = inchRe.ReplaceAllString(s, "$1")

	if _, name, ok := findGDT(s); ok {
		if parseGDT(s, name, spec) {
			spec.FullSpecification = FormatFullSpecification(spec)
			return spec, true
		}
		return unparsed, false
	}

	if parseThread(strings.TrimSpace(s), spec) {
		spec.FullSpecification = FormatFullSpecification(spec)
		return spec, true
	}

	if strings.ContainsRune(s, degreeGlyph) || degWordRe.MatchString(s) {
		spec.Units = models.UnitsDegree
		spec.Subtype = models.SubtypeAngle
		s = decimalDegrees(s)
		s = strings.ReplaceAll(s, string(degreeGlyph), "")
		s = degWordRe.ReplaceAllString(s, "$1")
	}
	if strings.ContainsAny(s, diameterGlyphs) || diaWordRe.MatchString(s) {
		if spec.Subtype != models.SubtypeAngle {
			spec.Subtype = models.SubtypeDiameter
		}
		s = strings.Map(func(r rune) rune {
			if strings.ContainsRune(diameterGlyphs, r) {
				return -1
			}
			return r
		}, s)
		s = diaWordRe.ReplaceAllString(s, "")
	}
	s = strings.TrimSpace(s)
	if m := radiusRe.FindStringSubmatchIndex(s); m != nil && spec.Subtype == models.SubtypeLinear {
		spec.Subtype = models.SubtypeRadius
		s = s[m[2]:]
	}

	var basic, atMin, atMax bool
	s = keywordRe.ReplaceAllStringFunc(s, func(kw string) string {
		switch strings.ToUpper(strings.TrimSuffix(kw, ".")) {
		case "BSC", "BASIC":
			basic = true
		case "MIN":
			atMin = true
		case "MAX":
			atMax = true
		}
		return ""
	})

	core := strings.ReplaceAll(s, " ", "")
	if strings.HasPrefix(core, "[") && strings.HasSuffix(core, "]") {
		basic = true
		core = core[1 : len(core)-1]
	}
	// reference dimension, carries no tolerance
	if strings.HasPrefix(core, "(") && strings.HasSuffix(core, ")") {
		core = core[1 : len(core)-1]
	}

	if !parseCore(core, spec) {
		return unparsed, false
	}
	// ISO fit classes are metric
	if spec.ToleranceKind == models.ToleranceFit && spec.Units == models.UnitsInch && !inchMarked {
		spec.Units = models.UnitsMillimeter
	}

	switch {
	case basic && spec.ToleranceKind == models.ToleranceNone:
		spec.ToleranceKind = models.ToleranceBasic
	case atMin && spec.ToleranceKind == models.ToleranceNone:
		spec.LowerLimit = models.CopyFloat(spec.Nominal)
	case atMax && spec.ToleranceKind == models.ToleranceNone:
		spec.UpperLimit = models.CopyFloat(spec.Nominal)
	}

	if spec.Validate() != nil {
		return unparsed, false
	}
	spec.FullSpecification = FormatFullSpecification(spec)
	return spec, true
}

// takeQuantity strips "4X" prefixes and "4 PLACES" suffixes.
func takeQuantity(s string, spec *models.DimensionalSpecification) string {
	if m := quantityGlue.FindStringSubmatchIndex(s); m != nil {
		spec.Quantity, _ = strconv.Atoi(s[m[2]:m[3]])
		return s[m[4]:]
	}
	if m := quantityRe.FindStringSubmatch(s); m != nil {
		spec.Quantity, _ = strconv.Atoi(m[1])
		return s[len(m[0]):]
	}
	if m := placesRe.FindStringSubmatch(s); m != nil {
		spec.Quantity, _ = strconv.Atoi(m[1])
		return strings.TrimSpace(strings.Replace(s, m[0], "", 1))
	}
	return s
}

// decimalDegrees rewrites degree-minute notation ("30°15'", "±30'") as
// decimal degrees.
func decimalDegrees(s string) string {
	s = degMinRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := degMinRe.FindStringSubmatch(m)
		deg, _ := strconv.ParseFloat(sub[1], 64)
		mins, _ := strconv.ParseFloat(sub[2], 64)
		return strconv.FormatFloat(round6(deg+mins/60), 'f', -1, 64) + string(degreeGlyph)
	})
	return minutesRe.ReplaceAllStringFunc(s, func(m string) string {
		mins, _ := strconv.ParseFloat(minutesRe.FindStringSubmatch(m)[1], 64)
		return strconv.FormatFloat(round6(mins/60), 'f', -1, 64)
	})
}

// parseCore recognizes the numeric tolerance forms of a whitespace-free callout.
func parseCore(core string, spec *models.DimensionalSpecification) bool {
	if m := bilateralRe.FindStringSubmatch(core); m != nil {
		spec.Nominal = parseNum(m[1])
		spec.PlusTolerance = parseNum(m[2])
		spec.MinusTolerance = parseNum(m[2])
		spec.ToleranceKind = models.ToleranceBilateral
		return true
	}
	if m := plusFirstRe.FindStringSubmatch(core); m != nil {
		spec.Nominal = parseNum(m[1])
		spec.PlusTolerance = parseNum(m[2])
		spec.MinusTolerance = parseNum(m[3])
		spec.ToleranceKind = models.ToleranceBilateral
		return true
	}
	if m := minusFirst.FindStringSubmatch(core); m != nil {
		spec.Nominal = parseNum(m[1])
		spec.MinusTolerance = parseNum(m[2])
		spec.PlusTolerance = parseNum(m[3])
		spec.ToleranceKind = models.ToleranceBilateral
		return true
	}
	if m := rangeRe.FindStringSubmatch(core); m != nil {
		a, b := parseNum(m[1]), parseNum(m[2])
		if *a > *b {
			a, b = b, a
		}
		spec.LowerLimit, spec.UpperLimit = a, b
		spec.ToleranceKind = models.ToleranceLimit
		return true
	}
	// tolerance without a nominal, as in a general tolerance note
	if m := bareTolRe.FindStringSubmatch(core); m != nil {
		spec.PlusTolerance = parseNum(m[1])
		spec.MinusTolerance = parseNum(m[1])
		return true
	}
	if m := barePlusRe.FindStringSubmatch(core); m != nil {
		spec.PlusTolerance = parseNum(m[1])
		spec.MinusTolerance = parseNum(m[2])
		return true
	}
	if m := fitRe.FindStringSubmatch(core); m != nil {
		spec.Nominal = parseNum(m[1])
		spec.FitClass = m[2]
		spec.ToleranceKind = models.ToleranceFit
		return true
	}
	if m := plainRe.FindStringSubmatch(core); m != nil {
		spec.Nominal = parseNum(m[1])
		return true
	}
	return false
}

// parseThread recognizes unified inch and ISO metric thread callouts.
// The nominal is the major diameter.
func parseThread(s string, spec *models.DimensionalSpecification) bool {
	if m := unifiedThreadRe.FindStringSubmatch(s); m != nil {
		major, ok := threadMajor(m[1])
		if !ok {
			return false
		}
		ts := m[1] + "-" + m[2] + " " + strings.ToUpper(m[3])
		if m[4] != "" {
			ts += "-" + strings.ToUpper(m[4])
		}
		spec.Subtype = models.SubtypeThread
		spec.ThreadSpec = ts
		spec.Nominal = &major
		return true
	}
	if m := metricThreadRe.FindStringSubmatch(s); m != nil {
		ts := "M" + m[1]
		if m[2] != "" {
			ts += "x" + m[2]
		}
		if m[3] != "" {
			ts += "-" + strings.ToUpper(m[3])
		}
		spec.Subtype = models.SubtypeThread
		spec.Units = models.UnitsMillimeter
		spec.ThreadSpec = ts
		spec.Nominal = parseNum(m[1])
		return true
	}
	return false
}

// threadMajor returns the major diameter in inches of a unified thread size:
// "#10" (0.060 + 0.013n), "1/4", ".250" or "1".
func threadMajor(size string) (float64, bool) {
	switch {
	case strings.HasPrefix(size, "#"):
		n, err := strconv.Atoi(size[1:])
		if err != nil || n > 12 {
			return 0, false
		}
		return round6(0.060 + 0.013*float64(n)), true
	case strings.Contains(size, "/"):
		parts := strings.SplitN(size, "/", 2)
		a, err1 := strconv.ParseFloat(parts[0], 64)
		b, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil || b == 0 {
			return 0, false
		}
		return round6(a / b), true
	default:
		v, err := strconv.ParseFloat(size, 64)
		return v, err == nil
	}
}

// parseGDT reads a feature control frame such as "⌖|⌀.010Ⓜ|A|B|C".
func parseGDT(s, name string, spec *models.DimensionalSpecification) bool {
	spec.IsGDT = true
	spec.GDTSymbol = name
	spec.Subtype = models.SubtypeGDT
	spec.ToleranceKind = models.ToleranceNone

	fields := strings.FieldsFunc(s, func(r rune) bool {
		_, glyph := gdtSymbols[r]
		return r == '|' || r == ' ' || glyph || strings.ContainsRune(modifierGlyphs, r)
	})
	zoneSeen := false
	for _, f := range fields {
		f = strings.Trim(f, "()")
		if !zoneSeen {
			z := strings.TrimRight(strings.TrimLeft(f, diameterGlyphs), "MLS")
			if m := plainRe.FindStringSubmatch(z); m != nil {
				spec.ToleranceZone = parseNum(m[1])
				zoneSeen = true
			}
			continue
		}
		if f == "M" || f == "L" || f == "S" {
			continue
		}
		if m := datumRe.FindStringSubmatch(f); m != nil && len(f) <= 4 {
			spec.Datums = append(spec.Datums, m[1])
		}
	}
	return zoneSeen
}

func parseNum(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func round6(v float64) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 6, 64), 64)
	return f
}
