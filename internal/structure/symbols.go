package structure

import (
	"sort"
	"strings"
	"unicode"
)

// gdtSymbols maps geometric characteristic glyphs to their names.
var gdtSymbols = map[rune]string{
	'⏤': "straightness",
	'⏥': "flatness",
	'○': "circularity",
	'⌭': "cylindricity",
	'⌒': "profile_of_line",
	'⌓': "profile_of_surface",
	'∠': "angularity",
	'⊥': "perpendicularity",
	'∥': "parallelism",
	'⌖': "position",
	'◎': "concentricity",
	'⌯': "symmetry",
	'↗': "circular_runout",
	'⌰': "total_runout",
}

// gdtGlyph is the reverse of gdtSymbols.
var gdtGlyph = func() map[string]rune {
	m := make(map[string]rune, len(gdtSymbols))
	for r, name := range gdtSymbols {
		m[name] = r
	}
	return m
}()

// GDTSymbolNames returns the recognized geometric characteristic names, sorted.
func GDTSymbolNames() []string {
	names := make([]string, 0, len(gdtSymbols))
	for _, n := range gdtSymbols {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// normalizeGDTName maps a collaborator's symbol name onto a known name.
// Unknown names return false.
func normalizeGDTName(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	_, ok := gdtGlyph[n]
	return n, ok
}

const (
	diameterGlyphs = "⌀Ø∅ø"
	degreeGlyph    = '°'
	plusMinus      = '±'
	// material condition modifiers
	modifierGlyphs = "ⓂⓁⓈⓅⓉⒻⓊ"
)

// isEngineeringGlyph reports whether r carries dimensioning meaning.
func isEngineeringGlyph(r rune) bool {
	if _, ok := gdtSymbols[r]; ok {
		return true
	}
	return r == degreeGlyph || r == plusMinus || strings.ContainsRune(diameterGlyphs, r)
}

// PassesPrefilter reports whether text may contain a dimension: at least one
// digit, a tolerance symbol, or a recognized engineering glyph.
func PassesPrefilter(text string) bool {
	for _, r := range text {
		if unicode.IsDigit(r) || isEngineeringGlyph(r) {
			return true
		}
	}
	return strings.Contains(text, "+/-")
}

// findGDT returns the first geometric characteristic glyph in text.
func findGDT(text string) (rune, string, bool) {
	for _, r := range text {
		if name, ok := gdtSymbols[r]; ok {
			return r, name, true
		}
	}
	return 0, "", false
}
