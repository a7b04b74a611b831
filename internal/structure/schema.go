package structure

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"balloon/pkg/models"
)

// specificationSchema is the JSON schema the semantic collaborator must satisfy.
const specificationSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["units", "tolerance_kind", "subtype"],
  "properties": {
    "nominal":            {"type": ["number", "null"]},
    "plus_tolerance":     {"type": ["number", "null"]},
    "minus_tolerance":    {"type": ["number", "null"]},
    "upper_limit":        {"type": ["number", "null"]},
    "lower_limit":        {"type": ["number", "null"]},
    "units":              {"enum": ["inch", "millimeter", "degree", "unspecified"]},
    "tolerance_kind":     {"enum": ["bilateral", "limit", "fit", "basic", "none"]},
    "subtype":            {"enum": ["Linear", "Diameter", "Radius", "Angle", "Thread", "GD&T", "Note"]},
    "is_gdt":             {"type": "boolean"},
    "gdt_symbol":         {"type": ["string", "null"]},
    "tolerance_zone":     {"type": ["number", "null"]},
    "datums":             {"type": ["array", "null"], "items": {"type": "string"}},
    "fit_class":          {"type": ["string", "null"]},
    "thread_spec":        {"type": ["string", "null"]},
    "quantity":           {"type": ["integer", "null"], "minimum": 0},
    "full_specification": {"type": ["string", "null"]}
  }
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("specification.json", strings.NewReader(specificationSchema)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("specification.json")
	})
	return compiledSchema, compileErr
}

// semanticSpec mirrors the collaborator's JSON, where optional strings may be null.
type semanticSpec struct {
	Nominal           *float64 `json:"nominal"`
	PlusTolerance     *float64 `json:"plus_tolerance"`
	MinusTolerance    *float64 `json:"minus_tolerance"`
	UpperLimit        *float64 `json:"upper_limit"`
	LowerLimit        *float64 `json:"lower_limit"`
	Units             string   `json:"units"`
	ToleranceKind     string   `json:"tolerance_kind"`
	Subtype           string   `json:"subtype"`
	IsGDT             bool     `json:"is_gdt"`
	GDTSymbol         *string  `json:"gdt_symbol"`
	ToleranceZone     *float64 `json:"tolerance_zone"`
	Datums            []string `json:"datums"`
	FitClass          *string  `json:"fit_class"`
	ThreadSpec        *string  `json:"thread_spec"`
	Quantity          *int     `json:"quantity"`
	FullSpecification *string  `json:"full_specification"`
}

// DecodeSemantic validates raw collaborator output against the schema and
// enforces the structuring rules against the source text. Any violation
// returns ErrMalformedOutput.
func DecodeSemantic(raw []byte, text string) (*models.DimensionalSpecification, error) {
	const op = "DecodeSemantic"

	sch, err := schema()
	if err != nil {
		return nil, WrapStructureError(op, err, "schema compilation")
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, WrapStructureError(op, ErrMalformedOutput, err.Error())
	}
	if err := sch.Validate(v); err != nil {
		return nil, WrapStructureError(op, ErrMalformedOutput, fmt.Sprintf("json does not match schema: %v", err))
	}

	var in semanticSpec
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, WrapStructureError(op, ErrMalformedOutput, err.Error())
	}

	spec := &models.DimensionalSpecification{
		Nominal:        in.Nominal,
		PlusTolerance:  in.PlusTolerance,
		MinusTolerance: in.MinusTolerance,
		UpperLimit:     in.UpperLimit,
		LowerLimit:     in.LowerLimit,
		Units:          models.Units(in.Units),
		ToleranceKind:  models.ToleranceKind(in.ToleranceKind),
		Subtype:        models.FeatureSubtype(in.Subtype),
		IsGDT:          in.IsGDT,
		GDTSymbol:      deref(in.GDTSymbol),
		ToleranceZone:  in.ToleranceZone,
		Datums:         in.Datums,
		FitClass:       deref(in.FitClass),
		ThreadSpec:     deref(in.ThreadSpec),
	}
	if in.Quantity != nil {
		spec.Quantity = *in.Quantity
	}

	if spec.GDTSymbol != "" {
		name, ok := normalizeGDTName(spec.GDTSymbol)
		if !ok {
			return nil, WrapStructureError(op, ErrMalformedOutput, fmt.Sprintf("unknown gdt_symbol %q", spec.GDTSymbol))
		}
		spec.GDTSymbol = name
	}

	enforceRules(spec, text)
	if err := spec.Validate(); err != nil {
		return nil, WrapStructureError(op, ErrMalformedOutput, err.Error())
	}

	spec.FullSpecification = FormatFullSpecification(spec)
	if spec.FullSpecification == "" {
		spec.FullSpecification = strings.TrimSpace(deref(in.FullSpecification))
	}
	if spec.FullSpecification == "" {
		spec.FullSpecification = strings.TrimSpace(text)
	}
	return spec, nil
}

// enforceRules applies the deterministic structuring rules on top of
// whatever the collaborator inferred.
func enforceRules(spec *models.DimensionalSpecification, text string) {
	if spec.MinusTolerance != nil {
		m := math.Abs(*spec.MinusTolerance)
		spec.MinusTolerance = &m
	}
	if spec.UpperLimit != nil && spec.LowerLimit != nil && *spec.UpperLimit < *spec.LowerLimit {
		spec.UpperLimit, spec.LowerLimit = spec.LowerLimit, spec.UpperLimit
	}
	if spec.ToleranceKind == models.ToleranceBilateral && spec.PlusTolerance != nil && spec.MinusTolerance == nil &&
		strings.ContainsRune(text, plusMinus) {
		spec.MinusTolerance = models.CopyFloat(spec.PlusTolerance)
	}

	if _, name, ok := findGDT(text); ok {
		spec.IsGDT = true
		if spec.GDTSymbol == "" {
			spec.GDTSymbol = name
		}
	}
	if spec.IsGDT {
		spec.Subtype = models.SubtypeGDT
	}

	switch {
	case mmRe.MatchString(text):
		spec.Units = models.UnitsMillimeter
	case strings.ContainsRune(text, degreeGlyph):
		spec.Units = models.UnitsDegree
	case spec.Units == "" || spec.Units == models.UnitsUnspecified:
		spec.Units = models.UnitsInch
		if spec.FitClass != "" && !inchRe.MatchString(text) {
			spec.Units = models.UnitsMillimeter
		}
	}

	if spec.IsGDT {
		return
	}
	switch {
	case spec.ThreadSpec != "":
		spec.Subtype = models.SubtypeThread
	case strings.ContainsAny(text, diameterGlyphs):
		spec.Subtype = models.SubtypeDiameter
	case radiusRe.MatchString(strings.TrimSpace(takeQuantity(text, &models.DimensionalSpecification{}))):
		spec.Subtype = models.SubtypeRadius
	case strings.ContainsRune(text, degreeGlyph):
		spec.Subtype = models.SubtypeAngle
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
