package models

import (
	"errors"
	"fmt"
)

// Units of a dimensional specification.
type Units string

const (
	UnitsUnspecified Units = "unspecified"
	UnitsInch        Units = "inch"
	UnitsMillimeter  Units = "millimeter"
	UnitsDegree      Units = "degree"
)

// ToleranceKind describes how a tolerance is expressed on the drawing.
type ToleranceKind string

const (
	ToleranceNone      ToleranceKind = "none"
	ToleranceBilateral ToleranceKind = "bilateral" // nominal ± tolerance
	ToleranceLimit     ToleranceKind = "limit"     // upper and lower limits
	ToleranceFit       ToleranceKind = "fit"       // ISO/ANSI fit class, e.g. H7
	ToleranceBasic     ToleranceKind = "basic"     // theoretically exact
)

// FeatureSubtype classifies a callout.
type FeatureSubtype string

const (
	SubtypeLinear   FeatureSubtype = "Linear"
	SubtypeDiameter FeatureSubtype = "Diameter"
	SubtypeRadius   FeatureSubtype = "Radius"
	SubtypeAngle    FeatureSubtype = "Angle"
	SubtypeThread   FeatureSubtype = "Thread"
	SubtypeGDT      FeatureSubtype = "GD&T"
	SubtypeNote     FeatureSubtype = "Note"
)

// ErrInvalidSpecification is returned by Validate when a specification breaks
// a tolerance invariant.
var ErrInvalidSpecification = errors.New("invalid dimensional specification")

// DimensionalSpecification is the structured form of one drawing callout.
type DimensionalSpecification struct {
	Nominal        *float64 `json:"nominal"`
	PlusTolerance  *float64 `json:"plus_tolerance"`
	MinusTolerance *float64 `json:"minus_tolerance"` // magnitude, always >= 0
	UpperLimit     *float64 `json:"upper_limit"`
	LowerLimit     *float64 `json:"lower_limit"`

	Units         Units          `json:"units"`
	ToleranceKind ToleranceKind  `json:"tolerance_kind"`
	Subtype       FeatureSubtype `json:"subtype"`

	IsGDT         bool     `json:"is_gdt"`
	GDTSymbol     string   `json:"gdt_symbol,omitempty"`     // e.g. "position"
	ToleranceZone *float64 `json:"tolerance_zone,omitempty"` // GD&T frame value
	Datums        []string `json:"datums,omitempty"`

	FitClass   string `json:"fit_class,omitempty"`
	ThreadSpec string `json:"thread_spec,omitempty"`
	Quantity   int    `json:"quantity,omitempty"` // "4X" multiplier, 0 when absent

	FullSpecification string `json:"full_specification"`
}

// Validate checks the tolerance-kind invariants.
func (s *DimensionalSpecification) Validate() error {
	switch s.ToleranceKind {
	case ToleranceLimit:
		if s.UpperLimit == nil || s.LowerLimit == nil {
			return fmt.Errorf("%w: limit tolerance requires upper and lower limits", ErrInvalidSpecification)
		}
		if *s.UpperLimit < *s.LowerLimit {
			return fmt.Errorf("%w: upper limit %v below lower limit %v", ErrInvalidSpecification, *s.UpperLimit, *s.LowerLimit)
		}
	case ToleranceBilateral:
		if s.Nominal == nil || s.PlusTolerance == nil || s.MinusTolerance == nil {
			return fmt.Errorf("%w: bilateral tolerance requires nominal and both tolerances", ErrInvalidSpecification)
		}
	}
	if s.IsGDT && s.Subtype != SubtypeGDT {
		return fmt.Errorf("%w: GD&T callout with subtype %s", ErrInvalidSpecification, s.Subtype)
	}
	return nil
}

// Limits returns the closed acceptance interval implied by the specification.
// ok is false when neither explicit limits nor a nominal with tolerances exist.
func (s *DimensionalSpecification) Limits() (lower, upper float64, ok bool) {
	if s == nil {
		return 0, 0, false
	}
	if s.UpperLimit != nil && s.LowerLimit != nil {
		return *s.LowerLimit, *s.UpperLimit, true
	}
	if s.Nominal != nil && s.PlusTolerance != nil && s.MinusTolerance != nil {
		return *s.Nominal - *s.MinusTolerance, *s.Nominal + *s.PlusTolerance, true
	}
	return 0, 0, false
}

// Clone returns a deep copy.
func (s *DimensionalSpecification) Clone() *DimensionalSpecification {
	if s == nil {
		return nil
	}
	c := *s
	c.Nominal = CopyFloat(s.Nominal)
	c.PlusTolerance = CopyFloat(s.PlusTolerance)
	c.MinusTolerance = CopyFloat(s.MinusTolerance)
	c.UpperLimit = CopyFloat(s.UpperLimit)
	c.LowerLimit = CopyFloat(s.LowerLimit)
	c.ToleranceZone = CopyFloat(s.ToleranceZone)
	if s.Datums != nil {
		c.Datums = append([]string(nil), s.Datums...)
	}
	return &c
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// CopyFloat copies an optional value.
func CopyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
