package cmm

import (
	"math"

	"balloon/pkg/models"
)

// StatusEpsilon absorbs floating point noise at the tolerance boundary.
const StatusEpsilon = 1e-9

// EvaluateStatus classifies actual against the closed interval [lower, upper].
func EvaluateStatus(actual, lower, upper float64) models.ConformanceStatus {
	if actual >= lower-StatusEpsilon && actual <= upper+StatusEpsilon {
		return models.StatusPass
	}
	return models.StatusFail
}

// RecordLimits returns the acceptance interval a record states on its own:
// explicit limits first (a single limit leaves the other side open), then
// nominal with its tolerances. A lone tolerance is read as symmetric.
func RecordLimits(r *models.MeasuredFeatureRecord) (lower, upper float64, ok bool) {
	if r.UpperLimit != nil || r.LowerLimit != nil {
		lower, upper = math.Inf(-1), math.Inf(1)
		if r.LowerLimit != nil {
			lower = *r.LowerLimit
		}
		if r.UpperLimit != nil {
			upper = *r.UpperLimit
		}
		return lower, upper, true
	}
	if r.Nominal == nil {
		return 0, 0, false
	}
	plus, minus := r.PlusTolerance, r.MinusTolerance
	switch {
	case plus == nil && minus == nil:
		return 0, 0, false
	case plus == nil:
		plus = minus
	case minus == nil:
		minus = plus
	}
	return *r.Nominal - math.Abs(*minus), *r.Nominal + *plus, true
}

// ComputeStatus fills a record's status when the report did not state one:
// the actual value against the record's own interval, otherwise the
// deviation against its tolerances. Records without enough data stay UNKNOWN.
func ComputeStatus(r *models.MeasuredFeatureRecord) {
	if r.StatusSource == "report" {
		return
	}
	r.Status = models.StatusUnknown
	r.StatusSource = ""

	if r.Actual != nil {
		if lower, upper, ok := RecordLimits(r); ok {
			r.Status = EvaluateStatus(*r.Actual, lower, upper)
			r.StatusSource = "computed"
			return
		}
	}
	if r.Deviation != nil && (r.PlusTolerance != nil || r.MinusTolerance != nil) {
		plus, minus := r.PlusTolerance, r.MinusTolerance
		if plus == nil {
			plus = minus
		}
		if minus == nil {
			minus = plus
		}
		r.Status = EvaluateStatus(*r.Deviation, -math.Abs(*minus), *plus)
		r.StatusSource = "computed"
	}
}
