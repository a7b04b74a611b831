package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"balloon/internal/cmm"
	"balloon/internal/logger"
	"balloon/internal/registry"
	"balloon/pkg/models"
)

// State is the lifecycle position of one import operation.
type State string

const (
	StateUnstarted State = "UNSTARTED"
	StateParsed    State = "PARSED"
	StateScored    State = "SCORED"
	StateResolved  State = "RESOLVED"
	StateCommitted State = "COMMITTED"
)

// Decision records how a record's assignment was reached.
type Decision string

const (
	DecisionPending   Decision = "pending"
	DecisionAuto      Decision = "auto"
	DecisionOverride  Decision = "override"
	DecisionUnmatched Decision = "unmatched"
)

// ImportOperation drives one report through
// UNSTARTED → PARSED → SCORED → RESOLVED → COMMITTED. A new import starts
// a new operation and only touches the features its own commit assigns.
type ImportOperation struct {
	ID string

	matcher     *Matcher
	state       State
	result      *cmm.ParseResult
	features    map[int]models.Feature
	assignments []models.MatchAssignment
	decisions   []Decision
	log         zerolog.Logger
}

// NewImport creates an operation in the UNSTARTED state.
func NewImport(id string, matcher *Matcher) *ImportOperation {
	if id == "" {
		id = fmt.Sprintf("import-%d", time.Now().UnixNano())
	}
	if matcher == nil {
		matcher = New(DefaultConfig())
	}
	return &ImportOperation{
		ID:      id,
		matcher: matcher,
		state:   StateUnstarted,
		log:     logger.WithImport(id).With().Str("component", "matching").Logger(),
	}
}

// State returns the current state.
func (op *ImportOperation) State() State {
	return op.state
}

// Result returns the parsed report, nil before PARSED.
func (op *ImportOperation) Result() *cmm.ParseResult {
	return op.result
}

// Records returns the parsed records.
func (op *ImportOperation) Records() []models.MeasuredFeatureRecord {
	if op.result == nil {
		return nil
	}
	return op.result.Records
}

// Assignments returns a copy of the current assignments.
func (op *ImportOperation) Assignments() []models.MatchAssignment {
	return append([]models.MatchAssignment(nil), op.assignments...)
}

// Decisions returns a copy of the per-record decisions.
func (op *ImportOperation) Decisions() []Decision {
	return append([]Decision(nil), op.decisions...)
}

func (op *ImportOperation) expect(name string, states ...State) error {
	for _, s := range states {
		if op.state == s {
			return nil
		}
	}
	return WrapMatchError(name, ErrInvalidTransition, fmt.Sprintf("import %s is %s", op.ID, op.state))
}

// Load moves to PARSED with the parser's result. An empty result is accepted;
// the operation then ends at PARSED.
func (op *ImportOperation) Load(result *cmm.ParseResult) error {
	if err := op.expect("Load", StateUnstarted); err != nil {
		return err
	}
	if result == nil {
		result = &cmm.ParseResult{Format: models.FormatUnsupported}
	}
	op.result = result
	op.state = StateParsed

	op.log.Info().
		Str("format", string(result.Format)).
		Int("records", len(result.Records)).
		Str("diagnostic", result.Diagnostic).
		Msg("Report loaded")
	return nil
}

// Score scores every record against the registry's features and applies the
// automatic assignments, moving to SCORED. A report without records stays at
// PARSED and returns ErrNoRecords.
func (op *ImportOperation) Score(ctx context.Context, reg *registry.Registry) error {
	const name = "Score"
	if err := op.expect(name, StateParsed); err != nil {
		return err
	}
	records := op.Records()
	if len(records) == 0 {
		return WrapMatchError(name, ErrNoRecords, op.result.Diagnostic)
	}

	features := reg.List()
	matrix, err := op.matcher.ScoreAll(ctx, records, features)
	if err != nil {
		return err
	}

	op.features = make(map[int]models.Feature, len(features))
	for _, f := range features {
		op.features[f.ID] = f
	}
	op.assignments = op.matcher.Resolve(matrix)
	op.decisions = make([]Decision, len(op.assignments))
	for i, a := range op.assignments {
		op.decisions[i] = DecisionPending
		if a.Matched() {
			op.decisions[i] = DecisionAuto
		} else {
			op.log.Warn().Int("record", i).Str("label", records[i].Label).Str("reason", a.Reason).Msg("Record left for manual decision")
		}
	}
	op.state = StateScored
	return nil
}

// Pending returns the indexes of records still awaiting a decision.
func (op *ImportOperation) Pending() []int {
	var out []int
	for i, d := range op.decisions {
		if d == DecisionPending {
			out = append(out, i)
		}
	}
	return out
}

// Override assigns record to featureID by hand. A record that held the
// feature before loses it and returns to pending.
func (op *ImportOperation) Override(record, featureID int) error {
	const name = "Override"
	if err := op.expect(name, StateScored, StateResolved); err != nil {
		return err
	}
	if record < 0 || record >= len(op.assignments) {
		return WrapMatchError(name, ErrUnknownRecord, fmt.Sprintf("record %d", record))
	}
	f, ok := op.features[featureID]
	if !ok {
		return WrapMatchError(name, ErrUnknownFeature, fmt.Sprintf("feature %d", featureID))
	}

	for i, a := range op.assignments {
		if i != record && a.FeatureID == featureID {
			op.assignments[i] = models.MatchAssignment{
				RecordIndex: i,
				Score:       a.Score,
				Reason:      fmt.Sprintf("feature %d reassigned to record %d", featureID, record),
			}
			op.decisions[i] = DecisionPending
			op.state = StateScored
		}
	}

	rec := op.result.Records[record]
	op.assignments[record] = models.MatchAssignment{
		RecordIndex: record,
		FeatureID:   featureID,
		Score:       op.matcher.Score(&rec, &f),
		Override:    true,
		Reason:      "manual override",
	}
	op.decisions[record] = DecisionOverride
	return nil
}

// LeaveUnmatched marks a record as deliberately not assigned.
func (op *ImportOperation) LeaveUnmatched(record int) error {
	const name = "LeaveUnmatched"
	if err := op.expect(name, StateScored, StateResolved); err != nil {
		return err
	}
	if record < 0 || record >= len(op.assignments) {
		return WrapMatchError(name, ErrUnknownRecord, fmt.Sprintf("record %d", record))
	}
	a := op.assignments[record]
	op.assignments[record] = models.MatchAssignment{
		RecordIndex: record,
		Score:       a.Score,
		Override:    true,
		Reason:      "left unmatched",
	}
	op.decisions[record] = DecisionUnmatched
	return nil
}

// Resolve moves to RESOLVED once every record is auto-matched, overridden or
// left unmatched.
func (op *ImportOperation) Resolve() error {
	const name = "Resolve"
	if err := op.expect(name, StateScored, StateResolved); err != nil {
		return err
	}
	if pending := op.Pending(); len(pending) > 0 {
		return WrapMatchError(name, ErrUnresolved, fmt.Sprintf("%d records pending", len(pending)))
	}
	op.state = StateResolved
	return nil
}

// CommitSummary reports what a commit wrote.
type CommitSummary struct {
	ImportID  string `json:"import_id"`
	Updated   []int  `json:"updated"`
	Unmatched []int  `json:"unmatched_records"`
	Pass      int    `json:"pass"`
	Fail      int    `json:"fail"`
	Unknown   int    `json:"unknown"`
}

// Commit writes the resolved assignments into the registry and moves to
// COMMITTED. Each assigned feature's measurement fields are replaced, not
// merged. Features removed from the registry since scoring are skipped.
// Committing while records are pending fails with ErrUnresolved.
func (op *ImportOperation) Commit(reg *registry.Registry) (*CommitSummary, error) {
	const name = "Commit"
	if pending := op.Pending(); op.state == StateScored && len(pending) > 0 {
		return nil, WrapMatchError(name, ErrUnresolved, fmt.Sprintf("%d records pending", len(pending)))
	}
	if err := op.expect(name, StateResolved); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	summary := &CommitSummary{ImportID: op.ID}
	for i, a := range op.assignments {
		if !a.Matched() {
			summary.Unmatched = append(summary.Unmatched, i)
			continue
		}
		rec := op.result.Records[i]
		score := a.Score
		var status models.ConformanceStatus
		err := reg.Update(a.FeatureID, func(f *models.Feature) {
			applyMeasurement(f, &rec, score, op.ID, now)
			status = f.Status
		})
		if err != nil {
			op.log.Warn().Err(err).Int("feature_id", a.FeatureID).Msg("Assigned feature no longer in registry, skipping")
			continue
		}
		summary.Updated = append(summary.Updated, a.FeatureID)
		switch status {
		case models.StatusPass:
			summary.Pass++
		case models.StatusFail:
			summary.Fail++
		default:
			summary.Unknown++
		}
	}
	op.state = StateCommitted

	op.log.Info().
		Int("updated", len(summary.Updated)).
		Int("unmatched", len(summary.Unmatched)).
		Int("pass", summary.Pass).
		Int("fail", summary.Fail).
		Msg("Import committed")
	return summary, nil
}

// applyMeasurement overwrites a feature's measurement fields from a record.
// Status precedence: the report's own verdict, then the actual value against
// the feature's specification, then the status computed from the record alone.
func applyMeasurement(f *models.Feature, rec *models.MeasuredFeatureRecord, score int, importID string, at time.Time) {
	f.Actual = models.CopyFloat(rec.Actual)
	f.Deviation = models.CopyFloat(rec.Deviation)
	if f.Deviation == nil && f.Actual != nil && f.Spec != nil && f.Spec.Nominal != nil {
		f.Deviation = models.Float(*f.Actual - *f.Spec.Nominal)
	}

	f.Status = models.StatusUnknown
	switch {
	case rec.StatusSource == "report":
		f.Status = rec.Status
	case f.Actual != nil && specLimits(f.Spec):
		lower, upper, _ := f.Spec.Limits()
		f.Status = cmm.EvaluateStatus(*f.Actual, lower, upper)
	case rec.Status != "":
		f.Status = rec.Status
	}

	s := score
	f.MatchConfidence = &s
	f.ReportLabel = rec.Label
	f.ImportID = importID
	t := at
	f.MeasuredAt = &t
}

func specLimits(spec *models.DimensionalSpecification) bool {
	_, _, ok := spec.Limits()
	return ok
}
