package matching

import (
	"errors"
	"fmt"
)

// Matching errors
var (
	// ErrInvalidTransition is returned when an import operation is driven out of order.
	ErrInvalidTransition = errors.New("invalid import state transition")

	// ErrUnresolved is returned when records still await a manual decision.
	ErrUnresolved = errors.New("records awaiting a match decision")

	// ErrNoRecords is returned when a parsed report has nothing to match.
	ErrNoRecords = errors.New("report contains no measurement records")

	// ErrUnknownRecord is returned for a record index outside the report.
	ErrUnknownRecord = errors.New("unknown record")

	// ErrUnknownFeature is returned when an override names a feature that was not scored.
	ErrUnknownFeature = errors.New("unknown feature")
)

// MatchError wraps errors with the matching operation that failed.
type MatchError struct {
	Op      string
	Err     error
	Details string
}

// Error implements the error interface.
func (e *MatchError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("matching: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("matching: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *MatchError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *MatchError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapMatchError wraps err unless it already is a MatchError.
func WrapMatchError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var me *MatchError
	if errors.As(err, &me) {
		return err
	}
	return &MatchError{Op: op, Err: err, Details: details}
}
