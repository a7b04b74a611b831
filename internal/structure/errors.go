package structure

import (
	"errors"
	"fmt"
)

// Common structuring errors
var (
	// ErrMalformedOutput is returned when the semantic collaborator's response
	// is not valid JSON, fails the schema, or breaks a tolerance invariant.
	ErrMalformedOutput = errors.New("malformed structuring output")

	// ErrNoClient is returned when semantic structuring is requested without a client.
	ErrNoClient = errors.New("no semantic structuring client configured")

	// ErrEmptyResponse is returned when the collaborator returns no choices.
	ErrEmptyResponse = errors.New("empty structuring response")
)

// StructureError wraps errors with the structuring operation that failed.
type StructureError struct {
	Op      string
	Err     error
	Details string
}

// Error implements the error interface.
func (e *StructureError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("structure: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("structure: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StructureError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *StructureError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapStructureError wraps err unless it already is a StructureError.
func WrapStructureError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var se *StructureError
	if errors.As(err, &se) {
		return err
	}
	return &StructureError{Op: op, Err: err, Details: details}
}
